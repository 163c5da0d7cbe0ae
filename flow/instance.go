package flow

import "fmt"

// Instance is a prebuilt struct or array, the literal payload of pointer
// constants. Reading from an immutable instance folds at compile time.
type Instance struct {
	Type   *Type                  // struct or array type
	Fields map[string]interface{} // struct fields
	Items  []interface{}          // array items
}

// NewStructInstance creates a prebuilt struct. Fields are given as name/value pairs.
func NewStructInstance(t *Type, namesAndValues ...interface{}) *Instance {
	inst := &Instance{Type: t, Fields: map[string]interface{}{}}
	for i := 0; i+1 < len(namesAndValues); i += 2 {
		name := namesAndValues[i].(string)
		ft, ok := t.FieldType(name)
		if !ok {
			panic(fmt.Sprintf("no field %s in %v", name, t))
		}
		inst.Fields[name] = Normalize(namesAndValues[i+1], ft)
	}
	return inst
}

// NewArrayInstance creates a prebuilt array.
func NewArrayInstance(t *Type, items ...interface{}) *Instance {
	inst := &Instance{Type: t, Items: make([]interface{}, len(items))}
	for i, x := range items {
		inst.Items[i] = Normalize(x, t.Item())
	}
	return inst
}

// PtrConst creates a pointer constant to a prebuilt instance.
func PtrConst(inst *Instance) *Constant {
	return &Constant{Value: inst, Type: Ptr(inst.Type)}
}

// Field returns the value of a struct field, if present.
func (inst *Instance) Field(name string) (interface{}, bool) {
	v, ok := inst.Fields[name]
	return v, ok
}

// Item returns the value of an array item, if present.
func (inst *Instance) Item(i int) (interface{}, bool) {
	if i < 0 || i >= len(inst.Items) {
		return nil, false
	}
	return inst.Items[i], true
}

func (inst *Instance) String() string {
	return fmt.Sprintf("<%s instance>", inst.Type)
}
