package flow

import (
	"fmt"
	"strings"
	"sync"
)

// Kind is the category of a low-level type.
type Kind uint8

// Kinds of low-level types.
const (
	VoidKind Kind = iota
	SignedKind
	UnsignedKind
	BoolKind
	CharKind
	FloatKind
	PtrKind
	StructKind
	ArrayKind
	FuncKind
)

var kindNames = [...]string{"Void", "Signed", "Unsigned", "Bool", "Char", "Float",
	"Ptr", "Struct", "Array", "Func"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Hints are flags of container types.
type Hints struct {
	Immutable     bool // fields never change after construction
	Virtualizable bool // objects are always materialized, pinned by the runtime
}

// Field is a named member of a struct type.
type Field struct {
	Name string
	Type *Type
}

// Type is a low-level type. Types are compared by identity.
type Type struct {
	Kind   Kind
	Name   string
	Hints  Hints
	fields []Field
	of     *Type   // pointer target or array item
	args   []*Type // function arguments
	result *Type   // function result
}

// Primitive types.
var (
	Void     = &Type{Kind: VoidKind, Name: "Void"}
	Signed   = &Type{Kind: SignedKind, Name: "Signed"}
	Unsigned = &Type{Kind: UnsignedKind, Name: "Unsigned"}
	Bool     = &Type{Kind: BoolKind, Name: "Bool"}
	Char     = &Type{Kind: CharKind, Name: "Char"}
	Float    = &Type{Kind: FloatKind, Name: "Float"}
)

// Primitive returns the primitive type for a name, or nil.
func Primitive(name string) *Type {
	for _, t := range []*Type{Void, Signed, Unsigned, Bool, Char, Float} {
		if t.Name == name {
			return t
		}
	}
	return nil
}

var internLock sync.Mutex
var ptrTypes = map[*Type]*Type{}
var funcTypes = map[string]*Type{}

// Ptr returns the pointer type to t. Ptr(t) == Ptr(t) holds.
func Ptr(t *Type) *Type {
	internLock.Lock()
	defer internLock.Unlock()
	if p, ok := ptrTypes[t]; ok {
		return p
	}
	p := &Type{Kind: PtrKind, of: t}
	ptrTypes[t] = p
	return p
}

// FuncType returns the function type with the given signature. Function types
// with identical signatures are identical.
func FuncType(result *Type, args ...*Type) *Type {
	f := &Type{Kind: FuncKind, args: args, result: result}
	sig := f.String()
	internLock.Lock()
	defer internLock.Unlock()
	if t, ok := funcTypes[sig]; ok {
		return t
	}
	funcTypes[sig] = f
	return f
}

// Struct creates a new struct type.
func Struct(name string, hints Hints, fields ...Field) *Type {
	return &Type{Kind: StructKind, Name: name, Hints: hints, fields: fields}
}

// ForwardStruct creates a struct type with fields to be defined later, for
// recursive types. Call Define to set the fields.
func ForwardStruct(name string, hints Hints) *Type {
	return &Type{Kind: StructKind, Name: name, Hints: hints}
}

// Define sets the fields of a forward declared struct.
func (t *Type) Define(fields ...Field) *Type {
	if t.Kind != StructKind || t.fields != nil {
		panic(fmt.Sprintf("cannot define fields of %v", t))
	}
	t.fields = fields
	return t
}

// Array creates a new (variable sized) array type.
func Array(name string, item *Type, hints Hints) *Type {
	return &Type{Kind: ArrayKind, Name: name, Hints: hints, of: item}
}

// F is a shortcut to create a struct field.
func F(name string, t *Type) Field {
	return Field{Name: name, Type: t}
}

// IsPtr is true for pointer types.
func (t *Type) IsPtr() bool { return t.Kind == PtrKind }

// IsContainer is true for structs and arrays.
func (t *Type) IsContainer() bool { return t.Kind == StructKind || t.Kind == ArrayKind }

// Target returns the type a pointer type points to.
func (t *Type) Target() *Type {
	if t.Kind != PtrKind {
		return nil
	}
	return t.of
}

// Item returns the item type of an array.
func (t *Type) Item() *Type {
	if t.Kind != ArrayKind {
		return nil
	}
	return t.of
}

// Fields returns the fields of a struct type.
func (t *Type) Fields() []Field {
	return t.fields
}

// FieldType returns the type of a struct field.
func (t *Type) FieldType(name string) (*Type, bool) {
	if i := t.FieldIndex(name); i >= 0 {
		return t.fields[i].Type, true
	}
	return nil, false
}

// FieldIndex returns the position of a field within a struct, or -1.
func (t *Type) FieldIndex(name string) int {
	for i, f := range t.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Args returns the argument types of a function type.
func (t *Type) Args() []*Type { return t.args }

// Result returns the result type of a function type.
func (t *Type) Result() *Type { return t.result }

// IsVarsize is true for arrays and for structs ending in an inlined array.
func (t *Type) IsVarsize() bool {
	switch t.Kind {
	case ArrayKind:
		return true
	case StructKind:
		if n := len(t.fields); n > 0 {
			return t.fields[n-1].Type.IsVarsize()
		}
	}
	return false
}

// Immutable is true for containers hinted immutable.
func (t *Type) Immutable() bool {
	return t.IsContainer() && t.Hints.Immutable
}

// Virtualizable is true for structs hinted virtualizable.
func (t *Type) Virtualizable() bool {
	return t.Kind == StructKind && t.Hints.Virtualizable
}

// Shape is a structural description of a type. Pointers and containers are
// described by name only, which keeps shapes of recursive types finite.
func (t *Type) Shape() string {
	switch t.Kind {
	case PtrKind:
		return "*" + t.of.shortName()
	case FuncKind:
		return t.String()
	case StructKind, ArrayKind:
		return t.Kind.String() + ":" + t.Name
	}
	return t.Name
}

func (t *Type) shortName() string {
	switch t.Kind {
	case PtrKind, FuncKind:
		return t.String()
	}
	return t.Name
}

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	switch t.Kind {
	case PtrKind:
		return "*" + t.of.shortName()
	case FuncKind:
		args := make([]string, len(t.args))
		for i, a := range t.args {
			args[i] = a.String()
		}
		return fmt.Sprintf("func(%s) %s", strings.Join(args, ", "), t.result)
	case ArrayKind:
		return fmt.Sprintf("%s[%s]", t.Name, t.of.shortName())
	}
	return t.Name
}

// --- Exception box ---------------------------------------------------------

// Types of the exception box. The exception box is a prebuilt structure with
// pseudo-fields for the type and the value of the current exception.
var (
	ExcClassType = Struct("object_vtable", Hints{Immutable: true})
	ExcValueType = Struct("object", Hints{})
	ExcDataType  = Struct("exc_data", Hints{},
		F("exc_type", Ptr(ExcClassType)),
		F("exc_value", Ptr(ExcValueType)))
)
