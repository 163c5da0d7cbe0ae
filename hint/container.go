package hint

import (
	"fmt"

	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
	"golang.org/x/tools/container/intsets"
)

// ContentDef tracks the contents of a virtual struct or array. Struct
// definitions track one value per field, array definitions one value for all
// items. Definitions of containers which meet at a control flow join are
// joined (union-find); always use find() to get the current definition.
type ContentDef struct {
	T           *flow.Type
	ctx         *Context
	rep         *ContentDef
	parent      *ContentDef // for inlined sub-structs
	parentField string
	degenerated bool
	fields      []*fieldValue
	item        *fieldValue
}

// fieldValue is the tracked value of a struct field or of array items.
// A nil hs is the bottom value of pointer fields which have never been written.
type fieldValue struct {
	name    string
	T       *flow.Type
	hs      AbstractValue
	readers intsets.Sparse
}

func newContentDef(ctx *Context, t *flow.Type, parent *ContentDef, parentField string) *ContentDef {
	def := &ContentDef{T: t, ctx: ctx, parent: parent, parentField: parentField}
	switch t.Kind {
	case flow.StructKind:
		for _, f := range t.Fields() {
			def.fields = append(def.fields, &fieldValue{
				name: f.Name,
				T:    f.Type,
				hs:   def.initialValue(f.Name, f.Type),
			})
		}
	case flow.ArrayKind:
		def.item = &fieldValue{name: "item", T: t.Item(), hs: def.initialValue("item", t.Item())}
	default:
		panic(fmt.Sprintf("cannot create virtual container of type %v", t))
	}
	return def
}

func (def *ContentDef) initialValue(name string, t *flow.Type) AbstractValue {
	switch {
	case t.IsContainer():
		return &Container{def: newContentDef(def.ctx, t, def, name)}
	case t.IsPtr():
		return nil
	case t == flow.Void:
		return sVoid
	}
	return literalConst(t, zeroValue(t))
}

func zeroValue(t *flow.Type) interface{} {
	switch t.Kind {
	case flow.SignedKind:
		return 0
	case flow.UnsignedKind:
		return uint(0)
	case flow.BoolKind:
		return false
	case flow.CharKind:
		return byte(0)
	case flow.FloatKind:
		return 0.0
	}
	return nil
}

func (def *ContentDef) find() *ContentDef {
	root := def
	for root.rep != nil {
		root = root.rep
	}
	for def != root { // path compression
		next := def.rep
		def.rep = root
		def = next
	}
	return root
}

// Degenerated is true if the container escaped abstract tracking.
func (def *ContentDef) Degenerated() bool {
	return def.find().degenerated
}

func (def *ContentDef) String() string {
	d := def.find()
	if d.degenerated {
		return d.T.String() + " degenerated"
	}
	return d.T.String()
}

func (def *ContentDef) field(name string) (*fieldValue, error) {
	d := def.find()
	for _, fv := range d.fields {
		if fv.name == name {
			return fv, nil
		}
	}
	return nil, tinct.Errorf(tinct.AnalysisError, "no field %s in %v", name, d.T)
}

// FieldValue returns the currently tracked value of a field.
func (def *ContentDef) FieldValue(name string) AbstractValue {
	fv, err := def.field(name)
	if err != nil {
		return nil
	}
	return fv.hs
}

// readField returns the tracked value of a field and records the current
// position as a reader.
func (def *ContentDef) readField(name string) (AbstractValue, error) {
	fv, err := def.field(name)
	if err != nil {
		return nil, err
	}
	return def.read(fv), nil
}

func (def *ContentDef) readItem() AbstractValue {
	return def.read(def.find().item)
}

func (def *ContentDef) read(fv *fieldValue) AbstractValue {
	if def.ctx.current >= 0 {
		fv.readers.Insert(def.ctx.current)
	}
	if fv.hs == nil {
		return &Constant{T: fv.T, HasLiteral: true} // null pointer
	}
	return fv.hs
}

func (def *ContentDef) generalizeField(name string, hs AbstractValue) error {
	fv, err := def.field(name)
	if err != nil {
		return err
	}
	return def.generalize(fv, hs)
}

func (def *ContentDef) generalizeItem(hs AbstractValue) error {
	return def.generalize(def.find().item, hs)
}

func (def *ContentDef) generalize(fv *fieldValue, hs AbstractValue) error {
	if def.find().degenerated {
		hs = variableOf(fv.T)
	}
	u, err := Union(fv.hs, hs)
	if err != nil {
		return err
	}
	if Equal(u, fv.hs) {
		return nil
	}
	fv.hs = u
	def.reflowReaders(fv)
	return nil
}

func (def *ContentDef) reflowReaders(fv *fieldValue) {
	var serials []int
	serials = fv.readers.AppendTo(serials)
	for _, serial := range serials {
		def.ctx.ann.reschedulePosition(serial)
	}
}

// markDegenerated generalizes every tracked member to a Variable, recursively.
func (def *ContentDef) markDegenerated() {
	d := def.find()
	if d.degenerated {
		return
	}
	d.degenerated = true
	tracer().Debugf("container %v degenerated", d.T)
	members := d.fields
	if d.item != nil {
		members = []*fieldValue{d.item}
	}
	for _, fv := range members {
		if c, ok := fv.hs.(*Container); ok {
			c.def.markDegenerated()
			if fv.T.IsContainer() {
				continue // inlined
			}
		}
		fv.hs = variableOf(fv.T)
		d.reflowReaders(fv)
	}
}

// union joins two content definitions of the same type.
func (def *ContentDef) union(other *ContentDef) (*ContentDef, error) {
	d1, d2 := def.find(), other.find()
	if d1 == d2 {
		return d1, nil
	}
	if d1.T != d2.T {
		return nil, tinct.Errorf(tinct.UnionError, "cannot join containers of type %v and %v", d1.T, d2.T)
	}
	d2.rep = d1
	degenerated := d1.degenerated || d2.degenerated
	m1, m2 := d1.fields, d2.fields
	if d1.item != nil {
		m1, m2 = []*fieldValue{d1.item}, []*fieldValue{d2.item}
	}
	for i, fv1 := range m1 {
		fv2 := m2[i]
		fv1.readers.UnionWith(&fv2.readers)
		u, err := Union(fv1.hs, fv2.hs)
		if err != nil {
			return nil, err
		}
		if !Equal(u, fv1.hs) {
			fv1.hs = u
			d1.reflowReaders(fv1)
		}
	}
	if degenerated {
		d1.degenerated = false
		d1.markDegenerated()
	}
	return d1, nil
}

// cast finds the definition of type to, walking to the parent or into the
// first inlined field.
func (def *ContentDef) cast(to *flow.Type) (*ContentDef, bool) {
	d := def.find()
	for p := d; p != nil; p = p.parent {
		if p.T == to {
			return p.find(), true
		}
	}
	for cur := d; cur.T.Kind == flow.StructKind && len(cur.fields) > 0; {
		c, ok := cur.fields[0].hs.(*Container)
		if !ok {
			break
		}
		cur = c.def.find()
		if cur.T == to {
			return cur, true
		}
	}
	return nil, false
}
