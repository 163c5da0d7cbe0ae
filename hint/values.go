package hint

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/npillmayer/tinct/flow"
)

// Variant is the tag of an abstract value.
type Variant uint8

// Variants of abstract values.
const (
	VariantVariable Variant = iota
	VariantConstant
	VariantContainer
	numVariants
)

var variantNames = [...]string{"Variable", "Constant", "Container"}

func (v Variant) String() string {
	if v < numVariants {
		return variantNames[v]
	}
	return "?"
}

// AbstractValue is the classification of a flow value. It is one of *Variable,
// *Constant or *Container. Abstract values are never mutated after they have
// been bound to a flow variable.
type AbstractValue interface {
	Variant() Variant
	ConcreteType() *flow.Type
	DeepFrozen() bool
	IsFixed() bool
	IsGreen() bool
	String() string
}

// --- Variable --------------------------------------------------------------

// Variable is a value only known at run time.
type Variable struct {
	T      *flow.Type
	Frozen bool
}

// NewVariable creates a (red) variable of type t.
func NewVariable(t *flow.Type) *Variable {
	return &Variable{T: t}
}

// Variant is part of interface AbstractValue.
func (v *Variable) Variant() Variant { return VariantVariable }

// ConcreteType is part of interface AbstractValue.
func (v *Variable) ConcreteType() *flow.Type { return v.T }

// DeepFrozen is part of interface AbstractValue.
func (v *Variable) DeepFrozen() bool { return v.Frozen }

// IsFixed is part of interface AbstractValue.
func (v *Variable) IsFixed() bool { return false }

// IsGreen is part of interface AbstractValue. Only Void variables are green.
func (v *Variable) IsGreen() bool { return v.T == flow.Void }

func (v *Variable) String() string {
	return fmt.Sprintf("Variable(%s%s)", v.T, frozenTag(v.Frozen))
}

// --- Constant --------------------------------------------------------------

// Constant is a value which may be known at specialization time.
type Constant struct {
	T             *flow.Type
	Frozen        bool
	Origins       OriginSet
	MyOrigin      *Origin // origin which created this value, may be nil
	EagerConcrete bool
	Literal       interface{}
	HasLiteral    bool
}

// Variant is part of interface AbstractValue.
func (c *Constant) Variant() Variant { return VariantConstant }

// ConcreteType is part of interface AbstractValue.
func (c *Constant) ConcreteType() *flow.Type { return c.T }

// DeepFrozen is part of interface AbstractValue.
func (c *Constant) DeepFrozen() bool { return c.Frozen }

// IsFixed is true if every origin is fixed. Void constants are never fixed.
func (c *Constant) IsFixed() bool {
	for _, o := range c.Origins.Origins() {
		if !o.Fixed {
			return false
		}
	}
	return c.T != flow.Void
}

// IsGreen is part of interface AbstractValue.
func (c *Constant) IsGreen() bool {
	return c.T == flow.Void || c.IsFixed() || c.EagerConcrete ||
		(c.MyOrigin != nil && c.MyOrigin.GreenArgs)
}

func (c *Constant) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Constant(%s", c.T)
	if c.HasLiteral {
		fmt.Fprintf(&b, " =%v", c.Literal)
	}
	if c.EagerConcrete {
		b.WriteString(" eager")
	}
	b.WriteString(frozenTag(c.Frozen))
	if n := c.Origins.Len(); n > 0 {
		fmt.Fprintf(&b, " %s", c.Origins)
	}
	b.WriteString(")")
	return b.String()
}

func (c *Constant) clone() *Constant {
	cc := *c
	return &cc
}

// --- Container -------------------------------------------------------------

// Container is a virtual struct or array, tracked by a content definition.
type Container struct {
	def *ContentDef
}

// Variant is part of interface AbstractValue.
func (c *Container) Variant() Variant { return VariantContainer }

// ConcreteType is part of interface AbstractValue. It is a pointer to the
// container's type.
func (c *Container) ConcreteType() *flow.Type { return flow.Ptr(c.def.find().T) }

// DeepFrozen is part of interface AbstractValue. Containers are never frozen.
func (c *Container) DeepFrozen() bool { return false }

// IsFixed is part of interface AbstractValue.
func (c *Container) IsFixed() bool { return false }

// IsGreen is part of interface AbstractValue.
func (c *Container) IsGreen() bool { return false }

// ContentDef returns the content definition of the container.
func (c *Container) ContentDef() *ContentDef { return c.def.find() }

func (c *Container) String() string {
	return fmt.Sprintf("Container(%s)", c.def.find())
}

// --- Operations on values --------------------------------------------------

func frozenTag(frozen bool) string {
	if frozen {
		return " frozen"
	}
	return ""
}

// Deepfreeze returns a copy of v with the deep-frozen flag set.
// Containers cannot be frozen and are returned unchanged.
func Deepfreeze(v AbstractValue) AbstractValue {
	return withFrozen(v, true)
}

func withFrozen(v AbstractValue, frozen bool) AbstractValue {
	switch x := v.(type) {
	case *Variable:
		if x.Frozen == frozen {
			return x
		}
		return &Variable{T: x.T, Frozen: frozen}
	case *Constant:
		if x.Frozen == frozen {
			return x
		}
		c := x.clone()
		c.Frozen = frozen
		return c
	}
	return v
}

// Equal is structural equality of abstract values.
func Equal(a, b AbstractValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Variant() != b.Variant() {
		return false
	}
	switch x := a.(type) {
	case *Variable:
		y := b.(*Variable)
		return x.T == y.T && x.Frozen == y.Frozen
	case *Constant:
		y := b.(*Constant)
		if x.T != y.T || x.Frozen != y.Frozen || x.EagerConcrete != y.EagerConcrete ||
			x.MyOrigin != y.MyOrigin || x.HasLiteral != y.HasLiteral {
			return false
		}
		if x.HasLiteral && !literalEqual(x.Literal, y.Literal) {
			return false
		}
		return x.Origins.Equal(y.Origins)
	case *Container:
		y := b.(*Container)
		return x.def.find() == y.def.find()
	}
	return false
}

func literalEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Literal returns the literal payload of a value, if known.
func Literal(v AbstractValue) (interface{}, bool) {
	if c, ok := v.(*Constant); ok && c.HasLiteral {
		return c.Literal, true
	}
	return nil, false
}

// Color returns "green" or "red" for a value.
func Color(v AbstractValue) string {
	if v.IsGreen() {
		return "green"
	}
	return "red"
}
