package hint

import (
	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
)

// sVoid is the value of every Void-typed variable.
var sVoid = &Constant{T: flow.Void}

// variableOf returns the most general value of type t.
func variableOf(t *flow.Type) AbstractValue {
	if t == flow.Void {
		return sVoid
	}
	return &Variable{T: t}
}

// immutableValue returns a Constant for a flow constant.
func immutableValue(c *flow.Constant) *Constant {
	return &Constant{T: c.Type, Literal: c.Value, HasLiteral: true}
}

func literalConst(t *flow.Type, value interface{}) *Constant {
	return &Constant{T: t, Literal: flow.Normalize(value, t), HasLiteral: true}
}

// Union computes the least general value covering both a and b. A nil
// argument stands for "not yet bound" and yields the other argument.
// Incompatible values result in a UnionError.
func Union(a, b AbstractValue) (AbstractValue, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if a.DeepFrozen() != b.DeepFrozen() {
		a, b = withFrozen(a, false), withFrozen(b, false)
		if Equal(a, b) {
			return a, nil
		}
	}
	if a.ConcreteType() != b.ConcreteType() {
		return nil, invalidUnion(a, b)
	}
	fn := unionTable[a.Variant()][b.Variant()]
	return fn(a, b)
}

// unionTable dispatches on the variants of both operands.
var unionTable [numVariants][numVariants]func(a, b AbstractValue) (AbstractValue, error)

func init() {
	unionTable[VariantVariable][VariantVariable] = unionVarVar
	unionTable[VariantConstant][VariantConstant] = unionConstConst
	unionTable[VariantVariable][VariantConstant] = unionVarConst
	unionTable[VariantConstant][VariantVariable] = unionVarConst
	unionTable[VariantContainer][VariantContainer] = unionContCont
	unionTable[VariantContainer][VariantVariable] = unionContValue
	unionTable[VariantContainer][VariantConstant] = unionContValue
	unionTable[VariantVariable][VariantContainer] = func(a, b AbstractValue) (AbstractValue, error) {
		return unionContValue(b, a)
	}
	unionTable[VariantConstant][VariantContainer] = unionTable[VariantVariable][VariantContainer]
}

func invalidUnion(a, b AbstractValue) error {
	return tinct.Errorf(tinct.UnionError, "%s %s don't mix", a, b)
}

func unionVarVar(a, b AbstractValue) (AbstractValue, error) {
	return a, nil
}

func unionConstConst(a, b AbstractValue) (AbstractValue, error) {
	c1, c2 := a.(*Constant), b.(*Constant)
	res := &Constant{
		T:             c1.T,
		Frozen:        c1.Frozen,
		Origins:       c1.Origins.Union(c2.Origins),
		EagerConcrete: c1.EagerConcrete && c2.EagerConcrete,
	}
	if c1.MyOrigin == c2.MyOrigin {
		res.MyOrigin = c1.MyOrigin
	}
	if c1.HasLiteral && c2.HasLiteral && literalEqual(c1.Literal, c2.Literal) {
		res.Literal, res.HasLiteral = c1.Literal, true
	}
	if Equal(res, c1) {
		return c1, nil
	}
	return res, nil
}

// unionVarConst widens a Constant to a Variable, except for eagerly concrete
// constants.
func unionVarConst(a, b AbstractValue) (AbstractValue, error) {
	for _, hs := range []AbstractValue{a, b} {
		if c, ok := hs.(*Constant); ok && c.EagerConcrete {
			return nil, invalidUnion(a, b)
		}
	}
	if v, ok := a.(*Variable); ok {
		return v, nil
	}
	return b, nil
}

func unionContCont(a, b AbstractValue) (AbstractValue, error) {
	c1, c2 := a.(*Container), b.(*Container)
	def, err := c1.def.union(c2.def)
	if err != nil {
		return nil, err
	}
	if def == c1.def {
		return c1, nil
	}
	return &Container{def: def}, nil
}

// unionContValue lets a container escape: it is degenerated and the result
// is a plain Variable.
func unionContValue(cont, other AbstractValue) (AbstractValue, error) {
	c := cont.(*Container)
	c.def.find().markDegenerated()
	return &Variable{T: c.ConcreteType()}, nil
}

// UnionAll folds Union over a list of values.
func UnionAll(values ...AbstractValue) (AbstractValue, error) {
	var res AbstractValue
	var err error
	for _, hs := range values {
		if res, err = Union(res, hs); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// reorigin returns a copy of a Constant with its origins replaced by the
// origin of the current operation, plus the origins of deps. Other values
// are returned unchanged.
func (ctx *Context) reorigin(hs AbstractValue, deps ...AbstractValue) AbstractValue {
	c, ok := hs.(*Constant)
	if !ok {
		return hs
	}
	origins := NewOriginSet(ctx.myOrigin())
	for _, dep := range deps {
		if dc, ok := dep.(*Constant); ok {
			origins = origins.Union(dc.Origins)
		}
	}
	return &Constant{
		T:             c.T,
		Frozen:        c.Frozen,
		Origins:       origins,
		EagerConcrete: c.EagerConcrete,
		Literal:       c.Literal,
		HasLiteral:    c.HasLiteral,
	}
}
