package hint

import (
	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
)

type unaryFunc func(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error)
type binaryFunc func(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error)
type nullaryFunc func(ctx *Context, args []AbstractValue) (AbstractValue, error)

// anyVariant is the wildcard slot of the dispatch tables.
const anyVariant = numVariants

type unaryCells = [numVariants + 1]unaryFunc
type binaryCells = [numVariants + 1][numVariants + 1]binaryFunc

var (
	unaryOps   = map[string]*unaryCells{}
	binaryOps  = map[string]*binaryCells{}
	nullaryOps = map[string]nullaryFunc{}
)

func unary(name string, v Variant, f unaryFunc) {
	cells, ok := unaryOps[name]
	if !ok {
		cells = &unaryCells{}
		unaryOps[name] = cells
	}
	cells[v] = f
}

func binary(name string, v1, v2 Variant, f binaryFunc) {
	cells, ok := binaryOps[name]
	if !ok {
		cells = &binaryCells{}
		binaryOps[name] = cells
	}
	cells[v1][v2] = f
}

func init() {
	// generic rules from the operation table
	for _, llop := range flow.Ops() {
		llop := llop
		if llop.SideEffects && !llop.TryFold {
			continue
		}
		switch llop.Arity() {
		case 1:
			unary(llop.Name, anyVariant, varUnary)
			if llop.CanFold || llop.TryFold {
				unary(llop.Name, VariantConstant, func(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
					return constUnary(ctx, llop, hs.(*Constant)), nil
				})
			}
		case 2:
			binary(llop.Name, anyVariant, anyVariant, varBinary)
			if llop.CanFold || llop.TryFold {
				binary(llop.Name, VariantConstant, VariantConstant, func(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
					return constBinary(ctx, llop, hs1.(*Constant), hs2.(*Constant)), nil
				})
			}
		}
	}
	// special rules
	unary("same_as", anyVariant, sameAs)
	unary("same_as", VariantConstant, sameAs)
	unary("hint", anyVariant, hintOp)
	unary("is_early_constant", anyVariant, func(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
		return &Constant{T: flow.Bool}, nil
	})
	unary("getfield", anyVariant, varGetfield)
	unary("getfield", VariantConstant, constGetfield)
	unary("getfield", VariantContainer, contGetfield)
	unary("setfield", anyVariant, noResult)
	unary("setfield", VariantContainer, contSetfield)
	unary("getsubstruct", anyVariant, varGetsubstruct)
	unary("getsubstruct", VariantConstant, constGetsubstruct)
	unary("getsubstruct", VariantContainer, contGetfield)
	unary("getarraysize", VariantConstant, constGetarraysize)
	unary("getarraysize", VariantContainer, func(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
		return &Constant{T: flow.Signed, Origins: NewOriginSet(ctx.myOrigin())}, nil
	})
	unary("getinteriorfield", anyVariant, getinteriorfield)
	unary("getinteriorarraysize", anyVariant, getinteriorarraysize)
	unary("getinteriorarraysize", VariantConstant, getinteriorarraysize)
	unary("setinteriorfield", anyVariant, setinteriorfield)
	unary("cast_pointer", anyVariant, varCastPointer)
	unary("cast_pointer", VariantConstant, constCastPointer)
	unary("cast_pointer", VariantContainer, contCastPointer)
	unary("ptr_nonzero", VariantContainer, func(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
		return literalConst(flow.Bool, true), nil
	})
	unary("ptr_iszero", VariantContainer, func(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
		return literalConst(flow.Bool, false), nil
	})
	unary("direct_call", anyVariant, func(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
		return nil, tinct.Errorf(tinct.UnsupportedConstruct, "direct call through non-constant %s", hs)
	})
	unary("direct_call", VariantConstant, directCall)
	unary("indirect_call", anyVariant, indirectCall)
	unary("keepalive", anyVariant, noResult)
	unary("debug_assert", anyVariant, noResult)
	unary("zero_gc_pointers_inside", anyVariant, noResult)

	binary("getarrayitem", anyVariant, anyVariant, varGetarrayitem)
	binary("getarrayitem", VariantConstant, VariantConstant, constGetarrayitem)
	binary("getarrayitem", VariantContainer, VariantConstant, contGetarrayitem)
	binary("setarrayitem", anyVariant, anyVariant, func(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
		return nil, nil
	})
	binary("setarrayitem", VariantContainer, anyVariant, func(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
		return nil, hs1.(*Container).def.generalizeItem(rest[0])
	})
	binary("getarraysubstruct", anyVariant, anyVariant, varGetarraysubstruct)
	binary("getarraysubstruct", VariantConstant, VariantConstant, constGetarraysubstruct)
	binary("getarraysubstruct", VariantContainer, anyVariant, func(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
		return hs1.(*Container).def.readItem(), nil
	})
	for _, name := range []string{"ptr_eq", "ptr_ne"} {
		eq := name == "ptr_eq"
		binary(name, VariantContainer, VariantContainer, func(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
			return &Constant{T: flow.Bool}, nil
		})
		mixed := func(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
			return literalConst(flow.Bool, !eq), nil
		}
		binary(name, VariantContainer, anyVariant, mixed)
		binary(name, anyVariant, VariantContainer, mixed)
	}

	nullaryOps["malloc"] = malloc
	nullaryOps["malloc_varsize"] = malloc
	nullaryOps["jit_merge_point"] = func(ctx *Context, args []AbstractValue) (AbstractValue, error) { return nil, nil }
	nullaryOps["can_enter_jit"] = nullaryOps["jit_merge_point"]
}

// dispatch finds and calls the handler of an operation for the abstract
// values of its arguments.
func (ctx *Context) dispatch(name string, args []AbstractValue) (AbstractValue, error) {
	if f, ok := nullaryOps[name]; ok {
		return f(ctx, args)
	}
	if cells, ok := binaryOps[name]; ok && len(args) >= 2 {
		return ctx.dispatchBinary(name, cells, args[0], args[1], args[2:])
	}
	if cells, ok := unaryOps[name]; ok && len(args) >= 1 {
		return ctx.dispatchUnary(name, cells, args[0], args[1:])
	}
	return nil, tinct.Errorf(tinct.UnsupportedConstruct, "operation %s", name)
}

func (ctx *Context) dispatchUnary(name string, cells *unaryCells, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	f := cells[hs.Variant()]
	if f == nil {
		f = cells[anyVariant]
	}
	if f == nil {
		return nil, tinct.Errorf(tinct.UnsupportedConstruct, "operation %s on %s", name, hs)
	}
	return f(ctx, hs, rest)
}

func (ctx *Context) dispatchBinary(name string, cells *binaryCells, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	v1, v2 := hs1.Variant(), hs2.Variant()
	f := cells[v1][v2]
	if f == nil {
		f = cells[v1][anyVariant]
	}
	if f == nil {
		f = cells[anyVariant][v2]
	}
	if f == nil {
		f = cells[anyVariant][anyVariant]
	}
	if f == nil {
		return nil, tinct.Errorf(tinct.UnsupportedConstruct, "operation %s on (%s, %s)", name, hs1, hs2)
	}
	return f(ctx, hs1, hs2, rest)
}

func (ctx *Context) call1(name string, hs AbstractValue, rest ...AbstractValue) (AbstractValue, error) {
	return ctx.dispatchUnary(name, unaryOps[name], hs, rest)
}

func (ctx *Context) call2(name string, hs1, hs2 AbstractValue, rest ...AbstractValue) (AbstractValue, error) {
	return ctx.dispatchBinary(name, binaryOps[name], hs1, hs2, rest)
}

// --- Generic rules ---------------------------------------------------------

func varUnary(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	res := variableOf(ctx.currentOpType())
	ctx.setCause(res, hs)
	return res, nil
}

func varBinary(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	res := variableOf(ctx.currentOpType())
	ctx.setCause(res, []AbstractValue{hs1, hs2})
	return res, nil
}

func constUnary(ctx *Context, llop *flow.LLOp, c *Constant) AbstractValue {
	o := ctx.myOrigin()
	t := ctx.currentOpType()
	res := &Constant{T: t, Origins: c.Origins.With(o), EagerConcrete: c.EagerConcrete, MyOrigin: o}
	if c.HasLiteral && llop.Fold != nil {
		if v, err := llop.Fold([]interface{}{c.Literal}); err == nil {
			res.Literal, res.HasLiteral = flow.Normalize(v, t), true
		}
	}
	return res
}

func constBinary(ctx *Context, llop *flow.LLOp, c1, c2 *Constant) AbstractValue {
	o := ctx.myOrigin()
	t := ctx.currentOpType()
	res := &Constant{
		T:             t,
		Origins:       c1.Origins.Union(c2.Origins).With(o),
		EagerConcrete: c1.EagerConcrete || c2.EagerConcrete,
		MyOrigin:      o,
	}
	if c1.HasLiteral && c2.HasLiteral && llop.Fold != nil {
		if v, err := llop.Fold([]interface{}{c1.Literal, c2.Literal}); err == nil {
			res.Literal, res.HasLiteral = flow.Normalize(v, t), true
		}
	}
	return res
}

func sameAs(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	return hs, nil
}

func noResult(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	return nil, nil
}

// --- Hints -----------------------------------------------------------------

// Hint flags recognized by the analysis.
const (
	HintConcrete   = "concrete"
	HintForget     = "forget"
	HintPromote    = "promote"
	HintDeepfreeze = "deepfreeze"
	HintVariable   = "variable"
	// markers for the compiler
	HintGlobalMergePoint  = "global_merge_point"
	HintReverseSplitQueue = "reverse_split_queue"
	HintAccessDirectly    = "access_directly"
)

func hintOp(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	var flags flow.HintFlags
	if len(rest) > 0 {
		if lit, ok := Literal(rest[0]); ok {
			flags, _ = lit.(flow.HintFlags)
		}
	}
	set := flags.Set()
	if len(set) != 1 {
		return nil, ctx.hintError(flags, hs)
	}
	switch set[0] {
	case HintVariable:
		res := variableOf(hs.ConcreteType())
		ctx.setCause(res, "a hint variable=True")
		return res, nil
	case HintConcrete:
		c, ok := hs.(*Constant)
		if !ok {
			return nil, ctx.hintError(flags, hs)
		}
		for _, o := range c.Origins.Origins() {
			if err := o.SetFixed(); err != nil {
				return nil, err
			}
		}
		res := ctx.reorigin(c).(*Constant)
		res.EagerConcrete = true
		return res, nil
	case HintForget:
		if c, ok := hs.(*Constant); ok {
			res := ctx.reorigin(c).(*Constant)
			res.Literal, res.HasLiteral = nil, false
			return res, nil
		}
		return &Constant{T: hs.ConcreteType(), Origins: NewOriginSet(ctx.myOrigin())}, nil
	case HintPromote:
		return &Constant{T: hs.ConcreteType()}, nil
	case HintDeepfreeze:
		return Deepfreeze(hs), nil
	case HintGlobalMergePoint, HintReverseSplitQueue, HintAccessDirectly:
		return nil, nil
	}
	return nil, ctx.hintError(flags, hs)
}

func (ctx *Context) hintError(flags flow.HintFlags, hs AbstractValue) error {
	return tinct.Errorf(tinct.AnalysisError, "hint %s makes no sense on %s", flags, hs).
		WithCause(ctx.causeOf(hs))
}

// --- Fields and arrays -----------------------------------------------------

func stringLiteral(hs AbstractValue) string {
	if lit, ok := Literal(hs); ok {
		if s, ok := lit.(string); ok {
			return s
		}
	}
	return ""
}

func fieldType(hs AbstractValue, name string) (*flow.Type, error) {
	s := hs.ConcreteType().Target()
	if s == nil {
		return nil, tinct.Errorf(tinct.AnalysisError, "field access %s on non-pointer %s", name, hs)
	}
	ft, ok := s.FieldType(name)
	if !ok {
		return nil, tinct.Errorf(tinct.AnalysisError, "no field %s in %v", name, s)
	}
	return ft, nil
}

func itemType(hs AbstractValue) (*flow.Type, error) {
	a := hs.ConcreteType().Target()
	if a == nil || a.Item() == nil {
		return nil, tinct.Errorf(tinct.AnalysisError, "array access on %s", hs)
	}
	return a.Item(), nil
}

func varGetfield(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	ft, err := fieldType(hs, stringLiteral(rest[0]))
	if err != nil {
		return nil, err
	}
	res := withFrozen(variableOf(ft), hs.DeepFrozen())
	ctx.setCause(res, hs)
	return res, nil
}

// constGetfield reads a field of a Constant: the result is a Constant for
// immutable structs or deep-frozen receivers, a Variable otherwise.
func constGetfield(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	c := hs.(*Constant)
	name := stringLiteral(rest[0])
	ft, err := fieldType(hs, name)
	if err != nil {
		return nil, err
	}
	s := c.T.Target()
	if !s.Immutable() && !c.Frozen {
		res := variableOf(ft)
		ctx.setCause(res, "getfield on non-immutable "+s.String())
		return res, nil
	}
	o := ctx.myOrigin()
	res := &Constant{T: ft, Origins: c.Origins.With(o), EagerConcrete: c.EagerConcrete,
		MyOrigin: o, Frozen: c.Frozen}
	if inst, ok := c.Literal.(*flow.Instance); ok && c.HasLiteral {
		if v, ok := inst.Field(name); ok {
			res.Literal, res.HasLiteral = v, true
		}
	}
	return res, nil
}

func contGetfield(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	return hs.(*Container).def.readField(stringLiteral(rest[0]))
}

func contSetfield(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	return nil, hs.(*Container).def.generalizeField(stringLiteral(rest[0]), rest[1])
}

func varGetsubstruct(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	ft, err := fieldType(hs, stringLiteral(rest[0]))
	if err != nil {
		return nil, err
	}
	res := &Variable{T: flow.Ptr(ft), Frozen: hs.DeepFrozen()}
	ctx.setCause(res, hs)
	return res, nil
}

func constGetsubstruct(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	c := hs.(*Constant)
	name := stringLiteral(rest[0])
	ft, err := fieldType(hs, name)
	if err != nil {
		return nil, err
	}
	o := ctx.myOrigin()
	res := &Constant{T: flow.Ptr(ft), Origins: c.Origins.With(o), MyOrigin: o, Frozen: c.Frozen}
	if inst, ok := c.Literal.(*flow.Instance); ok && c.HasLiteral {
		if v, ok := inst.Field(name); ok {
			res.Literal, res.HasLiteral = v, true
		}
	}
	return res, nil
}

func constGetarraysize(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	c := hs.(*Constant)
	o := ctx.myOrigin()
	res := &Constant{T: flow.Signed, Origins: c.Origins.With(o), EagerConcrete: c.EagerConcrete, MyOrigin: o}
	if inst, ok := c.Literal.(*flow.Instance); ok && c.HasLiteral {
		res.Literal, res.HasLiteral = len(inst.Items), true
	}
	return res, nil
}

func varGetarrayitem(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	it, err := itemType(hs1)
	if err != nil {
		return nil, err
	}
	res := withFrozen(variableOf(it), hs1.DeepFrozen())
	ctx.setCause(res, hs1)
	return res, nil
}

func constGetarrayitem(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	c, index := hs1.(*Constant), hs2.(*Constant)
	it, err := itemType(hs1)
	if err != nil {
		return nil, err
	}
	a := c.T.Target()
	if !a.Immutable() && !c.Frozen {
		res := variableOf(it)
		ctx.setCause(res, "getarrayitem on non-immutable "+a.String())
		return res, nil
	}
	o := ctx.myOrigin()
	res := &Constant{T: it, Origins: c.Origins.Union(index.Origins).With(o),
		EagerConcrete: c.EagerConcrete, MyOrigin: o, Frozen: c.Frozen}
	if inst, ok := c.Literal.(*flow.Instance); ok && c.HasLiteral && index.HasLiteral {
		if i, ok := index.Literal.(int); ok {
			if v, ok := inst.Item(i); ok {
				res.Literal, res.HasLiteral = v, true
			}
		}
	}
	return res, nil
}

func contGetarrayitem(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	res := hs1.(*Container).def.readItem()
	return ctx.reorigin(res, res, hs2), nil
}

func varGetarraysubstruct(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	it, err := itemType(hs1)
	if err != nil {
		return nil, err
	}
	res := &Variable{T: flow.Ptr(it), Frozen: hs1.DeepFrozen()}
	ctx.setCause(res, []AbstractValue{hs1, hs2})
	return res, nil
}

func constGetarraysubstruct(ctx *Context, hs1, hs2 AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	c, index := hs1.(*Constant), hs2.(*Constant)
	it, err := itemType(hs1)
	if err != nil {
		return nil, err
	}
	o := ctx.myOrigin()
	return &Constant{T: flow.Ptr(it), Origins: c.Origins.Union(index.Origins).With(o),
		MyOrigin: o, Frozen: c.Frozen}, nil
}

// --- Interior access -------------------------------------------------------

// getinterior walks a path of field names and array indices.
func (ctx *Context) getinterior(hs AbstractValue, offsets []AbstractValue) (AbstractValue, error) {
	var err error
	for _, off := range offsets {
		if off.ConcreteType() == flow.Signed {
			hs, err = ctx.call2("getarraysubstruct", hs, off)
		} else {
			hs, err = ctx.call1("getsubstruct", hs, off)
		}
		if err != nil {
			return nil, err
		}
	}
	return hs, nil
}

func getinteriorfield(ctx *Context, hs AbstractValue, offsets []AbstractValue) (AbstractValue, error) {
	if len(offsets) == 0 {
		return nil, tinct.Errorf(tinct.AnalysisError, "getinteriorfield without offsets")
	}
	inner, err := ctx.getinterior(hs, offsets[:len(offsets)-1])
	if err != nil {
		return nil, err
	}
	last := offsets[len(offsets)-1]
	if last.ConcreteType() == flow.Signed {
		return ctx.call2("getarrayitem", inner, last)
	}
	return ctx.call1("getfield", inner, last)
}

func getinteriorarraysize(ctx *Context, hs AbstractValue, offsets []AbstractValue) (AbstractValue, error) {
	inner, err := ctx.getinterior(hs, offsets)
	if err != nil {
		return nil, err
	}
	return ctx.call1("getarraysize", inner)
}

func setinteriorfield(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	if len(rest) < 2 {
		return nil, tinct.Errorf(tinct.AnalysisError, "setinteriorfield without offsets")
	}
	inner, err := ctx.getinterior(hs, rest[:len(rest)-2])
	if err != nil {
		return nil, err
	}
	last, value := rest[len(rest)-2], rest[len(rest)-1]
	if last.ConcreteType() == flow.Signed {
		_, err = ctx.call2("setarrayitem", inner, last, value)
	} else {
		_, err = ctx.call1("setfield", inner, last, value)
	}
	return nil, err
}

// --- Pointer casts ---------------------------------------------------------

func varCastPointer(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	res := &Variable{T: ctx.currentOpType(), Frozen: hs.DeepFrozen()}
	ctx.setCause(res, hs)
	return res, nil
}

func constCastPointer(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	c := hs.(*Constant)
	o := ctx.myOrigin()
	return &Constant{T: ctx.currentOpType(), Origins: c.Origins.With(o), EagerConcrete: c.EagerConcrete,
		MyOrigin: o, Frozen: c.Frozen, Literal: c.Literal, HasLiteral: c.HasLiteral}, nil
}

func contCastPointer(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	t := ctx.currentOpType()
	if def, ok := hs.(*Container).def.cast(t.Target()); ok {
		return &Container{def: def}, nil
	}
	hs.(*Container).def.find().markDegenerated()
	res := &Variable{T: t}
	ctx.setCause(res, "cast of virtual "+hs.String()+" to "+t.String())
	return res, nil
}

// --- Allocation ------------------------------------------------------------

// malloc creates a virtual container, unless the policy or the type forbid it.
// The container of an allocation site is reused whenever the site is analyzed
// again.
func malloc(ctx *Context, args []AbstractValue) (AbstractValue, error) {
	var t *flow.Type
	if len(args) > 0 {
		if lit, ok := Literal(args[0]); ok {
			t, _ = lit.(*flow.Type)
		}
	}
	if t == nil || !t.IsContainer() {
		return nil, tinct.Errorf(tinct.UnsupportedConstruct, "allocation of non-container")
	}
	if ctx.policy.NoVirtualContainer || t.Virtualizable() {
		return &Variable{T: flow.Ptr(t)}, nil
	}
	def, ok := ctx.containers[ctx.current]
	if !ok {
		def = newContentDef(ctx, t, nil, "")
		ctx.containers[ctx.current] = def
	}
	return &Container{def: def.find()}, nil
}
