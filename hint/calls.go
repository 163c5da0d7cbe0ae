package hint

import (
	"fmt"

	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
)

// directCall handles a call through a constant function pointer.
func directCall(ctx *Context, hs AbstractValue, args []AbstractValue) (AbstractValue, error) {
	fn, ok := hs.(*Constant).Literal.(*flow.Func)
	if !ok {
		return nil, tinct.Errorf(tinct.UnsupportedConstruct, "direct call through %s", hs)
	}
	restype := ctx.currentOpType()
	if ctx.policy.Oopspec && fn.OopSpec != "" {
		spec, err := flow.ParseOopSpec(fn)
		if err == nil {
			return ctx.oopspecCall(spec, args, restype), nil
		}
		tracer().Infof("ignoring oopspec: %v", err)
	}
	if fn.Graph == nil || !ctx.policy.LookInside(fn.Graph) {
		return ctx.cannotFollow(fn, args, restype), nil
	}
	if fn.Graph == ctx.entry {
		res := variableOf(restype)
		ctx.setCause(res, "recursive call from the entry point to itself")
		return res, nil
	}
	origin := ctx.myOrigin().asCall()
	fixed := origin.ReadFixed()
	res, target, err := ctx.graphCall(fn.Graph, fixed, args, hs)
	if err != nil {
		return nil, err
	}
	ctx.callTargets[ctx.currentOp()] = []*flow.Graph{target}
	return ctx.callResult(origin, res)
}

// indirectCall handles a call through a function pointer with a list of
// possible targets, which are joined into one call family.
func indirectCall(ctx *Context, hs AbstractValue, rest []AbstractValue) (AbstractValue, error) {
	restype := ctx.currentOpType()
	if len(rest) == 0 {
		return nil, tinct.Errorf(tinct.UnsupportedConstruct, "indirect call without target list")
	}
	lit, _ := Literal(rest[len(rest)-1])
	graphs, _ := lit.([]*flow.Graph)
	args := rest[:len(rest)-1]
	if len(graphs) == 0 {
		res := variableOf(restype)
		ctx.setCause(res, "an indirect call to unknown targets")
		delete(ctx.callTargets, ctx.currentOp())
		return res, nil
	}
	origin := ctx.myOrigin().asCall()
	fixed := origin.ReadFixed()
	targets := make([]*flow.Graph, 0, len(graphs))
	results := make([]AbstractValue, 0, len(graphs))
	for _, g := range graphs {
		res, target, err := ctx.graphCall(g, fixed, args, hs)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
		results = append(results, res)
	}
	ctx.ResolveFamily(targets)
	ctx.callTargets[ctx.currentOp()] = targets
	res, err := UnionAll(results...)
	if err != nil {
		return nil, err
	}
	return ctx.callResult(origin, res)
}

// callResult tags a call result with the call origin and makes sure the
// result never becomes less general than in a previous analysis pass.
func (ctx *Context) callResult(origin *Origin, res AbstractValue) (AbstractValue, error) {
	if c, ok := res.(*Constant); ok {
		c = c.clone()
		c.MyOrigin = origin
		res = c
	}
	return Union(res, ctx.currentOpBinding())
}

// graphCall analyzes a call to a single graph. It specializes the graph for
// the arguments, schedules the specialized graph and returns the current
// value of its return variable, together with the specialized graph.
func (ctx *Context) graphCall(g *flow.Graph, fixed bool, args []AbstractValue, hsCallable AbstractValue) (AbstractValue, *flow.Graph, error) {
	if len(args) != len(g.Args()) {
		return nil, nil, tinct.Errorf(tinct.AnalysisError, "%s takes %d arguments, got %d",
			g.Name, len(g.Args()), len(args))
	}
	target, inputs, recursive := ctx.spec.specialize(g, fixed, args)
	res, err := ctx.ann.recursiveCall(target, inputs)
	if err != nil {
		return nil, nil, err
	}
	// fixing an input argument within the callee fixes the caller's argument
	for i, arg := range args {
		if c, ok := arg.(*Constant); ok && c.T != flow.Void {
			if ctx.inputArgOrigin(target, i).ReadFixed() {
				for _, o := range c.Origins.Origins() {
					if err := o.SetFixed(); err != nil {
						return nil, nil, err
					}
				}
			}
		}
	}
	if recursive && res == nil {
		v := variableOf(ctx.currentOpType())
		ctx.setCause(v, "recursive specialization of "+g.Name)
		return v, target, nil
	}
	if res == nil {
		return nil, nil, errBlocked
	}
	if c, ok := res.(*Constant); ok {
		deps := []AbstractValue{hsCallable}
		for i, arg := range args {
			if c.Origins.Contains(ctx.inputArgOrigin(target, i)) {
				deps = append(deps, arg)
			}
		}
		if fixed {
			for _, o := range c.Origins.Origins() {
				if err := o.SetFixed(); err != nil {
					return nil, nil, err
				}
			}
		}
		res = ctx.reorigin(c, deps...)
	}
	return res, target, nil
}

// cannotFollow is the rule for calls the analysis does not look into. Calls
// to pure functions with all-Constant arguments are treated like operations.
func (ctx *Context) cannotFollow(fn *flow.Func, args []AbstractValue, restype *flow.Type) AbstractValue {
	pure := ctx.isPureFunc(fn)
	origins := OriginSet{}
	for _, hs := range args {
		c, ok := hs.(*Constant)
		if !ok {
			pure = false
			break
		}
		origins = origins.Union(c.Origins)
	}
	delete(ctx.callTargets, ctx.currentOp())
	if !pure {
		res := variableOf(restype)
		ctx.setCause(res, "non-pure residual call to "+fn.Name)
		return res
	}
	o := ctx.myOrigin()
	return &Constant{T: restype, Origins: origins.With(o), MyOrigin: o}
}

// oopspecCall is the rule for built-in high-level operations: methods on
// deep-frozen receivers with all-Constant arguments are constant-foldable,
// everything else is red.
func (ctx *Context) oopspecCall(spec *flow.OopSpec, args []AbstractValue, restype *flow.Type) AbstractValue {
	delete(ctx.callTargets, ctx.currentOp())
	opArgs := make([]AbstractValue, 0, len(spec.Args))
	for _, a := range spec.Args {
		if a.Param < 0 || a.Param >= len(args) {
			opArgs = append(opArgs, literalConst(flow.Signed, a.Literal))
		} else {
			opArgs = append(opArgs, args[a.Param])
		}
	}
	isMethod := spec.IsMethod()
	frozen := isMethod && opArgs[0].DeepFrozen()
	var cause interface{} = fmt.Sprintf("oopspec call to %s()", spec.Name())
	if isMethod && frozen {
		origins := OriginSet{}
		allConst := true
		for _, hs := range opArgs {
			c, ok := hs.(*Constant)
			if !ok {
				allConst = false
				break
			}
			origins = origins.Union(c.Origins)
		}
		if allConst {
			o := ctx.myOrigin()
			return &Constant{T: restype, Origins: origins.With(o), MyOrigin: o, Frozen: frozen}
		}
		cause = opArgs
	}
	res := withFrozen(variableOf(restype), frozen)
	ctx.setCause(res, cause)
	return res
}

// isPureFunc checks if a function has no side effects.
func (ctx *Context) isPureFunc(fn *flow.Func) bool {
	if fn.Pure || ctx.policy.isDeclaredPure(fn.Name) {
		return true
	}
	if fn.Graph == nil {
		return false
	}
	return ctx.IsPureGraph(fn.Graph)
}

// IsPureGraph is true if neither a graph nor any graph it calls has side
// effects. Recursive calls are assumed to be pure.
func (ctx *Context) IsPureGraph(g *flow.Graph) bool {
	g = ctx.Original(g)
	if pure, ok := ctx.pureCache[g]; ok {
		return pure
	}
	ctx.pureCache[g] = true
	pure := ctx.analyzePurity(g)
	ctx.pureCache[g] = pure
	return pure
}

func (ctx *Context) analyzePurity(g *flow.Graph) bool {
	for _, b := range g.Blocks() {
		for _, op := range b.Operations {
			switch op.Name {
			case "direct_call":
				c, ok := op.Args[0].(*flow.Constant)
				if !ok {
					return false
				}
				fn, ok := c.Value.(*flow.Func)
				if !ok || !ctx.isPureFunc(fn) {
					return false
				}
			case "indirect_call":
				c, _ := op.Args[len(op.Args)-1].(*flow.Constant)
				var graphs []*flow.Graph
				if c != nil {
					graphs, _ = c.Value.([]*flow.Graph)
				}
				if len(graphs) == 0 {
					return false
				}
				for _, callee := range graphs {
					if !ctx.IsPureGraph(callee) {
						return false
					}
				}
			default:
				if llop, ok := flow.LookupOp(op.Name); !ok || llop.SideEffects {
					return false
				}
			}
		}
	}
	return true
}

// IsGreenCall is true if a call can be computed completely at compile time:
// all arguments are green and every target is pure.
func (ctx *Context) IsGreenCall(op *flow.Operation) bool {
	for _, v := range op.Args {
		if !ctx.IsGreen(v) {
			return false
		}
	}
	targets := ctx.callTargets[op]
	if len(targets) == 0 {
		if fn := CalledFunc(op); fn != nil {
			return ctx.isPureFunc(fn)
		}
		return false
	}
	for _, g := range targets {
		if !ctx.IsPureGraph(g) {
			return false
		}
	}
	return true
}

// CalledFunc returns the function object of a direct call, or nil.
func CalledFunc(op *flow.Operation) *flow.Func {
	if op.Name != "direct_call" || len(op.Args) == 0 {
		return nil
	}
	if c, ok := op.Args[0].(*flow.Constant); ok {
		fn, _ := c.Value.(*flow.Func)
		return fn
	}
	return nil
}
