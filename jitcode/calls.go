package jitcode

import (
	"fmt"
	"strings"

	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
	"github.com/npillmayer/tinct/hint"
)

type callKind string

// Kinds of calls. Red, gray and yellow calls go to graphs with bytecode of
// their own; the name is the calling color of the target.
const (
	greenCall    callKind = "green"
	redCall      callKind = "red"
	grayCall     callKind = "gray"
	yellowCall   callKind = "yellow"
	oopspecCall  callKind = "oopspec"
	vableCall    callKind = "vable"
	residualCall callKind = "residual"
	raiseCall    callKind = "rpyexc_raise"
)

// callArgs returns the argument operands of a call, without the function and,
// for indirect calls, without the list of targets.
func callArgs(op *flow.Operation) []flow.Value {
	if op.Name == "indirect_call" {
		return op.Args[1 : len(op.Args)-1]
	}
	return op.Args[1:]
}

// guessCallKind decides how a call is compiled. It also reports whether the
// callee may raise.
func (w *writer) guessCallKind(op *flow.Operation) (callKind, bool) {
	if fn := hint.CalledFunc(op); fn != nil {
		if fn.CallKind != "" {
			return callKind(fn.CallKind), false
		}
		if fn.OopSpec != "" && w.ctx.Policy().Oopspec {
			withexc := w.c.canRaise(op)
			if strings.HasPrefix(fn.OopSpec, "vable.") {
				return vableCall, withexc
			}
			if op.Result.Type != flow.Void && w.ctx.IsGreen(op.Result) {
				return greenCall, withexc
			}
			return oopspecCall, withexc
		}
	}
	if w.ctx.IsGreenCall(op) {
		return greenCall, false
	}
	withexc := w.c.canRaise(op)
	if op.Name == "indirect_call" && !w.ctx.IsGreen(op.Args[0]) {
		return residualCall, withexc
	}
	targets := w.ctx.CallTargets(op)
	if len(targets) == 0 {
		return residualCall, withexc
	}
	kind := callKind(w.c.callingColor(targets[0]))
	for _, g := range targets[1:] {
		if c := callKind(w.c.callingColor(g)); c != kind {
			// families are unified by the analysis
			panic(fmt.Sprintf("call targets of %s have calling colors %s and %s", op, kind, c))
		}
	}
	return kind, withexc
}

func (w *writer) serializeCall(op *flow.Operation) {
	kind, withexc := w.guessCallKind(op)
	tracer().Debugf("%s is a %s call", op, kind)
	switch kind {
	case greenCall:
		w.greenCall(op)
	case redCall, grayCall, yellowCall:
		if op.Name == "indirect_call" {
			w.indirectCall(op, kind)
		} else {
			w.directCall(op, kind)
		}
	case residualCall:
		w.residualCall(op, withexc)
	case oopspecCall:
		w.oopspecCall(op, withexc)
	case vableCall:
		w.vableCall(op, withexc)
	case raiseCall:
		args := w.redArgs(op.Args[1:])
		w.asm.op("setexception")
		w.counted(args)
	default:
		w.fail(tinct.UnsupportedConstruct, "unknown call kind %q", kind)
	}
}

// redArgs places the non-Void operands in red registers.
func (w *writer) redArgs(vals []flow.Value) []int {
	var positions []int
	for _, v := range vals {
		if v.ConcreteType() != flow.Void {
			positions = append(positions, w.oparg(tinct.Red, v))
		}
	}
	return positions
}

// argsOfCall sorts call arguments by the color of the callee's parameters.
func (w *writer) argsOfCall(args []flow.Value, params []*flow.Variable) ([]int, []int) {
	byColor := make([]flow.Value, len(params))
	for i, p := range params {
		byColor[i] = p
	}
	if len(byColor) != len(args) {
		w.fail(tinct.UnsupportedConstruct, "call passes %d arguments to %d parameters", len(args), len(byColor))
	}
	reds, greens := w.sortByColor(args, byColor)
	return w.opargs(tinct.Green, greens), w.opargs(tinct.Red, reds)
}

func (w *writer) greenCall(op *flow.Operation) {
	fnptr := op.Args[0]
	var voidargs []string
	var args []int
	for _, a := range callArgs(op) {
		if a.ConcreteType() == flow.Void {
			if c, ok := a.(*flow.Constant); ok {
				voidargs = append(voidargs, fmt.Sprintf("%v", wireValue(c.Value)))
			}
			continue
		}
		args = append(args, w.oparg(tinct.Green, a))
	}
	fn := w.oparg(tinct.Green, fnptr)
	desc := w.calldescPosition(fnptr.ConcreteType().Target(), voidargs)
	w.asm.op("green_direct_call")
	w.asm.ints(fn, desc)
	w.counted(args)
	w.registerResult(op.Result, tinct.Green)
}

func (w *writer) directCall(op *flow.Operation, kind callKind) {
	targets := w.ctx.CallTargets(op)
	if len(targets) != 1 {
		w.defect("direct call resolved to %d graphs", len(targets))
	}
	target := targets[0]
	index := w.graphPosition(target)
	greens, reds := w.argsOfCall(callArgs(op), target.Args())
	prefix := "red"
	if kind == yellowCall {
		prefix = "yellow"
	}
	w.asm.op(prefix + "_direct_call")
	w.counted(greens)
	w.counted(reds)
	w.asm.ints(index)
	w.afterCall(op, kind)
}

func (w *writer) indirectCall(op *flow.Operation, kind callKind) {
	targets := w.ctx.CallTargets(op)
	indices := make([]int, len(targets))
	for i, g := range targets {
		indices[i] = w.graphPosition(g)
	}
	greens, reds := w.argsOfCall(callArgs(op), targets[0].Args())
	fn := w.oparg(tinct.Green, op.Args[0])
	prefix := "red"
	if kind == yellowCall {
		prefix = "yellow"
	}
	w.asm.op(prefix + "_indirect_call")
	w.counted(greens)
	w.counted(reds)
	w.asm.ints(fn)
	w.counted(indices)
	w.afterCall(op, kind)
}

func (w *writer) afterCall(op *flow.Operation, kind callKind) {
	switch kind {
	case redCall:
		w.registerResult(op.Result, tinct.Red)
		w.asm.op("red_after_direct_call")
	case grayCall:
		w.asm.op("red_after_direct_call")
	case yellowCall:
		w.asm.op("yellow_after_direct_call")
		w.asm.op("yellow_retrieve_result")
		w.registerResult(op.Result, tinct.Green)
	}
}

// residualCall emits a call which is not followed at specialization time.
// Its flags are promoted, so the exception state of the call is known when
// specialization continues. residual_fetch always checks for an exception;
// withexc only tells the call whether to record one.
func (w *writer) residualCall(op *flow.Operation, withexc bool) {
	fnptr := op.Args[0]
	args := w.redArgs(callArgs(op))
	fn := w.oparg(tinct.Red, fnptr)
	desc := w.calldescPosition(fnptr.ConcreteType().Target(), nil)
	w.asm.op("red_residual_call")
	w.asm.ints(fn, desc)
	w.asm.flag(withexc)
	w.counted(args)
	w.registerResult(op.Result, tinct.Red)
	flags := w.registerRed(regKey{op: op, tag: "flags"}, true)
	w.asm.op("promote")
	w.asm.ints(flags, w.promotionDescPosition(flow.Signed))
	flagpos := w.registerGreen(regKey{op: op, tag: "flags"}, true)
	w.asm.op("residual_fetch")
	w.asm.flag(true)
	w.asm.ints(flagpos)
}

func (w *writer) oopspecCall(op *flow.Operation, withexc bool) {
	fn := hint.CalledFunc(op)
	spec, err := flow.ParseOopSpec(fn)
	if err != nil {
		w.fail(tinct.UnsupportedConstruct, "%v", err)
	}
	desc := w.oopspecDescPosition(fn, spec, withexc)
	opargs := op.Args[1:]
	args := make([]int, len(spec.Args))
	for i, a := range spec.Args {
		var v flow.Value
		if a.Param >= 0 {
			if a.Param >= len(opargs) {
				w.fail(tinct.UnsupportedConstruct, "oopspec of %s refers to missing argument %d", fn.Name, a.Param)
			}
			v = opargs[a.Param]
		} else {
			v = w.literal(a.Literal)
		}
		args[i] = w.oparg(tinct.Red, v)
	}
	deepfrozen := false
	if spec.IsMethod() && spec.Args[0].Param >= 0 {
		deepfrozen = w.deepFrozen(opargs[spec.Args[0].Param])
	}
	prefix := oopspecPrefix
	if op.Result.Type == flow.Void {
		prefix = oopspecNoResultPrefix
	}
	w.asm.op(fmt.Sprintf("%s%d", prefix, len(args)))
	w.asm.ints(desc)
	w.asm.flag(deepfrozen)
	w.asm.ints(args...)
	w.registerResult(op.Result, tinct.Red)
}

func (w *writer) vableCall(op *flow.Operation, withexc bool) {
	fn := hint.CalledFunc(op)
	spec, err := flow.ParseOopSpec(fn)
	if err != nil {
		w.fail(tinct.UnsupportedConstruct, "%v", err)
	}
	desc := w.oopspecDescPosition(fn, spec, withexc)
	args := w.redArgs(op.Args[1:])
	w.asm.op("vable_call")
	w.asm.ints(desc)
	w.counted(args)
	w.registerResult(op.Result, tinct.Red)
}
