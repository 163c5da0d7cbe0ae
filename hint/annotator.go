package hint

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/npillmayer/schuko/gconf"
	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
)

// errBlocked signals that an operation cannot be analyzed yet, because one of
// its inputs is still unbound.
var errBlocked = errors.New("blocked inference")

// annotator is the fixpoint driver. Blocks are analyzed from a worklist until
// no binding changes any more.
type annotator struct {
	ctx        *Context
	bindings   map[*flow.Variable]AbstractValue
	pending    *arraylist.List // of *flow.Block
	scheduled  map[*flow.Block]bool
	blockGraph map[*flow.Block]*flow.Graph
	annotated  map[*flow.Block]bool
	flowing    map[*flow.Block]bool
	blocked    map[*flow.Block]int          // blocked blocks with index of blocked operation
	notify     map[*flow.Block]map[int]bool // return block -> call positions
}

func newAnnotator(ctx *Context) *annotator {
	return &annotator{
		ctx:        ctx,
		bindings:   make(map[*flow.Variable]AbstractValue),
		pending:    arraylist.New(),
		scheduled:  make(map[*flow.Block]bool),
		blockGraph: make(map[*flow.Block]*flow.Graph),
		annotated:  make(map[*flow.Block]bool),
		flowing:    make(map[*flow.Block]bool),
		blocked:    make(map[*flow.Block]int),
		notify:     make(map[*flow.Block]map[int]bool),
	}
}

func (ann *annotator) schedule(b *flow.Block) {
	if !ann.scheduled[b] {
		ann.scheduled[b] = true
		ann.pending.Add(b)
	}
}

// complete processes the worklist until it is empty. Blocks which are still
// blocked afterwards are an error.
func (ann *annotator) complete() error {
	for !ann.pending.Empty() {
		v, _ := ann.pending.Get(0)
		ann.pending.Remove(0)
		b := v.(*flow.Block)
		delete(ann.scheduled, b)
		if err := ann.flowBlock(b); err != nil {
			return err
		}
	}
	if len(ann.blocked) == 0 {
		return nil
	}
	var positions []string
	for b, i := range ann.blocked {
		positions = append(positions, fmt.Sprintf("%s of %s: %s", b, ann.blockGraph[b], b.Operations[i]))
	}
	sort.Strings(positions)
	err := tinct.Errorf(tinct.AnalysisError, "%d blocked block(s)", len(positions)).
		WithCause(strings.Join(positions, "\n"))
	if gconf.GetBool("panic-on-blocked-analysis") {
		panic(err)
	}
	return err
}

// flowBlock analyzes the operations of a block and propagates the bindings of
// its exits.
func (ann *annotator) flowBlock(b *flow.Block) error {
	ctx := ann.ctx
	g := ann.blockGraph[b]
	ann.flowing[b] = true
	saved := ctx.current
	defer func() {
		delete(ann.flowing, b)
		ctx.current = saved
	}()
	for i, op := range b.Operations {
		ctx.current = ctx.positionSerial(b, i)
		err := ann.consider(op)
		if err == errBlocked {
			tracer().Debugf("%s of %s blocked at %s", b, g, op)
			ann.blocked[b] = i
			return nil
		}
		if err != nil {
			var e *tinct.Error
			if errors.As(err, &e) {
				return ctx.errorAt(e)
			}
			return err
		}
	}
	delete(ann.blocked, b)
	ctx.current = -1
	for _, link := range b.Exits {
		cells := make([]AbstractValue, len(link.Args))
		for j, a := range link.Args {
			if cells[j] = ctx.Binding(a); cells[j] == nil {
				return tinct.Errorf(tinct.AnalysisError, "unbound %s on %s", a, link).At(g.Name, b.String(), "")
			}
		}
		if err := ann.addPendingBlock(g, link.Target, cells); err != nil {
			return err
		}
	}
	if b.IsReturnBlock() {
		var serials []int
		for serial := range ann.notify[b] {
			serials = append(serials, serial)
		}
		sort.Ints(serials)
		for _, serial := range serials {
			ann.reschedulePosition(serial)
		}
	}
	return nil
}

// consider analyzes a single operation and binds its result.
func (ann *annotator) consider(op *flow.Operation) error {
	args := make([]AbstractValue, len(op.Args))
	for i, a := range op.Args {
		if args[i] = ann.ctx.Binding(a); args[i] == nil {
			return errBlocked
		}
	}
	res, err := ann.ctx.dispatch(op.Name, args)
	if err != nil {
		return err
	}
	if op.Result == nil {
		return nil
	}
	if res == nil {
		if op.Result.Type == flow.Void || len(args) == 0 {
			res = variableOf(op.Result.Type)
		} else {
			res = args[0]
		}
	}
	ann.bindings[op.Result] = res
	return nil
}

// addPendingBlock merges the values of a block's input arguments and
// schedules the block if anything changed.
func (ann *annotator) addPendingBlock(g *flow.Graph, b *flow.Block, cells []AbstractValue) error {
	if len(cells) != len(b.InputArgs) {
		return tinct.Errorf(tinct.AnalysisError, "%s takes %d input args, got %d",
			b, len(b.InputArgs), len(cells)).At(g.Name, b.String(), "")
	}
	ann.blockGraph[b] = g
	if !ann.annotated[b] {
		for i, v := range b.InputArgs {
			ann.bindings[v] = cells[i]
		}
		ann.annotated[b] = true
		ann.schedule(b)
		return nil
	}
	changed := false
	for i, v := range b.InputArgs {
		old := ann.bindings[v]
		u, err := Union(old, cells[i])
		if err != nil {
			var e *tinct.Error
			if errors.As(err, &e) {
				e.At(g.Name, b.String(), "input arg "+v.Name)
			}
			return err
		}
		if !Equal(u, old) {
			ann.bindings[v] = u
			changed = true
		}
	}
	if changed {
		ann.schedule(b)
	}
	return nil
}

// recursiveCall registers the current position to be notified when the
// return block of g changes, generalizes the input args of g and returns the
// current value of g's return variable, or nil.
func (ann *annotator) recursiveCall(g *flow.Graph, inputs []AbstractValue) (AbstractValue, error) {
	if serial := ann.ctx.current; serial >= 0 {
		m, ok := ann.notify[g.ReturnBlock]
		if !ok {
			m = make(map[int]bool)
			ann.notify[g.ReturnBlock] = m
		}
		m[serial] = true
	}
	if err := ann.addPendingBlock(g, g.StartBlock, inputs); err != nil {
		return nil, err
	}
	return ann.bindings[g.ReturnVar()], nil
}

// reflowFromPosition analyzes the block of a position again, before
// returning. A block which is under analysis is scheduled instead.
func (ann *annotator) reflowFromPosition(serial int) error {
	b := ann.ctx.positions[serial].block
	if !ann.annotated[b] {
		return nil
	}
	if ann.flowing[b] {
		ann.schedule(b)
		return nil
	}
	tracer().Debugf("reflowing %s of %s", b, ann.blockGraph[b])
	return ann.flowBlock(b)
}

// reschedulePosition schedules the block of a position.
func (ann *annotator) reschedulePosition(serial int) {
	b := ann.ctx.positions[serial].block
	if ann.annotated[b] {
		ann.schedule(b)
	}
}
