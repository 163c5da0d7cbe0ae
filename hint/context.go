package hint

import (
	"fmt"
	"strings"

	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
)

// position identifies an operation within a block.
type position struct {
	block *flow.Block
	index int
}

// Context is an analysis session. It owns all bindings, origins, call families
// and specialized graphs. A Context may not be used concurrently.
type Context struct {
	policy          Policy
	ann             *annotator
	families        *families
	spec            *specializer
	positions       []position
	serials         map[position]int
	current         int // serial of the position under analysis, or -1
	origins         map[int]*Origin
	originList      []*Origin
	inputArgOrigins map[inputArgKey]*Origin
	containers      map[int]*ContentDef
	causes          map[AbstractValue]interface{}
	callTargets     map[*flow.Operation][]*flow.Graph
	pureCache       map[*flow.Graph]bool
	originals       map[*flow.Graph]*flow.Graph
	graphIndex      map[*flow.Graph]int
	graphs          []*flow.Graph
	entry           *flow.Graph
	live            map[*flow.Graph]bool
	nextOriginID    int
}

type inputArgKey struct {
	graph *flow.Graph
	i     int
}

// NewContext creates an analysis session.
func NewContext(policy Policy) *Context {
	if policy.MaxSpecializations <= 0 {
		policy.MaxSpecializations = DefaultPolicy().MaxSpecializations
	}
	ctx := &Context{
		policy:          policy,
		serials:         make(map[position]int),
		current:         -1,
		origins:         make(map[int]*Origin),
		inputArgOrigins: make(map[inputArgKey]*Origin),
		containers:      make(map[int]*ContentDef),
		causes:          make(map[AbstractValue]interface{}),
		callTargets:     make(map[*flow.Operation][]*flow.Graph),
		pureCache:       make(map[*flow.Graph]bool),
		originals:       make(map[*flow.Graph]*flow.Graph),
		graphIndex:      make(map[*flow.Graph]int),
	}
	ctx.ann = newAnnotator(ctx)
	ctx.families = newFamilies(ctx)
	ctx.spec = newSpecializer(ctx)
	return ctx
}

// Policy returns the annotation policy of the session.
func (ctx *Context) Policy() Policy {
	return ctx.policy
}

// Annotate runs the analysis for an entry graph. args are the abstract values
// of the entry graph's input arguments. After Annotate returned without error,
// every variable of every live graph is bound.
func (ctx *Context) Annotate(entry *flow.Graph, args ...AbstractValue) error {
	if ctx.entry != nil {
		return tinct.Errorf(tinct.AnalysisError, "context already used for %s", ctx.entry.Name)
	}
	if len(args) != len(entry.Args()) {
		return tinct.Errorf(tinct.AnalysisError, "graph %s takes %d arguments, got %d",
			entry.Name, len(entry.Args()), len(args))
	}
	ctx.entry = entry
	ctx.registerGraph(entry, entry)
	ctx.families.find(entry)
	tracer().Infof("annotating %s", entry.Name)
	if err := ctx.ann.addPendingBlock(entry, entry.StartBlock, args); err != nil {
		return err
	}
	if err := ctx.ann.complete(); err != nil {
		return err
	}
	return ctx.computeAtFixpoint()
}

// Entry returns the entry graph of the session.
func (ctx *Context) Entry() *flow.Graph {
	return ctx.entry
}

// Binding returns the abstract value of a flow value. Flow constants are
// bound to immutable Constants. Unbound variables return nil.
func (ctx *Context) Binding(v flow.Value) AbstractValue {
	switch x := v.(type) {
	case *flow.Variable:
		if hs, ok := ctx.ann.bindings[x]; ok {
			return hs
		}
		return nil
	case *flow.Constant:
		return immutableValue(x)
	}
	return nil
}

// IsGreen is true if a flow value is known at specialization time.
// Unbound variables count as green.
func (ctx *Context) IsGreen(v flow.Value) bool {
	hs := ctx.Binding(v)
	return hs == nil || hs.IsGreen()
}

// CallTargets returns the (specialized) graphs a call operation was resolved
// to during the last analysis pass of its position.
func (ctx *Context) CallTargets(op *flow.Operation) []*flow.Graph {
	return ctx.callTargets[op]
}

// Graphs returns all graphs reachable from the entry graph through call
// targets, entry first.
func (ctx *Context) Graphs() []*flow.Graph {
	var graphs []*flow.Graph
	for _, g := range ctx.graphs {
		if ctx.isLive(g) {
			graphs = append(graphs, g)
		}
	}
	return graphs
}

// Original returns the graph a specialized graph was copied from.
func (ctx *Context) Original(g *flow.Graph) *flow.Graph {
	if o, ok := ctx.originals[g]; ok {
		return o
	}
	return g
}

// Specializations returns the specialized copies of an original graph, in
// order of creation.
func (ctx *Context) Specializations(g *flow.Graph) []*flow.Graph {
	return ctx.spec.copies[g]
}

// ResolveFamily joins a list of call targets into a single call family and
// returns the family's representative and members.
func (ctx *Context) ResolveFamily(targets []*flow.Graph) (*flow.Graph, []*flow.Graph) {
	if len(targets) == 0 {
		return nil, nil
	}
	rep, fam := ctx.families.find(targets[0])
	for _, g := range targets[1:] {
		rep, fam = ctx.families.union(rep, g)
	}
	return rep, fam.graphs()
}

// GreenCandidate creates a Constant for an argument of the entry graph. It is
// green only if something fixes it during analysis.
func (ctx *Context) GreenCandidate(t *flow.Type) *Constant {
	o := &Origin{ID: ctx.newOriginID(), ctx: ctx}
	return &Constant{T: t, Origins: NewOriginSet(o)}
}

// RedArg creates a Variable for an argument of the entry graph.
func RedArg(t *flow.Type) AbstractValue {
	return variableOf(t)
}

// Cause explains why a variable is red.
func (ctx *Context) Cause(v *flow.Variable) string {
	hs := ctx.Binding(v)
	if hs == nil {
		return ""
	}
	var b strings.Builder
	ctx.renderCause(&b, ctx.causes[hs], 0)
	return b.String()
}

func (ctx *Context) renderCause(b *strings.Builder, cause interface{}, depth int) {
	if cause == nil || depth > 8 {
		return
	}
	if depth > 0 {
		b.WriteString("\n  caused by ")
	}
	switch c := cause.(type) {
	case string:
		b.WriteString(c)
	case AbstractValue:
		b.WriteString(c.String())
		ctx.renderCause(b, ctx.causes[c], depth+1)
	case []AbstractValue:
		parts := make([]string, len(c))
		for i, hs := range c {
			parts[i] = hs.String()
		}
		b.WriteString("(" + strings.Join(parts, ", ") + ")")
		for _, hs := range c {
			if next, ok := ctx.causes[hs]; ok {
				ctx.renderCause(b, next, depth+1)
				break
			}
		}
	default:
		fmt.Fprintf(b, "%v", c)
	}
}

func (ctx *Context) setCause(hs AbstractValue, cause interface{}) {
	if hs == nil || cause == nil {
		return
	}
	if _, ok := hs.(*Variable); !ok {
		return
	}
	ctx.causes[hs] = cause
}

func (ctx *Context) causeOf(hs AbstractValue) string {
	c, ok := ctx.causes[hs]
	if !ok {
		return ""
	}
	var b strings.Builder
	ctx.renderCause(&b, c, 1)
	return b.String()
}

// --- Positions and origins -------------------------------------------------

func (ctx *Context) positionSerial(blk *flow.Block, index int) int {
	p := position{block: blk, index: index}
	if serial, ok := ctx.serials[p]; ok {
		return serial
	}
	serial := len(ctx.positions)
	ctx.positions = append(ctx.positions, p)
	ctx.serials[p] = serial
	return serial
}

func (ctx *Context) currentOp() *flow.Operation {
	if ctx.current < 0 {
		return nil
	}
	p := ctx.positions[ctx.current]
	return p.block.Operations[p.index]
}

func (ctx *Context) currentGraph() *flow.Graph {
	if ctx.current < 0 {
		return nil
	}
	return ctx.ann.blockGraph[ctx.positions[ctx.current].block]
}

func (ctx *Context) newOriginID() int {
	ctx.nextOriginID++
	return ctx.nextOriginID
}

// myOrigin returns the origin of the operation under analysis.
func (ctx *Context) myOrigin() *Origin {
	if o, ok := ctx.origins[ctx.current]; ok {
		return o
	}
	o := &Origin{ID: ctx.newOriginID(), ctx: ctx}
	if ctx.current >= 0 {
		o.op = ctx.currentOp()
		o.graph = ctx.currentGraph()
		ctx.origins[ctx.current] = o
		ctx.originList = append(ctx.originList, o)
	}
	return o
}

func (ctx *Context) inputArgOrigin(g *flow.Graph, i int) *Origin {
	key := inputArgKey{graph: g, i: i}
	if o, ok := ctx.inputArgOrigins[key]; ok {
		return o
	}
	o := &Origin{ID: ctx.newOriginID(), Kind: InputArgOrigin, ctx: ctx, graph: g, argIndex: i}
	ctx.inputArgOrigins[key] = o
	ctx.originList = append(ctx.originList, o)
	return o
}

func (ctx *Context) registerGraph(g, original *flow.Graph) {
	if _, ok := ctx.graphIndex[g]; ok {
		return
	}
	ctx.graphIndex[g] = len(ctx.graphs)
	ctx.graphs = append(ctx.graphs, g)
	if g != original {
		ctx.originals[g] = original
	}
}

// currentOpBinding returns the binding of the result of the operation under
// analysis, if any.
func (ctx *Context) currentOpBinding() AbstractValue {
	op := ctx.currentOp()
	if op == nil || op.Result == nil {
		return nil
	}
	return ctx.ann.bindings[op.Result]
}

// currentOpType returns the result type of the operation under analysis.
func (ctx *Context) currentOpType() *flow.Type {
	op := ctx.currentOp()
	if op == nil || op.Result == nil {
		return flow.Void
	}
	return op.Result.Type
}

// errorAt decorates an error with the current position.
func (ctx *Context) errorAt(err *tinct.Error) *tinct.Error {
	if ctx.current < 0 || err.Block != "" {
		return err
	}
	p := ctx.positions[ctx.current]
	g := ctx.ann.blockGraph[p.block]
	gname := ""
	if g != nil {
		gname = g.Name
	}
	return err.At(gname, p.block.String(), p.block.Operations[p.index].String())
}
