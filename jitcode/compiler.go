package jitcode

import (
	"github.com/emirpasic/gods/stacks/arraystack"
	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
	"github.com/npillmayer/tinct/hint"
)

// Compiler translates annotated graphs to bytecode. A compiler belongs to
// one analysis session; graphs reached by calls are compiled on demand and
// every graph is compiled at most once.
type Compiler struct {
	ctx                  *hint.Context
	opcodes              *Opcodes
	all                  map[*flow.Graph]*JitCode
	unfinished           *arraystack.Stack
	numGlobalMergePoints int
	raises               map[*flow.Graph]bool
}

// NewCompiler creates a compiler for the results of an analysis.
func NewCompiler(ctx *hint.Context) *Compiler {
	return &Compiler{
		ctx:        ctx,
		opcodes:    NewOpcodes(),
		all:        make(map[*flow.Graph]*JitCode),
		unfinished: arraystack.New(),
		raises:     make(map[*flow.Graph]bool),
	}
}

// Opcodes returns the instruction table of the session.
func (c *Compiler) Opcodes() *Opcodes {
	return c.opcodes
}

// NumGlobalMergePoints returns the number of global merge points allocated
// so far. Global merge points are numbered across all graphs.
func (c *Compiler) NumGlobalMergePoints() int {
	return c.numGlobalMergePoints
}

// Compile creates the bytecode for a portal graph and for every graph it
// calls, transitively.
func (c *Compiler) Compile(portal *flow.Graph) (*JitCode, error) {
	code, ok := c.all[portal]
	if ok && code.Code != nil {
		return code, nil
	} else if !ok {
		code = &JitCode{Name: portal.Name, opcodes: c.opcodes}
		c.all[portal] = code
	}
	if err := c.makeBytecode(portal, code, true); err != nil {
		return nil, err
	}
	for !c.unfinished.Empty() {
		v, _ := c.unfinished.Pop()
		g := v.(*flow.Graph)
		if err := c.makeBytecode(g, c.all[g], false); err != nil {
			return nil, err
		}
	}
	return code, nil
}

// codeFor returns the (possibly empty) bytecode object for a graph, queueing
// the graph for compilation on first request.
func (c *Compiler) codeFor(g *flow.Graph) *JitCode {
	if code, ok := c.all[g]; ok {
		return code
	}
	code := &JitCode{Name: g.Name, opcodes: c.opcodes}
	c.all[g] = code
	c.unfinished.Push(g)
	return code
}

func (c *Compiler) makeBytecode(g *flow.Graph, code *JitCode, portal bool) (err error) {
	tracer().Infof("compiling graph %s", g.Name)
	w := newWriter(c, g, code)
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*tinct.Error)
			if !ok {
				panic(r)
			}
			tracer().Errorf("%v", e)
			err = e
		}
	}()
	code.IsPortal = portal
	code.GraphColor = c.callingColor(g)
	w.computeMergePoints()
	w.makeBlock(g.StartBlock, false)
	bytes, labels, lerr := link(w.asm, c.opcodes)
	if lerr != nil {
		return lerr.(*tinct.Error).At(g.Name, "", "")
	}
	code.Code = bytes
	code.labels = labels
	code.source = w.asm.listing()
	code.NumLocalMergePoints = w.numLocal
	tracer().Debugf("graph %s: %d bytes, %d called", g.Name, len(bytes), len(code.CalledBytecodes))
	return nil
}

// callingColor classifies a graph by its return value: red, yellow for a
// green result, gray for no result.
func (c *Compiler) callingColor(g *flow.Graph) string {
	rv := g.ReturnVar()
	if rv.Type == flow.Void || c.ctx.Binding(rv) == nil {
		return "gray"
	}
	if c.ctx.IsGreen(rv) {
		return "yellow"
	}
	return "red"
}

// canRaise is true if an operation may raise an exception.
func (c *Compiler) canRaise(op *flow.Operation) bool {
	switch op.Name {
	case "direct_call":
		fn := hint.CalledFunc(op)
		if fn == nil {
			return true
		}
		if fn.CanRaise || fn.CallKind == string(raiseCall) {
			return true
		}
		return fn.Graph != nil && c.graphRaises(fn.Graph)
	case "indirect_call":
		lc, ok := op.Args[len(op.Args)-1].(*flow.Constant)
		if !ok {
			return true
		}
		targets, _ := lc.Value.([]*flow.Graph)
		if targets == nil {
			return true
		}
		for _, g := range targets {
			if c.graphRaises(g) {
				return true
			}
		}
		return false
	}
	if llop, ok := flow.LookupOp(op.Name); ok {
		return llop.CanRaise
	}
	return false
}

// graphRaises is true if any operation of a graph may raise. Recursive
// calls are assumed not to raise unless something else in the cycle does.
func (c *Compiler) graphRaises(g *flow.Graph) bool {
	if r, ok := c.raises[g]; ok {
		return r
	}
	c.raises[g] = false
	for _, b := range g.Blocks() {
		for _, op := range b.Operations {
			if c.canRaise(op) {
				c.raises[g] = true
				return true
			}
		}
	}
	return false
}
