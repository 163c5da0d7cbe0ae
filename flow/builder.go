package flow

import "fmt"

// Builder is a helper for constructing graphs, mainly for tests and tools.
// Operations are appended to the current block, which initially is the start
// block of the graph.
type Builder struct {
	g       *Graph
	cur     *Block
	serial  int
	restype *Type
}

// NewBuilder creates a builder for a graph with the given argument types.
func NewBuilder(name string, argtypes ...*Type) *Builder {
	b := &Builder{}
	b.g = &Graph{Name: name}
	b.g.StartBlock = b.NewBlock(argtypes...)
	b.cur = b.g.StartBlock
	return b
}

// Var creates a fresh variable.
func (b *Builder) Var(t *Type) *Variable {
	v := &Variable{Name: fmt.Sprintf("v%d", b.serial), Type: t}
	b.serial++
	return v
}

// NewBlock creates a new block with fresh input arguments.
func (b *Builder) NewBlock(argtypes ...*Type) *Block {
	args := make([]*Variable, len(argtypes))
	for i, t := range argtypes {
		args[i] = b.Var(t)
	}
	return NewBlock(args...)
}

// Arg returns input argument i of the start block.
func (b *Builder) Arg(i int) *Variable {
	return b.g.StartBlock.InputArgs[i]
}

// Current returns the block operations are appended to.
func (b *Builder) Current() *Block {
	return b.cur
}

// SetCurrent switches to another block.
func (b *Builder) SetCurrent(blk *Block) *Builder {
	b.cur = blk
	return b
}

// Op appends an operation and returns its result variable.
func (b *Builder) Op(opname string, restype *Type, args ...Value) *Variable {
	res := b.Var(restype)
	b.cur.Operations = append(b.cur.Operations, &Operation{Name: opname, Args: args, Result: res})
	return res
}

// Call appends a direct call of fn.
func (b *Builder) Call(fn *Func, args ...Value) *Variable {
	all := append([]Value{FuncConst(fn)}, args...)
	return b.Op("direct_call", fn.Type.Result(), all...)
}

// IndirectCall appends a call through a function pointer. targets lists the
// graphs the pointer may refer to, nil if unknown.
func (b *Builder) IndirectCall(fnptr Value, targets []*Graph, args ...Value) *Variable {
	all := append([]Value{fnptr}, args...)
	all = append(all, VoidConst(targets))
	return b.Op("indirect_call", fnptr.ConcreteType().Target().Result(), all...)
}

// Hint appends a hint operation for v with a single flag set.
func (b *Builder) Hint(v Value, flag string) *Variable {
	return b.Op("hint", v.ConcreteType(), v, VoidConst(HintFlags{flag: true}))
}

// GetField appends a field read.
func (b *Builder) GetField(p Value, field string) *Variable {
	ft, ok := p.ConcreteType().Target().FieldType(field)
	if !ok {
		panic(fmt.Sprintf("no field %s in %v", field, p.ConcreteType()))
	}
	return b.Op("getfield", ft, p, VoidConst(field))
}

// SetField appends a field write.
func (b *Builder) SetField(p Value, field string, v Value) {
	b.Op("setfield", Void, p, VoidConst(field), v)
}

// Malloc appends an allocation of a struct.
func (b *Builder) Malloc(t *Type) *Variable {
	return b.Op("malloc", Ptr(t), VoidConst(t))
}

// Jump closes the current block with a single link to target.
func (b *Builder) Jump(target *Block, args ...Value) {
	b.cur.CloseBlock(&Link{Args: args, Target: target})
}

// Branch closes the current block with two links switched by cond.
func (b *Builder) Branch(cond Value, iftrue *Block, trueArgs []Value, iffalse *Block, falseArgs []Value) {
	b.cur.ExitSwitch = cond
	b.cur.CloseBlock(
		&Link{Args: falseArgs, Target: iffalse, ExitCase: false},
		&Link{Args: trueArgs, Target: iftrue, ExitCase: true})
}

// Return closes the current block with a link to the return block, which is
// created on first use.
func (b *Builder) Return(v Value) {
	if b.g.ReturnBlock == nil {
		b.restype = v.ConcreteType()
		b.g.ReturnBlock = b.NewBlock(b.restype)
	}
	b.Jump(b.g.ReturnBlock, v)
}

// Graph returns the graph under construction.
func (b *Builder) Graph() *Graph {
	if b.g.ReturnBlock == nil {
		panic(fmt.Sprintf("graph %s has no return", b.g.Name))
	}
	return b.g
}

// Function wraps the graph into a function object.
func (b *Builder) Function() *Func {
	g := b.Graph()
	if g.Func != nil {
		return g.Func
	}
	argtypes := make([]*Type, len(g.Args()))
	for i, a := range g.Args() {
		argtypes[i] = a.Type
	}
	g.Func = &Func{Name: g.Name, Type: FuncType(b.restype, argtypes...), Graph: g}
	return g.Func
}
