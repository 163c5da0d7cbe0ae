package flow

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Value is either a *Variable or a *Constant.
type Value interface {
	ConcreteType() *Type
	String() string
}

// Variable is an SSA variable. Every variable is defined exactly once, either as
// an input argument of a block or as the result of an operation.
type Variable struct {
	Name string
	Type *Type
}

// ConcreteType is part of interface Value.
func (v *Variable) ConcreteType() *Type { return v.Type }

func (v *Variable) String() string { return v.Name }

// Constant is a literal operand.
type Constant struct {
	Value interface{}
	Type  *Type
}

// ConcreteType is part of interface Value.
func (c *Constant) ConcreteType() *Type { return c.Type }

func (c *Constant) String() string {
	switch x := c.Value.(type) {
	case *Func:
		return "@" + x.Name
	case *Type:
		return "%" + x.String()
	case string:
		return fmt.Sprintf("%q", x)
	case HintFlags:
		return x.String()
	case []*Graph:
		names := make([]string, len(x))
		for i, g := range x {
			names[i] = "@" + g.Name
		}
		return "[" + strings.Join(names, ", ") + "]"
	case nil:
		if c.Type == Void {
			return "void"
		}
		return "null"
	}
	return fmt.Sprintf("%v", c.Value)
}

// Const creates a constant of type t. Integer literals are normalized to the
// Go type used for t (int for Signed, uint for Unsigned, byte for Char,
// float64 for Float).
func Const(value interface{}, t *Type) *Constant {
	return &Constant{Value: Normalize(value, t), Type: t}
}

// VoidConst creates a Void constant, e.g. for field names or type operands.
func VoidConst(value interface{}) *Constant {
	return &Constant{Value: value, Type: Void}
}

// Normalize converts a literal to the canonical Go representation for t.
func Normalize(value interface{}, t *Type) interface{} {
	if value == nil {
		return nil
	}
	switch t.Kind {
	case SignedKind:
		if i, ok := asInt64(value); ok {
			return int(i)
		}
	case UnsignedKind:
		if i, ok := asInt64(value); ok {
			return uint(i)
		}
		if u, ok := value.(uint64); ok {
			return uint(u)
		}
	case CharKind:
		if i, ok := asInt64(value); ok {
			return byte(i)
		}
	case FloatKind:
		switch f := value.(type) {
		case float32:
			return float64(f)
		case int:
			return float64(f)
		}
	}
	return value
}

func asInt64(value interface{}) (int64, bool) {
	switch i := value.(type) {
	case int:
		return int64(i), true
	case int8:
		return int64(i), true
	case int16:
		return int64(i), true
	case int32:
		return int64(i), true
	case int64:
		return i, true
	case uint:
		return int64(i), true
	case uint8:
		return int64(i), true
	case uint16:
		return int64(i), true
	case uint32:
		return int64(i), true
	}
	return 0, false
}

// HintFlags are the operand of a hint operation.
type HintFlags map[string]bool

// Set returns the names of all flags set to true, sorted.
func (h HintFlags) Set() []string {
	var names []string
	for k, v := range h {
		if v {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func (h HintFlags) String() string {
	return "{" + strings.Join(h.Set(), ",") + "}"
}

// Func is a function object, the target of direct calls. Functions without a
// graph are external.
type Func struct {
	Name       string
	Type       *Type    // function type
	Graph      *Graph   // may be nil
	ParamNames []string // used to map oopspec arguments
	OopSpec    string   // e.g. "list.getitem(l, index)"
	CallKind   string   // explicit call kind tag, e.g. "rpyexc_raise"
	Pure       bool     // no side effects
	CanRaise   bool
}

func (f *Func) String() string {
	return "@" + f.Name
}

// FuncConst creates a function pointer constant.
func FuncConst(f *Func) *Constant {
	return &Constant{Value: f, Type: Ptr(f.Type)}
}

// Operation is a low-level operation.
type Operation struct {
	Name   string
	Args   []Value
	Result *Variable
}

func (op *Operation) String() string {
	args := make([]string, len(op.Args))
	for i, a := range op.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s = %s(%s)", op.Result, op.Name, strings.Join(args, ", "))
}

// Link is a control flow edge, passing Args to the input arguments of Target.
type Link struct {
	Args     []Value
	Prev     *Block
	Target   *Block
	ExitCase interface{} // nil for unconditional links, true or false otherwise
}

func (l *Link) String() string {
	return fmt.Sprintf("%s->%s", l.Prev, l.Target)
}

var blockSerial int64

// Block is a basic block.
type Block struct {
	ID         int
	InputArgs  []*Variable
	Operations []*Operation
	ExitSwitch Value // boolean exit value for two-exit blocks
	Exits      []*Link
}

// NewBlock creates a block with input arguments.
func NewBlock(inputargs ...*Variable) *Block {
	id := atomic.AddInt64(&blockSerial, 1)
	return &Block{ID: int(id), InputArgs: inputargs}
}

func (b *Block) String() string {
	return fmt.Sprintf("block%d", b.ID)
}

// IsReturnBlock is true for blocks without exits.
func (b *Block) IsReturnBlock() bool {
	return len(b.Exits) == 0
}

// CloseBlock sets the exits of a block.
func (b *Block) CloseBlock(links ...*Link) {
	for _, l := range links {
		l.Prev = b
	}
	b.Exits = links
}

// Graph is the flow graph of a function.
type Graph struct {
	Name        string
	StartBlock  *Block
	ReturnBlock *Block
	Func        *Func // function object this graph belongs to, may be nil
}

func (g *Graph) String() string {
	return g.Name
}

// Args returns the input arguments of the start block.
func (g *Graph) Args() []*Variable {
	return g.StartBlock.InputArgs
}

// ReturnVar returns the single input argument of the return block.
func (g *Graph) ReturnVar() *Variable {
	return g.ReturnBlock.InputArgs[0]
}

// Blocks returns all blocks reachable from the start block, depth-first.
func (g *Graph) Blocks() []*Block {
	var blocks []*Block
	seen := map[*Block]bool{}
	var walk func(*Block)
	walk = func(b *Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		blocks = append(blocks, b)
		for _, l := range b.Exits {
			walk(l.Target)
		}
	}
	walk(g.StartBlock)
	return blocks
}

// Links returns all links of the graph, in block order.
func (g *Graph) Links() []*Link {
	var links []*Link
	for _, b := range g.Blocks() {
		links = append(links, b.Exits...)
	}
	return links
}

// EntryMap maps every block to the links entering it.
func (g *Graph) EntryMap() map[*Block][]*Link {
	m := make(map[*Block][]*Link)
	for _, l := range g.Links() {
		m[l.Target] = append(m[l.Target], l)
	}
	return m
}

// Dump is a debugging helper.
func (g *Graph) Dump() {
	tracer().Debugf("--- graph %s ---------------", g.Name)
	for _, b := range g.Blocks() {
		args := make([]string, len(b.InputArgs))
		for i, a := range b.InputArgs {
			args[i] = a.Name
		}
		tracer().Debugf("%s(%s):", b, strings.Join(args, ", "))
		for _, op := range b.Operations {
			tracer().Debugf("    %s", op)
		}
		for _, l := range b.Exits {
			if l.ExitCase != nil {
				tracer().Debugf("    if %s == %v goto %s%v", b.ExitSwitch, l.ExitCase, l.Target, l.Args)
			} else {
				tracer().Debugf("    goto %s%v", l.Target, l.Args)
			}
		}
	}
	tracer().Debugf("----------------------------")
}
