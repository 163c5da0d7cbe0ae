package flow

import (
	"errors"
	"strings"
	"testing"

	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

func loopGraph() *Graph {
	// sum(n) = n + (n-1) + … + 1
	b := NewBuilder("sum", Signed)
	loop := b.NewBlock(Signed, Signed)
	body := b.NewBlock(Signed, Signed)
	b.Jump(loop, b.Arg(0), Const(0, Signed))
	b.SetCurrent(loop)
	n, acc := loop.InputArgs[0], loop.InputArgs[1]
	c := b.Op("int_gt", Bool, n, Const(0, Signed))
	b.Branch(c, body, []Value{n, acc}, nil, nil)
	exit := b.NewBlock(Signed)
	loop.Exits[0].Target = exit
	loop.Exits[0].Args = []Value{acc}
	b.SetCurrent(body)
	n1, acc1 := body.InputArgs[0], body.InputArgs[1]
	s := b.Op("int_add", Signed, acc1, n1)
	m := b.Op("int_sub", Signed, n1, Const(1, Signed))
	b.Jump(loop, m, s)
	b.SetCurrent(exit)
	b.Return(exit.InputArgs[0])
	return b.Graph()
}

func TestBuilderBlocks(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flow")
	defer teardown()
	//
	g := loopGraph()
	g.Dump()
	blocks := g.Blocks()
	if len(blocks) != 5 {
		t.Errorf("Expected 5 blocks, have %d", len(blocks))
	}
	if blocks[0] != g.StartBlock {
		t.Errorf("Expected first block to be start block")
	}
	entries := g.EntryMap()
	loop := g.StartBlock.Exits[0].Target
	if len(entries[loop]) != 2 {
		t.Errorf("Expected loop header to have 2 entries, has %d", len(entries[loop]))
	}
	if !g.ReturnBlock.IsReturnBlock() {
		t.Errorf("Expected return block to have no exits")
	}
}

func TestCopyIsDeep(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flow")
	defer teardown()
	//
	g := loopGraph()
	h := Copy(g, "sum_1")
	if h.StartBlock == g.StartBlock || h.Args()[0] == g.Args()[0] {
		t.Errorf("Expected copy to have fresh blocks and variables")
	}
	if len(h.Blocks()) != len(g.Blocks()) {
		t.Errorf("Expected copy to have %d blocks, has %d", len(g.Blocks()), len(h.Blocks()))
	}
	hblocks, gblocks := h.Blocks(), g.Blocks()
	for i := range gblocks {
		if len(hblocks[i].Operations) != len(gblocks[i].Operations) {
			t.Errorf("Expected block %d of copy to have same number of operations", i)
		}
		for _, op := range hblocks[i].Operations {
			for _, a := range op.Args {
				if v, ok := a.(*Variable); ok {
					for _, gv := range gblocks[i].InputArgs {
						if v == gv {
							t.Errorf("copy shares variable %s with original", v)
						}
					}
				}
			}
		}
	}
	if h.ReturnVar().Type != Signed {
		t.Errorf("Expected return var of copy to be Signed, is %v", h.ReturnVar().Type)
	}
}

func TestTypeInterning(t *testing.T) {
	s := Struct("S", Hints{Immutable: true}, F("x", Signed))
	if Ptr(s) != Ptr(s) {
		t.Errorf("Expected pointer types to be interned")
	}
	if FuncType(Signed, Signed, Bool) != FuncType(Signed, Signed, Bool) {
		t.Errorf("Expected function types to be interned")
	}
	if !s.Immutable() || s.Virtualizable() {
		t.Errorf("Expected S to be immutable and not virtualizable")
	}
	ft, ok := s.FieldType("x")
	if !ok || ft != Signed {
		t.Errorf("Expected field x of type Signed")
	}
	node := ForwardStruct("Node", Hints{}).Define(F("next", nil), F("val", Signed))
	if node.FieldIndex("val") != 1 {
		t.Errorf("Expected field val at index 1")
	}
	if Ptr(s).Shape() != "*S" {
		t.Errorf("Expected shape *S, is %s", Ptr(s).Shape())
	}
}

func TestFolding(t *testing.T) {
	r, err := FoldOp("int_add", 3, 4)
	if err != nil || r != 7 {
		t.Errorf("Expected 3+4 = 7, is %v (%v)", r, err)
	}
	r, _ = FoldOp("int_floordiv", -7, 2)
	if r != -4 {
		t.Errorf("Expected -7//2 = -4, is %v", r)
	}
	r, _ = FoldOp("int_mod", -7, 2)
	if r != 1 {
		t.Errorf("Expected -7%%2 = 1, is %v", r)
	}
	if _, err = FoldOp("int_mul_ovf", 1<<62, 4); !errors.Is(err, ErrOverflow) {
		t.Errorf("Expected overflow, got %v", err)
	}
	if _, err = FoldOp("int_floordiv", 1, 0); !errors.Is(err, ErrZeroDivision) {
		t.Errorf("Expected division by zero, got %v", err)
	}
	r, _ = FoldOp("int_lt", 1, 2)
	if r != true {
		t.Errorf("Expected 1 < 2")
	}
	if _, err = FoldOp("getfield", 1); !errors.Is(err, ErrNoFold) {
		t.Errorf("Expected getfield not to fold")
	}
	op, _ := LookupOp("int_add_ovf")
	if !op.TryFold || op.CanFold || op.Arity() != 2 {
		t.Errorf("Expected int_add_ovf to be a binary tryfold operation")
	}
}

func TestNormalize(t *testing.T) {
	if c := Const(int64(5), Signed); c.Value != 5 {
		t.Errorf("Expected int64 literal to be normalized to int")
	}
	if c := Const('a', Char); c.Value != byte('a') {
		t.Errorf("Expected rune literal to be normalized to byte")
	}
}

func TestDot(t *testing.T) {
	g := loopGraph()
	var sb strings.Builder
	colors := func(v *Variable) string {
		if v.Type == Bool {
			return "green"
		}
		return ""
	}
	if err := WriteDot(g, colors, &sb); err != nil {
		t.Fatal(err)
	}
	dot := sb.String()
	if !strings.HasPrefix(dot, "digraph {") || !strings.Contains(dot, ":green = int_gt") {
		t.Errorf("unexpected dot output:\n%s", dot)
	}
}
