package hint

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
)

func TestUnionCommutative(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	ctx := NewContext(DefaultPolicy())
	o1, o2 := ctx.GreenCandidate(flow.Signed), ctx.GreenCandidate(flow.Signed)
	v := NewVariable(flow.Signed)
	values := []AbstractValue{o1, o2, v, Deepfreeze(o1), literalConst(flow.Signed, 7)}
	for _, a := range values {
		for _, b := range values {
			ab, err1 := Union(a, b)
			ba, err2 := Union(b, a)
			if err1 != nil || err2 != nil {
				t.Fatalf("Expected union of %s and %s to succeed, is %v / %v", a, b, err1, err2)
			}
			if !Equal(ab, ba) {
				t.Errorf("Expected union to be commutative, is %s vs %s", ab, ba)
			}
		}
	}
	abc, _ := UnionAll(o1, o2, v)
	cba, _ := UnionAll(v, o2, o1)
	if !Equal(abc, cba) {
		t.Errorf("Expected chained unions to be order independent, is %s vs %s", abc, cba)
	}
	c, _ := Union(o1, o2)
	if c.(*Constant).Origins.Len() != 2 {
		t.Errorf("Expected union of constants to unite origins, is %s", c)
	}
}

func TestUnionErrors(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	eager := &Constant{T: flow.Signed, EagerConcrete: true}
	if _, err := Union(eager, NewVariable(flow.Signed)); !errors.Is(err, tinct.ErrUnion) {
		t.Errorf("Expected widening of eager constant to fail, is %v", err)
	}
	if _, err := Union(NewVariable(flow.Signed), eager); !errors.Is(err, tinct.ErrUnion) {
		t.Errorf("Expected widening of eager constant to fail, is %v", err)
	}
	if _, err := Union(NewVariable(flow.Signed), NewVariable(flow.Bool)); !errors.Is(err, tinct.ErrUnion) {
		t.Errorf("Expected union of different types to fail, is %v", err)
	}
}

func TestDeepfreezeIdempotent(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	ctx := NewContext(DefaultPolicy())
	for _, v := range []AbstractValue{NewVariable(flow.Signed), ctx.GreenCandidate(flow.Char)} {
		once, twice := Deepfreeze(v), Deepfreeze(Deepfreeze(v))
		if !Equal(once, twice) {
			t.Errorf("Expected freezing to be idempotent, is %s vs %s", once, twice)
		}
		if !once.DeepFrozen() || v.DeepFrozen() {
			t.Errorf("Expected freezing to clone, is %s -> %s", v, once)
		}
	}
}

func getfieldGraph(s *flow.Type) (*flow.Graph, *flow.Variable) {
	b := flow.NewBuilder("read", flow.Ptr(s))
	x := b.GetField(b.Arg(0), "x")
	b.Return(x)
	return b.Graph(), x
}

func TestReadOnImmutable(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	imm := flow.Struct("Imm", flow.Hints{Immutable: true}, flow.F("x", flow.Signed))
	g, x := getfieldGraph(imm)
	ctx := NewContext(DefaultPolicy())
	if err := ctx.Annotate(g, ctx.GreenCandidate(flow.Ptr(imm))); err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Binding(x).(*Constant); !ok {
		t.Errorf("Expected read of immutable field to be a Constant, is %s", ctx.Binding(x))
	}
	mut := flow.Struct("Mut", flow.Hints{}, flow.F("x", flow.Signed))
	g, x = getfieldGraph(mut)
	ctx = NewContext(DefaultPolicy())
	if err := ctx.Annotate(g, ctx.GreenCandidate(flow.Ptr(mut))); err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Binding(x).(*Variable); !ok {
		t.Errorf("Expected read of mutable field to be a Variable, is %s", ctx.Binding(x))
	}
	if !strings.Contains(ctx.Cause(x), "non-immutable") {
		t.Errorf("Expected cause for red field read, is %q", ctx.Cause(x))
	}
}

func TestReadFromPrebuiltInstance(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	imm := flow.Struct("Imm", flow.Hints{Immutable: true}, flow.F("x", flow.Signed))
	inst := flow.NewStructInstance(imm, "x", 42)
	b := flow.NewBuilder("main")
	x := b.GetField(flow.PtrConst(inst), "x")
	y := b.Op("int_add", flow.Signed, x, flow.Const(1, flow.Signed))
	b.Return(y)
	ctx := NewContext(DefaultPolicy())
	if err := ctx.Annotate(b.Graph()); err != nil {
		t.Fatal(err)
	}
	if lit, ok := Literal(ctx.Binding(y)); !ok || lit != 43 {
		t.Errorf("Expected folded literal 43, is %v", lit)
	}
	if !ctx.IsGreen(y) {
		t.Errorf("Expected y to be green")
	}
}

// callee(x) = hint(x, concrete) + 1; main(a) = callee(a)
func concreteCallee() (*flow.Graph, *flow.Variable) {
	b := flow.NewBuilder("callee", flow.Signed)
	h := b.Hint(b.Arg(0), HintConcrete)
	y := b.Op("int_add", flow.Signed, h, flow.Const(1, flow.Signed))
	b.Return(y)
	fn := b.Function()
	m := flow.NewBuilder("main", flow.Signed)
	r := m.Call(fn, m.Arg(0))
	m.Return(r)
	return m.Graph(), r
}

func TestMonotonicity(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	g, r := concreteCallee()
	ctx := NewContext(DefaultPolicy())
	arg := ctx.GreenCandidate(flow.Signed)
	if arg.IsFixed() {
		t.Fatalf("Expected fresh green candidate to be unfixed")
	}
	if err := ctx.Annotate(g, arg); err != nil {
		t.Fatal(err)
	}
	if !ctx.Binding(g.Args()[0]).IsFixed() {
		t.Errorf("Expected caller argument to be fixed by callee hint, is %s", ctx.Binding(g.Args()[0]))
	}
	if !ctx.IsGreen(r) {
		t.Errorf("Expected call result to be green, is %s", ctx.Binding(r))
	}
	names := []string{}
	for _, sg := range ctx.Graphs() {
		names = append(names, sg.Name)
	}
	if diff := cmp.Diff([]string{"main", "callee"}, names); diff != "" {
		t.Errorf("Unexpected live graphs (-want +got):\n%s", diff)
	}
}

func TestHintErrors(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	b := flow.NewBuilder("bad", flow.Signed)
	h := b.Hint(b.Arg(0), HintConcrete)
	b.Return(h)
	ctx := NewContext(DefaultPolicy())
	err := ctx.Annotate(b.Graph(), RedArg(flow.Signed))
	if !errors.Is(err, tinct.ErrAnalysis) {
		t.Errorf("Expected concrete hint on Variable to fail, is %v", err)
	}
	//
	b = flow.NewBuilder("twoflags", flow.Signed)
	h = b.Op("hint", flow.Signed, b.Arg(0), flow.VoidConst(flow.HintFlags{"promote": true, "forget": true}))
	b.Return(h)
	ctx = NewContext(DefaultPolicy())
	err = ctx.Annotate(b.Graph(), RedArg(flow.Signed))
	if !errors.Is(err, tinct.ErrAnalysis) {
		t.Errorf("Expected hint with two flags to fail, is %v", err)
	}
	var e *tinct.Error
	if errors.As(err, &e) && e.Graph != "twoflags" {
		t.Errorf("Expected error position in graph twoflags, is %q", e.Graph)
	}
}

func TestPromote(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	b := flow.NewBuilder("prom", flow.Signed)
	p := b.Hint(b.Arg(0), HintPromote)
	y := b.Op("int_mul", flow.Signed, p, p)
	b.Return(y)
	ctx := NewContext(DefaultPolicy())
	if err := ctx.Annotate(b.Graph(), RedArg(flow.Signed)); err != nil {
		t.Fatal(err)
	}
	if !ctx.IsGreen(p) || !ctx.IsGreen(y) {
		t.Errorf("Expected promoted value and its square to be green")
	}
	if ctx.IsGreen(b.Graph().Args()[0]) {
		t.Errorf("Expected argument to stay red")
	}
}

// Scenario E: identical literal arguments share one specialized graph.
func TestSpecializationCache(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	fb := flow.NewBuilder("inc", flow.Signed)
	fb.Return(fb.Op("int_add", flow.Signed, fb.Arg(0), flow.Const(1, flow.Signed)))
	inc := fb.Function()
	b := flow.NewBuilder("main")
	r1 := b.Call(inc, flow.Const(3, flow.Signed))
	r2 := b.Call(inc, flow.Const(3, flow.Signed))
	r3 := b.Call(inc, flow.Const(4, flow.Signed))
	s := b.Op("int_add", flow.Signed, r1, r2)
	s = b.Op("int_add", flow.Signed, s, r3)
	b.Return(s)
	ctx := NewContext(DefaultPolicy())
	if err := ctx.Annotate(b.Graph()); err != nil {
		t.Fatal(err)
	}
	ops := b.Graph().StartBlock.Operations
	t1, t2, t3 := ctx.CallTargets(ops[0]), ctx.CallTargets(ops[1]), ctx.CallTargets(ops[2])
	if len(t1) != 1 || len(t2) != 1 || len(t3) != 1 {
		t.Fatalf("Expected one target per call, is %v %v %v", t1, t2, t3)
	}
	if t1[0] != t2[0] {
		t.Errorf("Expected identical specialization for identical literals, is %s and %s", t1[0], t2[0])
	}
	if t1[0] == t3[0] {
		t.Errorf("Expected different specialization for different literals")
	}
	if ctx.Original(t1[0]) != inc.Graph {
		t.Errorf("Expected specialized graph to remember its original")
	}
	if len(ctx.Specializations(inc.Graph)) != 2 {
		t.Errorf("Expected 2 specializations of inc, is %d", len(ctx.Specializations(inc.Graph)))
	}
	for _, r := range []*flow.Variable{r1, r2, r3} {
		if !ctx.IsGreen(r) {
			t.Errorf("Expected result of pure call with literals to be green, is %s", ctx.Binding(r))
		}
	}
}

func TestMaxSpecializations(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	fb := flow.NewBuilder("id", flow.Signed)
	fb.Return(fb.Arg(0))
	id := fb.Function()
	b := flow.NewBuilder("main")
	var rs []flow.Value
	for i := 0; i < 5; i++ {
		rs = append(rs, b.Call(id, flow.Const(i, flow.Signed)))
	}
	b.Return(rs[4])
	policy := DefaultPolicy()
	policy.MaxSpecializations = 2
	ctx := NewContext(policy)
	if err := ctx.Annotate(b.Graph()); err != nil {
		t.Fatal(err)
	}
	if n := len(ctx.Specializations(id.Graph)); n != 3 {
		t.Errorf("Expected 2 literal specializations plus a generic one, is %d", n)
	}
}

func TestVirtualContainer(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	point := flow.Struct("Point", flow.Hints{}, flow.F("x", flow.Signed), flow.F("y", flow.Signed))
	b := flow.NewBuilder("mk")
	p := b.Malloc(point)
	b.SetField(p, "x", flow.Const(5, flow.Signed))
	x := b.GetField(p, "x")
	b.Return(x)
	ctx := NewContext(DefaultPolicy())
	if err := ctx.Annotate(b.Graph()); err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Binding(p).(*Container); !ok {
		t.Errorf("Expected malloc to create a virtual container, is %s", ctx.Binding(p))
	}
	if _, ok := ctx.Binding(x).(*Constant); !ok {
		t.Errorf("Expected field of virtual container to be a Constant, is %s", ctx.Binding(x))
	}
	//
	policy := DefaultPolicy()
	policy.NoVirtualContainer = true
	ctx = NewContext(policy)
	if err := ctx.Annotate(b.Graph()); err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Binding(p).(*Variable); !ok {
		t.Errorf("Expected malloc without virtual containers to be red, is %s", ctx.Binding(p))
	}
}

func TestContainerEscapes(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	point := flow.Struct("Point", flow.Hints{}, flow.F("x", flow.Signed))
	b := flow.NewBuilder("esc", flow.Bool, flow.Ptr(point))
	p := b.Malloc(point)
	join := b.NewBlock(flow.Ptr(point))
	b.Branch(b.Arg(0), join, []flow.Value{p}, join, []flow.Value{b.Arg(1)})
	b.SetCurrent(join)
	x := b.GetField(join.InputArgs[0], "x")
	b.Return(x)
	ctx := NewContext(DefaultPolicy())
	if err := ctx.Annotate(b.Graph(), RedArg(flow.Bool), RedArg(flow.Ptr(point))); err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Binding(join.InputArgs[0]).(*Variable); !ok {
		t.Errorf("Expected merge of container and variable to be a Variable, is %s",
			ctx.Binding(join.InputArgs[0]))
	}
	c, ok := ctx.Binding(p).(*Container)
	if !ok || !c.ContentDef().Degenerated() {
		t.Errorf("Expected escaped container to be degenerated")
	}
}

func TestIndirectCallFamily(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	b1 := flow.NewBuilder("double", flow.Signed)
	b1.Return(b1.Op("int_mul", flow.Signed, b1.Arg(0), flow.Const(2, flow.Signed)))
	b2 := flow.NewBuilder("succ", flow.Signed)
	b2.Return(b2.Op("int_add", flow.Signed, b2.Arg(0), flow.Const(1, flow.Signed)))
	fptr := flow.Ptr(flow.FuncType(flow.Signed, flow.Signed))
	m := flow.NewBuilder("main", fptr)
	r := m.IndirectCall(m.Arg(0), []*flow.Graph{b1.Graph(), b2.Graph()}, flow.Const(3, flow.Signed))
	m.Return(r)
	ctx := NewContext(DefaultPolicy())
	if err := ctx.Annotate(m.Graph(), RedArg(fptr)); err != nil {
		t.Fatal(err)
	}
	op := m.Graph().StartBlock.Operations[0]
	targets := ctx.CallTargets(op)
	if len(targets) != 2 {
		t.Fatalf("Expected 2 call targets, is %d", len(targets))
	}
	_, members := ctx.ResolveFamily(targets[:1])
	if len(members) != 2 {
		t.Errorf("Expected targets to form one family, is %v", members)
	}
	if ctx.IsGreen(r) {
		t.Errorf("Expected result of call through red function pointer to be red, is %s", ctx.Binding(r))
	}
	if ctx.IsGreenCall(op) {
		t.Errorf("Expected call through red function pointer not to be a green call")
	}
}

func TestCannotFollow(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	fb := flow.NewBuilder("slow", flow.Signed)
	fb.Return(fb.Op("int_neg", flow.Signed, fb.Arg(0)))
	slow := fb.Function()
	m := flow.NewBuilder("main", flow.Signed)
	r1 := m.Call(slow, flow.Const(1, flow.Signed))
	r2 := m.Call(slow, m.Arg(0))
	m.Return(m.Op("int_add", flow.Signed, r1, r2))
	policy := DefaultPolicy()
	policy.DontLookInside = []string{"slow"}
	ctx := NewContext(policy)
	if err := ctx.Annotate(m.Graph(), RedArg(flow.Signed)); err != nil {
		t.Fatal(err)
	}
	if !ctx.IsGreen(r1) {
		t.Errorf("Expected pure opaque call with constant args to be green, is %s", ctx.Binding(r1))
	}
	if _, ok := ctx.Binding(r2).(*Variable); !ok {
		t.Errorf("Expected opaque call with red args to be a Variable, is %s", ctx.Binding(r2))
	}
	if !strings.Contains(ctx.Cause(r2), "residual call to slow") {
		t.Errorf("Expected cause for red opaque call, is %q", ctx.Cause(r2))
	}
	if len(ctx.Graphs()) != 1 {
		t.Errorf("Expected opaque graph not to be live, have %d graphs", len(ctx.Graphs()))
	}
}

func TestOopspecOnFrozenReceiver(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	list := flow.Array("List", flow.Signed, flow.Hints{})
	getitem := &flow.Func{
		Name:       "ll_getitem",
		Type:       flow.FuncType(flow.Signed, flow.Ptr(list), flow.Signed),
		ParamNames: []string{"l", "index"},
		OopSpec:    "list.getitem(l, index)",
	}
	inst := flow.PtrConst(flow.NewArrayInstance(list, 1, 2, 3))
	m := flow.NewBuilder("main")
	frozen := m.Hint(inst, HintDeepfreeze)
	r1 := m.Call(getitem, frozen, flow.Const(1, flow.Signed))
	r2 := m.Call(getitem, inst, flow.Const(1, flow.Signed))
	m.Return(m.Op("int_add", flow.Signed, r1, r2))
	policy := DefaultPolicy()
	policy.Oopspec = true
	ctx := NewContext(policy)
	if err := ctx.Annotate(m.Graph()); err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Binding(r1).(*Constant); !ok {
		t.Errorf("Expected oopspec call on frozen receiver to be a Constant, is %s", ctx.Binding(r1))
	}
	if _, ok := ctx.Binding(r2).(*Variable); !ok {
		t.Errorf("Expected oopspec call on mutable receiver to be a Variable, is %s", ctx.Binding(r2))
	}
}

func TestLoadPolicy(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.hint")
	defer teardown()
	//
	text := `
oopspec = true
dont_look_inside = ["slow", "io"]
pure = ["ll_strlen"]
`
	p, err := LoadPolicy(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Oopspec || p.NoVirtualContainer {
		t.Errorf("Expected oopspec on and virtual containers on, is %+v", p)
	}
	if !p.EntryReturnsRed || p.MaxSpecializations != 32 {
		t.Errorf("Expected defaults to survive, is %+v", p)
	}
	if p.LookInside(&flow.Graph{Name: "io"}) || !p.LookInside(&flow.Graph{Name: "fast"}) {
		t.Errorf("Expected dont_look_inside to be honoured")
	}
	if !p.isDeclaredPure("ll_strlen") {
		t.Errorf("Expected ll_strlen to be declared pure")
	}
}
