package jitcode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
	"github.com/npillmayer/tinct/flow/flowtext"
	"github.com/npillmayer/tinct/hint"
)

// annotate parses a module and analyzes graph entry with all arguments red.
func annotate(t *testing.T, src, entry string, policy hint.Policy) (*flowtext.Module, *hint.Context) {
	t.Helper()
	m, err := flowtext.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	g := m.Graph(entry)
	args := make([]hint.AbstractValue, len(g.Args()))
	for i, a := range g.Args() {
		args[i] = hint.RedArg(a.Type)
	}
	ctx := hint.NewContext(policy)
	if err := ctx.Annotate(g, args...); err != nil {
		t.Fatal(err)
	}
	return m, ctx
}

func compile(t *testing.T, src, entry string, policy hint.Policy) (*Compiler, *JitCode) {
	t.Helper()
	m, ctx := annotate(t, src, entry, policy)
	c := NewCompiler(ctx)
	jc, err := c.Compile(m.Graph(entry))
	if err != nil {
		t.Fatal(err)
	}
	return c, jc
}

func instructions(t *testing.T, jc *JitCode) []Instr {
	t.Helper()
	instrs, err := jc.Instructions()
	if err != nil {
		t.Fatal(err)
	}
	return instrs
}

func opNames(t *testing.T, jc *JitCode) []string {
	t.Helper()
	var names []string
	for _, in := range instructions(t, jc) {
		names = append(names, in.Op.Name)
	}
	return names
}

func findOp(t *testing.T, jc *JitCode, name string) (Instr, bool) {
	t.Helper()
	for _, in := range instructions(t, jc) {
		if in.Op.Name == name {
			return in, true
		}
	}
	return Instr{}, false
}

func TestOpcodeTable(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	opcodes := NewOpcodes()
	if g, ok := opcodes.Lookup("goto"); !ok || g.Format != "L" {
		t.Errorf("Expected goto with a label operand, is %v", g)
	}
	if other := NewOpcodes(); cmp.Diff(opcodes.Names(), other.Names()) != "" {
		t.Errorf("Expected numbering of fixed opcodes to be deterministic")
	}
	sig := []*flow.Type{flow.Signed, flow.Signed}
	add, err := opcodes.Generic(tinct.Red, "int_add", sig, flow.Signed)
	if err != nil {
		t.Fatal(err)
	}
	if add.Name != "red_int_add" || add.Format != "ii" || add.Desc == nil || !add.Desc.CanFold {
		t.Errorf("Expected red_int_add with two operands, is %v %q", add, add.Format)
	}
	again, _ := opcodes.Generic(tinct.Red, "int_add", sig, flow.Signed)
	if again != add {
		t.Errorf("Expected generic opcode to be created once")
	}
	green, _ := opcodes.Generic(tinct.Green, "int_add", sig, flow.Signed)
	if green == add || green.Name != "green_int_add" {
		t.Errorf("Expected separate green variant, is %v", green)
	}
	if opcodes.GenericCount() != 2 {
		t.Errorf("Expected 2 generic opcodes, is %d", opcodes.GenericCount())
	}
	if _, err := opcodes.Generic(tinct.Red, "int_add", sig[:1], flow.Signed); !errors.Is(err, tinct.ErrUnsupported) {
		t.Errorf("Expected arity mismatch to be rejected, is %v", err)
	}
	if _, err := opcodes.Generic(tinct.Red, "getfield", sig, flow.Signed); err == nil {
		t.Errorf("Expected clash with special opcode red_getfield")
	}
	if ovf, _ := opcodes.Generic(tinct.Red, "int_add_ovf", sig, flow.Signed); !ovf.Desc.CanRaise {
		t.Errorf("Expected int_add_ovf to be raising")
	}
	if oop, ok := opcodes.Lookup("red_oopspec_call_2"); !ok || oop.Format != "ibii" {
		t.Errorf("Expected oopspec opcode to be created on demand, is %v", oop)
	}
	if _, ok := opcodes.Lookup("red_oopspec_call_x"); ok {
		t.Errorf("Expected malformed oopspec opcode to be unknown")
	}
}

// Scenario A: a function called with literal arguments only.
func TestLiteralArgumentsStayGreen(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
extern log(x: Signed): Void
graph add(a: Signed, b: Signed): Signed {
    direct_call(@log, a)
    s = int_add(a, b)
    return s
}
graph main(): Signed {
    r = direct_call(@add, 3, 4)
    return r
}`
	_, jc := compile(t, src, "main", hint.DefaultPolicy())
	if len(jc.CalledBytecodes) != 1 {
		t.Fatalf("Expected main to call one graph, is %d", len(jc.CalledBytecodes))
	}
	if _, ok := findOp(t, jc, "yellow_direct_call"); !ok {
		t.Errorf("Expected call with green result to be yellow, is %v", opNames(t, jc))
	}
	callee := jc.CalledBytecodes[0]
	for _, name := range opNames(t, callee) {
		if strings.HasPrefix(name, "red_int_") {
			t.Errorf("Expected no red arithmetic in callee, found %s", name)
		}
	}
	if callee.CountOps("green_int_add") != 1 {
		t.Errorf("Expected one green addition, is %v", opNames(t, callee))
	}
	if callee.GraphColor != "yellow" {
		t.Errorf("Expected callee to be yellow, is %s", callee.GraphColor)
	}
}

// Scenario B: field read through a red pointer to a mutable struct.
func TestRedFieldRead(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
type Mut struct { x: Signed, y: Signed }
graph read(p: *Mut): Signed {
    v = getfield(p, "y")
    return v
}`
	_, jc := compile(t, src, "read", hint.DefaultPolicy())
	expected := []string{"red_getfield", "make_new_redvars", "make_new_greenvars", "red_return"}
	if diff := cmp.Diff(expected, opNames(t, jc)); diff != "" {
		t.Errorf("Unexpected instructions (-want +got):\n%s", diff)
	}
	get, _ := findOp(t, jc, "red_getfield")
	if diff := cmp.Diff([]interface{}{0, 0, false}, get.Args); diff != "" {
		t.Errorf("Unexpected operands of red_getfield (-want +got):\n%s", diff)
	}
	if len(jc.FieldDescs) != 1 || jc.FieldDescs[0].Field != "y" || jc.FieldDescs[0].Index != 1 {
		t.Errorf("Expected field descriptor for Mut.y, is %v", jc.FieldDescs)
	}
	if !strings.Contains(strings.Join(jc.Source(), "\n"), "=> r1") {
		t.Errorf("Expected field value to be registered as r1, listing is\n%s", strings.Join(jc.Source(), "\n"))
	}
	if !jc.IsPortal || jc.GraphColor != "red" {
		t.Errorf("Expected red portal, is %s portal=%v", jc.GraphColor, jc.IsPortal)
	}
}

// Scenario C: indirect call through a red function pointer.
func TestIndirectCallThroughRedPointer(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
graph double(x: Signed): Signed {
    y = int_mul(x, 2)
    return y
}
graph succ(x: Signed): Signed {
    y = int_add_ovf(x, 1)
    return y
}
graph main(fp: *func(Signed): Signed): Signed {
    r = indirect_call(fp, 3, [@double, @succ])
    return r
}`
	_, jc := compile(t, src, "main", hint.DefaultPolicy())
	names := opNames(t, jc)
	for _, forbidden := range []string{"red_direct_call", "red_indirect_call", "yellow_indirect_call"} {
		if jc.CountOps(forbidden) != 0 {
			t.Errorf("Expected no %s, is %v", forbidden, names)
		}
	}
	expected := []string{"make_redbox", "red_residual_call", "promote", "residual_fetch"}
	if diff := cmp.Diff(expected, names[:4]); diff != "" {
		t.Errorf("Unexpected residual call sequence (-want +got):\n%s", diff)
	}
	call, _ := findOp(t, jc, "red_residual_call")
	if call.Args[2] != true {
		t.Errorf("Expected residual call to check exceptions, is %v", call)
	}
	fetch, _ := findOp(t, jc, "residual_fetch")
	if fetch.Args[0] != true {
		t.Errorf("Expected residual fetch with exception check, is %v", fetch)
	}
	if len(jc.CalledBytecodes) != 0 {
		t.Errorf("Expected no bytecode for residual targets, is %v", jc.CalledBytecodes)
	}
	if len(jc.CallDescs) != 1 || jc.CallDescs[0].ResultKind != "word" {
		t.Errorf("Expected one call descriptor, is %v", jc.CallDescs)
	}
}

// Scenario D: a value promoted twice in one block.
func TestPromotionReused(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
graph prom(x: Signed): Signed {
    p1 = hint(x, {promote})
    p2 = hint(x, {promote})
    y = int_mul(p1, p2)
    return y
}`
	_, jc := compile(t, src, "prom", hint.DefaultPolicy())
	if n := jc.CountOps("promote"); n != 1 {
		t.Errorf("Expected a single promotion, is %d", n)
	}
	mul, ok := findOp(t, jc, "green_int_mul")
	if !ok {
		t.Fatalf("Expected green multiplication, is %v", opNames(t, jc))
	}
	if mul.Args[0] != mul.Args[1] {
		t.Errorf("Expected both reads to use the same green register, is %v", mul)
	}
	if len(jc.PromotionDescs) != 1 || jc.PromotionDescs[0].Erased != "Signed" {
		t.Errorf("Expected one Signed promotion descriptor, is %v", jc.PromotionDescs)
	}
}

func TestLoopMergePoint(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
graph count(n: Signed): Signed {
    goto loop(n, 0)
loop(i: Signed, acc: Signed):
    c = int_gt(i, 0)
    if c goto body(i, acc) else done(acc)
body(j: Signed, a: Signed):
    a2 = int_add(a, j)
    j2 = int_sub(j, 1)
    goto loop(j2, a2)
done(r: Signed):
    return r
}`
	_, jc := compile(t, src, "count", hint.DefaultPolicy())
	if jc.NumLocalMergePoints != 1 || jc.CountOps("local_merge") != 1 {
		t.Errorf("Expected one local merge point, is %d", jc.NumLocalMergePoints)
	}
	merge, _ := findOp(t, jc, "local_merge")
	if merge.Args[1] != -1 {
		t.Errorf("Expected merge point without green key, is %v", merge)
	}
	if jc.CountOps("red_goto_iftrue") != 1 || jc.CountOps("goto") != 1 {
		t.Errorf("Expected one conditional branch and one back edge, is %v", opNames(t, jc))
	}
	offsets := map[int]bool{}
	instrs := instructions(t, jc)
	for _, in := range instrs {
		offsets[in.Offset] = true
	}
	for _, in := range instrs {
		for i, f := range in.Op.Format {
			if f == 'L' && !offsets[in.Args[i].(int)] {
				t.Errorf("Expected branch target of %v to be an instruction", in)
			}
		}
	}
	if len(jc.Labels()) < 4 {
		t.Errorf("Expected labels for all blocks, is %v", jc.Labels())
	}
	var dump bytes.Buffer
	if err := jc.Dump(&dump); err != nil || !strings.Contains(dump.String(), "local_merge") {
		t.Errorf("Expected disassembly to show merge point, is %v\n%s", err, dump.String())
	}
}

func TestGlobalMergePoint(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
graph interp(pc: Signed): Signed {
    goto loop(pc)
loop(p: Signed):
    h = hint(p, {global_merge_point})
    c = int_lt(h, 100)
    if c goto step(h) else done(h)
step(q: Signed):
    q2 = int_add(q, 1)
    goto loop(q2)
done(r: Signed):
    return r
}`
	c, jc := compile(t, src, "interp", hint.DefaultPolicy())
	if jc.CountOps("guard_global_merge") != 1 || jc.CountOps("global_merge") != 1 {
		t.Errorf("Expected one global merge point, is %v", opNames(t, jc))
	}
	if jc.CountOps("local_merge") != 0 || c.NumGlobalMergePoints() != 1 {
		t.Errorf("Expected merge point to be global only, have %d global", c.NumGlobalMergePoints())
	}
	//
	bad := `
graph f(x: Signed): Signed {
    goto next(x)
next(y: Signed):
    h = hint(y, {global_merge_point})
    return h
}`
	m, ctx := annotate(t, bad, "f", hint.DefaultPolicy())
	_, err := NewCompiler(ctx).Compile(m.Graph("f"))
	if !errors.Is(err, tinct.ErrAnalysis) {
		t.Errorf("Expected ambiguous merge point hint to fail, is %v", err)
	}
}

func TestCallToRedGraph(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
type Point struct { x: Signed }
graph setx(p: *Point, v: Signed): Void {
    setfield(p, "x", v)
    return
}
graph main(p: *Point, v: Signed): Signed {
    direct_call(@setx, p, v)
    r = getfield(p, "x")
    return r
}`
	_, jc := compile(t, src, "main", hint.DefaultPolicy())
	call, ok := findOp(t, jc, "red_direct_call")
	if !ok {
		t.Fatalf("Expected red direct call, is %v", opNames(t, jc))
	}
	if diff := cmp.Diff([]interface{}{[]int{}, []int{0, 1}, 0}, call.Args); diff != "" {
		t.Errorf("Unexpected call operands (-want +got):\n%s", diff)
	}
	if jc.CountOps("red_after_direct_call") != 1 {
		t.Errorf("Expected red_after_direct_call")
	}
	callee := jc.CalledBytecodes[0]
	if callee.GraphColor != "gray" || callee.CountOps("gray_return") != 1 {
		t.Errorf("Expected gray callee, is %s", callee.GraphColor)
	}
	if callee.CountOps("red_setfield") != 1 {
		t.Errorf("Expected field write in callee, is %v", opNames(t, callee))
	}
}

func TestOopspecCall(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
type List array Signed
extern ll_getitem(l: *List, index: Signed): Signed oopspec "list.getitem(l, index)"
graph main(l: *List): Signed {
    r = direct_call(@ll_getitem, l, 1)
    return r
}`
	policy := hint.DefaultPolicy()
	policy.Oopspec = true
	_, jc := compile(t, src, "main", policy)
	call, ok := findOp(t, jc, "red_oopspec_call_2")
	if !ok {
		t.Fatalf("Expected oopspec call, is %v", opNames(t, jc))
	}
	if call.Args[1] != false {
		t.Errorf("Expected receiver not to be deep-frozen, is %v", call)
	}
	if len(jc.OopSpecDescs) != 1 || jc.OopSpecDescs[0].Name != "list.getitem" || !jc.OopSpecDescs[0].IsMethod {
		t.Errorf("Expected oopspec descriptor for list.getitem, is %v", jc.OopSpecDescs)
	}
}

func TestKeyDescInterning(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	c := NewCompiler(hint.NewContext(hint.DefaultPolicy()))
	w := newWriter(c, &flow.Graph{Name: "keys"}, &JitCode{Name: "keys"})
	k1 := w.keydescPosition([]*flow.Type{flow.Signed, flow.Char})
	k2 := w.keydescPosition([]*flow.Type{flow.Signed, flow.Char})
	k3 := w.keydescPosition([]*flow.Type{flow.Signed})
	if k1 != k2 || k1 == k3 {
		t.Errorf("Expected identical tuples to share a descriptor, is %d %d %d", k1, k2, k3)
	}
	if w.keydescPosition(nil) != -1 {
		t.Errorf("Expected empty key to be -1")
	}
	if len(w.code.KeyDescs) != 2 {
		t.Errorf("Expected 2 key descriptors, is %d", len(w.code.KeyDescs))
	}
	c1 := w.constPosition(flow.Const(5, flow.Signed))
	c2 := w.constPosition(flow.Const(5, flow.Signed))
	if c1 != c2 || w.constPosition(flow.Const(5, flow.Char)) == c1 {
		t.Errorf("Expected constants to be interned by type and value")
	}
}

func TestBundleRoundTrip(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
type Point struct { x: Signed }
graph setx(p: *Point, v: Signed): Void {
    setfield(p, "x", v)
    return
}
graph main(p: *Point, v: Signed): Signed {
    direct_call(@setx, p, v)
    r = getfield(p, "x")
    return r
}`
	c, jc := compile(t, src, "main", hint.DefaultPolicy())
	var buf bytes.Buffer
	if err := c.Bundle(jc).Encode(&buf); err != nil {
		t.Fatal(err)
	}
	b, err := DecodeBundle(&buf)
	if err != nil {
		t.Fatal(err)
	}
	codes, err := b.JitCodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 2 || codes[0].Name != "main" || codes[0].CalledBytecodes[0] != codes[1] {
		t.Fatalf("Expected portal and callee, is %v", codes)
	}
	render := func(jc *JitCode) []string {
		var lines []string
		for _, in := range instructions(t, jc) {
			lines = append(lines, in.String())
		}
		return lines
	}
	if diff := cmp.Diff(render(jc), render(codes[0])); diff != "" {
		t.Errorf("Decoded bytecode differs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(jc.FieldDescs, codes[0].FieldDescs); diff != "" {
		t.Errorf("Decoded field descriptors differ (-want +got):\n%s", diff)
	}
}

func TestRecursiveGraph(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
graph fact(n: Signed): Signed {
    c = int_le(n, 1)
    if c goto base() else step(n)
base():
    return 1
step(k: Signed):
    k1 = int_sub(k, 1)
    r = direct_call(@fact, k1)
    p = int_mul(k, r)
    return p
}
graph main(n: Signed): Signed {
    r = direct_call(@fact, n)
    return r
}`
	m, ctx := annotate(t, src, "main", hint.DefaultPolicy())
	r := m.Graph("main").StartBlock.Operations[0].Result
	if ctx.IsGreen(r) {
		t.Errorf("Expected result of recursive call on red argument to be red, is %s", ctx.Binding(r))
	}
	if n := len(ctx.Specializations(m.Graph("fact"))); n != 1 {
		t.Errorf("Expected recursion to reuse one specialization, is %d", n)
	}
	c := NewCompiler(ctx)
	jc, err := c.Compile(m.Graph("main"))
	if err != nil {
		t.Fatal(err)
	}
	if len(jc.CalledBytecodes) != 1 {
		t.Fatalf("Expected one callee, is %d", len(jc.CalledBytecodes))
	}
	callee := jc.CalledBytecodes[0]
	if len(callee.CalledBytecodes) != 1 || callee.CalledBytecodes[0] != callee {
		t.Errorf("Expected callee to call its own bytecode")
	}
}

// checkRedRegisters follows every path through the bytecode of jc and checks
// that each red register read on a path has been written on that path. It
// knows the instructions of integer code only. nargs is the number of red
// arguments of the graph.
func checkRedRegisters(t *testing.T, jc *JitCode, nargs int) {
	t.Helper()
	instrs := instructions(t, jc)
	at := make(map[int]int, len(instrs))
	for i, in := range instrs {
		at[in.Offset] = i
	}
	read := func(in Instr, defined int, regs ...int) bool {
		for _, r := range regs {
			if r < 0 || r >= defined {
				t.Errorf("%s reads r%d, but only r0..r%d are written on this path", in, r, defined-1)
				return false
			}
		}
		return true
	}
	type state struct{ pc, defined int }
	visited := map[state]bool{}
	work := []state{{0, nargs}}
	for len(work) > 0 {
		s := work[len(work)-1]
		work = work[:len(work)-1]
		for ok := true; ok && s.pc < len(instrs); {
			if visited[s] {
				break
			}
			visited[s] = true
			in := instrs[s.pc]
			next := s.pc + 1
			switch name := in.Op.Name; {
			case name == "goto":
				next = at[in.Args[0].(int)]
			case name == "red_goto_iftrue":
				ok = read(in, s.defined, in.Args[0].(int))
				work = append(work, state{at[in.Args[1].(int)], s.defined})
			case name == "make_new_redvars":
				regs := in.Args[0].([]int)
				ok = read(in, s.defined, regs...)
				s.defined = len(regs)
			case name == "make_redbox":
				s.defined++
			case name == "red_return":
				ok = false
			case name == "make_new_greenvars" || name == "local_merge" || name == "green_goto_iftrue":
			case strings.HasPrefix(name, "red_int_"):
				regs := make([]int, len(in.Args))
				for i, a := range in.Args {
					regs[i] = a.(int)
				}
				ok = read(in, s.defined, regs...)
				s.defined++
			case strings.HasPrefix(name, "green_"):
			default:
				t.Fatalf("Unexpected instruction %s", in)
			}
			s.pc = next
		}
	}
}

func TestGreenValueAcrossRedBranch(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
graph f(x: Signed): Signed {
    g = int_add(1, 2)
    c = int_gt(x, 0)
    if c goto join(g, x) else goto join(x, g)
join(a: Signed, b: Signed):
    r = int_add(a, b)
    return r
}`
	_, jc := compile(t, src, "f", hint.DefaultPolicy())
	instrs := instructions(t, jc)
	branch := -1
	for i, in := range instrs {
		if in.Op.Name == "red_goto_iftrue" {
			branch = i
		}
	}
	if branch < 0 {
		t.Fatalf("Expected red branch, is %v", opNames(t, jc))
	}
	boxes := 0
	for _, in := range instrs[:branch] {
		if in.Op.Name == "make_redbox" {
			boxes++
		}
	}
	if boxes == 0 {
		t.Errorf("Expected green g to be boxed before the branch, is %v", opNames(t, jc))
	}
	if n := jc.CountOps("make_redbox"); n != boxes {
		t.Errorf("Expected no boxing after the branch, is %d boxes in %v", n-boxes, opNames(t, jc))
	}
	checkRedRegisters(t, jc, 1)
}

func TestRegistersWrittenOnEveryPath(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	sources := map[string]string{
		"count": `
graph count(n: Signed): Signed {
    goto loop(n, 0)
loop(i: Signed, acc: Signed):
    c = int_gt(i, 0)
    if c goto body(i, acc) else done(acc)
body(j: Signed, a: Signed):
    a2 = int_add(a, j)
    j2 = int_sub(j, 1)
    goto loop(j2, a2)
done(r: Signed):
    return r
}`,
		"pick": `
graph pick(x: Signed, y: Signed): Signed {
    k = int_mul(6, 7)
    c = int_lt(x, y)
    if c goto left(k, x) else goto right(y, k)
left(a: Signed, b: Signed):
    s = int_sub(a, b)
    goto done(s)
right(d: Signed, e: Signed):
    goto done(e)
done(v: Signed):
    return v
}`,
	}
	for entry, src := range sources {
		m, _ := annotate(t, src, entry, hint.DefaultPolicy())
		_, jc := compile(t, src, entry, hint.DefaultPolicy())
		checkRedRegisters(t, jc, len(m.Graph(entry).Args()))
	}
}

func TestResidualCallWithoutRaisingTargets(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.jitcode")
	defer teardown()
	//
	src := `
graph double(x: Signed): Signed {
    y = int_mul(x, 2)
    return y
}
graph triple(x: Signed): Signed {
    y = int_mul(x, 3)
    return y
}
graph main(fp: *func(Signed): Signed): Signed {
    r = indirect_call(fp, 5, [@double, @triple])
    return r
}`
	_, jc := compile(t, src, "main", hint.DefaultPolicy())
	call, ok := findOp(t, jc, "red_residual_call")
	if !ok {
		t.Fatalf("Expected residual call, is %v", opNames(t, jc))
	}
	if call.Args[2] != false {
		t.Errorf("Expected call to non-raising targets without exception recording, is %v", call)
	}
	fetch, ok := findOp(t, jc, "residual_fetch")
	if !ok || fetch.Args[0] != true {
		t.Errorf("Expected residual fetch to check exceptions, is %v", fetch)
	}
}
