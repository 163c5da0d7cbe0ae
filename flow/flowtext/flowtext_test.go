package flowtext

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/npillmayer/tinct/flow"
)

const sample = `
# a small program
type Point struct { x: Signed, y: Signed }
type Node struct [immutable] { next: *Node, val: Signed }
type Vec array Signed

extern ll_len(l: *Vec): Signed oopspec "list.len(l)" pure

graph inc(x: Signed): Signed {
    y = int_add(x, 1)
    return y
}

graph main(n: Signed): Signed {
    c = int_gt(n, 0)
    if c goto pos(n) else done(0)
pos(a: Signed):
    r = direct_call(@inc, a)
    goto done(r)
done(v: Signed):
    return v
}
`

func TestTokenize(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flowtext")
	defer teardown()
	//
	toks, err := Tokenize(`r = direct_call(@inc, -3) # comment`)
	if err != nil {
		t.Fatal(err)
	}
	var lexemes []string
	for _, tok := range toks {
		if tok.TokType() != EOF {
			lexemes = append(lexemes, tok.Lexeme())
		}
	}
	expected := []string{"r", "=", "direct_call", "(", "@", "inc", ",", "-3", ")"}
	if diff := cmp.Diff(expected, lexemes); diff != "" {
		t.Errorf("unexpected tokens (-want +got):\n%s", diff)
	}
	if toks[7].Value() != int64(-3) {
		t.Errorf("Expected number token to carry -3, is %v", toks[7].Value())
	}
	if toks[len(toks)-1].TokType() != EOF {
		t.Errorf("Expected token list to end with EOF")
	}
}

func TestTokenizeRejectsGarbage(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flowtext")
	defer teardown()
	//
	if _, err := Tokenize("x = int_add(x, $)"); err == nil {
		t.Errorf("Expected scanner error for '$'")
	}
}

func TestParseModule(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flowtext")
	defer teardown()
	//
	m, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Graphs) != 2 {
		t.Fatalf("Expected 2 graphs, is %d", len(m.Graphs))
	}
	main := m.Graph("main")
	if main == nil || main.Func == nil || main.Func.Name != "main" {
		t.Fatalf("Expected graph main with function object")
	}
	start := main.StartBlock
	if len(start.Exits) != 2 || start.ExitSwitch == nil {
		t.Fatalf("Expected start block of main to branch")
	}
	if start.Exits[1].ExitCase != true {
		t.Errorf("Expected second exit to be the true case, is %v", start.Exits[1].ExitCase)
	}
	pos := start.Exits[1].Target
	call := pos.Operations[0]
	if call.Name != "direct_call" || call.Result.Type != flow.Signed {
		t.Errorf("Expected direct_call with Signed result, is %v", call)
	}
	fn := call.Args[0].(*flow.Constant).Value.(*flow.Func)
	if fn.Graph != m.Graph("inc") {
		t.Errorf("Expected call target to be graph inc")
	}
	if len(main.Blocks()) != 4 {
		t.Errorf("Expected 4 blocks in main, is %d", len(main.Blocks()))
	}
	ext := m.Funcs["ll_len"]
	if ext.Graph != nil || !ext.Pure || ext.OopSpec != "list.len(l)" {
		t.Errorf("Expected pure external ll_len with oopspec, is %+v", ext)
	}
	node := m.Types["Node"]
	if ft, _ := node.FieldType("next"); ft != flow.Ptr(node) {
		t.Errorf("Expected Node.next to point to Node, is %v", ft)
	}
	if !node.Immutable() {
		t.Errorf("Expected Node to be immutable")
	}
}

func TestForwardGraphReference(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flowtext")
	defer teardown()
	//
	m, err := Parse(`
graph even(n: Signed): Bool {
    r = direct_call(@odd, n)
    return r
}
graph odd(n: Signed): Bool {
    r = direct_call(@even, n)
    return r
}`)
	if err != nil {
		t.Fatal(err)
	}
	op := m.Graph("even").StartBlock.Operations[0]
	if op.Result.Type != flow.Bool {
		t.Errorf("Expected Bool result of call to odd, is %v", op.Result.Type)
	}
}

func TestOperandNotation(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flowtext")
	defer teardown()
	//
	m, err := Parse(`
type Point struct { x: Signed, y: Signed }
graph f(x: Signed): Signed {
    return x
}
graph g(x: Signed): Signed {
    return x
}
graph main(fp: *func(Signed): Signed, k: Char): Signed {
    p = malloc(%Point)
    setfield(p, "x", 7)
    a = getfield(p, "x")
    h = hint(a, {concrete})
    r = indirect_call(fp, h, [@f, @g])
    u = indirect_call(fp, r, [])
    f1 = cast_int_to_float(u)
    c = char_eq(k, 65:Char)
    goto done(u)
done(v: Signed):
    return v
}`)
	if err != nil {
		t.Fatal(err)
	}
	ops := m.Graph("main").StartBlock.Operations
	if ops[0].Result.Type != flow.Ptr(m.Types["Point"]) {
		t.Errorf("Expected malloc to return *Point, is %v", ops[0].Result.Type)
	}
	if ops[1].Result.Type != flow.Void {
		t.Errorf("Expected setfield to be Void, is %v", ops[1].Result.Type)
	}
	flags := ops[3].Args[1].(*flow.Constant).Value.(flow.HintFlags)
	if !flags["concrete"] {
		t.Errorf("Expected concrete hint flag, is %v", flags)
	}
	targets := ops[4].Args[2].(*flow.Constant).Value.([]*flow.Graph)
	if len(targets) != 2 || targets[0] != m.Graph("f") {
		t.Errorf("Expected targets [f g], is %v", targets)
	}
	if unknown := ops[5].Args[2].(*flow.Constant).Value.([]*flow.Graph); unknown != nil {
		t.Errorf("Expected unknown targets to be nil, is %v", unknown)
	}
	if ops[6].Result.Type != flow.Float {
		t.Errorf("Expected Float cast result, is %v", ops[6].Result.Type)
	}
	c := ops[7]
	if c.Result.Type != flow.Bool || c.Args[1].(*flow.Constant).Value != byte(65) {
		t.Errorf("Expected Bool comparison with Char constant, is %v", c)
	}
}

func TestSyntaxErrors(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flowtext")
	defer teardown()
	//
	inputs := map[string]string{
		"undefined variable": `graph f(x: Signed): Signed { return y }`,
		"label arity": `graph f(x: Signed): Signed {
    goto l(x, x)
l(a: Signed):
    return a
}`,
		"undefined label":    `graph f(x: Signed): Signed { goto nowhere(x) }`,
		"unknown type":       `graph f(x: Thing): Signed { return x }`,
		"wrong return type":  `graph f(x: Bool): Signed { return x }`,
		"unterminated body":  `graph f(x: Signed): Signed { return x`,
		"block scoped names": `graph f(x: Signed): Signed {
    goto l()
l():
    return x
}`,
	}
	for name, input := range inputs {
		_, err := Parse(input)
		var serr *SyntaxError
		if !errors.As(err, &serr) {
			t.Errorf("%s: expected syntax error, is %v", name, err)
		} else {
			t.Logf("%s: %v", name, serr)
		}
	}
}

func TestElseBranchNotation(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.flowtext")
	defer teardown()
	//
	for _, elseBranch := range []string{"else done(0)", "else goto done(0)"} {
		m, err := Parse(`graph f(n: Signed): Signed {
    c = int_gt(n, 0)
    if c goto done(n) ` + elseBranch + `
done(v: Signed):
    return v
}`)
		if err != nil {
			t.Errorf("%s: expected to parse, is %v", elseBranch, err)
			continue
		}
		start := m.Graph("f").StartBlock
		if len(start.Exits) != 2 || start.Exits[0].ExitCase != false || start.Exits[1].ExitCase != true {
			t.Errorf("%s: expected false and true exit, is %v", elseBranch, start.Exits)
		}
		if start.Exits[0].Target != start.Exits[1].Target {
			t.Errorf("%s: expected both exits to reach done", elseBranch)
		}
	}
	if _, err := Parse(`graph f(n: Signed): Signed {
    c = int_gt(n, 0)
    if c goto done(n) done(0)
done(v: Signed):
    return v
}`); err == nil {
		t.Errorf("Expected if without else to fail")
	}
}
