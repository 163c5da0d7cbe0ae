package flowtext

/*
License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/

import (
	"fmt"
	"strings"

	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
)

// Module is the result of parsing a flow graph text.
type Module struct {
	Types  map[string]*flow.Type
	Funcs  map[string]*flow.Func
	Graphs []*flow.Graph // in order of declaration
}

// Graph returns the graph with a given name, or nil.
func (m *Module) Graph(name string) *flow.Graph {
	if f, ok := m.Funcs[name]; ok {
		return f.Graph
	}
	return nil
}

// SyntaxError is returned for malformed input.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("flowtext: line %d: %s", e.Line, e.Msg)
}

// Parse reads a flow graph text. Declarations may refer to graphs declared
// later in the text, but types have to be declared before their first use
// (struct types may refer to themselves).
func Parse(input string) (m *Module, err error) {
	toks, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks: toks,
		mod: &Module{
			Types: make(map[string]*flow.Type),
			Funcs: make(map[string]*flow.Func),
		},
	}
	defer func() {
		if r := recover(); r != nil {
			serr, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			tracer().Errorf("%v", serr)
			m, err = nil, serr
		}
	}()
	bodies := p.declarations()
	for _, body := range bodies {
		p.pos = body.start
		p.graphBody(body.fn)
	}
	tracer().Infof("parsed %d graphs", len(p.mod.Graphs))
	return p.mod, nil
}

// MustParse is like Parse, but panics on errors.
func MustParse(input string) *Module {
	m, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return m
}

type parser struct {
	toks []FlowToken
	pos  int
	mod  *Module
	// per graph
	scope   map[string]*flow.Variable
	blocks  map[string]*flow.Block
	fixups  []fixup
	current *flow.Block
}

type fixup struct {
	link  *flow.Link
	label string
	line  int
}

type graphBody struct {
	fn    *flow.Func
	start int
}

// --- Tokens ----------------------------------------------------------------

func (p *parser) peek() FlowToken {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) FlowToken {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() FlowToken {
	t := p.toks[p.pos]
	if t.toktype != EOF {
		p.pos++
	}
	return t
}

func (p *parser) is(lit byte) bool {
	return p.peek().toktype == tinctTok(lit)
}

func (p *parser) isWord(w string) bool {
	t := p.peek()
	return t.toktype == Ident && t.lexeme == w
}

func (p *parser) accept(lit byte) bool {
	if p.is(lit) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(lit byte) {
	if !p.accept(lit) {
		p.errorf("expected '%c', found %v", lit, p.peek())
	}
}

func (p *parser) ident() string {
	t := p.next()
	if t.toktype != Ident {
		p.errorAt(t, "expected identifier, found %v", t)
	}
	return t.lexeme
}

func (p *parser) errorf(format string, args ...interface{}) {
	p.errorAt(p.peek(), format, args...)
}

func (p *parser) errorAt(t FlowToken, format string, args ...interface{}) {
	panic(&SyntaxError{Line: t.line, Msg: fmt.Sprintf(format, args...)})
}

// --- Declarations ----------------------------------------------------------

// declarations reads types, externals and graph headers. Graph bodies are
// skipped and returned for a second pass.
func (p *parser) declarations() []graphBody {
	var bodies []graphBody
	for p.peek().toktype != EOF {
		switch kw := p.ident(); kw {
		case "type":
			p.typeDecl()
		case "extern":
			p.funcHeader(false)
		case "graph":
			fn := p.funcHeader(true)
			p.expect('{')
			bodies = append(bodies, graphBody{fn: fn, start: p.pos})
			p.skipBody()
		default:
			p.errorAt(p.toks[p.pos-1], "expected declaration, found %q", kw)
		}
	}
	return bodies
}

func (p *parser) skipBody() {
	depth := 1
	for depth > 0 {
		t := p.next()
		switch t.toktype {
		case EOF:
			p.errorAt(t, "unterminated graph body")
		case tinctTok('{'):
			depth++
		case tinctTok('}'):
			depth--
		}
	}
}

func (p *parser) typeDecl() {
	t := p.peek()
	name := p.ident()
	if _, exists := p.mod.Types[name]; exists || flow.Primitive(name) != nil {
		p.errorAt(t, "type %s already defined", name)
	}
	switch kind := p.ident(); kind {
	case "struct":
		hints := p.hints()
		st := flow.ForwardStruct(name, hints)
		p.mod.Types[name] = st
		p.expect('{')
		var fields []flow.Field
		for !p.is('}') {
			fname := p.ident()
			p.expect(':')
			fields = append(fields, flow.F(fname, p.typ()))
			if !p.accept(',') {
				break
			}
		}
		p.expect('}')
		st.Define(fields...)
	case "array":
		hints := p.hints()
		p.mod.Types[name] = flow.Array(name, p.typ(), hints)
	default:
		p.errorAt(t, "expected struct or array, found %q", kind)
	}
}

func (p *parser) hints() flow.Hints {
	var h flow.Hints
	if !p.accept('[') {
		return h
	}
	for {
		t := p.peek()
		switch p.ident() {
		case "immutable":
			h.Immutable = true
		case "virtualizable":
			h.Virtualizable = true
		default:
			p.errorAt(t, "unknown type hint %q", t.lexeme)
		}
		if !p.accept(',') {
			break
		}
	}
	p.expect(']')
	return h
}

func (p *parser) typ() *flow.Type {
	if p.accept('*') {
		return flow.Ptr(p.typ())
	}
	t := p.peek()
	name := p.ident()
	if name == "func" {
		p.expect('(')
		var args []*flow.Type
		for !p.is(')') {
			args = append(args, p.typ())
			if !p.accept(',') {
				break
			}
		}
		p.expect(')')
		p.expect(':')
		return flow.FuncType(p.typ(), args...)
	}
	if prim := flow.Primitive(name); prim != nil {
		return prim
	}
	if decl, ok := p.mod.Types[name]; ok {
		return decl
	}
	p.errorAt(t, "unknown type %q", name)
	return nil
}

// funcHeader reads "name(params): type attributes". For graphs, the start
// block and the return block are created.
func (p *parser) funcHeader(withGraph bool) *flow.Func {
	t := p.peek()
	name := p.ident()
	if _, exists := p.mod.Funcs[name]; exists {
		p.errorAt(t, "function %s already defined", name)
	}
	names, types := p.params()
	p.expect(':')
	restype := p.typ()
	fn := &flow.Func{Name: name, Type: flow.FuncType(restype, types...), ParamNames: names}
	p.attributes(fn)
	if withGraph {
		args := make([]*flow.Variable, len(names))
		for i := range names {
			args[i] = &flow.Variable{Name: names[i], Type: types[i]}
		}
		fn.Graph = &flow.Graph{
			Name:        name,
			StartBlock:  flow.NewBlock(args...),
			ReturnBlock: flow.NewBlock(&flow.Variable{Name: "result", Type: restype}),
			Func:        fn,
		}
		p.mod.Graphs = append(p.mod.Graphs, fn.Graph)
	}
	p.mod.Funcs[name] = fn
	return fn
}

func (p *parser) params() ([]string, []*flow.Type) {
	var names []string
	var types []*flow.Type
	p.expect('(')
	for !p.is(')') {
		names = append(names, p.ident())
		p.expect(':')
		types = append(types, p.typ())
		if !p.accept(',') {
			break
		}
	}
	p.expect(')')
	return names, types
}

func (p *parser) attributes(fn *flow.Func) {
	for {
		switch {
		case p.isWord("pure"):
			p.next()
			fn.Pure = true
		case p.isWord("raises"):
			p.next()
			fn.CanRaise = true
		case p.isWord("oopspec"):
			p.next()
			fn.OopSpec = p.str()
		case p.isWord("kind"):
			p.next()
			fn.CallKind = p.str()
		default:
			return
		}
	}
}

func (p *parser) str() string {
	t := p.next()
	if t.toktype != String {
		p.errorAt(t, "expected string, found %v", t)
	}
	return t.value.(string)
}

// --- Graph bodies ----------------------------------------------------------

func (p *parser) graphBody(fn *flow.Func) {
	g := fn.Graph
	p.scope = make(map[string]*flow.Variable)
	p.blocks = make(map[string]*flow.Block)
	p.fixups = nil
	p.current = g.StartBlock
	for _, v := range g.StartBlock.InputArgs {
		p.scope[v.Name] = v
	}
	tracer().Debugf("parsing body of graph %s", g.Name)
	for {
		p.statements(g)
		if p.accept('}') {
			break
		}
		p.label()
	}
	for _, fx := range p.fixups {
		target, ok := p.blocks[fx.label]
		if !ok {
			panic(&SyntaxError{Line: fx.line, Msg: fmt.Sprintf("undefined label %q in graph %s", fx.label, g.Name)})
		}
		if len(target.InputArgs) != len(fx.link.Args) {
			panic(&SyntaxError{Line: fx.line, Msg: fmt.Sprintf("label %q expects %d arguments, got %d",
				fx.label, len(target.InputArgs), len(fx.link.Args))})
		}
		fx.link.Target = target
	}
}

// label reads "name(params):" and opens a new block.
func (p *parser) label() {
	t := p.peek()
	name := p.ident()
	if _, exists := p.blocks[name]; exists {
		p.errorAt(t, "label %q already defined", name)
	}
	names, types := p.params()
	p.expect(':')
	p.scope = make(map[string]*flow.Variable)
	args := make([]*flow.Variable, len(names))
	for i := range names {
		args[i] = &flow.Variable{Name: names[i], Type: types[i]}
		p.scope[names[i]] = args[i]
	}
	p.current = flow.NewBlock(args...)
	p.blocks[name] = p.current
}

// statements reads operations up to and including the exit of the current
// block.
func (p *parser) statements(g *flow.Graph) {
	for {
		t := p.peek()
		if t.toktype != Ident {
			p.errorAt(t, "expected statement, found %v", t)
		}
		switch t.lexeme {
		case "goto":
			p.next()
			p.current.CloseBlock(p.jump())
			return
		case "if":
			p.next()
			cond := p.value()
			if !p.isWord("goto") {
				p.errorf("expected goto after condition")
			}
			p.next()
			iftrue := p.jump()
			if !p.isWord("else") {
				p.errorf("expected else branch")
			}
			p.next()
			if p.isWord("goto") {
				p.next()
			}
			iffalse := p.jump()
			iftrue.ExitCase, iffalse.ExitCase = true, false
			p.current.ExitSwitch = cond
			p.current.CloseBlock(iffalse, iftrue)
			return
		case "return":
			p.next()
			resvar := g.ReturnBlock.InputArgs[0]
			var v flow.Value
			if resvar.Type == flow.Void && (p.is('}') || p.peekAt(1).toktype == tinctTok('(')) {
				v = flow.VoidConst(nil)
			} else {
				v = p.value()
			}
			if v.ConcreteType() != resvar.Type {
				p.errorAt(t, "graph %s returns %v, not %v", g.Name, resvar.Type, v.ConcreteType())
			}
			p.current.CloseBlock(&flow.Link{Args: []flow.Value{v}, Target: g.ReturnBlock})
			return
		}
		p.operation()
	}
}

func (p *parser) jump() *flow.Link {
	t := p.peek()
	label := p.ident()
	link := &flow.Link{Args: p.args()}
	p.fixups = append(p.fixups, fixup{link: link, label: label, line: t.line})
	return link
}

// operation reads "[result [: type] =] opname(args)".
func (p *parser) operation() {
	t := p.peek()
	var resname string
	var restype *flow.Type
	if next := p.peekAt(1).toktype; next == tinctTok('=') || next == tinctTok(':') {
		resname = p.ident()
		if p.accept(':') {
			restype = p.typ()
		}
		p.expect('=')
	}
	opname := p.ident()
	args := p.args()
	if restype == nil {
		var err error
		if restype, err = resultType(opname, args); err != nil {
			p.errorAt(t, "%v", err)
		}
	}
	if resname == "" {
		resname = fmt.Sprintf("_%d", p.pos)
	} else if _, exists := p.scope[resname]; exists {
		p.errorAt(t, "variable %s redefined", resname)
	}
	res := &flow.Variable{Name: resname, Type: restype}
	p.scope[resname] = res
	p.current.Operations = append(p.current.Operations, &flow.Operation{Name: opname, Args: args, Result: res})
}

func (p *parser) args() []flow.Value {
	var args []flow.Value
	p.expect('(')
	for !p.is(')') {
		args = append(args, p.value())
		if !p.accept(',') {
			break
		}
	}
	p.expect(')')
	return args
}

func (p *parser) value() flow.Value {
	t := p.next()
	switch t.toktype {
	case Ident:
		switch t.lexeme {
		case "true", "false":
			return flow.Const(t.lexeme == "true", flow.Bool)
		case "null":
			p.expect(':')
			return flow.Const(nil, p.typ())
		}
		v, ok := p.scope[t.lexeme]
		if !ok {
			p.errorAt(t, "undefined variable %s", t.lexeme)
		}
		return v
	case Number:
		typ := flow.Signed
		if _, isFloat := t.value.(float64); isFloat {
			typ = flow.Float
		}
		if p.accept(':') {
			typ = p.typ()
		}
		if i, isInt := t.value.(int64); isInt && typ == flow.Float {
			return flow.Const(float64(i), typ)
		}
		return flow.Const(t.value, typ)
	case String:
		return flow.VoidConst(t.value)
	case tinctTok('@'):
		return flow.FuncConst(p.funcRef())
	case tinctTok('%'):
		return flow.VoidConst(p.typ())
	case tinctTok('{'):
		flags := flow.HintFlags{}
		for !p.is('}') {
			flags[p.ident()] = true
			if !p.accept(',') {
				break
			}
		}
		p.expect('}')
		return flow.VoidConst(flags)
	case tinctTok('['):
		var targets []*flow.Graph
		for !p.is(']') {
			p.expect('@')
			fn := p.funcRef()
			if fn.Graph == nil {
				p.errorf("%s has no graph", fn.Name)
			}
			targets = append(targets, fn.Graph)
			if !p.accept(',') {
				break
			}
		}
		p.expect(']')
		return flow.VoidConst(targets)
	}
	p.errorAt(t, "expected value, found %v", t)
	return nil
}

func (p *parser) funcRef() *flow.Func {
	t := p.peek()
	name := p.ident()
	fn, ok := p.mod.Funcs[name]
	if !ok {
		p.errorAt(t, "undefined function %s", name)
	}
	return fn
}

// --- Result types ----------------------------------------------------------

var voidOps = map[string]bool{
	"setfield": true, "setarrayitem": true, "setinteriorfield": true,
	"keepalive": true, "debug_assert": true, "jit_merge_point": true,
	"can_enter_jit": true, "zero_gc_pointers_inside": true,
}

var boolSuffixes = []string{"_lt", "_le", "_eq", "_ne", "_gt", "_ge", "_is_true",
	"_nonzero", "_iszero", "_not", "is_early_constant"}

// resultType derives the result type of an operation without an explicit
// result type.
func resultType(opname string, args []flow.Value) (*flow.Type, error) {
	if voidOps[opname] {
		return flow.Void, nil
	}
	for _, suffix := range boolSuffixes {
		if strings.HasSuffix(opname, suffix) {
			return flow.Bool, nil
		}
	}
	if len(args) == 0 {
		return flow.Void, nil
	}
	t0 := args[0].ConcreteType()
	switch opname {
	case "direct_call", "indirect_call":
		if !t0.IsPtr() || t0.Target().Kind != flow.FuncKind {
			return nil, fmt.Errorf("%s needs a function pointer, have %v", opname, t0)
		}
		return t0.Target().Result(), nil
	case "malloc", "malloc_varsize":
		c, ok := args[0].(*flow.Constant)
		if !ok {
			return nil, fmt.Errorf("%s needs a type operand", opname)
		}
		t, ok := c.Value.(*flow.Type)
		if !ok {
			return nil, fmt.Errorf("%s needs a type operand, have %v", opname, c)
		}
		return flow.Ptr(t), nil
	case "getfield", "getsubstruct":
		if len(args) < 2 || !t0.IsPtr() {
			return nil, fmt.Errorf("%s needs a pointer and a field name", opname)
		}
		var fname string
		if c, ok := args[1].(*flow.Constant); ok {
			fname, _ = c.Value.(string)
		}
		ft, ok := t0.Target().FieldType(fname)
		if !ok {
			return nil, fmt.Errorf("no field %q in %v", fname, t0.Target())
		}
		if opname == "getsubstruct" {
			return flow.Ptr(ft), nil
		}
		return ft, nil
	case "getarrayitem", "getarraysubstruct":
		if !t0.IsPtr() || t0.Target().Kind != flow.ArrayKind {
			return nil, fmt.Errorf("%s needs an array pointer, have %v", opname, t0)
		}
		if opname == "getarraysubstruct" {
			return flow.Ptr(t0.Target().Item()), nil
		}
		return t0.Target().Item(), nil
	case "getarraysize", "getinteriorarraysize":
		return flow.Signed, nil
	case "cast_int_to_float":
		return flow.Float, nil
	case "cast_float_to_int":
		return flow.Signed, nil
	}
	return t0, nil
}

func tinctTok(lit byte) tinct.TokType {
	return tinct.TokType(lit)
}
