package jitcode

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cnf/structhash"
	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
	"github.com/npillmayer/tinct/hint"
	"golang.org/x/tools/container/intsets"
)

// regKey identifies a register. Most registers hold a variable. Green
// constants converted to red, promoted values and the flags of residual calls
// are cached per block or per operation.
type regKey struct {
	v     flow.Value
	block *flow.Block
	op    *flow.Operation
	tag   string
}

type mergeKind uint8

const (
	localMerge mergeKind = iota + 1
	globalMerge
)

func (k mergeKind) String() string {
	if k == globalMerge {
		return "global"
	}
	return "local"
}

type constKey struct {
	t    *flow.Type
	v    interface{}
	repr string
}

type fieldKey struct {
	t    *flow.Type
	name string
}

type interiorKey struct {
	t    *flow.Type
	path string
}

type oopspecKey struct {
	fn       *flow.Func
	canRaise bool
}

// writer emits the bytecode of one graph.
type writer struct {
	c         *Compiler
	ctx       *hint.Context
	graph     *flow.Graph
	code      *JitCode
	asm       *arena
	current   *flow.Block
	currentOp *flow.Operation
	seen      intsets.Sparse // blocks being emitted or sealed
	sealed    intsets.Sparse
	freeRed   map[*flow.Block]int
	freeGreen map[*flow.Block]int
	redvars   map[regKey]int
	greenvars map[regKey]int
	merges    map[*flow.Block]mergeKind
	numLocal  int
	literals  map[int]*flow.Constant

	constPos     map[constKey]int
	typePos      map[*flow.Type]int
	keydescPos   map[string]int
	structPos    map[*flow.Type]int
	fieldPos     map[fieldKey]int
	arrayPos     map[*flow.Type]int
	interiorPos  map[interiorKey]int
	oopspecPos   map[oopspecKey]int
	promotionPos map[string]int
	graphPos     map[*flow.Graph]int
	calldescPos  map[string]int
}

func newWriter(c *Compiler, g *flow.Graph, code *JitCode) *writer {
	return &writer{
		c:            c,
		ctx:          c.ctx,
		graph:        g,
		code:         code,
		asm:          newArena(),
		freeRed:      make(map[*flow.Block]int),
		freeGreen:    make(map[*flow.Block]int),
		redvars:      make(map[regKey]int),
		greenvars:    make(map[regKey]int),
		merges:       make(map[*flow.Block]mergeKind),
		literals:     make(map[int]*flow.Constant),
		constPos:     make(map[constKey]int),
		typePos:      make(map[*flow.Type]int),
		keydescPos:   make(map[string]int),
		structPos:    make(map[*flow.Type]int),
		fieldPos:     make(map[fieldKey]int),
		arrayPos:     make(map[*flow.Type]int),
		interiorPos:  make(map[interiorKey]int),
		oopspecPos:   make(map[oopspecKey]int),
		promotionPos: make(map[string]int),
		graphPos:     make(map[*flow.Graph]int),
		calldescPos:  make(map[string]int),
	}
}

// fail aborts the compilation of the graph.
func (w *writer) fail(kind tinct.ErrorKind, format string, args ...interface{}) {
	w.failWith(tinct.Errorf(kind, format, args...))
}

func (w *writer) failWith(err error) {
	e, ok := err.(*tinct.Error)
	if !ok {
		e = tinct.Errorf(tinct.UnsupportedConstruct, "%v", err)
	}
	var block, op string
	if w.current != nil {
		block = w.current.String()
	}
	if w.currentOp != nil {
		op = w.currentOp.String()
	}
	panic(e.At(w.graph.Name, block, op))
}

// defect reports a violated invariant of the analysis results.
func (w *writer) defect(format string, args ...interface{}) {
	w.fail(tinct.UnsupportedConstruct, "inconsistent annotation: "+format, args...)
}

// --- Merge points ----------------------------------------------------------

func isGlobalMergeHint(op *flow.Operation) bool {
	if op.Name != "hint" || len(op.Args) < 2 {
		return false
	}
	c, ok := op.Args[1].(*flow.Constant)
	if !ok {
		return false
	}
	flags, ok := c.Value.(flow.HintFlags)
	return ok && len(flags.Set()) == 1 && flags[hint.HintGlobalMergePoint]
}

// computeMergePoints classifies the join points of the graph. A global merge
// point hint marks the block it starts, or, for a block with a single entry,
// the join point preceding it.
func (w *writer) computeMergePoints() {
	g := w.graph
	entrymap := g.EntryMap()
	global := make(map[*flow.Block]bool)
	for _, b := range g.Blocks() {
		if len(b.Operations) == 0 {
			continue
		}
		if isGlobalMergeHint(b.Operations[0]) {
			switch {
			case b == g.StartBlock || len(entrymap[b]) > 1:
				global[b] = true
			case len(entrymap[b]) == 1 && len(entrymap[entrymap[b][0].Prev]) > 1:
				global[entrymap[b][0].Prev] = true
			default:
				w.current = b
				w.fail(tinct.AnalysisError, "ambiguous global merge point hint")
			}
		}
		for _, op := range b.Operations[1:] {
			if isGlobalMergeHint(op) {
				w.current, w.currentOp = b, op
				w.fail(tinct.AnalysisError, "stranded global merge point hint")
			}
		}
	}
	for _, b := range g.Blocks() {
		if len(entrymap[b]) > 1 && b != g.ReturnBlock {
			if global[b] {
				w.merges[b] = globalMerge
			} else {
				w.merges[b] = localMerge
			}
		}
	}
	if global[g.StartBlock] {
		w.merges[g.StartBlock] = globalMerge
	}
	tracer().Debugf("graph %s has %d merge points", g.Name, len(w.merges))
}

func (w *writer) insertMerges(b *flow.Block) {
	if b == w.graph.ReturnBlock {
		return
	}
	kind, ok := w.merges[b]
	if !ok {
		return
	}
	_, greens := w.sortByColor(inputs(b), nil)
	types := make([]*flow.Type, len(greens))
	for i, v := range greens {
		types[i] = v.ConcreteType()
	}
	keyindex := w.keydescPosition(types)
	var num int
	if kind == globalMerge {
		w.asm.op("guard_global_merge")
		num = w.c.numGlobalMergePoints
		w.c.numGlobalMergePoints++
	} else {
		num = w.numLocal
		w.numLocal++
	}
	w.asm.op(kind.String() + "_merge")
	w.asm.ints(num, keyindex)
}

// --- Blocks ----------------------------------------------------------------

// makeBlock emits a block, unless it has been emitted before. In that case a
// goto is inserted if requested, otherwise control falls through into the
// block's code.
func (w *writer) makeBlock(b *flow.Block, insertGoto bool) {
	if w.seen.Has(b.ID) {
		if insertGoto {
			w.asm.op("goto")
			w.asm.tlabel(labelKey{block: b})
		}
		return
	}
	w.seen.Insert(b.ID)
	outer, outerOp := w.current, w.currentOp
	w.current, w.currentOp = b, nil
	w.freeRed[b], w.freeGreen[b] = 0, 0
	w.asm.label(labelKey{block: b})
	reds, greens := w.sortByColor(inputs(b), nil)
	for _, v := range reds {
		w.registerRed(regKey{v: v}, false)
	}
	for _, v := range greens {
		w.registerGreen(regKey{v: v}, false)
	}
	w.insertMerges(b)
	for _, op := range b.Operations {
		w.currentOp = op
		w.serializeOp(op)
	}
	w.currentOp = nil
	w.insertExits(b)
	if !w.sealed.Insert(b.ID) {
		w.defect("block %s sealed twice", b)
	}
	w.current, w.currentOp = outer, outerOp
}

func inputs(b *flow.Block) []flow.Value {
	vals := make([]flow.Value, len(b.InputArgs))
	for i, v := range b.InputArgs {
		vals[i] = v
	}
	return vals
}

func (w *writer) insertExits(b *flow.Block) {
	switch len(b.Exits) {
	case 0:
		w.asm.op(w.code.GraphColor + "_return")
	case 1:
		l := b.Exits[0]
		w.insertRenaming(l)
		w.makeBlock(l.Target, true)
	case 2:
		linkfalse, linktrue := b.Exits[0], b.Exits[1]
		if linkfalse.ExitCase == true {
			linkfalse, linktrue = linktrue, linkfalse
		}
		color := w.varColor(b.ExitSwitch)
		index := w.oparg(color, b.ExitSwitch)
		// boxes must exist on both paths
		for _, l := range []*flow.Link{linkfalse, linktrue} {
			reds, _ := w.sortByColor(l.Args, inputs(l.Target))
			w.opargs(tinct.Red, reds)
		}
		if srcop, srcargs := traceBackBoolVar(b, b.ExitSwitch); color == tinct.Red &&
			(srcop == "ptr_nonzero" || srcop == "ptr_iszero") {
			ptrindex := w.oparg(tinct.Red, srcargs[0])
			w.asm.op("red_goto_ifptrnonzero")
			w.asm.flag(srcop == "ptr_iszero")
			w.asm.ints(ptrindex)
		} else {
			w.asm.op(color.String() + "_goto_iftrue")
		}
		w.asm.ints(index)
		w.asm.tlabel(labelKey{link: linktrue})
		w.insertRenaming(linkfalse)
		w.makeBlock(linkfalse.Target, true)
		w.asm.label(labelKey{link: linktrue})
		w.insertRenaming(linktrue)
		w.makeBlock(linktrue.Target, true)
	default:
		w.fail(tinct.UnsupportedConstruct, "block %s has %d exits", b, len(b.Exits))
	}
}

// traceBackBoolVar finds the operation producing the exit switch of a block,
// looking through bool_not and same_as. It returns an empty name if the
// value comes from another block.
func traceBackBoolVar(b *flow.Block, v flow.Value) (string, []flow.Value) {
	inverted := false
	for i := len(b.Operations) - 1; i >= 0; i-- {
		op := b.Operations[i]
		if op.Result != v {
			continue
		}
		switch op.Name {
		case "bool_not":
			inverted = !inverted
			v = op.Args[0]
		case "same_as":
			v = op.Args[0]
		default:
			name := op.Name
			if inverted {
				switch name {
				case "ptr_nonzero":
					name = "ptr_iszero"
				case "ptr_iszero":
					name = "ptr_nonzero"
				default:
					name = ""
				}
			}
			return name, op.Args
		}
	}
	return "", nil
}

// insertRenaming emits the transfer of link arguments into the register
// files of the target block, colored by the target's input arguments.
func (w *writer) insertRenaming(l *flow.Link) {
	reds, greens := w.sortByColor(l.Args, inputs(l.Target))
	for _, c := range []struct {
		color tinct.Color
		vals  []flow.Value
	}{{tinct.Red, reds}, {tinct.Green, greens}} {
		positions := make([]int, len(c.vals))
		for i, v := range c.vals {
			positions[i] = w.oparg(c.color, v)
		}
		w.asm.op(fmt.Sprintf("make_new_%svars", c.color))
		w.counted(positions)
	}
}

// --- Operations ------------------------------------------------------------

var specialOps map[string]func(*writer, *flow.Operation)

func init() {
	nop := func(*writer, *flow.Operation) {}
	specialOps = map[string]func(*writer, *flow.Operation){
		"hint":                    (*writer).serializeHint,
		"same_as":                 (*writer).serializeAlias,
		"cast_pointer":            (*writer).serializeAlias,
		"debug_assert":            nop,
		"keepalive":               nop,
		"zero_gc_pointers_inside": nop,
		"jit_merge_point":         nop,
		"can_enter_jit":           nop,
		"direct_call":             (*writer).serializeCall,
		"indirect_call":           (*writer).serializeCall,
		"malloc":                  (*writer).serializeMalloc,
		"malloc_varsize":          (*writer).serializeMallocVarsize,
		"getfield":                (*writer).serializeGetfield,
		"getsubstruct":            (*writer).serializeGetfield,
		"setfield":                (*writer).serializeSetfield,
		"getarrayitem":            (*writer).serializeGetarrayitem,
		"getarraysubstruct":       (*writer).serializeGetarrayitem,
		"setarrayitem":            (*writer).serializeSetarrayitem,
		"getarraysize":            (*writer).serializeGetarraysize,
		"getinteriorfield":        (*writer).serializeGetinteriorfield,
		"setinteriorfield":        (*writer).serializeSetinteriorfield,
		"getinteriorarraysize":    (*writer).serializeGetinteriorarraysize,
	}
}

func (w *writer) serializeOp(op *flow.Operation) {
	if special, ok := specialOps[op.Name]; ok {
		special(w, op)
		return
	}
	color := w.opColor(op)
	var args []int
	var argtypes []*flow.Type
	for _, a := range op.Args {
		if a.ConcreteType() == flow.Void {
			continue
		}
		args = append(args, w.oparg(color, a))
		argtypes = append(argtypes, a.ConcreteType())
	}
	opc, err := w.c.opcodes.Generic(color, op.Name, argtypes, op.Result.Type)
	if err != nil {
		w.failWith(err)
	}
	w.asm.op(opc.Name)
	w.asm.ints(args...)
	w.registerResult(op.Result, w.varColor(op.Result))
}

func (w *writer) serializeAlias(op *flow.Operation) {
	w.alias(op.Args[0], op.Result)
}

func (w *writer) serializeHint(op *flow.Operation) {
	c, _ := op.Args[1].(*flow.Constant)
	var flags flow.HintFlags
	if c != nil {
		flags, _ = c.Value.(flow.HintFlags)
	}
	set := flags.Set()
	if len(set) != 1 {
		w.fail(tinct.AnalysisError, "hint needs exactly one flag, have %v", flags)
	}
	arg, res := op.Args[0], op.Result
	switch set[0] {
	case hint.HintPromote:
		w.promote(arg, res)
	case hint.HintConcrete:
		if !w.ctx.IsGreen(arg) || !w.ctx.IsGreen(res) {
			w.defect("concrete hint on red value %s", arg)
		}
		w.alias(arg, res)
	case hint.HintVariable:
		if w.ctx.IsGreen(res) {
			w.defect("variable hint produced green value %s", res)
		}
		w.alias(arg, res)
	case hint.HintReverseSplitQueue:
		w.asm.op("reverse_split_queue")
		w.alias(arg, res)
	default:
		w.alias(arg, res)
	}
}

// alias makes the result of an operation share the register of its
// argument. A green argument of a red result is boxed.
func (w *writer) alias(arg flow.Value, res *flow.Variable) {
	if res.Type == flow.Void || arg.ConcreteType() == flow.Void {
		return
	}
	switch {
	case w.varColor(res) == tinct.Green:
		if w.varColor(arg) != tinct.Green {
			w.defect("green %s aliases red %s", res, arg)
		}
		w.bindGreen(regKey{v: res}, w.greenPosition(arg))
	case w.varColor(arg) == tinct.Green:
		w.bindRed(regKey{v: res}, w.convertToRed(arg))
	default:
		w.bindRed(regKey{v: res}, w.redPosition(arg))
	}
}

// promote converts a red value to green. A value is promoted at most once
// per block.
func (w *writer) promote(arg flow.Value, res *flow.Variable) {
	if w.varColor(arg) == tinct.Green {
		w.alias(arg, res)
		return
	}
	if w.varColor(res) != tinct.Green {
		w.defect("promotion of %s is not green", arg)
	}
	cached := regKey{v: arg, block: w.current, tag: "promoted"}
	if pos, ok := w.greenvars[cached]; ok {
		w.bindGreen(regKey{v: res}, pos)
		return
	}
	w.asm.op("promote")
	w.asm.ints(w.oparg(tinct.Red, arg), w.promotionDescPosition(arg.ConcreteType()))
	pos := w.registerGreen(regKey{v: res}, true)
	w.greenvars[cached] = pos
}

func (w *writer) serializeMalloc(op *flow.Operation) {
	t := w.typeOperand(op.Args[0])
	w.asm.op("red_malloc")
	w.asm.ints(w.structTypeDescPosition(t))
	w.registerRed(regKey{v: op.Result}, true)
}

func (w *writer) serializeMallocVarsize(op *flow.Operation) {
	t := w.typeOperand(op.Args[0])
	size := w.oparg(tinct.Red, op.Args[len(op.Args)-1])
	var index int
	if t.Kind == flow.StructKind {
		index = w.structTypeDescPosition(t)
		w.asm.op("red_malloc_varsize_struct")
	} else {
		index = w.arrayFieldDescPosition(t)
		w.asm.op("red_malloc_varsize_array")
	}
	w.asm.ints(index, size)
	w.registerRed(regKey{v: op.Result}, true)
}

// isExcBox is true for the prebuilt exception box.
func isExcBox(v flow.Value) bool {
	c, ok := v.(*flow.Constant)
	return ok && c.Type == flow.Ptr(flow.ExcDataType)
}

func (w *writer) serializeGetfield(op *flow.Operation) {
	args := op.Args
	fieldname := w.voidString(args[1])
	if op.Name == "getfield" && isExcBox(args[0]) {
		switch fieldname {
		case "exc_type":
			w.asm.op("read_exctype")
		case "exc_value":
			w.asm.op("read_excvalue")
		default:
			w.fail(tinct.UnsupportedConstruct, "exception box has no field %s", fieldname)
		}
		w.registerRed(regKey{v: op.Result}, true)
		return
	}
	st := args[0].ConcreteType().Target()
	fdesc := w.fieldDescPosition(st, fieldname)
	if fdesc < 0 {
		return
	}
	if op.Name == "getfield" && st.Virtualizable() {
		index := w.oparg(tinct.Red, args[0])
		w.asm.op("red_vable_getfield")
		w.asm.ints(index, fdesc)
		w.registerRed(regKey{v: op.Result}, true)
		return
	}
	color := w.opColor(op)
	index := w.oparg(color, args[0])
	w.asm.op(fmt.Sprintf("%s_%s", color, op.Name))
	w.asm.ints(index, fdesc)
	w.asm.flag(w.deepFrozen(args[0]))
	w.registerResult(op.Result, color)
}

func (w *writer) serializeSetfield(op *flow.Operation) {
	args := op.Args
	if args[2].ConcreteType() == flow.Void {
		return
	}
	fieldname := w.voidString(args[1])
	if isExcBox(args[0]) {
		val := w.oparg(tinct.Red, args[2])
		switch fieldname {
		case "exc_type":
			w.asm.op("write_exctype")
		case "exc_value":
			w.asm.op("write_excvalue")
		default:
			w.fail(tinct.UnsupportedConstruct, "exception box has no field %s", fieldname)
		}
		w.asm.ints(val)
		return
	}
	st := args[0].ConcreteType().Target()
	fdesc := w.fieldDescPosition(st, fieldname)
	if fdesc < 0 {
		return
	}
	dest := w.oparg(tinct.Red, args[0])
	val := w.oparg(tinct.Red, args[2])
	if st.Virtualizable() {
		w.asm.op("red_vable_setfield")
	} else {
		w.asm.op("red_setfield")
	}
	w.asm.ints(dest, fdesc, val)
}

func (w *writer) serializeGetarrayitem(op *flow.Operation) {
	at := op.Args[0].ConcreteType().Target()
	if at.Item() == flow.Void {
		return
	}
	color := w.opColor(op)
	array := w.oparg(color, op.Args[0])
	fdesc := w.arrayFieldDescPosition(at)
	index := w.oparg(color, op.Args[1])
	w.asm.op(fmt.Sprintf("%s_%s", color, op.Name))
	w.asm.ints(array, fdesc, index)
	w.asm.flag(w.deepFrozen(op.Args[0]))
	w.registerResult(op.Result, color)
}

func (w *writer) serializeSetarrayitem(op *flow.Operation) {
	at := op.Args[0].ConcreteType().Target()
	if at.Item() == flow.Void {
		return
	}
	dest := w.oparg(tinct.Red, op.Args[0])
	index := w.oparg(tinct.Red, op.Args[1])
	val := w.oparg(tinct.Red, op.Args[2])
	w.asm.op("red_setarrayitem")
	w.asm.ints(dest, w.arrayFieldDescPosition(at), index, val)
}

func (w *writer) serializeGetarraysize(op *flow.Operation) {
	color := w.opColor(op)
	array := w.oparg(color, op.Args[0])
	w.asm.op(color.String() + "_getarraysize")
	w.asm.ints(array, w.arrayFieldDescPosition(op.Args[0].ConcreteType().Target()))
	w.registerResult(op.Result, color)
}

// interiorDesc interns the descriptor for the access path of an interior
// field operation, given the number of path operands. It returns -1 for
// paths ending in a Void field. The array index operands are returned.
func (w *writer) interiorDesc(op *flow.Operation, noffsets int) (int, []flow.Value) {
	root := op.Args[0].ConcreteType().Target()
	container := root
	var path []string
	var indices []flow.Value
	for _, a := range op.Args[1 : 1+noffsets] {
		if a.ConcreteType() == flow.Void {
			name := w.voidString(a)
			ft, ok := container.FieldType(name)
			if !ok {
				w.fail(tinct.UnsupportedConstruct, "no field %s in %v", name, container)
			}
			container = ft
			path = append(path, name)
		} else {
			if container.Kind != flow.ArrayKind {
				w.fail(tinct.UnsupportedConstruct, "index into non-array %v", container)
			}
			container = container.Item()
			path = append(path, "")
			indices = append(indices, a)
		}
	}
	if container == flow.Void {
		return -1, nil
	}
	key := interiorKey{t: root, path: strings.Join(path, "/")}
	if pos, ok := w.interiorPos[key]; ok {
		return pos, indices
	}
	pos := len(w.code.InteriorDescs)
	w.code.InteriorDescs = append(w.code.InteriorDescs,
		InteriorDesc{Type: root.String(), Path: path, Kind: kindToken(container)})
	w.interiorPos[key] = pos
	return pos, indices
}

func (w *writer) serializeGetinteriorfield(op *flow.Operation) {
	if op.Args[0].ConcreteType().Target().Virtualizable() {
		w.fail(tinct.UnsupportedConstruct, "interior access into virtualizable %v", op.Args[0].ConcreteType())
	}
	desc, indices := w.interiorDesc(op, len(op.Args)-1)
	if desc < 0 {
		return
	}
	color := w.opColor(op)
	st := w.oparg(color, op.Args[0])
	positions := w.opargs(color, indices)
	w.asm.op(color.String() + "_getinteriorfield")
	w.asm.ints(st, desc)
	w.asm.flag(w.deepFrozen(op.Args[0]))
	w.counted(positions)
	w.registerResult(op.Result, color)
}

func (w *writer) serializeSetinteriorfield(op *flow.Operation) {
	value := op.Args[len(op.Args)-1]
	desc, indices := w.interiorDesc(op, len(op.Args)-2)
	if desc < 0 || value.ConcreteType() == flow.Void {
		return
	}
	st := w.oparg(tinct.Red, op.Args[0])
	positions := w.opargs(tinct.Red, indices)
	val := w.oparg(tinct.Red, value)
	w.asm.op("red_setinteriorfield")
	w.asm.ints(st, desc)
	w.counted(positions)
	w.asm.ints(val)
}

func (w *writer) serializeGetinteriorarraysize(op *flow.Operation) {
	desc, indices := w.interiorDesc(op, len(op.Args)-1)
	if desc < 0 {
		w.fail(tinct.UnsupportedConstruct, "array size of Void interior field")
	}
	color := w.opColor(op)
	st := w.oparg(color, op.Args[0])
	positions := w.opargs(color, indices)
	w.asm.op(color.String() + "_getinteriorarraysize")
	w.asm.ints(st, desc)
	w.counted(positions)
	w.registerResult(op.Result, color)
}

// --- Colors and registers --------------------------------------------------

func (w *writer) varColor(v flow.Value) tinct.Color {
	if w.ctx.IsGreen(v) {
		return tinct.Green
	}
	return tinct.Red
}

// opColor is green if all operands and the result of an operation are green.
func (w *writer) opColor(op *flow.Operation) tinct.Color {
	for _, a := range op.Args {
		if !w.ctx.IsGreen(a) {
			return tinct.Red
		}
	}
	return w.varColor(op.Result)
}

func (w *writer) deepFrozen(v flow.Value) bool {
	hs := w.ctx.Binding(v)
	return hs != nil && hs.DeepFrozen()
}

// sortByColor splits values into reds and greens, skipping Void values. The
// color is taken from byColorOf, if given.
func (w *writer) sortByColor(vals, byColorOf []flow.Value) (reds, greens []flow.Value) {
	if byColorOf == nil {
		byColorOf = vals
	}
	for i, v := range vals {
		if v.ConcreteType() == flow.Void {
			continue
		}
		if w.ctx.IsGreen(byColorOf[i]) {
			greens = append(greens, v)
		} else {
			reds = append(reds, v)
		}
	}
	return
}

func (w *writer) oparg(color tinct.Color, v flow.Value) int {
	if color == tinct.Red {
		if w.varColor(v) == tinct.Green {
			return w.convertToRed(v)
		}
		return w.redPosition(v)
	}
	return w.greenPosition(v)
}

func (w *writer) opargs(color tinct.Color, vals []flow.Value) []int {
	positions := make([]int, len(vals))
	for i, v := range vals {
		positions[i] = w.oparg(color, v)
	}
	return positions
}

func (w *writer) counted(ns []int) {
	w.asm.ints(len(ns))
	w.asm.ints(ns...)
}

// convertToRed boxes a green value for use in a red context. Boxes are
// cached per block.
func (w *writer) convertToRed(v flow.Value) int {
	key := regKey{v: v, block: w.current, tag: "redbox"}
	if pos, ok := w.redvars[key]; ok {
		return pos
	}
	w.asm.op("make_redbox")
	w.asm.ints(w.greenPosition(v), w.typePosition(v.ConcreteType()))
	return w.registerRed(key, true)
}

func (w *writer) registerResult(v *flow.Variable, color tinct.Color) {
	if v.Type == flow.Void {
		return
	}
	if color == tinct.Green {
		w.registerGreen(regKey{v: v}, true)
	} else {
		w.registerRed(regKey{v: v}, true)
	}
}

// registerRed allocates the next free red register of the current block.
func (w *writer) registerRed(key regKey, verbose bool) int {
	where := w.freeRed[w.current]
	w.freeRed[w.current]++
	if verbose {
		w.asm.comment("=> r%d", where)
	}
	w.bindRed(key, where)
	return where
}

func (w *writer) bindRed(key regKey, where int) {
	if _, exists := w.redvars[key]; exists {
		w.defect("%v registered twice", key.v)
	}
	w.redvars[key] = where
}

// registerGreen allocates the next free green register of the current block.
func (w *writer) registerGreen(key regKey, verbose bool) int {
	where := w.freeGreen[w.current]
	w.freeGreen[w.current]++
	if verbose {
		w.asm.comment("=> g%d", where)
	}
	w.bindGreen(key, where)
	return where
}

// bindGreen binds a green register or, for negative positions, a constant.
func (w *writer) bindGreen(key regKey, where int) {
	if _, exists := w.greenvars[key]; exists {
		w.defect("%v registered twice", key.v)
	}
	w.greenvars[key] = where
}

func (w *writer) redPosition(v flow.Value) int {
	pos, ok := w.redvars[regKey{v: v}]
	if !ok {
		w.defect("no red register for %s", v)
	}
	return pos
}

// greenPosition returns the register of a green variable or ^index of a
// constant.
func (w *writer) greenPosition(v flow.Value) int {
	switch x := v.(type) {
	case *flow.Variable:
		pos, ok := w.greenvars[regKey{v: x}]
		if !ok {
			w.defect("no green register for %s", v)
		}
		return pos
	case *flow.Constant:
		return ^w.constPosition(x)
	}
	w.defect("unknown value %v", v)
	return 0
}

// --- Operands --------------------------------------------------------------

func (w *writer) voidString(v flow.Value) string {
	if c, ok := v.(*flow.Constant); ok {
		if s, ok := c.Value.(string); ok {
			return s
		}
	}
	w.fail(tinct.UnsupportedConstruct, "expected a name operand, have %v", v)
	return ""
}

func (w *writer) typeOperand(v flow.Value) *flow.Type {
	if c, ok := v.(*flow.Constant); ok {
		if t, ok := c.Value.(*flow.Type); ok {
			return t
		}
	}
	w.fail(tinct.UnsupportedConstruct, "expected a type operand, have %v", v)
	return nil
}

func (w *writer) literal(n int) *flow.Constant {
	if c, ok := w.literals[n]; ok {
		return c
	}
	c := flow.Const(n, flow.Signed)
	w.literals[n] = c
	return c
}

// --- Descriptor tables -----------------------------------------------------

func (w *writer) constPosition(c *flow.Constant) int {
	key := constKey{t: c.Type}
	if t := reflect.TypeOf(c.Value); t == nil || t.Comparable() {
		key.v = c.Value
	} else {
		key.repr = fmt.Sprintf("%T:%v", c.Value, c.Value)
	}
	if pos, ok := w.constPos[key]; ok {
		return pos
	}
	pos := len(w.code.Constants)
	w.code.Constants = append(w.code.Constants, ConstDesc{
		Type:  c.Type.String(),
		Kind:  kindToken(c.Type),
		Value: wireValue(c.Value),
	})
	w.constPos[key] = pos
	return pos
}

func (w *writer) typePosition(t *flow.Type) int {
	if pos, ok := w.typePos[t]; ok {
		return pos
	}
	pos := len(w.code.TypeKinds)
	w.code.TypeKinds = append(w.code.TypeKinds, kindToken(t))
	w.code.RedBoxClasses = append(w.code.RedBoxClasses, redboxClass(t))
	w.typePos[t] = pos
	return pos
}

type keyShape struct {
	Types []string
}

// keydescPosition interns the key descriptor for a tuple of green types.
// Structurally identical tuples share a descriptor. The empty key is -1.
func (w *writer) keydescPosition(types []*flow.Type) int {
	if len(types) == 0 {
		return -1
	}
	desc := KeyDesc{Types: make([]string, len(types)), Kinds: make([]string, len(types))}
	for i, t := range types {
		desc.Types[i], desc.Kinds[i] = t.String(), kindToken(t)
	}
	hash, err := structhash.Hash(keyShape{Types: desc.Types}, 1)
	if err != nil {
		w.failWith(err)
	}
	if pos, ok := w.keydescPos[hash]; ok {
		return pos
	}
	pos := len(w.code.KeyDescs)
	w.code.KeyDescs = append(w.code.KeyDescs, desc)
	w.keydescPos[hash] = pos
	return pos
}

func (w *writer) structTypeDescPosition(t *flow.Type) int {
	if pos, ok := w.structPos[t]; ok {
		return pos
	}
	if t.Kind != flow.StructKind {
		w.fail(tinct.UnsupportedConstruct, "%v is not a struct", t)
	}
	desc := StructTypeDesc{Name: t.Name, Varsize: t.IsVarsize(),
		Immutable: t.Immutable(), Virtualizable: t.Virtualizable()}
	for _, f := range t.Fields() {
		desc.Fields = append(desc.Fields, f.Name)
	}
	pos := len(w.code.StructTypeDescs)
	w.code.StructTypeDescs = append(w.code.StructTypeDescs, desc)
	w.structPos[t] = pos
	return pos
}

// fieldDescPosition interns a field descriptor. Void fields have no
// descriptor and return -1.
func (w *writer) fieldDescPosition(st *flow.Type, name string) int {
	key := fieldKey{t: st, name: name}
	if pos, ok := w.fieldPos[key]; ok {
		return pos
	}
	ft, ok := st.FieldType(name)
	if !ok {
		w.fail(tinct.UnsupportedConstruct, "no field %s in %v", name, st)
	}
	if ft == flow.Void {
		w.fieldPos[key] = -1
		return -1
	}
	pos := len(w.code.FieldDescs)
	w.code.FieldDescs = append(w.code.FieldDescs, FieldDesc{
		Struct: st.Name, Field: name, Index: st.FieldIndex(name),
		Type: ft.String(), Kind: kindToken(ft), Immutable: st.Immutable(),
	})
	w.fieldPos[key] = pos
	return pos
}

func (w *writer) arrayFieldDescPosition(at *flow.Type) int {
	if pos, ok := w.arrayPos[at]; ok {
		return pos
	}
	if at.Kind != flow.ArrayKind {
		w.fail(tinct.UnsupportedConstruct, "%v is not an array", at)
	}
	pos := len(w.code.ArrayFieldDescs)
	w.code.ArrayFieldDescs = append(w.code.ArrayFieldDescs, ArrayFieldDesc{
		Array: at.Name, ItemType: at.Item().String(), ItemKind: kindToken(at.Item()),
		Immutable: at.Immutable(),
	})
	w.arrayPos[at] = pos
	return pos
}

func (w *writer) oopspecDescPosition(fn *flow.Func, spec *flow.OopSpec, canRaise bool) int {
	key := oopspecKey{fn: fn, canRaise: canRaise}
	if pos, ok := w.oopspecPos[key]; ok {
		return pos
	}
	desc := OopSpecDesc{Func: fn.Name, Name: spec.Name(), IsMethod: spec.IsMethod(),
		CanRaise: canRaise, CouldFold: fn.Pure}
	for _, a := range spec.Args {
		desc.Args = append(desc.Args, OopArgDesc{Param: a.Param, Literal: a.Literal})
	}
	pos := len(w.code.OopSpecDescs)
	w.code.OopSpecDescs = append(w.code.OopSpecDescs, desc)
	w.oopspecPos[key] = pos
	return pos
}

func (w *writer) promotionDescPosition(t *flow.Type) int {
	erased := erasedType(t)
	if pos, ok := w.promotionPos[erased]; ok {
		return pos
	}
	pos := len(w.code.PromotionDescs)
	w.code.PromotionDescs = append(w.code.PromotionDescs, PromotionDesc{Erased: erased})
	w.promotionPos[erased] = pos
	return pos
}

// graphPosition returns the index of the bytecode for a called graph. Graphs
// not compiled yet are queued.
func (w *writer) graphPosition(g *flow.Graph) int {
	if pos, ok := w.graphPos[g]; ok {
		return pos
	}
	code := w.c.codeFor(g)
	pos := len(w.code.CalledBytecodes)
	w.code.CalledBytecodes = append(w.code.CalledBytecodes, code)
	w.graphPos[g] = pos
	return pos
}

func (w *writer) calldescPosition(ft *flow.Type, voidargs []string) int {
	key := ft.String() + "|" + strings.Join(voidargs, "|")
	if pos, ok := w.calldescPos[key]; ok {
		return pos
	}
	pos := len(w.code.CallDescs)
	w.code.CallDescs = append(w.code.CallDescs, CallDesc{
		Sig: ft.String(), ResultKind: kindToken(ft.Result()), VoidArgs: voidargs,
	})
	w.calldescPos[key] = pos
	return pos
}
