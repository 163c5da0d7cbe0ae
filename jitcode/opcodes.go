package jitcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
	"github.com/npillmayer/tinct/sparse"
	"golang.org/x/exp/slices"
)

// Opcode is an instruction of the bytecode. Format describes the operands:
//
//    i   2 byte integer (register, table index or count)
//    b   1 byte flag
//    L   4 byte absolute branch target
//    n   2 byte count c, followed by c integers
//
type Opcode struct {
	Num    int
	Name   string
	Format string
	Desc   *OpDesc // set for generic operations
}

func (opc *Opcode) String() string {
	return opc.Name
}

// OpDesc describes the implementation of a generic operation for one color.
type OpDesc struct {
	OpName     string
	Color      tinct.Color
	ArgTypes   []*flow.Type
	ResultType *flow.Type
	CanFold    bool
	CanRaise   bool
}

// Instructions with a fixed name.
var fixedFormats = map[string]string{
	"goto":                      "L",
	"green_goto_iftrue":         "iL",
	"red_goto_iftrue":           "iL",
	"red_goto_ifptrnonzero":     "biiL",
	"make_new_redvars":          "n",
	"make_new_greenvars":        "n",
	"make_redbox":               "ii",
	"promote":                   "ii",
	"local_merge":               "ii",
	"global_merge":              "ii",
	"guard_global_merge":        "",
	"red_return":                "",
	"gray_return":               "",
	"yellow_return":             "",
	"green_direct_call":         "iin",
	"red_direct_call":           "nni",
	"red_after_direct_call":     "",
	"yellow_direct_call":        "nni",
	"yellow_after_direct_call":  "",
	"yellow_retrieve_result":    "",
	"red_indirect_call":         "nnin",
	"yellow_indirect_call":      "nnin",
	"red_residual_call":         "iibn",
	"residual_fetch":            "bi",
	"setexception":              "n",
	"red_malloc":                "i",
	"red_malloc_varsize_struct": "ii",
	"red_malloc_varsize_array":  "ii",
	"read_exctype":              "",
	"read_excvalue":             "",
	"write_exctype":             "i",
	"write_excvalue":            "i",
	"red_vable_getfield":        "ii",
	"red_vable_setfield":        "iii",
	"vable_call":                "in",
	"reverse_split_queue":       "",
	"red_setfield":              "iii",
	"red_setarrayitem":          "iiii",
	"red_setinteriorfield":      "iini",
}

// Instructions existing in a green and a red variant, "<color>_<name>".
var coloredFormats = map[string]string{
	"getfield":             "iib",
	"getsubstruct":         "iib",
	"getarrayitem":         "iiib",
	"getarraysubstruct":    "iiib",
	"getarraysize":         "ii",
	"getinteriorfield":     "iibn",
	"getinteriorarraysize": "iin",
}

const (
	oopspecPrefix         = "red_oopspec_call_"
	oopspecNoResultPrefix = "red_oopspec_call_noresult_"
)

// Opcodes is the table of instructions of a compilation session. Generic
// operations are added on demand; they are indexed by operation kind and
// color.
type Opcodes struct {
	list   []*Opcode
	byName map[string]*Opcode
	kinds  map[string]int    // operation kind → row of index
	index  *sparse.IntMatrix // (kind, color) → (opcode, arity)
}

// NewOpcodes creates a table holding the instructions with fixed names.
// Numbering of fixed instructions is deterministic.
func NewOpcodes() *Opcodes {
	t := &Opcodes{
		byName: make(map[string]*Opcode),
		kinds:  make(map[string]int),
		index:  sparse.NewIntMatrix(len(flow.Ops()), 2, -1),
	}
	names := make([]string, 0, len(fixedFormats)+2*len(coloredFormats))
	for name := range fixedFormats {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		t.add(name, fixedFormats[name])
	}
	names = names[:0]
	for name := range coloredFormats {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		t.add("green_"+name, coloredFormats[name])
		t.add("red_"+name, coloredFormats[name])
	}
	return t
}

func (t *Opcodes) add(name, format string) *Opcode {
	opc := &Opcode{Num: len(t.list), Name: name, Format: format}
	t.list = append(t.list, opc)
	t.byName[name] = opc
	return opc
}

// Len returns the number of opcodes.
func (t *Opcodes) Len() int {
	return len(t.list)
}

// Opcode returns the opcode with number num, or nil.
func (t *Opcodes) Opcode(num int) *Opcode {
	if num < 0 || num >= len(t.list) {
		return nil
	}
	return t.list[num]
}

// Names returns the opcode names in order of their numbers.
func (t *Opcodes) Names() []string {
	names := make([]string, len(t.list))
	for i, opc := range t.list {
		names[i] = opc.Name
	}
	return names
}

// Lookup finds an opcode by name. Oopspec call instructions are created on
// first use.
func (t *Opcodes) Lookup(name string) (*Opcode, bool) {
	if opc, ok := t.byName[name]; ok {
		return opc, true
	}
	for _, prefix := range []string{oopspecNoResultPrefix, oopspecPrefix} {
		if strings.HasPrefix(name, prefix) {
			n, err := strconv.Atoi(name[len(prefix):])
			if err != nil || n < 0 {
				return nil, false
			}
			return t.add(name, "ib"+strings.Repeat("i", n)), true
		}
	}
	return nil, false
}

// Generic returns the instruction for a generic operation kind in a color,
// creating it from the operand and result types on first use.
func (t *Opcodes) Generic(color tinct.Color, opname string, argtypes []*flow.Type, restype *flow.Type) (*Opcode, error) {
	row, ok := t.kinds[opname]
	if !ok {
		row = len(t.kinds)
		t.kinds[opname] = row
	}
	col := int(color)
	if num, arity := t.index.Values(row, col); num != t.index.NullValue() {
		if int(arity) != len(argtypes) {
			return nil, tinct.Errorf(tinct.UnsupportedConstruct,
				"operation %s used with %d and %d operands", opname, arity, len(argtypes))
		}
		return t.list[num], nil
	}
	name := fmt.Sprintf("%s_%s", color, opname)
	if _, exists := t.byName[name]; exists {
		return nil, tinct.Errorf(tinct.UnsupportedConstruct, "operation %s needs special handling", opname)
	}
	desc := &OpDesc{OpName: opname, Color: color, ArgTypes: argtypes, ResultType: restype}
	if llop, ok := flow.LookupOp(opname); ok {
		desc.CanFold, desc.CanRaise = llop.CanFold, llop.CanRaise
	}
	opc := t.add(name, strings.Repeat("i", len(argtypes)))
	opc.Desc = desc
	t.index.Set(row, col, int32(opc.Num))
	t.index.Add(row, col, int32(len(argtypes)))
	tracer().Debugf("new opcode %d: %s", opc.Num, name)
	return opc, nil
}

// GenericCount returns the number of generic instructions created so far.
func (t *Opcodes) GenericCount() int {
	return t.index.ValueCount()
}
