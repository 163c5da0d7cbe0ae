package jitcode

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/npillmayer/tinct"
)

// JitCode is the bytecode of one graph together with its descriptor tables.
// Operands of instructions are indices into the register files of the
// current block or into the tables. Negative green operands ^i refer to
// Constants[i].
type JitCode struct {
	Name                string
	Code                []byte
	Constants           []ConstDesc
	TypeKinds           []string
	RedBoxClasses       []string
	KeyDescs            []KeyDesc
	StructTypeDescs     []StructTypeDesc
	FieldDescs          []FieldDesc
	ArrayFieldDescs     []ArrayFieldDesc
	InteriorDescs       []InteriorDesc
	OopSpecDescs        []OopSpecDesc
	PromotionDescs      []PromotionDesc
	CallDescs           []CallDesc
	CalledBytecodes     []*JitCode
	NumLocalMergePoints int
	GraphColor          string // red, yellow or gray
	IsPortal            bool

	opcodes *Opcodes
	labels  map[int]string // code offset → label names
	source  []string       // symbolic listing
}

func (jc *JitCode) String() string {
	return fmt.Sprintf("<JitCode %s>", jc.Name)
}

// Source returns a symbolic listing of the instructions, with labels and
// register allocation comments.
func (jc *JitCode) Source() []string {
	return jc.source
}

// Instr is a decoded instruction. Args holds ints for integer operands, bools
// for flags and []int for counted lists. Branch targets are ints.
type Instr struct {
	Offset int
	Op     *Opcode
	Args   []interface{}
}

func (in Instr) String() string {
	var b strings.Builder
	b.WriteString(in.Op.Name)
	for i, a := range in.Args {
		if in.Op.Format[i] == 'L' {
			fmt.Fprintf(&b, " @%d", a)
		} else {
			fmt.Fprintf(&b, " %v", a)
		}
	}
	return b.String()
}

// Instructions decodes the bytecode.
func (jc *JitCode) Instructions() ([]Instr, error) {
	return Decode(jc.Code, jc.opcodes)
}

// Decode decodes bytecode, given the instruction table it has been
// produced with.
func Decode(code []byte, opcodes *Opcodes) ([]Instr, error) {
	var instrs []Instr
	pc := 0
	short := func() (int, error) {
		if pc+2 > len(code) {
			return 0, tinct.Errorf(tinct.UnsupportedConstruct, "truncated bytecode at %d", pc)
		}
		n := int(int16(uint16(code[pc])<<8 | uint16(code[pc+1])))
		pc += 2
		return n, nil
	}
	for pc < len(code) {
		start := pc
		num, err := short()
		if err != nil {
			return nil, err
		}
		opc := opcodes.Opcode(num)
		if opc == nil {
			return nil, tinct.Errorf(tinct.UnsupportedConstruct, "unknown opcode %d at %d", num, start)
		}
		in := Instr{Offset: start, Op: opc}
		for _, f := range opc.Format {
			switch f {
			case 'i':
				n, err := short()
				if err != nil {
					return nil, err
				}
				in.Args = append(in.Args, n)
			case 'b':
				if pc >= len(code) {
					return nil, tinct.Errorf(tinct.UnsupportedConstruct, "truncated bytecode at %d", pc)
				}
				in.Args = append(in.Args, code[pc] != 0)
				pc++
			case 'L':
				if pc+4 > len(code) {
					return nil, tinct.Errorf(tinct.UnsupportedConstruct, "truncated bytecode at %d", pc)
				}
				target := int(code[pc])<<24 | int(code[pc+1])<<16 | int(code[pc+2])<<8 | int(code[pc+3])
				in.Args = append(in.Args, target)
				pc += 4
			case 'n':
				count, err := short()
				if err != nil {
					return nil, err
				}
				list := make([]int, count)
				for i := range list {
					if list[i], err = short(); err != nil {
						return nil, err
					}
				}
				in.Args = append(in.Args, list)
			}
		}
		instrs = append(instrs, in)
	}
	return instrs, nil
}

// Dump writes a disassembly of the bytecode and its tables.
func (jc *JitCode) Dump(w io.Writer) error {
	instrs, err := jc.Instructions()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (%s", jc.Name, jc.GraphColor)
	if jc.IsPortal {
		fmt.Fprint(w, ", portal")
	}
	fmt.Fprintf(w, ", %d bytes, %d local merge points)\n", len(jc.Code), jc.NumLocalMergePoints)
	for _, in := range instrs {
		if l, ok := jc.labels[in.Offset]; ok {
			fmt.Fprintf(w, "%s:\n", l)
		}
		fmt.Fprintf(w, "  %4d  %s\n", in.Offset, in)
	}
	dumpTable(w, "constants", len(jc.Constants), func(i int) interface{} { return jc.Constants[i] })
	dumpTable(w, "typekinds", len(jc.TypeKinds), func(i int) interface{} {
		return jc.TypeKinds[i] + " " + jc.RedBoxClasses[i]
	})
	dumpTable(w, "keydescs", len(jc.KeyDescs), func(i int) interface{} { return jc.KeyDescs[i].Types })
	dumpTable(w, "structtypedescs", len(jc.StructTypeDescs), func(i int) interface{} { return jc.StructTypeDescs[i] })
	dumpTable(w, "fielddescs", len(jc.FieldDescs), func(i int) interface{} {
		d := jc.FieldDescs[i]
		return d.Struct + "." + d.Field + " " + d.Type
	})
	dumpTable(w, "arrayfielddescs", len(jc.ArrayFieldDescs), func(i int) interface{} { return jc.ArrayFieldDescs[i] })
	dumpTable(w, "interiordescs", len(jc.InteriorDescs), func(i int) interface{} { return jc.InteriorDescs[i] })
	dumpTable(w, "oopspecdescs", len(jc.OopSpecDescs), func(i int) interface{} { return jc.OopSpecDescs[i] })
	dumpTable(w, "promotiondescs", len(jc.PromotionDescs), func(i int) interface{} { return jc.PromotionDescs[i].Erased })
	dumpTable(w, "calldescs", len(jc.CallDescs), func(i int) interface{} { return jc.CallDescs[i].Sig })
	dumpTable(w, "called", len(jc.CalledBytecodes), func(i int) interface{} { return jc.CalledBytecodes[i].Name })
	return nil
}

func dumpTable(w io.Writer, title string, n int, entry func(int) interface{}) {
	if n == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, "  %3d  %v\n", i, entry(i))
	}
}

// Labels returns the label names of the bytecode, sorted by offset.
func (jc *JitCode) Labels() []string {
	offsets := make([]int, 0, len(jc.labels))
	for off := range jc.labels {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	names := make([]string, len(offsets))
	for i, off := range offsets {
		names[i] = fmt.Sprintf("%d:%s", off, jc.labels[off])
	}
	return names
}

// CountOps counts the instructions of a name.
func (jc *JitCode) CountOps(name string) int {
	instrs, err := jc.Instructions()
	if err != nil {
		return 0
	}
	n := 0
	for _, in := range instrs {
		if in.Op.Name == name {
			n++
		}
	}
	return n
}
