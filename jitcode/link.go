package jitcode

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/npillmayer/tinct"
	"github.com/npillmayer/tinct/flow"
	"golang.org/x/exp/slices"
)

// --- Instruction arena -----------------------------------------------------

type itemKind uint8

const (
	opItem itemKind = iota
	intItem
	boolItem
	labelItem  // label definition
	tlabelItem // label reference
	commentItem
)

// labelKey identifies a branch target: the start of a block or the code for
// the true-exit of a two-exit block.
type labelKey struct {
	block *flow.Block
	link  *flow.Link
}

type item struct {
	kind  itemKind
	name  string // opcode name or comment
	n     int
	b     bool
	label labelKey
}

// arena collects symbolic instructions. Branch targets are kept symbolic
// until link time.
type arena struct {
	items  *arraylist.List
	names  map[labelKey]string
	nlinks int
}

func newArena() *arena {
	return &arena{items: arraylist.New(), names: make(map[labelKey]string)}
}

func (a *arena) op(name string) {
	a.items.Add(item{kind: opItem, name: name})
}

func (a *arena) ints(ns ...int) {
	for _, n := range ns {
		a.items.Add(item{kind: intItem, n: n})
	}
}

func (a *arena) flag(b bool) {
	a.items.Add(item{kind: boolItem, b: b})
}

func (a *arena) label(k labelKey) {
	a.labelName(k)
	a.items.Add(item{kind: labelItem, label: k})
}

func (a *arena) tlabel(k labelKey) {
	a.labelName(k)
	a.items.Add(item{kind: tlabelItem, label: k})
}

func (a *arena) comment(format string, args ...interface{}) {
	a.items.Add(item{kind: commentItem, name: fmt.Sprintf(format, args...)})
}

func (a *arena) labelName(k labelKey) string {
	if name, ok := a.names[k]; ok {
		return name
	}
	var name string
	if k.link != nil {
		a.nlinks++
		name = fmt.Sprintf("L%d", a.nlinks)
	} else {
		name = k.block.String()
	}
	a.names[k] = name
	return name
}

func (a *arena) list() []item {
	items := make([]item, 0, a.items.Size())
	it := a.items.Iterator()
	for it.Next() {
		items = append(items, it.Value().(item))
	}
	return items
}

// listing renders the symbolic instructions, one instruction per line.
func (a *arena) listing() []string {
	var lines []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}
	for _, it := range a.list() {
		switch it.kind {
		case opItem:
			flush()
			cur.WriteString("    " + it.name)
		case intItem:
			fmt.Fprintf(&cur, " %d", it.n)
		case boolItem:
			fmt.Fprintf(&cur, " %v", it.b)
		case tlabelItem:
			fmt.Fprintf(&cur, " @%s", a.labelName(it.label))
		case labelItem:
			flush()
			lines = append(lines, a.labelName(it.label)+":")
		case commentItem:
			flush()
			lines = append(lines, "    # "+it.name)
		}
	}
	flush()
	return lines
}

// --- Linking ---------------------------------------------------------------

// link translates symbolic instructions to bytes. The first pass assigns
// offsets to labels, the second pass encodes instructions with all branch
// targets known.
func link(a *arena, opcodes *Opcodes) ([]byte, map[int]string, error) {
	items := a.list()
	labelpos := make(map[labelKey]int)
	pos := 0
	for _, it := range items {
		switch it.kind {
		case opItem, intItem:
			pos += 2
		case boolItem:
			pos++
		case tlabelItem:
			pos += 4
		case labelItem:
			labelpos[it.label] = pos
		}
	}
	code := make([]byte, 0, pos)
	for _, it := range items {
		switch it.kind {
		case opItem:
			opc, ok := opcodes.Lookup(it.name)
			if !ok {
				return nil, nil, tinct.Errorf(tinct.UnsupportedConstruct, "unknown opcode %s", it.name)
			}
			code = append(code, byte(opc.Num>>8), byte(opc.Num))
		case intItem:
			if it.n < -32768 || it.n > 32767 {
				return nil, nil, tinct.Errorf(tinct.UnsupportedConstruct, "operand %d out of range", it.n)
			}
			code = append(code, byte(it.n>>8), byte(it.n))
		case boolItem:
			if it.b {
				code = append(code, 1)
			} else {
				code = append(code, 0)
			}
		case tlabelItem:
			target, ok := labelpos[it.label]
			if !ok {
				return nil, nil, tinct.Errorf(tinct.UnsupportedConstruct, "undefined label %s", a.labelName(it.label))
			}
			code = append(code, byte(target>>24), byte(target>>16), byte(target>>8), byte(target))
		}
	}
	byPos := make(map[int][]string, len(labelpos))
	for k, p := range labelpos {
		byPos[p] = append(byPos[p], a.labelName(k))
	}
	names := make(map[int]string, len(byPos))
	for p, ls := range byPos {
		slices.Sort(ls)
		names[p] = strings.Join(ls, ",")
	}
	return code, names, nil
}
