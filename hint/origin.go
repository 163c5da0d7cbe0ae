package hint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/npillmayer/tinct/flow"
	"golang.org/x/tools/container/intsets"
)

// OriginKind distinguishes plain operation origins from call-site and
// input-argument origins.
type OriginKind uint8

// Kinds of origins.
const (
	PlainOrigin OriginKind = iota
	CallOrigin
	InputArgOrigin
)

func (k OriginKind) String() string {
	switch k {
	case CallOrigin:
		return "call"
	case InputArgOrigin:
		return "inputarg"
	}
	return "plain"
}

// Origin is a provenance record explaining why a Constant might be known at
// specialization time. Origins live for the duration of an analysis session.
type Origin struct {
	ID        int
	Kind      OriginKind
	Fixed     bool
	GreenArgs bool
	ctx       *Context
	op        *flow.Operation // plain and call origins
	graph     *flow.Graph     // graph of the operation, or of the input argument
	argIndex  int             // input argument origins
	reads     intsets.Sparse  // serials of positions which read this origin unfixed
}

func (o *Origin) String() string {
	var state string
	if o.Fixed {
		state = "fixed "
	} else if o.GreenArgs {
		state = "green "
	}
	switch o.Kind {
	case InputArgOrigin:
		return fmt.Sprintf("<%s[%d] %sorigin>", o.graph, o.argIndex, state)
	case CallOrigin, PlainOrigin:
		if o.op != nil {
			return fmt.Sprintf("<%s %s%sorigin>", o.op.Result, state, kindTag(o.Kind))
		}
	}
	return fmt.Sprintf("<#%d %sorigin>", o.ID, state)
}

func kindTag(k OriginKind) string {
	if k == CallOrigin {
		return "call "
	}
	return ""
}

// ReadFixed returns the fixed flag and records the current analysis position
// as a dependent read. If the origin becomes fixed later, the position will
// be analyzed again.
func (o *Origin) ReadFixed() bool {
	if o.ctx != nil {
		if serial := o.ctx.current; serial >= 0 {
			o.reads.Insert(serial)
		}
	}
	return o.Fixed
}

// SetFixed marks the origin as fixed. On the first call, every position
// recorded by ReadFixed is re-analyzed before SetFixed returns.
func (o *Origin) SetFixed() error {
	if o.Fixed {
		return nil
	}
	o.Fixed = true
	tracer().Debugf("fixing %s", o)
	if o.ctx == nil || o.reads.IsEmpty() {
		return nil
	}
	var serials []int
	serials = o.reads.AppendTo(serials)
	for _, serial := range serials {
		if err := o.ctx.ann.reflowFromPosition(serial); err != nil {
			return err
		}
	}
	return nil
}

// asCall turns a plain origin into a call origin.
func (o *Origin) asCall() *Origin {
	o.Kind = CallOrigin
	return o
}

// recordDependencies collects the values an origin depends on for computing
// green-args, and, for call origins, the graphs whose return values it depends on.
func (o *Origin) recordDependencies(deps map[*Origin][]flow.Value, callRet map[*Origin][]*flow.Graph) {
	switch o.Kind {
	case PlainOrigin:
		if o.op != nil {
			deps[o] = append(deps[o], o.op.Args...)
		}
	case CallOrigin:
		targets := o.ctx.callTargets[o.op]
		if len(targets) == 0 {
			// not followed: depends on the arguments only
			deps[o] = append(deps[o], o.op.Args...)
			return
		}
		var args []flow.Value
		switch o.op.Name {
		case "direct_call":
			args = o.op.Args[1:]
		case "indirect_call":
			args = o.op.Args[1 : len(o.op.Args)-1]
			// a red callable makes the result red
			deps[o] = append(deps[o], o.op.Args[0])
		default:
			panic(fmt.Sprintf("call origin for operation %s", o.op.Name))
		}
		_, fam := o.ctx.families.find(targets[0])
		callRet[o] = append(callRet[o], fam.graphs()...)
		for _, g := range fam.graphs() {
			for i, v := range args {
				argOrigin := o.ctx.inputArgOrigin(g, i)
				deps[argOrigin] = append(deps[argOrigin], v)
			}
		}
	case InputArgOrigin:
		// all members of a family get input arguments as red as each other's
		rep, fam := o.ctx.families.find(o.graph)
		if o.graph != rep {
			return
		}
		v := o.graph.Args()[o.argIndex]
		for _, other := range fam.graphs() {
			if other == rep || o.argIndex >= len(other.Args()) {
				continue
			}
			deps[o] = append(deps[o], other.Args()[o.argIndex])
			otherOrigin := o.ctx.inputArgOrigin(other, o.argIndex)
			deps[otherOrigin] = append(deps[otherOrigin], v)
		}
	}
}

// --- Origin sets -----------------------------------------------------------

// OriginSet is an immutable set of origins, ordered by origin ID.
// The zero value is the empty set.
type OriginSet struct {
	set *treeset.Set
}

func originComparator(a, b interface{}) int {
	return a.(*Origin).ID - b.(*Origin).ID
}

// NewOriginSet creates a set from a list of origins.
func NewOriginSet(origins ...*Origin) OriginSet {
	if len(origins) == 0 {
		return OriginSet{}
	}
	s := treeset.NewWith(originComparator)
	for _, o := range origins {
		s.Add(o)
	}
	return OriginSet{set: s}
}

// Len returns the number of origins in the set.
func (s OriginSet) Len() int {
	if s.set == nil {
		return 0
	}
	return s.set.Size()
}

// Origins returns the origins of the set, ordered by ID.
func (s OriginSet) Origins() []*Origin {
	if s.set == nil {
		return nil
	}
	origins := make([]*Origin, 0, s.set.Size())
	it := s.set.Iterator()
	for it.Next() {
		origins = append(origins, it.Value().(*Origin))
	}
	return origins
}

// Contains checks for membership of an origin.
func (s OriginSet) Contains(o *Origin) bool {
	return s.set != nil && s.set.Contains(o)
}

// With returns a new set containing s and additional origins.
func (s OriginSet) With(origins ...*Origin) OriginSet {
	return NewOriginSet(append(s.Origins(), origins...)...)
}

// Union returns a new set containing all origins of s and others.
func (s OriginSet) Union(others ...OriginSet) OriginSet {
	all := s.Origins()
	for _, o := range others {
		all = append(all, o.Origins()...)
	}
	return NewOriginSet(all...)
}

// Equal is set equality.
func (s OriginSet) Equal(other OriginSet) bool {
	a, b := s.Origins(), other.Origins()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s OriginSet) String() string {
	counts := map[string]int{}
	for _, o := range s.Origins() {
		state := "origin"
		if o.Fixed {
			state = "fixed origin"
		} else if o.GreenArgs {
			state = "green origin"
		}
		counts[state]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		if counts[k] > 1 {
			parts[i] = fmt.Sprintf("%d*%s", counts[k], k)
		} else {
			parts[i] = k
		}
	}
	return "<" + strings.Join(parts, ", ") + ">"
}
