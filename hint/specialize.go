package hint

import (
	"fmt"

	"github.com/cnf/structhash"
	"github.com/npillmayer/tinct/flow"
)

// specKey is the specialization key of a call: fixedness of the result and
// one element per argument. Elements are the literal of compile-time known
// arguments, "E" for eager-concrete arguments without a literal, "v" for
// Void arguments and "x" for everything else.
type specKey struct {
	Fixed bool
	Args  []string
}

// specializer creates and caches specialized copies of graphs.
type specializer struct {
	ctx    *Context
	cache  map[*flow.Graph]map[string]*flow.Graph
	copies map[*flow.Graph][]*flow.Graph
	names  map[string]bool
}

func newSpecializer(ctx *Context) *specializer {
	return &specializer{
		ctx:    ctx,
		cache:  make(map[*flow.Graph]map[string]*flow.Graph),
		copies: make(map[*flow.Graph][]*flow.Graph),
		names:  make(map[string]bool),
	}
}

func (sp *specializer) key(g *flow.Graph, fixed bool, args []AbstractValue) specKey {
	degrade := len(sp.copies[g]) >= sp.ctx.policy.MaxSpecializations
	key := specKey{Fixed: fixed, Args: make([]string, len(args))}
	for i, hs := range args {
		key.Args[i] = "x"
		if hs.ConcreteType() == flow.Void {
			key.Args[i] = "v"
			if lit, ok := Literal(hs); ok {
				key.Args[i] = fmt.Sprintf("v%v", lit)
			}
			continue
		}
		c, ok := hs.(*Constant)
		if !ok {
			continue
		}
		if c.HasLiteral && !degrade && (c.EagerConcrete || readsFixed(c)) {
			key.Args[i] = fmt.Sprintf("=%T:%v", c.Literal, c.Literal)
		} else if c.EagerConcrete {
			key.Args[i] = "E"
		}
	}
	return key
}

// readsFixed checks if all origins of a Constant are fixed, recording the
// current position as a reader of every origin.
func readsFixed(c *Constant) bool {
	fixed := true
	for _, o := range c.Origins.Origins() {
		if !o.ReadFixed() {
			fixed = false
		}
	}
	return fixed
}

func (k specKey) isGeneric() bool {
	if k.Fixed {
		return false
	}
	for _, a := range k.Args {
		if a != "x" && a != "v" && a != "E" {
			return false
		}
	}
	return true
}

// specialize returns the copy of g for a call with abstract arguments args,
// and the values for the input arguments of the copy. recursive is true if
// the copy is the graph currently under analysis.
func (sp *specializer) specialize(g *flow.Graph, fixed bool, args []AbstractValue) (*flow.Graph, []AbstractValue, bool) {
	key := sp.key(g, fixed, args)
	hash, err := structhash.Hash(key, 1)
	if err != nil {
		panic(fmt.Sprintf("cannot hash specialization key: %v", err))
	}
	byKey, ok := sp.cache[g]
	if !ok {
		byKey = make(map[string]*flow.Graph)
		sp.cache[g] = byKey
	}
	target, ok := byKey[hash]
	if !ok {
		target = flow.Copy(g, sp.name(g, key))
		byKey[hash] = target
		sp.copies[g] = append(sp.copies[g], target)
		sp.ctx.registerGraph(target, g)
		sp.ctx.families.find(target)
		tracer().Debugf("specialized %s as %s for %v", g.Name, target.Name, key.Args)
	}
	inputs := make([]AbstractValue, len(args))
	for i, hs := range args {
		c, ok := hs.(*Constant)
		if !ok || c.T == flow.Void {
			inputs[i] = hs
			continue
		}
		o := sp.ctx.inputArgOrigin(target, i)
		in := &Constant{T: c.T, Origins: NewOriginSet(o), MyOrigin: o,
			EagerConcrete: c.EagerConcrete, Frozen: c.Frozen}
		if len(key.Args[i]) > 0 && key.Args[i][0] == '=' {
			in.Literal, in.HasLiteral = c.Literal, true
		}
		inputs[i] = in
	}
	recursive := target == sp.ctx.currentGraph()
	return target, inputs, recursive
}

func (sp *specializer) name(g *flow.Graph, key specKey) string {
	n := len(sp.copies[g])
	name := fmt.Sprintf("%s_H%d", g.Name, n)
	switch {
	case key.Fixed:
		name = g.Name + "_HFixed"
	case key.isGeneric() && n == 0:
		return g.Name
	}
	if sp.names[name] {
		name = fmt.Sprintf("%s_%d", name, n)
	}
	sp.names[name] = true
	return name
}
