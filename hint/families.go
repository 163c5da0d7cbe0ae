package hint

import (
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/npillmayer/tinct/flow"
)

// family is a set of (specialized) graphs which are reachable from a common
// call site and therefore share the colors of their arguments.
type family struct {
	rep     *flow.Graph
	members *treeset.Set
}

func (fam *family) graphs() []*flow.Graph {
	graphs := make([]*flow.Graph, 0, fam.members.Size())
	for _, v := range fam.members.Values() {
		graphs = append(graphs, v.(*flow.Graph))
	}
	return graphs
}

// families is a union-find structure over graphs.
type families struct {
	ctx    *Context
	parent map[*flow.Graph]*flow.Graph
	info   map[*flow.Graph]*family
}

func newFamilies(ctx *Context) *families {
	return &families{
		ctx:    ctx,
		parent: make(map[*flow.Graph]*flow.Graph),
		info:   make(map[*flow.Graph]*family),
	}
}

// graphs are ordered by registration with the context
func (fs *families) comparator(a, b interface{}) int {
	return fs.ctx.graphIndex[a.(*flow.Graph)] - fs.ctx.graphIndex[b.(*flow.Graph)]
}

// find returns the representative and the family of a graph, creating a
// singleton family for new graphs.
func (fs *families) find(g *flow.Graph) (*flow.Graph, *family) {
	if _, ok := fs.parent[g]; !ok {
		fs.ctx.registerGraph(g, fs.ctx.Original(g))
		fs.parent[g] = g
		members := treeset.NewWith(fs.comparator)
		members.Add(g)
		fs.info[g] = &family{rep: g, members: members}
		return g, fs.info[g]
	}
	root := g
	for fs.parent[root] != root {
		root = fs.parent[root]
	}
	for g != root {
		next := fs.parent[g]
		fs.parent[g] = root
		g = next
	}
	return root, fs.info[root]
}

// union joins the families of two graphs.
func (fs *families) union(g1, g2 *flow.Graph) (*flow.Graph, *family) {
	r1, f1 := fs.find(g1)
	r2, f2 := fs.find(g2)
	if r1 == r2 {
		return r1, f1
	}
	if f1.members.Size() < f2.members.Size() {
		r1, f1, r2, f2 = r2, f2, r1, f1
	}
	fs.parent[r2] = r1
	f1.members.Add(f2.members.Values()...)
	delete(fs.info, r2)
	tracer().Debugf("call family of %s: %d members", r1.Name, f1.members.Size())
	return r1, f1
}

// all returns every family with more than one member.
func (fs *families) all() []*family {
	var fams []*family
	for _, g := range fs.ctx.graphs {
		if fam, ok := fs.info[g]; ok && fam.members.Size() > 1 {
			fams = append(fams, fam)
		}
	}
	return fams
}
