package hint

import (
	"github.com/npillmayer/tinct/flow"
)

// computeLive collects the graphs reachable from the entry graph through the
// call targets of the last analysis pass.
func (ctx *Context) computeLive() {
	ctx.live = map[*flow.Graph]bool{ctx.entry: true}
	work := []*flow.Graph{ctx.entry}
	for len(work) > 0 {
		g := work[len(work)-1]
		work = work[:len(work)-1]
		for _, b := range g.Blocks() {
			for _, op := range b.Operations {
				for _, target := range ctx.callTargets[op] {
					if !ctx.live[target] {
						ctx.live[target] = true
						work = append(work, target)
					}
				}
			}
		}
	}
}

func (ctx *Context) isLive(g *flow.Graph) bool {
	if ctx.live == nil {
		return true
	}
	return ctx.live[g]
}

// computeAtFixpoint runs after the worklist is exhausted. It computes the
// green-args flag of every origin of a live graph: an origin has green args
// if none of the values it depends on is red. Calls which are not green calls
// make their result depend on the return values of their targets.
func (ctx *Context) computeAtFixpoint() error {
	ctx.computeLive()
	bindings := ctx.ann.bindings
	// nothing calls the entry graph, so its arguments must not be green by origin
	for _, v := range ctx.entry.Args() {
		if c, ok := bindings[v].(*Constant); ok && c.MyOrigin != nil {
			c = c.clone()
			c.MyOrigin = nil
			bindings[v] = c
		}
	}
	if ctx.policy.EntryReturnsRed {
		v := ctx.entry.ReturnVar()
		if _, ok := bindings[v]; ok {
			bindings[v] = variableOf(v.Type)
		}
	}
	for _, g := range ctx.Graphs() {
		for i := range g.Args() {
			ctx.inputArgOrigin(g, i)
		}
	}
	var origins []*Origin
	for _, o := range ctx.originList {
		if o.graph != nil && ctx.isLive(o.graph) {
			origins = append(origins, o)
		}
	}
	deps := make(map[*Origin][]flow.Value)
	callRet := make(map[*Origin][]*flow.Graph)
	for _, o := range origins {
		o.GreenArgs = true
		o.recordDependencies(deps, callRet)
	}
	for {
		for _, o := range origins {
			graphs, ok := callRet[o]
			if !ok || ctx.IsGreenCall(o.op) {
				continue
			}
			delete(callRet, o)
			for _, g := range graphs {
				deps[o] = append(deps[o], g.ReturnVar())
			}
		}
		progress := false
		for _, o := range origins {
			vs, ok := deps[o]
			if !ok {
				continue
			}
			for _, v := range vs {
				if !ctx.IsGreen(v) {
					o.GreenArgs = false
					delete(deps, o)
					progress = true
					break
				}
			}
		}
		if !progress {
			break
		}
	}
	// if one member of a family returns red, all of them do
	for _, fam := range ctx.families.all() {
		if !ctx.isLive(fam.rep) {
			continue
		}
		returnsRed := false
		for _, g := range fam.graphs() {
			if !ctx.IsGreen(g.ReturnVar()) {
				returnsRed = true
			}
		}
		if returnsRed {
			for _, g := range fam.graphs() {
				v := g.ReturnVar()
				bindings[v] = variableOf(v.Type)
			}
		}
	}
	tracer().Infof("analysis of %s done: %d live graphs", ctx.entry.Name, len(ctx.live))
	return nil
}
