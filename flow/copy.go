package flow

// Copy creates a deep copy of a graph with fresh variables, operations, blocks
// and links. Constants are shared. The copy has the given name and belongs
// to the same function object.
func Copy(g *Graph, name string) *Graph {
	vars := map[*Variable]*Variable{}
	blocks := map[*Block]*Block{}
	copyVar := func(v *Variable) *Variable {
		if nv, ok := vars[v]; ok {
			return nv
		}
		nv := &Variable{Name: v.Name, Type: v.Type}
		vars[v] = nv
		return nv
	}
	copyVal := func(v Value) Value {
		if vv, ok := v.(*Variable); ok {
			return copyVar(vv)
		}
		return v
	}
	copyVals := func(vs []Value) []Value {
		r := make([]Value, len(vs))
		for i, v := range vs {
			r[i] = copyVal(v)
		}
		return r
	}
	var copyBlock func(*Block) *Block
	copyBlock = func(b *Block) *Block {
		if nb, ok := blocks[b]; ok {
			return nb
		}
		args := make([]*Variable, len(b.InputArgs))
		for i, a := range b.InputArgs {
			args[i] = copyVar(a)
		}
		nb := NewBlock(args...)
		blocks[b] = nb
		for _, op := range b.Operations {
			nb.Operations = append(nb.Operations, &Operation{
				Name:   op.Name,
				Args:   copyVals(op.Args),
				Result: copyVar(op.Result),
			})
		}
		if b.ExitSwitch != nil {
			nb.ExitSwitch = copyVal(b.ExitSwitch)
		}
		links := make([]*Link, len(b.Exits))
		for i, l := range b.Exits {
			links[i] = &Link{Args: copyVals(l.Args), ExitCase: l.ExitCase}
		}
		nb.CloseBlock(links...)
		for i, l := range b.Exits {
			links[i].Target = copyBlock(l.Target)
		}
		return nb
	}
	ng := &Graph{Name: name, Func: g.Func}
	ng.StartBlock = copyBlock(g.StartBlock)
	ng.ReturnBlock = copyBlock(g.ReturnBlock)
	tracer().Debugf("copied graph %s to %s", g.Name, name)
	return ng
}
