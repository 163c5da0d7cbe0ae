package flow

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Colorizer tells the color (as a Graphviz color name) of a variable. It
// returns the empty string for uncolored variables.
type Colorizer func(*Variable) string

// Graph2GraphViz exports a graph to the Graphviz Dot format, given a filename.
func Graph2GraphViz(g *Graph, colors Colorizer, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("file open error: %w", err)
	}
	defer f.Close()
	return WriteDot(g, colors, f)
}

// WriteDot writes a graph in Dot format. Every block is a record node listing
// its input arguments and operations; variables are colored by colors.
func WriteDot(g *Graph, colors Colorizer, w io.Writer) error {
	var b strings.Builder
	b.WriteString(`digraph {
graph [splines=true, fontname=Helvetica, fontsize=10];
node [shape=Mrecord, style=filled, fontname=Helvetica, fontsize=10];
edge [fontname=Helvetica, fontsize=10];

`)
	for _, blk := range g.Blocks() {
		lines := []string{blk.String() + "(" + varList(blk.InputArgs, colors) + ")"}
		for _, op := range blk.Operations {
			lines = append(lines, dotEscape(colored(op.Result, colors)+" = "+op.Name))
		}
		fmt.Fprintf(&b, "b%d [fillcolor=%s label=\"{%s}\"]\n", blk.ID, blockcolor(g, blk),
			strings.Join(lines, " | "))
	}
	for _, l := range g.Links() {
		label := ""
		if l.ExitCase != nil {
			label = fmt.Sprintf("%v", l.ExitCase)
		}
		fmt.Fprintf(&b, "b%d -> b%d [label=\"%s\"]\n", l.Prev.ID, l.Target.ID, label)
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func blockcolor(g *Graph, b *Block) string {
	if b == g.StartBlock || b == g.ReturnBlock {
		return "lightgray"
	}
	return "white"
}

func varList(vars []*Variable, colors Colorizer) string {
	s := make([]string, len(vars))
	for i, v := range vars {
		s[i] = colored(v, colors)
	}
	return dotEscape(strings.Join(s, ", "))
}

func colored(v *Variable, colors Colorizer) string {
	if colors != nil {
		if c := colors(v); c != "" {
			return v.Name + ":" + c
		}
	}
	return v.Name
}

func dotEscape(s string) string {
	r := strings.NewReplacer("{", "\\{", "}", "\\}", "<", "\\<", ">", "\\>", "|", "\\|", "\"", "\\\"")
	return r.Replace(s)
}
