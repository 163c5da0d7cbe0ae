package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/npillmayer/tinct/flow"
	"github.com/npillmayer/tinct/flow/flowtext"
	"github.com/npillmayer/tinct/hint"
	"github.com/npillmayer/tinct/jitcode"
	"github.com/pterm/pterm"
)

// Session holds the state of an exploration: a module, a policy and the
// results of the last analysis and compilation.
type Session struct {
	module   *flowtext.Module
	policy   hint.Policy
	ctx      *hint.Context
	entry    *flow.Graph
	compiler *jitcode.Compiler
	portal   *jitcode.JitCode
	out      io.Writer
}

// NewSession creates a session with the policy taken from the global
// configuration.
func NewSession(out io.Writer) *Session {
	return &Session{policy: hint.PolicyFromConfig(), out: out}
}

type command struct {
	args int // minimum number of arguments
	run  func(s *Session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"load":     {1, (*Session).load},
		"policy":   {1, (*Session).loadPolicy},
		"graphs":   {0, (*Session).graphs},
		"annotate": {1, (*Session).annotate},
		"colors":   {1, (*Session).colors},
		"compile":  {0, (*Session).compile},
		"dis":      {0, (*Session).disassemble},
		"save":     {1, (*Session).save},
		"inspect":  {1, (*Session).inspect},
		"dot":      {2, (*Session).dot},
	}
}

// Execute runs a command line.
func (s *Session) Execute(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := fields[0], fields[1:]
	if name == "quit" || name == "exit" {
		return true, nil
	}
	cmd, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q", name)
	}
	if len(args) < cmd.args {
		return false, fmt.Errorf("%s needs %d argument(s)", name, cmd.args)
	}
	tracer().Debugf("executing %s %v", name, args)
	return false, cmd.run(s, args)
}

func (s *Session) load(args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	m, err := flowtext.Parse(string(src))
	if err != nil {
		return err
	}
	s.module, s.ctx, s.entry, s.compiler, s.portal = m, nil, nil, nil, nil
	pterm.Info.Println(fmt.Sprintf("loaded %d graphs from %s", len(m.Graphs), args[0]))
	return nil
}

func (s *Session) loadPolicy(args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	p, err := hint.LoadPolicy(f)
	if err != nil {
		return err
	}
	s.policy = p
	return nil
}

func (s *Session) graphs(args []string) error {
	if s.module == nil {
		return fmt.Errorf("no module loaded")
	}
	data := pterm.TableData{{"graph", "arguments", "blocks", "live"}}
	for _, g := range s.module.Graphs {
		params := make([]string, len(g.Args()))
		for i, a := range g.Args() {
			params[i] = a.Name + ": " + a.Type.String()
		}
		live := ""
		if s.ctx != nil && len(s.ctx.Specializations(g)) > 0 {
			live = fmt.Sprintf("%d", len(s.ctx.Specializations(g)))
		}
		data = append(data, []string{g.Name, strings.Join(params, ", "),
			fmt.Sprintf("%d", len(g.Blocks())), live})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	return nil
}

// entryArgs creates the abstract values for the arguments of an entry graph.
// Arguments default to red.
func (s *Session) entryArgs(ctx *hint.Context, g *flow.Graph, spec []string) ([]hint.AbstractValue, error) {
	args := make([]hint.AbstractValue, len(g.Args()))
	for i, a := range g.Args() {
		color := "r"
		if i < len(spec) {
			color = spec[i]
		}
		switch color {
		case "r", "red":
			args[i] = hint.RedArg(a.Type)
		case "g", "green":
			args[i] = ctx.GreenCandidate(a.Type)
		default:
			return nil, fmt.Errorf("argument color must be r or g, is %q", color)
		}
	}
	return args, nil
}

func (s *Session) annotate(args []string) error {
	if s.module == nil {
		return fmt.Errorf("no module loaded")
	}
	g := s.module.Graph(args[0])
	if g == nil {
		return fmt.Errorf("no graph %s", args[0])
	}
	ctx := hint.NewContext(s.policy)
	hs, err := s.entryArgs(ctx, g, args[1:])
	if err != nil {
		return err
	}
	if err := ctx.Annotate(g, hs...); err != nil {
		return err
	}
	s.ctx, s.entry, s.compiler, s.portal = ctx, g, nil, nil
	pterm.Info.Println(fmt.Sprintf("%d live graphs", len(ctx.Graphs())))
	return nil
}

// liveGraph finds an analyzed graph by name, including specialized copies.
func (s *Session) liveGraph(name string) (*flow.Graph, error) {
	if s.ctx == nil {
		return nil, fmt.Errorf("nothing annotated")
	}
	for _, g := range s.ctx.Graphs() {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("no live graph %s", name)
}

func (s *Session) colors(args []string) error {
	g, err := s.liveGraph(args[0])
	if err != nil {
		return err
	}
	var ll pterm.LeveledList
	for _, b := range g.Blocks() {
		ll = append(ll, pterm.LeveledListItem{Level: 0, Text: b.String()})
		for _, v := range b.InputArgs {
			ll = append(ll, pterm.LeveledListItem{Level: 1, Text: s.describe(v)})
		}
		for _, op := range b.Operations {
			ll = append(ll, pterm.LeveledListItem{Level: 1, Text: s.describe(op.Result) + " = " + op.Name})
		}
	}
	pterm.Println(g.Name)
	pterm.DefaultTree.WithRoot(pterm.NewTreeFromLeveledList(ll)).Render()
	return nil
}

func (s *Session) describe(v *flow.Variable) string {
	hs := s.ctx.Binding(v)
	if hs == nil {
		return fmt.Sprintf("%s: %v unbound", v.Name, v.Type)
	}
	text := fmt.Sprintf("%s: %v %s", v.Name, v.Type, hint.Color(hs))
	if cause := s.ctx.Cause(v); cause != "" && !s.ctx.IsGreen(v) {
		text += "  (" + strings.ReplaceAll(cause, "\n", " ") + ")"
	}
	return text
}

func (s *Session) compile(args []string) error {
	if s.ctx == nil {
		return fmt.Errorf("nothing annotated")
	}
	if s.portal != nil {
		return nil
	}
	c := jitcode.NewCompiler(s.ctx)
	portal, err := c.Compile(s.entry)
	if err != nil {
		return err
	}
	s.compiler, s.portal = c, portal
	pterm.Info.Println(fmt.Sprintf("compiled %s: %d opcodes, %d global merge points",
		portal.Name, c.Opcodes().Len(), c.NumGlobalMergePoints()))
	return nil
}

// codes lists the bytecode reachable from the portal, portal first.
func codes(portal *jitcode.JitCode) []*jitcode.JitCode {
	seen := map[*jitcode.JitCode]bool{}
	var all []*jitcode.JitCode
	var walk func(*jitcode.JitCode)
	walk = func(jc *jitcode.JitCode) {
		if seen[jc] {
			return
		}
		seen[jc] = true
		all = append(all, jc)
		for _, called := range jc.CalledBytecodes {
			walk(called)
		}
	}
	walk(portal)
	return all
}

func (s *Session) disassemble(args []string) error {
	if err := s.compile(nil); err != nil {
		return err
	}
	all := codes(s.portal)
	if len(args) > 0 {
		var selected []*jitcode.JitCode
		for _, jc := range all {
			if jc.Name == args[0] {
				selected = append(selected, jc)
			}
		}
		if len(selected) == 0 {
			return fmt.Errorf("no bytecode for %s", args[0])
		}
		all = selected
	}
	for _, jc := range all {
		if err := jc.Dump(s.out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) save(args []string) error {
	if err := s.compile(nil); err != nil {
		return err
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	return s.compiler.Bundle(s.portal).Encode(f)
}

func (s *Session) inspect(args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := jitcode.DecodeBundle(f)
	if err != nil {
		return err
	}
	all, err := b.JitCodes()
	if err != nil {
		return err
	}
	pterm.Info.Println(fmt.Sprintf("%d bytecodes, %d opcodes, %d global merge points",
		len(all), len(b.Opcodes), b.NumGlobalMergePoints))
	for _, jc := range all {
		if err := jc.Dump(s.out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) dot(args []string) error {
	g, err := s.liveGraph(args[0])
	if err != nil {
		return err
	}
	return flow.Graph2GraphViz(g, s.colorizer(), args[1])
}

// colorizer colors variables green or red, by binding time.
func (s *Session) colorizer() flow.Colorizer {
	return func(v *flow.Variable) string {
		if s.ctx.Binding(v) == nil {
			return ""
		}
		if s.ctx.IsGreen(v) {
			return "green"
		}
		return "red"
	}
}

// graphNames is used for completion.
func (s *Session) graphNames() []string {
	if s.module == nil {
		return nil
	}
	names := make([]string, 0, len(s.module.Graphs))
	for _, g := range s.module.Graphs {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}
