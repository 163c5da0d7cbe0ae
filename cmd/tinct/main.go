package main

import (
	"bufio"
	"flag"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pterm/pterm"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
)

// main starts an interactive CLI, where users may load flow graphs, annotate
// them and look at the resulting bytecode.
func main() {
	initDisplay()
	gtrace.SyntaxTracer = gologadapter.New()
	tlevel := flag.String("trace", "Info", "Trace level [Debug|Info|Error]")
	policyf := flag.String("policy", "", "Annotation policy (TOML)")
	initf := flag.String("init", "", "Initial commands")
	flag.Parse()
	tracer().SetTraceLevel(tracing.LevelInfo)
	pterm.Info.Println("Welcome to tinct")
	tracer().Infof("Trace level is %s", *tlevel)
	tracer().SetTraceLevel(tracing.TraceLevelFromString(*tlevel))
	//
	session := NewSession(os.Stdout)
	if *policyf != "" {
		if err := session.loadPolicy([]string{*policyf}); err != nil {
			pterm.Error.Println(err.Error())
			os.Exit(2)
		}
	}
	if flag.NArg() > 0 {
		if err := session.load(flag.Args()[:1]); err != nil {
			pterm.Error.Println(err.Error())
			os.Exit(2)
		}
	}
	repl, err := readline.NewEx(&readline.Config{
		Prompt:       "tinct> ",
		AutoComplete: completer(session),
	})
	if err != nil {
		tracer().Errorf(err.Error())
		os.Exit(3)
	}
	defer repl.Close()
	tracer().Infof("Quit with <ctrl>D")
	loadInitFile(session, *initf)
	for {
		line, err := repl.Readline()
		if err != nil { // io.EOF
			break
		}
		quit, err := session.Execute(strings.TrimSpace(line))
		if err != nil {
			pterm.Error.Println(err.Error())
			continue
		}
		if quit {
			break
		}
	}
	println("Good bye!")
}

// We use pterm for moderately fancy output.
func initDisplay() {
	pterm.EnableDebugMessages()
	pterm.Info.Prefix = pterm.Prefix{
		Text:  "  >>",
		Style: pterm.NewStyle(pterm.BgCyan, pterm.FgBlack),
	}
	pterm.Error.Prefix = pterm.Prefix{
		Text:  "  Error",
		Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack),
	}
}

func completer(s *Session) readline.AutoCompleter {
	names := func(string) []string { return s.graphNames() }
	return readline.NewPrefixCompleter(
		readline.PcItem("load"),
		readline.PcItem("policy"),
		readline.PcItem("graphs"),
		readline.PcItem("annotate", readline.PcItemDynamic(names)),
		readline.PcItem("colors", readline.PcItemDynamic(names)),
		readline.PcItem("compile"),
		readline.PcItem("dis", readline.PcItemDynamic(names)),
		readline.PcItem("save"),
		readline.PcItem("inspect"),
		readline.PcItem("dot", readline.PcItemDynamic(names)),
		readline.PcItem("quit"),
	)
}

func loadInitFile(s *Session, filename string) {
	if filename == "" {
		return
	}
	f, err := os.Open(filename)
	if err != nil {
		tracer().Errorf("Unable to open init file: %s", filename)
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := s.Execute(line); err != nil {
			tracer().Errorf("Error line %d: %v", lineno, err)
		}
	}
	if err := scanner.Err(); err != nil {
		tracer().Errorf("Error while reading init file: %v", err)
	}
}
