/*
Command tinct is an interactive explorer for the binding-time analysis and
the bytecode compiler. It loads flow graphs in textual form, annotates an
entry graph, shows the colors of values and disassembles the bytecode.

    tinct [-trace Info] [-policy policy.toml] [-init commands.txt] [module.flow]

Commands are entered one per line:

    load <file>                 read a module of flow graphs
    policy <file>               read an annotation policy (TOML)
    graphs                      list the graphs of the module
    annotate <entry> [r|g ...]  analyze an entry graph, arguments red or green
    colors <graph>              show the binding times of a graph's values
    compile                     compile the entry graph and its callees
    dis [graph]                 disassemble bytecode
    save <file>                 write the bytecode bundle (CBOR)
    inspect <file>              disassemble a saved bundle
    dot <graph> <file>          export a colored graph to Graphviz
    quit

License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/
package main

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'tinct.cmd'
func tracer() tracing.Trace {
	return tracing.Select("tinct.cmd")
}
