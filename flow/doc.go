/*
Package flow is the input model of the binding-time analysis.

A program is given as a set of graphs. Every graph consists of basic blocks of
typed low-level operations. A block has an ordered list of input arguments, an
ordered list of operations and either no exit (the return block), a single exit
link or two exit links switched by a boolean exit value.

Building a Graph

Graphs are usually produced by an external flow graph builder. For tests and
tools, clients may use a graph builder:

    b := flow.NewBuilder("add", flow.Signed, flow.Signed)
    x, y := b.Arg(0), b.Arg(1)
    r := b.Op("int_add", flow.Signed, x, y)
    b.Return(r)
    g := b.Graph()

Types

Low-level types are interned: primitive types are package level singletons,
pointer types are unique per target type and structs and arrays are identified
by pointer. Struct and array types carry hints (immutable, virtualizable) which
the analysis relies upon instead of alias analysis.

___________________________________________________________________________

License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/
package flow

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'tinct.flow'.
func tracer() tracing.Trace {
	return tracing.Select("tinct.flow")
}
