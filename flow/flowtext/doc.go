/*
Package flowtext reads flow graphs from a textual notation.

The notation is meant for tests and for the interactive explorer. A source
text declares types, external functions and graphs:

    # comments run to the end of the line
    type Point struct { x: Signed, y: Signed }
    type Frozen struct [immutable] { n: Signed }
    type Vec array Signed

    extern ll_length(l: *Vec): Signed oopspec "list.len(l)" pure

    graph inc(x: Signed): Signed {
        y = int_add(x, 1)
        return y
    }

    graph main(n: Signed): Signed {
        c = int_gt(n, 0)
        if c goto pos(n) else done(0)
    pos(a: Signed):
        r = direct_call(@inc, a)
        goto done(r)
    done(v: Signed):
        return v
    }

The body of a graph starts with the statements of its start block, whose input
arguments are the graph parameters. Further blocks are introduced by a label
with typed parameters. Every block ends with a goto, a two-way if or a return.
The false branch of an if may repeat the goto: "if c goto a(x) else goto b(x)"
is the same as "if c goto a(x) else b(x)".

Values are variables of the current block, numbers (optionally typed like
3:Char), true and false, null:*T, strings (field names and other Void
constants), @f (function pointers), %T (type constants), {flag} (hint flags)
and [@f, @g] (the possible targets of an indirect call).

The result type of an operation may be given explicitly, as in
"p: *Point = cast_pointer(q)". If omitted, it is derived from the operation.

___________________________________________________________________________

License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/
package flowtext

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'tinct.flowtext'.
func tracer() tracing.Trace {
	return tracing.Select("tinct.flowtext")
}
