/*
Package hint implements the binding-time analysis.

Every value of a flow graph is classified by an abstract value of one of three
variants:

■ Variable: a value only known at run time ("red").

■ Constant: a value which may be known at specialization time. Constants carry
a set of origins, explaining why they might be fixed. A Constant is "green" if
all its origins are fixed, if it is eagerly concrete, or if the origin which
created it depends on green values only.

■ Container: a virtual struct or array, tracked field by field.

Analysis

An analysis session is bound to a Context. Clients annotate an entry graph with
abstract values for its arguments:

    ctx := hint.NewContext(hint.DefaultPolicy())
    err := ctx.Annotate(g, hint.NewVariable(flow.Signed), ctx.GreenCandidate(flow.Signed))

Annotation is a worklist fixpoint over the blocks of all graphs reachable from
the entry graph. Called graphs are specialized per set of compile-time
arguments. Whenever an origin becomes fixed, all analysis positions which read
it while it was unfixed are re-analyzed before the fixing operation returns.

Hints

Flow graphs control the analysis with hint operations carrying exactly one flag:
'concrete' fixes a value, 'promote' makes a red value green at run time,
'forget' makes a value opaque again, 'deepfreeze' treats everything reachable
from a value as immutable. 'variable' forces a value to be red.

___________________________________________________________________________

License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/
package hint

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'tinct.hint'.
func tracer() tracing.Trace {
	return tracing.Select("tinct.hint")
}
