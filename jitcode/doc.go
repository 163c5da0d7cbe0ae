/*
Package jitcode compiles colored flow graphs to bytecode.

Input is an analysis session of package hint, after the binding-time analysis
reached its fixpoint. Every operation is emitted as one instruction variant per
color: an operation is green if all its operands and its result are green,
otherwise it is red. Green and red values live in separate register files,
which are local to a basic block. Values crossing a block boundary are renamed
explicitly on every control flow edge.

    ctx := hint.NewContext(hint.DefaultPolicy())
    if err := ctx.Annotate(g, args...); err != nil { … }
    c := jitcode.NewCompiler(ctx)
    code, err := c.Compile(g)
    code.Dump(os.Stdout)

Instruction Format

Opcodes are 2 bytes, register indices and other integer operands are 2 bytes.
Negative integer operands in green position denote constants: ^index into the
constant table. Flags are 1 byte, branch targets are 4 byte absolute offsets.

The writer emits into an arena of symbolic instructions. Branch targets are
labels, which are resolved by a separate link pass.

Descriptor Tables

A JitCode carries tables for constants, type kinds, merge point keys, struct,
field, array and interior field layouts, oopspec operations, promotion sites,
call signatures and for the bytecodes of called graphs. Changing the order of
tables or the width of operands breaks the format.

Merge Points

Blocks with more than one entry are merge points. Merge points marked by a
global_merge_point hint are global: they are numbered per compilation session
and let the execution engine recognize repeated invocations. All other merge
points are local and numbered per graph.

___________________________________________________________________________

License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/
package jitcode

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'tinct.jitcode'.
func tracer() tracing.Trace {
	return tracing.Select("tinct.jitcode")
}
