/*
Package tinct is a binding-time analyzer and specializing bytecode compiler
for a partial-evaluation based JIT generator.

Given a flow graph of typed low-level operations, tinct decides for every value
whether it is known at specialization time ("green") or only at execution time
("red"), and then emits a compact bytecode program in which every operation is
tagged with its color and works on color-specific register files.
Package structure is as follows:

■ flow: Package flow is the input model: low-level types, variables, constants,
operations, blocks, links and graphs, together with a builder and a table of
known low-level operations.

■ flow/flowtext: Package flowtext reads flow graphs from a small textual format.

■ hint: Package hint implements the binding-time analysis. It classifies values
into a lattice of variables, constants and virtual containers, tracks the
provenance of green candidates and specializes called graphs per set of
compile-time arguments.

■ jitcode: Package jitcode compiles colored graphs into bytecode objects plus
descriptor tables for the execution engine.

■ sparse: Package sparse implements a small sparse integer matrix.

The base package contains data types which are used throughout all the other packages.

License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/
package tinct
