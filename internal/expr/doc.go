// Package expr provides declarative boolean predicates over a single
// parameter.
//
// A Lambda pairs a Param with a Node tree built from member access, constants,
// comparisons and logical connectives. The same tree can be compiled into an
// in-memory func(T) bool (see Compile) or walked by a storage backend and
// translated into a native query. Trees are immutable once built; combining
// two lambdas rebinds the second body onto the first parameter rather than
// mutating either input.
package expr
