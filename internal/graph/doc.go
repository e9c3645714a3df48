// Package graph builds the dependency DAG over registered tasks.
//
// An edge A -> B means B depends on A: either B declares an input that A
// declares as an output, or B lists A in depends_on. The graph is derived
// from declarations only, is built fresh on every invocation and is treated
// as immutable once Build returns, so it can be read from any number of
// executor workers without locking.
package graph
