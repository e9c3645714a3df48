// Package registry holds the declared tasks of a pipeline and the Go
// functions that in-process actions may call.
//
// The Registry is the gatekeeper between a loaded pipeline and the graph
// builder. Every task passes through Register, which resolves its artifact
// paths against the configured roots and rejects anything the rest of the
// system relies on never seeing: duplicate IDs, empty actions, outputs
// outside the reproducible data and output areas, and two tasks claiming the
// same output. Built-in modules register their functions before any task is
// registered so that call actions can be bound and their inputs decoded up
// front.
package registry
