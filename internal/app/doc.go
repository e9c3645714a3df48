// Package app contains the core application logic. It wires settings, the
// pipeline loader, the registry, the graph and the executor together and
// implements the run, clean and list lifecycles, decoupled from any specific
// entrypoint like a CLI.
package app
