// Package cli is responsible for parsing command-line arguments and
// handling process-level concerns like exit codes. It translates flags and
// subcommands into the application's configuration and lifecycle calls.
package cli
