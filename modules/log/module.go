// Package log provides the `log` function, which writes a message and a
// sorted set of fields to the task's captured output.
package log

import (
	"context"
	"fmt"
	"sort"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a `log` call.
type Input struct {
	Message string            `hcl:"message"`
	Fields  map[string]string `hcl:"fields,optional"`
}

// Log is the handler for the `log` function.
func Log(ctx context.Context, ec task.ExecContext, raw any) error {
	input := raw.(*Input)
	ctxlog.FromContext(ctx).Info("Logging message", "message", input.Message)

	if _, err := fmt.Fprintln(ec.Stdout, input.Message); err != nil {
		return err
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(input.Fields))
	for k := range input.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(ec.Stdout, "  %s = %q\n", k, input.Fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunction("log", &registry.RegisteredFunction{
		NewInput: func() any { return new(Input) },
		Fn:       Log,
	})
}
