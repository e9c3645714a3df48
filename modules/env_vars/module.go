// Package env_vars provides the `write_env` function, which snapshots the
// resolved configuration (and optionally selected process variables) into a
// dotenv file that scripts outside taskgrid can source.
package env_vars

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a `write_env` call.
type Input struct {
	Path string `hcl:"path"`
	// Include names extra process environment variables to copy.
	Include []string `hcl:"include,optional"`
}

// WriteEnv is the handler for the `write_env` function.
func WriteEnv(ctx context.Context, ec task.ExecContext, raw any) error {
	input := raw.(*Input)
	if ec.Settings == nil {
		return fmt.Errorf("write_env needs resolved settings")
	}

	lines := ec.Settings.Env()
	for _, name := range input.Include {
		if v, ok := os.LookupEnv(name); ok {
			lines = append(lines, name+"="+v)
		}
	}
	sort.Strings(lines)
	for i, l := range lines {
		k, v, _ := strings.Cut(l, "=")
		lines[i] = fmt.Sprintf("%s=%q", k, v)
	}

	path := ec.Settings.Resolve(input.Path)
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunction("write_env", &registry.RegisteredFunction{
		NewInput: func() any { return new(Input) },
		Fn:       WriteEnv,
	})
}
