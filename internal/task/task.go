// Package task defines the unit of work the runner schedules: a named task
// with declared input and output artifacts and exactly one action.
package task

import (
	"context"
	"io"

	"github.com/specialistvlad/taskgrid/internal/config"
)

// Task is a registered unit of work. Inputs and Outputs are clean absolute
// paths once the task has passed registration.
type Task struct {
	ID          string
	Description string
	Inputs      []string
	Outputs     []string
	// DependsOn lists upstream task IDs that are not linked through artifacts.
	DependsOn []string
	Action    Action
	// Cacheable lets a task without outputs be skipped when nothing changed.
	Cacheable bool
	// Clean marks the outputs as safe to delete in clean mode.
	Clean bool
}

// HasOutputs reports whether the task declares any output artifact.
func (t *Task) HasOutputs() bool {
	return len(t.Outputs) > 0
}

// Func is the signature of an in-process callable. Input is the value
// produced by the function's NewInput after it was decoded from the
// pipeline file.
type Func func(ctx context.Context, ec ExecContext, input any) error

// ExecContext is everything an action may touch while it runs.
type ExecContext struct {
	Settings *config.Settings
	Task     *Task
	Stdout   io.Writer
	Stderr   io.Writer
}
