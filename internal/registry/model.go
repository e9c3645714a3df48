package registry

import (
	"context"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// RegisterModel translates every task definition of a loaded pipeline and
// registers it. The first invalid definition aborts the whole model.
func (r *Registry) RegisterModel(ctx context.Context, model *config.Model) error {
	logger := ctxlog.FromContext(ctx)
	for _, def := range model.Tasks {
		t, err := r.translate(def)
		if err != nil {
			return fmt.Errorf("%s: %w", def.DeclRange, err)
		}
		if err := r.Register(t); err != nil {
			return fmt.Errorf("%s: %w", def.DeclRange, err)
		}
		logger.Debug("Registered task.", "taskID", t.ID, "inputs", len(t.Inputs), "outputs", len(t.Outputs))
	}
	logger.Debug("Pipeline registered.", "tasks", r.Len(), "functions", len(r.functions))
	return nil
}

func (r *Registry) translate(def *config.TaskDefinition) (*task.Task, error) {
	t := &task.Task{
		ID:          def.Name,
		Description: def.Description,
		Inputs:      def.Inputs,
		Outputs:     def.Outputs,
		DependsOn:   def.DependsOn,
		Cacheable:   def.Cacheable,
		Clean:       def.Clean,
	}
	if def.Action == nil {
		return t, nil
	}

	switch def.Action.Kind {
	case config.ActionCommand:
		t.Action = &task.ExternalCommand{
			Commands: def.Action.Commands,
			Dir:      def.Action.Dir,
			Env:      def.Action.Env,
		}
	case config.ActionCall:
		fn, ok := r.functions[def.Action.Function]
		if !ok {
			if def.Action.Function == "" {
				return nil, fmt.Errorf("task '%s': %w", def.Name, ErrEmptyAction)
			}
			return nil, &UnknownFunctionError{Task: def.Name, Function: def.Action.Function}
		}
		var input any
		if fn.NewInput != nil {
			input = fn.NewInput()
			if def.Action.DecodeInput != nil {
				if err := def.Action.DecodeInput(input); err != nil {
					return nil, fmt.Errorf("task '%s': failed to decode arguments for '%s': %w", def.Name, def.Action.Function, err)
				}
			}
		}
		t.Action = &task.InProcessCallable{Function: def.Action.Function, Input: input, Fn: fn.Fn}
	case config.ActionRender:
		t.Action = &task.RenderDocument{
			Engine:    def.Action.Engine,
			Source:    def.Action.Source,
			Format:    def.Action.Format,
			OutputDir: def.Action.OutputDir,
			Args:      def.Action.Args,
		}
	default:
		return nil, fmt.Errorf("task '%s': unknown action kind '%s'", def.Name, def.Action.Kind)
	}
	return t, nil
}
