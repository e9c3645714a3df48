package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// Module is the interface that all built-in function modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredFunction is a Go function callable from a pipeline `call` action.
type RegisteredFunction struct {
	// NewInput returns a pointer to the struct the call body is decoded into.
	NewInput func() any
	Fn       task.Func
}

// Registry holds the registered tasks and functions for a single run.
type Registry struct {
	settings  *config.Settings
	functions map[string]*RegisteredFunction
	tasks     map[string]*task.Task
	order     []string
	// owners maps an output path to the ID of the task that declares it.
	owners map[string]string
}

// New creates an empty Registry bound to the resolved settings.
func New(settings *config.Settings) *Registry {
	return &Registry{
		settings:  settings,
		functions: make(map[string]*RegisteredFunction),
		tasks:     make(map[string]*task.Task),
		owners:    make(map[string]string),
	}
}

// RegisterFunction makes a Go function callable by name. Registering the same
// name twice is a programmer error and panics.
func (r *Registry) RegisterFunction(name string, fn *RegisteredFunction) {
	if _, exists := r.functions[name]; exists {
		panic(fmt.Sprintf("function with name '%s' already registered", name))
	}
	slog.Debug("Registering function.", "name", name)
	r.functions[name] = fn
}

// Function looks up a registered function.
func (r *Registry) Function(name string) (*RegisteredFunction, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// Register validates t and adds a copy of it with resolved artifact paths.
func (r *Registry) Register(t *task.Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id must not be empty")
	}
	if _, exists := r.tasks[t.ID]; exists {
		return &DuplicateTaskError{ID: t.ID}
	}
	if t.Action == nil || t.Action.Empty() {
		return fmt.Errorf("task '%s': %w", t.ID, ErrEmptyAction)
	}

	registered := *t
	if call, ok := t.Action.(*task.InProcessCallable); ok && call.Fn == nil {
		fn, found := r.functions[call.Function]
		if !found {
			return &UnknownFunctionError{Task: t.ID, Function: call.Function}
		}
		bound := *call
		bound.Fn = fn.Fn
		registered.Action = &bound
	}
	if err := registered.Action.Validate(); err != nil {
		return fmt.Errorf("task '%s': invalid %s action: %w", t.ID, registered.Action.Kind(), err)
	}

	outputs, err := r.resolvePaths(t.ID, t.Outputs, r.outputRoots())
	if err != nil {
		return err
	}
	inputs, err := r.resolvePaths(t.ID, t.Inputs, r.inputRoots())
	if err != nil {
		return err
	}
	for _, out := range outputs {
		if owner, ok := r.overlappingOwner(out); ok {
			return &OverlappingOutputError{Path: out, Owner: owner, Task: t.ID}
		}
	}

	registered.Outputs = outputs
	registered.Inputs = inputs
	registered.DependsOn = append([]string(nil), t.DependsOn...)
	for _, out := range outputs {
		r.owners[out] = t.ID
	}
	r.tasks[t.ID] = &registered
	r.order = append(r.order, t.ID)
	return nil
}

// overlappingOwner finds a task whose output equals out, contains it, or
// lies inside it. A directory output owns everything below it.
func (r *Registry) overlappingOwner(out string) (string, bool) {
	if owner, taken := r.owners[out]; taken {
		return owner, true
	}
	owned := make([]string, 0, len(r.owners))
	for p := range r.owners {
		owned = append(owned, p)
	}
	sort.Strings(owned)
	for _, p := range owned {
		if config.Within(p, out) || config.Within(out, p) {
			return r.owners[p], true
		}
	}
	return "", false
}

// outputRoots are the reproducible areas tasks may write to.
func (r *Registry) outputRoots() []string {
	return []string{r.settings.DataDir, r.settings.OutputDir}
}

// inputRoots are the areas tasks may read from.
func (r *Registry) inputRoots() []string {
	return []string{r.settings.BaseDir, r.settings.ManualDataDir, r.settings.DataDir, r.settings.OutputDir}
}

// resolvePaths anchors every path at BaseDir, drops duplicates and checks
// that each one lives under one of roots.
func (r *Registry) resolvePaths(taskID string, paths []string, roots []string) ([]string, error) {
	seen := make(map[string]struct{}, len(paths))
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		abs := r.settings.Resolve(p)
		if _, dup := seen[abs]; dup {
			continue
		}
		if !underAny(abs, roots) {
			return nil, &PathOutsideRootError{Task: taskID, Path: abs, Roots: roots}
		}
		seen[abs] = struct{}{}
		resolved = append(resolved, abs)
	}
	return resolved, nil
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if path != root && config.Within(root, path) {
			return true
		}
	}
	return false
}

// All returns every registered task. Callers must not rely on the order.
func (r *Registry) All() []*task.Task {
	out := make([]*task.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

// Get returns the registered task with the given ID.
func (r *Registry) Get(id string) (*task.Task, bool) {
	t, ok := r.tasks[id]
	return t, ok
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.tasks)
}
