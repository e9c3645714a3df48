package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() *config.Settings {
	return &config.Settings{
		BaseDir:       "/repo",
		DataDir:       "/repo/_data",
		ManualDataDir: "/repo/data_manual",
		OutputDir:     "/repo/_output",
	}
}

func cmd(lines ...string) task.Action {
	return &task.ExternalCommand{Commands: lines}
}

func TestRegister_ResolvesPaths(t *testing.T) {
	r := New(testSettings())

	err := r.Register(&task.Task{
		ID:      "pull_prices",
		Inputs:  []string{"./src/pull.py", "data_manual/tickers.csv", "./src/pull.py"},
		Outputs: []string{"_data/pulled/prices.csv"},
		Action:  cmd("python src/pull.py"),
	})
	require.NoError(t, err)

	got, ok := r.Get("pull_prices")
	require.True(t, ok)
	assert.Equal(t, []string{"/repo/src/pull.py", "/repo/data_manual/tickers.csv"}, got.Inputs)
	assert.Equal(t, []string{"/repo/_data/pulled/prices.csv"}, got.Outputs)
	assert.Equal(t, 1, r.Len())
	assert.Len(t, r.All(), 1)
}

func TestRegister_Errors(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		r := New(testSettings())
		require.NoError(t, r.Register(&task.Task{ID: "a", Action: cmd("true")}))

		err := r.Register(&task.Task{ID: "a", Action: cmd("true")})
		var dup *DuplicateTaskError
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, "a", dup.ID)
	})

	t.Run("overlapping outputs", func(t *testing.T) {
		r := New(testSettings())
		require.NoError(t, r.Register(&task.Task{ID: "a", Outputs: []string{"_output/t.csv"}, Action: cmd("true")}))

		err := r.Register(&task.Task{ID: "b", Outputs: []string{"/repo/_output/./t.csv"}, Action: cmd("true")})
		var overlap *OverlappingOutputError
		require.True(t, errors.As(err, &overlap))
		assert.Equal(t, "a", overlap.Owner)
		assert.Equal(t, "b", overlap.Task)
		assert.Equal(t, "/repo/_output/t.csv", overlap.Path)

		_, registered := r.Get("b")
		assert.False(t, registered, "a rejected task must not be half-registered")
	})

	t.Run("nested outputs", func(t *testing.T) {
		r := New(testSettings())
		require.NoError(t, r.Register(&task.Task{ID: "a", Outputs: []string{"_data/pulled"}, Action: cmd("true")}))

		err := r.Register(&task.Task{ID: "b", Outputs: []string{"_data/pulled/prices.csv"}, Action: cmd("true")})
		var overlap *OverlappingOutputError
		require.True(t, errors.As(err, &overlap), "output inside another task's directory, got %v", err)
		assert.Equal(t, "a", overlap.Owner)

		r = New(testSettings())
		require.NoError(t, r.Register(&task.Task{ID: "b", Outputs: []string{"_data/pulled/prices.csv"}, Action: cmd("true")}))
		err = r.Register(&task.Task{ID: "a", Outputs: []string{"_data/pulled"}, Action: cmd("true")})
		require.True(t, errors.As(err, &overlap), "directory containing another task's output, got %v", err)
		assert.Equal(t, "b", overlap.Owner)

		r = New(testSettings())
		require.NoError(t, r.Register(&task.Task{ID: "a", Outputs: []string{"_data/pulled"}, Action: cmd("true")}))
		assert.NoError(t, r.Register(&task.Task{ID: "c", Outputs: []string{"_data/pulled_other.csv"}, Action: cmd("true")}),
			"a shared name prefix is not nesting")
	})

	t.Run("empty action", func(t *testing.T) {
		r := New(testSettings())
		assert.ErrorIs(t, r.Register(&task.Task{ID: "a"}), ErrEmptyAction)
		assert.ErrorIs(t, r.Register(&task.Task{ID: "b", Action: cmd(" ")}), ErrEmptyAction)
	})

	t.Run("output in manual area", func(t *testing.T) {
		r := New(testSettings())
		err := r.Register(&task.Task{ID: "a", Outputs: []string{"data_manual/x.csv"}, Action: cmd("true")})
		var outside *PathOutsideRootError
		require.True(t, errors.As(err, &outside))
		assert.Equal(t, "/repo/data_manual/x.csv", outside.Path)
	})

	t.Run("input outside the repository", func(t *testing.T) {
		r := New(testSettings())
		err := r.Register(&task.Task{ID: "a", Inputs: []string{"../other/x.csv"}, Action: cmd("true")})
		var outside *PathOutsideRootError
		assert.True(t, errors.As(err, &outside))
	})

	t.Run("unknown function", func(t *testing.T) {
		r := New(testSettings())
		err := r.Register(&task.Task{ID: "a", Action: &task.InProcessCallable{Function: "nope"}})
		var unknown *UnknownFunctionError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, "nope", unknown.Function)
	})

	t.Run("invalid render engine", func(t *testing.T) {
		r := New(testSettings())
		err := r.Register(&task.Task{ID: "a", Action: &task.RenderDocument{Engine: "word", Source: "x.docx"}})
		assert.ErrorContains(t, err, "unknown render engine")
	})
}

func TestRegisterFunction_PanicsOnDuplicate(t *testing.T) {
	r := New(testSettings())
	fn := &RegisteredFunction{Fn: func(context.Context, task.ExecContext, any) error { return nil }}
	r.RegisterFunction("f", fn)
	assert.Panics(t, func() { r.RegisterFunction("f", fn) })
}

func TestRegisterModel(t *testing.T) {
	type copyInput struct {
		Src string
		Dst string
	}

	r := New(testSettings())
	var called *copyInput
	r.RegisterFunction("copy_file", &RegisteredFunction{
		NewInput: func() any { return new(copyInput) },
		Fn: func(_ context.Context, _ task.ExecContext, input any) error {
			called = input.(*copyInput)
			return nil
		},
	})

	model := &config.Model{Tasks: []*config.TaskDefinition{
		{
			Name:    "pull",
			Outputs: []string{"_data/pulled/prices.csv"},
			Clean:   true,
			Action:  &config.ActionDefinition{Kind: config.ActionCommand, Commands: []string{"python pull.py"}},
		},
		{
			Name:    "table",
			Inputs:  []string{"_data/pulled/prices.csv"},
			Outputs: []string{"_output/table1.csv"},
			Action: &config.ActionDefinition{
				Kind:     config.ActionCall,
				Function: "copy_file",
				DecodeInput: func(target any) error {
					in := target.(*copyInput)
					in.Src, in.Dst = "a", "b"
					return nil
				},
			},
		},
		{
			Name:    "notebook",
			Inputs:  []string{"_output/table1.csv"},
			Outputs: []string{"_output/notebook.html"},
			Action:  &config.ActionDefinition{Kind: config.ActionRender, Engine: task.EngineNotebook, Source: "src/notebook.ipynb"},
		},
	}}

	require.NoError(t, r.RegisterModel(context.Background(), model))
	require.Equal(t, 3, r.Len())

	table, _ := r.Get("table")
	call, ok := table.Action.(*task.InProcessCallable)
	require.True(t, ok)
	require.NoError(t, call.Fn(context.Background(), task.ExecContext{}, call.Input))
	assert.Equal(t, &copyInput{Src: "a", Dst: "b"}, called)

	nb, _ := r.Get("notebook")
	assert.Equal(t, task.KindRender, nb.Action.Kind())
	pull, _ := r.Get("pull")
	assert.True(t, pull.Clean)
	assert.Equal(t, filepath.Join("/repo", "_data", "pulled", "prices.csv"), pull.Outputs[0])
}

func TestRegisterModel_DecodeFailureCarriesLocation(t *testing.T) {
	r := New(testSettings())
	r.RegisterFunction("f", &RegisteredFunction{
		NewInput: func() any { return new(struct{}) },
		Fn:       func(context.Context, task.ExecContext, any) error { return nil },
	})
	model := &config.Model{Tasks: []*config.TaskDefinition{{
		Name:      "bad",
		DeclRange: "pipeline.hcl:3",
		Action: &config.ActionDefinition{
			Kind:        config.ActionCall,
			Function:    "f",
			DecodeInput: func(any) error { return errors.New("unsupported argument") },
		},
	}}}

	err := r.RegisterModel(context.Background(), model)
	require.Error(t, err)
	assert.ErrorContains(t, err, "pipeline.hcl:3")
	assert.ErrorContains(t, err, "unsupported argument")
}
