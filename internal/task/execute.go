package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/mattn/go-shellwords"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
)

// Execute runs an action on behalf of ec.Task. Any failure is returned as an
// *ActionFailure. Parent directories of the task's outputs are created first.
func Execute(ctx context.Context, a Action, ec ExecContext) error {
	logger := ctxlog.FromContext(ctx).With("taskID", ec.Task.ID, "kind", a.Kind().String())

	if err := ensureOutputDirs(ec.Task); err != nil {
		return &ActionFailure{TaskID: ec.Task.ID, Err: err}
	}

	var err error
	switch act := a.(type) {
	case *ExternalCommand:
		err = runExternal(ctx, act, ec)
	case *InProcessCallable:
		logger.Debug("Calling in-process function.", "function", act.Function)
		err = call(ctx, act, ec)
	case *RenderDocument:
		err = render(ctx, act, ec)
	default:
		err = fmt.Errorf("unsupported action type %T", a)
	}
	if err != nil {
		return &ActionFailure{TaskID: ec.Task.ID, Err: err}
	}
	return nil
}

// call runs an in-process function, turning a panic into an error so it
// fails only this task.
func call(ctx context.Context, act *InProcessCallable, ec ExecContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("function %q panicked: %v", act.Function, r)
		}
	}()
	return act.Fn(ctx, ec, act.Input)
}

func ensureOutputDirs(t *Task) error {
	for _, out := range t.Outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", out, err)
		}
	}
	return nil
}

func runExternal(ctx context.Context, c *ExternalCommand, ec ExecContext) error {
	dir := ec.Settings.BaseDir
	if c.Dir != "" {
		dir = ec.Settings.Resolve(c.Dir)
	}

	env := append(os.Environ(), ec.Settings.Env()...)
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}

	for _, line := range c.Commands {
		argv, err := shellwords.Parse(line)
		if err != nil {
			return fmt.Errorf("failed to parse command %q: %w", line, err)
		}
		if len(argv) == 0 {
			return fmt.Errorf("command %q is empty", line)
		}
		if err := runArgv(ctx, argv, dir, env, ec); err != nil {
			return err
		}
	}
	return nil
}

func runArgv(ctx context.Context, argv []string, dir string, env []string, ec ExecContext) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running command.", "taskID", ec.Task.ID, "argv", argv, "dir", dir)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = ec.Stdout
	cmd.Stderr = ec.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d", argv[0], exitErr.ExitCode())
		}
		return fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	return nil
}

func render(ctx context.Context, r *RenderDocument, ec ExecContext) error {
	source := ec.Settings.Resolve(r.Source)
	env := append(os.Environ(), ec.Settings.Env()...)

	switch r.Engine {
	case EngineNotebook:
		format := r.Format
		if format == "" {
			format = "html"
		}
		outDir := ec.Settings.OutputDir
		if r.OutputDir != "" {
			outDir = ec.Settings.Resolve(r.OutputDir)
		}
		argv := []string{"jupyter", "nbconvert", "--execute", "--to", format, "--output-dir=" + outDir}
		argv = append(append(argv, r.Args...), source)
		return runArgv(ctx, argv, ec.Settings.BaseDir, env, ec)

	case EngineLatex:
		build, cleanup := latexmkArgv(r.Args, source)
		if err := runArgv(ctx, build, ec.Settings.BaseDir, env, ec); err != nil {
			return err
		}
		// Remove auxiliary files, keep the PDF.
		return runArgv(ctx, cleanup, ec.Settings.BaseDir, env, ec)

	case EngineTemplate:
		return renderTemplate(source, ec)
	}
	return fmt.Errorf("unknown render engine %q", r.Engine)
}

// latexmkArgv builds the compile and cleanup command lines. opts default to
// -xelatex.
func latexmkArgv(opts []string, source string) (build, cleanup []string) {
	if len(opts) == 0 {
		opts = []string{"-xelatex"}
	}
	build = append(append([]string{"latexmk"}, opts...), "-cd", source)
	cleanup = append(append([]string{"latexmk"}, opts...), "-c", "-cd", source)
	return build, cleanup
}

// templateData is what document templates can reference.
type templateData struct {
	Config map[string]string
	Task   *Task
}

func renderTemplate(source string, ec ExecContext) error {
	if !ec.Task.HasOutputs() {
		return errors.New("template rendering needs a declared output")
	}
	tmpl, err := template.New(filepath.Base(source)).Option("missingkey=error").ParseFiles(source)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	target := ec.Task.Outputs[0]
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, templateData{Config: ec.Settings.Vars(), Task: ec.Task}); err != nil {
		return fmt.Errorf("failed to render %s: %w", source, err)
	}
	return f.Close()
}
