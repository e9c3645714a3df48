package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/taskgrid/internal/app"
	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/hcl_adapter"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// SettingsFunc supplies the project settings. The binary passes
// config.Resolve; tests pass config.Load so every case reads a fresh
// environment.
type SettingsFunc func() (*config.Settings, error)

type rootFlags struct {
	pipeline  string
	logFormat string
	logLevel  string
}

type runFlags struct {
	workers    int
	dryRun     bool
	statusPort int
}

// NewRootCommand builds the taskgrid command tree. Output of every
// subcommand goes to outW.
func NewRootCommand(ctx context.Context, outW io.Writer, settings SettingsFunc) *cobra.Command {
	root := &rootFlags{}
	runOpts := &runFlags{}

	cmd := &cobra.Command{
		Use:   "taskgrid [TASK...]",
		Short: "Rebuild stale research artifacts in dependency order.",
		Long: `taskgrid reads a pipeline of tasks that declare the files they read and
write, works out which tasks are stale, and runs them concurrently in
dependency order. Running it without a subcommand is the same as "run".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRun(ctx, outW, settings, root, runOpts, args)
		},
	}
	cmd.SetOut(outW)
	cmd.SetErr(outW)
	cmd.SetContext(ctx)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&root.pipeline, "pipeline", "f", "", "Path to a pipeline file or directory, relative to the working directory. Overrides PIPELINE_FILE.")
	pf.StringVar(&root.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&root.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	addRunFlags(cmd, runOpts)

	runCmd := &cobra.Command{
		Use:   "run [TASK...]",
		Short: "Run the stale tasks among the targets and their upstream.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRun(ctx, outW, settings, root, runOpts, args)
		},
	}
	addRunFlags(runCmd, runOpts)

	cleanCmd := &cobra.Command{
		Use:   "clean [TASK...]",
		Short: "Delete the declared outputs of the targets and forget their runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(outW, settings, root, &runFlags{}, args)
			if err != nil {
				return err
			}
			if _, err := a.Clean(ctx); err != nil {
				return classify(err)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every task with what a run would do.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(outW, settings, root, &runFlags{}, nil)
			if err != nil {
				return err
			}
			return classify(a.List(ctx))
		},
	}

	cmd.AddCommand(runCmd, cleanCmd, listCmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *runFlags) {
	f := cmd.Flags()
	f.IntVarP(&opts.workers, "workers", "w", 0, "Number of concurrent workers. 0 uses one per CPU.")
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Print what would run without running it.")
	f.IntVar(&opts.statusPort, "status-port", 0, "Port for the HTTP status server. 0 is disabled.")
}

// Execute parses args and runs the selected command. Every failure comes
// back as an *ExitError carrying the process exit code.
func Execute(ctx context.Context, outW io.Writer, args []string, settings SettingsFunc) error {
	cmd := NewRootCommand(ctx, outW, settings)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Anything cobra itself rejects is a usage error.
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

func doRun(ctx context.Context, outW io.Writer, settings SettingsFunc, root *rootFlags, opts *runFlags, targets []string) error {
	a, err := newApp(outW, settings, root, opts, targets)
	if err != nil {
		return err
	}
	report, err := a.Run(ctx)
	if err != nil {
		return classify(err)
	}
	if report != nil && !report.OK() {
		msg := "one or more tasks did not complete"
		if err := report.Err(); err != nil {
			msg = err.Error()
		}
		return &ExitError{Code: ExitFailed, Message: msg}
	}
	return nil
}

func newApp(outW io.Writer, settings SettingsFunc, root *rootFlags, opts *runFlags, targets []string) (*app.App, error) {
	slog.Debug("CLI parser started.", "targets", targets)
	cfg, err := app.NewConfig(app.Config{
		PipelineFile: root.pipeline,
		Targets:      targets,
		LogFormat:    root.logFormat,
		LogLevel:     root.logLevel,
		StatusPort:   opts.statusPort,
		WorkerCount:  opts.workers,
		DryRun:       opts.dryRun,
	})
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	s, err := settings()
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	a, err := app.NewApp(outW, cfg, s, hcl_adapter.NewLoader())
	if err != nil {
		return nil, classify(err)
	}
	return a, nil
}

// classify maps an app error onto an exit code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var setupErr *app.SetupError
	var cfgErr *config.ConfigurationError
	if errors.As(err, &setupErr) || errors.As(err, &cfgErr) {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return &ExitError{Code: ExitFailed, Message: fmt.Sprintf("taskgrid: %v", err)}
}
