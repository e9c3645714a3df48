package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"

	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/graph"
	"github.com/specialistvlad/taskgrid/internal/metrics"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/staleness"
)

// pipelinePath picks the pipeline to load. A path given on the command line
// is relative to the working directory, not to BASE_DIR.
func pipelinePath(cfg *Config, settings *config.Settings) (string, error) {
	if cfg.PipelineFile == "" {
		return settings.PipelineFile, nil
	}
	path, err := filepath.Abs(cfg.PipelineFile)
	if err != nil {
		return "", fmt.Errorf("failed to resolve pipeline path %q: %w", cfg.PipelineFile, err)
	}
	return path, nil
}

// SetupError marks a failure before any task ran: bad configuration, an
// unreadable pipeline, an invalid registry or graph.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return e.Err.Error() }
func (e *SetupError) Unwrap() error { return e.Err }

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx      context.Context
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	settings *config.Settings
	registry *registry.Registry
	graph    *graph.Graph
	metrics  *metrics.Metrics

	// running is the executor of the current run, for the status server.
	running    atomic.Pointer[executor.Executor]
	httpServer *http.Server
}

// NewApp loads the pipeline, registers its tasks and builds the graph. Every
// failure is returned as a *SetupError. Logs and reports go to outW.
func NewApp(outW io.Writer, cfg *Config, settings *config.Settings, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")
	for _, e := range settings.Entries() {
		logger.Debug("Setting resolved.", "key", e.Key, "value", e.Value, "source", e.Source)
	}

	reg := registry.New(settings)
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	path, err := pipelinePath(cfg, settings)
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	model, err := loader.Load(ctx, settings, path)
	if err != nil {
		return nil, &SetupError{Err: fmt.Errorf("failed to load pipeline: %w", err)}
	}
	logger.Debug("Pipeline loaded and translated into unified model.", "tasks", len(model.Tasks))

	if err := reg.RegisterModel(ctx, model); err != nil {
		return nil, &SetupError{Err: err}
	}

	g, err := graph.Build(ctx, reg.All(), graph.FileExists)
	if err != nil {
		return nil, &SetupError{Err: fmt.Errorf("failed to build dependency graph: %w", err)}
	}
	logger.Debug("Dependency graph built.", "tasks", g.Len())

	return &App{
		ctx:      ctx,
		outW:     outW,
		logger:   logger,
		config:   cfg,
		settings: settings,
		registry: reg,
		graph:    g,
		metrics:  metrics.New(),
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Graph returns the full task graph.
func (a *App) Graph() *graph.Graph {
	return a.graph
}

// selection narrows the graph to the configured targets and their upstream.
func (a *App) selection() (*graph.Graph, error) {
	if len(a.config.Targets) == 0 {
		return a.graph, nil
	}
	sub, err := a.graph.Subgraph(a.config.Targets...)
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	return sub, nil
}

func (a *App) evaluator(ctx context.Context) (*staleness.Evaluator, error) {
	store, err := staleness.OpenStore(ctx, a.settings.StateFile)
	if err != nil {
		return nil, err
	}
	return staleness.NewEvaluator(a.settings.Staleness, staleness.FSIndex{}, store), nil
}
