// Package executor runs a task graph on a pool of workers.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/graph"
	"github.com/specialistvlad/taskgrid/internal/metrics"
	"github.com/specialistvlad/taskgrid/internal/node"
	"github.com/specialistvlad/taskgrid/internal/staleness"
)

// Options tunes an Executor.
type Options struct {
	// Workers bounds the number of concurrently running actions. Zero means
	// one per CPU.
	Workers  int
	Settings *config.Settings
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Executor runs the tasks in a graph concurrently. An Executor is single use.
type Executor struct {
	graph      *graph.Graph
	nodes      map[string]*node.Node
	order      []string
	eval       *staleness.Evaluator
	settings   *config.Settings
	metrics    *metrics.Metrics
	numWorkers int
	wg         sync.WaitGroup
}

// New creates a new graph executor.
func New(g *graph.Graph, eval *staleness.Evaluator, opts Options) *Executor {
	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		graph:      g,
		nodes:      make(map[string]*node.Node, g.Len()),
		order:      g.TopologicalOrder(),
		eval:       eval,
		settings:   opts.Settings,
		metrics:    opts.Metrics,
		numWorkers: numWorkers,
	}
	for _, id := range e.order {
		t, _ := g.Task(id)
		e.nodes[id] = node.New(t)
	}
	return e
}

// Run executes the entire graph and reports the outcome of every task. A
// task failure is not an error of Run: it shows up in the report, and only
// the failed task's dependents are affected. The returned error is reserved
// for problems outside any single task.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *node.Node, len(e.nodes))
	e.wg.Add(len(e.nodes))

	logger.Debug("Initializing executor, finding root tasks...")
	roots := 0
	for _, id := range e.graph.IDs() {
		n := e.nodes[id]
		deps, err := e.graph.Dependencies(id)
		if err != nil {
			return nil, err
		}
		n.SetDepCount(int32(len(deps)))
		if len(deps) == 0 {
			if err := n.Transition(node.Ready); err != nil {
				return nil, err
			}
			logger.Debug("Found root task.", "taskID", id)
			readyChan <- n
			roots++
		}
	}
	logger.Debug("Found all root tasks.", "count", roots)

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	logger.Info("Waiting for all tasks to settle...", "tasks", len(e.nodes))
	e.wg.Wait()
	close(readyChan)
	logger.Info("All tasks settled.")

	report := e.report()
	for _, entry := range report.Entries {
		e.metrics.Settled(entry.Status.Label())
	}
	if err := e.eval.Save(); err != nil {
		return report, fmt.Errorf("failed to save task state: %w", err)
	}
	return report, nil
}

// ran reports whether an upstream task's action ran in this invocation. It
// is only consulted for upstream tasks that have already settled.
func (e *Executor) ran(id string) bool {
	n, ok := e.nodes[id]
	return ok && n.State() == node.Succeeded
}

// TaskState is a point-in-time view of one task, served by the status server.
type TaskState struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Snapshot returns the current state of every task in topological order.
// It is safe to call while Run is in progress.
func (e *Executor) Snapshot() []TaskState {
	out := make([]TaskState, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, TaskState{ID: id, State: e.nodes[id].State().String()})
	}
	return out
}
