package executor

import (
	"bytes"
	"context"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/node"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *node.Node, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "taskID", n.ID())
		taskCtx := ctxlog.WithLogger(ctx, workerLogger)

		if ctx.Err() != nil {
			workerLogger.Warn("Not starting task, run was cancelled.")
			e.fail(taskCtx, n, ctx.Err())
			continue
		}

		decision, err := e.eval.Evaluate(n.Task, e.graph, e.ran)
		if err != nil {
			workerLogger.Error("Staleness evaluation failed.", "error", err)
			e.fail(taskCtx, n, fmt.Errorf("task '%s': %w", n.ID(), err))
			continue
		}
		n.SetReason(decision.Reason)

		if !decision.Stale {
			workerLogger.Info("⏭️ Up to date", "reason", decision.Reason)
			n.Settle(node.UpToDate, nil, &e.wg)
			e.unlock(taskCtx, n, readyChan)
			continue
		}

		if err := n.Transition(node.Running); err != nil {
			e.fail(taskCtx, n, err)
			continue
		}
		workerLogger.Info("▶️ Running", "reason", decision.Reason)

		// Stdout and stderr share one buffer; exec serialises writes to it.
		var out bytes.Buffer
		e.metrics.Started()
		err = task.Execute(taskCtx, n.Task.Action, task.ExecContext{
			Settings: e.settings,
			Task:     n.Task,
			Stdout:   &out,
			Stderr:   &out,
		})
		n.SetOutput(out.Bytes())

		if err != nil {
			workerLogger.Error("❌ Failed", "error", err)
			// An older success must not vouch for what this run left behind.
			e.eval.Forget(n.ID())
			e.fail(taskCtx, n, err)
			e.metrics.Finished(n.ID(), n.Duration())
			continue
		}

		if err := e.eval.Record(n.Task); err != nil {
			workerLogger.Warn("Failed to record successful run, the task will rerun next time.", "error", err)
		}
		n.Settle(node.Succeeded, nil, &e.wg)
		e.metrics.Finished(n.ID(), n.Duration())
		workerLogger.Info("✅ Finished", "duration", n.Duration())
		e.unlock(taskCtx, n, readyChan)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// unlock decrements the dependents of a satisfied node and queues those
// whose dependencies are all settled.
func (e *Executor) unlock(ctx context.Context, n *node.Node, readyChan chan<- *node.Node) {
	logger := ctxlog.FromContext(ctx)
	dependents, err := e.graph.Dependents(n.ID())
	if err != nil {
		logger.Error("Failed to get dependents for completed task.", "error", err)
		return
	}
	for _, id := range dependents {
		dependent := e.nodes[id]
		if dependent.DecrementDepCount() != 0 {
			continue
		}
		if err := dependent.Transition(node.Ready); err != nil {
			// Already blocked by a different failed upstream.
			logger.Debug("Dependent not unlocked.", "dependentID", id, "error", err)
			continue
		}
		logger.Debug("Unlocking dependent task.", "dependentID", id)
		readyChan <- dependent
	}
}

// fail settles n as failed and blocks everything downstream of it.
func (e *Executor) fail(ctx context.Context, n *node.Node, err error) {
	if n.Settle(node.Failed, err, &e.wg) {
		e.skipDependents(ctx, n)
	}
}

// skipDependents recursively marks all downstream tasks as blocked.
func (e *Executor) skipDependents(ctx context.Context, n *node.Node) {
	logger := ctxlog.FromContext(ctx)

	dependents, err := e.graph.Dependents(n.ID())
	if err != nil {
		logger.Error("Failed to get dependents while blocking tasks.", "error", err)
		return
	}

	for _, id := range dependents {
		dependent := e.nodes[id]
		err := fmt.Errorf("skipped due to upstream failure of '%s'", n.ID())
		if dependent.Settle(node.Blocked, err, &e.wg) {
			logger.Warn("Blocking dependent task due to upstream failure.", "dependentID", id)
			e.skipDependents(ctx, dependent)
		}
	}
}
