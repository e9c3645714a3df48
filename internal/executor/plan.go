package executor

import (
	"context"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/graph"
	"github.com/specialistvlad/taskgrid/internal/staleness"
)

// Prediction is the dry-run outcome of one task.
type Prediction struct {
	TaskID   string
	WouldRun bool
	Reason   string
}

// Plan predicts which tasks a run would execute without running anything.
// Tasks are visited in topological order and a predicted run propagates
// downstream the same way a real one would. The filesystem is read as it is
// now, so actions that would change it are not accounted for beyond that.
func Plan(ctx context.Context, g *graph.Graph, eval *staleness.Evaluator) ([]Prediction, error) {
	logger := ctxlog.FromContext(ctx)
	order := g.TopologicalOrder()
	wouldRun := make(map[string]bool, len(order))
	ran := func(id string) bool { return wouldRun[id] }

	out := make([]Prediction, 0, len(order))
	for _, id := range order {
		t, _ := g.Task(id)
		d, err := eval.Evaluate(t, g, ran)
		if err != nil {
			return nil, err
		}
		wouldRun[id] = d.Stale
		logger.Debug("Planned task.", "taskID", id, "stale", d.Stale, "reason", d.Reason)
		out = append(out, Prediction{TaskID: id, WouldRun: d.Stale, Reason: d.Reason})
	}
	return out, nil
}
