package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/executor"
)

// List prints every task in topological order with what a run would do.
func (a *App) List(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	eval, err := a.evaluator(ctx)
	if err != nil {
		return err
	}
	plan, err := executor.Plan(ctx, a.graph, eval)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tACTION\tSTATUS\tDESCRIPTION")
	for _, p := range plan {
		t, _ := a.graph.Task(p.TaskID)
		status := "up-to-date"
		if p.WouldRun {
			status = "would-run"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.TaskID, t.Action.Kind(), status, t.Description)
	}
	return tw.Flush()
}
