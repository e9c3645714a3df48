package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/executor"
)

// Run executes the selected tasks and their upstream, then renders the
// report. In dry-run mode it prints the plan instead and returns a nil
// report. A task failure is reported through the report, not the error.
func (a *App) Run(ctx context.Context) (*executor.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	g, err := a.selection()
	if err != nil {
		return nil, err
	}
	eval, err := a.evaluator(ctx)
	if err != nil {
		return nil, err
	}

	if a.config.DryRun {
		plan, err := executor.Plan(ctx, g, eval)
		if err != nil {
			return nil, err
		}
		return nil, a.renderPlan(plan)
	}

	if g.Len() == 0 {
		a.logger.Warn("No tasks found in pipeline, execution not required.")
		return &executor.Report{}, nil
	}

	exec := executor.New(g, eval, executor.Options{
		Workers:  a.config.WorkerCount,
		Settings: a.settings,
		Metrics:  a.metrics,
	})
	a.running.Store(exec)

	if a.config.StatusPort > 0 {
		if err := a.startStatusServer(a.config.StatusPort); err != nil {
			return nil, err
		}
		defer a.closeStatusServer()
	}

	a.logger.Info("🚀 Starting concurrent execution...", "tasks", g.Len(), "staleness", eval.Mode())
	report, err := exec.Run(ctx)
	if report != nil {
		if rerr := report.Render(a.outW); rerr != nil {
			a.logger.Warn("Failed to render report.", "error", rerr)
		}
	}
	if err != nil {
		return report, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.", "ok", report.OK())
	return report, nil
}

func (a *App) renderPlan(plan []executor.Prediction) error {
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tPLAN\tREASON")
	for _, p := range plan {
		verdict := "up-to-date"
		if p.WouldRun {
			verdict = "would-run"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.TaskID, verdict, p.Reason)
	}
	return tw.Flush()
}
