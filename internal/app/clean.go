package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/task"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// CleanResult summarises a clean.
type CleanResult struct {
	Removed []string
	Bytes   uint64
}

// Clean deletes the declared outputs of the selected tasks (all tasks when no
// targets are set) that allow it, and forgets their recorded runs so the
// next run rebuilds them. Deletion runs concurrently; every failure is
// collected rather than stopping at the first.
func (a *App) Clean(ctx context.Context) (*CleanResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger

	tasks, err := a.cleanTargets()
	if err != nil {
		return nil, err
	}
	eval, err := a.evaluator(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		errs    error
		removed []string
		freed   atomic.Uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	limit := a.config.WorkerCount
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)

	for _, t := range tasks {
		if !t.Clean {
			logger.Debug("Keeping outputs of task marked clean = false.", "taskID", t.ID)
			continue
		}
		eval.Forget(t.ID)
		for _, out := range t.Outputs {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				size, err := removeArtifact(out)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("task '%s': %w", t.ID, err))
					return nil
				}
				if size >= 0 {
					removed = append(removed, out)
					freed.Add(uint64(size))
					logger.Debug("Removed output.", "taskID", t.ID, "path", out)
				}
				return nil
			})
		}
	}
	errs = multierr.Append(errs, g.Wait())
	errs = multierr.Append(errs, eval.Save())

	result := &CleanResult{Removed: removed, Bytes: freed.Load()}
	fmt.Fprintf(a.outW, "removed %s, freed %s\n",
		english.Plural(len(removed), "output", ""), humanize.Bytes(result.Bytes))
	for _, err := range multierr.Errors(errs) {
		logger.Error("Clean failed.", "error", err)
	}
	return result, errs
}

func (a *App) cleanTargets() ([]*task.Task, error) {
	if len(a.config.Targets) == 0 {
		return a.registry.All(), nil
	}
	out := make([]*task.Task, 0, len(a.config.Targets))
	for _, id := range a.config.Targets {
		t, ok := a.registry.Get(id)
		if !ok {
			return nil, &SetupError{Err: fmt.Errorf("unknown task '%s'", id)}
		}
		out = append(out, t)
	}
	return out, nil
}

// removeArtifact deletes a file or directory and returns the bytes it held,
// or -1 when there was nothing to delete.
func removeArtifact(path string) (int64, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if info.IsDir() {
		size = 0
		_ = fs.WalkDir(os.DirFS(path), ".", func(_ string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				if fi, ierr := d.Info(); ierr == nil {
					size += fi.Size()
				}
			}
			return nil
		})
	}
	if err := os.RemoveAll(path); err != nil {
		return 0, err
	}
	return size, nil
}
