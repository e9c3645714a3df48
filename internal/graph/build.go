package graph

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// ExistsFunc reports whether an artifact is present on disk.
type ExistsFunc func(path string) (bool, error)

// FileExists is the ExistsFunc backed by the real filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Build constructs a complete, validated dependency graph from registered
// tasks. Output paths are assumed unique across tasks, which the registry
// guarantees.
func Build(ctx context.Context, tasks []*task.Task, exists ExistsFunc) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "tasks", len(tasks))
	if exists == nil {
		exists = FileExists
	}

	g := New()
	owners := make(map[string]string)
	for _, t := range tasks {
		g.AddNode(t)
		for _, out := range t.Outputs {
			owners[out] = t.ID
		}
	}

	sorted := append([]*task.Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, t := range sorted {
		for _, in := range t.Inputs {
			owner, produced := owners[in]
			if !produced {
				ok, err := exists(in)
				if err != nil {
					return nil, fmt.Errorf("failed to check input %s of task '%s': %w", in, t.ID, err)
				}
				if !ok {
					return nil, &DanglingInputError{Task: t.ID, Path: in}
				}
				continue
			}
			if err := link(g, owner, t.ID); err != nil {
				return nil, err
			}
			logger.Debug("Linking artifact dependency.", "from", owner, "to", t.ID, "artifact", in)
		}

		for _, upstream := range t.DependsOn {
			if _, ok := g.nodes[upstream]; !ok {
				return nil, &UnknownTaskError{ID: upstream, Referrer: t.ID}
			}
			if err := link(g, upstream, t.ID); err != nil {
				return nil, err
			}
			logger.Debug("Linking explicit dependency.", "from", upstream, "to", t.ID)
		}
	}
	logger.Debug("Build: Linking complete.")

	if err := g.DetectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Build: Cycle detection passed.", "tasks", g.Len())
	return g, nil
}

func link(g *Graph, from, to string) error {
	if from == to {
		return &CyclicDependencyError{Cycle: []string{to, to}}
	}
	return g.AddEdge(from, to)
}
