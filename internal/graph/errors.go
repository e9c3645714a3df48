package graph

import (
	"fmt"
	"strings"
)

// CyclicDependencyError is returned when the declarations form a cycle.
// Cycle lists task IDs in dependency order and repeats the first ID at the
// end, e.g. [a b c a] for a -> b -> c -> a.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// DanglingInputError is returned for an input that no task produces and that
// does not exist on disk, so it can never become available.
type DanglingInputError struct {
	Task string
	Path string
}

func (e *DanglingInputError) Error() string {
	return fmt.Sprintf("task '%s' needs %s, which no task produces and which does not exist", e.Task, e.Path)
}

// UnknownTaskError is returned for a reference to a task that is not in the
// graph.
type UnknownTaskError struct {
	ID string
	// Referrer is the task that referenced ID, empty for user selections.
	Referrer string
}

func (e *UnknownTaskError) Error() string {
	if e.Referrer == "" {
		return fmt.Sprintf("unknown task '%s'", e.ID)
	}
	return fmt.Sprintf("task '%s' depends on unknown task '%s'", e.Referrer, e.ID)
}
