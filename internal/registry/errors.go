package registry

import (
	"errors"
	"fmt"
)

// ErrEmptyAction is returned for a task whose action would do nothing.
var ErrEmptyAction = errors.New("task has no action")

// DuplicateTaskError is returned when a task ID is registered twice.
type DuplicateTaskError struct {
	ID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task '%s'", e.ID)
}

// OverlappingOutputError is returned when a task declares an output that is
// already owned by another task.
type OverlappingOutputError struct {
	Path  string
	Owner string
	Task  string
}

func (e *OverlappingOutputError) Error() string {
	return fmt.Sprintf("task '%s' declares output %s which is already owned by task '%s'", e.Task, e.Path, e.Owner)
}

// PathOutsideRootError is returned when a declared artifact does not live
// under a root it is allowed in.
type PathOutsideRootError struct {
	Task  string
	Path  string
	Roots []string
}

func (e *PathOutsideRootError) Error() string {
	return fmt.Sprintf("task '%s': %s is not under any of %v", e.Task, e.Path, e.Roots)
}

// UnknownFunctionError is returned when a call action names a function no
// module registered.
type UnknownFunctionError struct {
	Task     string
	Function string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("task '%s' calls unknown function '%s'", e.Task, e.Function)
}
