package task

import "fmt"

// ActionFailure reports that a task's action returned an error or a non-zero
// exit status. It is local to the task; dependents are blocked, siblings are
// not affected.
type ActionFailure struct {
	TaskID string
	Err    error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("task '%s': action failed: %v", e.TaskID, e.Err)
}

func (e *ActionFailure) Unwrap() error {
	return e.Err
}
