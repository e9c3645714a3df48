// Package node holds the runtime state of a task during one invocation.
package node

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/taskgrid/internal/task"
)

// State is the execution state of a node.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies to settle.
	Pending State = iota
	// Ready indicates every dependency settled successfully.
	Ready
	// Running indicates the node's action is executing.
	Running
	// Succeeded indicates the action ran and returned without error.
	Succeeded
	// Failed indicates the action, or the decision to run it, failed.
	Failed
	// UpToDate indicates the action was skipped because nothing changed.
	UpToDate
	// Blocked indicates an upstream task failed or was itself blocked.
	Blocked
)

var stateNames = [...]string{"pending", "ready", "running", "succeeded", "failed", "up-to-date", "blocked"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s >= Succeeded
}

// Satisfied reports whether dependents may proceed.
func (s State) Satisfied() bool {
	return s == Succeeded || s == UpToDate
}

var transitions = map[State][]State{
	Pending: {Ready, Blocked, Failed},
	Ready:   {Running, UpToDate, Failed},
	Running: {Succeeded, Failed},
}

// TransitionError reports an illegal state change.
type TransitionError struct {
	ID       string
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task '%s': illegal transition %s -> %s", e.ID, e.From, e.To)
}

// Node is a single task's runtime state. State changes are atomic; the
// remaining fields are written by the worker that owns the node and read
// after the run completes.
type Node struct {
	Task *task.Task

	state    atomic.Int32
	depCount atomic.Int32
	// settleOnce ensures a node reaches a terminal state exactly once.
	settleOnce sync.Once

	err      error
	reason   string
	started  time.Time
	finished time.Time
	output   []byte
}

// New creates a pending node for t.
func New(t *task.Task) *Node {
	return &Node{Task: t}
}

// ID returns the task identifier.
func (n *Node) ID() string {
	return n.Task.ID
}

// State atomically retrieves the node's execution state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Transition moves the node to a new state, rejecting illegal changes.
func (n *Node) Transition(to State) error {
	for {
		from := n.State()
		if !allowed(from, to) {
			return &TransitionError{ID: n.ID(), From: from, To: to}
		}
		if n.state.CompareAndSwap(int32(from), int32(to)) {
			if to == Running {
				n.started = time.Now()
			}
			return nil
		}
	}
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Settle moves the node to a terminal state and marks it done on wg. Only
// the first call has any effect; it returns whether this call settled the
// node. An illegal transition still settles the node, as Failed.
func (n *Node) Settle(to State, err error, wg *sync.WaitGroup) bool {
	var settled bool
	n.settleOnce.Do(func() {
		if !to.Terminal() {
			err = errors.Join(err, &TransitionError{ID: n.ID(), From: n.State(), To: to})
			to = Failed
		}
		if terr := n.Transition(to); terr != nil {
			err = errors.Join(err, terr)
			n.state.Store(int32(Failed))
		}
		n.err = err
		n.finished = time.Now()
		wg.Done()
		settled = true
	})
	return settled
}

// SetDepCount stores the number of unsettled dependencies.
func (n *Node) SetDepCount(count int32) {
	n.depCount.Store(count)
}

// DepCount atomically returns the current number of unmet dependencies.
func (n *Node) DepCount() int32 {
	return n.depCount.Load()
}

// DecrementDepCount atomically decrements the dependency counter and returns the new value.
func (n *Node) DecrementDepCount() int32 {
	return n.depCount.Add(-1)
}

// Err is the failure recorded when the node settled.
func (n *Node) Err() error { return n.err }

// Reason explains the staleness decision or the block.
func (n *Node) Reason() string { return n.reason }

func (n *Node) SetReason(reason string) { n.reason = reason }

// Output is the captured stdout and stderr of the action.
func (n *Node) Output() []byte { return n.output }

func (n *Node) SetOutput(b []byte) { n.output = b }

// Duration is the time spent running the action, zero if it never ran.
func (n *Node) Duration() time.Duration {
	if n.started.IsZero() || n.finished.IsZero() {
		return 0
	}
	return n.finished.Sub(n.started)
}
