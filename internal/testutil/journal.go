package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// ExecutionRecord holds the start and end times of one journal call.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// JournalInput defines the arguments of a `journal` call.
type JournalInput struct {
	// Path, when set, receives Text (the task ID when Text is empty).
	Path   string  `hcl:"path,optional"`
	Text   *string `hcl:"text,optional"`
	Sleep  string  `hcl:"sleep,optional"`
	Fail   bool    `hcl:"fail,optional"`
	Panic  bool    `hcl:"panic,optional"`
	// FailIf makes the call fail while the named file exists.
	FailIf string  `hcl:"fail_if,optional"`
}

// Journal is a test module that registers the `journal` function. Every
// call records which task ran and when, and may write a file, sleep, fail
// or panic.
type Journal struct {
	mu      sync.Mutex
	order   []string
	records map[string]*ExecutionRecord
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{records: make(map[string]*ExecutionRecord)}
}

// Register implements registry.Module.
func (j *Journal) Register(r *registry.Registry) {
	r.RegisterFunction("journal", &registry.RegisteredFunction{
		NewInput: func() any { return new(JournalInput) },
		Fn:       j.call,
	})
}

func (j *Journal) call(ctx context.Context, ec task.ExecContext, raw any) error {
	input := raw.(*JournalInput)
	start := time.Now()

	if input.Sleep != "" {
		d, err := time.ParseDuration(input.Sleep)
		if err != nil {
			return fmt.Errorf("invalid sleep %q: %w", input.Sleep, err)
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if input.Path != "" {
		text := ec.Task.ID
		if input.Text != nil {
			text = *input.Text
		}
		path := ec.Settings.Resolve(input.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return err
		}
	}

	j.mu.Lock()
	j.order = append(j.order, ec.Task.ID)
	j.records[ec.Task.ID] = &ExecutionRecord{Start: start, End: time.Now()}
	j.mu.Unlock()

	fmt.Fprintf(ec.Stdout, "journal: %s\n", ec.Task.ID)
	if input.Panic {
		panic("journal told to panic")
	}
	if input.Fail {
		return errors.New("journal told to fail")
	}
	if input.FailIf != "" {
		if _, err := os.Stat(ec.Settings.Resolve(input.FailIf)); err == nil {
			return fmt.Errorf("journal told to fail while %s exists", input.FailIf)
		}
	}
	return nil
}

// Order returns the task IDs in the order their calls finished.
func (j *Journal) Order() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.order...)
}

// Record returns the timing of a task's call, if it ran.
func (j *Journal) Record(id string) (ExecutionRecord, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[id]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// Reset forgets every recorded call, so a second run can be observed alone.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.order = nil
	j.records = make(map[string]*ExecutionRecord)
}
