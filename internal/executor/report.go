package executor

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"
	"github.com/specialistvlad/taskgrid/internal/node"
)

// Status is the final outcome of a task in a report.
type Status string

const (
	StatusRan      Status = "Ran"
	StatusUpToDate Status = "Skipped-UpToDate"
	StatusFailed   Status = "Failed"
	StatusBlocked  Status = "Skipped-DueToFailedDependency"
)

// Label is the lower-case form used as a metric label.
func (s Status) Label() string {
	switch s {
	case StatusRan:
		return "ran"
	case StatusUpToDate:
		return "up_to_date"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	}
	return "unknown"
}

func statusOf(s node.State) Status {
	switch s {
	case node.Succeeded:
		return StatusRan
	case node.UpToDate:
		return StatusUpToDate
	case node.Blocked:
		return StatusBlocked
	default:
		return StatusFailed
	}
}

// Entry is one task's line in a report.
type Entry struct {
	TaskID   string
	Status   Status
	Reason   string
	Err      error
	Duration time.Duration
	// Output is the captured stdout and stderr of the action.
	Output []byte
}

// Report lists every task of a run in topological order.
type Report struct {
	Entries []Entry
}

func (e *Executor) report() *Report {
	r := &Report{Entries: make([]Entry, 0, len(e.order))}
	for _, id := range e.order {
		n := e.nodes[id]
		entry := Entry{
			TaskID:   id,
			Status:   statusOf(n.State()),
			Reason:   n.Reason(),
			Err:      n.Err(),
			Duration: n.Duration(),
			Output:   n.Output(),
		}
		if entry.Status == StatusBlocked && entry.Err != nil {
			entry.Reason = entry.Err.Error()
		}
		r.Entries = append(r.Entries, entry)
	}
	return r
}

// OK reports whether every task ran or was up to date.
func (r *Report) OK() bool {
	for _, entry := range r.Entries {
		if entry.Status == StatusFailed || entry.Status == StatusBlocked {
			return false
		}
	}
	return true
}

// Get returns the entry for a task.
func (r *Report) Get(id string) (Entry, bool) {
	for _, entry := range r.Entries {
		if entry.TaskID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// Statuses maps task IDs to their status.
func (r *Report) Statuses() map[string]Status {
	out := make(map[string]Status, len(r.Entries))
	for _, entry := range r.Entries {
		out[entry.TaskID] = entry.Status
	}
	return out
}

// Count returns the number of entries with status s.
func (r *Report) Count(s Status) int {
	c := 0
	for _, entry := range r.Entries {
		if entry.Status == s {
			c++
		}
	}
	return c
}

// Err summarises the failed tasks, or returns nil. Blocked tasks are a
// symptom and are not listed.
func (r *Report) Err() error {
	var failed []string
	var rootCause error
	for _, entry := range r.Entries {
		if entry.Status != StatusFailed {
			continue
		}
		failed = append(failed, entry.TaskID)
		if rootCause == nil {
			rootCause = entry.Err
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
}

var (
	headingColor = color.New(color.FgHiWhite, color.Bold)
	statusColors = map[Status]*color.Color{
		StatusRan:      color.New(color.FgGreen),
		StatusUpToDate: color.New(color.FgCyan),
		StatusFailed:   color.New(color.FgRed, color.Bold),
		StatusBlocked:  color.New(color.FgYellow),
	}
)

// Render writes a human-readable table of the report to w, followed by the
// captured output of failed tasks.
func (r *Report) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, headingColor.Sprint("TASK\tSTATUS\tDURATION\tOUTPUT\tREASON"))
	for _, entry := range r.Entries {
		duration, output := "-", "-"
		if entry.Status == StatusRan || (entry.Status == StatusFailed && entry.Duration > 0) {
			duration = entry.Duration.Round(time.Millisecond).String()
			output = humanize.Bytes(uint64(len(entry.Output)))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			entry.TaskID, statusColors[entry.Status].Sprint(entry.Status), duration, output, entry.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, entry := range r.Entries {
		if entry.Status != StatusFailed {
			continue
		}
		fmt.Fprintf(w, "\n%s %s: %v\n", statusColors[StatusFailed].Sprint("✗"), entry.TaskID, entry.Err)
		if len(entry.Output) > 0 {
			fmt.Fprintf(w, "%s\n", strings.TrimRight(string(entry.Output), "\n"))
		}
	}

	_, err := fmt.Fprintf(w, "\n%s: %d ran, %d up to date, %d failed, %d blocked\n",
		english.Plural(len(r.Entries), "task", ""),
		r.Count(StatusRan), r.Count(StatusUpToDate), r.Count(StatusFailed), r.Count(StatusBlocked))
	return err
}
