package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/stretchr/testify/require"
)

// AssertStatuses checks every task's report status at once.
func AssertStatuses(t *testing.T, report *executor.Report, want map[string]executor.Status) {
	t.Helper()
	if diff := cmp.Diff(want, report.Statuses()); diff != "" {
		t.Errorf("report statuses mismatch (-want +got):\n%s", diff)
	}
}

// AssertRanBefore checks that first's call finished before second's started.
func AssertRanBefore(t *testing.T, j *Journal, first, second string) {
	t.Helper()
	a, ok := j.Record(first)
	require.True(t, ok, "task %s did not run", first)
	b, ok := j.Record(second)
	require.True(t, ok, "task %s did not run", second)
	require.False(t, b.Start.Before(a.End), "%s started before %s finished", second, first)
}

// AssertNotRun checks that no call was made for the given tasks.
func AssertNotRun(t *testing.T, j *Journal, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, ok := j.Record(id)
		require.False(t, ok, "task %s should not have run", id)
	}
}
