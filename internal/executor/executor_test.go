package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/graph"
	"github.com/specialistvlad/taskgrid/internal/metrics"
	"github.com/specialistvlad/taskgrid/internal/staleness"
	"github.com/specialistvlad/taskgrid/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// journal records when each callable started and finished.
type journal struct {
	mu     sync.Mutex
	start  map[string]time.Time
	end    map[string]time.Time
	counts map[string]int
}

func newJournal() *journal {
	return &journal{start: map[string]time.Time{}, end: map[string]time.Time{}, counts: map[string]int{}}
}

// writer returns a task whose callable writes every output, optionally
// failing instead.
func (j *journal) writer(id string, fail bool, inputs []string, outputs ...string) *task.Task {
	t := &task.Task{ID: id, Inputs: inputs, Outputs: outputs}
	t.Action = &task.InProcessCallable{
		Function: "test_writer",
		Fn: func(ctx context.Context, ec task.ExecContext, _ any) error {
			j.mu.Lock()
			j.start[id] = time.Now()
			j.counts[id]++
			j.mu.Unlock()
			defer func() {
				j.mu.Lock()
				j.end[id] = time.Now()
				j.mu.Unlock()
			}()

			time.Sleep(5 * time.Millisecond)
			if fail {
				ec.Stderr.Write([]byte("boom on stderr\n"))
				return errors.New("boom")
			}
			for _, out := range ec.Task.Outputs {
				if err := os.WriteFile(out, []byte(id), 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return t
}

func (j *journal) ranCount(id string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.counts[id]
}

func testSettings(dir string) *config.Settings {
	return &config.Settings{
		BaseDir:       dir,
		DataDir:       filepath.Join(dir, "_data"),
		ManualDataDir: filepath.Join(dir, "data_manual"),
		OutputDir:     filepath.Join(dir, "_output"),
		Staleness:     config.StalenessMtime,
	}
}

func run(t *testing.T, ctx context.Context, s *config.Settings, tasks []*task.Task, workers int) *Report {
	t.Helper()
	g, err := graph.Build(ctx, tasks, nil)
	require.NoError(t, err)
	store, err := staleness.OpenStore(ctx, filepath.Join(s.BaseDir, "state.json"))
	require.NoError(t, err)
	eval := staleness.NewEvaluator(s.Staleness, nil, store)

	report, err := New(g, eval, Options{Workers: workers, Settings: s, Metrics: metrics.New()}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries, len(tasks))
	return report
}

func assertStatuses(t *testing.T, want map[string]Status, r *Report) {
	t.Helper()
	if diff := cmp.Diff(want, r.Statuses()); diff != "" {
		t.Errorf("report statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_DependenciesFinishFirst(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	j := newJournal()
	raw := filepath.Join(s.DataDir, "raw.csv")
	clean := filepath.Join(s.DataDir, "clean.csv")
	left := filepath.Join(s.OutputDir, "left.tex")
	right := filepath.Join(s.OutputDir, "right.tex")
	paper := filepath.Join(s.OutputDir, "paper.pdf")

	tasks := []*task.Task{
		j.writer("pull", false, nil, raw),
		j.writer("clean", false, []string{raw}, clean),
		j.writer("left", false, []string{clean}, left),
		j.writer("right", false, []string{clean}, right),
		j.writer("paper", false, []string{left, right}, paper),
	}

	report := run(t, context.Background(), s, tasks, 4)
	assert.True(t, report.OK())
	assert.Equal(t, 5, report.Count(StatusRan))

	for _, tk := range tasks {
		for _, in := range tk.Inputs {
			for _, up := range tasks {
				if len(up.Outputs) > 0 && up.Outputs[0] == in {
					assert.False(t, j.start[tk.ID].Before(j.end[up.ID]),
						"%s started before %s finished", tk.ID, up.ID)
				}
			}
		}
	}
	assert.Equal(t, []string{"pull", "clean", "left", "right", "paper"}, ids(report))
}

func ids(r *Report) []string {
	out := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, e.TaskID)
	}
	return out
}

func TestRun_FailureBlocksOnlyDependents(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	j := newJournal()
	x := filepath.Join(s.DataDir, "x.csv")
	y := filepath.Join(s.DataDir, "y.csv")

	tasks := []*task.Task{
		j.writer("x", true, nil, x),
		j.writer("y", false, []string{x}, y),
		j.writer("z", false, []string{y}, filepath.Join(s.OutputDir, "z.tex")),
		j.writer("sibling", false, nil, filepath.Join(s.OutputDir, "s.tex")),
	}

	report := run(t, context.Background(), s, tasks, 2)
	assertStatuses(t, map[string]Status{
		"x":       StatusFailed,
		"y":       StatusBlocked,
		"z":       StatusBlocked,
		"sibling": StatusRan,
	}, report)
	assert.False(t, report.OK())
	assert.Zero(t, j.ranCount("y"))
	assert.Zero(t, j.ranCount("z"))

	failed, _ := report.Get("x")
	var af *task.ActionFailure
	require.True(t, errors.As(failed.Err, &af))
	assert.Equal(t, "x", af.TaskID)
	assert.Equal(t, "boom on stderr\n", string(failed.Output))

	blocked, _ := report.Get("z")
	assert.Contains(t, blocked.Reason, "'y'")

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution failed for x")
	assert.ErrorIs(t, err, af.Err)
}

func TestRun_PanickingFunctionFailsOnlyItsTask(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	j := newJournal()
	broken := filepath.Join(s.DataDir, "broken.csv")

	panicky := &task.Task{ID: "panicky", Outputs: []string{broken}}
	panicky.Action = &task.InProcessCallable{
		Function: "index_out_of_range",
		Fn: func(ctx context.Context, ec task.ExecContext, _ any) error {
			var rows []string
			_ = rows[3]
			return nil
		},
	}
	tasks := []*task.Task{
		panicky,
		j.writer("downstream", false, []string{broken}, filepath.Join(s.OutputDir, "d.tex")),
		j.writer("independent", false, nil, filepath.Join(s.OutputDir, "i.tex")),
	}

	var report *Report
	require.NotPanics(t, func() { report = run(t, context.Background(), s, tasks, 2) })
	assertStatuses(t, map[string]Status{
		"panicky":     StatusFailed,
		"downstream":  StatusBlocked,
		"independent": StatusRan,
	}, report)

	entry, _ := report.Get("panicky")
	var af *task.ActionFailure
	require.True(t, errors.As(entry.Err, &af))
	assert.Equal(t, "panicky", af.TaskID)
	assert.Contains(t, af.Error(), "panicked")
}

func TestRun_FailureForgetsThePreviousSuccess(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	s.Staleness = config.StalenessChecksum
	j := newJournal()
	upstream := filepath.Join(s.DataDir, "u.csv")

	calls := 0
	flaky := &task.Task{ID: "t", DependsOn: []string{"u"}, Cacheable: true}
	flaky.Action = &task.InProcessCallable{
		Function: "flaky",
		Fn: func(ctx context.Context, ec task.ExecContext, _ any) error {
			calls++
			if calls == 2 {
				return errors.New("flaky")
			}
			return nil
		},
	}
	tasks := []*task.Task{j.writer("u", false, nil, upstream), flaky}

	first := run(t, context.Background(), s, tasks, 2)
	assertStatuses(t, map[string]Status{"u": StatusRan, "t": StatusRan}, first)

	require.NoError(t, os.Remove(upstream))
	second := run(t, context.Background(), s, tasks, 2)
	assertStatuses(t, map[string]Status{"u": StatusRan, "t": StatusFailed}, second)

	// u is current again, so only the missing record can make t rerun.
	third := run(t, context.Background(), s, tasks, 2)
	assertStatuses(t, map[string]Status{"u": StatusUpToDate, "t": StatusRan}, third)
	assert.Equal(t, 3, calls)
}

func TestRun_SecondRunIsUpToDate(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	j := newJournal()
	prices := filepath.Join(s.DataDir, "pulled", "prices.csv")
	table := filepath.Join(s.OutputDir, "table1.csv")
	tasks := []*task.Task{
		j.writer("pull_prices", false, nil, prices),
		j.writer("make_table1", false, []string{prices}, table),
	}

	first := run(t, context.Background(), s, tasks, 2)
	assertStatuses(t, map[string]Status{"pull_prices": StatusRan, "make_table1": StatusRan}, first)

	// Pin the times so the comparison does not depend on clock resolution.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(prices, past, past))
	require.NoError(t, os.Chtimes(table, past.Add(time.Minute), past.Add(time.Minute)))

	second := run(t, context.Background(), s, tasks, 2)
	assertStatuses(t, map[string]Status{"pull_prices": StatusUpToDate, "make_table1": StatusUpToDate}, second)
	assert.True(t, second.OK())

	// Touching the pulled data reruns only its consumer.
	now := time.Now()
	require.NoError(t, os.Chtimes(prices, now, now))
	third := run(t, context.Background(), s, tasks, 2)
	assertStatuses(t, map[string]Status{"pull_prices": StatusUpToDate, "make_table1": StatusRan}, third)
	assert.Equal(t, 1, j.ranCount("pull_prices"))
	assert.Equal(t, 2, j.ranCount("make_table1"))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	j := newJournal()
	a := filepath.Join(s.DataDir, "a.csv")
	tasks := []*task.Task{
		j.writer("a", false, nil, a),
		j.writer("b", false, []string{a}, filepath.Join(s.OutputDir, "b.csv")),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := run(t, ctx, s, tasks, 1)

	assertStatuses(t, map[string]Status{"a": StatusFailed, "b": StatusBlocked}, report)
	entry, _ := report.Get("a")
	assert.ErrorIs(t, entry.Err, context.Canceled)
	assert.Zero(t, j.ranCount("a"))
}

func TestRun_SingleWorkerStillCompletes(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	j := newJournal()
	var tasks []*task.Task
	var prev []string
	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		out := filepath.Join(s.DataDir, id+".csv")
		tasks = append(tasks, j.writer(id, false, prev, out))
		prev = []string{out}
	}
	report := run(t, context.Background(), s, tasks, 1)
	assert.Equal(t, 4, report.Count(StatusRan))
}

func TestPlan(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	j := newJournal()
	prices := filepath.Join(s.DataDir, "prices.csv")
	table := filepath.Join(s.OutputDir, "table1.csv")
	tasks := []*task.Task{
		j.writer("pull_prices", false, nil, prices),
		j.writer("make_table1", false, []string{prices}, table),
	}
	g, err := graph.Build(context.Background(), tasks, nil)
	require.NoError(t, err)
	eval := staleness.NewEvaluator(config.StalenessMtime, nil, nil)

	// Only the pulled data exists; the table has to be made.
	require.NoError(t, os.MkdirAll(s.DataDir, 0o755))
	require.NoError(t, os.WriteFile(prices, []byte("p"), 0o644))

	plan, err := Plan(context.Background(), g, eval)
	require.NoError(t, err)
	want := []Prediction{
		{TaskID: "pull_prices", WouldRun: false, Reason: "up to date"},
		{TaskID: "make_table1", WouldRun: true, Reason: "output " + table + " is missing"},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, j.ranCount("make_table1"), "planning never runs actions")
}

func TestSnapshot(t *testing.T) {
	j := newJournal()
	tasks := []*task.Task{j.writer("b", false, nil), j.writer("a", false, nil)}
	g, err := graph.Build(context.Background(), tasks, nil)
	require.NoError(t, err)

	e := New(g, staleness.NewEvaluator(config.StalenessMtime, nil, nil), Options{Workers: 1})
	assert.Equal(t, []TaskState{{ID: "a", State: "pending"}, {ID: "b", State: "pending"}}, e.Snapshot())
}

func TestReport_Render(t *testing.T) {
	r := &Report{Entries: []Entry{
		{TaskID: "pull", Status: StatusRan, Duration: 1500 * time.Millisecond, Output: bytes.Repeat([]byte("x"), 2048), Reason: "output missing"},
		{TaskID: "clean", Status: StatusFailed, Duration: time.Second, Err: errors.New("exit status 1"), Output: []byte("traceback\n")},
		{TaskID: "table", Status: StatusBlocked, Reason: "skipped due to upstream failure of 'clean'"},
		{TaskID: "notes", Status: StatusUpToDate, Reason: "up to date"},
	}}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "TASK")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "clean: exit status 1\ntraceback\n")
	assert.True(t, strings.HasSuffix(out, "4 tasks: 1 ran, 1 up to date, 1 failed, 1 blocked\n"), out)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "up_to_date", StatusUpToDate.Label())
	assert.Equal(t, "blocked", StatusBlocked.Label())
}
