// Package testutil holds the shared harness for end-to-end pipeline tests:
// a project directory with a pipeline, the core modules plus a journal, and
// assertions over reports.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/taskgrid/internal/app"
	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/stretchr/testify/require"
)

// Harness is one project under test.
type Harness struct {
	t       *testing.T
	App     *app.App
	Journal *Journal
	Logs    *app.SafeBuffer
	// SetupErr is NewApp's error; App is nil when it is set.
	SetupErr error
}

// NewHarness writes files into a fresh base directory and builds the app
// over them. pipeline.hcl in that directory is the pipeline.
func NewHarness(t *testing.T, cfg *app.Config, files map[string]string) *Harness {
	t.Helper()
	if cfg == nil {
		cfg = &app.Config{WorkerCount: 4}
	}
	journal := NewJournal()
	modules := append(app.CoreModules(), journal)
	a, logs, err := app.SetupAppTest(t, cfg, files, modules...)
	return &Harness{t: t, App: a, Journal: journal, Logs: logs, SetupErr: err}
}

// Run executes the pipeline and fails the test on a setup or executor error.
// The journal is reset first so it reflects this run only.
func (h *Harness) Run() *executor.Report {
	h.t.Helper()
	return h.RunContext(context.Background())
}

// RunContext is Run with a caller-supplied context.
func (h *Harness) RunContext(ctx context.Context) *executor.Report {
	h.t.Helper()
	require.NoError(h.t, h.SetupErr, "app setup failed")
	h.Journal.Reset()
	report, err := h.App.Run(ctx)
	require.NoError(h.t, err)
	require.NotNil(h.t, report)
	return report
}

// Path returns the absolute path of a file relative to the base directory.
func (h *Harness) Path(rel string) string {
	return filepath.Join(h.App.Settings().BaseDir, rel)
}

// Touch sets a file's modification time ahead so it is newer than anything
// the previous run wrote, without waiting on filesystem mtime granularity.
func (h *Harness) Touch(rel string) {
	h.t.Helper()
	future := time.Now().Add(time.Hour)
	require.NoError(h.t, os.Chtimes(h.Path(rel), future, future))
}

// ReadFile returns a file's contents relative to the base directory.
func (h *Harness) ReadFile(rel string) string {
	h.t.Helper()
	b, err := os.ReadFile(h.Path(rel))
	require.NoError(h.t, err)
	return string(b)
}

// UseChecksums switches the project to content fingerprints for staleness.
func (h *Harness) UseChecksums() {
	h.t.Helper()
	require.NoError(h.t, h.SetupErr, "app setup failed")
	h.App.Settings().Staleness = config.StalenessChecksum
}
