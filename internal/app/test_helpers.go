package app

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/hcl_adapter"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// TestSettings points every setting at baseDir through the environment and
// resolves them the way the binary does.
func TestSettings(t *testing.T, baseDir string) *config.Settings {
	t.Helper()
	for key, value := range map[string]string{
		"BASE_DIR":        baseDir,
		"DATA_DIR":        "",
		"MANUAL_DATA_DIR": "",
		"OUTPUT_DIR":      "",
		"PIPELINE_FILE":   "",
		"STATE_FILE":      "",
		"STALENESS":       string(config.StalenessMtime),
		"WRDS_USERNAME":   "tester",
		"START_DATE":      "1998-01-01",
		"END_DATE":        "2010-12-31",
	} {
		t.Setenv(key, value)
	}
	s, err := config.Load()
	require.NoError(t, err)
	return s
}

// SetupAppTest writes files (relative to a fresh base directory) and creates
// an app over them. The pipeline is read from pipeline.hcl in that
// directory. The returned error is NewApp's.
func SetupAppTest(t *testing.T, appConfig *Config, files map[string]string, modules ...registry.Module) (*App, *SafeBuffer, error) {
	t.Helper()

	baseDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(baseDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	settings := TestSettings(t, baseDir)
	// Fixture-relative pipeline names point into the temporary project.
	if appConfig.PipelineFile != "" && !filepath.IsAbs(appConfig.PipelineFile) {
		appConfig.PipelineFile = filepath.Join(baseDir, appConfig.PipelineFile)
	}

	logBuffer := &SafeBuffer{}
	if appConfig.LogLevel == "" {
		appConfig.LogLevel = "debug"
	}
	testApp, err := NewApp(logBuffer, appConfig, settings, hcl_adapter.NewLoader(), modules...)

	t.Cleanup(func() {
		if os.Getenv("TASKGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer, err
}

// Settings returns the resolved settings, for tests.
func (a *App) Settings() *config.Settings {
	return a.settings
}
