package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/integralist/go-findroot/find"
	"github.com/kelseyhightower/envconfig"
)

// StalenessMode selects how the staleness evaluator compares artifacts.
type StalenessMode string

const (
	// StalenessMtime compares modification times of inputs and outputs.
	StalenessMtime StalenessMode = "mtime"
	// StalenessChecksum compares content fingerprints recorded after the last
	// successful run of a task.
	StalenessChecksum StalenessMode = "checksum"
)

// dateLayout is the format of START_DATE and END_DATE.
const dateLayout = "2006-01-02"

// Source tells where a setting's value came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceDefault Source = "default"
)

// Entry is a single resolved configuration key.
type Entry struct {
	Key    string
	Value  string
	Source Source
}

// environment is the raw view of the recognized variables.
type environment struct {
	BaseDir       string `envconfig:"BASE_DIR"`
	DataDir       string `envconfig:"DATA_DIR"`
	ManualDataDir string `envconfig:"MANUAL_DATA_DIR"`
	OutputDir     string `envconfig:"OUTPUT_DIR"`
	PipelineFile  string `envconfig:"PIPELINE_FILE"`
	StateFile     string `envconfig:"STATE_FILE"`
	Staleness     string `envconfig:"STALENESS" default:"mtime"`
	WRDSUsername  string `envconfig:"WRDS_USERNAME" required:"true"`
	StartDate     string `envconfig:"START_DATE" default:"1998-01-01"`
	EndDate       string `envconfig:"END_DATE" default:"2010-12-31"`
}

// Settings is the immutable, resolved configuration snapshot.
type Settings struct {
	BaseDir       string
	DataDir       string
	ManualDataDir string
	OutputDir     string
	PipelineFile  string
	StateFile     string
	Staleness     StalenessMode
	WRDSUsername  string
	StartDate     string
	EndDate       string

	entries []Entry
}

var (
	resolveOnce sync.Once
	resolved    *Settings
	resolveErr  error
)

// Resolve reads the environment the first time it is called and returns the
// same snapshot (or the same error) on every later call.
func Resolve() (*Settings, error) {
	resolveOnce.Do(func() {
		resolved, resolveErr = Load()
	})
	return resolved, resolveErr
}

// Load reads and normalizes the environment without memoization. Callers
// that need the process-wide snapshot should use Resolve.
func Load() (*Settings, error) {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		cfgErr := &ConfigurationError{Err: err}
		if pe, ok := err.(*envconfig.ParseError); ok {
			cfgErr.Key = pe.KeyName
		}
		return nil, cfgErr
	}

	base := env.BaseDir
	if base == "" {
		var err error
		base, err = defaultBaseDir()
		if err != nil {
			return nil, &ConfigurationError{Key: "BASE_DIR", Err: err}
		}
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, &ConfigurationError{Key: "BASE_DIR", Err: err}
	}

	s := &Settings{
		BaseDir:       base,
		DataDir:       resolvePath(base, env.DataDir, "_data"),
		ManualDataDir: resolvePath(base, env.ManualDataDir, "data_manual"),
		OutputDir:     resolvePath(base, env.OutputDir, "_output"),
		PipelineFile:  resolvePath(base, env.PipelineFile, "pipeline.hcl"),
		StateFile:     resolvePath(base, env.StateFile, ".taskgrid-state.json"),
		Staleness:     StalenessMode(env.Staleness),
		WRDSUsername:  env.WRDSUsername,
		StartDate:     env.StartDate,
		EndDate:       env.EndDate,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.entries = s.buildEntries()
	return s, nil
}

// defaultBaseDir prefers the enclosing git repository and falls back to the
// working directory.
func defaultBaseDir() (string, error) {
	if st, err := find.Repo(); err == nil && st.Path != "" {
		return st.Path, nil
	}
	return os.Getwd()
}

func resolvePath(base, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if !filepath.IsAbs(value) {
		value = filepath.Join(base, value)
	}
	return filepath.Clean(value)
}

func (s *Settings) validate() error {
	switch s.Staleness {
	case StalenessMtime, StalenessChecksum:
	default:
		return &ConfigurationError{Key: "STALENESS", Err: fmt.Errorf("unknown mode %q, expected %q or %q", s.Staleness, StalenessMtime, StalenessChecksum)}
	}

	start, err := time.Parse(dateLayout, s.StartDate)
	if err != nil {
		return &ConfigurationError{Key: "START_DATE", Err: err}
	}
	end, err := time.Parse(dateLayout, s.EndDate)
	if err != nil {
		return &ConfigurationError{Key: "END_DATE", Err: err}
	}
	if end.Before(start) {
		return &ConfigurationError{Key: "END_DATE", Err: fmt.Errorf("%s is before START_DATE %s", s.EndDate, s.StartDate)}
	}

	for key, dir := range map[string]string{"DATA_DIR": s.DataDir, "OUTPUT_DIR": s.OutputDir} {
		if Within(s.ManualDataDir, dir) || Within(dir, s.ManualDataDir) {
			return &ConfigurationError{Key: key, Err: fmt.Errorf("%s overlaps MANUAL_DATA_DIR %s", dir, s.ManualDataDir)}
		}
	}
	return nil
}

func (s *Settings) buildEntries() []Entry {
	values := map[string]string{
		"BASE_DIR":        s.BaseDir,
		"DATA_DIR":        s.DataDir,
		"MANUAL_DATA_DIR": s.ManualDataDir,
		"OUTPUT_DIR":      s.OutputDir,
		"PIPELINE_FILE":   s.PipelineFile,
		"STATE_FILE":      s.StateFile,
		"STALENESS":       string(s.Staleness),
		"WRDS_USERNAME":   s.WRDSUsername,
		"START_DATE":      s.StartDate,
		"END_DATE":        s.EndDate,
	}
	entries := make([]Entry, 0, len(values))
	for key, value := range values {
		source := SourceDefault
		if v, ok := os.LookupEnv(key); ok && v != "" {
			source = SourceEnv
		}
		entries = append(entries, Entry{Key: key, Value: value, Source: source})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Entries lists every recognized key, sorted by name. Settings built by hand
// rather than by Load report every key as a default.
func (s *Settings) Entries() []Entry {
	if s.entries == nil {
		return s.buildEntries()
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Env renders the snapshot as KEY=value pairs for child processes.
func (s *Settings) Env() []string {
	entries := s.Entries()
	env := make([]string, 0, len(entries))
	for _, e := range entries {
		env = append(env, e.Key+"="+e.Value)
	}
	return env
}

// Vars returns the snapshot keyed by lower-case names, as exposed to
// pipeline files and document templates.
func (s *Settings) Vars() map[string]string {
	return map[string]string{
		"base_dir":        s.BaseDir,
		"data_dir":        s.DataDir,
		"manual_data_dir": s.ManualDataDir,
		"output_dir":      s.OutputDir,
		"start_date":      s.StartDate,
		"end_date":        s.EndDate,
		"wrds_username":   s.WRDSUsername,
	}
}

// Resolve turns a path from a pipeline declaration into a clean absolute path
// anchored at BaseDir.
func (s *Settings) Resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.BaseDir, path)
	}
	return filepath.Clean(path)
}

// Within reports whether path lies inside root (or is root).
func Within(root, path string) bool {
	return root == path || isWithin(root, path)
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
