package staleness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
)

// Record is what the store remembers about the last successful run of a task.
type Record struct {
	LastRun time.Time `json:"last_run"`
	// Inputs and Outputs map paths to fingerprints (checksum mode only).
	Inputs  map[string]string `json:"inputs,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty"`
}

// stateFile is the on-disk layout of the store.
type stateFile struct {
	Version int                `json:"version"`
	Tasks   map[string]*Record `json:"tasks"`
}

const stateVersion = 1

// Store persists task records between invocations. It is safe for
// concurrent use by executor workers. Losing the file only causes reruns.
type Store struct {
	path    string
	mu      sync.Mutex
	records map[string]*Record
	dirty   bool
}

// OpenStore loads the store at path. A missing file yields an empty store; an
// unreadable or corrupt one is logged and ignored.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	logger := ctxlog.FromContext(ctx)
	s := &Store{path: path, records: make(map[string]*Record)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("No state file yet.", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil || file.Version != stateVersion {
		logger.Warn("Ignoring unusable state file, affected tasks will rerun.", "path", path, "error", err, "version", file.Version)
		return s, nil
	}
	for id, rec := range file.Tasks {
		if rec != nil {
			s.records[id] = rec
		}
	}
	logger.Debug("State file loaded.", "path", path, "tasks", len(s.records))
	return s, nil
}

// Get returns the record for a task.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Put replaces the record for a task.
func (s *Store) Put(id string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = &rec
	s.dirty = true
}

// Delete forgets a task.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; ok {
		delete(s.records, id)
		s.dirty = true
	}
}

// Save writes the store if anything changed since it was opened or last
// saved. The file is replaced atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(stateFile{Version: stateVersion, Tasks: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	s.dirty = false
	return nil
}
