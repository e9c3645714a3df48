package staleness

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Artifact is the observed state of a declared path.
type Artifact struct {
	Path    string
	Exists  bool
	ModTime time.Time
	Size    int64
}

// Index answers questions about artifacts. The filesystem is the source of
// truth, so implementations must not cache across calls: the executor
// rewrites artifacts while the index is in use.
type Index interface {
	Stat(path string) (Artifact, error)
	// Fingerprint returns a content hash of the file at path.
	Fingerprint(path string) (string, error)
}

// FSIndex is the Index backed by the local filesystem.
type FSIndex struct{}

func (FSIndex) Stat(path string) (Artifact, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Artifact{Path: path}, nil
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return Artifact{Path: path, Exists: true, ModTime: info.ModTime(), Size: info.Size()}, nil
}

func (FSIndex) Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
