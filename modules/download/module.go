// Package download provides the `download` function, a generic data pull
// that fetches a URL over HTTP into a file.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// Module implements the registry.Module interface. A single client is shared
// by every download so connections are reused.
type Module struct {
	// Client overrides the default client, for tests.
	Client *http.Client
}

// Input defines the arguments of a `download` call.
type Input struct {
	URL  string `hcl:"url"`
	Dest string `hcl:"dest"`
	// Timeout is a Go duration string; it bounds the whole transfer.
	Timeout string            `hcl:"timeout,optional"`
	Headers map[string]string `hcl:"headers,optional"`
}

func newClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = newClient()
	}
	r.RegisterFunction("download", &registry.RegisteredFunction{
		NewInput: func() any { return new(Input) },
		Fn: func(ctx context.Context, ec task.ExecContext, raw any) error {
			return fetch(ctx, client, ec, raw.(*Input))
		},
	})
}

func fetch(ctx context.Context, client *http.Client, ec task.ExecContext, input *Input) error {
	if input.Timeout != "" {
		timeout, err := time.ParseDuration(input.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", input.Timeout, err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	dest := input.Dest
	if ec.Settings != nil {
		dest = ec.Settings.Resolve(dest)
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Downloading", "url", input.URL, "dest", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range input.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed with status: %s", input.URL, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	// Write next to the destination and rename, so a failed transfer never
	// leaves a complete-looking output behind.
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}

	fmt.Fprintf(ec.Stdout, "downloaded %s from %s\n", humanize.Bytes(uint64(n)), input.URL)
	logger.Info("Download complete", "size", humanize.Bytes(uint64(n)))
	return nil
}
