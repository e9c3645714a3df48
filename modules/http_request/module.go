// Package http_request provides the `http_request` function, for pipelines
// that must call an API (trigger an export, notify a service) as a step.
package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client overrides http.DefaultClient, for tests.
	Client *http.Client
}

// Input defines the arguments of an `http_request` call.
type Input struct {
	URL     string            `hcl:"url"`
	Method  string            `hcl:"method,optional"`
	Body    string            `hcl:"body,optional"`
	Headers map[string]string `hcl:"headers,optional"`
	// ExpectStatus lists the acceptable status codes; any 2xx when empty.
	ExpectStatus []int `hcl:"expect_status,optional"`
	// SaveTo, when set, receives the response body.
	SaveTo string `hcl:"save_to,optional"`
}

// OnRunHttpRequest performs the request and checks the response status.
func OnRunHttpRequest(ctx context.Context, client *http.Client, ec task.ExecContext, input *Input) error {
	method := strings.ToUpper(input.Method)
	if method == "" {
		method = http.MethodGet
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", method, "url", input.URL)

	var body io.Reader
	if input.Body != "" {
		body = strings.NewReader(input.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, input.URL, body)
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

	logger.Info("Received HTTP response", "status", resp.Status)
	fmt.Fprintf(ec.Stdout, "%s %s: %s\n", method, input.URL, resp.Status)

	if !statusAccepted(resp.StatusCode, input.ExpectStatus) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %s: %s", method, input.URL, resp.Status, strings.TrimSpace(string(snippet)))
	}

	if input.SaveTo == "" {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	dest := input.SaveTo
	if ec.Settings != nil {
		dest = ec.Settings.Resolve(dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return f.Close()
}

func statusAccepted(code int, expected []int) bool {
	if len(expected) == 0 {
		return code >= 200 && code < 300
	}
	return slices.Contains(expected, code)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	r.RegisterFunction("http_request", &registry.RegisteredFunction{
		NewInput: func() any { return new(Input) },
		Fn: func(ctx context.Context, ec task.ExecContext, raw any) error {
			return OnRunHttpRequest(ctx, client, ec, raw.(*Input))
		},
	})
}
