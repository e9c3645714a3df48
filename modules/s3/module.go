// Package s3 provides the `s3_upload` function, which publishes a file to a
// pre-signed object URL.
package s3

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client overrides the default client, for tests.
	Client *http.Client
}

// Input defines the arguments of an `s3_upload` call.
type Input struct {
	Source    string `hcl:"source"`
	UploadURL string `hcl:"upload_url"`
	// ContentType defaults to the type implied by the file extension.
	ContentType string `hcl:"content_type,optional"`
}

func upload(ctx context.Context, client *http.Client, ec task.ExecContext, input *Input) error {
	source := input.Source
	if ec.Settings != nil {
		source = ec.Settings.Resolve(source)
	}
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", source, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", source, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, input.UploadURL, file)
	if err != nil {
		return fmt.Errorf("failed to create S3 upload request: %w", err)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(source))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file to S3", "source", source, "size", stat.Size(), "contentType", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute S3 upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("S3 upload failed with status: %s", resp.Status)
	}

	logger.Info("Successfully uploaded file", "status", resp.Status)
	fmt.Fprintf(ec.Stdout, "uploaded %s (%s)\n", source, resp.Status)
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = &http.Client{}
	}
	r.RegisterFunction("s3_upload", &registry.RegisteredFunction{
		NewInput: func() any { return new(Input) },
		Fn: func(ctx context.Context, ec task.ExecContext, raw any) error {
			return upload(ctx, client, ec, raw.(*Input))
		},
	})
}
