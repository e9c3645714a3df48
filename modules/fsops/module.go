// Package fsops provides small filesystem functions for pipelines that do not
// need an external program: copy_file, touch and write_text.
package fsops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// CopyInput defines the arguments of a `copy_file` call.
type CopyInput struct {
	Src string `hcl:"src"`
	Dst string `hcl:"dst"`
}

// TouchInput defines the arguments of a `touch` call.
type TouchInput struct {
	Path string `hcl:"path"`
}

// WriteInput defines the arguments of a `write_text` call.
type WriteInput struct {
	Path string `hcl:"path"`
	Text string `hcl:"text"`
}

func resolve(ec task.ExecContext, p string) string {
	if ec.Settings == nil {
		return filepath.Clean(p)
	}
	return ec.Settings.Resolve(p)
}

// CopyFile copies src to dst, creating dst's directory.
func CopyFile(ctx context.Context, ec task.ExecContext, raw any) error {
	input := raw.(*CopyInput)
	src, dst := resolve(ec, input.Src), resolve(ec, input.Dst)
	ctxlog.FromContext(ctx).Debug("Copying file.", "src", src, "dst", dst)

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// Touch creates path if needed and sets its modification time to now.
func Touch(ctx context.Context, ec task.ExecContext, raw any) error {
	path := resolve(ec, raw.(*TouchInput).Path)
	ctxlog.FromContext(ctx).Debug("Touching file.", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// WriteText writes text to path, replacing any previous content.
func WriteText(ctx context.Context, ec task.ExecContext, raw any) error {
	input := raw.(*WriteInput)
	path := resolve(ec, input.Path)
	ctxlog.FromContext(ctx).Debug("Writing text file.", "path", path, "bytes", len(input.Text))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(input.Text), 0o644)
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunction("copy_file", &registry.RegisteredFunction{
		NewInput: func() any { return new(CopyInput) },
		Fn:       CopyFile,
	})
	r.RegisterFunction("touch", &registry.RegisteredFunction{
		NewInput: func() any { return new(TouchInput) },
		Fn:       Touch,
	})
	r.RegisterFunction("write_text", &registry.RegisteredFunction{
		NewInput: func() any { return new(WriteInput) },
		Fn:       WriteText,
	})
}
