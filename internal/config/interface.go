package config

import "context"

// Loader is the interface for a format-specific pipeline loader.
type Loader interface {
	// Load reads the pipeline at path, evaluating it against the resolved
	// settings, and translates it into the format-agnostic model.
	Load(ctx context.Context, settings *Settings, path string) (*Model, error)
}
