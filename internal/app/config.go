package app

import (
	"fmt"
	"slices"
	"strings"
)

// Config holds the invocation options that come from the command line. The
// project settings (directories, dates, credentials) come from the
// environment through config.Settings instead.
type Config struct {
	// PipelineFile overrides PIPELINE_FILE when set.
	PipelineFile string
	// Targets restricts run and clean to these tasks; empty means all.
	Targets []string

	LogFormat   string
	LogLevel    string
	StatusPort  int
	WorkerCount int
	DryRun      bool
}

// NewConfig validates cfg and returns a normalised copy.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if !slices.Contains(LogFormats, cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.WorkerCount < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.WorkerCount)
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("status-port %d is out of range", cfg.StatusPort)
	}
	return &cfg, nil
}
