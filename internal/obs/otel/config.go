package otel

import (
	"io"
	"os"
	"time"
)

// Config holds the configuration for the OTel meter setup.
type Config struct {
	// Enabled enables or disables export metrics
	Enabled bool

	// ExportInterval is the time between exports. Default: 60s
	ExportInterval time.Duration

	// ExportTimeout is the timeout for each export. Default: 30s
	ExportTimeout time.Duration

	// Output receives the periodic metric dump. Default: stderr
	Output io.Writer
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		ExportInterval: 60 * time.Second,
		ExportTimeout:  30 * time.Second,
		Output:         os.Stderr,
	}
}
