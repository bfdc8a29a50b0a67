package obs

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tingly-dev/nodepack/pkg/fs"
)

// RotationConfig holds configuration for log rotation
type RotationConfig struct {
	MaxSize    int  // Maximum size in megabytes
	MaxBackups int  // Maximum number of old log files to retain
	MaxAge     int  // Maximum number of days to retain old log files
	Compress   bool // Compress old log files
}

// DefaultRotationConfig returns default log rotation settings
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}
}

// NewRotatingWriter creates a lumberjack logger writing to filename
func NewRotatingWriter(filename string, rc RotationConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    rc.MaxSize,
		MaxBackups: rc.MaxBackups,
		MaxAge:     rc.MaxAge,
		Compress:   rc.Compress,
	}
}

// LogConfig configures the process-wide logrus logger
type LogConfig struct {
	Level string // trace, debug, info, warn, error
	// Format is "text" or "json"
	Format string
	// File, when set, receives log output in addition to stderr
	File     string
	Rotation RotationConfig
}

// Setup applies cfg to the standard logrus logger. The returned closer
// releases the log file, it is a no-op when no file is configured.
func Setup(cfg LogConfig) (io.Closer, error) {
	return SetupLogger(logrus.StandardLogger(), cfg, os.Stderr)
}

// SetupLogger applies cfg to logger, writing to console and the optional file
func SetupLogger(logger *logrus.Logger, cfg LogConfig, console io.Writer) (io.Closer, error) {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	if cfg.File == "" {
		logger.SetOutput(console)
		return io.NopCloser(nil), nil
	}

	if err := fs.EnsureParentDir(cfg.File, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rc := cfg.Rotation
	if rc == (RotationConfig{}) {
		rc = DefaultRotationConfig()
	}
	file := NewRotatingWriter(cfg.File, rc)
	logger.SetOutput(io.MultiWriter(console, file))
	return file, nil
}
