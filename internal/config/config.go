package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tingly-dev/nodepack/internal/constant"
	"github.com/tingly-dev/nodepack/pkg/fs"
)

// DefaultErrorLogFilter selects failed export requests for the error log
const DefaultErrorLogFilter = "Path startsWith '/export/' && (StatusCode >= 400 || ExportStatus startsWith 'error')"

// Settings is the persisted configuration
type Settings struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// DBPath is the SQLite content store, defaults to <config dir>/db/content.db
	DBPath string `json:"db_path,omitempty"`

	// InlineBinaryLimit is the largest binary in bytes read into memory
	InlineBinaryLimit int64 `json:"inline_binary_limit"`
	// ExportTimeout bounds one export in seconds, 0 disables it
	ExportTimeout int `json:"export_timeout"`

	DefaultGroup string `json:"default_group"`
	DefaultName  string `json:"default_name"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	// LogFile defaults to <config dir>/log/nodepack.log; "-" logs to stderr only
	LogFile string `json:"log_file,omitempty"`

	// ErrorLogFilter is an expr expression over the request context that
	// selects requests for the failed export log
	ErrorLogFilter string `json:"error_log_filter"`

	MetricsEnabled bool `json:"metrics_enabled"`
	// MetricsInterval in seconds between metric dumps
	MetricsInterval int `json:"metrics_interval"`
}

// DefaultSettings returns the settings used for a fresh config file
func DefaultSettings() Settings {
	return Settings{
		Host:              "localhost",
		Port:              constant.DefaultServerPort,
		InlineBinaryLimit: constant.DefaultInlineBinaryLimit,
		ExportTimeout:     constant.DefaultExportTimeout,
		LogLevel:          "info",
		LogFormat:         "text",
		ErrorLogFilter:    DefaultErrorLogFilter,
		MetricsInterval:   60,
	}
}

// Validate checks value ranges
func (s Settings) Validate() error {
	var errs []error
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", s.Port))
	}
	if s.InlineBinaryLimit < 0 {
		errs = append(errs, fmt.Errorf("inline_binary_limit must not be negative"))
	}
	if s.ExportTimeout < 0 {
		errs = append(errs, fmt.Errorf("export_timeout must not be negative"))
	}
	if s.MetricsInterval < 0 {
		errs = append(errs, fmt.Errorf("metrics_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// ExportTimeoutDuration returns ExportTimeout as a duration
func (s Settings) ExportTimeoutDuration() time.Duration {
	return time.Duration(s.ExportTimeout) * time.Second
}

// Config is the configuration file in the config directory
type Config struct {
	ConfigDir  string
	ConfigFile string

	settings Settings
	mu       sync.RWMutex
}

// Option defines a functional option for Config
type Option func(*options)

type options struct {
	configDir string
}

// WithConfigDir sets a custom config directory
func WithConfigDir(dir string) Option {
	return func(opts *options) {
		opts.configDir = dir
	}
}

// NewConfig loads config.json from the config directory, creating the
// directory and a default file when missing.
func NewConfig(opts ...Option) (*Config, error) {
	options := &options{
		configDir: constant.GetConfDir(),
	}
	for _, opt := range opts {
		opt(options)
	}

	configDir := options.configDir
	if err := fs.EnsureDir(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	c := &Config{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, constant.ConfigFileName),
		settings:   DefaultSettings(),
	}

	if _, err := os.Stat(c.ConfigFile); errors.Is(err, os.ErrNotExist) {
		if err := c.Save(); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// load reads the config file over the defaults
func (c *Config) load() error {
	data, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", c.ConfigFile, err)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid config file %s: %w", c.ConfigFile, err)
	}

	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	return nil
}

// Settings returns a copy of the current settings
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Update applies fn to the settings and saves the file
func (c *Config) Update(fn func(*Settings)) error {
	c.mu.Lock()
	s := c.settings
	fn(&s)
	if err := s.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.settings = s
	c.mu.Unlock()
	return c.Save()
}

// Save writes the settings as indented JSON
func (c *Config) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.settings, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config with indentation: %w", err)
	}

	if err := os.WriteFile(c.ConfigFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DBPath returns the content store location
func (c *Config) DBPath() string {
	if p := c.Settings().DBPath; p != "" {
		return p
	}
	return constant.GetDBFile(c.ConfigDir)
}

// LogFile returns the application log file, empty for stderr only
func (c *Config) LogFile() string {
	switch p := c.Settings().LogFile; p {
	case "-":
		return ""
	case "":
		return filepath.Join(constant.GetLogDir(c.ConfigDir), constant.LogFileName)
	default:
		return p
	}
}

// ErrorLogFile returns the failed export log location
func (c *Config) ErrorLogFile() string {
	return filepath.Join(constant.GetLogDir(c.ConfigDir), constant.ErrorLogFileName)
}
