package command

import (
	"fmt"
	"io"
	"sync"

	"github.com/tingly-dev/nodepack/internal/config"
	"github.com/tingly-dev/nodepack/internal/export"
	"github.com/tingly-dev/nodepack/internal/obs"
	"github.com/tingly-dev/nodepack/internal/repo"
)

// AppManager owns the state shared by the CLI commands: the config file,
// the content store and the log setup.
type AppManager struct {
	config  *config.Config
	version string

	store     *repo.SQLStore
	storeOnce sync.Once
	storeErr  error

	logCloser io.Closer
}

// NewAppManager loads the configuration from configDir, or the default
// directory when configDir is empty.
func NewAppManager(configDir string) (*AppManager, error) {
	am := &AppManager{}
	if err := am.Load(configDir); err != nil {
		return nil, err
	}
	return am, nil
}

// Load reads the configuration. Commands are built before flags are parsed,
// so the root command loads its manager in place.
func (am *AppManager) Load(configDir string) error {
	var opts []config.Option
	if configDir != "" {
		opts = append(opts, config.WithConfigDir(configDir))
	}
	cfg, err := config.NewConfig(opts...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	am.config = cfg
	return nil
}

func (am *AppManager) Config() *config.Config {
	return am.config
}

func (am *AppManager) SetVersion(version string) {
	am.version = version
}

func (am *AppManager) Version() string {
	return am.version
}

// SetupLogging configures logrus from the settings. toFile enables the
// rotated log file, which only long running commands want.
func (am *AppManager) SetupLogging(verbose, toFile bool) error {
	s := am.config.Settings()
	cfg := obs.LogConfig{
		Level:    s.LogLevel,
		Format:   s.LogFormat,
		Rotation: obs.DefaultRotationConfig(),
	}
	if verbose {
		cfg.Level = "debug"
	}
	if toFile {
		cfg.File = am.config.LogFile()
	}

	closer, err := obs.Setup(cfg)
	if err != nil {
		return err
	}
	am.logCloser = closer
	return nil
}

// Store opens the SQLite content store on first use
func (am *AppManager) Store() (*repo.SQLStore, error) {
	am.storeOnce.Do(func() {
		am.store, am.storeErr = repo.NewSQLStore(am.config.DBPath())
	})
	return am.store, am.storeErr
}

// Exporter builds an exporter over the content store using the configured
// limits
func (am *AppManager) Exporter(opts ...export.ExporterOption) (*export.Exporter, error) {
	store, err := am.Store()
	if err != nil {
		return nil, err
	}
	s := am.config.Settings()
	all := append([]export.ExporterOption{
		export.WithInlineLimit(s.InlineBinaryLimit),
		export.WithTimeout(s.ExportTimeoutDuration()),
	}, opts...)
	return export.NewExporter(store, all...), nil
}

// Close releases the store and the log file
func (am *AppManager) Close() error {
	var err error
	if am.store != nil {
		err = am.store.Close()
	}
	if am.logCloser != nil {
		if cerr := am.logCloser.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
