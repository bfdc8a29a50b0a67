package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/nodepack/internal/config"
	"github.com/tingly-dev/nodepack/internal/constant"
	"github.com/tingly-dev/nodepack/internal/export"
	"github.com/tingly-dev/nodepack/internal/repo"
	"github.com/tingly-dev/nodepack/internal/server/middleware"
)

// exportDefaults are the hot-reloadable export settings
type exportDefaults struct {
	group       string
	name        string
	inlineLimit int64
	timeout     time.Duration
}

// Server represents the HTTP server
type Server struct {
	store      repo.Store
	engine     *gin.Engine
	httpServer *http.Server
	watcher    *config.Watcher
	streamer   *export.Streamer
	recorder   export.Recorder

	exporter atomic.Pointer[export.Exporter]
	defaults atomic.Pointer[exportDefaults]

	// middleware
	errorMW     *middleware.ErrorLogMiddleware
	memoryLogMW *middleware.MemoryLogMiddleware

	// options
	host            string
	version         string
	memoryLogSize   int
	initialDefaults exportDefaults
}

// ServerOption defines a functional option for Server configuration
type ServerOption func(*Server)

// WithDefault applies all default server options
func WithDefault() ServerOption {
	return func(s *Server) {
		s.host = "" // resolves to all interfaces
		s.memoryLogSize = constant.DefaultMemoryLogEntries
		s.initialDefaults = exportDefaults{inlineLimit: constant.DefaultInlineBinaryLimit}
	}
}

func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

func WithHost(host string) ServerOption {
	return func(s *Server) {
		s.host = host
	}
}

// WithSettings applies the export defaults of a config file
func WithSettings(settings config.Settings) ServerOption {
	return func(s *Server) {
		s.host = settings.Host
		s.initialDefaults = defaultsFromSettings(settings)
	}
}

// WithRecorder reports every export to r
func WithRecorder(r export.Recorder) ServerOption {
	return func(s *Server) {
		s.recorder = r
	}
}

// WithErrorLog enables the failed export log
func WithErrorLog(mw *middleware.ErrorLogMiddleware) ServerOption {
	return func(s *Server) {
		s.errorMW = mw
	}
}

// WithMemoryLogSize sets the capacity of the request log ring, 0 disables it
func WithMemoryLogSize(n int) ServerOption {
	return func(s *Server) {
		s.memoryLogSize = n
	}
}

// WithConfigWatcher hot-reloads export defaults and the error log filter
func WithConfigWatcher(w *config.Watcher) ServerOption {
	return func(s *Server) {
		s.watcher = w
	}
}

// NewServer creates a new HTTP server exporting from store
func NewServer(store repo.Store, opts ...ServerOption) *Server {
	allOpts := append([]ServerOption{WithDefault()}, opts...)

	server := &Server{
		store:    store,
		streamer: export.NewStreamer(0),
	}
	for _, opt := range allOpts {
		opt(server)
	}

	server.applyDefaults(server.initialDefaults)

	if server.memoryLogSize > 0 {
		server.memoryLogMW = middleware.NewMemoryLogMiddleware(server.memoryLogSize)
	}

	server.engine = gin.New()
	server.setupMiddleware()
	server.setupRoutes()
	server.setupConfigWatcher()

	return server
}

func defaultsFromSettings(settings config.Settings) exportDefaults {
	return exportDefaults{
		group:       settings.DefaultGroup,
		name:        settings.DefaultName,
		inlineLimit: settings.InlineBinaryLimit,
		timeout:     settings.ExportTimeoutDuration(),
	}
}

// applyDefaults swaps in an exporter built for d. Running exports keep the
// exporter they started with.
func (s *Server) applyDefaults(d exportDefaults) {
	opts := []export.ExporterOption{
		export.WithInlineLimit(d.inlineLimit),
		export.WithTimeout(d.timeout),
	}
	if s.recorder != nil {
		opts = append(opts, export.WithRecorder(s.recorder))
	}
	s.exporter.Store(export.NewExporter(s.store, opts...))
	s.defaults.Store(&d)
}

// setupConfigWatcher registers the hot-reload callback
func (s *Server) setupConfigWatcher() {
	if s.watcher == nil {
		return
	}
	s.watcher.AddCallback(func(settings config.Settings) {
		logrus.Debugln("Configuration updated, reloading export defaults...")
		s.applyDefaults(defaultsFromSettings(settings))

		if s.errorMW != nil && settings.ErrorLogFilter != s.errorMW.FilterExpression() {
			if err := s.errorMW.SetFilterExpression(settings.ErrorLogFilter); err != nil {
				logrus.Errorf("Failed to update error log filter expression: %v", err)
			} else {
				logrus.Debugf("Error log filter expression updated: %s", settings.ErrorLogFilter)
			}
		}
	})
}

// setupMiddleware configures server middleware
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.engine.Use(gin.Recovery())

	// Memory log middleware for HTTP request logging
	if s.memoryLogMW != nil {
		s.engine.Use(s.memoryLogMW.Middleware())
	}

	// Failed export log
	if s.errorMW != nil {
		s.engine.Use(s.errorMW.Middleware())
	}
}

// setupRoutes configures server routes
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.Health)

	s.engine.GET("/export/*path", s.Export)
	s.engine.HEAD("/export/*path", s.Export)

	api := s.engine.Group("/api/v1")
	{
		api.GET("/logs", s.GetLogs)
		api.DELETE("/logs", s.ClearLogs)
	}
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(port int) error {
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			logrus.Warnf("Failed to start config watcher: %v", err)
		} else {
			logrus.Info("Configuration hot-reload enabled")
		}
	}

	addr := fmt.Sprintf("%s:%d", s.host, port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.Infof("Export endpoint: http://%s/export/<path>", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetRouter returns the Gin engine for testing purposes
func (s *Server) GetRouter() *gin.Engine {
	return s.engine
}

// Stop gracefully stops the HTTP server. Exports in flight may finish
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.watcher != nil {
		s.watcher.Stop()
		logrus.Debug("Configuration watcher stopped")
	}

	if s.errorMW != nil {
		if err := s.errorMW.Stop(); err != nil {
			logrus.Errorf("Failed to close error log: %v", err)
		}
	}

	if s.httpServer == nil {
		return nil
	}
	logrus.Info("Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}
