package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tingly-dev/nodepack/internal/config"
	"github.com/tingly-dev/nodepack/internal/obs"
	obsotel "github.com/tingly-dev/nodepack/internal/obs/otel"
	"github.com/tingly-dev/nodepack/internal/server"
	"github.com/tingly-dev/nodepack/internal/server/middleware"
)

// ServeCommand starts the HTTP export server
func ServeCommand(appManager *AppManager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP export server",
		Long: `Start the HTTP server. Exports are served at

  GET|HEAD /export/<path>?group=&name=&nodeOnly=&mountPath=&exclude=&format=

The server performs no authorization; put it behind an authenticating proxy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(appManager, cmd)
		},
	}

	cmd.Flags().String("host", "", "Listen host (default: from config)")
	cmd.Flags().IntP("port", "p", 0, "Listen port (default: from config)")
	cmd.Flags().Bool("no-watch", false, "Disable configuration hot-reload")
	return cmd
}

func runServe(appManager *AppManager, cmd *cobra.Command) error {
	cfg := appManager.Config()
	settings := cfg.Settings()

	host := settings.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := settings.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	store, err := appManager.Store()
	if err != nil {
		return err
	}

	opts := []server.ServerOption{
		server.WithVersion(appManager.Version()),
		server.WithSettings(settings),
		server.WithHost(host),
	}

	meterCfg := obsotel.DefaultConfig()
	meterCfg.Enabled = settings.MetricsEnabled
	meterCfg.ExportInterval = time.Duration(settings.MetricsInterval) * time.Second
	meterSetup, err := obsotel.NewMeterSetup(context.Background(), meterCfg)
	if err != nil {
		return err
	}
	if tracker := meterSetup.Tracker(); tracker != nil {
		opts = append(opts, server.WithRecorder(tracker))
	}

	errorLog := obs.NewRotatingWriter(cfg.ErrorLogFile(), obs.DefaultRotationConfig())
	errorMW, err := middleware.NewErrorLogMiddleware(errorLog, settings.ErrorLogFilter)
	if err != nil {
		logrus.Warnf("Error log disabled: %v", err)
		errorLog.Close()
	} else {
		opts = append(opts, server.WithErrorLog(errorMW))
	}

	if noWatch, _ := cmd.Flags().GetBool("no-watch"); !noWatch {
		watcher, err := config.NewWatcher(cfg)
		if err != nil {
			logrus.Warnf("Failed to create config watcher: %v", err)
		} else {
			opts = append(opts, server.WithConfigWatcher(watcher))
		}
	}

	srv := server.NewServer(store, opts...)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(port)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Export endpoint: http://%s:%d/export/<path>\n", displayHost(host), port)

	select {
	case err := <-errCh:
		meterSetup.Shutdown(context.Background())
		return err
	case sig := <-sigCh:
		logrus.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logrus.Errorf("Server shutdown: %v", err)
	}
	if err := meterSetup.Shutdown(ctx); err != nil {
		logrus.Errorf("Metrics shutdown: %v", err)
	}
	return <-errCh
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}
