package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "nodepack"

// MeterSetup holds the meter provider and export tracker.
type MeterSetup struct {
	meterProvider *sdkmetric.MeterProvider
	tracker       *ExportTracker
}

// NewMeterSetup creates a meter provider that periodically writes metrics
// to cfg.Output. It returns nil when metrics are disabled.
func NewMeterSetup(ctx context.Context, cfg *Config) (*MeterSetup, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	var opts []stdoutmetric.Option
	if cfg.Output != nil {
		opts = append(opts, stdoutmetric.WithWriter(cfg.Output))
	}
	exp, err := stdoutmetric.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if cfg.ExportInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.ExportInterval))
	}
	if cfg.ExportTimeout > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithTimeout(cfg.ExportTimeout))
	}

	ms, err := NewMeterSetupWithReader(ctx, sdkmetric.NewPeriodicReader(exp, readerOpts...))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(ms.meterProvider)
	return ms, nil
}

// NewMeterSetupWithReader builds the provider around an existing reader
func NewMeterSetupWithReader(ctx context.Context, reader sdkmetric.Reader) (*MeterSetup, error) {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
	)

	tracker, err := NewExportTracker(meterProvider.Meter(meterName))
	if err != nil {
		_ = meterProvider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create export tracker: %w", err)
	}

	return &MeterSetup{
		meterProvider: meterProvider,
		tracker:       tracker,
	}, nil
}

// Tracker returns the export tracker. It is nil safe.
func (ms *MeterSetup) Tracker() *ExportTracker {
	if ms == nil {
		return nil
	}
	return ms.tracker
}

// Shutdown flushes and shuts down the meter provider.
func (ms *MeterSetup) Shutdown(ctx context.Context) error {
	if ms == nil || ms.meterProvider == nil {
		return nil
	}
	return ms.meterProvider.Shutdown(ctx)
}
