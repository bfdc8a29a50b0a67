package otel

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/tingly-dev/nodepack/internal/export"
)

// ExportTracker records export statistics as OpenTelemetry metrics.
type ExportTracker struct {
	exportCount    metric.Int64Counter
	exportErrors   metric.Int64Counter
	entryCount     metric.Int64Counter
	bytesWritten   metric.Int64Counter
	exportDuration metric.Float64Histogram
}

// NewExportTracker creates a new ExportTracker with the provided meter.
func NewExportTracker(meter metric.Meter) (*ExportTracker, error) {
	et := &ExportTracker{}

	var err error

	et.exportCount, err = meter.Int64Counter(
		"nodepack.export.count",
		metric.WithDescription("Number of export requests"),
		metric.WithUnit("{export}"),
	)
	if err != nil {
		return nil, err
	}

	et.exportErrors, err = meter.Int64Counter(
		"nodepack.export.errors",
		metric.WithDescription("Number of failed exports"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	et.entryCount, err = meter.Int64Counter(
		"nodepack.export.entries",
		metric.WithDescription("Archive entries written, manifests included"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	et.bytesWritten, err = meter.Int64Counter(
		"nodepack.export.bytes",
		metric.WithDescription("Archive bytes written"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	et.exportDuration, err = meter.Float64Histogram(
		"nodepack.export.duration",
		metric.WithDescription("Export duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return et, nil
}

// RecordExport implements export.Recorder.
func (et *ExportTracker) RecordExport(ctx context.Context, s export.Stats) {
	attrs := metric.WithAttributes(
		AttrExportFormat.String(string(s.Format)),
		AttrExportNodeOnly.Bool(s.NodeOnly),
		AttrExportStatus.String(s.Kind),
	)

	et.exportCount.Add(ctx, 1, attrs)
	if s.Kind != "success" {
		et.exportErrors.Add(ctx, 1, attrs)
	}
	if s.Entries > 0 {
		et.entryCount.Add(ctx, int64(s.Entries), attrs)
	}
	if s.Bytes > 0 {
		et.bytesWritten.Add(ctx, s.Bytes, attrs)
	}
	et.exportDuration.Record(ctx, float64(s.Duration.Microseconds())/1000, attrs)
}

var _ export.Recorder = (*ExportTracker)(nil)

