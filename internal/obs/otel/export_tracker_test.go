package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tingly-dev/nodepack/internal/archive"
	"github.com/tingly-dev/nodepack/internal/export"
	"github.com/tingly-dev/nodepack/internal/repo"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumByStatus(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		out[attrValue(dp.Attributes, AttrExportStatus)] += dp.Value
	}
	return out
}

func TestExportTrackerRecordsStats(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	ms, err := NewMeterSetupWithReader(context.Background(), reader)
	require.NoError(t, err)
	defer ms.Shutdown(context.Background())

	tracker := ms.Tracker()
	tracker.RecordExport(context.Background(), export.Stats{
		Format: archive.FormatJSONL, Kind: "success", Entries: 3, Bytes: 512, Duration: 5 * time.Millisecond,
	})
	tracker.RecordExport(context.Background(), export.Stats{
		Format: archive.FormatJSONL, Kind: "not_found",
	})

	metrics := collectMetrics(t, reader)
	assert.Equal(t, map[string]int64{"success": 1, "not_found": 1}, sumByStatus(t, metrics["nodepack.export.count"]))
	assert.Equal(t, map[string]int64{"not_found": 1}, sumByStatus(t, metrics["nodepack.export.errors"]))
	assert.Equal(t, map[string]int64{"success": 3}, sumByStatus(t, metrics["nodepack.export.entries"]))
	assert.Equal(t, map[string]int64{"success": 512}, sumByStatus(t, metrics["nodepack.export.bytes"]))

	hist, ok := metrics["nodepack.export.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestExporterReportsToTracker(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	require.NoError(t, store.PutNode(ctx, "/content/page/jcr:content", nil))

	reader := sdkmetric.NewManualReader()
	ms, err := NewMeterSetupWithReader(ctx, reader)
	require.NoError(t, err)
	defer ms.Shutdown(ctx)

	e := export.NewExporter(store, export.WithRecorder(ms.Tracker()))
	var buf bytes.Buffer
	_, err = e.Export(ctx, "/content/page", export.Options{}, &buf)
	require.NoError(t, err)

	metrics := collectMetrics(t, reader)
	assert.Equal(t, map[string]int64{"success": 3}, sumByStatus(t, metrics["nodepack.export.entries"]))
	assert.Equal(t, map[string]int64{"success": int64(buf.Len())}, sumByStatus(t, metrics["nodepack.export.bytes"]))
}

func TestNewMeterSetupDisabled(t *testing.T) {
	ms, err := NewMeterSetup(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, ms)
	assert.Nil(t, ms.Tracker())
	assert.NoError(t, ms.Shutdown(context.Background()))
}

func TestNewMeterSetupWritesOnShutdown(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &out

	ms, err := NewMeterSetup(context.Background(), cfg)
	require.NoError(t, err)
	ms.Tracker().RecordExport(context.Background(), export.Stats{Format: archive.FormatZstd, Kind: "success", Entries: 1})
	require.NoError(t, ms.Shutdown(context.Background()))

	assert.Contains(t, out.String(), "nodepack.export.count")
}

func attrValue(set attribute.Set, key attribute.Key) string {
	v, ok := set.Value(key)
	if !ok {
		return ""
	}
	return v.Emit()
}
