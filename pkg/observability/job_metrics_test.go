package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
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

func TestJobMetrics_RecordRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewJobMetrics(provider)
	require.NoError(t, err)

	m.RecordRun(context.Background(), "daily", 3, 1, 2*time.Second)

	got := collect(t, reader)

	written, ok := got["tally.rollup.written"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, written.DataPoints, 1)
	assert.Equal(t, int64(3), written.DataPoints[0].Value)

	runs, ok := got["tally.rollup.runs"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, runs.DataPoints, 1)
	status, _ := runs.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, "partial", status.AsString())

	failed, ok := got["tally.rollup.accounts_failed"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), failed.DataPoints[0].Value)

	_, ok = got["tally.rollup.duration"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestJobMetrics_NilSafe(t *testing.T) {
	var m *JobMetrics
	assert.NotPanics(t, func() {
		m.RecordRun(context.Background(), "weekly", 1, 0, time.Second)
	})
}

func TestNewJobMetrics_GlobalProvider(t *testing.T) {
	m, err := NewJobMetrics(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordRun(context.Background(), "monthly", 0, 2, time.Millisecond)
	})
}
