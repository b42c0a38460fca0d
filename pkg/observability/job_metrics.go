package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// JobMetrics holds OpenTelemetry instruments for batch rollup runs.
// Batch runs have no scrape endpoint, so they push through the OTLP meter provider.
type JobMetrics struct {
	runsTotal      metric.Int64Counter
	runDuration    metric.Float64Histogram
	rollupsWritten metric.Int64Counter
	accountsFailed metric.Int64Counter
}

// NewJobMetrics creates the instruments on provider, or on the global provider when nil
func NewJobMetrics(provider metric.MeterProvider) (*JobMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("github.com/platinummonkey/tally/aggregator")

	m := &JobMetrics{}
	var err error

	m.runsTotal, err = meter.Int64Counter(
		"tally.rollup.runs",
		metric.WithDescription("Rollup job runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rollup runs counter: %w", err)
	}

	m.runDuration, err = meter.Float64Histogram(
		"tally.rollup.duration",
		metric.WithDescription("Rollup job duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rollup duration histogram: %w", err)
	}

	m.rollupsWritten, err = meter.Int64Counter(
		"tally.rollup.written",
		metric.WithDescription("Rollups upserted by the job"),
		metric.WithUnit("{rollup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rollups written counter: %w", err)
	}

	m.accountsFailed, err = meter.Int64Counter(
		"tally.rollup.accounts_failed",
		metric.WithDescription("Accounts whose rollup failed"),
		metric.WithUnit("{account}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create accounts failed counter: %w", err)
	}

	return m, nil
}

// RecordRun records the outcome of one job run for period
func (m *JobMetrics) RecordRun(ctx context.Context, period string, written, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if failed > 0 {
		status = "partial"
		if written == 0 {
			status = "error"
		}
	}
	attrs := metric.WithAttributes(attribute.String("period", period))

	m.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("period", period),
		attribute.String("status", status),
	))
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
	m.rollupsWritten.Add(ctx, int64(written), attrs)
	if failed > 0 {
		m.accountsFailed.Add(ctx, int64(failed), attrs)
	}
}
