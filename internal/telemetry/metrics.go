package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// UpstreamMetricsMeterName is the name used for the upstream request meter
	UpstreamMetricsMeterName = "github.com/stacklok/reelsync/upstream"

	// CollectorMetricsMeterName is the name used for the collection run meter
	CollectorMetricsMeterName = "github.com/stacklok/reelsync/collector"
)

// UpstreamMetrics holds the OpenTelemetry instruments for upstream calls
type UpstreamMetrics struct {
	requestDuration metric.Float64Histogram
}

// NewUpstreamMetrics creates a new UpstreamMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewUpstreamMetrics(provider metric.MeterProvider) (*UpstreamMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(UpstreamMetricsMeterName)

	requestDuration, err := meter.Float64Histogram(
		"reelsync_upstream_request_duration_seconds",
		metric.WithDescription("Duration of single upstream HTTP attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return &UpstreamMetrics{
		requestDuration: requestDuration,
	}, nil
}

// RecordRequest records one upstream attempt and its outcome
func (m *UpstreamMetrics) RecordRequest(ctx context.Context, source, outcome string, duration time.Duration) {
	if m == nil || m.requestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	}

	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// CollectorMetrics holds the OpenTelemetry instruments for collection runs
type CollectorMetrics struct {
	runDuration   metric.Float64Histogram
	fetchOutcomes metric.Int64Counter
	frozenTotal   metric.Int64Counter
}

// NewCollectorMetrics creates a new CollectorMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCollectorMetrics(provider metric.MeterProvider) (*CollectorMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CollectorMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"reelsync_run_duration_seconds",
		metric.WithDescription("Duration of collection runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600),
	)
	if err != nil {
		return nil, err
	}

	fetchOutcomes, err := meter.Int64Counter(
		"reelsync_fetch_outcomes_total",
		metric.WithDescription("Per-movie fetch outcomes by source"),
		metric.WithUnit("{movie}"),
	)
	if err != nil {
		return nil, err
	}

	frozenTotal, err := meter.Int64Counter(
		"reelsync_frozen_movies_total",
		metric.WithDescription("Movies frozen after their data stabilized"),
		metric.WithUnit("{movie}"),
	)
	if err != nil {
		return nil, err
	}

	return &CollectorMetrics{
		runDuration:   runDuration,
		fetchOutcomes: fetchOutcomes,
		frozenTotal:   frozenTotal,
	}, nil
}

// RecordRunDuration records the duration of one collection run
func (m *CollectorMetrics) RecordRunDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.runDuration == nil {
		return
	}

	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordFetchOutcomes adds count movies with the given outcome for a source
func (m *CollectorMetrics) RecordFetchOutcomes(ctx context.Context, source, outcome string, count int) {
	if m == nil || m.fetchOutcomes == nil || count == 0 {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	}

	m.fetchOutcomes.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordFrozen adds count newly frozen movies
func (m *CollectorMetrics) RecordFrozen(ctx context.Context, count int) {
	if m == nil || m.frozenTotal == nil || count == 0 {
		return
	}

	m.frozenTotal.Add(ctx, int64(count))
}
