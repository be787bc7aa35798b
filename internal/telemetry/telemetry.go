package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer and meter providers of one process and flushes
// them on Shutdown
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	shutdown       []func(context.Context) error
}

// Option configures New
type Option func(*settings)

type settings struct {
	config       *Config
	version      string
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
}

// WithTelemetryConfig sets the telemetry configuration. A nil or disabled
// configuration yields no-op providers.
func WithTelemetryConfig(cfg *Config) Option {
	return func(s *settings) {
		s.config = cfg
	}
}

// WithServiceVersion is the version reported when the configuration does not
// set one
func WithServiceVersion(version string) Option {
	return func(s *settings) {
		s.version = version
	}
}

// WithSpanExporter replaces the OTLP span exporter. Spans are exported
// synchronously.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(s *settings) {
		s.spanExporter = exp
	}
}

// WithMetricReader replaces the periodic OTLP metric reader
func WithMetricReader(reader sdkmetric.Reader) Option {
	return func(s *settings) {
		s.metricReader = reader
	}
}

func (s *settings) serviceVersion() string {
	if s.config.ServiceVersion == "" && s.version != "" {
		return s.version
	}
	return s.config.GetServiceVersion()
}

// New initializes telemetry. The caller is responsible for calling Shutdown.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}

	if s.config == nil || !s.config.Enabled {
		slog.Debug("Telemetry disabled")
		return &Telemetry{tracerProvider: noopTracerProvider(), meterProvider: noopMeterProvider()}, nil
	}

	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.config.GetServiceName()),
			semconv.ServiceVersion(s.serviceVersion()),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t := &Telemetry{}

	t.tracerProvider, err = t.newTracerProvider(ctx, s, res)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	t.meterProvider, err = t.newMeterProvider(ctx, s, res)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}

	slog.Info("Telemetry initialized",
		"service_name", s.config.GetServiceName(),
		"service_version", s.serviceVersion(),
		"endpoint", s.config.GetEndpoint(),
	)
	return t, nil
}

// TracerProvider returns the configured tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the configured meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Tracer returns a named tracer from the tracer provider
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// CollectorMetrics builds the run instruments on the meter provider
func (t *Telemetry) CollectorMetrics() (*CollectorMetrics, error) {
	return NewCollectorMetrics(t.meterProvider)
}

// UpstreamMetrics builds the request instruments on the meter provider
func (t *Telemetry) UpstreamMetrics() (*UpstreamMetrics, error) {
	return NewUpstreamMetrics(t.meterProvider)
}

// Shutdown flushes and stops the SDK providers in reverse creation order.
// Calling it again is a no-op.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if len(t.shutdown) == 0 {
		return nil
	}
	slog.Info("Shutting down telemetry")

	var errs []error
	for _, fn := range slices.Backward(t.shutdown) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return errors.Join(errs...)
}
