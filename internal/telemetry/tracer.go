package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func noopTracerProvider() trace.TracerProvider {
	return noop.NewTracerProvider()
}

// newTracerProvider returns a no-op provider unless tracing is enabled. The
// SDK provider becomes the global one.
func (t *Telemetry) newTracerProvider(
	ctx context.Context,
	s *settings,
	res *resource.Resource,
) (trace.TracerProvider, error) {
	tc := s.config.Tracing
	if tc == nil || !tc.Enabled {
		slog.Info("Tracing disabled, using no-op tracer provider")
		return noopTracerProvider(), nil
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.GetSampling()))),
	}
	if s.spanExporter != nil {
		opts = append(opts, sdktrace.WithSyncer(s.spanExporter))
	} else {
		exporter, err := newOTLPSpanExporter(ctx, s.config)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	t.shutdown = append(t.shutdown, func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		return nil
	})

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if s.config.GetInsecure() {
		slog.Warn("Tracing over an unencrypted connection, use only in development")
	}
	slog.Info("Tracing initialized", "sampling_ratio", tc.GetSampling())
	return tp, nil
}

func newOTLPSpanExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.GetEndpoint()),
	}
	if cfg.GetInsecure() {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return exporter, nil
}
