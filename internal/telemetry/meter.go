package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// DefaultMetricsInterval is the OTLP export period
const DefaultMetricsInterval = 30 * time.Second

func noopMeterProvider() metric.MeterProvider {
	return noop.NewMeterProvider()
}

// newMeterProvider returns a no-op provider unless metrics are enabled. The
// SDK provider becomes the global one.
func (t *Telemetry) newMeterProvider(
	ctx context.Context,
	s *settings,
	res *resource.Resource,
) (metric.MeterProvider, error) {
	mc := s.config.Metrics
	if mc == nil || !mc.Enabled {
		slog.Info("Metrics disabled, using no-op meter provider")
		return noopMeterProvider(), nil
	}

	reader := s.metricReader
	if reader == nil {
		exporter, err := newOTLPMetricExporter(ctx, s.config)
		if err != nil {
			return nil, err
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(DefaultMetricsInterval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	t.shutdown = append(t.shutdown, func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
		return nil
	})

	otel.SetMeterProvider(mp)
	slog.Info("Metrics initialized", "interval", DefaultMetricsInterval.String())
	return mp, nil
}

func newOTLPMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.GetEndpoint()),
	}
	if cfg.GetInsecure() {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return exporter, nil
}
