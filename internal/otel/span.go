// Package otel provides OpenTelemetry instrumentation helpers shared by the
// collector, the storage layer and the upstream clients.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used across the application so spans from different
// packages can be correlated.
const (
	AttrRunID       = attribute.Key("run.id")
	AttrPhase       = attribute.Key("collector.phase")
	AttrSource      = attribute.Key("upstream.source")
	AttrMovieCount  = attribute.Key("movie.count")
	AttrResultCount = attribute.Key("result.count")
	AttrBatchSize   = attribute.Key("batch.size")
	AttrYear        = attribute.Key("discovery.year")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
// This provides graceful degradation when tracing is disabled.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// StartDBSpan is StartSpan with the PostgreSQL db.system attribute prepended
func StartDBSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemPostgreSQL),
	}, opts...)
	return StartSpan(ctx, tracer, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// The status description stays generic so SQL or URLs carrying credentials
// never reach the status. The full error is still available as a span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
