// Package telemetry configures OpenTelemetry tracing for crawl runs.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"
)

// ServiceName identifies ripples in trace resources.
const ServiceName = "ripples"

// InitTracerProvider installs a global tracer provider that batches finished
// spans into exporter. Callers must Shutdown the provider to flush.
func InitTracerProvider(ctx context.Context, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// Setup installs a provider exporting to logger and returns a shutdown func
// that flushes pending spans.
func Setup(ctx context.Context, logger *zap.Logger) (func(context.Context) error, error) {
	tp, err := InitTracerProvider(ctx, NewZapExporter(logger))
	if err != nil {
		return nil, err
	}
	return tp.Shutdown, nil
}
