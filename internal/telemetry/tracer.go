// Package telemetry owns the process-wide OpenTelemetry setup. Spans go to
// stdout; there is no collector in the deployment yet.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies this service in exported spans.
const ServiceName = "conequest"

const serviceVersion = "1.0.0"

var provider *sdktrace.TracerProvider

// InitTracer installs the global tracer provider and propagators. Call once
// at startup, before any handler runs.
func InitTracer() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("stdout exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider, nil
}

// Tracer returns the service tracer for starting spans.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// ShutdownTracer flushes and stops the provider installed by InitTracer.
func ShutdownTracer(ctx context.Context) {
	if provider == nil {
		return
	}
	if err := provider.Shutdown(ctx); err != nil {
		slog.Error("tracer provider shutdown", "error", err)
	}
}
