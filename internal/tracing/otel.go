// Package tracing sets up OpenTelemetry for the broker and worker processes.
package tracing

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Service names reported on every span.
const (
	BrokerService = "query-broker"
	WorkerService = "query-broker-worker"
)

// Shutdown flushes buffered spans and stops the provider.
type Shutdown func(context.Context) error

// InitTracer installs a global tracer provider for service that writes spans to w, and
// the W3C trace-context propagator so task deliveries and completion callbacks carry
// the dispatch trace. instance distinguishes processes of the same service, e.g. one
// worker from another; it may be empty.
func InitTracer(service, instance string, w io.Writer) (Shutdown, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(service)}
	if instance != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(instance))
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	slog.Info("tracer initialized", "service", service, "instance", instance)
	return tp.Shutdown, nil
}
