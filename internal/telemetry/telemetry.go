// Package telemetry wires optional OpenTelemetry tracing for the engine.
package telemetry

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Environment variables that switch tracing on.
const (
	EnvEndpoint = "SCENE_ENGINE_OTEL_ENDPOINT"
	EnvEnabled  = "SCENE_ENGINE_OTEL_ENABLED"
)

// TracerName is the instrumentation scope used by the context run loops.
const TracerName = "scene-engine/worker"

// Setup initialises tracing for serviceName.
//
// Tracing is opt-in: with SCENE_ENGINE_OTEL_ENDPOINT empty or
// SCENE_ENGINE_OTEL_ENABLED set to "false", Setup registers nothing and
// returns a no-op shutdown. The global no-op tracer then makes every span free.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if strings.EqualFold(os.Getenv(EnvEnabled), "false") {
		return noop, nil
	}
	endpoint := os.Getenv(EnvEndpoint)
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
