package tracing

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "modsecmon"

// Init installs an OTLP/gRPC exporting tracer provider. With an empty endpoint
// tracing stays on the global no-op provider. The returned function flushes and stops the exporter.
func Init(ctx context.Context, logger zerolog.Logger, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		logger.Debug().Msg("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName("modsec-threat-monitor")))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info().Str("endpoint", endpoint).Msg("Tracing enabled")
	return tp.Shutdown, nil
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func ClientIP(addr string) attribute.KeyValue {
	return attribute.String("client.ip", addr)
}

func Provider(name string) attribute.KeyValue {
	return attribute.String("reputation.provider", name)
}

func Verdict(v string) attribute.KeyValue {
	return attribute.String("verdict", v)
}

func Reason(r string) attribute.KeyValue {
	return attribute.String("verdict.reason", r)
}
