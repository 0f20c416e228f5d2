package clicommand

import (
	"context"
	"fmt"

	"github.com/fussgo/fuss/logger"
	"github.com/fussgo/fuss/version"
	"github.com/urfave/cli"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracingBackendNone          = ""
	TracingBackendOpenTelemetry = "opentelemetry"
)

var TracingBackendFlag = cli.StringFlag{
	Name:   "tracing-backend",
	Value:  TracingBackendNone,
	Usage:  "Export a span for each Graph API request. The only supported value is \"opentelemetry\", configured with the usual OTEL_EXPORTER_OTLP_* variables",
	EnvVar: "FUSS_TRACING_BACKEND",
}

var TracingServiceNameFlag = cli.StringFlag{
	Name:   "tracing-service-name",
	Value:  "fuss",
	Usage:  "Service name to use when reporting traces",
	EnvVar: "FUSS_TRACING_SERVICE_NAME",
}

var tracingFlags = []cli.Flag{
	TracingBackendFlag,
	TracingServiceNameFlag,
}

// startTracing returns the tracer provider described by the TracingBackend
// and TracingServiceName fields of cfg, and a function that flushes it. With
// no backend the provider is nil and the client falls back to the global one.
func startTracing(ctx context.Context, l logger.Logger, cfg any) (trace.TracerProvider, func(), error) {
	backend := stringField(cfg, "TracingBackend")
	switch backend {
	case TracingBackendNone:
		return nil, func() {}, nil

	case TracingBackendOpenTelemetry:
		exporter, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
		}

		serviceName := stringField(cfg, "TracingServiceName")
		if serviceName == "" {
			serviceName = TracingServiceNameFlag.Value
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(version.Version()),
			)),
		)

		stop := func() {
			ctx := context.Background()
			if err := tp.ForceFlush(ctx); err != nil {
				l.Warn("Couldn't flush traces: %v", err)
			}
			_ = tp.Shutdown(ctx)
		}
		return tp, stop, nil

	default:
		return nil, nil, fmt.Errorf("invalid tracing backend %q, only %q is supported", backend, TracingBackendOpenTelemetry)
	}
}
