// Package telemetry installs the global OpenTelemetry tracer provider that
// the executor, the analysis worker and the HTTP server report spans to.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

var ErrUnknownExporter = errors.New("unknown trace exporter")

type Config struct {
	ServiceName    string
	ServiceVersion string

	// Exporter is one of none, stdout or otlp.
	Exporter string
	Endpoint string
	Insecure bool

	// Output receives stdout spans, defaults to os.Stdout.
	Output io.Writer
}

func ValidExporter(name string) bool {
	switch name {
	case ExporterNone, ExporterStdout, ExporterOTLP:
		return true
	default:
		return false
	}
}

// Init sets the global tracer provider and returns a shutdown func that
// flushes pending spans. With ExporterNone nothing is installed and spans
// stay no-ops.
func Init(ctx context.Context, config Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	exporter, err := newExporter(ctx, config)
	if err != nil {
		return noop, err
	}
	if exporter == nil {
		return noop, nil
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", config.ServiceName),
		attribute.String("service.version", config.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, config Config) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case "", ExporterNone:
		return nil, nil

	case ExporterStdout:
		out := config.Output
		if out == nil {
			out = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil

	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		return exporter, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, config.Exporter)
	}
}
