// Package apm configures distributed tracing and wraps OpenTelemetry spans.
package apm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fd1az/chainprobe/internal/logger"
)

type Provider string

const (
	ZipkinProvider   Provider = "zipkin"
	OTLPGRPCProvider Provider = "otlp-grpc"
	OTLPHTTPProvider Provider = "otlp-http"
	ConsoleProvider  Provider = "console"
	EmptyProvider    Provider = "none"
)

type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type TracerOptions struct {
	exporter           sdktrace.SpanExporter
	tracerProviderName string
	useEmpty           bool
	err                error
}

type TracerOption func(*TracerOptions)

// WithProvider selects the span exporter. endpoint is ignored by the
// console and empty providers.
func WithProvider(provider Provider, endpoint string, log logger.LoggerInterface) TracerOption {
	switch provider {
	case ZipkinProvider:
		return useZipkin(endpoint)
	case OTLPGRPCProvider:
		return useOTLPGRPC(endpoint)
	case OTLPHTTPProvider:
		return useOTLPHTTP(endpoint)
	case ConsoleProvider:
		return useConsole()
	case EmptyProvider:
		return useEmpty()
	}

	log.Warn(context.Background(), "trace provider not found, tracing disabled", "provider", provider)

	return useEmpty()
}

func useEmpty() TracerOption {
	return func(option *TracerOptions) {
		option.useEmpty = true
		option.tracerProviderName = string(EmptyProvider)
	}
}

func useConsole() TracerOption {
	return func(option *TracerOptions) {
		option.exporter, option.err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		option.tracerProviderName = string(ConsoleProvider)
	}
}

func useZipkin(endpoint string) TracerOption {
	return func(option *TracerOptions) {
		option.exporter, option.err = zipkin.New(endpoint)
		option.tracerProviderName = string(ZipkinProvider)
	}
}

func useOTLPGRPC(endpoint string) TracerOption {
	return func(option *TracerOptions) {
		option.exporter, option.err = otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpointURL(endpoint),
		)
		option.tracerProviderName = string(OTLPGRPCProvider)
	}
}

func useOTLPHTTP(endpoint string) TracerOption {
	return func(option *TracerOptions) {
		option.exporter, option.err = otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpointURL(endpoint),
		)
		option.tracerProviderName = string(OTLPHTTPProvider)
	}
}

// NewTraceProvider installs a global tracer provider for serviceName.
func NewTraceProvider(serviceName string, options ...TracerOption) (TraceProvider, error) {
	opts := &TracerOptions{}

	for _, opt := range options {
		opt(opts)
	}

	if opts.err != nil {
		return nil, fmt.Errorf("%s exporter: %w", opts.tracerProviderName, opts.err)
	}

	if opts.useEmpty || opts.exporter == nil {
		return emptyTraceProvider{}, nil
	}

	rsrc, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("otel.provider", opts.tracerProviderName),
		))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(opts.exporter),
		sdktrace.WithResource(rsrc),
	)

	// Set global trace provider
	otel.SetTracerProvider(tp)

	// Set trace propagator
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	return &traceProvider{
		tp,
	}, nil
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5) //nolint:gomnd
	defer cancel()

	return o.tp.Shutdown(ctx)
}

type emptyTraceProvider struct{}

func (emptyTraceProvider) Stop() error {
	return nil
}
