package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer opens spans on the global provider, so it follows whatever
// NewTraceProvider installed, including one installed after construction.
type Tracer interface {
	StartSpanFromContext(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
}

// Span is the subset of trace.Span the services use.
type Span interface {
	SetAttributes(kv ...attribute.KeyValue)
	NoticeError(err error)
	SpanContext() trace.SpanContext
	End(opts ...trace.SpanEndOption)
}

// NewTracer returns a Tracer for the named instrumentation scope.
func NewTracer(name string) Tracer {
	return tracer{name: name}
}

type tracer struct {
	name string
}

func (t tracer) StartSpanFromContext(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, s := otel.Tracer(t.name).Start(ctx, name, opts...)
	return ctx, span{s}
}

type span struct {
	trace.Span
}

// NoticeError records err and marks the span failed.
func (s span) NoticeError(err error) {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
}
