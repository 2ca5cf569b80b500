package otel

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

type tracer struct {
	tracer oteltrace.Tracer
}

func newTracer(t oteltrace.Tracer) *tracer {
	return &tracer{tracer: t}
}

func (t *tracer) Start(ctx context.Context, spanName string, opts ...observability.SpanOption) (context.Context, observability.Span) {
	cfg := observability.NewSpanConfig(opts)

	startOpts := []oteltrace.SpanStartOption{oteltrace.WithSpanKind(spanKind(cfg.Kind))}
	if attrs := toAttributes(cfg.Attributes); attrs != nil {
		startOpts = append(startOpts, oteltrace.WithAttributes(attrs...))
	}

	ctx, s := t.tracer.Start(ctx, spanName, startOpts...)
	return ctx, &span{span: s}
}

// SpanFromContext never returns nil; without an active span the result is non-recording.
func (t *tracer) SpanFromContext(ctx context.Context) observability.Span {
	return &span{span: oteltrace.SpanFromContext(ctx)}
}

type span struct {
	span oteltrace.Span
}

func (s *span) End() { s.span.End() }

func (s *span) SetAttributes(fields ...observability.Field) {
	if attrs := toAttributes(fields); attrs != nil {
		s.span.SetAttributes(attrs...)
	}
}

func (s *span) SetStatus(code observability.StatusCode, description string) {
	s.span.SetStatus(statusCode(code), description)
}

func (s *span) RecordError(err error, fields ...observability.Field) {
	if attrs := toAttributes(fields); attrs != nil {
		s.span.RecordError(err, oteltrace.WithAttributes(attrs...))
		return
	}
	s.span.RecordError(err)
}

func (s *span) AddEvent(name string, fields ...observability.Field) {
	if attrs := toAttributes(fields); attrs != nil {
		s.span.AddEvent(name, oteltrace.WithAttributes(attrs...))
		return
	}
	s.span.AddEvent(name)
}

func (s *span) Context() observability.SpanContext {
	return spanContext{sc: s.span.SpanContext()}
}

type spanContext struct {
	sc oteltrace.SpanContext
}

func (c spanContext) TraceID() string { return c.sc.TraceID().String() }
func (c spanContext) SpanID() string { return c.sc.SpanID().String() }
func (c spanContext) IsSampled() bool { return c.sc.IsSampled() }

func spanKind(kind observability.SpanKind) oteltrace.SpanKind {
	switch kind {
	case observability.SpanKindServer:
		return oteltrace.SpanKindServer
	case observability.SpanKindClient:
		return oteltrace.SpanKindClient
	case observability.SpanKindProducer:
		return oteltrace.SpanKindProducer
	case observability.SpanKindConsumer:
		return oteltrace.SpanKindConsumer
	default:
		return oteltrace.SpanKindInternal
	}
}

func statusCode(code observability.StatusCode) codes.Code {
	switch code {
	case observability.StatusCodeOK:
		return codes.Ok
	case observability.StatusCodeError:
		return codes.Error
	default:
		return codes.Unset
	}
}
