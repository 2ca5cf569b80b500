package observability

import "context"

// Tracer starts spans. The returned context carries the new span.
type Tracer interface {
	Start(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
}

// Span is an in-flight unit of work. End must be called exactly once.
type Span interface {
	End()
	SetAttributes(fields ...Field)
	SetStatus(code StatusCode, description string)
	RecordError(err error, fields ...Field)
	AddEvent(name string, fields ...Field)
	Context() SpanContext
}

// SpanContext exposes the identifiers of a span in hex form.
type SpanContext interface {
	TraceID() string
	SpanID() string
	IsSampled() bool
}

type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOK
	StatusCodeError
)

type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

// SpanOption customises Tracer.Start.
type SpanOption func(*SpanConfig)

// SpanConfig is the resolved set of options, read by provider implementations.
type SpanConfig struct {
	Kind       SpanKind
	Attributes []Field
}

func WithSpanKind(kind SpanKind) SpanOption {
	return func(c *SpanConfig) {
		c.Kind = kind
	}
}

func WithAttributes(fields ...Field) SpanOption {
	return func(c *SpanConfig) {
		c.Attributes = append(c.Attributes, fields...)
	}
}

// NewSpanConfig applies opts over the defaults (internal kind, no attributes).
func NewSpanConfig(opts []SpanOption) SpanConfig {
	cfg := SpanConfig{Kind: SpanKindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
