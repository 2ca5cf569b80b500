// Package noop provides an Observability that discards spans and metrics.
// A real logger can still be plugged in so a relay running with telemetry
// export disabled keeps its console output.
package noop

import (
	"context"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

type Provider struct {
	logger observability.Logger
}

type Option func(*Provider)

// WithLogger replaces the discarding logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewProvider(opts ...Option) *Provider {
	p := &Provider{logger: Logger{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Tracer() observability.Tracer { return Tracer{} }
func (p *Provider) Logger() observability.Logger { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return Metrics{} }

type Tracer struct{}

func (Tracer) Start(ctx context.Context, _ string, _ ...observability.SpanOption) (context.Context, observability.Span) {
	return ctx, Span{}
}

func (Tracer) SpanFromContext(context.Context) observability.Span { return Span{} }

type Span struct{}

func (Span) End() {}
func (Span) SetAttributes(...observability.Field) {}
func (Span) SetStatus(observability.StatusCode, string) {}
func (Span) RecordError(error, ...observability.Field) {}
func (Span) AddEvent(string, ...observability.Field) {}
func (Span) Context() observability.SpanContext { return spanContext{} }

type spanContext struct{}

func (spanContext) TraceID() string { return "" }
func (spanContext) SpanID() string { return "" }
func (spanContext) IsSampled() bool { return false }

type Logger struct{}

func (Logger) Debug(context.Context, string, ...observability.Field) {}
func (Logger) Info(context.Context, string, ...observability.Field) {}
func (Logger) Warn(context.Context, string, ...observability.Field) {}
func (Logger) Error(context.Context, string, ...observability.Field) {}

func (l Logger) With(...observability.Field) observability.Logger { return l }

type Metrics struct{}

func (Metrics) Counter(string, string, string) observability.Counter { return counter{} }
func (Metrics) Histogram(string, string, string) observability.Histogram { return histogram{} }
func (Metrics) UpDownCounter(string, string, string) observability.UpDownCounter { return counter{} }

type counter struct{}

func (counter) Add(context.Context, int64, ...observability.Field) {}
func (counter) Increment(context.Context, ...observability.Field) {}

type histogram struct{}

func (histogram) Record(context.Context, float64, ...observability.Field) {}
