// Package fake records every span, log entry and metric sample in memory so
// tests can assert on what the relay emitted.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

type Provider struct {
	tracer  *Tracer
	logger  *Logger
	metrics *Metrics
}

func NewProvider() *Provider {
	return &Provider{
		tracer:  NewTracer(),
		logger:  NewLogger(),
		metrics: NewMetrics(),
	}
}

func (p *Provider) Tracer() observability.Tracer { return p.tracer }
func (p *Provider) Logger() observability.Logger { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return p.metrics }

// FakeTracer, FakeLogger and FakeMetrics give typed access without assertions.
func (p *Provider) FakeTracer() *Tracer { return p.tracer }
func (p *Provider) FakeLogger() *Logger { return p.logger }
func (p *Provider) FakeMetrics() *Metrics { return p.metrics }

type spanKey struct{}

type Tracer struct {
	mu    sync.RWMutex
	spans []*Span
}

func NewTracer() *Tracer {
	return &Tracer{}
}

func (t *Tracer) Start(ctx context.Context, spanName string, opts ...observability.SpanOption) (context.Context, observability.Span) {
	cfg := observability.NewSpanConfig(opts)

	span := &Span{
		Name:       spanName,
		Kind:       cfg.Kind,
		StartTime:  time.Now(),
		Attributes: append([]observability.Field(nil), cfg.Attributes...),
	}
	if parent, ok := ctx.Value(spanKey{}).(*Span); ok {
		span.Parent = parent
	}

	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()

	return context.WithValue(ctx, spanKey{}, span), span
}

// SpanFromContext returns the span started on ctx, or a detached span that is not recorded.
func (t *Tracer) SpanFromContext(ctx context.Context) observability.Span {
	if span, ok := ctx.Value(spanKey{}).(*Span); ok {
		return span
	}
	return &Span{}
}

func (t *Tracer) GetSpans() []*Span {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Span, len(t.spans))
	copy(out, t.spans)
	return out
}

// SpansNamed filters recorded spans by name, preserving start order.
func (t *Tracer) SpansNamed(name string) []*Span {
	var out []*Span
	for _, s := range t.GetSpans() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func (t *Tracer) Reset() {
	t.mu.Lock()
	t.spans = nil
	t.mu.Unlock()
}

type Span struct {
	mu          sync.RWMutex
	Name        string
	Kind        observability.SpanKind
	Parent      *Span
	StartTime   time.Time
	EndTime     *time.Time
	Attributes  []observability.Field
	Events      []Event
	Status      observability.StatusCode
	StatusDesc  string
	RecordedErr error
}

type Event struct {
	Name      string
	Timestamp time.Time
	Fields    []observability.Field
}

func (s *Span) End() {
	s.mu.Lock()
	now := time.Now()
	s.EndTime = &now
	s.mu.Unlock()
}

func (s *Span) SetAttributes(fields ...observability.Field) {
	s.mu.Lock()
	s.Attributes = append(s.Attributes, fields...)
	s.mu.Unlock()
}

func (s *Span) SetStatus(code observability.StatusCode, description string) {
	s.mu.Lock()
	s.Status = code
	s.StatusDesc = description
	s.mu.Unlock()
}

func (s *Span) RecordError(err error, fields ...observability.Field) {
	s.mu.Lock()
	s.RecordedErr = err
	s.Attributes = append(s.Attributes, fields...)
	s.mu.Unlock()
}

func (s *Span) AddEvent(name string, fields ...observability.Field) {
	s.mu.Lock()
	s.Events = append(s.Events, Event{Name: name, Timestamp: time.Now(), Fields: fields})
	s.mu.Unlock()
}

func (s *Span) Context() observability.SpanContext {
	return spanContext{}
}

// Attribute returns the last value recorded under key.
func (s *Span) Attribute(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return observability.FieldValue(s.Attributes, key)
}

func (s *Span) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.Events))
	copy(out, s.Events)
	return out
}

func (s *Span) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.EndTime != nil
}

type spanContext struct{}

func (spanContext) TraceID() string { return "fake-trace-id" }
func (spanContext) SpanID() string { return "fake-span-id" }
func (spanContext) IsSampled() bool { return true }

type LogEntry struct {
	Level     observability.LogLevel
	Message   string
	Fields    []observability.Field
	Timestamp time.Time
}

// Field returns the value of key in the entry.
func (e LogEntry) Field(key string) (any, bool) {
	return observability.FieldValue(e.Fields, key)
}

// Logger shares its entry buffer with every child created through With.
type Logger struct {
	mu      *sync.RWMutex
	entries *[]LogEntry
	fields  []observability.Field
}

func NewLogger() *Logger {
	entries := make([]LogEntry, 0)
	return &Logger{mu: &sync.RWMutex{}, entries: &entries}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelDebug, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelInfo, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelWarn, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelError, msg, fields)
}

func (l *Logger) append(level observability.LogLevel, msg string, fields []observability.Field) {
	all := make([]observability.Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	l.mu.Lock()
	*l.entries = append(*l.entries, LogEntry{Level: level, Message: msg, Fields: all, Timestamp: time.Now()})
	l.mu.Unlock()
}

func (l *Logger) With(fields ...observability.Field) observability.Logger {
	child := make([]observability.Field, 0, len(l.fields)+len(fields))
	child = append(child, l.fields...)
	child = append(child, fields...)
	return &Logger{mu: l.mu, entries: l.entries, fields: child}
}

func (l *Logger) GetEntries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// EntriesWithMessage filters captured entries by exact message.
func (l *Logger) EntriesWithMessage(msg string) []LogEntry {
	var out []LogEntry
	for _, e := range l.GetEntries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

func (l *Logger) Reset() {
	l.mu.Lock()
	*l.entries = (*l.entries)[:0]
	l.mu.Unlock()
}

type Metrics struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	histograms map[string]*Histogram
	upDowns    map[string]*UpDownCounter
}

func NewMetrics() *Metrics {
	return &Metrics{
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
		upDowns:    make(map[string]*UpDownCounter),
	}
}

func (m *Metrics) Counter(name, description, unit string) observability.Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c := &Counter{Name: name, Description: description, Unit: unit}
	m.counters[name] = c
	return c
}

func (m *Metrics) Histogram(name, description, unit string) observability.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h := &Histogram{Name: name, Description: description, Unit: unit}
	m.histograms[name] = h
	return h
}

func (m *Metrics) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.upDowns[name]; ok {
		return u
	}
	u := &UpDownCounter{Name: name, Description: description, Unit: unit}
	m.upDowns[name] = u
	return u
}

// GetCounter returns nil when the counter was never requested.
func (m *Metrics) GetCounter(name string) *Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *Metrics) GetHistogram(name string) *Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.histograms[name]
}

func (m *Metrics) GetUpDownCounter(name string) *UpDownCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upDowns[name]
}

type Sample struct {
	Value     float64
	Fields    []observability.Field
	Timestamp time.Time
}

type series struct {
	mu      sync.RWMutex
	samples []Sample
}

func (s *series) add(value float64, fields []observability.Field) {
	s.mu.Lock()
	s.samples = append(s.samples, Sample{Value: value, Fields: fields, Timestamp: time.Now()})
	s.mu.Unlock()
}

func (s *series) GetValues() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Sum adds up every sample.
func (s *series) Sum() float64 {
	var total float64
	for _, v := range s.GetValues() {
		total += v.Value
	}
	return total
}

type Counter struct {
	series
	Name        string
	Description string
	Unit        string
}

func (c *Counter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	c.add(float64(value), fields)
}

func (c *Counter) Increment(ctx context.Context, fields ...observability.Field) {
	c.add(1, fields)
}

type Histogram struct {
	series
	Name        string
	Description string
	Unit        string
}

func (h *Histogram) Record(ctx context.Context, value float64, fields ...observability.Field) {
	h.add(value, fields)
}

type UpDownCounter struct {
	series
	Name        string
	Description string
	Unit        string
}

func (u *UpDownCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	u.add(float64(value), fields)
}
