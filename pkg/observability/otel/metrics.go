package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// metrics caches instruments by name; the SDK rejects conflicting redefinitions.
type metrics struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]observability.Counter
	histograms map[string]observability.Histogram
	upDowns    map[string]observability.UpDownCounter
}

func newMetrics(meter metric.Meter) *metrics {
	return &metrics{
		meter:      meter,
		counters:   make(map[string]observability.Counter),
		histograms: make(map[string]observability.Histogram),
		upDowns:    make(map[string]observability.UpDownCounter),
	}
}

func (m *metrics) Counter(name, description, unit string) observability.Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c
	}
	c, err := m.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		c, _ = metricnoop.Meter{}.Int64Counter(name)
	}
	wrapped := &counter{c: c}
	m.counters[name] = wrapped
	return wrapped
}

func (m *metrics) Histogram(name, description, unit string) observability.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histograms[name]; ok {
		return h
	}
	h, err := m.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		h, _ = metricnoop.Meter{}.Float64Histogram(name)
	}
	wrapped := &histogram{h: h}
	m.histograms[name] = wrapped
	return wrapped
}

func (m *metrics) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.upDowns[name]; ok {
		return u
	}
	u, err := m.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		u, _ = metricnoop.Meter{}.Int64UpDownCounter(name)
	}
	wrapped := &upDownCounter{u: u}
	m.upDowns[name] = wrapped
	return wrapped
}

type counter struct {
	c metric.Int64Counter
}

func (c *counter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	c.c.Add(ctx, value, metric.WithAttributes(toAttributes(fields)...))
}

func (c *counter) Increment(ctx context.Context, fields ...observability.Field) {
	c.Add(ctx, 1, fields...)
}

type histogram struct {
	h metric.Float64Histogram
}

func (h *histogram) Record(ctx context.Context, value float64, fields ...observability.Field) {
	h.h.Record(ctx, value, metric.WithAttributes(toAttributes(fields)...))
}

type upDownCounter struct {
	u metric.Int64UpDownCounter
}

func (u *upDownCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	u.u.Add(ctx, value, metric.WithAttributes(toAttributes(fields)...))
}
