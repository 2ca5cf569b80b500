package relay

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// callMetrics records peer calls both through the observability provider and
// on a Prometheus registry scraped at /metrics.
type callMetrics struct {
	calls    observability.Counter
	duration observability.Histogram
	inFlight observability.UpDownCounter

	promCalls    *prometheus.CounterVec
	promDuration *prometheus.HistogramVec
}

func newCallMetrics(metrics observability.Metrics, reg prometheus.Registerer) *callMetrics {
	m := &callMetrics{
		calls:    metrics.Counter("relay.peer.calls", "Peer calls by outcome", "{call}"),
		duration: metrics.Histogram("relay.peer.call.duration", "Duration of peer calls", "ms"),
		inFlight: metrics.UpDownCounter("relay.peer.calls.in_flight", "Peer calls in progress", "{call}"),
	}
	if reg == nil {
		return m
	}

	m.promCalls = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_peer_calls_total",
		Help: "Peer calls by peer and outcome.",
	}, []string{"peer", "result"}))
	m.promDuration = registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_peer_call_duration_seconds",
		Help:    "Duration of peer calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"peer"}))
	return m
}

// registerCollector returns the already registered collector when one with the
// same descriptor exists, so several callers can share a registry.
func registerCollector[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *callMetrics) start(ctx context.Context, peer string) {
	m.inFlight.Add(context.WithoutCancel(ctx), 1, observability.String("peer", peer))
}

func (m *callMetrics) finish(ctx context.Context, out CallOutcome, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)
	peer := observability.String("peer", out.PeerName)

	m.inFlight.Add(ctx, -1, peer)
	m.calls.Increment(ctx, peer, observability.String("result", out.result()))
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, peer)

	if m.promCalls != nil {
		m.promCalls.WithLabelValues(out.PeerName, out.result()).Inc()
		m.promDuration.WithLabelValues(out.PeerName).Observe(elapsed.Seconds())
	}
}
