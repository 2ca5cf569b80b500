package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tracekit-dev/trace-relay/pkg/httpclient"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
	"github.com/tracekit-dev/trace-relay/pkg/propagation"
)

// DefaultCallTimeout bounds a single peer call.
const DefaultCallTimeout = 5 * time.Second

// Caller performs one GET against a peer's data endpoint. It never returns an
// error: every failure ends up in the CallOutcome.
type Caller struct {
	client  *httpclient.ObservableClient
	o11y    observability.Observability
	timeout time.Duration
	metrics *callMetrics
}

type CallerOption func(*callerOptions)

type callerOptions struct {
	timeout    time.Duration
	registerer prometheus.Registerer
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) CallerOption {
	return func(o *callerOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRegisterer sets where the Prometheus collectors are registered.
// Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) CallerOption {
	return func(o *callerOptions) {
		o.registerer = reg
	}
}

func NewCaller(o11y observability.Observability, client *httpclient.ObservableClient, opts ...CallerOption) (*Caller, error) {
	if o11y == nil {
		return nil, errors.New("relay: observability provider cannot be nil")
	}
	if client == nil {
		return nil, errors.New("relay: http client cannot be nil")
	}

	options := callerOptions{timeout: DefaultCallTimeout, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&options)
	}

	return &Caller{
		client:  client,
		o11y:    o11y,
		timeout: options.timeout,
		metrics: newCallMetrics(o11y.Metrics(), options.registerer),
	}, nil
}

// Timeout returns the per-call bound used by Call.
func (c *Caller) Timeout() time.Duration {
	return c.timeout
}

// Call is CallWithTimeout with the configured timeout.
func (c *Caller) Call(ctx context.Context, peer PeerService, traceParent string) CallOutcome {
	return c.CallWithTimeout(ctx, peer, traceParent, c.timeout)
}

// CallWithTimeout sends traceParent verbatim, even when empty, and waits at
// most timeout for the whole exchange.
func (c *Caller) CallWithTimeout(ctx context.Context, peer PeerService, traceParent string, timeout time.Duration) CallOutcome {
	ctx, span := c.o11y.Tracer().Start(ctx, "relay.call",
		observability.WithAttributes(
			observability.String("peer.service", peer.Name),
			observability.String("peer.url", peer.DataURL()),
		),
	)
	defer span.End()

	start := time.Now()
	c.metrics.start(ctx, peer.Name)

	out := c.do(ctx, peer, traceParent, timeout)

	elapsed := time.Since(start)
	c.metrics.finish(ctx, out, elapsed)

	if out.Failed() {
		span.SetAttributes(observability.String("error.kind", string(out.ErrorKind)))
		span.SetStatus(observability.StatusCodeError, out.Error)
		c.o11y.Logger().Warn(ctx, "peer call failed",
			observability.String("peer", peer.Name),
			observability.String("error_kind", string(out.ErrorKind)),
			observability.String("error", out.Error),
			observability.Duration("duration_ms", elapsed),
		)
		return out
	}

	span.SetAttributes(
		observability.Int("http.status_code", out.Status()),
		observability.Bool("body.json", out.Body != nil),
	)
	c.o11y.Logger().Debug(ctx, "peer call completed",
		observability.String("peer", peer.Name),
		observability.Int("status_code", out.Status()),
		observability.Duration("duration_ms", elapsed),
	)
	return out
}

func (c *Caller) do(ctx context.Context, peer PeerService, traceParent string, timeout time.Duration) CallOutcome {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := peer.DataURL()
	resp, err := c.client.Get(ctx, target,
		httpclient.WithHeader(propagation.HeaderTraceParent, traceParent),
		httpclient.WithHeader("Accept", "application/json"),
		httpclient.WithPeerService(peer.Name),
	)
	if err != nil {
		return failure(peer, target, timeout, err)
	}

	body, err := c.client.ReadBody(resp)
	if err != nil {
		if httpclient.IsTimeout(err) {
			return failure(peer, target, timeout, err)
		}
		c.o11y.Logger().Warn(ctx, "peer response body discarded",
			observability.String("peer", peer.Name),
			observability.Error(err),
		)
		body = nil
	}
	return responseOutcome(peer.Name, resp.StatusCode, body)
}

func failure(peer PeerService, target string, timeout time.Duration, err error) CallOutcome {
	if httpclient.IsTimeout(err) {
		return failedOutcome(peer.Name, ErrorKindTimeout,
			fmt.Sprintf("request to %s timed out after %s", target, timeout))
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return failedOutcome(peer.Name, ErrorKindConnection,
		fmt.Sprintf("connection to %s failed: %v", target, err))
}
