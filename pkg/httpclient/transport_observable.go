package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// observableTransport wraps every request with a client span and metrics.
//
// Span attributes: http.method, http.url, http.host, http.scheme,
// http.status_code and, when known, peer.service.
type observableTransport struct {
	base            http.RoundTripper
	instrumentation *instrumentation
	peerService     string
}

// RoundTrip implements http.RoundTripper.
//
// Metrics are recorded on context.Background() so that a canceled or timed
// out request still shows up.
func (t *observableTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	attrs := []observability.Field{
		observability.String("http.method", req.Method),
		observability.String("http.url", req.URL.String()),
		observability.String("http.host", req.URL.Host),
		observability.String("http.scheme", req.URL.Scheme),
	}
	if t.peerService != "" {
		attrs = append(attrs, observability.String("peer.service", t.peerService))
	}

	ctx, span := t.instrumentation.tracer.Start(
		req.Context(),
		"http.client.request",
		observability.WithSpanKind(observability.SpanKindClient),
		observability.WithAttributes(attrs...),
	)
	defer span.End()

	req = req.WithContext(ctx)
	resp, err := t.base.RoundTrip(req)

	duration := float64(time.Since(start).Milliseconds())
	metricAttrs := []observability.Field{
		observability.String("http.method", req.Method),
		observability.String("http.host", req.URL.Host),
	}
	metricsCtx := context.Background()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusCodeError, err.Error())

		errorAttrs := append(metricAttrs, observability.String("error.type", classifyError(err)))
		t.instrumentation.errorCounter.Increment(metricsCtx, errorAttrs...)
		t.instrumentation.requestCounter.Increment(metricsCtx, metricAttrs...)
		t.instrumentation.latencyHistogram.Record(metricsCtx, duration, metricAttrs...)
		return resp, err
	}

	span.SetAttributes(observability.Int("http.status_code", resp.StatusCode))
	metricAttrs = append(metricAttrs, observability.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		span.SetStatus(observability.StatusCodeError, fmt.Sprintf("HTTP %d", resp.StatusCode))
	} else {
		span.SetStatus(observability.StatusCodeOK, "request successful")
	}

	t.instrumentation.requestCounter.Increment(metricsCtx, metricAttrs...)
	t.instrumentation.latencyHistogram.Record(metricsCtx, duration, metricAttrs...)

	return resp, nil
}

// classifyError buckets transport errors for the error.type metric attribute.
func classifyError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, ErrRequestBodyTooLarge) {
		return "body_too_large"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "network_timeout"
		}
		return "network_error"
	}
	return "unknown"
}

// IsTimeout reports whether err is the result of a deadline or network timeout.
func IsTimeout(err error) bool {
	switch classifyError(err) {
	case "timeout", "network_timeout":
		return true
	}
	return false
}
