package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// retryTransport replays a request according to its RetryPolicy. It is only
// part of the chain when WithRetry was given for that request.
//
// Span attributes: retry.enabled, retry.max_attempts, retry.attempt.
// Span events: retry_attempt, before each replay.
type retryTransport struct {
	base            http.RoundTripper
	maxAttempts     int
	initialBackoff  time.Duration
	policy          RetryPolicy
	maxBodySize     int64
	instrumentation *instrumentation
}

// RoundTrip implements http.RoundTripper without mutating the original request.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	span := t.instrumentation.tracer.SpanFromContext(ctx)
	span.SetAttributes(
		observability.Bool("retry.enabled", true),
		observability.Int("retry.max_attempts", t.maxAttempts),
	)

	bodyBytes, err := t.bufferBody(req)
	if err != nil {
		return nil, err
	}

	schedule := t.newSchedule(ctx)
	for attempt := 1; ; attempt++ {
		span.SetAttributes(observability.Int("retry.attempt", attempt))

		attemptReq := req
		if bodyBytes != nil {
			attemptReq = cloneRequest(req, bodyBytes)
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if !t.policy(err, resp) {
			return resp, err
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() != nil {
				drainBody(resp)
				return nil, ctx.Err()
			}
			return resp, err
		}
		drainBody(resp)

		span.AddEvent("retry_attempt",
			observability.Int("attempt", attempt),
			observability.String("reason", retryReason(err, resp)),
			observability.Duration("wait", wait),
		)

		if !sleepWithContext(ctx, wait) {
			return nil, ctx.Err()
		}
	}
}

// newSchedule returns an exponential schedule that stops after maxAttempts-1
// replays or when ctx is done.
func (t *retryTransport) newSchedule(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = t.initialBackoff
	exp.MaxInterval = maxRetryInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(t.maxAttempts-1)), ctx)
}

func cloneRequest(req *http.Request, bodyBytes []byte) *http.Request {
	cloned := *req
	cloned.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	cloned.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(bodyBytes)), nil
	}
	return &cloned
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// bufferBody reads the request body once so every attempt can replay it.
func (t *retryTransport) bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(req.Body, t.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(bodyBytes)) > t.maxBodySize {
		return nil, ErrRequestBodyTooLarge
	}
	return bodyBytes, nil
}

func drainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, DefaultMaxDrainSize)
	_ = resp.Body.Close()
}

func retryReason(err error, resp *http.Response) string {
	if err != nil {
		return "network_error"
	}
	if resp != nil {
		return fmt.Sprintf("http_%d", resp.StatusCode)
	}
	return "unknown"
}
