package httpclient

import (
	"fmt"
	"maps"
	"time"
)

// RequestOption configures individual requests.
type RequestOption func(*requestConfig)

type requestConfig struct {
	retryEnabled     bool
	retryMaxAttempts int
	retryBackoff     time.Duration
	retryPolicy      RetryPolicy
	headers          map[string]string
	peerService      string
}

// WithRetry enables retry for this request.
//
// maxAttempts counts the first attempt too (1-10, 0 disables retry). backoff
// is the initial interval of an exponential schedule with jitter, capped at 30s.
// Invalid configurations make Do return an error.
//
// Only use it for idempotent calls:
//
//	resp, err := client.Get(ctx, url,
//	    httpclient.WithRetry(3, 200*time.Millisecond, httpclient.DefaultRetryPolicy),
//	)
func WithRetry(maxAttempts int, backoff time.Duration, policy RetryPolicy) RequestOption {
	return func(cfg *requestConfig) {
		if maxAttempts <= 0 {
			return
		}

		cfg.retryEnabled = true
		cfg.retryMaxAttempts = maxAttempts
		cfg.retryBackoff = backoff
		cfg.retryPolicy = policy
	}
}

func validateRetryConfig(cfg *requestConfig) error {
	if cfg.retryMaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("httpclient: maxAttempts %d exceeds maximum %d", cfg.retryMaxAttempts, MaxRetryAttempts)
	}
	if cfg.retryBackoff < 0 {
		return fmt.Errorf("httpclient: backoff cannot be negative: %v", cfg.retryBackoff)
	}
	if cfg.retryBackoff > MaxRetryBackoff {
		return fmt.Errorf("httpclient: backoff %v exceeds maximum %v", cfg.retryBackoff, MaxRetryBackoff)
	}
	if cfg.retryPolicy == nil {
		return fmt.Errorf("httpclient: retry policy cannot be nil")
	}
	return nil
}

// WithHeaders adds multiple headers to the request.
// Existing headers with the same key are overwritten.
func WithHeaders(headers map[string]string) RequestOption {
	return func(cfg *requestConfig) {
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		maps.Copy(cfg.headers, headers)
	}
}

// WithHeader sets a single header on the request. An empty value is still sent.
func WithHeader(key, value string) RequestOption {
	return func(cfg *requestConfig) {
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		cfg.headers[key] = value
	}
}

// WithPeerService tags the client span with the logical name of the callee.
func WithPeerService(name string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.peerService = name
	}
}
