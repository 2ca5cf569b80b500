package httpclient

import (
	"errors"
	"time"
)

const (
	// DefaultTimeout bounds a whole exchange, body included.
	// Callers that need a tighter budget pass a context with a deadline.
	DefaultTimeout = 30 * time.Second

	// DefaultResponseHeaderTimeout bounds the wait for response headers on
	// the default transport.
	DefaultResponseHeaderTimeout = 10 * time.Second

	// DefaultMaxRequestBodySize is the largest request body buffered for retries.
	DefaultMaxRequestBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxResponseSize is the largest response body ReadBody accepts.
	DefaultMaxResponseSize int64 = 10 * 1024 * 1024 // 10MB

	// DefaultMaxDrainSize caps how much of a discarded response is read
	// before closing it, so the connection can go back to the pool.
	DefaultMaxDrainSize = 1 * 1024 * 1024 // 1MB

	// MaxRetryAttempts is the maximum allowed retry attempts.
	MaxRetryAttempts = 10

	// MaxRetryBackoff is the maximum allowed initial backoff.
	MaxRetryBackoff = 10 * time.Second

	// maxRetryInterval caps the exponential growth between attempts.
	maxRetryInterval = 30 * time.Second
)

var (
	// ErrRequestBodyTooLarge is returned when a request body exceeds maxBodySize
	// and cannot be buffered for retry.
	ErrRequestBodyTooLarge = errors.New("request body exceeds maximum allowed size for retry buffering")

	// ErrResponseTooLarge is returned by ReadBody when the body exceeds the client limit.
	ErrResponseTooLarge = errors.New("response body exceeds maximum allowed size")
)
