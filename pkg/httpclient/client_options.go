package httpclient

import (
	"net/http"
	"time"
)

// ClientOption configures the ObservableClient.
type ClientOption func(*ObservableClient)

// WithClientTimeout sets the upper bound for a whole exchange.
// Default: 30 seconds (DefaultTimeout).
//
// A context deadline shorter than this wins:
//
//	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	resp, err := client.Get(ctx, url)
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(c *ObservableClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMaxBodySize sets the maximum request body size for retry buffering.
// Default: 10MB (DefaultMaxRequestBodySize).
func WithMaxBodySize(size int64) ClientOption {
	return func(c *ObservableClient) {
		if size >= 0 {
			c.maxBodySize = size
		}
	}
}

// WithMaxResponseSize sets the limit enforced by ReadBody.
// Default: 10MB (DefaultMaxResponseSize). Zero disables the limit.
func WithMaxResponseSize(size int64) ClientOption {
	return func(c *ObservableClient) {
		if size >= 0 {
			c.maxResponseSize = size
		}
	}
}

// WithBaseTransport sets a custom base transport.
// The provided transport is wrapped with the observability and retry layers,
// and shared by every request the client makes.
//
// Example:
//
//	client, err := httpclient.NewObservableClient(o11y,
//	    httpclient.WithBaseTransport(&http.Transport{MaxIdleConnsPerHost: 20}),
//	)
func WithBaseTransport(transport http.RoundTripper) ClientOption {
	return func(c *ObservableClient) {
		if transport != nil {
			c.baseTransport = transport
		}
	}
}
