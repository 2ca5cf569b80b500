package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// ObservableClient is an HTTP client with built-in tracing and metrics.
// It is safe for concurrent use and every request shares one connection pool.
//
// Every request gets:
//   - Span: "http.client.request" (method, url, status_code, peer.service)
//   - Metrics: request count, error count, latency histogram
//
// The client does not inject trace headers on its own. Headers that must reach
// the callee are passed explicitly with WithHeader.
//
// Example:
//
//	client, err := httpclient.NewObservableClient(o11y)
//	resp, err := client.Get(ctx, "http://go-test-app:8080/api/data",
//	    httpclient.WithHeader("traceparent", tp),
//	    httpclient.WithPeerService("go-test-app"),
//	)
type ObservableClient struct {
	baseTransport   http.RoundTripper
	timeout         time.Duration
	maxBodySize     int64
	maxResponseSize int64
	o11y            observability.Observability
	instrumentation *instrumentation
}

// NewTransport returns the pooled transport the client uses by default.
// Callers that wait longer than DefaultResponseHeaderTimeout for a response
// raise ResponseHeaderTimeout before passing it to WithBaseTransport.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}
}

// NewObservableClient creates a new observable HTTP client.
// Returns an error if o11y is nil.
func NewObservableClient(o11y observability.Observability, opts ...ClientOption) (*ObservableClient, error) {
	if o11y == nil {
		return nil, errors.New("httpclient: observability provider cannot be nil")
	}

	client := &ObservableClient{
		baseTransport:   NewTransport(),
		timeout:         DefaultTimeout,
		maxBodySize:     DefaultMaxRequestBodySize,
		maxResponseSize: DefaultMaxResponseSize,
		o11y:            o11y,
		instrumentation: newInstrumentation(o11y.Tracer(), o11y.Metrics()),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Get performs an HTTP GET request.
func (c *ObservableClient) Get(ctx context.Context, url string, opts ...RequestOption) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req, opts...)
}

// Post performs an HTTP POST request.
func (c *ObservableClient) Post(ctx context.Context, url string, body io.Reader, opts ...RequestOption) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req, opts...)
}

// Do executes req through the transport chain
// observableTransport -> [retryTransport] -> base transport.
func (c *ObservableClient) Do(ctx context.Context, req *http.Request, opts ...RequestOption) (*http.Response, error) {
	cfg := c.buildRequestConfig(opts)

	if cfg.retryEnabled {
		if err := validateRetryConfig(cfg); err != nil {
			return nil, err
		}
	}

	if req.Context() != ctx {
		req = req.WithContext(ctx)
	}
	c.applyHeaders(req, cfg.headers)

	httpClient := &http.Client{
		Transport: c.buildTransportChain(cfg),
		Timeout:   c.timeout,
	}
	return httpClient.Do(req)
}

// ReadBody reads and closes resp.Body, failing with ErrResponseTooLarge when
// the body is bigger than the client limit.
func (c *ObservableClient) ReadBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if c.maxResponseSize <= 0 {
		return io.ReadAll(resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

func (c *ObservableClient) applyHeaders(req *http.Request, headers map[string]string) {
	for key, value := range headers {
		req.Header.Set(key, value)
	}
}

func (c *ObservableClient) buildRequestConfig(opts []RequestOption) *requestConfig {
	cfg := &requestConfig{headers: make(map[string]string)}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *ObservableClient) buildTransportChain(cfg *requestConfig) http.RoundTripper {
	transport := c.baseTransport

	if cfg.retryEnabled {
		transport = &retryTransport{
			base:            transport,
			maxAttempts:     cfg.retryMaxAttempts,
			initialBackoff:  cfg.retryBackoff,
			policy:          cfg.retryPolicy,
			maxBodySize:     c.maxBodySize,
			instrumentation: c.instrumentation,
		}
	}

	return &observableTransport{
		base:            transport,
		instrumentation: c.instrumentation,
		peerService:     cfg.peerService,
	}
}
