package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/httpclient"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

const (
	HeaderAPIKey    = "X-API-Key"
	breakpointsPath = "/v1/breakpoints"

	pollAttempts = 3
	pollBackoff  = 200 * time.Millisecond
)

var ErrPollerConfig = errors.New("snapshot: invalid poller configuration")

// Breakpoint is one entry of the breakpoints document.
type Breakpoint struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Enabled bool   `json:"enabled"`
}

type breakpointsResponse struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Poller fetches the armed breakpoints of a service and stores their labels.
type Poller struct {
	client      *httpclient.ObservableClient
	o11y        observability.Observability
	breakpoints *Breakpoints
	url         string
	apiKey      string
}

// NewPoller builds a Poller for GET {endpoint}/v1/breakpoints?service={service}.
func NewPoller(
	o11y observability.Observability,
	client *httpclient.ObservableClient,
	breakpoints *Breakpoints,
	endpoint, service, apiKey string,
) (*Poller, error) {
	if client == nil || breakpoints == nil {
		return nil, fmt.Errorf("%w: client and breakpoints are required", ErrPollerConfig)
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: endpoint %q", ErrPollerConfig, endpoint)
	}
	if service == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrPollerConfig)
	}

	base.Path += breakpointsPath
	base.RawQuery = url.Values{"service": {service}}.Encode()

	return &Poller{
		client:      client,
		o11y:        o11y,
		breakpoints: breakpoints,
		url:         base.String(),
		apiKey:      apiKey,
	}, nil
}

// URL is the breakpoints URL the poller requests.
func (p *Poller) URL() string {
	return p.url
}

// Poll fetches the breakpoints once. On failure the previous set is kept.
// It has the signature of a cron job.
func (p *Poller) Poll(ctx context.Context) error {
	opts := []httpclient.RequestOption{
		httpclient.WithPeerService("tracekit"),
		httpclient.WithRetry(pollAttempts, pollBackoff, httpclient.DefaultRetryPolicy),
	}
	if p.apiKey != "" {
		opts = append(opts, httpclient.WithHeader(HeaderAPIKey, p.apiKey))
	}

	doc, status, err := httpclient.GetJSON[breakpointsResponse](ctx, p.client, p.url, opts...)
	if err != nil {
		return fmt.Errorf("snapshot: poll breakpoints (status %d): %w", status, err)
	}

	labels := make([]string, 0, len(doc.Breakpoints))
	for _, bp := range doc.Breakpoints {
		if bp.Enabled && bp.Label != "" {
			labels = append(labels, bp.Label)
		}
	}

	if p.breakpoints.Set(labels) {
		p.o11y.Logger().Info(ctx, "breakpoints updated",
			observability.Int("count", len(labels)),
			observability.String("labels", strings.Join(p.breakpoints.Labels(), ",")),
		)
	}
	return nil
}
