// Package api exposes the relay over HTTP: the peer call endpoints, the data
// endpoint peers call back into, and the code monitoring demo routes.
package api

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
	"github.com/tracekit-dev/trace-relay/pkg/payment"
	"github.com/tracekit-dev/trace-relay/pkg/relay"
	"github.com/tracekit-dev/trace-relay/pkg/users"
)

// Snapshotter records the variables visible at a labelled point.
type Snapshotter interface {
	Capture(ctx context.Context, label string, vars map[string]any)
}

type UserLister interface {
	List(ctx context.Context, limit int) ([]users.User, error)
}

type PaymentProcessor interface {
	Process(ctx context.Context, userID int64, amount float64) (payment.Payment, error)
}

// Handler serves every application route. Routes whose collaborator is not
// configured are not registered.
type Handler struct {
	o11y        observability.Observability
	coordinator *relay.Coordinator
	framework   string

	snapshots Snapshotter
	users     UserLister
	payments  PaymentProcessor

	intN      func(n int) int
	workDelay func() time.Duration
	now       func() time.Time
}

type Option func(*Handler)

// WithFramework sets the framework name reported by /api/data.
func WithFramework(name string) Option {
	return func(h *Handler) {
		if name != "" {
			h.framework = name
		}
	}
}

func WithSnapshotter(s Snapshotter) Option {
	return func(h *Handler) {
		h.snapshots = s
	}
}

func WithUsers(u UserLister) Option {
	return func(h *Handler) {
		h.users = u
	}
}

func WithPayments(p PaymentProcessor) Option {
	return func(h *Handler) {
		h.payments = p
	}
}

// WithRandom replaces the source of the demo's random values; intN must
// return a value in [0, n).
func WithRandom(intN func(n int) int) Option {
	return func(h *Handler) {
		if intN != nil {
			h.intN = intN
		}
	}
}

// WithWorkDelay replaces the simulated processing time of /api/data.
func WithWorkDelay(delay func() time.Duration) Option {
	return func(h *Handler) {
		if delay != nil {
			h.workDelay = delay
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func New(o11y observability.Observability, coordinator *relay.Coordinator, opts ...Option) (*Handler, error) {
	if o11y == nil {
		return nil, errors.New("api: observability cannot be nil")
	}
	if coordinator == nil {
		return nil, errors.New("api: coordinator cannot be nil")
	}

	h := &Handler{
		o11y:        o11y,
		coordinator: coordinator,
		framework:   "chi",
		intN:        rand.IntN,
		now:         time.Now,
	}
	h.workDelay = func() time.Duration {
		return time.Duration(10+h.intN(41)) * time.Millisecond
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the routes; it satisfies chiserver.Router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.index)
	r.Get("/api/data", h.data)
	for _, peer := range h.coordinator.Peers() {
		r.Get("/api/call-"+peer.Slug(), h.callPeer(peer.Name))
	}
	r.Get("/api/call-all", h.callAll)

	r.Get("/error-test", h.errorTest)
	if h.users != nil {
		r.Get("/test", h.monitoringTest)
	}
	if h.payments != nil {
		r.Get("/checkout", h.checkout)
	}
}

// between returns a random integer in [lo, hi].
func (h *Handler) between(lo, hi int) int {
	return lo + h.intN(hi-lo+1)
}

func (h *Handler) capture(ctx context.Context, label string, vars map[string]any) {
	if h.snapshots != nil {
		h.snapshots.Capture(ctx, label, vars)
	}
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339Nano)
}
