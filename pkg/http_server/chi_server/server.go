// Package chiserver is the HTTP server of the relay: a chi router with
// recovery, request IDs, body limits, timeouts, security headers, optional
// CORS, health endpoints and a Prometheus /metrics endpoint.
package chiserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// Shutdowner is implemented by observability providers that flush on exit.
type Shutdowner interface {
	Shutdown(context.Context) error
}

type shutdownHook struct {
	name string
	fn   func(context.Context) error
}

// Server represents an HTTP server using Chi router.
type Server struct {
	router            chi.Router
	httpServer        *http.Server
	config            Config
	observability     observability.Observability
	healthChecks      map[string]HealthCheckFunc
	routeTimeouts     map[string]time.Duration
	customMiddlewares []func(http.Handler) http.Handler
	securityHeaders   SecurityHeaders
	gatherer          prometheus.Gatherer
	shutdownHooks     []shutdownHook
	shutdownOnce      sync.Once
	shutdownErr       error
}

// New creates a new HTTP server with the given options.
func New(o11y observability.Observability, opts ...Option) (*Server, error) {
	if o11y == nil {
		return nil, fmt.Errorf("invalid server configuration: observability provider cannot be nil")
	}

	srv := &Server{
		config:          DefaultConfig(),
		observability:   o11y,
		healthChecks:    make(map[string]HealthCheckFunc),
		routeTimeouts:   make(map[string]time.Duration),
		securityHeaders: DefaultSecurityHeaders(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if err := srv.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	var origins []string
	if srv.config.EnableCORS {
		var err error
		if origins, err = ParseOrigins(srv.config.CORSOrigins); err != nil {
			return nil, fmt.Errorf("invalid CORS configuration: %w", err)
		}
	}

	srv.router = chi.NewRouter()
	srv.registerMiddlewares(origins)
	srv.registerSupportEndpoints()

	srv.httpServer = &http.Server{
		Addr:              srv.config.Address,
		Handler:           srv.router,
		ReadTimeout:       srv.config.ReadTimeout,
		ReadHeaderTimeout: srv.config.ReadTimeout,
		WriteTimeout:      srv.config.WriteTimeout,
		IdleTimeout:       srv.config.IdleTimeout,
	}

	return srv, nil
}

// RegisterRouters registers route handlers with the server.
func (s *Server) RegisterRouters(routers ...Router) *Server {
	for _, router := range routers {
		router.Register(s.router)
	}
	s.observability.Logger().Info(context.Background(), "routers registered",
		observability.Int("count", len(routers)),
	)
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerMiddlewares(origins []string) {
	s.router.Use(recoverMiddleware(s.observability))
	s.router.Use(requestIDMiddleware())
	s.router.Use(bodyLimitMiddleware(int64(s.config.BodyLimit)))
	s.router.Use(timeoutMiddleware(s.config.requestTimeout(), s.routeTimeouts))
	s.router.Use(securityHeadersMiddleware(s.securityHeaders))

	if s.config.EnableCORS {
		s.router.Use(corsMiddleware(origins))
		s.observability.Logger().Info(context.Background(), "CORS enabled",
			observability.String("origins", s.config.CORSOrigins))
	}

	for _, middleware := range s.customMiddlewares {
		s.router.Use(middleware)
	}
}

func (s *Server) registerSupportEndpoints() {
	if s.config.EnableHealthChecks {
		s.router.Get("/health", healthHandler(s.config, s.healthChecks, s.observability))
		s.router.Get("/ready", readyHandler(s.healthChecks))
		s.router.Get("/live", liveHandler())
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}
