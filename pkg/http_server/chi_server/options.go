package chiserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a function that configures a Server.
type Option func(*Server)

// WithConfig sets the full configuration for the server.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithAddress sets the listen address. A bare port gets a leading colon.
func WithAddress(addr string) Option {
	return func(s *Server) {
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		s.config.Address = addr
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.config.ReadTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.config.WriteTimeout = timeout
	}
}

// WithRequestTimeout bounds handler execution for every route.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.config.RequestTimeout = timeout
	}
}

// WithRouteTimeout overrides the request timeout for one exact path.
func WithRouteTimeout(path string, timeout time.Duration) Option {
	return func(s *Server) {
		s.routeTimeouts[path] = timeout
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.config.ShutdownTimeout = timeout
	}
}

// WithBodyLimit sets the maximum request body size in bytes.
func WithBodyLimit(limit int) Option {
	return func(s *Server) {
		s.config.BodyLimit = limit
	}
}

// WithCORS enables CORS with the specified comma separated origins.
func WithCORS(origins string) Option {
	return func(s *Server) {
		s.config.EnableCORS = true
		s.config.CORSOrigins = origins
	}
}

// WithMetrics exposes /metrics from the Prometheus default gatherer.
func WithMetrics() Option {
	return WithMetricsGatherer(prometheus.DefaultGatherer)
}

// WithMetricsGatherer exposes /metrics from gatherer.
func WithMetricsGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.config.EnableMetrics = true
		s.gatherer = gatherer
	}
}

// WithHealthCheck registers a named dependency check for /health and /ready.
func WithHealthCheck(name string, check HealthCheckFunc) Option {
	return func(s *Server) {
		s.config.EnableHealthChecks = true
		s.healthChecks[name] = check
	}
}

// WithoutHealthChecks disables /health, /ready and /live.
func WithoutHealthChecks() Option {
	return func(s *Server) {
		s.config.EnableHealthChecks = false
	}
}

func WithSecurityHeaders(headers SecurityHeaders) Option {
	return func(s *Server) {
		s.securityHeaders = headers
	}
}

// WithMiddleware adds a custom middleware, applied after the built-in ones.
func WithMiddleware(middleware func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.customMiddlewares = append(s.customMiddlewares, middleware)
	}
}

// WithShutdownHook runs fn during Shutdown, after the HTTP server stopped.
// Hooks run in reverse registration order.
func WithShutdownHook(name string, fn func(context.Context) error) Option {
	return func(s *Server) {
		s.shutdownHooks = append(s.shutdownHooks, shutdownHook{name: name, fn: fn})
	}
}

func WithServiceName(name string) Option {
	return func(s *Server) {
		s.config.ServiceName = name
	}
}

func WithServiceVersion(version string) Option {
	return func(s *Server) {
		s.config.ServiceVersion = version
	}
}

func WithEnvironment(env string) Option {
	return func(s *Server) {
		s.config.Environment = env
	}
}
