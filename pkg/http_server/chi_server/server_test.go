package chiserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit-dev/trace-relay/pkg/observability/fake"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *fake.Provider) {
	t.Helper()
	o11y := fake.NewProvider()
	srv, err := New(o11y, append([]Option{WithServiceName("trace-relay"), WithServiceVersion("1.0.0")}, opts...)...)
	require.NoError(t, err)
	return srv, o11y
}

func serve(srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(fake.NewProvider(), WithServiceName(""))
	assert.ErrorContains(t, err, "service name is required")

	_, err = New(fake.NewProvider(), WithCORS("*,https://a.dev"))
	assert.ErrorContains(t, err, "wildcard")

	_, err = New(nil)
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, WithHealthCheck("database", func(ctx context.Context) error { return nil }))

	rec := serve(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "trace-relay", health.Service)
	assert.Equal(t, "healthy", health.Checks["database"].Status)
	assert.WithinDuration(t, time.Now(), health.Timestamp, 5*time.Second)

	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/ready", "").Code)
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	srv, o11y := newTestServer(t, WithHealthCheck("database", func(ctx context.Context) error {
		return errors.New("database is locked")
	}))

	rec := serve(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
	assert.Len(t, o11y.FakeLogger().EntriesWithMessage("health check failed"), 1)

	assert.Equal(t, http.StatusServiceUnavailable, serve(srv, http.MethodGet, "/ready", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	srv, _ := newTestServer(t, WithMetricsGatherer(registry))

	rec := serve(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_test_total 1")
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	var seen string
	srv.RegisterRouters(RouterFunc(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			seen = RequestID(r.Context())
		})
	}))

	rec := serve(srv, http.MethodGet, "/ping", "")
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", seen)
}

func TestRecoverMiddlewareWritesProblem(t *testing.T) {
	srv, o11y := newTestServer(t)
	srv.RegisterRouters(RouterFunc(func(r chi.Router) {
		r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
			panic("kaboom")
		})
	}))

	rec := serve(srv, http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, "Internal Server Error", problem.Title)
	assert.Equal(t, "/boom", problem.Instance)
	assert.NotEmpty(t, problem.RequestID)

	entries := o11y.FakeLogger().EntriesWithMessage("panic recovered")
	require.Len(t, entries, 1)
	p, _ := entries[0].Field("panic")
	assert.Equal(t, "kaboom", p)
}

func TestTimeoutMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, WithRouteTimeout("/slow", 20*time.Millisecond))
	srv.RegisterRouters(RouterFunc(func(r chi.Router) {
		r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
	}))

	rec := serve(srv, http.MethodGet, "/slow", "")
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
}

func TestTimeoutMiddlewareKeepsHandlerHeadersSeparate(t *testing.T) {
	srv, _ := newTestServer(t, WithRouteTimeout("/busy", 20*time.Millisecond))
	stopped := make(chan struct{})
	srv.RegisterRouters(RouterFunc(func(r chi.Router) {
		r.Get("/busy", func(w http.ResponseWriter, r *http.Request) {
			defer close(stopped)
			deadline := time.Now().Add(60 * time.Millisecond)
			for i := 0; time.Now().Before(deadline); i++ {
				w.Header().Set("X-Attempt", strconv.Itoa(i))
				w.Header().Set("Content-Type", "application/json")
			}
			_, err := w.Write([]byte(`{"late":true}`))
			assert.ErrorIs(t, err, http.ErrHandlerTimeout)
		})
	}))

	rec := serve(srv, http.MethodGet, "/busy", "")
	<-stopped

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Attempt"))
	assert.NotContains(t, rec.Body.String(), "late")
}

func TestTimeoutMiddlewareForwardsHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.RegisterRouters(RouterFunc(func(r chi.Router) {
		r.Get("/written", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Peer", "go-test-app")
			w.WriteHeader(http.StatusAccepted)
		})
		r.Get("/silent", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Peer", "node-test-app")
		})
	}))

	rec := serve(srv, http.MethodGet, "/written", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "go-test-app", rec.Header().Get("X-Peer"))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = serve(srv, http.MethodGet, "/silent", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "node-test-app", rec.Header().Get("X-Peer"))
}

func TestBodyLimitMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, WithBodyLimit(8))
	srv.RegisterRouters(RouterFunc(func(r chi.Router) {
		r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {})
	}))

	rec := serve(srv, http.MethodPost, "/upload", "more than eight bytes")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, WithCORS("https://app.tracekit.dev"))
	srv.RegisterRouters(RouterFunc(func(r chi.Router) {
		r.Get("/api/data", func(w http.ResponseWriter, r *http.Request) {})
	}))

	allowed := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	allowed.Header.Set("Origin", "https://app.tracekit.dev")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, allowed)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.tracekit.dev", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "traceparent")

	denied := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	denied.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, denied)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCustomMiddlewareRuns(t *testing.T) {
	var calls atomic.Int32
	srv, _ := newTestServer(t, WithMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			next.ServeHTTP(w, r)
		})
	}))

	serve(srv, http.MethodGet, "/live", "")
	assert.Equal(t, int32(1), calls.Load())
}

func TestServeAndShutdown(t *testing.T) {
	var order []string
	srv, o11y := newTestServer(t,
		WithShutdownHook("database", func(ctx context.Context) error {
			order = append(order, "database")
			return nil
		}),
		WithShutdownHook("worker", func(ctx context.Context) error {
			order = append(order, "worker")
			return errors.New("worker stuck")
		}),
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/live")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "worker stuck")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.Equal(t, []string{"worker", "database"}, order)
	assert.Len(t, o11y.FakeLogger().EntriesWithMessage("graceful shutdown completed"), 1)
	assert.ErrorContains(t, srv.Shutdown(context.Background()), "worker stuck", "shutdown is idempotent")
}

func TestExecuteHealthChecks(t *testing.T) {
	results, failed := ExecuteHealthChecks(context.Background(), nil, time.Second, 2)
	assert.Nil(t, results)
	assert.False(t, failed)

	results, failed = ExecuteHealthChecks(context.Background(), map[string]HealthCheckFunc{
		"fast": func(ctx context.Context) error { return nil },
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, 30*time.Millisecond, 2)

	assert.True(t, failed)
	assert.Equal(t, "healthy", results["fast"].Status)
	assert.Equal(t, "unhealthy", results["slow"].Status)
}

func TestParseOrigins(t *testing.T) {
	origins, err := ParseOrigins(" https://a.dev , ,https://b.dev ")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.dev", "https://b.dev"}, origins)

	origins, err = ParseOrigins("")
	require.NoError(t, err)
	assert.Empty(t, origins)

	assert.True(t, IsOriginAllowed("https://x.dev", []string{"*"}))
	assert.False(t, IsOriginAllowed("https://x.dev", nil))
}

func TestSecurityHeadersCopyOnWrite(t *testing.T) {
	base := DefaultSecurityHeaders()
	custom := base.With("X-Frame-Options", "SAMEORIGIN").Without("Cache-Control")

	rec := httptest.NewRecorder()
	base.Apply(rec)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	custom.Apply(rec)
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.BodyLimit = 0
	assert.ErrorContains(t, cfg.Validate(), "body limit")

	cfg = DefaultConfig()
	cfg.RequestTimeout = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "request timeout")

	cfg = DefaultConfig()
	assert.Equal(t, cfg.ReadTimeout, cfg.requestTimeout())
	cfg.RequestTimeout = time.Second
	assert.Equal(t, time.Second, cfg.requestTimeout())
}
