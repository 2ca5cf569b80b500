package chiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HealthCheckFunc reports a dependency failure as an error. The context may carry
// a deadline that implementations must respect.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the /health document.
type HealthStatus struct {
	Status      string                 `json:"status"`
	Service     string                 `json:"service"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
	Timestamp   time.Time              `json:"timestamp"`
	Checks      map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ExecuteHealthChecks runs checks in parallel, at most maxConcurrent at a time,
// and reports whether any failed or did not finish within timeout.
func ExecuteHealthChecks(
	ctx context.Context,
	checks map[string]HealthCheckFunc,
	timeout time.Duration,
	maxConcurrent int,
) (map[string]CheckResult, bool) {
	if len(checks) == 0 {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	semaphore := make(chan struct{}, maxConcurrent)
	results := make(map[string]CheckResult, len(checks))
	hasErrors := false

	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results[name] = CheckResult{Status: statusUnhealthy, Error: err.Error()}
			hasErrors = true
			return
		}
		results[name] = CheckResult{Status: statusHealthy}
	}

	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				record(name, context.DeadlineExceeded)
				return
			}

			record(name, check(ctx))
		}()
	}
	wg.Wait()

	return results, hasErrors
}

func healthHandler(config Config, checks map[string]HealthCheckFunc, o11y observability.Observability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const (
			healthCheckTimeout = 5 * time.Second
			maxConcurrent      = 10
		)

		results, hasErrors := ExecuteHealthChecks(r.Context(), checks, healthCheckTimeout, maxConcurrent)

		status, code := statusHealthy, http.StatusOK
		if hasErrors {
			status, code = statusUnhealthy, http.StatusServiceUnavailable
			for name, result := range results {
				if result.Status == statusUnhealthy {
					o11y.Logger().Warn(r.Context(), "health check failed",
						observability.String("check", name),
						observability.String("error", result.Error),
					)
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(HealthStatus{
			Status:      status,
			Service:     config.ServiceName,
			Version:     config.ServiceVersion,
			Environment: config.Environment,
			Timestamp:   time.Now().UTC(),
			Checks:      results,
		})
	}
}

func readyHandler(checks map[string]HealthCheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, hasErrors := ExecuteHealthChecks(r.Context(), checks, 3*time.Second, 10); hasErrors {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Service Unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func liveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
