package chiserver

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

type contextKey string

const (
	requestIDKey    contextKey = "requestID"
	HeaderRequestID            = "X-Request-ID"
)

// RequestID returns the request ID stored by the request ID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// recoverMiddleware turns a handler panic into a 500 problem document.
func recoverMiddleware(o11y observability.Observability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)

			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				requestID := RequestID(r.Context())
				o11y.Logger().Error(r.Context(), "panic recovered",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
					observability.String("remote_addr", r.RemoteAddr),
					observability.String("request_id", requestID),
					observability.String("stack", string(debug.Stack())),
					observability.Any("panic", recovered),
				)

				if rw.HeaderWritten() {
					o11y.Logger().Warn(r.Context(), "cannot send panic error response: headers already sent",
						observability.String("request_id", requestID),
					)
					return
				}
				WriteProblem(w, r, http.StatusInternalServerError, "Internal server error")
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// requestIDMiddleware keeps the caller's X-Request-ID or generates one.
func requestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}

			w.Header().Set(HeaderRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
		})
	}
}

// timeoutMiddleware answers 408 when the handler does not finish in time.
// Handlers must honor context cancellation; the relay's peer calls carry their
// own deadlines and are not cut short by this one.
func timeoutMiddleware(globalTimeout time.Duration, routeTimeouts map[string]time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timeout := globalTimeout
			if routeTimeout, ok := routeTimeouts[r.URL.Path]; ok {
				timeout = routeTimeout
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w, header: make(http.Header)}
			done := make(chan struct{})
			panicked := make(chan any, 1)

			go func() {
				defer func() {
					if recovered := recover(); recovered != nil {
						panicked <- recovered
						return
					}
					close(done)
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
				tw.mu.Lock()
				if !tw.written {
					tw.copyHeader()
				}
				tw.mu.Unlock()
			case p := <-panicked:
				// re-raised on the request goroutine so recoverMiddleware sees it
				panic(p)
			case <-ctx.Done():
				tw.mu.Lock()
				if !tw.written {
					tw.written = true
					tw.timedOut = true
					WriteProblem(w, r, http.StatusRequestTimeout, "Request timeout exceeded")
				} else {
					tw.timedOut = true
				}
				tw.mu.Unlock()

				cleanup := time.NewTimer(100 * time.Millisecond)
				defer cleanup.Stop()
				select {
				case <-done:
				case <-panicked:
				case <-cleanup.C:
				}
			}
		})
	}
}

// timeoutWriter buffers headers in its own map so the handler goroutine never
// touches the underlying header map after the timeout response is written.
type timeoutWriter struct {
	http.ResponseWriter
	header   http.Header
	mu       sync.Mutex
	written  bool
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.timedOut || tw.written {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.written {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	tw.written = true
	tw.copyHeader()
	tw.ResponseWriter.WriteHeader(code)
}

// copyHeader must be called with mu held.
func (tw *timeoutWriter) copyHeader() {
	dst := tw.ResponseWriter.Header()
	for k, vv := range tw.header {
		dst[k] = vv
	}
}

func securityHeadersMiddleware(headers SecurityHeaders) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers.Apply(w)
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware only answers cross-origin requests from allowed origins.
// Credentials are never allowed together with a wildcard.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !IsOriginAllowed(origin, allowedOrigins) {
				WriteProblem(w, r, http.StatusForbidden, "origin not allowed")
				return
			}

			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID, traceparent, tracestate")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bodyLimitMiddleware always wraps the body in MaxBytesReader; Content-Length
// is only used to reject early.
func bodyLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			if r.ContentLength > maxBytes {
				WriteProblem(w, r, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytes))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
