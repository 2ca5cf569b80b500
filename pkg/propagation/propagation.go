// Package propagation reads the W3C trace context of inbound requests.
//
// The relay treats the traceparent value as opaque: it is read once and
// handed to peer calls unchanged. The server-span middleware is separate and
// only feeds the relay's own telemetry.
package propagation

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	otelpropagation "go.opentelemetry.io/otel/propagation"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// HeaderTraceParent is the W3C trace context header name.
const HeaderTraceParent = "traceparent"

// Extract returns the traceparent value of h, or "" when absent.
// The value is returned byte-for-byte; it is never parsed or validated.
func Extract(h http.Header) string {
	if h == nil {
		return ""
	}
	return h.Get(HeaderTraceParent)
}

// FromRequest is Extract applied to r's headers.
func FromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return Extract(r.Header)
}

// Middleware starts a server span per request, parented on the inbound trace
// context when one is present. Paths listed in ignored are served untraced.
func Middleware(o11y observability.Observability, ignored ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(ignored))
	for _, p := range ignored {
		skip[strings.TrimRight(p, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[strings.TrimRight(r.URL.Path, "/")]; ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), otelpropagation.HeaderCarrier(r.Header))
			ctx, span := o11y.Tracer().Start(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				observability.WithSpanKind(observability.SpanKindServer),
				observability.WithAttributes(
					observability.String("http.method", r.Method),
					observability.String("http.target", r.URL.Path),
					observability.Bool("trace.parent_present", Extract(r.Header) != ""),
				),
			)
			defer span.End()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					span.SetAttributes(observability.String("http.route", pattern))
				}
			}
			span.SetAttributes(observability.Int("http.status_code", sw.status))
			if sw.status >= http.StatusInternalServerError {
				span.SetStatus(observability.StatusCodeError, strconv.Itoa(sw.status))
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
