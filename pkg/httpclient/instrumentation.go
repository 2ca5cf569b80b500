package httpclient

import (
	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// instrumentation is created once per client so instruments are not redefined.
type instrumentation struct {
	tracer observability.Tracer

	requestCounter   observability.Counter
	errorCounter     observability.Counter
	latencyHistogram observability.Histogram
}

// newInstrumentation follows the OpenTelemetry HTTP client naming:
// http.client.request.count, http.client.request.errors and
// http.client.request.duration (milliseconds).
func newInstrumentation(tracer observability.Tracer, metrics observability.Metrics) *instrumentation {
	return &instrumentation{
		tracer: tracer,

		requestCounter: metrics.Counter(
			"http.client.request.count",
			"Total number of HTTP client requests",
			"{request}",
		),

		errorCounter: metrics.Counter(
			"http.client.request.errors",
			"Total number of HTTP client request errors",
			"{error}",
		),

		latencyHistogram: metrics.Histogram(
			"http.client.request.duration",
			"Duration of HTTP client requests",
			"ms",
		),
	}
}
