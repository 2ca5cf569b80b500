package httpclient

import (
	"context"
	"errors"
	"net/http"
)

// RetryPolicy reports whether a finished attempt should be retried.
type RetryPolicy func(err error, resp *http.Response) bool

// DefaultRetryPolicy retries network errors and 5xx responses.
// Context errors and 4xx responses are final.
var DefaultRetryPolicy RetryPolicy = func(err error, resp *http.Response) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

// IdempotentRetryPolicy is DefaultRetryPolicy plus 429 Too Many Requests.
var IdempotentRetryPolicy RetryPolicy = func(err error, resp *http.Response) bool {
	if DefaultRetryPolicy(err, resp) {
		return true
	}
	return err == nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

// NoRetryPolicy never retries.
var NoRetryPolicy RetryPolicy = func(error, *http.Response) bool {
	return false
}
