package chiserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProblemDetail is an RFC 7807 problem document.
type ProblemDetail struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Status    int       `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// HTTPError is an error that carries the status to answer with.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %d - %s", e.Code, e.Message)
}

func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{Code: code, Message: message}
}

// StatusText is http.StatusText with a generic fallback.
func StatusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Error"
}

// WriteProblem writes an RFC 7807 response for the current request.
func WriteProblem(w http.ResponseWriter, r *http.Request, code int, detail string) {
	problem := ProblemDetail{
		Type:      fmt.Sprintf("https://httpstatuses.com/%d", code),
		Title:     StatusText(code),
		Status:    code,
		Detail:    detail,
		Instance:  r.URL.Path,
		Timestamp: time.Now().UTC(),
		RequestID: RequestID(r.Context()),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(problem)
}
