package relay

import (
	"encoding/json"
)

// ErrorKind classifies a failed call. It is kept out of the JSON documents.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindConnection ErrorKind = "connection"
	ErrorKindTimeout    ErrorKind = "timeout"
)

// CallOutcome is the result of calling one peer. Either StatusCode (and Body)
// or Error is set, never both.
type CallOutcome struct {
	PeerName   string          `json:"peer_name"`
	StatusCode *int            `json:"status_code,omitempty"`
	Body       json.RawMessage `json:"body"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  ErrorKind       `json:"-"`
}

func responseOutcome(peer string, status int, body []byte) CallOutcome {
	out := CallOutcome{PeerName: peer, StatusCode: &status}
	if len(body) > 0 && json.Valid(body) {
		out.Body = json.RawMessage(body)
	}
	return out
}

func failedOutcome(peer string, kind ErrorKind, msg string) CallOutcome {
	return CallOutcome{PeerName: peer, Error: msg, ErrorKind: kind}
}

// Failed reports whether the peer could not be reached or did not answer in time.
// An upstream error status is not a failure.
func (o CallOutcome) Failed() bool {
	return o.StatusCode == nil
}

// Status returns the received status code, or 0 when the call failed.
func (o CallOutcome) Status() int {
	if o.StatusCode == nil {
		return 0
	}
	return *o.StatusCode
}

// result is the metric label for the outcome.
func (o CallOutcome) result() string {
	switch {
	case o.Failed():
		return string(o.ErrorKind)
	case o.Status() >= 200 && o.Status() < 300:
		return "success"
	default:
		return "upstream_error"
	}
}
