package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/propagation"
	"github.com/tracekit-dev/trace-relay/pkg/relay"
	"github.com/tracekit-dev/trace-relay/pkg/responses"
)

type indexResponse struct {
	Service   string            `json:"service"`
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

type dataResponse struct {
	Service   string      `json:"service"`
	Timestamp string      `json:"timestamp"`
	Data      dataPayload `json:"data"`
}

type dataPayload struct {
	Framework   string `json:"framework"`
	GoVersion   string `json:"go_version"`
	RandomValue int    `json:"random_value"`
}

type peerResponse struct {
	Service  string          `json:"service"`
	Called   string          `json:"called"`
	Response json.RawMessage `json:"response"`
	Status   int             `json:"status"`
}

type peerError struct {
	Service string `json:"service"`
	Called  string `json:"called"`
	Error   string `json:"error"`
}

type chainResponse struct {
	Service string `json:"service"`
	Chain   []any  `json:"chain"`
}

type chainLink struct {
	Service  string          `json:"service"`
	Status   int             `json:"status"`
	Response json.RawMessage `json:"response"`
}

type chainError struct {
	Service string `json:"service"`
	Error   string `json:"error"`
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"GET /":             "This endpoint",
		"GET /health":       "Health check",
		"GET /error-test":   "Error test",
		"GET /api/data":     "Data endpoint (called by other services)",
		"GET /api/call-all": "Call all services",
	}
	if h.users != nil {
		endpoints["GET /test"] = "Code monitoring test"
	}
	if h.payments != nil {
		endpoints["GET /checkout"] = "Checkout simulation"
	}
	for _, peer := range h.coordinator.Peers() {
		endpoints["GET /api/call-"+peer.Slug()] = "Call " + peer.Name
	}

	responses.JSON(w, http.StatusOK, indexResponse{
		Service:   h.coordinator.Source(),
		Message:   "TraceKit relay test application",
		Endpoints: endpoints,
	})
}

// data is what peers call back into; it simulates 10-50ms of work.
func (h *Handler) data(w http.ResponseWriter, r *http.Request) {
	timer := time.NewTimer(h.workDelay())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.Context().Done():
		return
	}

	responses.JSON(w, http.StatusOK, dataResponse{
		Service:   h.coordinator.Source(),
		Timestamp: h.timestamp(),
		Data: dataPayload{
			Framework:   h.framework,
			GoVersion:   runtime.Version(),
			RandomValue: h.between(1, 100),
		},
	})
}

func (h *Handler) callPeer(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.coordinator.CallOne(r.Context(), name, propagation.FromRequest(r))
		if err != nil {
			responses.Error(w, http.StatusNotFound, err.Error())
			return
		}

		if out.Failed() {
			responses.JSON(w, http.StatusInternalServerError, peerError{
				Service: h.coordinator.Source(),
				Called:  name,
				Error:   out.Error,
			})
			return
		}

		responses.JSON(w, http.StatusOK, peerResponse{
			Service:  h.coordinator.Source(),
			Called:   name,
			Response: out.Body,
			Status:   out.Status(),
		})
	}
}

// callAll always answers 200; per-peer failures are chain entries.
func (h *Handler) callAll(w http.ResponseWriter, r *http.Request) {
	result := h.coordinator.FanOut(r.Context(), propagation.FromRequest(r))
	responses.JSON(w, http.StatusOK, chainResponse{
		Service: result.SourceService,
		Chain:   chain(result.Outcomes),
	})
}

func chain(outcomes []relay.CallOutcome) []any {
	links := make([]any, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Failed() {
			links = append(links, chainError{Service: o.PeerName, Error: o.Error})
			continue
		}
		links = append(links, chainLink{Service: o.PeerName, Status: o.Status(), Response: o.Body})
	}
	return links
}
