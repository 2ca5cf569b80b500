package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit-dev/trace-relay/pkg/api"
	"github.com/tracekit-dev/trace-relay/pkg/config"
	"github.com/tracekit-dev/trace-relay/pkg/observability/fake"
	"github.com/tracekit-dev/trace-relay/pkg/relay"
)

func TestServerTimeoutsStayAbovePeerTimeout(t *testing.T) {
	tests := []struct {
		name        string
		request     time.Duration
		peer        time.Duration
		wantRequest time.Duration
	}{
		{name: "configured floor wins", request: 30 * time.Second, peer: 5 * time.Second, wantRequest: 30 * time.Second},
		{name: "raised for a long peer timeout", request: 30 * time.Second, peer: 2 * time.Minute, wantRequest: 2*time.Minute + handlerMargin},
		{name: "raised above a short floor", request: 100 * time.Millisecond, peer: time.Second, wantRequest: time.Second + handlerMargin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Service.RequestTimeout = tt.request
			cfg.Relay.Timeout = tt.peer

			request, write := serverTimeouts(cfg)
			assert.Equal(t, tt.wantRequest, request)
			assert.Greater(t, request, tt.peer)
			assert.Greater(t, write, request)
		})
	}
}

func TestCallAllOutlivesConfiguredRequestTimeout(t *testing.T) {
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"slow-app"}`))
	}))
	defer peer.Close()

	cfg := config.Default()
	cfg.Service.RequestTimeout = 100 * time.Millisecond
	cfg.Relay.Timeout = time.Second
	cfg.Relay.Peers = config.Peers{{Name: "slow-app", BaseURL: peer.URL, Route: "slow"}}
	require.NoError(t, cfg.Validate())

	o11y := fake.NewProvider()
	client, err := newPeerClient(o11y, cfg)
	require.NoError(t, err)
	caller, err := relay.NewCaller(o11y, client,
		relay.WithCallTimeout(cfg.Relay.Timeout),
		relay.WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	coordinator, err := relay.NewCoordinator(cfg.Service.Name, cfg.Relay.Peers, caller, o11y)
	require.NoError(t, err)
	handler, err := api.New(o11y, coordinator)
	require.NoError(t, err)

	server, err := newServer(o11y, cfg, handler)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/call-all", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Service string `json:"service"`
		Chain   []struct {
			Service  string          `json:"service"`
			Status   int             `json:"status"`
			Response json.RawMessage `json:"response"`
		} `json:"chain"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	require.Len(t, doc.Chain, 1)
	assert.Equal(t, "slow-app", doc.Chain[0].Service)
	assert.Equal(t, http.StatusOK, doc.Chain[0].Status)
	assert.JSONEq(t, `{"service":"slow-app"}`, string(doc.Chain[0].Response))
}

func TestServeReleasesResourcesWhenStartupFails(t *testing.T) {
	var polls atomic.Int32
	tracekit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"breakpoints":[]}`))
	}))
	defer tracekit.Close()

	cfg := config.Default()
	cfg.Service.Version = " "
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "relay.db") + "?_foreign_keys=on"
	cfg.CodeMonitoring.Enabled = true
	cfg.CodeMonitoring.PollInterval = 1
	cfg.CodeMonitoring.Endpoint = tracekit.URL
	require.NoError(t, cfg.Validate())

	err := serve(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to create server")

	// the breakpoint worker was stopped before serve returned
	seen := polls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, seen, polls.Load())
}

func TestCleanupRunsInReverseOrder(t *testing.T) {
	var order []string
	var undo cleanup
	undo.add(func(context.Context) error { order = append(order, "database"); return nil })
	undo.add(func(context.Context) error { order = append(order, "events"); return errors.New("broker gone") })
	undo.add(func(context.Context) error { order = append(order, "breakpoint_poller"); return nil })

	err := undo.run(context.Background())

	assert.Equal(t, []string{"breakpoint_poller", "events", "database"}, order)
	assert.ErrorContains(t, err, "broker gone")
}
