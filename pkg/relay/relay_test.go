package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit-dev/trace-relay/pkg/httpclient"
	"github.com/tracekit-dev/trace-relay/pkg/observability/fake"
)

const traceParent = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"

type fixture struct {
	o11y     *fake.Provider
	registry *prometheus.Registry
	caller   *Caller
}

func newFixture(t *testing.T, opts ...CallerOption) *fixture {
	t.Helper()

	o11y := fake.NewProvider()
	client, err := httpclient.NewObservableClient(o11y)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	caller, err := NewCaller(o11y, client, append([]CallerOption{WithRegisterer(registry)}, opts...)...)
	require.NoError(t, err)

	return &fixture{o11y: o11y, registry: registry, caller: caller}
}

func (f *fixture) coordinator(t *testing.T, peers ...PeerService) *Coordinator {
	t.Helper()
	c, err := NewCoordinator("laravel-test-app", peers, f.caller, f.o11y)
	require.NoError(t, err)
	return c
}

func dataPeer(t *testing.T, name string, status int, randomValue int) PeerService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"service":%q,"data":{"random_value":%d}}`, name, randomValue)
	}))
	t.Cleanup(srv.Close)
	return PeerService{Name: name, BaseURL: srv.URL}
}

func echoPeer(t *testing.T, name string) PeerService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		values, present := r.Header["Traceparent"]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"present":     present,
			"traceparent": values,
		})
	}))
	t.Cleanup(srv.Close)
	return PeerService{Name: name, BaseURL: srv.URL}
}

func slowPeer(t *testing.T, name string, delay time.Duration) PeerService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
			w.Write([]byte(`{}`))
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	return PeerService{Name: name, BaseURL: srv.URL}
}

func deadPeer(t *testing.T, name string) PeerService {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return PeerService{Name: name, BaseURL: "http://" + addr}
}

func TestFanOutFourPeersWithOneUnavailable(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t,
		dataPeer(t, "go-test-app", http.StatusOK, 11),
		dataPeer(t, "node-test-app", http.StatusServiceUnavailable, 22),
		dataPeer(t, "python-test-app", http.StatusOK, 33),
		dataPeer(t, "php-test-app", http.StatusOK, 44),
	)

	result := c.FanOut(context.Background(), traceParent)

	assert.Equal(t, "laravel-test-app", result.SourceService)
	require.Len(t, result.Outcomes, 4)

	wantNames := []string{"go-test-app", "node-test-app", "python-test-app", "php-test-app"}
	wantStatus := []int{200, 503, 200, 200}
	for i, out := range result.Outcomes {
		assert.Equal(t, wantNames[i], out.PeerName)
		assert.False(t, out.Failed(), out.PeerName)
		assert.Empty(t, out.Error)
		assert.Equal(t, wantStatus[i], out.Status())

		var body struct {
			Data struct {
				RandomValue int `json:"random_value"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(out.Body, &body))
		assert.Equal(t, (i+1)*11, body.Data.RandomValue)
	}
	assert.Equal(t, 0, result.Failures())
}

func TestFanOutUnreachablePeerDoesNotAffectOthers(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t,
		dataPeer(t, "go-test-app", http.StatusOK, 1),
		deadPeer(t, "node-test-app"),
		dataPeer(t, "python-test-app", http.StatusOK, 3),
	)

	result := c.FanOut(context.Background(), traceParent)
	require.Len(t, result.Outcomes, 3)

	failed := result.Outcomes[1]
	assert.True(t, failed.Failed())
	assert.Equal(t, ErrorKindConnection, failed.ErrorKind)
	assert.Contains(t, failed.Error, "connection to http://")
	assert.Nil(t, failed.StatusCode)
	assert.Nil(t, failed.Body)

	assert.Equal(t, 200, result.Outcomes[0].Status())
	assert.Equal(t, 200, result.Outcomes[2].Status())
	assert.Equal(t, 1, result.Failures())

	warnings := f.o11y.FakeLogger().EntriesWithMessage("peer call failed")
	require.Len(t, warnings, 1)
	peer, _ := warnings[0].Field("peer")
	assert.Equal(t, "node-test-app", peer)
}

func TestFanOutTotalFailureKeepsEveryPeer(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, deadPeer(t, "a"), deadPeer(t, "b"))

	result := c.FanOut(context.Background(), "")

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "a", result.Outcomes[0].PeerName)
	assert.Equal(t, "b", result.Outcomes[1].PeerName)
	assert.Equal(t, 2, result.Failures())
}

func TestFanOutEmptyPeerList(t *testing.T) {
	f := newFixture(t)
	result := f.coordinator(t).FanOut(context.Background(), traceParent)
	assert.Empty(t, result.Outcomes)
	assert.NotNil(t, result.Outcomes)
}

func TestFanOutOrderIgnoresCompletionOrder(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t,
		slowPeer(t, "slow", 150*time.Millisecond),
		dataPeer(t, "fast", http.StatusOK, 5),
	)

	result := c.FanOut(context.Background(), traceParent)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "slow", result.Outcomes[0].PeerName)
	assert.Equal(t, "fast", result.Outcomes[1].PeerName)
}

func TestFanOutTimeoutIsPerPeer(t *testing.T) {
	f := newFixture(t, WithCallTimeout(100*time.Millisecond))
	c := f.coordinator(t,
		slowPeer(t, "slow", 5*time.Second),
		dataPeer(t, "fast", http.StatusOK, 7),
	)

	start := time.Now()
	result := c.FanOut(context.Background(), traceParent)
	elapsed := time.Since(start)

	require.Len(t, result.Outcomes, 2)
	slow, fast := result.Outcomes[0], result.Outcomes[1]

	assert.True(t, slow.Failed())
	assert.Equal(t, ErrorKindTimeout, slow.ErrorKind)
	assert.Contains(t, slow.Error, "timed out after 100ms")

	assert.False(t, fast.Failed())
	assert.Equal(t, 200, fast.Status())
	assert.Less(t, elapsed, 2*time.Second)
}

func TestFanOutIgnoresInboundCancellation(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, dataPeer(t, "go-test-app", http.StatusOK, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := c.FanOut(ctx, traceParent)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 200, result.Outcomes[0].Status())
}

func TestCallForwardsTraceParentVerbatim(t *testing.T) {
	f := newFixture(t)
	peer := echoPeer(t, "echo")

	tests := []struct {
		name  string
		value string
		want  []any
	}{
		{name: "present", value: traceParent, want: []any{traceParent}},
		{name: "absent is sent empty", value: "", want: []any{""}},
		{name: "malformed is not fixed", value: "garbage-value", want: []any{"garbage-value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.caller.Call(context.Background(), peer, tt.value)
			require.False(t, out.Failed(), out.Error)

			var echoed struct {
				Present     bool  `json:"present"`
				TraceParent []any `json:"traceparent"`
			}
			require.NoError(t, json.Unmarshal(out.Body, &echoed))
			assert.True(t, echoed.Present)
			assert.Equal(t, tt.want, echoed.TraceParent)
		})
	}
}

func TestCallUpstreamErrorIsNotFailure(t *testing.T) {
	f := newFixture(t)
	out := f.caller.Call(context.Background(), dataPeer(t, "go-test-app", http.StatusInternalServerError, 0), traceParent)

	assert.False(t, out.Failed())
	assert.Equal(t, 500, out.Status())
	assert.Empty(t, out.Error)
	assert.NotNil(t, out.Body)
}

func TestCallInvalidJSONBodyIsNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := newFixture(t)
	out := f.caller.Call(context.Background(), PeerService{Name: "html", BaseURL: srv.URL + "/"}, traceParent)

	assert.False(t, out.Failed())
	assert.Equal(t, 200, out.Status())
	assert.Nil(t, out.Body)

	doc, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"peer_name":"html","status_code":200,"body":null}`, string(doc))
}

func TestCallRecordsTelemetry(t *testing.T) {
	f := newFixture(t)
	peer := dataPeer(t, "go-test-app", http.StatusServiceUnavailable, 1)
	dead := deadPeer(t, "node-test-app")

	f.caller.Call(context.Background(), peer, traceParent)
	f.caller.Call(context.Background(), dead, traceParent)

	calls := f.o11y.FakeMetrics().GetCounter("relay.peer.calls")
	require.NotNil(t, calls)
	assert.Equal(t, float64(2), calls.Sum())

	inFlight := f.o11y.FakeMetrics().GetUpDownCounter("relay.peer.calls.in_flight")
	require.NotNil(t, inFlight)
	assert.Equal(t, float64(0), inFlight.Sum())

	assert.Equal(t, float64(1), testutil.ToFloat64(newPromCounter(t, f, "go-test-app", "upstream_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(newPromCounter(t, f, "node-test-app", "connection")))

	spans := f.o11y.FakeTracer().SpansNamed("relay.call")
	require.Len(t, spans, 2)
	service, _ := spans[0].Attribute("peer.service")
	assert.Equal(t, "go-test-app", service)

	client := f.o11y.FakeTracer().SpansNamed("http.client.request")
	require.Len(t, client, 2)
	assert.Equal(t, "relay.call", client[0].Parent.Name)
}

func newPromCounter(t *testing.T, f *fixture, peer, result string) prometheus.Counter {
	t.Helper()
	return f.caller.metrics.promCalls.WithLabelValues(peer, result)
}

func TestCallOne(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t,
		dataPeer(t, "go-test-app", http.StatusOK, 42),
		dataPeer(t, "node-test-app", http.StatusOK, 43),
	)

	first, err := c.CallOne(context.Background(), "go-test-app", traceParent)
	require.NoError(t, err)
	second, err := c.CallOne(context.Background(), "go-test-app", traceParent)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "go-test-app", first.PeerName)

	_, err = c.CallOne(context.Background(), "ruby-test-app", traceParent)
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestCallWithTimeoutOverridesDefault(t *testing.T) {
	f := newFixture(t)
	out := f.caller.CallWithTimeout(context.Background(), slowPeer(t, "slow", 2*time.Second), traceParent, 50*time.Millisecond)

	assert.Equal(t, ErrorKindTimeout, out.ErrorKind)
	assert.Equal(t, DefaultCallTimeout, f.caller.Timeout())
}

func TestNewCoordinatorRejectsDuplicatePeers(t *testing.T) {
	f := newFixture(t)
	_, err := NewCoordinator("svc", []PeerService{{Name: "a"}, {Name: "a"}}, f.caller, f.o11y)
	assert.ErrorContains(t, err, "duplicate peer")
}

func TestCoordinatorPeersIsACopy(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, PeerService{Name: "a", BaseURL: "http://a"})

	peers := c.Peers()
	peers[0].Name = "changed"

	p, ok := c.Peer("a")
	assert.True(t, ok)
	assert.Equal(t, "http://a", p.BaseURL)
}

func TestBuildCopiesOutcomes(t *testing.T) {
	status := 200
	in := []CallOutcome{{PeerName: "a", StatusCode: &status}}

	result := Build("svc", in)
	in[0].PeerName = "mutated"

	assert.Equal(t, "a", result.Outcomes[0].PeerName)
	assert.Equal(t, "svc", result.SourceService)
}

func TestPeerServiceSlugAndURL(t *testing.T) {
	p := PeerService{Name: "go-test-app", BaseURL: "http://localhost:8082/"}
	assert.Equal(t, "go-test-app", p.Slug())
	assert.Equal(t, "http://localhost:8082/api/data", p.DataURL())

	p.Route = "go"
	assert.Equal(t, "go", p.Slug())
}

func TestRegisterCollectorReusesExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newCallMetrics(fake.NewMetrics(), reg)
	b := newCallMetrics(fake.NewMetrics(), reg)

	a.promCalls.WithLabelValues("p", "success").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(b.promCalls.WithLabelValues("p", "success")))
}

