package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit-dev/trace-relay/pkg/relay"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Relay.Peers, 4)
	assert.Equal(t, "go-test-app", cfg.Relay.Peers[0].Name)
	assert.Equal(t, "http://localhost:8082", cfg.Relay.Peers[0].BaseURL)
	assert.Equal(t, "php", cfg.Relay.Peers[3].Slug())
	assert.Equal(t, 5*time.Second, cfg.Relay.Timeout)
	assert.Equal(t, 30*time.Second, cfg.CodeMonitoring.PollIntervalDuration())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "trace-relay", cfg.Service.Name)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeFile(t, `
service:
  name: laravel-test-app
  address: ":9000"
relay:
  timeout: 2s
  peers:
    - name: go-test-app
      base_url: http://go:8082
      route: go
    - name: rust-test-app
      base_url: http://rust:8090
code_monitoring:
  enabled: true
  poll_interval: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "laravel-test-app", cfg.Service.Name)
	assert.Equal(t, ":9000", cfg.Service.Address)
	assert.Equal(t, 2*time.Second, cfg.Relay.Timeout)
	assert.Equal(t, Peers{
		{Name: "go-test-app", BaseURL: "http://go:8082", Route: "go"},
		{Name: "rust-test-app", BaseURL: "http://rust:8090"},
	}, cfg.Relay.Peers)
	assert.True(t, cfg.CodeMonitoring.Enabled)
	assert.Equal(t, 5, cfg.CodeMonitoring.PollInterval)
	assert.Equal(t, 3, cfg.CodeMonitoring.MaxVariableDepth, "unset keys keep defaults")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "service:\n  name: from-file\n")

	t.Setenv("TRACEKIT_SERVICE_NAME", "from-env")
	t.Setenv("RELAY_TIMEOUT", "750ms")
	t.Setenv("PEERS", "go:go-test-app=http://go:8082, node-test-app=http://node:8084")
	t.Setenv("TRACEKIT_HEADERS", "X-API-Key:secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Service.Name)
	assert.Equal(t, 750*time.Millisecond, cfg.Relay.Timeout)
	assert.Equal(t, Peers{
		{Name: "go-test-app", BaseURL: "http://go:8082", Route: "go"},
		{Name: "node-test-app", BaseURL: "http://node:8084"},
	}, cfg.Relay.Peers)
	assert.Equal(t, map[string]string{"X-API-Key": "secret"}, cfg.Telemetry.Headers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config: read")

	_, err = Load(writeFile(t, "service: [not, a, map"))
	assert.ErrorContains(t, err, "config: parse")

	t.Setenv("PEERS", "no-equals-sign")
	_, err = Load("")
	assert.ErrorContains(t, err, "is not name=url")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		wantMsg string
	}{
		{name: "no peers", mutate: func(c *Config) { c.Relay.Peers = nil }, wantErr: ErrNoPeers},
		{
			name:    "duplicate peer name",
			mutate:  func(c *Config) { c.Relay.Peers = append(c.Relay.Peers, relay.PeerService{Name: "go-test-app", BaseURL: "http://x", Route: "x"}) },
			wantErr: ErrInvalidPeer,
		},
		{
			name:    "duplicate route",
			mutate:  func(c *Config) { c.Relay.Peers[1].Route = "go" },
			wantErr: ErrInvalidPeer,
		},
		{
			name:    "route all is reserved",
			mutate:  func(c *Config) { c.Relay.Peers[0].Route = "all" },
			wantErr: ErrInvalidPeer,
		},
		{
			name:    "route with slash",
			mutate:  func(c *Config) { c.Relay.Peers[0].Route = "go/v2" },
			wantErr: ErrInvalidPeer,
		},
		{
			name:    "base url without scheme",
			mutate:  func(c *Config) { c.Relay.Peers[0].BaseURL = "localhost:8082" },
			wantErr: ErrInvalidPeer,
		},
		{
			name:    "poll interval outside supported set",
			mutate:  func(c *Config) { c.CodeMonitoring.Enabled = true; c.CodeMonitoring.PollInterval = 7 },
			wantErr: ErrInvalidPollInterval,
		},
		{
			name:   "poll interval ignored when disabled",
			mutate: func(c *Config) { c.CodeMonitoring.PollInterval = 7 },
		},
		{name: "zero timeout", mutate: func(c *Config) { c.Relay.Timeout = 0 }, wantMsg: "relay.timeout"},
		{name: "zero request timeout", mutate: func(c *Config) { c.Service.RequestTimeout = 0 }, wantMsg: "service.request_timeout"},
		{name: "peer timeout above request timeout", mutate: func(c *Config) { c.Relay.Timeout = 2 * time.Minute }},
		{name: "sample rate", mutate: func(c *Config) { c.Telemetry.SampleRate = 1.5 }, wantMsg: "sample_rate"},
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantMsg: "database.driver"},
		{name: "events without topic", mutate: func(c *Config) { c.Events.Enabled = true; c.Events.Topic = "" }, wantMsg: "events.topic"},
		{name: "empty service name", mutate: func(c *Config) { c.Service.Name = " " }, wantMsg: "service.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantMsg != "":
				assert.ErrorContains(t, err, tt.wantMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestPeersUnmarshalText(t *testing.T) {
	var p Peers
	require.NoError(t, p.UnmarshalText([]byte("a=http://a:1,,b:bee=https://b")))
	assert.Equal(t, Peers{
		{Name: "a", BaseURL: "http://a:1"},
		{Name: "bee", BaseURL: "https://b", Route: "b"},
	}, p)
}
