package otel

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.ServiceName = "  " },
			wantErr: ErrMissingServiceName,
		},
		{
			name: "insecure in production",
			mutate: func(c *Config) {
				c.Environment = "Production"
				c.Insecure = true
			},
			wantErr: ErrInsecureInProduction,
		},
		{
			name: "insecure in prod shorthand",
			mutate: func(c *Config) {
				c.Environment = "prod"
				c.Insecure = true
			},
			wantErr: ErrInsecureInProduction,
		},
		{
			name:   "insecure in development",
			mutate: func(c *Config) { c.Insecure = true },
		},
		{
			name:    "tls 1.0 rejected",
			mutate:  func(c *Config) { c.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS10} },
			wantErr: ErrWeakTLS,
		},
		{
			name:   "tls 1.3 accepted",
			mutate: func(c *Config) { c.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS13} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("laravel-test-app")
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseProtocol(t *testing.T) {
	assert.Equal(t, ProtocolHTTP, ParseProtocol("http"))
	assert.Equal(t, ProtocolHTTP, ParseProtocol("HTTP/protobuf"))
	assert.Equal(t, ProtocolGRPC, ParseProtocol("grpc"))
	assert.Equal(t, ProtocolGRPC, ParseProtocol(""))
	assert.Equal(t, ProtocolGRPC, ParseProtocol("carrier-pigeon"))
}

func TestProviderEndpointSplitsURLs(t *testing.T) {
	p := &Provider{config: &Config{OTLPEndpoint: "https://app.tracekit.dev/v1/traces"}}
	host, full := p.endpoint()
	assert.Equal(t, "app.tracekit.dev", host)
	assert.Equal(t, "https://app.tracekit.dev/v1/traces", full)

	p.config.OTLPEndpoint = "collector:4317"
	host, full = p.endpoint()
	assert.Equal(t, "collector:4317", host)
	assert.Empty(t, full)
}

func TestProviderSampler(t *testing.T) {
	cases := map[float64]string{
		1:   "ParentBased{root:AlwaysOnSampler",
		0:   "AlwaysOffSampler",
		0.5: "ParentBased{root:TraceIDRatioBased{0.5}",
	}
	for rate, prefix := range cases {
		p := &Provider{config: &Config{TraceSampleRate: rate}}
		assert.Contains(t, p.sampler().Description(), prefix)
	}
}
