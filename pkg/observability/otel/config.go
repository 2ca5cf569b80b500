package otel

import (
	"crypto/tls"
	"errors"
	"strings"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// OTLPProtocol selects the exporter transport.
type OTLPProtocol string

const (
	ProtocolGRPC OTLPProtocol = "grpc"
	ProtocolHTTP OTLPProtocol = "http"
)

var (
	ErrInsecureInProduction = errors.New("insecure OTLP connections are not allowed in production")
	ErrWeakTLS              = errors.New("OTLP TLS minimum version must be 1.2 or higher")
	ErrMissingServiceName   = errors.New("service name is required")
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is host:port for grpc, or host:port[/path] for http.
	OTLPEndpoint string
	OTLPProtocol OTLPProtocol
	// Headers are sent with every export request, e.g. the collector API key.
	Headers map[string]string

	Insecure  bool
	TLSConfig *tls.Config

	// TraceSampleRate is clamped to [0, 1].
	TraceSampleRate float64

	LogLevel  observability.LogLevel
	LogFormat observability.LogFormat

	ResourceAttributes map[string]string
}

func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:     serviceName,
		ServiceVersion:  "dev",
		Environment:     "development",
		OTLPEndpoint:    "localhost:4317",
		OTLPProtocol:    ProtocolGRPC,
		TraceSampleRate: 1.0,
		LogLevel:        observability.LogLevelInfo,
		LogFormat:       observability.LogFormatJSON,
	}
}

// ParseProtocol accepts the spellings used by OTEL_EXPORTER_OTLP_PROTOCOL.
func ParseProtocol(protocol string) OTLPProtocol {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf", "http/json":
		return ProtocolHTTP
	default:
		return ProtocolGRPC
	}
}

func isProduction(env string) bool {
	switch strings.ToLower(env) {
	case "production", "prod":
		return true
	}
	return false
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return ErrMissingServiceName
	}
	if c.Insecure && isProduction(c.Environment) {
		return ErrInsecureInProduction
	}
	if c.TLSConfig != nil && c.TLSConfig.MinVersion > 0 && c.TLSConfig.MinVersion < tls.VersionTLS12 {
		return ErrWeakTLS
	}
	return nil
}
