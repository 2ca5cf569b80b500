// Package config loads the relay configuration: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/tracekit-dev/trace-relay/pkg/relay"
)

var (
	ErrNoPeers             = errors.New("config: at least one peer must be configured")
	ErrInvalidPeer         = errors.New("config: invalid peer")
	ErrInvalidPollInterval = errors.New("config: unsupported poll interval")
)

// SupportedPollIntervals lists the breakpoint poll intervals, in seconds.
var SupportedPollIntervals = []int{1, 5, 10, 15, 30, 60, 300, 600}

var routePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type Config struct {
	Service        ServiceConfig        `yaml:"service"`
	Relay          RelayConfig          `yaml:"relay"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	CodeMonitoring CodeMonitoringConfig `yaml:"code_monitoring"`
	Database       DatabaseConfig       `yaml:"database"`
	Events         EventsConfig         `yaml:"events"`
}

type ServiceConfig struct {
	Name        string `yaml:"name" env:"TRACEKIT_SERVICE_NAME"`
	Version     string `yaml:"version" env:"SERVICE_VERSION"`
	Environment string `yaml:"environment" env:"APP_ENV"`
	Address     string `yaml:"address" env:"HTTP_ADDRESS"`
	// RequestTimeout is the floor of the HTTP handler timeout. The server
	// raises it above relay.timeout so a fan-out is never cut short.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT"`
	// Framework is reported by /api/data.
	Framework string `yaml:"framework" env:"SERVICE_FRAMEWORK"`
}

type RelayConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"RELAY_TIMEOUT"`
	Peers   Peers         `yaml:"peers" env:"PEERS"`
}

type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled" env:"TRACEKIT_ENABLED"`
	APIKey      string            `yaml:"api_key" env:"TRACEKIT_API_KEY"`
	Endpoint    string            `yaml:"endpoint" env:"TRACEKIT_ENDPOINT"`
	Protocol    string            `yaml:"protocol" env:"TRACEKIT_PROTOCOL"`
	Insecure    bool              `yaml:"insecure" env:"TRACEKIT_INSECURE"`
	SampleRate  float64           `yaml:"sample_rate" env:"TRACEKIT_SAMPLE_RATE"`
	Headers     map[string]string `yaml:"headers" env:"TRACEKIT_HEADERS"`
	LogLevel    string            `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat   string            `yaml:"log_format" env:"LOG_FORMAT"`
	IgnoredURLs []string          `yaml:"ignored_routes" env:"TRACEKIT_IGNORED_ROUTES" envSeparator:","`
}

type CodeMonitoringConfig struct {
	Enabled bool `yaml:"enabled" env:"TRACEKIT_CODE_MONITORING_ENABLED"`
	// PollInterval is in seconds and must be one of SupportedPollIntervals.
	PollInterval     int    `yaml:"poll_interval" env:"TRACEKIT_CODE_MONITORING_POLL_INTERVAL"`
	MaxVariableDepth int    `yaml:"max_variable_depth" env:"TRACEKIT_CODE_MONITORING_MAX_DEPTH"`
	MaxStringLength  int    `yaml:"max_string_length" env:"TRACEKIT_CODE_MONITORING_MAX_STRING"`
	Endpoint         string `yaml:"endpoint" env:"TRACEKIT_CODE_MONITORING_ENDPOINT"`
}

type DatabaseConfig struct {
	Driver               string `yaml:"driver" env:"DB_DRIVER"`
	DSN                  string `yaml:"dsn" env:"DB_DSN"`
	Migrate              bool   `yaml:"migrate" env:"DB_MIGRATE"`
	IncludeQueryBindings bool   `yaml:"include_query_bindings" env:"TRACEKIT_INCLUDE_BINDINGS"`
	MaxOpenConns         int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
}

type EventsConfig struct {
	Enabled bool     `yaml:"enabled" env:"EVENTS_ENABLED"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
	// SASLMechanism is empty, plain or scram-sha-512.
	SASLMechanism string `yaml:"sasl_mechanism" env:"KAFKA_SASL_MECHANISM"`
	Username      string `yaml:"username" env:"KAFKA_USERNAME"`
	Password      string `yaml:"password" env:"KAFKA_PASSWORD"`
}

// Default returns the configuration used when nothing else is given. The peers
// are the four sibling test applications on their local ports.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:           "trace-relay",
			Version:        "dev",
			Environment:    "development",
			Address:        ":8080",
			RequestTimeout: 30 * time.Second,
			Framework:      "chi",
		},
		Relay: RelayConfig{
			Timeout: relay.DefaultCallTimeout,
			Peers: Peers{
				{Name: "go-test-app", BaseURL: "http://localhost:8082", Route: "go"},
				{Name: "node-test-app", BaseURL: "http://localhost:8084", Route: "node"},
				{Name: "python-test-app", BaseURL: "http://localhost:5001", Route: "python"},
				{Name: "php-test-app", BaseURL: "http://localhost:8086", Route: "php"},
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "https://app.tracekit.dev/v1/traces",
			Protocol:    "http",
			SampleRate:  1.0,
			LogLevel:    "info",
			LogFormat:   "json",
			IgnoredURLs: []string{"/health", "/up", "/_healthz", "/ready", "/live", "/metrics"},
		},
		CodeMonitoring: CodeMonitoringConfig{
			Enabled:          false,
			PollInterval:     30,
			MaxVariableDepth: 3,
			MaxStringLength:  1000,
			Endpoint:         "https://app.tracekit.dev",
		},
		Database: DatabaseConfig{
			Driver:               "sqlite3",
			DSN:                  "file:relay.db?_foreign_keys=on",
			Migrate:              true,
			IncludeQueryBindings: true,
			MaxOpenConns:         10,
		},
		Events: EventsConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "payments",
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Service.Name) == "" {
		errs = append(errs, errors.New("config: service.name is required"))
	}
	if c.Service.Address == "" {
		errs = append(errs, errors.New("config: service.address is required"))
	}
	if c.Service.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: service.request_timeout must be positive, got %s", c.Service.RequestTimeout))
	}
	if c.Relay.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("config: relay.timeout must be positive, got %s", c.Relay.Timeout))
	}
	if err := c.Relay.Peers.validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_rate must be within [0, 1], got %v", c.Telemetry.SampleRate))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is enabled"))
	}

	if c.CodeMonitoring.Enabled {
		if !slices.Contains(SupportedPollIntervals, c.CodeMonitoring.PollInterval) {
			errs = append(errs, fmt.Errorf("%w: %ds (supported: %v)", ErrInvalidPollInterval, c.CodeMonitoring.PollInterval, SupportedPollIntervals))
		}
		if c.CodeMonitoring.Endpoint == "" {
			errs = append(errs, errors.New("config: code_monitoring.endpoint is required when code monitoring is enabled"))
		}
	}
	if c.CodeMonitoring.MaxVariableDepth < 1 {
		errs = append(errs, errors.New("config: code_monitoring.max_variable_depth must be at least 1"))
	}
	if c.CodeMonitoring.MaxStringLength < 1 {
		errs = append(errs, errors.New("config: code_monitoring.max_string_length must be at least 1"))
	}

	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		errs = append(errs, fmt.Errorf("config: unsupported database.driver %q (sqlite3, pgx)", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("config: database.dsn is required"))
	}

	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			errs = append(errs, errors.New("config: events.brokers is required when events are enabled"))
		}
		if c.Events.Topic == "" {
			errs = append(errs, errors.New("config: events.topic is required when events are enabled"))
		}
		switch c.Events.SASLMechanism {
		case "", "plain", "scram-sha-512":
		default:
			errs = append(errs, fmt.Errorf("config: unsupported events.sasl_mechanism %q (plain, scram-sha-512)", c.Events.SASLMechanism))
		}
	}

	return errors.Join(errs...)
}

// PollIntervalDuration returns the breakpoint poll interval.
func (c CodeMonitoringConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// Peers is the ordered peer list. From the environment it is written as
// comma separated entries of the form name=url or route:name=url.
type Peers []relay.PeerService

func (p *Peers) UnmarshalText(text []byte) error {
	var peers Peers
	for _, entry := range strings.Split(string(text), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, baseURL, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("%w: %q is not name=url", ErrInvalidPeer, entry)
		}

		peer := relay.PeerService{Name: strings.TrimSpace(name), BaseURL: strings.TrimSpace(baseURL)}
		if route, n, ok := strings.Cut(peer.Name, ":"); ok {
			peer.Route, peer.Name = route, n
		}
		peers = append(peers, peer)
	}
	*p = peers
	return nil
}

func (p Peers) validate() error {
	if len(p) == 0 {
		return ErrNoPeers
	}

	names := make(map[string]struct{}, len(p))
	routes := make(map[string]struct{}, len(p))
	for i, peer := range p {
		if peer.Name == "" {
			return fmt.Errorf("%w: peer %d has no name", ErrInvalidPeer, i)
		}
		if _, dup := names[peer.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidPeer, peer.Name)
		}
		names[peer.Name] = struct{}{}

		u, err := url.Parse(peer.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %s has invalid base_url %q", ErrInvalidPeer, peer.Name, peer.BaseURL)
		}

		slug := peer.Slug()
		if !routePattern.MatchString(slug) || slug == "all" {
			return fmt.Errorf("%w: %s has invalid route %q", ErrInvalidPeer, peer.Name, slug)
		}
		if _, dup := routes[slug]; dup {
			return fmt.Errorf("%w: duplicate route %q", ErrInvalidPeer, slug)
		}
		routes[slug] = struct{}{}
	}
	return nil
}
