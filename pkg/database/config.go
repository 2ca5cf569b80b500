package database

import (
	"fmt"
	"time"
)

const (
	DriverSQLite3 = "sqlite3"
	DriverPgx     = "pgx"
)

// Config holds the pool and instrumentation settings of the Manager.
type Config struct {
	// Driver is the database/sql driver name: sqlite3 or pgx.
	Driver string
	DSN    string

	// ServiceName is attached to every query span.
	ServiceName string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// EnableMetrics registers the connection pool gauges (db.client.connections.*).
	EnableMetrics bool

	// IncludeStatements records db.statement on query spans. Disable when SQL
	// text may carry sensitive literals.
	IncludeStatements bool

	// PingAttempts bounds the start-up connectivity check, retried with
	// exponential backoff. PingTimeout applies to each attempt.
	PingAttempts int
	PingTimeout  time.Duration
}

// DefaultConfig returns a Config with production-safe defaults.
func DefaultConfig(driver, dsn, serviceName string) *Config {
	return &Config{
		Driver:            driver,
		DSN:               dsn,
		ServiceName:       serviceName,
		MaxOpenConns:      25,
		MaxIdleConns:      10,
		ConnMaxLifetime:   5 * time.Minute,
		ConnMaxIdleTime:   2 * time.Minute,
		EnableMetrics:     true,
		IncludeStatements: true,
		PingAttempts:      5,
		PingTimeout:       5 * time.Second,
	}
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	switch c.Driver {
	case DriverSQLite3, DriverPgx:
	default:
		return fmt.Errorf("unsupported driver %q (sqlite3, pgx)", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("ServiceName cannot be empty")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("MaxOpenConns must be > 0, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("MaxIdleConns cannot be negative, got %d", c.MaxIdleConns)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("MaxIdleConns (%d) cannot exceed MaxOpenConns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.PingAttempts <= 0 {
		return fmt.Errorf("PingAttempts must be > 0, got %d", c.PingAttempts)
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("PingTimeout must be > 0, got %v", c.PingTimeout)
	}
	return nil
}
