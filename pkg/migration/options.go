package migration

import (
	"io/fs"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// Option is a functional option for configuring the Migrator.
type Option func(*Config)

func WithDriver(driver Driver) Option {
	return func(c *Config) {
		c.Driver = driver
	}
}

// WithSource reads the migrations from dir inside fsys.
func WithSource(fsys fs.FS, dir string) Option {
	return func(c *Config) {
		c.Source = fsys
		c.SourcePath = dir
	}
}

func WithLogger(logger observability.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

func WithStatementTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout >= 0 {
			c.StatementTimeout = timeout
		}
	}
}

func WithMultiStatement(enabled bool) Option {
	return func(c *Config) {
		c.MultiStatementEnabled = enabled
	}
}

func WithMigrationsTable(table string) Option {
	return func(c *Config) {
		if table != "" {
			c.MigrationsTable = table
		}
	}
}

func WithDatabaseName(name string) Option {
	return func(c *Config) {
		c.DatabaseName = name
	}
}
