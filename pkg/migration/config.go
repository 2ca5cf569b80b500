package migration

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// Config holds the configuration for database migrations.
type Config struct {
	Driver Driver

	// Source holds the migration files; SourcePath is the directory inside it.
	Source     fs.FS
	SourcePath string

	Logger observability.Logger

	// Timeout bounds a whole Up, Down or Steps run.
	Timeout time.Duration

	// StatementTimeout bounds a single statement (pgx only, 0 uses the server default).
	StatementTimeout time.Duration

	MultiStatementEnabled bool
	MultiStatementMaxSize int

	// MigrationsTable defaults to schema_migrations.
	MigrationsTable string

	// DatabaseName is used in logs only.
	DatabaseName string
}

// DefaultConfig returns a Config with sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		Driver:                DriverSQLite3,
		Timeout:               5 * time.Minute,
		MultiStatementEnabled: true,
		MultiStatementMaxSize: 10 * 1024 * 1024,
		MigrationsTable:       "schema_migrations",
		DatabaseName:          "relay",
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !c.Driver.IsValid() {
		return fmt.Errorf("%w: %s (supported: sqlite3, pgx)", ErrInvalidDriver, c.Driver)
	}
	if c.Source == nil {
		return fmt.Errorf("%w: source cannot be nil", ErrMissingSource)
	}
	if strings.TrimSpace(c.SourcePath) == "" {
		return fmt.Errorf("%w: source path cannot be empty", ErrMissingSource)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTimeout, c.Timeout)
	}
	if c.StatementTimeout < 0 {
		return fmt.Errorf("statement timeout must be non-negative: got %v", c.StatementTimeout)
	}
	if c.MultiStatementEnabled && c.MultiStatementMaxSize <= 0 {
		return fmt.Errorf("multi-statement max size must be positive when multi-statement is enabled: got %d", c.MultiStatementMaxSize)
	}
	if c.Logger == nil {
		return fmt.Errorf("logger cannot be nil")
	}
	return nil
}
