package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// Manager owns the instrumented *sql.DB. Create one at start-up and share it.
type Manager struct {
	db           *sql.DB
	config       *Config
	o11y         observability.Observability
	registration metric.Registration

	mu     sync.RWMutex
	closed bool
}

// NewManager opens the database through otelsql, applies the pool settings
// and waits for the database to answer a ping.
func NewManager(ctx context.Context, o11y observability.Observability, config *Config) (*Manager, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	attrs := []attribute.KeyValue{
		dbSystem(config.Driver),
		semconv.ServiceName(config.ServiceName),
	}

	db, err := otelsql.Open(config.Driver, config.DSN,
		otelsql.WithAttributes(attrs...),
		otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
			DisableQuery:   !config.IncludeStatements,
			OmitRows:       true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m := &Manager{db: db, config: config, o11y: o11y}
	m.configurePool()

	if err := m.waitReady(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.EnableMetrics {
		reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(attrs...))
		if err != nil {
			o11y.Logger().Warn(ctx, "failed to register database pool metrics", observability.Error(err))
		} else {
			m.registration = reg
		}
	}

	o11y.Logger().Info(ctx, "database ready",
		observability.String("driver", config.Driver),
		observability.Int("max_open_conns", config.MaxOpenConns),
	)
	return m, nil
}

func dbSystem(driver string) attribute.KeyValue {
	if driver == DriverPgx {
		return semconv.DBSystemPostgreSQL
	}
	return semconv.DBSystemSqlite
}

// waitReady pings with exponential backoff until the database answers,
// PingAttempts is exhausted or ctx is done.
func (m *Manager) waitReady(ctx context.Context) error {
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
		defer cancel()
		return m.db.PingContext(pingCtx)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(m.config.PingAttempts-1)), ctx)
	return backoff.RetryNotify(ping, retries, func(err error, next time.Duration) {
		m.o11y.Logger().Warn(ctx, "database not ready, retrying",
			observability.String("driver", m.config.Driver),
			observability.Duration("retry_in", next),
			observability.Error(err),
		)
	})
}

func (m *Manager) configurePool() {
	m.db.SetMaxOpenConns(m.config.MaxOpenConns)
	m.db.SetMaxIdleConns(m.config.MaxIdleConns)
	m.db.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	m.db.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)
}

// Driver returns the configured driver name.
func (m *Manager) Driver() string {
	return m.config.Driver
}

// DB returns the shared pool, or nil after Shutdown.
func (m *Manager) DB() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil
	}
	return m.db
}

// Ping has the signature of an HTTP server health check.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("database manager is closed")
	}
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Shutdown closes the pool. It is idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.registration != nil {
		_ = m.registration.Unregister()
	}

	done := make(chan error, 1)
	go func() {
		done <- m.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded: %w", ctx.Err())
	}
}

// Stats returns the pool statistics, zero after Shutdown.
func (m *Manager) Stats() sql.DBStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return sql.DBStats{}
	}
	return m.db.Stats()
}
