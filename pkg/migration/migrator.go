// Package migration applies the embedded schema migrations to an already
// open *sql.DB using golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// Migrator runs migrations against a *sql.DB owned by the caller.
type Migrator struct {
	config  Config
	migrate *migrate.Migrate
	source  source.Driver
	logger  observability.Logger

	closeOnce sync.Once
	closedMu  sync.RWMutex
	closed    bool
}

// New wraps db in a golang-migrate instance. db is never closed by the Migrator.
//
// Example:
//
//	m, err := migration.New(db,
//	    migration.WithDriver(migration.DriverSQLite3),
//	    migration.WithSource(migrations.FS, migrations.Dir("sqlite3")),
//	    migration.WithLogger(o11y.Logger()),
//	)
func New(db *sql.DB, opts ...Option) (*Migrator, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid migration configuration: %w", err)
	}

	ctx := context.Background()
	logger := config.Logger

	strategy, err := GetDriverStrategy(config.Driver)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(config.Source, config.SourcePath)
	if err != nil {
		logger.Error(ctx, "failed to open migration source", observability.Error(err),
			observability.String("path", config.SourcePath))
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	drv, err := strategy.WithInstance(db, config)
	if err != nil {
		_ = src.Close()
		logger.Error(ctx, "failed to create migrate driver", observability.Error(err),
			observability.String("driver", config.Driver.String()))
		return nil, NewMigrationError("init", config.Driver, 0, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, strategy.Name(), drv)
	if err != nil {
		_ = src.Close()
		return nil, NewMigrationError("init", config.Driver, 0, err)
	}
	m.Log = migrateLogger{logger: logger}

	logger.Info(ctx, "migrator initialized",
		observability.String("driver", config.Driver.String()),
		observability.String("database", config.DatabaseName),
		observability.String("path", config.SourcePath),
	)

	return &Migrator{
		config:  config,
		migrate: m,
		source:  src,
		logger:  logger,
	}, nil
}

// Up applies every pending migration. An up-to-date database is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", m.migrate.Up)
}

// Down rolls back every applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	m.logger.Warn(ctx, "rolling back all migrations",
		observability.String("database", m.config.DatabaseName))
	return m.run(ctx, "down", m.migrate.Down)
}

// Steps migrates n steps, up when n is positive and down when negative.
func (m *Migrator) Steps(ctx context.Context, n int) error {
	return m.run(ctx, fmt.Sprintf("steps(%d)", n), func() error {
		return m.migrate.Steps(n)
	})
}

func (m *Migrator) run(ctx context.Context, op string, fn func() error) error {
	if err := m.checkClosed(); err != nil {
		return err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	var err error
	select {
	case <-ctx.Done():
		select {
		case m.migrate.GracefulStop <- true:
		default:
		}
		m.logger.Error(ctx, "migration timed out",
			observability.String("operation", op),
			observability.Duration("timeout", m.config.Timeout),
		)
		return fmt.Errorf("migration %s timed out after %v: %w", op, m.config.Timeout, ctx.Err())
	case err = <-errCh:
	}

	elapsed := time.Since(start)
	switch {
	case err == nil:
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.Info(ctx, "database is up to date",
			observability.String("operation", op),
			observability.Duration("duration", elapsed),
		)
		return nil
	case strings.Contains(err.Error(), "dirty"):
		m.logger.Error(ctx, "database is dirty, manual intervention required",
			observability.String("operation", op),
			observability.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrDirtyDatabase, err)
	default:
		version, dirty, _ := m.migrate.Version()
		m.logger.Error(ctx, "migration failed",
			observability.String("operation", op),
			observability.Error(err),
			observability.Int64("version", int64(version)),
			observability.Bool("dirty", dirty),
		)
		return NewMigrationError(op, m.config.Driver, version, err)
	}

	version, dirty, _ := m.migrate.Version()
	m.logger.Info(ctx, "migration completed",
		observability.String("operation", op),
		observability.Int64("version", int64(version)),
		observability.Bool("dirty", dirty),
		observability.Duration("duration", elapsed),
	)
	return nil
}

// Version returns the applied version and dirty flag; (0, false, nil) when
// nothing has been applied yet.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	if err := m.checkClosed(); err != nil {
		return 0, false, err
	}

	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		m.logger.Error(ctx, "failed to read migration version", observability.Error(err))
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migration source. The database driver is left open
// because the sqlite3 driver would close the caller's *sql.DB with it.
func (m *Migrator) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closedMu.Lock()
		m.closed = true
		m.closedMu.Unlock()
		err = m.source.Close()
	})
	return err
}

func (m *Migrator) checkClosed() error {
	m.closedMu.RLock()
	defer m.closedMu.RUnlock()
	if m.closed {
		return ErrAlreadyClosed
	}
	return nil
}
