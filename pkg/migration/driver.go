package migration

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
)

// Driver is the database/sql driver the migrations run against.
type Driver string

const (
	DriverSQLite3 Driver = "sqlite3"
	DriverPgx     Driver = "pgx"
)

func (d Driver) String() string {
	return string(d)
}

func (d Driver) IsValid() bool {
	switch d {
	case DriverSQLite3, DriverPgx:
		return true
	default:
		return false
	}
}

// DriverStrategy wraps an already open *sql.DB in a golang-migrate driver.
type DriverStrategy interface {
	// Name is the golang-migrate database name.
	Name() string
	WithInstance(db *sql.DB, config Config) (database.Driver, error)
	// ClosesInstance reports whether closing the migrate driver also closes db.
	ClosesInstance() bool
}

// GetDriverStrategy returns the strategy for driver.
func GetDriverStrategy(driver Driver) (DriverStrategy, error) {
	switch driver {
	case DriverSQLite3:
		return sqliteStrategy{}, nil
	case DriverPgx:
		return pgxStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidDriver, driver)
	}
}

type sqliteStrategy struct{}

func (sqliteStrategy) Name() string { return "sqlite3" }

func (sqliteStrategy) WithInstance(db *sql.DB, config Config) (database.Driver, error) {
	return sqlite3.WithInstance(db, &sqlite3.Config{
		MigrationsTable: config.MigrationsTable,
		DatabaseName:    config.DatabaseName,
	})
}

func (sqliteStrategy) ClosesInstance() bool { return true }

type pgxStrategy struct{}

func (pgxStrategy) Name() string { return "pgx5" }

func (pgxStrategy) WithInstance(db *sql.DB, config Config) (database.Driver, error) {
	return pgxv5.WithInstance(db, &pgxv5.Config{
		MigrationsTable:       config.MigrationsTable,
		StatementTimeout:      config.StatementTimeout,
		MultiStatementEnabled: config.MultiStatementEnabled,
		MultiStatementMaxSize: config.MultiStatementMaxSize,
	})
}

func (pgxStrategy) ClosesInstance() bool { return false }
