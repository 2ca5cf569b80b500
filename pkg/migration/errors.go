package migration

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDriver  = errors.New("invalid or unsupported database driver")
	ErrMissingSource  = errors.New("migration source is required")
	ErrInvalidTimeout = errors.New("timeout must be positive")
	ErrNilDatabase    = errors.New("database connection is required")

	// ErrDirtyDatabase means a previous migration failed halfway.
	ErrDirtyDatabase = errors.New("database is in a dirty state - manual intervention required")

	ErrAlreadyClosed = errors.New("migrator has already been closed")
)

// MigrationError wraps migration errors with additional context.
type MigrationError struct {
	Operation string
	Driver    Driver
	Version   uint
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("migration error during %s (driver=%s, version=%d): %v",
			e.Operation, e.Driver, e.Version, e.Err)
	}
	return fmt.Sprintf("migration error during %s (driver=%s): %v", e.Operation, e.Driver, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func NewMigrationError(operation string, driver Driver, version uint, err error) error {
	if err == nil {
		return nil
	}
	return &MigrationError{Operation: operation, Driver: driver, Version: version, Err: err}
}

func IsDirtyError(err error) bool {
	return errors.Is(err, ErrDirtyDatabase)
}
