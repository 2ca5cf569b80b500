package users

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracekit-dev/trace-relay/pkg/database/migrations"
	"github.com/tracekit-dev/trace-relay/pkg/migration"
	"github.com/tracekit-dev/trace-relay/pkg/observability/fake"
)

func migratedDB(t *testing.T, driver migration.Driver, db *sql.DB) {
	t.Helper()
	m, err := migration.New(db,
		migration.WithDriver(driver),
		migration.WithSource(migrations.FS, migrations.Dir(driver.String())),
		migration.WithLogger(fake.NewLogger()),
	)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Up(context.Background()))
}

func newSQLiteRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migratedDB(t, migration.DriverSQLite3, db)
	return NewRepository(db)
}

func TestRepository(t *testing.T) {
	runRepositoryTests(t, newSQLiteRepository(t))
}

func runRepositoryTests(t *testing.T, repo *Repository) {
	ctx := context.Background()

	t.Run("list is capped and ordered", func(t *testing.T) {
		list, err := repo.List(ctx, 5)
		require.NoError(t, err)
		require.Len(t, list, 5)
		for i, u := range list {
			assert.Equal(t, int64(i+1), u.ID)
		}
		assert.Equal(t, "Ada Lovelace", list[0].Name)
	})

	t.Run("list with non-positive limit", func(t *testing.T) {
		list, err := repo.List(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("find by id", func(t *testing.T) {
		u, err := repo.FindByID(ctx, 123)
		require.NoError(t, err)
		assert.Equal(t, "Checkout Demo", u.Name)
		assert.Equal(t, "checkout@example.com", u.Email)
		assert.False(t, u.CreatedAt.IsZero())
	})

	t.Run("find unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("increment total spent", func(t *testing.T) {
		before, err := repo.FindByID(ctx, 2)
		require.NoError(t, err)

		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, repo.IncrementTotalSpent(ctx, 2, 99.99, at))
		require.NoError(t, repo.IncrementTotalSpent(ctx, 2, 0.01, at))

		after, err := repo.FindByID(ctx, 2)
		require.NoError(t, err)
		assert.InDelta(t, before.TotalSpent+100, after.TotalSpent, 1e-9)
		assert.True(t, at.Equal(after.UpdatedAt), "updated_at = %v", after.UpdatedAt)
	})

	t.Run("increment unknown user", func(t *testing.T) {
		err := repo.IncrementTotalSpent(ctx, 9999, 10, time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
