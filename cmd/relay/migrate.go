package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracekit-dev/trace-relay/pkg/config"
	"github.com/tracekit-dev/trace-relay/pkg/database"
	chiserver "github.com/tracekit-dev/trace-relay/pkg/http_server/chi_server"
	"github.com/tracekit-dev/trace-relay/pkg/migration"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the users and payments schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(c *cobra.Command, args []string) error {
				return withMigrator(c.Context(), *configPath, func(ctx context.Context, m *migration.Migrator) error {
					return m.Up(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: func(c *cobra.Command, args []string) error {
				return withMigrator(c.Context(), *configPath, func(ctx context.Context, m *migration.Migrator) error {
					return m.Down(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(c *cobra.Command, args []string) error {
				return withMigrator(c.Context(), *configPath, func(ctx context.Context, m *migration.Migrator) error {
					version, dirty, err := m.Version(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(ctx context.Context, configPath string, fn func(context.Context, *migration.Migrator) error) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	o11y, err := newObservability(ctx, cfg)
	if err != nil {
		return err
	}
	if provider, ok := o11y.(chiserver.Shutdowner); ok {
		defer func() {
			err = errors.Join(err, provider.Shutdown(context.WithoutCancel(ctx)))
		}()
	}

	db, err := newDatabase(ctx, o11y, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, db.Shutdown(context.WithoutCancel(ctx)))
	}()

	m, err := newMigrator(o11y, db, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(ctx, m)
}

func migrateUp(ctx context.Context, o11y observability.Observability, db *database.Manager, cfg *config.Config) error {
	m, err := newMigrator(o11y, db, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Up(ctx)
}
