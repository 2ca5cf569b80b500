package main

import (
	"context"
	"fmt"
	"maps"

	"github.com/tracekit-dev/trace-relay/pkg/config"
	"github.com/tracekit-dev/trace-relay/pkg/database"
	"github.com/tracekit-dev/trace-relay/pkg/database/migrations"
	"github.com/tracekit-dev/trace-relay/pkg/migration"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
	"github.com/tracekit-dev/trace-relay/pkg/observability/noop"
	"github.com/tracekit-dev/trace-relay/pkg/observability/otel"
	"github.com/tracekit-dev/trace-relay/pkg/snapshot"
)

// newObservability exports to the TraceKit collector when telemetry is
// enabled. Otherwise spans and metrics are dropped and logs go to stdout.
func newObservability(ctx context.Context, cfg *config.Config) (observability.Observability, error) {
	level := observability.ParseLogLevel(cfg.Telemetry.LogLevel)
	format := observability.LogFormatJSON
	if cfg.Telemetry.LogFormat == string(observability.LogFormatText) {
		format = observability.LogFormatText
	}

	if !cfg.Telemetry.Enabled {
		logger, err := otel.NewConsoleLogger(level, format, cfg.Service.Name)
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		return noop.NewProvider(noop.WithLogger(logger)), nil
	}

	headers := maps.Clone(cfg.Telemetry.Headers)
	if headers == nil {
		headers = make(map[string]string, 1)
	}
	if cfg.Telemetry.APIKey != "" {
		headers[snapshot.HeaderAPIKey] = cfg.Telemetry.APIKey
	}

	otelCfg := otel.DefaultConfig(cfg.Service.Name)
	otelCfg.ServiceVersion = cfg.Service.Version
	otelCfg.Environment = cfg.Service.Environment
	otelCfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	otelCfg.OTLPProtocol = otel.ParseProtocol(cfg.Telemetry.Protocol)
	otelCfg.Headers = headers
	otelCfg.Insecure = cfg.Telemetry.Insecure
	otelCfg.TraceSampleRate = cfg.Telemetry.SampleRate
	otelCfg.LogLevel = level
	otelCfg.LogFormat = format
	otelCfg.ResourceAttributes = map[string]string{"service.framework": cfg.Service.Framework}

	provider, err := otel.NewProvider(ctx, otelCfg)
	if err != nil {
		return nil, fmt.Errorf("create telemetry provider: %w", err)
	}
	return provider, nil
}

func newDatabase(ctx context.Context, o11y observability.Observability, cfg *config.Config) (*database.Manager, error) {
	dbCfg := database.DefaultConfig(cfg.Database.Driver, cfg.Database.DSN, cfg.Service.Name)
	dbCfg.IncludeStatements = cfg.Database.IncludeQueryBindings
	if cfg.Database.MaxOpenConns > 0 {
		dbCfg.MaxOpenConns = cfg.Database.MaxOpenConns
		dbCfg.MaxIdleConns = min(dbCfg.MaxIdleConns, cfg.Database.MaxOpenConns)
	}
	return database.NewManager(ctx, o11y, dbCfg)
}

func newMigrator(o11y observability.Observability, db *database.Manager, cfg *config.Config) (*migration.Migrator, error) {
	return migration.New(db.DB(),
		migration.WithDriver(migration.Driver(cfg.Database.Driver)),
		migration.WithSource(migrations.FS, migrations.Dir(cfg.Database.Driver)),
		migration.WithLogger(o11y.Logger()),
	)
}
