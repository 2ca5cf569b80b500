package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracekit-dev/trace-relay/pkg/api"
	"github.com/tracekit-dev/trace-relay/pkg/config"
	"github.com/tracekit-dev/trace-relay/pkg/cron_worker"
	"github.com/tracekit-dev/trace-relay/pkg/database/uow"
	chiserver "github.com/tracekit-dev/trace-relay/pkg/http_server/chi_server"
	"github.com/tracekit-dev/trace-relay/pkg/httpclient"
	"github.com/tracekit-dev/trace-relay/pkg/messaging/kafka"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
	"github.com/tracekit-dev/trace-relay/pkg/payment"
	"github.com/tracekit-dev/trace-relay/pkg/propagation"
	"github.com/tracekit-dev/trace-relay/pkg/relay"
	"github.com/tracekit-dev/trace-relay/pkg/snapshot"
	"github.com/tracekit-dev/trace-relay/pkg/users"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay HTTP API",
		Long: `Serves the relay endpoints:
- GET /api/call-all      calls every peer concurrently and aggregates the chain
- GET /api/call-{route}  calls a single peer
- GET /api/data          the endpoint peers call back into
- GET /test, /error-test, /checkout  code monitoring and payment demos

Health, readiness and Prometheus metrics are served on /health, /ready,
/live and /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// handlerMargin separates a peer call's deadline from the limits around it:
// first the handler timeout, then the server write timeout.
const handlerMargin = 5 * time.Second

func serve(ctx context.Context, cfg *config.Config) (err error) {
	o11y, err := newObservability(ctx, cfg)
	if err != nil {
		return err
	}
	logger := o11y.Logger()

	// Until the server owns them, everything acquired below is released here
	// when start-up fails.
	var undo cleanup
	if provider, ok := o11y.(chiserver.Shutdowner); ok {
		undo.add(provider.Shutdown)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, undo.run(context.WithoutCancel(ctx)))
		}
	}()

	// Hooks run in reverse order on shutdown, so the database goes last.
	var hooks []chiserver.Option
	own := func(name string, fn func(context.Context) error) {
		hooks = append(hooks, chiserver.WithShutdownHook(name, fn))
		undo.add(fn)
	}
	fail := func(msg string, err error) error {
		logger.Error(ctx, msg, observability.Error(err))
		return fmt.Errorf("%s: %w", msg, err)
	}

	db, err := newDatabase(ctx, o11y, cfg)
	if err != nil {
		return fail("failed to open database", err)
	}
	hooks = append(hooks, chiserver.WithHealthCheck("database", db.Ping))
	own("database", db.Shutdown)

	if cfg.Database.Migrate {
		if err := migrateUp(ctx, o11y, db, cfg); err != nil {
			return fail("failed to migrate database", err)
		}
	}

	client, err := newPeerClient(o11y, cfg)
	if err != nil {
		return fail("failed to create http client", err)
	}

	caller, err := relay.NewCaller(o11y, client, relay.WithCallTimeout(cfg.Relay.Timeout))
	if err != nil {
		return fail("failed to create peer caller", err)
	}
	coordinator, err := relay.NewCoordinator(cfg.Service.Name, cfg.Relay.Peers, caller, o11y)
	if err != nil {
		return fail("failed to create coordinator", err)
	}

	breakpoints := snapshot.NewBreakpoints()
	recorder := snapshot.NewRecorder(o11y, snapshot.Config{
		Enabled:         cfg.CodeMonitoring.Enabled,
		MaxDepth:        cfg.CodeMonitoring.MaxVariableDepth,
		MaxStringLength: cfg.CodeMonitoring.MaxStringLength,
	}, breakpoints)

	if cfg.CodeMonitoring.Enabled {
		health, stop, err := startBreakpointPoller(ctx, o11y, client, breakpoints, cfg)
		if err != nil {
			return fail("failed to start breakpoint poller", err)
		}
		hooks = append(hooks, chiserver.WithHealthCheck("breakpoint_poller", health))
		own("breakpoint_poller", stop)
	}

	unit, err := uow.New(db.DB())
	if err != nil {
		return fail("failed to create unit of work", err)
	}

	paymentOpts := []payment.Option{payment.WithSnapshotter(recorder)}
	if cfg.Events.Enabled {
		producer, err := kafka.NewProducer(ctx, o11y,
			kafka.WithBrokers(cfg.Events.Brokers...),
			kafka.WithClientID(cfg.Service.Name),
			kafka.WithSASL(kafka.Mechanism(cfg.Events.SASLMechanism), cfg.Events.Username, cfg.Events.Password),
		)
		if err != nil {
			return fail("failed to create event producer", err)
		}
		own("events", func(context.Context) error {
			return producer.Close()
		})
		paymentOpts = append(paymentOpts, payment.WithPublisher(producer, cfg.Events.Topic))
	}

	payments, err := payment.NewService(o11y, unit, paymentOpts...)
	if err != nil {
		return fail("failed to create payment service", err)
	}

	handler, err := api.New(o11y, coordinator,
		api.WithFramework(cfg.Service.Framework),
		api.WithSnapshotter(recorder),
		api.WithUsers(users.NewRepository(db.DB())),
		api.WithPayments(payments),
	)
	if err != nil {
		return fail("failed to create handler", err)
	}

	server, err := newServer(o11y, cfg, handler, hooks...)
	if err != nil {
		return fail("failed to create server", err)
	}
	undo = nil

	logger.Info(ctx, "relay configured",
		observability.String("service", cfg.Service.Name),
		observability.Int("peers", len(cfg.Relay.Peers)),
		observability.Duration("call_timeout", caller.Timeout()),
		observability.Bool("code_monitoring", cfg.CodeMonitoring.Enabled),
		observability.Bool("events", cfg.Events.Enabled),
	)

	if err := server.Start(ctx); err != nil {
		// Shutdown is idempotent and covers a listener that never opened.
		return errors.Join(err, server.Shutdown(context.WithoutCancel(ctx)))
	}
	return nil
}

// newPeerClient builds the outbound client so that relay.timeout, not the
// transport defaults, bounds a peer call.
func newPeerClient(o11y observability.Observability, cfg *config.Config) (*httpclient.ObservableClient, error) {
	transport := httpclient.NewTransport()
	transport.ResponseHeaderTimeout = max(transport.ResponseHeaderTimeout, cfg.Relay.Timeout+handlerMargin)

	return httpclient.NewObservableClient(o11y,
		httpclient.WithBaseTransport(transport),
		httpclient.WithClientTimeout(max(httpclient.DefaultTimeout, cfg.Relay.Timeout+handlerMargin)),
	)
}

// serverTimeouts keeps the handler and write timeouts above relay.timeout, so
// /api/call-all always answers with the chain.
func serverTimeouts(cfg *config.Config) (request, write time.Duration) {
	request = max(cfg.Service.RequestTimeout, cfg.Relay.Timeout+handlerMargin)
	return request, request + handlerMargin
}

func newServer(o11y observability.Observability, cfg *config.Config, handler chiserver.Router, extra ...chiserver.Option) (*chiserver.Server, error) {
	request, write := serverTimeouts(cfg)

	opts := append([]chiserver.Option{
		chiserver.WithAddress(cfg.Service.Address),
		chiserver.WithServiceName(cfg.Service.Name),
		chiserver.WithServiceVersion(cfg.Service.Version),
		chiserver.WithEnvironment(cfg.Service.Environment),
		chiserver.WithRequestTimeout(request),
		chiserver.WithWriteTimeout(write),
		chiserver.WithMiddleware(propagation.Middleware(o11y, cfg.Telemetry.IgnoredURLs...)),
		chiserver.WithMetrics(),
	}, extra...)

	server, err := chiserver.New(o11y, opts...)
	if err != nil {
		return nil, err
	}
	server.RegisterRouters(handler)
	return server, nil
}

// startBreakpointPoller runs the breakpoint poll on a cron worker. It returns
// the worker's health check and a stop function that waits for it to exit.
func startBreakpointPoller(
	ctx context.Context,
	o11y observability.Observability,
	client *httpclient.ObservableClient,
	breakpoints *snapshot.Breakpoints,
	cfg *config.Config,
) (chiserver.HealthCheckFunc, func(context.Context) error, error) {
	poller, err := snapshot.NewPoller(o11y, client, breakpoints,
		cfg.CodeMonitoring.Endpoint, cfg.Service.Name, cfg.Telemetry.APIKey)
	if err != nil {
		return nil, nil, err
	}

	worker, err := cron_worker.New(o11y,
		cron_worker.WithServiceName(cfg.Service.Name+"-breakpoints"),
		cron_worker.WithRunOnStart(true),
		cron_worker.WithSkipIfRunning(true),
	)
	if err != nil {
		return nil, nil, err
	}
	if err := worker.RegisterJobs(
		cron_worker.NewIntervalJob("breakpoints", cfg.CodeMonitoring.PollIntervalDuration(), poller.Poll),
	); err != nil {
		return nil, nil, err
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	go func() {
		done <- worker.Start(workerCtx)
	}()

	var once sync.Once
	var stopErr error
	stop := func(shutdownCtx context.Context) error {
		once.Do(func() {
			cancel()
			select {
			case stopErr = <-done:
			case <-shutdownCtx.Done():
				stopErr = shutdownCtx.Err()
			}
		})
		return stopErr
	}
	return worker.HealthCheck, stop, nil
}

// cleanup collects release functions and runs them in reverse order.
type cleanup []func(context.Context) error

func (c *cleanup) add(fn func(context.Context) error) {
	*c = append(*c, fn)
}

func (c cleanup) run(ctx context.Context) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
