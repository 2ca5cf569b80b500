package chiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// Start listens on the configured address and blocks until ctx is done or a
// shutdown signal is received, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.observability.Logger().Error(ctx, "server failed to start", observability.Error(err))
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.observability.Logger().Info(ctx, "starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.String("service", s.config.ServiceName),
		observability.String("version", s.config.ServiceVersion),
		observability.String("environment", s.config.Environment),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-serverErr:
		s.observability.Logger().Error(ctx, "server stopped unexpectedly", observability.Error(err))
		return errors.Join(err, s.shutdown(ctx))
	case <-ctx.Done():
		s.observability.Logger().Info(ctx, "context cancelled, initiating shutdown")
	case sig := <-sigChan:
		s.observability.Logger().Info(ctx, "signal received, initiating shutdown",
			observability.String("signal", sig.String()))
	}

	return s.shutdown(ctx)
}

func (s *Server) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server, runs the shutdown hooks in reverse order
// and finally shuts the observability provider down. It is idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		logger := s.observability.Logger()
		logger.Info(ctx, "initiating graceful shutdown")

		var errs []error
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logger.Error(ctx, "error shutting down HTTP server", observability.Error(err))
			errs = append(errs, err)
		}

		for i := len(s.shutdownHooks) - 1; i >= 0; i-- {
			hook := s.shutdownHooks[i]
			if err := hook.fn(ctx); err != nil {
				logger.Error(ctx, "shutdown hook failed",
					observability.String("hook", hook.name),
					observability.Error(err),
				)
				errs = append(errs, err)
			}
		}

		logger.Info(ctx, "graceful shutdown completed")

		if provider, ok := s.observability.(Shutdowner); ok {
			if err := provider.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		s.shutdownErr = errors.Join(errs...)
	})

	return s.shutdownErr
}
