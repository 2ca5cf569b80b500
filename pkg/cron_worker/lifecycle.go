package cron_worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// Start agenda os jobs, inicia o scheduler e bloqueia até ctx ser cancelado.
// Em seguida executa o shutdown gracioso com ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return &WorkerError{Op: "start", Message: "worker already running"}
	}

	wrapped, err := s.scheduleJobs(s.runCtx)
	if err != nil {
		s.running.Store(false)
		return &WorkerError{Op: "start", Message: "failed to schedule jobs", Err: err}
	}

	s.scheduler.Start()

	s.observability.Logger().Info(ctx, "cron worker started",
		observability.String("worker", s.config.ServiceName),
		observability.Int("jobs", len(wrapped)),
		observability.Bool("run_on_start", s.config.RunOnStart),
		observability.String("location", s.config.Location.String()),
	)

	if s.config.RunOnStart {
		for _, job := range wrapped {
			s.initialRuns.Add(1)
			go func() {
				defer s.initialRuns.Done()
				job.Run()
			}()
		}
	}

	<-ctx.Done()
	s.observability.Logger().Info(ctx, "context cancelled",
		observability.String("worker", s.config.ServiceName),
	)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancelShutdown()

	return s.Shutdown(shutdownCtx)
}

// Shutdown para o scheduler e aguarda os jobs em execução até ctx expirar.
// Jobs ainda ativos nesse momento têm o contexto cancelado.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		if !s.running.Load() {
			s.shutdownErr = &WorkerError{Op: "shutdown", Message: "worker not running"}
			return
		}

		s.observability.Logger().Info(ctx, "shutting down cron worker",
			observability.String("worker", s.config.ServiceName),
			observability.Int("active_jobs", int(s.activeJobs.Load())),
		)

		stopCtx := s.scheduler.Stop()
		done := make(chan struct{})
		go func() {
			<-stopCtx.Done()
			s.initialRuns.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.observability.Logger().Info(ctx, "all jobs completed",
				observability.String("worker", s.config.ServiceName),
			)
		case <-ctx.Done():
			active := int(s.activeJobs.Load())
			s.observability.Logger().Warn(ctx, "shutdown timeout reached, cancelling running jobs",
				observability.String("worker", s.config.ServiceName),
				observability.Int("active_jobs", active),
			)
			s.shutdownErr = &ShutdownError{Timeout: s.config.ShutdownTimeout, ActiveJobs: active}
		}

		s.cancelRuns()
		s.running.Store(false)

		s.observability.Logger().Info(ctx, "cron worker stopped",
			observability.String("worker", s.config.ServiceName),
		)
	})

	return s.shutdownErr
}

// scheduleJobs registra os jobs no scheduler, na ordem de registro, e devolve
// os wrappers usados tanto pelo scheduler quanto pela execução inicial.
func (s *Server) scheduleJobs(ctx context.Context) ([]cron.Job, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	if len(s.jobs) == 0 {
		return nil, &WorkerError{Op: "schedule_jobs", Message: "no jobs registered"}
	}

	var wrappers []cron.JobWrapper
	if s.config.SkipIfRunning {
		wrappers = append(wrappers, cron.SkipIfStillRunning(s.logger))
	}
	chain := cron.NewChain(wrappers...)

	wrapped := make([]cron.Job, 0, len(s.order))
	for _, name := range s.order {
		job := s.jobs[name]
		entry := chain.Then(cron.FuncJob(func() { s.runJob(ctx, name, job) }))

		if _, err := s.scheduler.AddJob(job.Schedule(), entry); err != nil {
			return nil, &JobError{Job: name, Op: "schedule", Message: "failed to schedule job", Err: err}
		}
		wrapped = append(wrapped, entry)

		s.observability.Logger().Info(ctx, "job scheduled",
			observability.String("worker", s.config.ServiceName),
			observability.String("job", name),
			observability.String("schedule", job.Schedule()),
		)
	}

	return wrapped, nil
}

// runJob executa um job com timeout, recuperação de panic e telemetria.
func (s *Server) runJob(parentCtx context.Context, name string, job Job) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-parentCtx.Done():
			return
		}
	}

	s.activeJobs.Add(1)
	defer s.activeJobs.Add(-1)

	if s.config.OnJobStart != nil {
		s.config.OnJobStart(name)
	}

	ctx, cancel := context.WithTimeout(parentCtx, s.config.JobTimeout)
	defer cancel()

	var span observability.Span
	if s.config.EnableTracing {
		ctx, span = s.observability.Tracer().Start(ctx, "cron.job",
			observability.WithSpanKind(observability.SpanKindInternal),
			observability.WithAttributes(
				observability.String("cron.worker", s.config.ServiceName),
				observability.String("cron.job", name),
			),
		)
		defer span.End()
	}

	jobAttr := observability.String("job", name)
	if s.metrics != nil {
		s.metrics.active.Add(ctx, 1, jobAttr)
		defer s.metrics.active.Add(context.WithoutCancel(ctx), -1, jobAttr)
	}

	start := time.Now()
	jobErr := s.invoke(ctx, name, job)
	duration := time.Since(start)

	if s.config.OnJobComplete != nil {
		s.config.OnJobComplete(name, duration, jobErr)
	}

	result := "success"
	if jobErr != nil {
		result = "error"
		if span != nil {
			span.RecordError(jobErr)
			span.SetStatus(observability.StatusCodeError, jobErr.Error())
		}
		s.observability.Logger().Error(ctx, "job failed",
			observability.String("worker", s.config.ServiceName),
			jobAttr,
			observability.Duration("duration", duration),
			observability.Error(jobErr),
		)
	} else {
		s.observability.Logger().Debug(ctx, "job completed",
			observability.String("worker", s.config.ServiceName),
			jobAttr,
			observability.Duration("duration", duration),
		)
	}

	if s.metrics != nil {
		recordCtx := context.WithoutCancel(ctx)
		s.metrics.executions.Increment(recordCtx, jobAttr, observability.String("result", result))
		s.metrics.duration.Record(recordCtx, float64(duration.Milliseconds()), jobAttr)
	}
}

func (s *Server) invoke(ctx context.Context, name string, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.observability.Logger().Error(ctx, "job panic recovered",
				observability.String("worker", s.config.ServiceName),
				observability.String("job", name),
				observability.Any("panic", r),
			)
			if s.config.OnJobPanic != nil {
				s.config.OnJobPanic(name, r)
			}
			err = &JobError{Job: name, Op: "run", Message: fmt.Sprintf("job panicked: %v", r)}
		}
	}()

	return job.Run(ctx)
}
