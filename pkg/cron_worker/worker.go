package cron_worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// CronWorker define a interface para um worker baseado em cron jobs.
type CronWorker interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Health(ctx context.Context) HealthStatus
	RegisterJobs(jobs ...Job) error
}

// Server implementa a interface CronWorker.
type Server struct {
	config        *Config
	observability observability.Observability
	logger        cron.Logger
	scheduler     *cron.Cron
	metrics       *jobMetrics
	slots         chan struct{}

	jobs   map[string]Job
	order  []string
	jobsMu sync.RWMutex

	running     atomic.Bool
	activeJobs  atomic.Int32
	initialRuns sync.WaitGroup

	// runCtx é o pai de toda execução; cancelado quando o shutdown expira
	runCtx     context.Context
	cancelRuns context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// New cria uma nova instância do worker de cron.
func New(o11y observability.Observability, opts ...Option) (*Server, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if o11y == nil {
		return nil, &WorkerError{Op: "new", Message: "observability provider cannot be nil"}
	}
	if err := config.Validate(); err != nil {
		return nil, &WorkerError{
			Op:      "new",
			Message: "invalid configuration",
			Err:     err,
		}
	}

	logger := newCronLogger(config.ServiceName, o11y)
	cronOpts := []cron.Option{
		cron.WithLogger(logger),
		cron.WithLocation(config.Location),
	}
	if config.WithSeconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	srv := &Server{
		config:        config,
		observability: o11y,
		logger:        logger,
		scheduler:     cron.New(cronOpts...),
		jobs:          make(map[string]Job),
	}
	srv.runCtx, srv.cancelRuns = context.WithCancel(context.Background())
	if config.EnableMetrics {
		srv.metrics = newJobMetrics(o11y.Metrics())
	}
	if config.MaxConcurrentJobs > 0 {
		srv.slots = make(chan struct{}, config.MaxConcurrentJobs)
	}

	return srv, nil
}

// RegisterJobs registra um ou mais jobs. Só é permitido antes do Start.
func (s *Server) RegisterJobs(jobs ...Job) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if s.running.Load() {
		return &WorkerError{
			Op:      "register_jobs",
			Message: "cannot register jobs while worker is running",
		}
	}

	for _, job := range jobs {
		if job == nil {
			continue
		}

		name := job.Name()
		if name == "" {
			return &JobError{Job: "<unnamed>", Op: "register", Message: "job name cannot be empty"}
		}
		if _, exists := s.jobs[name]; exists {
			return &JobError{Job: name, Op: "register", Message: "job already registered"}
		}
		if job.Schedule() == "" {
			return &JobError{Job: name, Op: "register", Message: "job schedule cannot be empty"}
		}

		s.jobs[name] = job
		s.order = append(s.order, name)

		s.observability.Logger().Info(context.Background(), "job registered",
			observability.String("worker", s.config.ServiceName),
			observability.String("job", name),
			observability.String("schedule", job.Schedule()),
		)
	}

	return nil
}

func (s *Server) GetJobCount() int {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return len(s.jobs)
}

func (s *Server) GetActiveJobCount() int32 {
	return s.activeJobs.Load()
}

func (s *Server) IsRunning() bool {
	return s.running.Load()
}

type jobMetrics struct {
	executions observability.Counter
	duration   observability.Histogram
	active     observability.UpDownCounter
}

func newJobMetrics(m observability.Metrics) *jobMetrics {
	return &jobMetrics{
		executions: m.Counter("cron.job.executions", "Cron job executions by result", "1"),
		duration:   m.Histogram("cron.job.duration", "Cron job execution time", "ms"),
		active:     m.UpDownCounter("cron.job.active", "Cron jobs currently running", "1"),
	}
}
