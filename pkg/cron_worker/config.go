package cron_worker

import (
	"errors"
	"time"
)

// Config contém as configurações do worker de cron.
type Config struct {
	ServiceName string

	// WithSeconds habilita precisão de segundos nos cron schedules
	WithSeconds bool

	Location *time.Location

	// ShutdownTimeout é o tempo máximo para aguardar jobs em execução
	ShutdownTimeout time.Duration

	// JobTimeout é o tempo máximo de execução de um job
	JobTimeout time.Duration

	// RunOnStart executa cada job uma vez assim que o worker inicia
	RunOnStart bool

	// SkipIfRunning descarta uma execução quando a anterior do mesmo job ainda não terminou
	SkipIfRunning bool

	EnableMetrics bool
	EnableTracing bool

	// MaxConcurrentJobs limita execuções simultâneas entre todos os jobs (0 = sem limite)
	MaxConcurrentJobs int

	OnJobStart    func(jobName string)
	OnJobComplete func(jobName string, duration time.Duration, err error)
	OnJobPanic    func(jobName string, recovered any)
}

// DefaultConfig retorna uma configuração padrão.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:     "cron-worker",
		Location:        time.UTC,
		ShutdownTimeout: 30 * time.Second,
		JobTimeout:      time.Minute,
		SkipIfRunning:   true,
		EnableMetrics:   true,
		EnableTracing:   true,
	}
}

// Validate valida as configurações.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.JobTimeout <= 0 {
		return errors.New("job timeout must be positive")
	}
	if c.Location == nil {
		return errors.New("location cannot be nil")
	}
	if c.MaxConcurrentJobs < 0 {
		return errors.New("max concurrent jobs cannot be negative")
	}
	return nil
}
