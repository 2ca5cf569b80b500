package cron_worker

import "time"

// Option é uma função que configura o worker
type Option func(*Config)

func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithSeconds habilita precisão de segundos nos cron schedules
func WithSeconds(enabled bool) Option {
	return func(c *Config) {
		c.WithSeconds = enabled
	}
}

func WithLocation(location *time.Location) Option {
	return func(c *Config) {
		c.Location = location
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ShutdownTimeout = timeout
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.JobTimeout = timeout
	}
}

// WithRunOnStart executa todos os jobs uma vez no Start, antes do primeiro tick
func WithRunOnStart(enabled bool) Option {
	return func(c *Config) {
		c.RunOnStart = enabled
	}
}

// WithSkipIfRunning evita execuções sobrepostas do mesmo job
func WithSkipIfRunning(enabled bool) Option {
	return func(c *Config) {
		c.SkipIfRunning = enabled
	}
}

func WithMetrics(enabled bool) Option {
	return func(c *Config) {
		c.EnableMetrics = enabled
	}
}

func WithTracing(enabled bool) Option {
	return func(c *Config) {
		c.EnableTracing = enabled
	}
}

func WithMaxConcurrentJobs(max int) Option {
	return func(c *Config) {
		c.MaxConcurrentJobs = max
	}
}

func WithOnJobStart(callback func(jobName string)) Option {
	return func(c *Config) {
		c.OnJobStart = callback
	}
}

func WithOnJobComplete(callback func(jobName string, duration time.Duration, err error)) Option {
	return func(c *Config) {
		c.OnJobComplete = callback
	}
}

func WithOnJobPanic(callback func(jobName string, recovered any)) Option {
	return func(c *Config) {
		c.OnJobPanic = callback
	}
}
