package cron_worker

import (
	"context"
	"fmt"
	"time"
)

// Job define a interface para um cron job.
type Job interface {
	Name() string

	// Schedule retorna o cron schedule do job. Além do formato padrão
	// ("*/5 * * * *") são aceitos os descritores do robfig/cron, como
	// "@hourly" e "@every 30s".
	Schedule() string

	// Run executa o job. O contexto expira em JobTimeout e é cancelado no shutdown.
	Run(ctx context.Context) error
}

// FuncJob implementa Job usando uma função.
type FuncJob struct {
	name     string
	schedule string
	fn       func(ctx context.Context) error
}

func NewFuncJob(name, schedule string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{
		name:     name,
		schedule: schedule,
		fn:       fn,
	}
}

// NewIntervalJob cria um job que roda a cada interval.
func NewIntervalJob(name string, interval time.Duration, fn func(ctx context.Context) error) *FuncJob {
	return NewFuncJob(name, fmt.Sprintf("@every %s", interval), fn)
}

func (j *FuncJob) Name() string {
	return j.name
}

func (j *FuncJob) Schedule() string {
	return j.schedule
}

func (j *FuncJob) Run(ctx context.Context) error {
	return j.fn(ctx)
}
