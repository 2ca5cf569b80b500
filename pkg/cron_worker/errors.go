package cron_worker

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotRunning é devolvido pelo health check quando o worker está parado.
var ErrNotRunning = errors.New("cron worker not running")

// WorkerError representa um erro do worker
type WorkerError struct {
	Op      string
	Message string
	Err     error
}

func (e *WorkerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worker error in %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("worker error in %s: %s", e.Op, e.Message)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// JobError representa um erro específico de um job
type JobError struct {
	Job     string
	Op      string
	Message string
	Err     error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job error [%s] in %s: %s: %v", e.Job, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("job error [%s] in %s: %s", e.Job, e.Op, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// ShutdownError indica que o timeout de shutdown venceu com jobs ainda ativos
type ShutdownError struct {
	Timeout    time.Duration
	ActiveJobs int
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown error: timeout after %v with %d active jobs", e.Timeout, e.ActiveJobs)
}
