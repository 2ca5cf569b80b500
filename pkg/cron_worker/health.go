package cron_worker

import (
	"context"
	"time"
)

// HealthStatus representa o status de saúde do worker
type HealthStatus struct {
	Status     string    `json:"status"`
	IsRunning  bool      `json:"is_running"`
	JobsCount  int       `json:"jobs_count"`
	ActiveJobs int32     `json:"active_jobs"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Health retorna o status de saúde atual do worker
func (s *Server) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "healthy",
		IsRunning:  s.running.Load(),
		JobsCount:  s.GetJobCount(),
		ActiveJobs: s.activeJobs.Load(),
		Timestamp:  time.Now().UTC(),
	}

	if !status.IsRunning {
		status.Status = "unhealthy"
		status.Message = "worker not running"
	}

	return status
}

// HealthCheck tem a assinatura dos health checks do servidor HTTP.
func (s *Server) HealthCheck(ctx context.Context) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	return nil
}

// Readiness verifica se o worker está pronto para processar jobs
func (s *Server) Readiness(ctx context.Context) bool {
	return s.running.Load() && s.GetJobCount() > 0
}

// Liveness verifica se o worker está vivo
func (s *Server) Liveness(ctx context.Context) bool {
	return s.running.Load()
}
