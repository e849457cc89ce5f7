// Package queue runs asynchronous triage jobs over a Redis list queue with
// per-job status tracking and a bounded redelivery policy for
// infrastructure failures.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/mailops/triaged/pkg/models"
)

// JobState is the lifecycle state recorded in the per-job status hash.
type JobState string

// Job lifecycle states.
const (
	JobStatePending JobState = "PENDING"
	JobStateStarted JobState = "STARTED"
	JobStateSuccess JobState = "SUCCESS"
	JobStateFailure JobState = "FAILURE"
	JobStateRetry   JobState = "RETRY"
)

// ErrUnknownJob is returned when no status hash exists for a job id, either
// because the id was never enqueued or because its state already expired.
var ErrUnknownJob = errors.New("queue: unknown job")

// Job is one queued triage request. Deliveries counts how many times a
// worker has picked the job up; it is incremented on dequeue, not enqueue.
type Job struct {
	ID         string                `json:"id"`
	BatchID    string                `json:"batch_id,omitempty"`
	Request    *models.TriageRequest `json:"request"`
	EnqueuedAt string                `json:"enqueued_at"`
	Deliveries int                   `json:"deliveries"`
}

// JobStatus is the tracking record kept under triage:job:{id}.
type JobStatus struct {
	JobID       string   `json:"job_id"`
	BatchID     string   `json:"batch_id,omitempty"`
	RequestUID  string   `json:"request_uid,omitempty"`
	State       JobState `json:"state"`
	EnqueuedAt  string   `json:"enqueued_at,omitempty"`
	StartedAt   string   `json:"started_at,omitempty"`
	FinishedAt  string   `json:"finished_at,omitempty"`
	NextRetryAt string   `json:"next_retry_at,omitempty"`
	Error       string   `json:"error,omitempty"`
	Deliveries  int      `json:"deliveries"`
}

// Executor processes one triage request end to end, persistence included.
// Implemented by the triage service.
type Executor interface {
	Execute(ctx context.Context, req *models.TriageRequest, jobID string) (*models.TriageResult, error)
}

// PoolHealth is the aggregate health snapshot exposed over /health.
type PoolHealth struct {
	IsHealthy      bool           `json:"is_healthy"`
	RedisReachable bool           `json:"redis_reachable"`
	RedisError     string         `json:"redis_error,omitempty"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	QueueDepth     int64          `json:"queue_depth"`
	DelayedJobs    int64          `json:"delayed_jobs"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth is the per-worker slice of the pool health snapshot.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
	Stalled       bool      `json:"stalled,omitempty"`
}
