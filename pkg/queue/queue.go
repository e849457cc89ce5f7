package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/models"
)

const (
	queueKey   = "triage:queue"
	delayedKey = "triage:queue:delayed"
	jobPrefix  = "triage:job:"

	// promoteBatch bounds how many due jobs one pump tick moves back onto
	// the ready list.
	promoteBatch = 100
)

// TaskQueue is the Redis-backed job queue: a ready list consumed with BRPOP,
// a delayed sorted set scored by redelivery time, and one status hash per
// job with the same TTL as stored results.
type TaskQueue struct {
	rdb      *redis.Client
	settings config.QueueSettings
	stateTTL time.Duration
}

// NewTaskQueue wraps an already-connected client, shared with the store.
// stateTTL bounds how long job status hashes outlive their job.
func NewTaskQueue(rdb *redis.Client, settings config.QueueSettings, stateTTL time.Duration) *TaskQueue {
	return &TaskQueue{
		rdb:      rdb,
		settings: settings,
		stateTTL: stateTTL,
	}
}

func jobKey(jobID string) string { return jobPrefix + jobID }

// Enqueue pushes the job onto the ready list and writes its PENDING status
// record. A missing job id is filled in.
func (q *TaskQueue) Enqueue(ctx context.Context, job *Job) error {
	if job.Request == nil {
		return errors.New("queue: job has no request")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt == "" {
		job.EnqueuedAt = models.NowISO()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.ID, err)
	}
	if err := q.rdb.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("queue: enqueue job %s: %w", job.ID, err)
	}

	fields := map[string]any{
		"state":       string(JobStatePending),
		"request_uid": job.Request.Email.UID,
		"enqueued_at": job.EnqueuedAt,
		"deliveries":  job.Deliveries,
	}
	if job.BatchID != "" {
		fields["batch_id"] = job.BatchID
	}
	if err := q.writeStatus(ctx, job.ID, fields); err != nil {
		return err
	}

	slog.Info("Job enqueued",
		"job_id", job.ID,
		"batch_id", job.BatchID,
		"request_uid", job.Request.Email.UID)
	return nil
}

// Dequeue blocks up to timeout for the next job. Returns nil, nil when the
// wait expires with nothing to do.
func (q *TaskQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.rdb.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("queue: unexpected BRPOP reply of %d elements", len(result))
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: decode job: %w", err)
	}
	return &job, nil
}

// ScheduleRetry parks the job on the delayed set for redelivery after delay
// and records the RETRY state with the triggering error.
func (q *TaskQueue) ScheduleRetry(ctx context.Context, job *Job, delay time.Duration, cause string) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.ID, err)
	}

	readyAt := time.Now().Add(delay)
	z := redis.Z{Score: float64(readyAt.UnixNano()) / float64(time.Second), Member: data}
	if err := q.rdb.ZAdd(ctx, delayedKey, z).Err(); err != nil {
		return fmt.Errorf("queue: delay job %s: %w", job.ID, err)
	}

	if err := q.writeStatus(ctx, job.ID, map[string]any{
		"state":         string(JobStateRetry),
		"error":         cause,
		"next_retry_at": readyAt.UTC().Format(time.RFC3339Nano),
		"deliveries":    job.Deliveries,
	}); err != nil {
		return err
	}

	slog.Warn("Job scheduled for redelivery",
		"job_id", job.ID,
		"deliveries", job.Deliveries,
		"delay", delay,
		"cause", cause)
	return nil
}

// PromoteDue moves jobs whose redelivery time has passed back onto the
// ready list. Safe to run from multiple processes: only the caller that
// removes a member pushes it.
func (q *TaskQueue) PromoteDue(ctx context.Context) (int, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	due, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(now, 'f', -1, 64),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scan delayed jobs: %w", err)
	}

	promoted := 0
	for _, member := range due {
		removed, err := q.rdb.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return promoted, fmt.Errorf("queue: unpark delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, queueKey, member).Err(); err != nil {
			return promoted, fmt.Errorf("queue: redeliver job: %w", err)
		}
		promoted++
	}

	if promoted > 0 {
		slog.Info("Redelivered delayed jobs", "count", promoted)
	}
	return promoted, nil
}

// Depth reports the ready-list length.
func (q *TaskQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.rdb.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth: %w", err)
	}
	return depth, nil
}

// DelayedCount reports how many jobs are parked for redelivery.
func (q *TaskQueue) DelayedCount(ctx context.Context) (int64, error) {
	count, err := q.rdb.ZCard(ctx, delayedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: delayed count: %w", err)
	}
	return count, nil
}

// MarkStarted records that a worker picked the job up, with the delivery
// count of this run.
func (q *TaskQueue) MarkStarted(ctx context.Context, job *Job) error {
	return q.writeStatus(ctx, job.ID, map[string]any{
		"state":      string(JobStateStarted),
		"started_at": models.NowISO(),
		"deliveries": job.Deliveries,
	})
}

// MarkSuccess records terminal success and the uid the result was stored
// under.
func (q *TaskQueue) MarkSuccess(ctx context.Context, jobID, requestUID string) error {
	return q.writeStatus(ctx, jobID, map[string]any{
		"state":       string(JobStateSuccess),
		"request_uid": requestUID,
		"finished_at": models.NowISO(),
	})
}

// MarkFailure records terminal failure with the final error.
func (q *TaskQueue) MarkFailure(ctx context.Context, jobID, cause string) error {
	return q.writeStatus(ctx, jobID, map[string]any{
		"state":       string(JobStateFailure),
		"error":       cause,
		"finished_at": models.NowISO(),
	})
}

// JobStatus reads the tracking record for a job.
func (q *TaskQueue) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	fields, err := q.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: read job status %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownJob
	}

	status := &JobStatus{
		JobID:       jobID,
		BatchID:     fields["batch_id"],
		RequestUID:  fields["request_uid"],
		State:       JobState(fields["state"]),
		EnqueuedAt:  fields["enqueued_at"],
		StartedAt:   fields["started_at"],
		FinishedAt:  fields["finished_at"],
		NextRetryAt: fields["next_retry_at"],
		Error:       fields["error"],
	}
	if raw := fields["deliveries"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			status.Deliveries = n
		}
	}
	return status, nil
}

// Ping checks the Redis connection for health reporting.
func (q *TaskQueue) Ping(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: ping: %w", err)
	}
	return nil
}

// writeStatus merges fields into the job hash and refreshes its TTL.
func (q *TaskQueue) writeStatus(ctx context.Context, jobID string, fields map[string]any) error {
	key := jobKey(jobID)
	if err := q.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("queue: write job status %s: %w", jobID, err)
	}
	if err := q.rdb.Expire(ctx, key, q.stateTTL).Err(); err != nil {
		return fmt.Errorf("queue: expire job status %s: %w", jobID, err)
	}
	return nil
}
