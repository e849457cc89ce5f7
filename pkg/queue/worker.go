package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/retry"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

const (
	// heartbeatInterval is how often a busy worker refreshes its liveness
	// timestamp while a job runs.
	heartbeatInterval = 15 * time.Second

	// stalledAfter is how long a working worker may go without a heartbeat
	// before the pool reports it stalled.
	stalledAfter = 2 * time.Minute
)

// Worker is a single queue worker that polls for and processes jobs.
type Worker struct {
	id       string
	queue    *TaskQueue
	executor Executor
	settings config.QueueSettings
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id string, queue *TaskQueue, executor Executor, settings config.QueueSettings) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		executor:     executor,
		settings:     settings,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. The worker
// completes its current job before exiting. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
		Stalled:       w.status == WorkerStatusWorking && time.Since(w.lastActivity) > stalledAfter,
	}
}

// run is the main worker loop. The BRPOP timeout doubles as the shutdown
// observation cadence.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				log.Error("Queue poll failed", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess waits for the next job and runs it. A nil job means the
// poll timed out with nothing to do.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.queue.Dequeue(ctx, w.settings.PollTimeout())
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	w.process(ctx, job)
	return nil
}

// process runs one job through the executor and records its terminal state.
// Terminal writes use a background context so shutdown cannot lose them.
func (w *Worker) process(ctx context.Context, job *Job) {
	job.Deliveries++
	log := slog.With("job_id", job.ID, "worker_id", w.id)

	if job.Request == nil {
		log.Error("Dropping job without request payload")
		if err := w.queue.MarkFailure(context.Background(), job.ID, "job has no request payload"); err != nil {
			log.Warn("Failed to record job failure", "error", err)
		}
		return
	}

	log.Info("Job claimed",
		"request_uid", job.Request.Email.UID,
		"deliveries", job.Deliveries)
	if err := w.queue.MarkStarted(ctx, job); err != nil {
		log.Warn("Failed to record job start", "error", err)
	}

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx)

	result, err := w.executor.Execute(ctx, job.Request, job.ID)
	cancelHeartbeat()

	switch {
	case err == nil:
		if serr := w.queue.MarkSuccess(context.Background(), job.ID, result.RequestUID); serr != nil {
			log.Warn("Failed to record job success", "error", serr)
		}
		w.bumpProcessed()
		log.Info("Job completed",
			"request_uid", result.RequestUID,
			"retries_used", result.RetriesUsed)

	case retry.IsExhausted(err):
		// The ladder is spent and the executor already dead-lettered the
		// request. Terminal failure, never redelivered.
		if serr := w.queue.MarkFailure(context.Background(), job.ID, err.Error()); serr != nil {
			log.Warn("Failed to record job failure", "error", serr)
		}
		w.bumpProcessed()
		log.Error("Job failed with retry ladder exhausted", "error", err)

	default:
		w.redeliver(context.Background(), job, err)
	}
}

// redeliver handles infrastructure failures: the job goes back through the
// delayed set until the delivery cap, then fails for good.
func (w *Worker) redeliver(ctx context.Context, job *Job, cause error) {
	log := slog.With("job_id", job.ID, "worker_id", w.id)

	if job.Deliveries >= w.settings.MaxDeliveries {
		log.Error("Job failed at delivery cap",
			"deliveries", job.Deliveries,
			"error", cause)
		if err := w.queue.MarkFailure(ctx, job.ID, cause.Error()); err != nil {
			log.Warn("Failed to record job failure", "error", err)
		}
		w.bumpProcessed()
		return
	}

	if err := w.queue.ScheduleRetry(ctx, job, w.settings.RedeliveryDelay(), cause.Error()); err != nil {
		log.Error("Failed to schedule redelivery", "error", err)
	}
}

// runHeartbeat refreshes the liveness timestamp until the job finishes.
func (w *Worker) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.touch()
		}
	}
}

func (w *Worker) touch() {
	w.mu.Lock()
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

func (w *Worker) bumpProcessed() {
	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
