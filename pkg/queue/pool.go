package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailops/triaged/pkg/config"
)

// pumpInterval is how often the pool scans the delayed set for jobs whose
// redelivery time has passed.
const pumpInterval = time.Second

// WorkerPool manages a pool of queue workers plus the redelivery pump.
type WorkerPool struct {
	queue    *TaskQueue
	executor Executor
	settings config.QueueSettings
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(queue *TaskQueue, executor Executor, settings config.QueueSettings) *WorkerPool {
	return &WorkerPool{
		queue:    queue,
		executor: executor,
		settings: settings,
		workers:  make([]*Worker, 0, settings.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns worker goroutines and the redelivery pump.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "worker_count", p.settings.WorkerCount)

	for i := 0; i < p.settings.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.queue, p.executor, p.settings)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runRedeliveryPump(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current jobs before exiting.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// runRedeliveryPump periodically moves due delayed jobs back onto the ready
// list.
func (p *WorkerPool) runRedeliveryPump(ctx context.Context) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.queue.PromoteDue(ctx); err != nil {
				slog.Warn("Redelivery scan failed", "error", err)
			}
		}
	}
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	depth, errQ := p.queue.Depth(ctx)
	if errQ != nil {
		slog.Error("Failed to query queue depth for health check", "error", errQ)
	}
	delayed, errD := p.queue.DelayedCount(ctx)
	if errD != nil {
		slog.Error("Failed to query delayed jobs for health check", "error", errD)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	anyStalled := false
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
		if stats.Stalled {
			anyStalled = true
		}
	}

	redisHealthy := errQ == nil && errD == nil
	var redisErr string
	if errQ != nil {
		redisErr = errQ.Error()
	} else if errD != nil {
		redisErr = errD.Error()
	}

	return &PoolHealth{
		IsHealthy:      len(p.workers) > 0 && redisHealthy && !anyStalled,
		RedisReachable: redisHealthy,
		RedisError:     redisErr,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		QueueDepth:     depth,
		DelayedJobs:    delayed,
		WorkerStats:    workerStats,
	}
}
