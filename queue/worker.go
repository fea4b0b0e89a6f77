package queue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pipewheel/pipewheel/db"
	"github.com/pipewheel/pipewheel/errors"
)

const (
	// MaxOrphanedJobsToRecover limits how many orphaned jobs we'll attempt
	// to recover on startup after a crash
	MaxOrphanedJobsToRecover = 1000

	// DefaultMaxRetries is the retry budget for failed jobs when the pool
	// config doesn't set one
	DefaultMaxRetries = 2
)

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often to check for new jobs
	MaxRetries   int           `json:"max_retries"`   // Retry attempts for failed jobs
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 5 * time.Second,
		MaxRetries:   DefaultMaxRetries,
	}
}

// WorkerPool manages a pool of workers that process queued jobs.
//
// Workers share the queue and poll it on an interval. The pool derives its
// context from the parent passed at construction so server shutdown cancels
// in-flight work; cancelled jobs are re-queued rather than failed.
type WorkerPool struct {
	queue      *Queue
	registry   *HandlerRegistry
	executor   JobExecutor
	poolConfig WorkerPoolConfig
	parentCtx  context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *zap.SugaredLogger
	mu         sync.Mutex
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// Callers must register handlers via Registry() before calling Start().
func NewWorkerPool(ctx context.Context, db *sql.DB, poolCfg WorkerPoolConfig, logger *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)

	if poolCfg.Workers <= 0 {
		poolCfg.Workers = 1
	}
	if poolCfg.PollInterval <= 0 {
		poolCfg.PollInterval = 5 * time.Second
	}
	if poolCfg.MaxRetries < 0 {
		poolCfg.MaxRetries = DefaultMaxRetries
	}

	registry := NewHandlerRegistry()

	return &WorkerPool{
		queue:      NewQueue(db),
		registry:   registry,
		executor:   NewRegistryExecutor(registry),
		poolConfig: poolCfg,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		logger:     logger.Named("queue"),
	}
}

// Start begins processing jobs with the worker pool.
// Orphaned jobs from a previous crash are re-queued before workers spawn.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	// After Stop() the context is cancelled; recreate it from the parent
	// before spawning workers
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Debugw("Recreated worker context after previous shutdown")
	default:
	}
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", "error", err)
		// Continue starting workers even if recovery fails
	}

	for i := 0; i < wp.poolConfig.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.logger.Infow("Worker pool started",
		"workers", wp.poolConfig.Workers,
		"poll_interval", wp.poolConfig.PollInterval)
}

// Stop gracefully stops the worker pool, waiting up to 30 seconds for
// in-flight jobs to exit.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.logger.Infow("Worker pool stopped, all workers exited cleanly")
	case <-time.After(timeout):
		wp.logger.Warnw("Worker pool stop timeout, workers may still be finishing", "timeout", timeout)
	}
}

// recoverOrphanedJobs finds jobs stuck in "running" state and re-queues them.
// This handles ungraceful shutdowns (crash, kill -9, power loss).
func (wp *WorkerPool) recoverOrphanedJobs() error {
	runningStatus := JobStatusRunning
	orphaned, err := wp.queue.ListJobs(&runningStatus, MaxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphaned) == 0 {
		return nil
	}

	wp.logger.Infow("Recovering orphaned jobs from previous shutdown", "count", len(orphaned))

	for _, job := range orphaned {
		job.Requeue()
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.logger.Warnw("Failed to recover orphaned job", "job_id", job.ID, "error", err)
			continue
		}
		wp.logger.Debugw("Recovered orphaned job", "job_id", job.ID, "handler", job.HandlerName)
	}

	return nil
}

// worker processes jobs from the queue until the pool context is cancelled
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.poolConfig.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextJob(); err != nil {
				select {
				case <-wp.ctx.Done():
					// Shutting down, exit without logging
					return
				default:
					if db.IsDatabaseClosed(err) || errors.Is(err, sql.ErrConnDone) {
						// Database closed during shutdown
						return
					}
					wp.logger.Errorw("Worker error processing job",
						"worker_id", id,
						"error", err)
				}
			}
		}
	}
}

// processNextJob dequeues and executes one job if any is available
func (wp *WorkerPool) processNextJob() error {
	select {
	case <-wp.ctx.Done():
		return nil
	default:
	}

	job, err := wp.queue.Dequeue()
	if err != nil {
		return errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return nil
	}

	if err := wp.executor.Execute(wp.ctx, job); err != nil {
		select {
		case <-wp.ctx.Done():
			// Cancelled during execution, re-queue instead of failing
			wp.logger.Infow("Job cancelled during execution, re-queuing", "job_id", job.ID)
			job.Requeue()
			if updateErr := wp.queue.UpdateJob(job); updateErr != nil {
				wp.logger.Errorw("Failed to re-queue cancelled job", "job_id", job.ID, "error", updateErr)
			}
			return nil
		default:
		}

		if job.RetryCount < wp.poolConfig.MaxRetries {
			job.RetryCount++
			job.Requeue()
			wp.logger.Warnw("Job failed, retrying",
				"job_id", job.ID,
				"handler", job.HandlerName,
				"retry", fmt.Sprintf("%d/%d", job.RetryCount, wp.poolConfig.MaxRetries),
				"error", err)
			return wp.queue.UpdateJob(job)
		}

		return wp.queue.FailJob(job.ID, err)
	}

	return wp.queue.CompleteJob(job.ID)
}

// GetQueue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.poolConfig.Workers
}

// Registry returns the handler registry for registering job handlers
// before calling Start().
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}
