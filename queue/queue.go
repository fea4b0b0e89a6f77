package queue

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pipewheel/pipewheel/errors"
)

// MaxJobsLimit is the maximum number of jobs counted when computing stats
const MaxJobsLimit = 10000

// Queue serializes job state changes over the store.
type Queue struct {
	store *Store
	mu    sync.RWMutex
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{store: NewStore(db)}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		err = errors.WithDetail(err, fmt.Sprintf("Source: %s", job.Source))
		return err
	}
	return nil
}

// Dequeue gets the oldest queued job and marks it as running.
// Returns (nil, nil) when no work is available.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.store.ListQueuedOldestFirst(1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queued jobs")
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	job := jobs[0]
	job.Start()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as running")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.GetJob(id)
}

// UpdateJob updates a job's state
func (q *Queue) UpdateJob(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to update job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Status: %s", job.Status))
		return err
	}
	return nil
}

// CompleteJob marks a job as completed
func (q *Queue) CompleteJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", id)
	}

	job.Complete()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to complete job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		return err
	}
	return nil
}

// FailJob marks a job as failed with an error
func (q *Queue) FailJob(id string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s as failed", id)
	}

	job.Fail(jobErr)

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as failed")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Job error: %s", jobErr.Error()))
		return err
	}
	return nil
}

// ListJobs returns jobs, optionally filtered by status
func (q *Queue) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListJobs(status, limit)
}

// ListActiveJobs returns all active (queued or running) jobs
func (q *Queue) ListActiveJobs(limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListActiveJobs(limit)
}

// FindActiveJobBySourceAndHandler finds an active job by source and handler
// name. Returns nil if no active job exists for this source.
func (q *Queue) FindActiveJobBySourceAndHandler(source string, handlerName string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.FindActiveJobBySourceAndHandler(source, handlerName)
}

// Cleanup removes old finished jobs
func (q *Queue) Cleanup(olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.CleanupOldJobs(olderThan)
}

// Stats holds counts of jobs by status
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*Stats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := &Stats{}
	for _, status := range []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		jobs, err := q.store.ListJobs(&status, MaxJobsLimit)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to count %s jobs", status)
		}

		count := len(jobs)
		switch status {
		case JobStatusQueued:
			stats.Queued = count
		case JobStatusRunning:
			stats.Running = count
		case JobStatusCompleted:
			stats.Completed = count
		case JobStatusFailed:
			stats.Failed = count
		case JobStatusCancelled:
			stats.Cancelled = count
		}
		stats.Total += count
	}

	return stats, nil
}
