package queue

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pipewheel/pipewheel/errors"
)

const jobSelectColumns = `
	id, handler_name, payload, source, status, error, retry_count,
	created_at, started_at, completed_at, updated_at`

// Store handles persistence of queue jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	_, err := s.db.Exec(`
		INSERT INTO queue_jobs (
			id, handler_name, payload, source, status, error, retry_count,
			created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.HandlerName,
		string(job.Payload),
		job.Source,
		string(job.Status),
		job.Error,
		job.RetryCount,
		job.CreatedAt.UTC().Format(time.RFC3339),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobSelectColumns+` FROM queue_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// UpdateJob updates an existing job in the database
func (s *Store) UpdateJob(job *Job) error {
	_, err := s.db.Exec(`
		UPDATE queue_jobs
		SET handler_name = ?,
		    payload = ?,
		    status = ?,
		    error = ?,
		    retry_count = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		job.HandlerName,
		string(job.Payload),
		string(job.Status),
		job.Error,
		job.RetryCount,
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.UpdatedAt.UTC().Format(time.RFC3339),
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}
	return nil
}

// ListJobs returns jobs, optionally filtered by status, newest first
func (s *Store) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = s.db.Query(`SELECT `+jobSelectColumns+`
			FROM queue_jobs
			WHERE status = ?
			ORDER BY created_at DESC
			LIMIT ?`, string(*status), limit)
	} else {
		rows, err = s.db.Query(`SELECT `+jobSelectColumns+`
			FROM queue_jobs
			ORDER BY created_at DESC
			LIMIT ?`, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListQueuedOldestFirst returns queued jobs in dispatch order
func (s *Store) ListQueuedOldestFirst(limit int) ([]*Job, error) {
	rows, err := s.db.Query(`SELECT `+jobSelectColumns+`
		FROM queue_jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queued jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListActiveJobs returns all jobs that are currently queued or running
func (s *Store) ListActiveJobs(limit int) ([]*Job, error) {
	rows, err := s.db.Query(`SELECT `+jobSelectColumns+`
		FROM queue_jobs
		WHERE status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// FindActiveJobBySourceAndHandler finds an active (queued or running) job by
// source and handler name. Returns nil if no active job exists; this is how
// the scheduler avoids stacking duplicate runs for a schedule entry.
func (s *Store) FindActiveJobBySourceAndHandler(source string, handlerName string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobSelectColumns+`
		FROM queue_jobs
		WHERE source = ?
		  AND handler_name = ?
		  AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1`, source, handlerName)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No active job found - this is not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active job by source and handler")
	}
	return job, nil
}

// DeleteJob removes a job from the database
func (s *Store) DeleteJob(id string) error {
	result, err := s.db.Exec(`DELETE FROM queue_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job %s", id)
	}
	return nil
}

// CleanupOldJobs removes completed/failed/cancelled jobs older than the
// specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339)

	result, err := s.db.Exec(`
		DELETE FROM queue_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < ?
	`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var payload, status string
	var createdAt, updatedAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(
		&job.ID,
		&job.HandlerName,
		&payload,
		&job.Source,
		&status,
		&job.Error,
		&job.RetryCount,
		&createdAt,
		&startedAt,
		&completedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if payload != "" {
		job.Payload = json.RawMessage(payload)
	}
	job.Status = JobStatus(status)

	if job.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}
	if job.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for job %s", job.ID)
	}
	if job.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse completed_at for job %s", job.ID)
	}

	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}
	return jobs, nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
