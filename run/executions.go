package run

import (
	"context"
	"database/sql"

	"github.com/pipewheel/pipewheel/errors"
)

// Execution is one recorded pipeline run. Each ExecuteRun call creates one
// record, updated in place as the run finishes, giving per-pipeline run
// history for debugging and monitoring.
type Execution struct {
	ID             string  `json:"id"`
	PipelineID     string  `json:"pipeline_id"`
	OrganizationID string  `json:"organization_id,omitempty"`
	Status         string  `json:"status"` // "running", "completed", "failed"
	StartedAt      string  `json:"started_at"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	DurationMs     *int    `json:"duration_ms,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
	ResultSummary  *string `json:"result_summary,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// Execution status constants for type safety
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// ExecutionStore handles persistence of run execution records
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// CreateExecution inserts a new execution record
func (s *ExecutionStore) CreateExecution(ctx context.Context, e *Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_executions (
			id, pipeline_id, organization_id, status,
			started_at, completed_at, duration_ms,
			error_message, result_summary,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.PipelineID,
		e.OrganizationID,
		e.Status,
		e.StartedAt,
		e.CompletedAt,
		e.DurationMs,
		e.ErrorMessage,
		e.ResultSummary,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution record")
	}
	return nil
}

// UpdateExecution updates an existing execution record
func (s *ExecutionStore) UpdateExecution(ctx context.Context, e *Execution) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE run_executions
		SET status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    error_message = ?,
		    result_summary = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		e.Status,
		e.CompletedAt,
		e.DurationMs,
		e.ErrorMessage,
		e.ResultSummary,
		e.UpdatedAt,
		e.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution record")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("execution %s", e.ID)
	}
	return nil
}

// GetExecution retrieves an execution record by ID
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, executionSelect+` WHERE id = ?`, id)

	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("execution %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get execution %s", id)
	}
	return e, nil
}

// ListExecutions returns the most recent executions for a pipeline
func (s *ExecutionStore) ListExecutions(ctx context.Context, pipelineID string, limit int) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx, executionSelect+`
		WHERE pipeline_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, pipelineID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list executions for pipeline %s", pipelineID)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

const executionSelect = `
	SELECT id, pipeline_id, organization_id, status,
	       started_at, completed_at, duration_ms,
	       error_message, result_summary,
	       created_at, updated_at
	FROM run_executions`

func scanExecution(row interface{ Scan(...interface{}) error }) (*Execution, error) {
	var e Execution
	err := row.Scan(
		&e.ID,
		&e.PipelineID,
		&e.OrganizationID,
		&e.Status,
		&e.StartedAt,
		&e.CompletedAt,
		&e.DurationMs,
		&e.ErrorMessage,
		&e.ResultSummary,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
