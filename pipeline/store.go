package pipeline

import (
	"context"
	"database/sql"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pipewheel/pipewheel/errors"
)

// Store handles persistence of workflows, pipelines, and run status
type Store struct {
	db *sql.DB
}

// NewStore creates a new pipeline store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// isConstraintViolation reports whether the driver rejected a write for a
// uniqueness or key constraint.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// CreateWorkflow inserts a new workflow definition
func (s *Store) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, wf.ID, wf.Name, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if isConstraintViolation(err) {
		return errors.Wrapf(errors.ErrConflict, "workflow %s already exists", wf.ID)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to create workflow %s", wf.ID)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID
func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM workflows
		WHERE id = ?
	`, id).Scan(&wf.ID, &wf.Name, &createdAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("workflow %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get workflow %s", id)
	}

	wf.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for workflow %s", id)
	}
	wf.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for workflow %s", id)
	}

	return &wf, nil
}

// CreatePipeline inserts a new pipeline record
func (s *Store) CreatePipeline(ctx context.Context, p *Pipeline) error {
	if p.RunStatus == "" {
		p.RunStatus = StatusCreated
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipelines (
			id, name, workflow_id, organization_id,
			active, run_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.Name,
		p.WorkflowID,
		p.OrganizationID,
		p.Active,
		string(p.RunStatus),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if isConstraintViolation(err) {
		return errors.Wrapf(errors.ErrConflict, "pipeline %s already exists", p.ID)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to create pipeline %s", p.ID)
	}
	return nil
}

// GetPipeline retrieves a pipeline by ID
func (s *Store) GetPipeline(ctx context.Context, id string) (*Pipeline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, workflow_id, organization_id,
		       active, run_status, last_run_at, created_at, updated_at
		FROM pipelines
		WHERE id = ?
	`, id)

	return scanPipeline(row, id)
}

// FetchActive retrieves a pipeline by ID and verifies it is active.
// Returns errors.ErrNotFound if no such pipeline exists and
// errors.ErrPipelineInactive if it exists but is disabled.
func (s *Store) FetchActive(ctx context.Context, id string) (*Pipeline, error) {
	p, err := s.GetPipeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, errors.Wrapf(errors.ErrPipelineInactive, "pipeline %s", id)
	}
	return p, nil
}

// ListPipelines returns all pipelines for an organization, newest first
func (s *Store) ListPipelines(ctx context.Context, organizationID string) ([]*Pipeline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, workflow_id, organization_id,
		       active, run_status, last_run_at, created_at, updated_at
		FROM pipelines
		WHERE organization_id = ?
		ORDER BY created_at DESC
	`, organizationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pipelines")
	}
	defer rows.Close()

	var pipelines []*Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows, "")
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}

	return pipelines, rows.Err()
}

// GetStatus returns the current run status of a pipeline
func (s *Store) GetStatus(ctx context.Context, pipelineID string) (Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT run_status FROM pipelines WHERE id = ?", pipelineID,
	).Scan(&status)

	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.NewNotFoundError("pipeline %s", pipelineID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to get status for pipeline %s", pipelineID)
	}

	return Status(status), nil
}

// SetStatus overwrites the run status of a pipeline. Writes are full
// overwrites; the most recent write wins.
func (s *Store) SetStatus(ctx context.Context, pipelineID string, status Status) error {
	if !IsValidStatus(string(status)) {
		return errors.Wrapf(errors.ErrInvalidRequest, "unknown pipeline status %q", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE pipelines
		SET run_status = ?,
		    updated_at = ?
		WHERE id = ?
	`, string(status), time.Now().UTC().Format(time.RFC3339), pipelineID)
	if err != nil {
		return errors.Wrapf(err, "failed to set status for pipeline %s", pipelineID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("pipeline %s", pipelineID)
	}

	return nil
}

// MarkLastRun records the most recent run start time for a pipeline
func (s *Store) MarkLastRun(ctx context.Context, pipelineID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipelines
		SET last_run_at = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		at.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		pipelineID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to mark last run for pipeline %s", pipelineID)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPipeline(row scanner, id string) (*Pipeline, error) {
	var p Pipeline
	var status string
	var lastRunAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.WorkflowID,
		&p.OrganizationID,
		&p.Active,
		&status,
		&lastRunAt,
		&createdAt,
		&updatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("pipeline %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan pipeline")
	}

	p.RunStatus = Status(status)

	p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for pipeline %s", p.ID)
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for pipeline %s", p.ID)
	}
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_run_at for pipeline %s", p.ID)
		}
		p.LastRunAt = &t
	}

	return &p, nil
}
