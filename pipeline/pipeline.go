// Package pipeline provides pipeline and workflow records and the
// pipeline run-status store.
package pipeline

import "time"

// Status is the single pipeline-level run status. Exactly one status exists
// per pipeline; every write overwrites the previous value in full.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "INPROGRESS"
	StatusPaused     Status = "PAUSED"     // schedule disabled
	StatusRestarting Status = "RESTARTING" // schedule re-enabled, no run started yet
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusCreated, StatusInProgress, StatusPaused,
		StatusRestarting, StatusSuccess, StatusFailure:
		return true
	default:
		return false
	}
}

// Workflow is a workflow definition a pipeline executes.
type Workflow struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pipeline is a pipeline record. RunStatus is owned by this record; the
// scheduler and run orchestrator overwrite it as runs progress.
type Pipeline struct {
	ID             string
	Name           string
	WorkflowID     string
	OrganizationID string
	Active         bool
	RunStatus      Status
	LastRunAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
