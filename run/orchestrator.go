package run

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pipewheel/pipewheel/errors"
	"github.com/pipewheel/pipewheel/gate"
	"github.com/pipewheel/pipewheel/internal/util"
	"github.com/pipewheel/pipewheel/pipeline"
	"github.com/pipewheel/pipewheel/tenant"
)

// ScheduleDisabler disables the schedule entry that drives a pipeline.
// *schedule.Registry satisfies this.
type ScheduleDisabler interface {
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// Orchestrator executes scheduled pipeline runs end to end: it resolves the
// pipeline, checks entitlement, drives the pipeline status through the run,
// and records execution history.
type Orchestrator struct {
	pipelines      *pipeline.Store
	executions     *ExecutionStore
	gate           *gate.Gate
	runner         WorkflowRunner
	schedules      ScheduleDisabler
	useFileHistory bool
	logger         *zap.SugaredLogger
}

// NewOrchestrator wires the run orchestrator. schedules may be nil when no
// schedule registry is in play; the entitlement gate must not be nil.
func NewOrchestrator(
	pipelines *pipeline.Store,
	executions *ExecutionStore,
	g *gate.Gate,
	runner WorkflowRunner,
	schedules ScheduleDisabler,
	useFileHistory bool,
	logger *zap.SugaredLogger,
) *Orchestrator {
	return &Orchestrator{
		pipelines:      pipelines,
		executions:     executions,
		gate:           g,
		runner:         runner,
		schedules:      schedules,
		useFileHistory: useFileHistory,
		logger:         logger.Named("run"),
	}
}

// ExecuteRun performs one scheduled run of a pipeline. It never returns an
// error: every failure is logged and reflected in pipeline status and
// execution history, so a bad run can't poison the queue or the scheduler.
func (o *Orchestrator) ExecuteRun(ctx context.Context, organizationID, pipelineID, pipelineName string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorw("Panic during pipeline run",
				"pipeline_id", pipelineID,
				"pipeline_name", pipelineName,
				"panic", r)
		}
	}()

	ctx = tenant.WithOrganization(ctx, organizationID)

	o.logger.Infow("Executing pipeline run",
		"organization_id", organizationID,
		"pipeline_id", pipelineID,
		"pipeline_name", pipelineName)

	p, err := o.pipelines.FetchActive(ctx, pipelineID)
	if err != nil {
		o.logger.Errorw("Pipeline unavailable for scheduled run",
			"pipeline_id", pipelineID,
			"error", err)
		return
	}

	workflow, err := o.pipelines.GetWorkflow(ctx, p.WorkflowID)
	if err != nil {
		o.logger.Errorw("Workflow lookup failed for scheduled run",
			"pipeline_id", pipelineID,
			"workflow_id", p.WorkflowID,
			"error", err)
		return
	}

	if !o.gate.IsEntitled(ctx, organizationID) {
		o.logger.Warnw("Organization not entitled, pausing pipeline schedule",
			"organization_id", organizationID,
			"pipeline_id", pipelineID)
		o.pauseSchedule(ctx, pipelineID)
		return
	}

	startedAt := time.Now()

	if err := o.pipelines.SetStatus(ctx, pipelineID, pipeline.StatusInProgress); err != nil {
		o.logger.Errorw("Failed to mark pipeline in progress",
			"pipeline_id", pipelineID,
			"error", err)
		return
	}
	if err := o.pipelines.MarkLastRun(ctx, pipelineID, startedAt); err != nil {
		o.logger.Warnw("Failed to record pipeline last run time",
			"pipeline_id", pipelineID,
			"error", err)
	}

	execution := &Execution{
		ID:             uuid.NewString(),
		PipelineID:     pipelineID,
		OrganizationID: organizationID,
		Status:         ExecutionStatusRunning,
		StartedAt:      startedAt.UTC().Format(time.RFC3339),
		CreatedAt:      startedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      startedAt.UTC().Format(time.RFC3339),
	}
	if err := o.executions.CreateExecution(ctx, execution); err != nil {
		// Execution history is best-effort, the run proceeds without it
		o.logger.Warnw("Failed to create execution record",
			"pipeline_id", pipelineID,
			"error", err)
	}

	result, runErr := o.runner.RunWorkflow(ctx, workflow, pipelineID, o.useFileHistory)

	completedAt := time.Now()
	durationMs := int(completedAt.Sub(startedAt).Milliseconds())
	execution.CompletedAt = util.Ptr(completedAt.UTC().Format(time.RFC3339))
	execution.DurationMs = &durationMs
	execution.UpdatedAt = completedAt.UTC().Format(time.RFC3339)

	if runErr != nil {
		execution.Status = ExecutionStatusFailed
		execution.ErrorMessage = util.Ptr(runErr.Error())

		if err := o.pipelines.SetStatus(ctx, pipelineID, pipeline.StatusFailure); err != nil {
			o.logger.Errorw("Failed to mark pipeline failed",
				"pipeline_id", pipelineID,
				"error", err)
		}
		o.finishExecution(ctx, execution)

		o.logger.Errorw("Pipeline run failed",
			"organization_id", organizationID,
			"pipeline_id", pipelineID,
			"pipeline_name", pipelineName,
			"duration_ms", durationMs,
			"error", runErr)
		return
	}

	result.StripMetadata()

	execution.Status = ExecutionStatusCompleted
	execution.ResultSummary = util.Ptr(result.Status)

	if err := o.pipelines.SetStatus(ctx, pipelineID, pipeline.StatusSuccess); err != nil {
		o.logger.Errorw("Failed to mark pipeline succeeded",
			"pipeline_id", pipelineID,
			"error", err)
	}
	o.finishExecution(ctx, execution)

	o.logger.Infow("Pipeline run completed",
		"organization_id", organizationID,
		"pipeline_id", pipelineID,
		"pipeline_name", pipelineName,
		"execution_id", result.ExecutionID,
		"duration_ms", durationMs,
		"records", len(result.Records))
}

// pauseSchedule disables the pipeline's schedule after an entitlement
// denial. Best-effort: the registry transitions the pipeline to PAUSED as
// part of disabling, and when no registry is wired we pause the pipeline
// directly.
func (o *Orchestrator) pauseSchedule(ctx context.Context, pipelineID string) {
	if o.schedules != nil {
		if err := o.schedules.SetEnabled(ctx, pipelineID, false); err != nil {
			o.logger.Errorw("Failed to disable schedule for unentitled pipeline",
				"pipeline_id", pipelineID,
				"error", err)
		}
		return
	}

	if err := o.pipelines.SetStatus(ctx, pipelineID, pipeline.StatusPaused); err != nil {
		o.logger.Errorw("Failed to pause unentitled pipeline",
			"pipeline_id", pipelineID,
			"error", err)
	}
}

func (o *Orchestrator) finishExecution(ctx context.Context, execution *Execution) {
	if err := o.executions.UpdateExecution(ctx, execution); err != nil {
		if errors.IsNotFoundError(err) {
			// Record creation failed earlier, nothing to update
			return
		}
		o.logger.Warnw("Failed to update execution record",
			"execution_id", execution.ID,
			"error", err)
	}
}
