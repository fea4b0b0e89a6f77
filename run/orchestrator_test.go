package run

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pipewheel/pipewheel/errors"
	"github.com/pipewheel/pipewheel/gate"
	pwtest "github.com/pipewheel/pipewheel/internal/testing"
	"github.com/pipewheel/pipewheel/pipeline"
	"github.com/pipewheel/pipewheel/tenant"
)

type fakeRunner struct {
	result *ExecutionResult
	err    error
	calls  int

	// captured at call time
	statusAtCall   pipeline.Status
	orgAtCall      string
	useFileHistory bool

	pipelines *pipeline.Store
}

func (f *fakeRunner) RunWorkflow(ctx context.Context, _ *pipeline.Workflow, pipelineID string, useFileHistory bool) (*ExecutionResult, error) {
	f.calls++
	f.useFileHistory = useFileHistory
	f.orgAtCall, _ = tenant.OrganizationID(ctx)
	if f.pipelines != nil {
		f.statusAtCall, _ = f.pipelines.GetStatus(ctx, pipelineID)
	}
	return f.result, f.err
}

type fakeDisabler struct {
	disabled []string
}

func (f *fakeDisabler) SetEnabled(_ context.Context, name string, enabled bool) error {
	if !enabled {
		f.disabled = append(f.disabled, name)
	}
	return nil
}

type stubOracle struct {
	entitled bool
}

func (s *stubOracle) IsEntitled(_ context.Context, _ string) (bool, error) {
	return s.entitled, nil
}

func seedActivePipeline(t *testing.T, store *pipeline.Store, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateWorkflow(ctx, &pipeline.Workflow{ID: "wf-" + id, Name: "workflow"}))
	require.NoError(t, store.CreatePipeline(ctx, &pipeline.Pipeline{
		ID:             id,
		Name:           "pipeline " + id,
		WorkflowID:     "wf-" + id,
		OrganizationID: "org-1",
		Active:         true,
	}))
}

func newOrchestratorForTest(t *testing.T, db *sql.DB, runner WorkflowRunner, oracle gate.Oracle, schedules ScheduleDisabler) (*Orchestrator, *pipeline.Store, *ExecutionStore) {
	t.Helper()
	log := zap.NewNop().Sugar()
	pipelines := pipeline.NewStore(db)
	executions := NewExecutionStore(db)
	g := gate.New(oracle, 0, log)
	return NewOrchestrator(pipelines, executions, g, runner, schedules, true, log), pipelines, executions
}

func TestExecuteRunSuccess(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	runner := &fakeRunner{
		result: &ExecutionResult{
			ExecutionID: "ex-1",
			Status:      "COMPLETED",
			Records: []map[string]interface{}{
				{"file": "a.csv", MetadataKey: map[string]interface{}{"engine": "internal"}},
			},
		},
	}

	orch, pipelines, executions := newOrchestratorForTest(t, db, runner, nil, nil)
	runner.pipelines = pipelines
	seedActivePipeline(t, pipelines, "pipe-1")

	ctx := context.Background()
	orch.ExecuteRun(ctx, "org-1", "pipe-1", "nightly sync")

	assert.Equal(t, 1, runner.calls)
	assert.True(t, runner.useFileHistory)
	assert.Equal(t, "org-1", runner.orgAtCall)

	// Status was INPROGRESS while the engine ran, SUCCESS afterwards
	assert.Equal(t, pipeline.StatusInProgress, runner.statusAtCall)
	status, err := pipelines.GetStatus(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSuccess, status)

	p, err := pipelines.GetPipeline(ctx, "pipe-1")
	require.NoError(t, err)
	assert.NotNil(t, p.LastRunAt)

	// Engine metadata was stripped from the result
	_, hasMetadata := runner.result.Records[0][MetadataKey]
	assert.False(t, hasMetadata)

	// Execution history recorded the run
	execs, err := executions.ListExecutions(ctx, "pipe-1", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionStatusCompleted, execs[0].Status)
	assert.Equal(t, "org-1", execs[0].OrganizationID)
	require.NotNil(t, execs[0].DurationMs)
}

func TestExecuteRunEngineFailure(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	runner := &fakeRunner{err: errors.New("engine exploded")}

	orch, pipelines, executions := newOrchestratorForTest(t, db, runner, nil, nil)
	seedActivePipeline(t, pipelines, "pipe-1")

	ctx := context.Background()
	orch.ExecuteRun(ctx, "org-1", "pipe-1", "nightly sync")

	status, err := pipelines.GetStatus(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusFailure, status)

	execs, err := executions.ListExecutions(ctx, "pipe-1", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionStatusFailed, execs[0].Status)
	require.NotNil(t, execs[0].ErrorMessage)
	assert.Contains(t, *execs[0].ErrorMessage, "engine exploded")
}

func TestExecuteRunGateDenialDisablesSchedule(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	runner := &fakeRunner{result: &ExecutionResult{Status: "COMPLETED"}}
	disabler := &fakeDisabler{}

	orch, pipelines, _ := newOrchestratorForTest(t, db, runner, &stubOracle{entitled: false}, disabler)
	seedActivePipeline(t, pipelines, "pipe-1")

	orch.ExecuteRun(context.Background(), "org-1", "pipe-1", "nightly sync")

	// Engine never ran, schedule was disabled
	assert.Equal(t, 0, runner.calls)
	assert.Equal(t, []string{"pipe-1"}, disabler.disabled)
}

func TestExecuteRunGateDenialWithoutRegistryPausesPipeline(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	runner := &fakeRunner{result: &ExecutionResult{Status: "COMPLETED"}}

	orch, pipelines, _ := newOrchestratorForTest(t, db, runner, &stubOracle{entitled: false}, nil)
	seedActivePipeline(t, pipelines, "pipe-1")

	ctx := context.Background()
	orch.ExecuteRun(ctx, "org-1", "pipe-1", "nightly sync")

	assert.Equal(t, 0, runner.calls)
	status, err := pipelines.GetStatus(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusPaused, status)
}

func TestExecuteRunInactivePipeline(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	runner := &fakeRunner{result: &ExecutionResult{Status: "COMPLETED"}}

	orch, pipelines, _ := newOrchestratorForTest(t, db, runner, nil, nil)
	ctx := context.Background()
	require.NoError(t, pipelines.CreateWorkflow(ctx, &pipeline.Workflow{ID: "wf-1", Name: "workflow"}))
	require.NoError(t, pipelines.CreatePipeline(ctx, &pipeline.Pipeline{
		ID:             "pipe-1",
		Name:           "inactive",
		WorkflowID:     "wf-1",
		OrganizationID: "org-1",
		Active:         false,
	}))

	orch.ExecuteRun(ctx, "org-1", "pipe-1", "inactive")

	assert.Equal(t, 0, runner.calls)
	status, err := pipelines.GetStatus(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCreated, status)
}

func TestExecuteRunUnknownPipeline(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	runner := &fakeRunner{result: &ExecutionResult{Status: "COMPLETED"}}

	orch, _, _ := newOrchestratorForTest(t, db, runner, nil, nil)

	// Must not panic or call the engine
	orch.ExecuteRun(context.Background(), "org-1", "pipe-missing", "ghost")
	assert.Equal(t, 0, runner.calls)
}

func TestStripMetadata(t *testing.T) {
	result := &ExecutionResult{
		Records: []map[string]interface{}{
			{"file": "a.csv", MetadataKey: "internal"},
			{"file": "b.csv"},
		},
	}
	result.StripMetadata()

	for _, record := range result.Records {
		_, has := record[MetadataKey]
		assert.False(t, has)
	}
	assert.Equal(t, "a.csv", result.Records[0]["file"])
}
