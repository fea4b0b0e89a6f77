package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewheel/pipewheel/errors"
	pwtest "github.com/pipewheel/pipewheel/internal/testing"
	"github.com/pipewheel/pipewheel/internal/util"
)

func TestExecutionStoreRoundTrip(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Format(time.RFC3339)
	execution := &Execution{
		ID:             "exec-1",
		PipelineID:     "pipe-1",
		OrganizationID: "org-1",
		Status:         ExecutionStatusRunning,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, store.CreateExecution(ctx, execution))

	execution.Status = ExecutionStatusCompleted
	execution.CompletedAt = util.Ptr(now)
	execution.DurationMs = util.Ptr(1200)
	execution.ResultSummary = util.Ptr("COMPLETED")
	require.NoError(t, store.UpdateExecution(ctx, execution))

	got, err := store.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCompleted, got.Status)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, 1200, *got.DurationMs)

	_, err = store.GetExecution(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListExecutionsNewestFirst(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	store := NewExecutionStore(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"exec-old", "exec-new"} {
		at := base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		require.NoError(t, store.CreateExecution(ctx, &Execution{
			ID:         id,
			PipelineID: "pipe-1",
			Status:     ExecutionStatusCompleted,
			StartedAt:  at,
			CreatedAt:  at,
			UpdatedAt:  at,
		}))
	}

	execs, err := store.ListExecutions(ctx, "pipe-1", 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "exec-new", execs[0].ID)

	execs, err = store.ListExecutions(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, execs)
}
