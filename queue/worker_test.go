package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pipewheel/pipewheel/errors"
	pwtest "github.com/pipewheel/pipewheel/internal/testing"
)

type countingHandler struct {
	name  string
	err   error
	mu    sync.Mutex
	calls int
}

func (h *countingHandler) Execute(_ context.Context, _ *Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.err
}

func (h *countingHandler) Name() string { return h.name }

func (h *countingHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestHandlerRegistry(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := &countingHandler{name: "test.handler"}

	registry.Register(handler)
	assert.True(t, registry.Has("test.handler"))
	assert.Equal(t, handler, registry.Get("test.handler"))
	assert.Nil(t, registry.Get("unknown"))
	assert.Equal(t, []string{"test.handler"}, registry.Names())

	assert.Panics(t, func() {
		registry.Register(&countingHandler{name: "test.handler"})
	})
}

func TestRegistryExecutor(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := &countingHandler{name: "test.handler"}
	registry.Register(handler)

	executor := NewRegistryExecutor(registry)
	ctx := context.Background()

	job := &Job{ID: "j-1", HandlerName: "test.handler"}
	require.NoError(t, executor.Execute(ctx, job))
	assert.Equal(t, 1, handler.Calls())

	err := executor.Execute(ctx, &Job{ID: "j-2", HandlerName: "unknown"})
	require.Error(t, err)

	err = executor.Execute(ctx, &Job{ID: "j-3"})
	require.Error(t, err)
}

func TestWorkerPoolProcessesJob(t *testing.T) {
	db := pwtest.CreateTestDB(t)

	pool := NewWorkerPool(context.Background(), db, WorkerPoolConfig{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
	}, zap.NewNop().Sugar())

	handler := &countingHandler{name: "test.handler"}
	pool.Registry().Register(handler)

	job, err := NewJob("test.handler", "src-1", json.RawMessage(`[]`))
	require.NoError(t, err)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := pool.GetQueue().GetJob(job.ID)
		return err == nil && got.Status == JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, handler.Calls())
}

func TestWorkerPoolRetriesThenFails(t *testing.T) {
	db := pwtest.CreateTestDB(t)

	pool := NewWorkerPool(context.Background(), db, WorkerPoolConfig{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
		MaxRetries:   2,
	}, zap.NewNop().Sugar())

	handler := &countingHandler{name: "test.handler", err: errors.New("engine unavailable")}
	pool.Registry().Register(handler)

	job, err := NewJob("test.handler", "src-1", nil)
	require.NoError(t, err)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := pool.GetQueue().GetJob(job.ID)
		return err == nil && got.Status == JobStatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	got, err := pool.GetQueue().GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Contains(t, got.Error, "engine unavailable")

	// Initial attempt plus two retries
	assert.Equal(t, 3, handler.Calls())
}

func TestWorkerPoolRecoversOrphanedJobs(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	q := NewQueue(db)

	// Simulate a crash: job left in running state
	job, err := NewJob("test.handler", "src-1", nil)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(job))

	running, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, running)

	pool := NewWorkerPool(context.Background(), db, WorkerPoolConfig{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
	}, zap.NewNop().Sugar())

	handler := &countingHandler{name: "test.handler"}
	pool.Registry().Register(handler)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := pool.GetQueue().GetJob(job.ID)
		return err == nil && got.Status == JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerPoolStopIsIdempotentAcrossRestart(t *testing.T) {
	db := pwtest.CreateTestDB(t)

	pool := NewWorkerPool(context.Background(), db, WorkerPoolConfig{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
	}, zap.NewNop().Sugar())
	pool.Registry().Register(&countingHandler{name: "test.handler"})

	pool.Start()
	pool.Stop()

	// Restart recreates the worker context
	pool.Start()

	job, err := NewJob("test.handler", "src-1", nil)
	require.NoError(t, err)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	require.Eventually(t, func() bool {
		got, err := pool.GetQueue().GetJob(job.ID)
		return err == nil && got.Status == JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	pool.Stop()
}
