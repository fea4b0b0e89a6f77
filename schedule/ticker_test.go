package schedule

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pwtest "github.com/pipewheel/pipewheel/internal/testing"
	"github.com/pipewheel/pipewheel/queue"
)

func backdateEntry(t *testing.T, db *sql.DB, name string) {
	t.Helper()
	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	_, err := db.Exec("UPDATE schedule_entries SET next_run_at = ? WHERE name = ?", past, name)
	require.NoError(t, err)
}

func TestTickerFiresDueEntry(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	registry := NewRegistry(db, nil, zap.NewNop().Sugar())
	q := queue.NewQueue(db)
	ctx := context.Background()

	_, err := registry.Upsert(ctx, "pipe-1", "* * * * *", "pipeline.run", nil, true)
	require.NoError(t, err)
	backdateEntry(t, db, "pipe-1")

	ticker := NewTicker(ctx, registry, q, TickerConfig{Interval: 10 * time.Millisecond}, zap.NewNop().Sugar())
	ticker.Start()
	defer ticker.Stop()

	require.Eventually(t, func() bool {
		job, err := q.FindActiveJobBySourceAndHandler("pipe-1", "pipeline.run")
		return err == nil && job != nil
	}, 5*time.Second, 20*time.Millisecond)

	// The entry advanced past now, so it won't refire this minute
	entry, err := registry.Get(ctx, "pipe-1")
	require.NoError(t, err)
	require.NotNil(t, entry.NextRunAt)
	assert.True(t, entry.NextRunAt.After(time.Now()))
	require.NotNil(t, entry.LastRunAt)
}

func TestTickerSkipsEntryWithActiveJob(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	registry := NewRegistry(db, nil, zap.NewNop().Sugar())
	q := queue.NewQueue(db)
	ctx := context.Background()

	_, err := registry.Upsert(ctx, "pipe-1", "* * * * *", "pipeline.run", nil, true)
	require.NoError(t, err)

	// An earlier activation is still queued
	existing, err := queue.NewJob("pipeline.run", "pipe-1", nil)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(existing))

	backdateEntry(t, db, "pipe-1")

	ticker := NewTicker(ctx, registry, q, TickerConfig{Interval: 10 * time.Millisecond}, zap.NewNop().Sugar())
	ticker.Start()
	defer ticker.Stop()

	// The schedule still advances even though no new job was enqueued
	require.Eventually(t, func() bool {
		entry, err := registry.Get(ctx, "pipe-1")
		return err == nil && entry.NextRunAt != nil && entry.NextRunAt.After(time.Now())
	}, 5*time.Second, 20*time.Millisecond)

	queued := queue.JobStatusQueued
	jobs, err := q.ListJobs(&queued, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, existing.ID, jobs[0].ID)
}

func TestTickerIgnoresDisabledEntries(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	registry := NewRegistry(db, nil, zap.NewNop().Sugar())
	q := queue.NewQueue(db)
	ctx := context.Background()

	_, err := registry.Upsert(ctx, "pipe-1", "* * * * *", "pipeline.run", nil, false)
	require.NoError(t, err)
	backdateEntry(t, db, "pipe-1")

	ticker := NewTicker(ctx, registry, q, TickerConfig{Interval: 10 * time.Millisecond}, zap.NewNop().Sugar())
	ticker.Start()

	time.Sleep(100 * time.Millisecond)
	ticker.Stop()

	jobs, err := q.ListJobs(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestTickerDisablesEntryWithNoNextActivation(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	registry := NewRegistry(db, nil, zap.NewNop().Sugar())
	q := queue.NewQueue(db)
	ctx := context.Background()

	// A row stored before never-matching expressions were rejected: the
	// recurrence (February 31st) has no future activation and the stored
	// next_run_at is the zero time, so the entry reads as perpetually due.
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`
		INSERT INTO crontab_schedules (id, minute, hour, day_of_month, month_of_year, day_of_week, created_at)
		VALUES ('ct-feb31', '0', '0', '31', '2', '*', ?)`, now)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO schedule_entries (name, crontab_id, handler_name, args, enabled, next_run_at, created_at, updated_at)
		VALUES ('pipe-feb31', 'ct-feb31', 'pipeline.run', '[]', 1, '0001-01-01T00:00:00Z', ?, ?)`, now, now)
	require.NoError(t, err)

	ticker := NewTicker(ctx, registry, q, TickerConfig{Interval: 10 * time.Millisecond}, zap.NewNop().Sugar())
	ticker.Start()
	defer ticker.Stop()

	// The ticker disables the entry instead of firing it on every tick
	require.Eventually(t, func() bool {
		entry, err := registry.Get(ctx, "pipe-feb31")
		return err == nil && entry != nil && !entry.Enabled
	}, 5*time.Second, 20*time.Millisecond)

	jobs, err := q.ListJobs(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestTickerStats(t *testing.T) {
	db := pwtest.CreateTestDB(t)
	registry := NewRegistry(db, nil, zap.NewNop().Sugar())
	q := queue.NewQueue(db)

	ticker := NewTicker(context.Background(), registry, q, TickerConfig{Interval: 10 * time.Millisecond}, zap.NewNop().Sugar())
	ticker.Start()

	require.Eventually(t, func() bool {
		stats := ticker.GetStats()
		ticks, _ := stats["ticks_since_start"].(int64)
		return ticks > 0
	}, 5*time.Second, 20*time.Millisecond)

	ticker.Stop()
}
