package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pipewheel/pipewheel/errors"
	"github.com/pipewheel/pipewheel/queue"
)

// Ticker fires due schedule entries into the job queue.
// Runs on a short interval so a one-minute cron granularity is never missed.
type Ticker struct {
	registry *Registry
	queue    *queue.Queue
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// TickerConfig contains configuration for the schedule ticker
type TickerConfig struct {
	Interval time.Duration // How often to check for due entries (default: 1 second)
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: 1 * time.Second,
	}
}

// NewTicker creates a ticker with a parent context. Cancelling the parent
// stops the loop.
func NewTicker(ctx context.Context, registry *Registry, q *queue.Queue, cfg TickerConfig, logger *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		registry: registry,
		queue:    q,
		interval: cfg.Interval,
		ctx:      tickerCtx,
		cancel:   cancel,
		logger:   logger.Named("ticker"),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Schedule ticker started", "interval", t.interval)
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Schedule ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			tick := t.ticksSinceStart
			t.mu.Unlock()

			if err := t.checkDueEntries(tickTime); err != nil {
				t.logger.Warnw("Schedule tick error", "error", err, "tick", tick)
			}
		}
	}
}

// checkDueEntries finds entries ready to fire and enqueues a job for each
func (t *Ticker) checkDueEntries(now time.Time) error {
	entries, err := t.registry.ListDue(t.ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to list due schedule entries")
	}
	if len(entries) == 0 {
		return nil
	}

	for _, entry := range entries {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}

		if err := t.fireEntry(entry, now); err != nil {
			t.logger.Errorw("Failed to fire schedule entry",
				"name", entry.Name,
				"handler", entry.HandlerName,
				"error", err)
			// Continue with other entries even if one fails
			continue
		}
	}

	return nil
}

// fireEntry enqueues a job for a due entry and advances its next run time.
// An entry with an active job (queued or running) for the same source and
// handler is skipped for this activation, but its schedule still advances.
func (t *Ticker) fireEntry(entry *Entry, now time.Time) error {
	// Compute the next activation before enqueuing anything. An entry whose
	// recurrence has no future activation would otherwise stay due forever
	// and fire on every tick; disable it instead.
	nextRun, err := entry.NextAfter(now)
	if err != nil {
		t.logger.Warnw("Disabling schedule entry with no computable next run",
			"name", entry.Name,
			"cron", entry.Crontab.String(),
			"error", err)
		if disableErr := t.registry.SetEnabled(t.ctx, entry.Name, false); disableErr != nil {
			return errors.Wrapf(disableErr, "failed to disable schedule entry %s", entry.Name)
		}
		return nil
	}

	existing, err := t.queue.FindActiveJobBySourceAndHandler(entry.Name, entry.HandlerName)
	if err != nil {
		return errors.Wrap(err, "failed to check for duplicate job")
	}

	if existing != nil {
		t.logger.Debugw("Skipping duplicate job for schedule entry",
			"name", entry.Name,
			"handler", entry.HandlerName,
			"existing_job_id", existing.ID,
			"existing_status", existing.Status)
	} else {
		job, err := queue.NewJob(entry.HandlerName, entry.Name, entry.Args)
		if err != nil {
			return errors.Wrap(err, "failed to create job")
		}
		if err := t.queue.Enqueue(job); err != nil {
			return errors.Wrap(err, "failed to enqueue job")
		}

		t.logger.Infow("Fired schedule entry",
			"name", entry.Name,
			"handler", entry.HandlerName,
			"job_id", job.ID)
	}

	if err := t.registry.MarkFired(t.ctx, entry.Name, now, nextRun); err != nil {
		return errors.Wrap(err, "failed to advance schedule entry")
	}

	return nil
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
	}
}
