package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pipewheel/pipewheel/cronspec"
	"github.com/pipewheel/pipewheel/errors"
	"github.com/pipewheel/pipewheel/pipeline"
)

// StatusTransitioner updates pipeline run status when a schedule is
// enabled or disabled. *pipeline.Store satisfies this.
type StatusTransitioner interface {
	SetStatus(ctx context.Context, pipelineID string, status pipeline.Status) error
}

// Registry handles persistence of schedule entries and their shared
// crontab recurrences.
type Registry struct {
	db       *sql.DB
	statuses StatusTransitioner
	logger   *zap.SugaredLogger
}

// NewRegistry creates a schedule registry. statuses may be nil when no
// pipeline status transitions are wanted (tests, non-pipeline schedules).
func NewRegistry(db *sql.DB, statuses StatusTransitioner, logger *zap.SugaredLogger) *Registry {
	return &Registry{db: db, statuses: statuses, logger: logger}
}

// Upsert registers or updates the schedule entry with the given name.
//
// The cron expression is validated before anything is written; a malformed
// expression leaves the registry untouched. The five cron fields resolve to
// a shared crontab row that is created on first use and reused by every
// entry with the same recurrence. Upserting with identical values is a
// no-op apart from the updated_at touch.
func (r *Registry) Upsert(ctx context.Context, name, cronExpr, handlerName string, args json.RawMessage, enabled bool) (*Entry, error) {
	fields, err := cronspec.Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "schedule entry name cannot be empty")
	}
	if handlerName == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "schedule entry handler name cannot be empty")
	}
	if len(args) == 0 {
		args = json.RawMessage(`[]`)
	}

	now := time.Now().UTC()
	nextRun, err := fields.Next(now)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin upsert transaction")
	}
	defer tx.Rollback()

	crontabID, err := getOrCreateCrontab(ctx, tx, fields, now)
	if err != nil {
		return nil, err
	}

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT name FROM schedule_entries WHERE name = ?", name,
	).Scan(&existing)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return nil, errors.Wrapf(err, "failed to look up schedule entry %s", name)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedule_entries (
			name, crontab_id, handler_name, args, enabled,
			next_run_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			crontab_id = excluded.crontab_id,
			handler_name = excluded.handler_name,
			args = excluded.args,
			enabled = excluded.enabled,
			next_run_at = excluded.next_run_at,
			updated_at = excluded.updated_at
	`,
		name,
		crontabID,
		handlerName,
		string(args),
		enabled,
		nextRun.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to upsert schedule entry %s", name)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit schedule upsert")
	}

	if created {
		r.logger.Infow("Created schedule entry",
			"name", name,
			"cron", fields.String(),
			"handler", handlerName,
			"enabled", enabled,
			"next_run_at", nextRun.Format(time.RFC3339))
	} else {
		r.logger.Infow("Updated schedule entry",
			"name", name,
			"cron", fields.String(),
			"handler", handlerName,
			"enabled", enabled,
			"next_run_at", nextRun.Format(time.RFC3339))
	}

	return r.Get(ctx, name)
}

// getOrCreateCrontab finds the crontab row matching the five cron fields,
// creating it if no entry has used this recurrence before.
func getOrCreateCrontab(ctx context.Context, tx *sql.Tx, fields cronspec.Fields, now time.Time) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM crontab_schedules
		WHERE minute = ? AND hour = ? AND day_of_month = ?
		  AND month_of_year = ? AND day_of_week = ?
	`, fields.Minute, fields.Hour, fields.DayOfMonth, fields.Month, fields.DayOfWeek).Scan(&id)

	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrap(err, "failed to look up crontab schedule")
	}

	id = uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO crontab_schedules (
			id, minute, hour, day_of_month, month_of_year, day_of_week, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, fields.Minute, fields.Hour, fields.DayOfMonth, fields.Month, fields.DayOfWeek,
		now.Format(time.RFC3339))
	if err != nil {
		return "", errors.Wrap(err, "failed to create crontab schedule")
	}

	return id, nil
}

// Get retrieves a schedule entry by name. Returns (nil, nil) when no entry
// with that name exists.
func (r *Registry) Get(ctx context.Context, name string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, entrySelect+` WHERE e.name = ?`, name)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get schedule entry %s", name)
	}
	return entry, nil
}

// List returns all schedule entries ordered by name.
func (r *Registry) List(ctx context.Context) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, entrySelect+` ORDER BY e.name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedule entries")
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListDue returns enabled entries whose next_run_at is at or before now,
// oldest first. Limited to 100 per batch so a backlog can't overwhelm the
// worker pool.
func (r *Registry) ListDue(ctx context.Context, now time.Time) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, entrySelect+`
		WHERE e.enabled = 1 AND e.next_run_at <= ?
		ORDER BY e.next_run_at ASC
		LIMIT 100`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due schedule entries")
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Delete removes a schedule entry. Deleting a name that was never
// registered is not an error; it is logged and ignored. The shared crontab
// row is left in place for other entries.
func (r *Registry) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM schedule_entries WHERE name = ?", name)
	if err != nil {
		return errors.Wrapf(err, "failed to delete schedule entry %s", name)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		r.logger.Infow("Schedule entry does not exist, nothing to delete", "name", name)
		return nil
	}

	r.logger.Infow("Deleted schedule entry", "name", name)
	return nil
}

// SetEnabled flips the enabled flag of a schedule entry and transitions the
// pipeline it drives: disabling pauses the pipeline, enabling marks it
// restarting. The status transition is best-effort; a failed transition is
// logged but does not undo the flag change.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedule_entries
		SET enabled = ?,
		    updated_at = ?
		WHERE name = ?
	`, enabled, time.Now().UTC().Format(time.RFC3339), name)
	if err != nil {
		return errors.Wrapf(err, "failed to set enabled for schedule entry %s", name)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("schedule entry %s", name)
	}

	if enabled {
		r.logger.Infow("Enabled schedule entry", "name", name)
	} else {
		r.logger.Infow("Disabled schedule entry", "name", name)
	}

	if r.statuses != nil {
		status := pipeline.StatusRestarting
		if !enabled {
			status = pipeline.StatusPaused
		}
		if err := r.statuses.SetStatus(ctx, name, status); err != nil {
			r.logger.Warnw("Failed to transition pipeline status for schedule entry",
				"name", name,
				"status", status,
				"error", err)
		}
	}

	return nil
}

// MarkFired records that an entry fired and advances its next run time.
func (r *Registry) MarkFired(ctx context.Context, name string, firedAt, nextRun time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedule_entries
		SET last_run_at = ?,
		    next_run_at = ?,
		    updated_at = ?
		WHERE name = ?
	`,
		firedAt.UTC().Format(time.RFC3339),
		nextRun.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to mark schedule entry %s as fired", name)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("schedule entry %s", name)
	}

	return nil
}

const entrySelect = `
	SELECT e.name, e.crontab_id, e.handler_name, e.args, e.enabled,
	       e.next_run_at, e.last_run_at, e.created_at, e.updated_at,
	       c.minute, c.hour, c.day_of_month, c.month_of_year, c.day_of_week
	FROM schedule_entries e
	JOIN crontab_schedules c ON c.id = e.crontab_id`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var entry Entry
	var args string
	var nextRunAt, lastRunAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&entry.Name,
		&entry.CrontabID,
		&entry.HandlerName,
		&args,
		&entry.Enabled,
		&nextRunAt,
		&lastRunAt,
		&createdAt,
		&updatedAt,
		&entry.Crontab.Minute,
		&entry.Crontab.Hour,
		&entry.Crontab.DayOfMonth,
		&entry.Crontab.Month,
		&entry.Crontab.DayOfWeek,
	)
	if err != nil {
		return nil, err
	}

	entry.Args = json.RawMessage(args)

	if entry.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for entry %s", entry.Name)
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for entry %s", entry.Name)
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse next_run_at for entry %s", entry.Name)
		}
		entry.NextRunAt = &t
	}
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_run_at for entry %s", entry.Name)
		}
		entry.LastRunAt = &t
	}

	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating schedule entries")
	}
	return entries, nil
}
