// Package schedule provides the persistent schedule registry: named entries
// bound to shared cron recurrences, plus the ticker that fires due entries
// into the job queue.
package schedule

import (
	"encoding/json"
	"time"

	"github.com/pipewheel/pipewheel/cronspec"
)

// Crontab is a shared cron recurrence row. Entries with the same five-field
// expression share one crontab; deleting an entry never deletes its crontab.
type Crontab struct {
	ID        string
	Fields    cronspec.Fields
	CreatedAt time.Time
}

// Entry is a named schedule registration. The name is the registry key:
// upserting an existing name updates the entry in place. Entries that drive
// pipeline runs use the pipeline ID as their name so one pipeline has at
// most one schedule.
type Entry struct {
	Name        string
	CrontabID   string
	Crontab     cronspec.Fields
	HandlerName string
	Args        json.RawMessage
	Enabled     bool
	NextRunAt   *time.Time
	LastRunAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NextAfter computes the entry's next fire time strictly after the given
// moment.
func (e *Entry) NextAfter(after time.Time) (time.Time, error) {
	return e.Crontab.Next(after)
}
