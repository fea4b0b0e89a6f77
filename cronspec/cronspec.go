// Package cronspec parses and evaluates five-field crontab expressions
// (minute hour day-of-month month day-of-week).
package cronspec

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pipewheel/pipewheel/errors"
)

// FieldCount is the required number of whitespace-separated cron fields.
const FieldCount = 5

// parser accepts the standard five-field crontab syntax plus descriptors
// like @hourly, which we reject separately by field count.
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Fields holds the five parsed components of a crontab expression.
// Two expressions with equal Fields describe the same recurrence.
type Fields struct {
	Minute     string
	Hour       string
	DayOfMonth string
	Month      string
	DayOfWeek  string
}

// Parse splits and validates a crontab expression. Expressions that do not
// have exactly five fields, or whose fields are not valid crontab syntax,
// are rejected with errors.ErrInvalidCronFormat. The expression is never
// normalized; fields are returned exactly as written.
func Parse(expr string) (Fields, error) {
	parts := strings.Fields(expr)
	if len(parts) != FieldCount {
		return Fields{}, errors.Wrapf(errors.ErrInvalidCronFormat,
			"expected %d fields, got %d in %q", FieldCount, len(parts), expr)
	}

	if _, err := parser.Parse(strings.Join(parts, " ")); err != nil {
		return Fields{}, errors.Wrapf(errors.ErrInvalidCronFormat, "%s", err.Error())
	}

	return Fields{
		Minute:     parts[0],
		Hour:       parts[1],
		DayOfMonth: parts[2],
		Month:      parts[3],
		DayOfWeek:  parts[4],
	}, nil
}

// String reassembles the five fields into a crontab expression.
func (f Fields) String() string {
	return strings.Join([]string{f.Minute, f.Hour, f.DayOfMonth, f.Month, f.DayOfWeek}, " ")
}

// Next returns the first activation time of the recurrence strictly after
// the given time. An expression that never matches (e.g. "0 0 31 2 *",
// February 31st) has no activation: the evaluator signals this with the
// zero time, which is rejected here so it can never be stored as a due time.
func (f Fields) Next(after time.Time) (time.Time, error) {
	sched, err := parser.Parse(f.String())
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrInvalidCronFormat, "%s", err.Error())
	}
	next := sched.Next(after)
	if next.IsZero() {
		return time.Time{}, errors.Wrapf(errors.ErrInvalidCronFormat,
			"expression %q has no future activation", f.String())
	}
	return next, nil
}
