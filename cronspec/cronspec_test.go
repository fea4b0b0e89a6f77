package cronspec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewheel/pipewheel/errors"
)

func TestParse(t *testing.T) {
	fields, err := Parse("30 2 * * 1")
	require.NoError(t, err)

	assert.Equal(t, "30", fields.Minute)
	assert.Equal(t, "2", fields.Hour)
	assert.Equal(t, "*", fields.DayOfMonth)
	assert.Equal(t, "*", fields.Month)
	assert.Equal(t, "1", fields.DayOfWeek)
	assert.Equal(t, "30 2 * * 1", fields.String())
}

func TestParseRanges(t *testing.T) {
	fields, err := Parse("*/15 0-6 1,15 * mon-fri")
	require.NoError(t, err)
	assert.Equal(t, "*/15", fields.Minute)
	assert.Equal(t, "mon-fri", fields.DayOfWeek)
}

func TestParseWrongFieldCount(t *testing.T) {
	cases := []string{
		"",
		"* * *",
		"* * * *",
		"* * * * * *", // six fields (seconds) not accepted
		"0 2 * *",
	}

	for _, expr := range cases {
		_, err := Parse(expr)
		require.Error(t, err, "expression %q should be rejected", expr)
		assert.True(t, errors.Is(err, errors.ErrInvalidCronFormat), "expression %q", expr)
	}
}

func TestParseInvalidFieldValues(t *testing.T) {
	cases := []string{
		"61 * * * *",      // minute out of range
		"* 25 * * *",      // hour out of range
		"* * * * someday", // bogus day name
	}

	for _, expr := range cases {
		_, err := Parse(expr)
		require.Error(t, err, "expression %q should be rejected", expr)
		assert.True(t, errors.Is(err, errors.ErrInvalidCronFormat), "expression %q", expr)
	}
}

func TestParsePreservesSpelling(t *testing.T) {
	// "*/1" and "*" describe the same recurrence but are distinct field sets
	a, err := Parse("*/1 * * * *")
	require.NoError(t, err)
	b, err := Parse("* * * * *")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestNext(t *testing.T) {
	fields, err := Parse("30 2 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	next, err := fields.Next(after)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC), next)

	// Strictly after: asking from the activation instant moves to the next day
	next2, err := fields.Next(next)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC), next2)
}

func TestNextNeverMatchingExpression(t *testing.T) {
	// Syntactically valid but impossible: February has no 31st. The
	// evaluator would report the zero time, which must surface as an error
	// rather than a storable activation.
	fields, err := Parse("0 0 31 2 *")
	require.NoError(t, err)

	next, err := fields.Next(time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidCronFormat))
	assert.True(t, next.IsZero())
}

func TestFieldsEquality(t *testing.T) {
	a, err := Parse("0 */6 * * *")
	require.NoError(t, err)
	b, err := Parse("0   */6  *  *  *")
	require.NoError(t, err)

	// Whitespace does not matter; the five fields do
	assert.Equal(t, a, b)
}
