package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Granularity is the width of a rollup bucket
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ErrUnknownGranularity is returned by Parse for anything outside daily/weekly/monthly
var ErrUnknownGranularity = errors.New("unknown granularity")

// All lists the supported granularities in ascending width
var All = []Granularity{Daily, Weekly, Monthly}

// Parse converts a period tag into a Granularity. It never defaults.
func Parse(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Daily, Weekly, Monthly:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q (must be daily, weekly, or monthly)", ErrUnknownGranularity, s)
	}
}

// Valid reports whether g is one of the supported granularities
func (g Granularity) Valid() bool {
	switch g {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

func (g Granularity) String() string {
	return string(g)
}

// BucketStart returns the start of the bucket containing t.
// Buckets are computed in UTC; weeks start on Monday.
func BucketStart(g Granularity, t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	switch g {
	case Daily:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case Weekly:
		// Sunday is the last day of the week
		offset := (int(t.UTC().Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, time.UTC)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	}
	panic(invalid(g))
}

// BucketEnd returns the exclusive end of the bucket that begins at start
func BucketEnd(g Granularity, start time.Time) time.Time {
	return ShiftBack(g, BucketStart(g, start), -1)
}

// PreviousBucketStart returns the start of the bucket immediately before the one containing start
func PreviousBucketStart(g Granularity, start time.Time) time.Time {
	return ShiftBack(g, BucketStart(g, start), 1)
}

// Bounds returns [start, end) of the bucket containing t
func Bounds(g Granularity, t time.Time) (time.Time, time.Time) {
	start := BucketStart(g, t)
	return start, BucketEnd(g, start)
}

// ShiftBack moves t back by n buckets. A negative n moves forward.
// Monthly shifts clamp the day to the target month, so Mar 31 minus one month is Feb 28/29.
func ShiftBack(g Granularity, t time.Time, n int) time.Time {
	switch g {
	case Daily:
		return t.AddDate(0, 0, -n)
	case Weekly:
		return t.AddDate(0, 0, -7*n)
	case Monthly:
		return addMonths(t, -n)
	}
	panic(invalid(g))
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func invalid(g Granularity) string {
	return fmt.Sprintf("period: invalid granularity %q", string(g))
}
