// Package budget provides pure functions for daily token budgeting.
// All day boundaries are computed in Japan Standard Time regardless of
// the server's local clock. All functions are deterministic with no
// side effects.
package budget

import "time"

// JST is the fixed timezone that defines a "day" for budgeting and
// aggregation. A fixed offset matches the original accounting rules
// (JST has no daylight saving) and avoids a tzdata dependency.
var JST = time.FixedZone("JST", 9*60*60)

// DateLayout is the calendar date form used for archive keys.
const DateLayout = "2006-01-02"

// DayStart returns the most recent JST midnight at or before now.
// An instant exactly on the boundary starts the new day, so the
// returned window start is inclusive.
func DayStart(now time.Time) time.Time {
	j := now.In(JST)
	return time.Date(j.Year(), j.Month(), j.Day(), 0, 0, 0, 0, JST)
}

// NextDayStart returns the next JST midnight strictly after now.
func NextDayStart(now time.Time) time.Time {
	return DayStart(now).AddDate(0, 0, 1)
}

// UntilNextDayStart returns how long to wait from now until the next
// JST midnight. Never negative.
func UntilNextDayStart(now time.Time) time.Duration {
	d := NextDayStart(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Remaining returns the unspent portion of a daily limit. Never
// negative: spend past the limit clamps to zero.
func Remaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}

// PreviousDate returns the JST calendar date of the day immediately
// preceding ref's JST date, formatted as DateLayout. This is the
// aggregation target for a run shortly after midnight.
func PreviousDate(ref time.Time) string {
	return DayStart(ref).AddDate(0, 0, -1).Format(DateLayout)
}

// DayWindow returns the half-open instant window [start, end) covering
// the given JST calendar date.
func DayWindow(usageDate string) (start, end time.Time, err error) {
	start, err = time.ParseInLocation(DateLayout, usageDate, JST)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}
