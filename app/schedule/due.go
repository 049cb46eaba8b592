// Package schedule computes whether independently-clocked operations are
// due. The functions are pure: callers that only need a planning lookahead
// (e.g. "will the session still be valid when the next poll happens?") can
// call NextDue without consuming any due state.
package schedule

import "time"

// Never is the far-future sentinel NextDue returns for disabled operations.
var Never = time.Unix(1<<62-1, 0)

// IsDue reports whether an operation with the given cadence should run now.
// A zero lastRun means the operation has never run and is always due, so a
// newly added source processes its full backlog on the first cycle. A zero
// cadence disables the operation entirely.
func IsDue(lastRun time.Time, cadence time.Duration, now time.Time) bool {
	if cadence <= 0 {
		return false
	}
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= cadence
}

// NextDue returns the next time the operation becomes due. Returns now for
// never-run operations and Never for disabled ones.
func NextDue(lastRun time.Time, cadence time.Duration, now time.Time) time.Time {
	if cadence <= 0 {
		return Never
	}
	if lastRun.IsZero() {
		return now
	}
	next := lastRun.Add(cadence)
	if next.Before(now) {
		return now
	}
	return next
}
