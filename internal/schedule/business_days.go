// Package schedule computes when each step of an outreach sequence fires.
//
// Business days are Monday through Friday; no holiday calendar is applied.
// Every function here is pure so callers can test fire times against a
// fixed anchor.
package schedule

import (
	"fmt"
	"time"
)

// FireTime returns the moment step (1-indexed) fires relative to anchor.
// Step 1 fires at anchor; step k fires (k-1)*spacingBusinessDays business
// days later at the same wall-clock time in the anchor's location.
func FireTime(anchor time.Time, step, spacingBusinessDays int) (time.Time, error) {
	if step < 1 || step > 3 {
		return time.Time{}, fmt.Errorf("step %d out of range 1..3", step)
	}
	if step == 1 {
		return anchor, nil
	}
	if spacingBusinessDays < 1 {
		return time.Time{}, fmt.Errorf("spacing must be at least 1 business day, got %d", spacingBusinessDays)
	}
	return AddBusinessDays(anchor, (step-1)*spacingBusinessDays), nil
}

// AddBusinessDays moves t forward by n weekdays. For n >= 1 the result
// always lands on a weekday, even when t falls on a weekend.
func AddBusinessDays(t time.Time, n int) time.Time {
	if n <= 0 {
		return t
	}
	if !IsWeekend(t) && n >= 5 {
		t = t.AddDate(0, 0, 7*(n/5))
		n %= 5
	}
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if !IsWeekend(t) {
			n--
		}
	}
	return t
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Delay is the queue delay for a fire time. Fire times already in the past
// clamp to zero so the step goes out immediately.
func Delay(fire, now time.Time) time.Duration {
	d := fire.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
