// Package streak computes trailing runs of "done" calendar days.
package streak

import (
	"time"

	"daybreak/api/internal/daykey"
)

// Trailing walks backward from today one calendar day at a time and counts
// how many consecutive day keys are present in done. The walk stops at the
// first missing day and is bounded by lookbackDays, so a true streak longer
// than the window is reported truncated to the window length. If today's key
// is absent the streak is 0; there is no partial credit for earlier days.
func Trailing(done map[string]bool, today time.Time, lookbackDays int) int {
	if lookbackDays < 0 {
		lookbackDays = 0
	}

	count := 0
	cursor := daykey.StartOfDay(today)
	for count < lookbackDays && done[daykey.Key(cursor)] {
		count++
		cursor = daykey.PrevDay(cursor)
	}
	return count
}
