// Package daykey maps instants onto canonical calendar-day identifiers.
//
// A day key is the fixed-width string "YYYYMMDD" for the local calendar day
// of the given instant. Day keys are embedded in composite record ids
// (habitId_dayKey, routineId_dayKey), so the mapping must stay stable: any
// two instants inside the same local day produce the same key and the same
// start-of-day instant.
package daykey

import (
	"fmt"
	"time"
)

// Key returns the canonical identifier for t's local calendar day.
func Key(t time.Time) string {
	y, m, d := t.Date()
	return fmt.Sprintf("%04d%02d%02d", y, int(m), d)
}

// StartOfDay truncates t to midnight of its local calendar day, keeping
// the location. All day-scoped record timestamps are normalized through
// this so range queries and exact-match queries agree.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PrevDay returns the instant one calendar day before t. Walking with
// AddDate keeps the math correct across DST transitions, unlike
// subtracting 24 hours.
func PrevDay(t time.Time) time.Time {
	return t.AddDate(0, 0, -1)
}
