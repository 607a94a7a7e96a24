package daykey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsZeroPadded(t *testing.T) {
	loc := time.UTC
	assert.Equal(t, "20240105", Key(time.Date(2024, 1, 5, 9, 30, 0, 0, loc)))
	assert.Equal(t, "20241231", Key(time.Date(2024, 12, 31, 23, 59, 59, 0, loc)))
	assert.Equal(t, "09990101", Key(time.Date(999, 1, 1, 0, 0, 0, 0, loc)))
}

func TestInstantsInSameDayAgree(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	a := time.Date(2025, 6, 14, 0, 0, 1, 0, loc)
	b := time.Date(2025, 6, 14, 23, 59, 59, 0, loc)

	assert.Equal(t, Key(a), Key(b))
	assert.True(t, StartOfDay(a).Equal(StartOfDay(b)))
}

func TestKeyAndStartOfDayPartitionConsistently(t *testing.T) {
	// Key and StartOfDay must be inverses of the same partition: equal
	// start-of-day implies equal key, and crossing midnight changes both.
	before := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	after := before.Add(2 * time.Minute)

	assert.NotEqual(t, Key(before), Key(after))
	assert.False(t, StartOfDay(before).Equal(StartOfDay(after)))
	assert.Equal(t, Key(StartOfDay(after)), Key(after))
}

func TestStartOfDayKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got := StartOfDay(time.Date(2025, 8, 28, 13, 45, 12, 999, loc))

	assert.Equal(t, 0, got.Hour())
	assert.Equal(t, 0, got.Nanosecond())
	assert.Equal(t, loc.String(), got.Location().String())
}

func TestPrevDayAcrossMonthBoundary(t *testing.T) {
	got := PrevDay(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "20250228", Key(got))
}
