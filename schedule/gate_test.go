package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-scheduler/schedule"
)

func gateSettings() schedule.Settings {
	return schedule.Settings{
		Month:           "2025-09",
		SystemOpenDate:  "2025-08-16",
		SystemOpenTime:  "02:00",
		SystemCloseDate: "2025-08-21",
		SystemCloseTime: "02:00",
	}
}

func TestIsOpen_HalfOpenInterval(t *testing.T) {
	// GIVEN: open=(day16, 02:00), close=(day21, 02:00)
	// THEN: open at the opening instant, closed at the closing instant
	s := gateSettings()

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"just before open", time.Date(2025, 8, 16, 1, 59, 59, 0, time.UTC), false},
		{"opening instant", time.Date(2025, 8, 16, 2, 0, 0, 0, time.UTC), true},
		{"mid window", time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC), true},
		{"just before close", time.Date(2025, 8, 21, 1, 59, 59, 999, time.UTC), true},
		{"closing instant", time.Date(2025, 8, 21, 2, 0, 0, 0, time.UTC), false},
		{"after close", time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, schedule.IsOpen(tc.at, s, time.UTC))
		})
	}
}

func TestIsOpen_UsesConfiguredLocation(t *testing.T) {
	// GIVEN: the window is configured in UTC+8
	loc := time.FixedZone("UTC+8", 8*60*60)
	s := gateSettings()

	// WHEN: it is 02:00 local time on the 16th, which is 18:00 UTC on the 15th
	at := time.Date(2025, 8, 15, 18, 0, 0, 0, time.UTC)

	// THEN: the gate is open in UTC+8 but would be closed in UTC
	assert.True(t, schedule.IsOpen(at, s, loc))
	assert.False(t, schedule.IsOpen(at, s, time.UTC))
}

func TestIsOpen_MalformedSettingsStayClosed(t *testing.T) {
	s := gateSettings()
	s.SystemCloseTime = "25:99"

	assert.False(t, schedule.IsOpen(time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC), s, time.UTC))
}

func TestOpensAt_DefaultsToMidnight(t *testing.T) {
	s := gateSettings()
	s.SystemOpenTime = ""

	open, ok := schedule.OpensAt(s, nil)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 8, 16, 0, 0, 0, 0, time.UTC), open)
}
