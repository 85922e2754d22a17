package exam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestWindowCanStart(t *testing.T) {
	win := NewWindow(time.UTC)
	test := Test{ID: "t1", Name: "mock", TestDate: "2026-03-10", StartTime: "09:00", DurationMin: 60}

	tests := []struct {
		name    string
		now     string
		allowed bool
	}{
		{name: "day before", now: "2026-03-09T23:59:00Z", allowed: false},
		{name: "midnight on the day", now: "2026-03-10T00:00:00Z", allowed: true},
		{name: "scheduled start", now: "2026-03-10T09:00:00Z", allowed: true},
		{name: "late joiner same day", now: "2026-03-10T23:30:00Z", allowed: true},
		{name: "midnight next day", now: "2026-03-11T00:00:00Z", allowed: false},
		{name: "week later", now: "2026-03-17T09:00:00Z", allowed: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := win.CanStart(test, mustTime(t, tc.now))
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrAttemptNotAllowed)
			}
		})
	}
}

func TestWindowCanStartRespectsVenueZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	win := NewWindow(loc)
	test := Test{ID: "t1", Name: "mock", TestDate: "2026-03-10", DurationMin: 60}

	// 19:00 UTC on the 9th is already the 10th in Kolkata (+05:30).
	assert.NoError(t, win.CanStart(test, mustTime(t, "2026-03-09T19:00:00Z")))
	// 19:00 UTC on the 10th is the 11th in Kolkata.
	assert.ErrorIs(t, win.CanStart(test, mustTime(t, "2026-03-10T19:00:00Z")), ErrAttemptNotAllowed)
}

func TestWindowRemainingAndExpiry(t *testing.T) {
	win := NewWindow(time.UTC)
	test := Test{ID: "t1", Name: "mock", TestDate: "2026-03-10", DurationMin: 60}
	start := mustTime(t, "2026-03-10T09:00:00Z")
	a := Attempt{UserID: "u1", TestID: "t1", Status: StatusInProgress, StartedAtMS: start.UnixMilli()}

	assert.Equal(t, 60*time.Minute, win.Remaining(test, a, start))
	assert.Equal(t, 30*time.Minute, win.Remaining(test, a, start.Add(30*time.Minute)))
	assert.Equal(t, time.Duration(0), win.Remaining(test, a, start.Add(61*time.Minute)))

	assert.False(t, win.Expired(test, a, start.Add(59*time.Minute)))
	assert.True(t, win.Expired(test, a, start.Add(60*time.Minute)))
	assert.True(t, win.Expired(test, a, start.Add(61*time.Minute)))
}

func TestTestValidateFailsFast(t *testing.T) {
	base := Test{ID: "t1", Name: "mock", TestDate: "2026-03-10", StartTime: "09:00", DurationMin: 60}
	require.NoError(t, base.Validate())

	zero := base
	zero.DurationMin = 0
	assert.Error(t, zero.Validate())

	negative := base
	negative.DurationMin = -30
	assert.Error(t, negative.Validate())

	badDate := base
	badDate.TestDate = "10-03-2026"
	assert.Error(t, badDate.Validate())

	badClock := base
	badClock.StartTime = "9am"
	assert.Error(t, badClock.Validate())
}
