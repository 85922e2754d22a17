package exam

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Window evaluates test scheduling against a fixed venue location. All
// decisions compare full timestamps derived from the test date's day bounds
// in that location; the scheduled wall-clock start time does not gate entry.
type Window struct {
	loc *time.Location
}

func NewWindow(loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	return Window{loc: loc}
}

// CanStart reports whether a new attempt may begin at now. Starting is
// allowed at any time on the scheduled date, even after the wall-clock start
// time has passed: late joiners get a shortened window.
func (w Window) CanStart(t Test, now time.Time) error {
	day, err := time.ParseInLocation(dateLayout, t.TestDate, w.loc)
	if err != nil {
		return fmt.Errorf("test %s has bad date %q: %w", t.ID, t.TestDate, err)
	}
	local := now.In(w.loc)
	if local.Before(day) {
		return fmt.Errorf("%w: test is scheduled for %s", ErrAttemptNotAllowed, t.TestDate)
	}
	if !local.Before(day.AddDate(0, 0, 1)) {
		return fmt.Errorf("%w: test window closed on %s", ErrAttemptNotAllowed, t.TestDate)
	}
	return nil
}

// Deadline is the instant the attempt's clock runs out.
func (w Window) Deadline(t Test, a Attempt) time.Time {
	return a.StartedAt().Add(t.Duration())
}

// Remaining returns the time left on an attempt, floored at zero. A zero
// remaining means the attempt is logically completed even if never submitted.
func (w Window) Remaining(t Test, a Attempt, now time.Time) time.Duration {
	rem := w.Deadline(t, a).Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// Expired reports whether the attempt's clock has run out at now.
func (w Window) Expired(t Test, a Attempt, now time.Time) bool {
	return !now.Before(w.Deadline(t, a))
}
