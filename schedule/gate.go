package schedule

import "time"

// =============================================================================
// CALENDAR GATE
// =============================================================================

// IsOpen reports whether now falls inside [open, close) of the settings.
// Malformed open/close values keep the gate shut. A nil location means UTC.
func IsOpen(now time.Time, s Settings, loc *time.Location) bool {
	open, ok := OpensAt(s, loc)
	if !ok {
		return false
	}
	closeAt, ok := ClosesAt(s, loc)
	if !ok {
		return false
	}
	return !now.Before(open) && now.Before(closeAt)
}

// OpensAt returns the opening instant of the window.
func OpensAt(s Settings, loc *time.Location) (time.Time, bool) {
	return instant(s.SystemOpenDate, s.SystemOpenTime, loc)
}

// ClosesAt returns the closing instant of the window (exclusive).
func ClosesAt(s Settings, loc *time.Location) (time.Time, bool) {
	return instant(s.SystemCloseDate, s.SystemCloseTime, loc)
}

func instant(d Date, clock string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if clock == "" {
		clock = "00:00"
	}
	t, err := time.ParseInLocation(dateLayout+" "+clockLayout, string(d)+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
