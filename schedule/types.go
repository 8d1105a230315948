/*
Package schedule implements the monthly leave-scheduling coordinator.

PURPOSE:
  During a calendar-bounded window each month, employees take turns holding
  an exclusive editing session and reserve leave days for the target month.
  A rule set configured by an administrator caps how many days a person may
  take, how many people may be off on the same day (globally and per store),
  how many weekend days a person may take, and which store days are
  forbidden outright.

COMPONENTS (leaf-first):
  gate.go:        Calendar gate - is the window open right now?
  types.go:       Settings (rule set), Session, EmployeeSchedule, Date/Month
  lock.go:        Session lock manager - one holder at a time, TTL expiry
  validator.go:   Leave validator - accumulates every rule violation
  coordinator.go: Orchestrates gate -> lock -> validator -> commit

DATES:
  Dates are civil dates ("2025-09-20") and months are "2025-09". They are
  kept as strings because the rule set and the stored schedules only ever
  compare them for equality; weekday arithmetic parses on demand.

WEEKEND:
  Friday, Saturday and Sunday count as weekend days for this business.

SEE ALSO:
  - store.go: Storage and notification collaborators
  - errors.go: Outcome sentinels and structured errors
  - api/handlers.go: HTTP surface
*/
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// CIVIL DATES
// =============================================================================

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	clockLayout = "15:04"
)

// Date is a civil date formatted as YYYY-MM-DD.
type Date string

// ParseDate parses and normalizes a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return Date(t.Format(dateLayout)), nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns midnight UTC of the date, or the zero time if malformed.
func (d Date) Time() time.Time {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

// IsWeekend reports whether the date falls on Friday, Saturday or Sunday.
func (d Date) IsWeekend() bool {
	switch d.Weekday() {
	case time.Friday, time.Saturday, time.Sunday:
		return true
	}
	return false
}

// Month returns the YYYY-MM prefix of the date.
func (d Date) Month() Month {
	if len(d) < 7 {
		return ""
	}
	return Month(d[:7])
}

func (d Date) String() string { return string(d) }

// Month is a target scheduling month formatted as YYYY-MM.
type Month string

// ParseMonth parses and normalizes a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid month %q (use YYYY-MM)", s)
	}
	return Month(t.Format(monthLayout)), nil
}

// Contains reports whether d belongs to the month.
func (m Month) Contains(d Date) bool { return d.Month() == m }

func (m Month) String() string { return string(m) }

// SortDates returns the dates sorted ascending with duplicates removed.
func SortDates(dates []Date) []Date {
	seen := make(map[Date]bool, len(dates))
	out := make([]Date, 0, len(dates))
	for _, d := range dates {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// SETTINGS - The constraint rule set for one target month
// =============================================================================

// Settings holds every limit and calendar for a target month.
// Administrators author it before the window opens; the coordinator only reads it.
// A non-positive limit disables the corresponding check.
type Settings struct {
	Month                     Month
	MaxLeaveDaysPerPerson     int
	MaxLeavePeoplePerDay      int
	MaxWeekendLeaveDays       int
	MaxSameStoreLeavePerDay   int
	OperationTimeLimitMinutes int

	SystemOpenDate  Date
	SystemOpenTime  string // HH:MM
	SystemCloseDate Date
	SystemCloseTime string // HH:MM

	StoreHolidays      map[string][]Date
	StoreForbiddenDays map[string][]Date

	UpdatedAt time.Time
	UpdatedBy string
}

// SessionTTL is how long one editing session may stay open.
func (s Settings) SessionTTL() time.Duration {
	return time.Duration(s.OperationTimeLimitMinutes) * time.Minute
}

// HolidaysFor returns the holiday set of a store.
func (s Settings) HolidaysFor(storeID string) map[Date]bool {
	return dateSet(s.StoreHolidays[storeID])
}

// ForbiddenFor returns the forbidden-day set of a store.
func (s Settings) ForbiddenFor(storeID string) map[Date]bool {
	return dateSet(s.StoreForbiddenDays[storeID])
}

func dateSet(dates []Date) map[Date]bool {
	set := make(map[Date]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set
}

// Validate checks administrator input before it is persisted.
func (s Settings) Validate() error {
	_, err := s.Normalize()
	return err
}

// Normalize validates the settings and returns a copy with the month and
// every date rewritten in canonical form, so stored values compare equal
// to parsed request dates.
func (s Settings) Normalize() (Settings, error) {
	var problems []string
	out := s

	if m, err := ParseMonth(string(s.Month)); err != nil {
		problems = append(problems, err.Error())
	} else {
		out.Month = m
	}
	if s.OperationTimeLimitMinutes <= 0 {
		problems = append(problems, "operation time limit must be positive")
	}
	for name, v := range map[string]int{
		"max leave days per person":    s.MaxLeaveDaysPerPerson,
		"max leave people per day":     s.MaxLeavePeoplePerDay,
		"max weekend leave days":       s.MaxWeekendLeaveDays,
		"max same store leave per day": s.MaxSameStoreLeavePerDay,
	} {
		if v < 0 {
			problems = append(problems, name+" must not be negative")
		}
	}

	if d, err := ParseDate(string(s.SystemOpenDate)); err == nil {
		out.SystemOpenDate = d
	}
	if d, err := ParseDate(string(s.SystemCloseDate)); err == nil {
		out.SystemCloseDate = d
	}
	out.SystemOpenTime = strings.TrimSpace(s.SystemOpenTime)
	out.SystemCloseTime = strings.TrimSpace(s.SystemCloseTime)

	open, okOpen := OpensAt(out, time.UTC)
	if !okOpen {
		problems = append(problems, "invalid system open date/time")
	}
	closeAt, okClose := ClosesAt(out, time.UTC)
	if !okClose {
		problems = append(problems, "invalid system close date/time")
	}
	if okOpen && okClose && !open.Before(closeAt) {
		problems = append(problems, "system close must be after system open")
	}

	normalizeDays := func(kind string, byStore map[string][]Date) map[string][]Date {
		if byStore == nil {
			return nil
		}
		norm := make(map[string][]Date, len(byStore))
		for storeID, dates := range byStore {
			id := strings.TrimSpace(storeID)
			if id == "" {
				problems = append(problems, kind+" days listed for an empty store id")
				continue
			}
			for _, d := range dates {
				nd, err := ParseDate(string(d))
				if err != nil {
					problems = append(problems, fmt.Sprintf("%s day for store %s: %v", kind, id, err))
					continue
				}
				norm[id] = append(norm[id], nd)
			}
			norm[id] = SortDates(norm[id])
		}
		return norm
	}
	out.StoreHolidays = normalizeDays("holiday", s.StoreHolidays)
	out.StoreForbiddenDays = normalizeDays("forbidden", s.StoreForbiddenDays)

	if len(problems) > 0 {
		sort.Strings(problems)
		return Settings{}, fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return out, nil
}

// =============================================================================
// SESSION - The exclusive right to submit
// =============================================================================

// Session is the editing session currently held by one employee.
type Session struct {
	HolderID   string
	HolderName string
	Month      Month
	StartedAt  time.Time
	ExpiresAt  time.Time
}

// Remaining returns the time left before expiry, never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RemainingSeconds rounds the remaining time up to whole seconds.
func (s Session) RemainingSeconds(now time.Time) int {
	d := s.Remaining(now)
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// =============================================================================
// EMPLOYEE SCHEDULE - One employee's leave for one month
// =============================================================================

type ScheduleStatus string

const (
	StatusSubmitted ScheduleStatus = "submitted"
	StatusVoided    ScheduleStatus = "voided"
)

// EmployeeSchedule is the persisted leave reservation of one employee.
// At most one submitted record exists per (EmployeeID, Month).
type EmployeeSchedule struct {
	ID           string
	EmployeeID   string
	EmployeeName string
	StoreID      string
	Month        Month
	LeaveDates   []Date
	Status       ScheduleStatus
	SubmittedAt  time.Time
	SubmittedBy  string
	VoidedAt     *time.Time
	VoidedBy     string
	VoidReason   string
}

// IsActive reports whether the record counts toward quotas.
func (s EmployeeSchedule) IsActive() bool { return s.Status == StatusSubmitted }

// Contains reports whether d is one of the leave dates.
func (s EmployeeSchedule) Contains(d Date) bool {
	for _, ld := range s.LeaveDates {
		if ld == d {
			return true
		}
	}
	return false
}

// =============================================================================
// EMPLOYEE - Directory entry
// =============================================================================

// Employee is the directory entry used to resolve names and home stores.
type Employee struct {
	ID             string
	Name           string
	StoreID        string
	TelegramChatID string
	CreatedAt      time.Time
}
