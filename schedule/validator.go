package schedule

import "fmt"

// =============================================================================
// VIOLATIONS
// =============================================================================

type ViolationCode string

const (
	ViolationInvalidDate   ViolationCode = "invalid_date"
	ViolationOutsideMonth  ViolationCode = "outside_month"
	ViolationQuota         ViolationCode = "quota_exceeded"
	ViolationWeekendCap    ViolationCode = "weekend_cap_exceeded"
	ViolationForbiddenDay  ViolationCode = "forbidden_day"
	ViolationDailyCap      ViolationCode = "daily_cap_reached"
	ViolationStoreDailyCap ViolationCode = "store_daily_cap_reached"
	NoticeHolidayOverlap   ViolationCode = "holiday_overlap"
)

// Violation is one itemized rule finding. Date is empty for whole-request
// findings such as quota.
type Violation struct {
	Code    ViolationCode
	Date    Date
	Message string
	Limit   int
	Count   int
}

// ValidationResult is the outcome of one validation run.
// Notices are informational and never affect OK.
type ValidationResult struct {
	OK         bool
	Dates      []Date
	Violations []Violation
	Notices    []Violation
}

// LeaveRequest is the candidate submission being validated.
type LeaveRequest struct {
	EmployeeID string
	StoreID    string
	Dates      []string
}

// =============================================================================
// VALIDATE
// =============================================================================

// Validate runs every rule against the candidate dates and accumulates all
// findings instead of stopping at the first one.
//
// others may include the requesting employee's own records and voided
// records; both are ignored when counting per-day occupancy.
func Validate(req LeaveRequest, settings Settings, others []EmployeeSchedule) ValidationResult {
	var res ValidationResult

	dates, violations := normalizeDates(req.Dates, settings.Month)
	res.Dates = dates
	res.Violations = append(res.Violations, violations...)

	// 1. Quota
	if limit := settings.MaxLeaveDaysPerPerson; limit > 0 && len(dates) > limit {
		res.Violations = append(res.Violations, Violation{
			Code:    ViolationQuota,
			Message: fmt.Sprintf("requested %d leave days, at most %d allowed", len(dates), limit),
			Limit:   limit,
			Count:   len(dates),
		})
	}

	// 2. Weekend cap (Fri/Sat/Sun)
	if limit := settings.MaxWeekendLeaveDays; limit > 0 {
		weekend := 0
		for _, d := range dates {
			if d.IsWeekend() {
				weekend++
			}
		}
		if weekend > limit {
			res.Violations = append(res.Violations, Violation{
				Code:    ViolationWeekendCap,
				Message: fmt.Sprintf("requested %d weekend days (Fri-Sun), at most %d allowed", weekend, limit),
				Limit:   limit,
				Count:   weekend,
			})
		}
	}

	forbidden := settings.ForbiddenFor(req.StoreID)
	holidays := settings.HolidaysFor(req.StoreID)
	occ := buildOccupancy(req.EmployeeID, req.StoreID, others)

	for _, d := range dates {
		// 3. Forbidden days
		if forbidden[d] {
			res.Violations = append(res.Violations, Violation{
				Code:    ViolationForbiddenDay,
				Date:    d,
				Message: fmt.Sprintf("%s is a forbidden leave day for store %s", d, req.StoreID),
			})
		}

		// 4. Holiday overlap (informational)
		if holidays[d] {
			res.Notices = append(res.Notices, Violation{
				Code:    NoticeHolidayOverlap,
				Date:    d,
				Message: fmt.Sprintf("%s is a store holiday and still counts toward quota", d),
			})
		}

		// 5. Global per-day cap
		if limit := settings.MaxLeavePeoplePerDay; limit > 0 && occ.global[d] >= limit {
			res.Violations = append(res.Violations, Violation{
				Code:    ViolationDailyCap,
				Date:    d,
				Message: fmt.Sprintf("%s already has %d people on leave (limit %d)", d, occ.global[d], limit),
				Limit:   limit,
				Count:   occ.global[d],
			})
		}

		// 6. Same-store per-day cap
		if limit := settings.MaxSameStoreLeavePerDay; limit > 0 && occ.store[d] >= limit {
			res.Violations = append(res.Violations, Violation{
				Code:    ViolationStoreDailyCap,
				Date:    d,
				Message: fmt.Sprintf("%s already has %d people from store %s on leave (limit %d)", d, occ.store[d], req.StoreID, limit),
				Limit:   limit,
				Count:   occ.store[d],
			})
		}
	}

	res.OK = len(res.Violations) == 0
	return res
}

// normalizeDates parses, deduplicates and sorts the raw candidate dates.
// Unparseable dates and dates outside the target month become violations.
func normalizeDates(raw []string, month Month) ([]Date, []Violation) {
	var (
		dates      []Date
		violations []Violation
	)
	for _, r := range raw {
		d, err := ParseDate(r)
		if err != nil {
			violations = append(violations, Violation{
				Code:    ViolationInvalidDate,
				Message: err.Error(),
			})
			continue
		}
		if month != "" && !month.Contains(d) {
			violations = append(violations, Violation{
				Code:    ViolationOutsideMonth,
				Date:    d,
				Message: fmt.Sprintf("%s is outside schedule month %s", d, month),
			})
			continue
		}
		dates = append(dates, d)
	}
	return SortDates(dates), violations
}

// =============================================================================
// OCCUPANCY INDEX
// =============================================================================

// occupancy counts, per date, how many other employees are already on leave.
// Built once per validation so each candidate date is an O(1) lookup.
type occupancy struct {
	global map[Date]int
	store  map[Date]int
}

func buildOccupancy(employeeID, storeID string, others []EmployeeSchedule) occupancy {
	occ := occupancy{
		global: make(map[Date]int),
		store:  make(map[Date]int),
	}
	for _, s := range others {
		if !s.IsActive() || s.EmployeeID == employeeID {
			continue
		}
		for _, d := range SortDates(s.LeaveDates) {
			occ.global[d]++
			if s.StoreID == storeID {
				occ.store[d]++
			}
		}
	}
	return occ
}
