/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the schedule package's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Errors:     ErrorResponse
  Employee:   EmployeeDTO, CreateEmployeeRequest
  Settings:   SettingsDTO (request and response)
  Scheduling: ResultDTO, StatusDTO, SessionDTO, ValidationDTO, ViolationDTO,
              BusyDTO, ScheduleDTO, SubmitScheduleRequest,
              AdminSubmitRequest, VoidScheduleRequest

OUTCOME:
  Every scheduling response is a ResultDTO with an explicit "outcome"
  field, whatever the HTTP status.

VALIDATION:
  Validation is done in handlers and in the schedule package, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - schedule/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/warp/leave-scheduler/schedule"
)

// ErrorResponse is the body of every non-scheduling error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	StoreID        string    `json:"store_id"`
	TelegramChatID string    `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateEmployeeRequest is the body of POST /api/employees.
type CreateEmployeeRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	StoreID        string `json:"store_id"`
	TelegramChatID string `json:"telegram_chat_id"`
}

func toEmployeeDTO(e schedule.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:             e.ID,
		Name:           e.Name,
		StoreID:        e.StoreID,
		TelegramChatID: e.TelegramChatID,
		CreatedAt:      e.CreatedAt,
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsDTO is the administrator-authored rule set of one month.
type SettingsDTO struct {
	Month                     string              `json:"month"`
	MaxLeaveDaysPerPerson     int                 `json:"max_leave_days_per_person"`
	MaxLeavePeoplePerDay      int                 `json:"max_leave_people_per_day"`
	MaxWeekendLeaveDays       int                 `json:"max_weekend_leave_days"`
	MaxSameStoreLeavePerDay   int                 `json:"max_same_store_leave_per_day"`
	OperationTimeLimitMinutes int                 `json:"operation_time_limit_minutes"`
	SystemOpenDate            string              `json:"system_open_date"`
	SystemOpenTime            string              `json:"system_open_time"`
	SystemCloseDate           string              `json:"system_close_date"`
	SystemCloseTime           string              `json:"system_close_time"`
	StoreHolidays             map[string][]string `json:"store_holidays,omitempty"`
	StoreForbiddenDays        map[string][]string `json:"store_forbidden_days,omitempty"`
	UpdatedAt                 *time.Time          `json:"updated_at,omitempty"`
	UpdatedBy                 string              `json:"updated_by,omitempty"`
}

func (d SettingsDTO) toSettings() schedule.Settings {
	return schedule.Settings{
		Month:                     schedule.Month(d.Month),
		MaxLeaveDaysPerPerson:     d.MaxLeaveDaysPerPerson,
		MaxLeavePeoplePerDay:      d.MaxLeavePeoplePerDay,
		MaxWeekendLeaveDays:       d.MaxWeekendLeaveDays,
		MaxSameStoreLeavePerDay:   d.MaxSameStoreLeavePerDay,
		OperationTimeLimitMinutes: d.OperationTimeLimitMinutes,
		SystemOpenDate:            schedule.Date(d.SystemOpenDate),
		SystemOpenTime:            d.SystemOpenTime,
		SystemCloseDate:           schedule.Date(d.SystemCloseDate),
		SystemCloseTime:           d.SystemCloseTime,
		StoreHolidays:             toDateMap(d.StoreHolidays),
		StoreForbiddenDays:        toDateMap(d.StoreForbiddenDays),
	}
}

func toSettingsDTO(s schedule.Settings) SettingsDTO {
	dto := SettingsDTO{
		Month:                     string(s.Month),
		MaxLeaveDaysPerPerson:     s.MaxLeaveDaysPerPerson,
		MaxLeavePeoplePerDay:      s.MaxLeavePeoplePerDay,
		MaxWeekendLeaveDays:       s.MaxWeekendLeaveDays,
		MaxSameStoreLeavePerDay:   s.MaxSameStoreLeavePerDay,
		OperationTimeLimitMinutes: s.OperationTimeLimitMinutes,
		SystemOpenDate:            string(s.SystemOpenDate),
		SystemOpenTime:            s.SystemOpenTime,
		SystemCloseDate:           string(s.SystemCloseDate),
		SystemCloseTime:           s.SystemCloseTime,
		StoreHolidays:             fromDateMap(s.StoreHolidays),
		StoreForbiddenDays:        fromDateMap(s.StoreForbiddenDays),
		UpdatedBy:                 s.UpdatedBy,
	}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		dto.UpdatedAt = &t
	}
	return dto
}

func toDateMap(in map[string][]string) map[string][]schedule.Date {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]schedule.Date, len(in))
	for store, dates := range in {
		ds := make([]schedule.Date, len(dates))
		for i, d := range dates {
			ds[i] = schedule.Date(d)
		}
		out[store] = ds
	}
	return out
}

func fromDateMap(in map[string][]schedule.Date) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for store, dates := range in {
		ds := make([]string, len(dates))
		for i, d := range dates {
			ds[i] = string(d)
		}
		out[store] = ds
	}
	return out
}

// =============================================================================
// SCHEDULING
// =============================================================================

// SubmitScheduleRequest is the body of submit and preview calls.
// An empty StoreID means the employee's home store.
type SubmitScheduleRequest struct {
	StoreID string   `json:"store_id"`
	Dates   []string `json:"dates"`
}

// AdminSubmitRequest is the body of POST /api/admin/schedules.
type AdminSubmitRequest struct {
	EmployeeID string   `json:"employee_id"`
	StoreID    string   `json:"store_id"`
	Dates      []string `json:"dates"`
}

// VoidScheduleRequest is the optional body of the void call.
type VoidScheduleRequest struct {
	Reason string `json:"reason"`
}

// ResultDTO is the response of every scheduling operation.
type ResultDTO struct {
	Outcome    string         `json:"outcome"`
	Message    string         `json:"message,omitempty"`
	Status     *StatusDTO     `json:"status,omitempty"`
	Session    *SessionDTO    `json:"session,omitempty"`
	Validation *ValidationDTO `json:"validation,omitempty"`
	Schedule   *ScheduleDTO   `json:"schedule,omitempty"`
	Busy       *BusyDTO       `json:"busy,omitempty"`
	NextOpen   *time.Time     `json:"next_open,omitempty"`
}

type StatusDTO struct {
	Open             bool      `json:"open"`
	Month            string    `json:"month"`
	OpensAt          time.Time `json:"opens_at"`
	ClosesAt         time.Time `json:"closes_at"`
	HolderID         string    `json:"holder_id,omitempty"`
	HolderName       string    `json:"holder_name,omitempty"`
	RemainingSeconds int       `json:"remaining_seconds,omitempty"`
	IsHolder         bool      `json:"is_holder"`
	AlreadySubmitted bool      `json:"already_submitted"`
}

type SessionDTO struct {
	HolderID         string    `json:"holder_id"`
	HolderName       string    `json:"holder_name"`
	Month            string    `json:"month"`
	StartedAt        time.Time `json:"started_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// BusyDTO tells the caller who is scheduling and for how long.
type BusyDTO struct {
	HolderID         string `json:"holder_id"`
	HolderName       string `json:"holder_name"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type ValidationDTO struct {
	OK         bool           `json:"ok"`
	Dates      []string       `json:"dates"`
	Violations []ViolationDTO `json:"violations"`
	Notices    []ViolationDTO `json:"notices"`
}

type ViolationDTO struct {
	Code    string `json:"code"`
	Date    string `json:"date,omitempty"`
	Message string `json:"message"`
	Limit   int    `json:"limit,omitempty"`
	Count   int    `json:"count,omitempty"`
}

type ScheduleDTO struct {
	ID           string     `json:"id"`
	EmployeeID   string     `json:"employee_id"`
	EmployeeName string     `json:"employee_name"`
	StoreID      string     `json:"store_id"`
	Month        string     `json:"month"`
	LeaveDates   []string   `json:"leave_dates"`
	Status       string     `json:"status"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	SubmittedBy  string     `json:"submitted_by,omitempty"`
	VoidedAt     *time.Time `json:"voided_at,omitempty"`
	VoidedBy     string     `json:"voided_by,omitempty"`
	VoidReason   string     `json:"void_reason,omitempty"`
}

func toResultDTO(res *schedule.Result, now time.Time) ResultDTO {
	dto := ResultDTO{Outcome: string(res.Outcome)}
	if !res.OK() {
		dto.Message = res.Err().Error()
	}
	if st := res.Status; st != nil {
		dto.Status = &StatusDTO{
			Open:             st.Open,
			Month:            string(st.Month),
			OpensAt:          st.OpensAt,
			ClosesAt:         st.ClosesAt,
			HolderID:         st.HolderID,
			HolderName:       st.HolderName,
			RemainingSeconds: st.RemainingSeconds,
			IsHolder:         st.IsHolder,
			AlreadySubmitted: st.AlreadySubmitted,
		}
	}
	if s := res.Session; s != nil {
		dto.Session = &SessionDTO{
			HolderID:         s.HolderID,
			HolderName:       s.HolderName,
			Month:            string(s.Month),
			StartedAt:        s.StartedAt,
			ExpiresAt:        s.ExpiresAt,
			RemainingSeconds: s.RemainingSeconds(now),
		}
	}
	if v := res.Validation; v != nil {
		vd := toValidationDTO(*v)
		dto.Validation = &vd
	}
	if rec := res.Schedule; rec != nil {
		sd := toScheduleDTO(*rec)
		dto.Schedule = &sd
	}
	if b := res.Busy; b != nil {
		dto.Busy = &BusyDTO{
			HolderID:         b.HolderID,
			HolderName:       b.HolderName,
			RemainingSeconds: b.RemainingSeconds,
		}
	}
	if !res.NextOpen.IsZero() {
		t := res.NextOpen
		dto.NextOpen = &t
	}
	return dto
}

func toValidationDTO(v schedule.ValidationResult) ValidationDTO {
	return ValidationDTO{
		OK:         v.OK,
		Dates:      datesToStrings(v.Dates),
		Violations: toViolationDTOs(v.Violations),
		Notices:    toViolationDTOs(v.Notices),
	}
}

func toViolationDTOs(vs []schedule.Violation) []ViolationDTO {
	out := make([]ViolationDTO, len(vs))
	for i, v := range vs {
		out[i] = ViolationDTO{
			Code:    string(v.Code),
			Date:    string(v.Date),
			Message: v.Message,
			Limit:   v.Limit,
			Count:   v.Count,
		}
	}
	return out
}

func toScheduleDTO(s schedule.EmployeeSchedule) ScheduleDTO {
	return ScheduleDTO{
		ID:           s.ID,
		EmployeeID:   s.EmployeeID,
		EmployeeName: s.EmployeeName,
		StoreID:      s.StoreID,
		Month:        string(s.Month),
		LeaveDates:   datesToStrings(s.LeaveDates),
		Status:       string(s.Status),
		SubmittedAt:  s.SubmittedAt,
		SubmittedBy:  s.SubmittedBy,
		VoidedAt:     s.VoidedAt,
		VoidedBy:     s.VoidedBy,
		VoidReason:   s.VoidReason,
	}
}

func datesToStrings(dates []schedule.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = string(d)
	}
	return out
}
