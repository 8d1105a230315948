/*
handlers.go - HTTP API handlers for the leave-scheduling coordinator

PURPOSE:
  Exposes the schedule.Coordinator via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the coordinator.

ENDPOINTS:
  Employees:
    GET    /api/employees                          List all employees
    POST   /api/employees                          Create or update employee
    GET    /api/employees/{id}                     Get employee details

  Scheduling (employee):
    GET    /api/employees/{id}/schedule/status     Window + session state
    POST   /api/employees/{id}/schedule/session    Enter the editing session
    DELETE /api/employees/{id}/schedule/session    Leave the session early
    POST   /api/employees/{id}/schedule            Submit leave dates
    POST   /api/employees/{id}/schedule/preview    Validate without committing

  Admin:
    GET    /api/admin/settings                     List configured months
    PUT    /api/admin/settings                     Create/supersede a month
    GET    /api/admin/settings/{month}             Get one month's rule set
    GET    /api/admin/schedules/{month}            All records of a month
    POST   /api/admin/schedules                    Submit on behalf of employee
    POST   /api/admin/schedules/{month}/{employeeID}/void

  Scenarios (non-production, see scenarios.go):
    GET    /api/admin/scenarios                    List demo scenarios
    GET    /api/admin/scenarios/current            Last loaded scenario
    POST   /api/admin/scenarios/load               Load a scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Coordinator: Scheduling operations and the session lock
  - Store: Directory and settings access
  - Now: Clock, replaced in tests

OUTCOME -> HTTP STATUS:
  ok                 200 (201 on submit)
  system_closed      403
  busy               409
  already_submitted  409
  session_not_held   409
  validation_failed  422 (200 on preview)
  The body is always a ResultDTO carrying the outcome.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input
  - 404: Unknown employee, month or schedule; no settings configured
  - 503: Storage unavailable (retryable)
  - 500: Internal errors

ACTOR:
  Admin endpoints take the acting administrator from the X-Actor-ID header.

SECURITY NOTE:
  No authentication. Deploy behind an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - schedule/coordinator.go: Operations
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need beyond the coordinator.
type Store interface {
	schedule.Store
	SaveEmployee(ctx context.Context, e schedule.Employee) error
	ListEmployees(ctx context.Context) ([]schedule.Employee, error)
	ListSettings(ctx context.Context) ([]schedule.Settings, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Coordinator *schedule.Coordinator
	Store       Store
	Now         func() time.Time
	Logger      *zap.Logger

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a handler with a real clock.
func NewHandler(coord *schedule.Coordinator, store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Coordinator: coord,
		Store:       store,
		Now:         time.Now,
		Logger:      logger.Named("api"),
	}
}

const actorHeader = "X-Actor-ID"

func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(actorHeader)); a != "" {
		return a
	}
	return "admin"
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates or updates an employee. A missing id is generated.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.StoreID) == "" {
		writeError(w, http.StatusBadRequest, "name and store_id are required", nil)
		return
	}

	emp := schedule.Employee{
		ID:             strings.TrimSpace(req.ID),
		Name:           strings.TrimSpace(req.Name),
		StoreID:        strings.TrimSpace(req.StoreID),
		TelegramChatID: strings.TrimSpace(req.TelegramChatID),
		CreatedAt:      h.Now(),
	}
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create employee", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// =============================================================================
// SCHEDULING HANDLERS
// =============================================================================

// GetScheduleStatus reports the window, the session holder and whether the
// employee already submitted.
func (h *Handler) GetScheduleStatus(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	res, err := h.Coordinator.Status(r.Context(), chi.URLParam(r, "id"), now)
	h.respond(w, res, err, http.StatusOK, now)
}

// EnterSession acquires the exclusive editing session.
func (h *Handler) EnterSession(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	res, err := h.Coordinator.EnterSession(r.Context(), chi.URLParam(r, "id"), now)
	h.respond(w, res, err, http.StatusOK, now)
}

// ExitSession releases the session early.
func (h *Handler) ExitSession(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	res, err := h.Coordinator.ExitSession(r.Context(), chi.URLParam(r, "id"), now)
	h.respond(w, res, err, http.StatusOK, now)
}

// SubmitSchedule validates and commits the leave dates of the session holder.
func (h *Handler) SubmitSchedule(w http.ResponseWriter, r *http.Request) {
	var req SubmitScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	now := h.Now()
	res, err := h.Coordinator.SubmitSchedule(r.Context(), chi.URLParam(r, "id"), req.StoreID, req.Dates, now)
	h.respond(w, res, err, http.StatusCreated, now)
}

// PreviewSchedule validates dates without committing or needing a session.
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req SubmitScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	now := h.Now()
	res, err := h.Coordinator.Preview(r.Context(), chi.URLParam(r, "id"), req.StoreID, req.Dates, now)
	if err == nil && res.Outcome == schedule.OutcomeValidationFailed {
		// Rejected dates are the answer to a preview, not a failed request.
		writeJSON(w, http.StatusOK, toResultDTO(res, now))
		return
	}
	h.respond(w, res, err, http.StatusOK, now)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// PutSettings creates or supersedes the rule set of a month.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settings, err := req.toSettings().Normalize()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err)
		return
	}
	settings.UpdatedAt = h.Now()
	settings.UpdatedBy = actor(r)

	if err := h.Store.SaveSettings(r.Context(), settings); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to save settings", err)
		return
	}

	h.Logger.Info("settings saved",
		zap.String("month", string(settings.Month)),
		zap.String("actor_id", settings.UpdatedBy),
	)
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// GetSettings returns the rule set of one month.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	month, err := schedule.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	settings, err := h.Store.GetSettings(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to get settings", err)
		return
	}
	if settings == nil {
		writeError(w, http.StatusNotFound, "Settings not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toSettingsDTO(*settings))
}

// ListSettings returns every configured month, newest first.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.Store.ListSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list settings", err)
		return
	}

	dtos := make([]SettingsDTO, len(all))
	for i, s := range all {
		dtos[i] = toSettingsDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListSchedules returns every record of a month, voided ones included.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	month, err := schedule.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	records, err := h.Coordinator.ListSchedules(r.Context(), month)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ScheduleDTO, len(records))
	for i, rec := range records {
		dtos[i] = toScheduleDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdminSubmit commits a schedule on behalf of an employee, bypassing the
// window and the session.
func (h *Handler) AdminSubmit(w http.ResponseWriter, r *http.Request) {
	var req AdminSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}

	now := h.Now()
	res, err := h.Coordinator.AdminSubmit(r.Context(), actor(r), req.EmployeeID, req.StoreID, req.Dates, now)
	h.respond(w, res, err, http.StatusCreated, now)
}

// VoidSchedule marks an employee's submitted record voided.
func (h *Handler) VoidSchedule(w http.ResponseWriter, r *http.Request) {
	month, err := schedule.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	var req VoidScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Coordinator.VoidSchedule(r.Context(), actor(r), chi.URLParam(r, "employeeID"), month, req.Reason, h.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(*rec))
}

// =============================================================================
// HELPERS
// =============================================================================

// respond writes a coordinator result or error.
func (h *Handler) respond(w http.ResponseWriter, res *schedule.Result, err error, okStatus int, now time.Time) {
	if err != nil {
		if !schedule.IsNotFound(err) {
			h.Logger.Error("scheduling operation failed", zap.Error(err))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, outcomeStatus(res.Outcome, okStatus), toResultDTO(res, now))
}

func outcomeStatus(o schedule.Outcome, okStatus int) int {
	switch o {
	case schedule.OutcomeOK:
		return okStatus
	case schedule.OutcomeSystemClosed:
		return http.StatusForbidden
	case schedule.OutcomeBusy, schedule.OutcomeAlreadySubmitted, schedule.OutcomeSessionNotHeld:
		return http.StatusConflict
	case schedule.OutcomeValidationFailed:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case schedule.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable, retry later", err)
	case schedule.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
