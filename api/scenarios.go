/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos and manual testing of the scheduling UI. Each scenario
	configures next month's rules relative to the current clock, creates
	employees, and optionally pre-submits schedules.

AVAILABLE SCENARIOS:

	open-window:    Window open now, empty month, three stores
	crowded-month:  Window open, popular days already at the daily cap
	closed-window:  Window opens in three days (status shows next_open)

HOW SCENARIOS WORK:
 1. Compute next month and the window relative to Handler.Now
 2. Save the month's settings
 3. Create employees (upsert by fixed id)
 4. Optionally submit schedules through the coordinator's admin path

USAGE VIA API:

	POST /api/admin/scenarios/load
	{"scenario_id": "crowded-month"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, now)
 3. Add case to LoadScenario

NOTE:

	Scenarios overwrite settings and employees with the same ids. Routes
	are only mounted outside production.

SEE ALSO:
  - server.go: RouterOptions.EnableScenarios
  - schedule/coordinator.go: AdminSubmit
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/schedule"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/admin/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "open-window",
		Name:        "Open Window",
		Description: "Next month's window is open and nobody has submitted yet",
	},
	{
		ID:          "crowded-month",
		Name:        "Crowded Month",
		Description: "The first days of next month already hit the daily cap",
	},
	{
		ID:          "closed-window",
		Name:        "Closed Window",
		Description: "Next month's window opens in three days",
	},
}

const scenarioActor = "scenario-loader"

var demoEmployees = []schedule.Employee{
	{ID: "demo-alice", Name: "Alice", StoreID: "north"},
	{ID: "demo-bob", Name: "Bob", StoreID: "north"},
	{ID: "demo-carol", Name: "Carol", StoreID: "south"},
	{ID: "demo-dan", Name: "Dan", StoreID: "south"},
	{ID: "demo-erin", Name: "Erin", StoreID: "east"},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	now := h.Now()
	var err error

	switch req.ScenarioID {
	case "open-window":
		err = h.loadOpenWindowScenario(ctx, now)
	case "crowded-month":
		err = h.loadCrowdedMonthScenario(ctx, now)
	case "closed-window":
		err = h.loadClosedWindowScenario(ctx, now)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.scenarioMu.Lock()
	h.currentScenario = req.ScenarioID
	h.scenarioMu.Unlock()

	h.Logger.Info("scenario loaded", zap.String("scenario_id", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadOpenWindowScenario(ctx context.Context, now time.Time) error {
	settings := h.demoSettings(now, -24*time.Hour, 5*24*time.Hour)
	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return h.saveDemoEmployees(ctx, now)
}

// loadCrowdedMonthScenario fills the 1st and 2nd of next month to the
// daily cap, so any further request for those days is rejected.
func (h *Handler) loadCrowdedMonthScenario(ctx context.Context, now time.Time) error {
	settings := h.demoSettings(now, -24*time.Hour, 5*24*time.Hour)
	settings.MaxLeavePeoplePerDay = 2
	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := h.saveDemoEmployees(ctx, now); err != nil {
		return err
	}

	first := monthDay(settings.Month, 1)
	second := monthDay(settings.Month, 2)
	third := monthDay(settings.Month, 3)

	submissions := []struct {
		employeeID string
		dates      []string
	}{
		{"demo-alice", []string{first, second, third}},
		{"demo-carol", []string{first, second}},
	}
	for _, s := range submissions {
		res, err := h.Coordinator.AdminSubmit(ctx, scenarioActor, s.employeeID, "", s.dates, now)
		if err != nil {
			return fmt.Errorf("submit for %s: %w", s.employeeID, err)
		}
		if !res.OK() {
			return fmt.Errorf("submit for %s: %w", s.employeeID, res.Err())
		}
	}
	return nil
}

func (h *Handler) loadClosedWindowScenario(ctx context.Context, now time.Time) error {
	settings := h.demoSettings(now, 3*24*time.Hour, 8*24*time.Hour)
	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return h.saveDemoEmployees(ctx, now)
}

// =============================================================================
// HELPERS
// =============================================================================

// demoSettings builds next month's rules with a window from now+openIn to
// now+closeIn, truncated to whole days in the coordinator's location.
func (h *Handler) demoSettings(now time.Time, openIn, closeIn time.Duration) schedule.Settings {
	loc := h.Coordinator.Location()
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, loc)
	month := schedule.Month(next.Format("2006-01"))

	opens := local.Add(openIn)
	closes := local.Add(closeIn)

	return schedule.Settings{
		Month:                     month,
		MaxLeaveDaysPerPerson:     8,
		MaxLeavePeoplePerDay:      3,
		MaxWeekendLeaveDays:       4,
		MaxSameStoreLeavePerDay:   1,
		OperationTimeLimitMinutes: 10,
		SystemOpenDate:            schedule.Date(opens.Format("2006-01-02")),
		SystemOpenTime:            "00:00",
		SystemCloseDate:           schedule.Date(closes.Format("2006-01-02")),
		SystemCloseTime:           "00:00",
		StoreHolidays: map[string][]schedule.Date{
			"north": {schedule.Date(monthDay(month, 10))},
		},
		StoreForbiddenDays: map[string][]schedule.Date{
			"south": {schedule.Date(monthDay(month, 15))},
		},
		UpdatedAt: now,
		UpdatedBy: scenarioActor,
	}
}

func (h *Handler) saveDemoEmployees(ctx context.Context, now time.Time) error {
	for _, e := range demoEmployees {
		e.CreatedAt = now
		if err := h.Store.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("save employee %s: %w", e.ID, err)
		}
	}
	return nil
}

func monthDay(m schedule.Month, day int) string {
	return fmt.Sprintf("%s-%02d", m, day)
}
