/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Employees are created
	- Next month's settings are configured relative to the clock
	- Pre-submitted schedules fill the crowded days
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/schedule"
	"github.com/warp/leave-scheduler/schedule/store"
)

func setupScenarioServer(t *testing.T) (*testServer, *Handler) {
	t.Helper()
	st := store.NewMemory()
	ts := &testServer{t: t, store: st, now: time.Date(2025, 8, 17, 10, 0, 0, 0, time.UTC)}

	coord := schedule.NewCoordinator(st, nil, time.UTC, zap.NewNop())
	h := NewHandler(coord, st, nil)
	h.Now = func() time.Time { return ts.now }
	ts.router = NewRouter(h, RouterOptions{EnableScenarios: true})
	return ts, h
}

func TestScenario_OpenWindow(t *testing.T) {
	// GIVEN: the open-window scenario
	// WHEN: loading it
	// THEN: next month is configured and its window is open now
	ts, h := setupScenarioServer(t)
	ctx := context.Background()

	rec := ts.do(http.MethodPost, "/api/admin/scenarios/load", LoadScenarioRequest{ScenarioID: "open-window"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	employees, err := h.Store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, employees, len(demoEmployees))

	settings, err := h.Store.GetSettings(ctx, "2025-09")
	require.NoError(t, err)
	require.NotNil(t, settings)
	require.NoError(t, settings.Validate())
	assert.True(t, schedule.IsOpen(ts.now, *settings, time.UTC))

	rec = ts.do(http.MethodPost, "/api/employees/demo-bob/schedule/session", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/admin/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "open-window", decode[ScenarioDTO](t, rec).ID)
}

func TestScenario_CrowdedMonth(t *testing.T) {
	ts, h := setupScenarioServer(t)

	rec := ts.do(http.MethodPost, "/api/admin/scenarios/load", LoadScenarioRequest{ScenarioID: "crowded-month"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	records, err := h.Coordinator.ListSchedules(context.Background(), "2025-09")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// The 1st is at the daily cap for everyone else
	rec = ts.do(http.MethodPost, "/api/employees/demo-erin/schedule/preview", SubmitScheduleRequest{
		Dates: []string{"2025-09-01"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[ResultDTO](t, rec)
	assert.False(t, res.Validation.OK)
	require.Len(t, res.Validation.Violations, 1)
	assert.Equal(t, "daily_cap_reached", res.Validation.Violations[0].Code)

	// Loading twice overwrites rather than duplicating
	rec = ts.do(http.MethodPost, "/api/admin/scenarios/load", LoadScenarioRequest{ScenarioID: "crowded-month"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	records, err = h.Coordinator.ListSchedules(context.Background(), "2025-09")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestScenario_ClosedWindow(t *testing.T) {
	ts, _ := setupScenarioServer(t)

	rec := ts.do(http.MethodPost, "/api/admin/scenarios/load", LoadScenarioRequest{ScenarioID: "closed-window"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/employees/demo-alice/schedule/session", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	res := decode[ResultDTO](t, rec)
	require.NotNil(t, res.NextOpen)
	assert.True(t, res.NextOpen.Equal(time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)))
}

func TestScenario_Unknown(t *testing.T) {
	ts, _ := setupScenarioServer(t)

	rec := ts.do(http.MethodPost, "/api/admin/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/admin/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))
}

func TestScenario_RoutesHiddenByDefault(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/admin/scenarios", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
