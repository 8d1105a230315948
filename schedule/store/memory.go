// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-scheduler/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	settings  map[schedule.Month]schedule.Settings
	schedules map[string]schedule.EmployeeSchedule // by record ID
	employees map[string]schedule.Employee

	// FailWrites, when set, is returned by every write. Used to simulate a
	// storage outage in tests.
	FailWrites error
}

func NewMemory() *Memory {
	return &Memory{
		settings:  make(map[schedule.Month]schedule.Settings),
		schedules: make(map[string]schedule.EmployeeSchedule),
		employees: make(map[string]schedule.Employee),
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Memory) GetSettings(_ context.Context, month schedule.Month) (*schedule.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[month]
	if !ok {
		return nil, nil
	}
	s = cloneSettings(s)
	return &s, nil
}

func (m *Memory) LatestSettings(_ context.Context) (*schedule.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest schedule.Month
	for month := range m.settings {
		if month > latest {
			latest = month
		}
	}
	if latest == "" {
		return nil, nil
	}
	s := cloneSettings(m.settings[latest])
	return &s, nil
}

func (m *Memory) SaveSettings(_ context.Context, s schedule.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.settings[s.Month] = cloneSettings(s)
	return nil
}

// ListSettings returns every configured month, newest first.
func (m *Memory) ListSettings(_ context.Context) ([]schedule.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]schedule.Settings, 0, len(m.settings))
	for _, s := range m.settings {
		out = append(out, cloneSettings(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) ListSchedules(_ context.Context, month schedule.Month) ([]schedule.EmployeeSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schedule.EmployeeSchedule
	for _, s := range m.schedules {
		if s.Month == month {
			out = append(out, cloneSchedule(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetSchedule(_ context.Context, employeeID string, month schedule.Month) (*schedule.EmployeeSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.schedules {
		if s.EmployeeID == employeeID && s.Month == month && s.IsActive() {
			c := cloneSchedule(s)
			return &c, nil
		}
	}
	return nil, nil
}

// SaveSchedule upserts by ID. Saving a submitted record that would create a
// second submitted record for the same employee and month is rejected.
func (m *Memory) SaveSchedule(_ context.Context, s schedule.EmployeeSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	if s.IsActive() {
		for id, other := range m.schedules {
			if id != s.ID && other.IsActive() && other.EmployeeID == s.EmployeeID && other.Month == s.Month {
				return schedule.ErrDuplicateSubmission
			}
		}
	}
	m.schedules[s.ID] = cloneSchedule(s)
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) GetEmployee(_ context.Context, id string) (*schedule.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) SaveEmployee(_ context.Context, e schedule.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]schedule.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]schedule.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// COPY HELPERS - callers never share slices or maps with the store
// =============================================================================

func cloneSchedule(s schedule.EmployeeSchedule) schedule.EmployeeSchedule {
	s.LeaveDates = append([]schedule.Date(nil), s.LeaveDates...)
	if s.VoidedAt != nil {
		t := *s.VoidedAt
		s.VoidedAt = &t
	}
	return s
}

func cloneSettings(s schedule.Settings) schedule.Settings {
	s.StoreHolidays = cloneDateMap(s.StoreHolidays)
	s.StoreForbiddenDays = cloneDateMap(s.StoreForbiddenDays)
	return s
}

func cloneDateMap(in map[string][]schedule.Date) map[string][]schedule.Date {
	if in == nil {
		return nil
	}
	out := make(map[string][]schedule.Date, len(in))
	for k, v := range in {
		out[k] = append([]schedule.Date(nil), v...)
	}
	return out
}
