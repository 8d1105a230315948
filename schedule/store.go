/*
store.go - Collaborator interfaces for the coordinator

PURPOSE:
  Defines the boundary between the coordinator and the outside world:
  record storage and outbound notifications. The coordinator guarantees
  serialization of its own writers; durability is the Store's job.

OVERWRITE CONTRACT:
  SaveSchedule upserts by record ID. The coordinator reuses the ID of the
  employee's existing submitted record for the month, so a later submission
  replaces the earlier one. Voided records keep their ID and are never
  deleted; a submission after a void gets a new ID.

NOT FOUND:
  Getters return (nil, nil) when the record does not exist, matching the
  SQLite store conventions.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite store
  - schedule/store/memory.go: In-memory store for tests and development

NOTIFICATIONS:
  Notify is fire-and-forget from the coordinator's point of view. Errors are
  logged and swallowed; they never fail a scheduling operation.

SEE ALSO:
  - notify/: Log, Telegram and async dispatching notifiers
*/
package schedule

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

// Store persists settings, schedules and the employee directory.
type Store interface {
	// GetSettings returns the settings for month, or nil.
	GetSettings(ctx context.Context, month Month) (*Settings, error)

	// LatestSettings returns the most recently configured month, or nil.
	LatestSettings(ctx context.Context) (*Settings, error)

	// SaveSettings creates or supersedes the settings for s.Month.
	SaveSettings(ctx context.Context, s Settings) error

	// ListSchedules returns every record for month, voided ones included.
	ListSchedules(ctx context.Context, month Month) ([]EmployeeSchedule, error)

	// GetSchedule returns the submitted record of an employee for month, or nil.
	GetSchedule(ctx context.Context, employeeID string, month Month) (*EmployeeSchedule, error)

	// SaveSchedule upserts a record by ID.
	SaveSchedule(ctx context.Context, s EmployeeSchedule) error

	// GetEmployee returns a directory entry, or nil.
	GetEmployee(ctx context.Context, id string) (*Employee, error)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type EventKind string

const (
	EventSessionOpened     EventKind = "session_opened"
	EventScheduleSubmitted EventKind = "schedule_submitted"
	EventScheduleVoided    EventKind = "schedule_voided"
	EventWindowClosingSoon EventKind = "window_closing_soon"
)

// Event is the payload handed to a Notifier.
type Event struct {
	Kind         EventKind
	Month        Month
	At           time.Time
	EmployeeID   string
	EmployeeName string
	StoreID      string
	ChatID       string // employee's personal chat, if known
	ActorID      string
	Dates        []Date
	ExpiresAt    time.Time
	ClosesAt     time.Time
	Reason       string
}

// Notifier delivers events to people.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
