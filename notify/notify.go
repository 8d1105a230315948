/*
Package notify delivers coordinator events to people.

PURPOSE:
  The coordinator emits an Event after a session opens, a schedule is
  submitted or voided, and when the window is about to close. Delivery is
  best effort: failures are logged by the coordinator and never undo a
  scheduling operation.

NOTIFIERS:
  Log:        Writes every event to the structured log
  Telegram:   Sends a chat message to the admin chat and the employee
  Multi:      Fans one event out to several notifiers
  Dispatcher: Queues events and delivers them on a background worker so
              a slow chat API never holds the commit path

WIRING (cmd/server):
  coordinator -> Dispatcher -> Multi(Log, Telegram)

SEE ALSO:
  - schedule/store.go: Event and Notifier definitions
*/
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/schedule"
)

// =============================================================================
// MESSAGE FORMAT
// =============================================================================

// Format renders an event as a short human-readable message.
func Format(ev schedule.Event) string {
	switch ev.Kind {
	case schedule.EventSessionOpened:
		return fmt.Sprintf("%s started scheduling %s (session ends %s)",
			displayName(ev), ev.Month, ev.ExpiresAt.Format("15:04"))
	case schedule.EventScheduleSubmitted:
		msg := fmt.Sprintf("%s submitted %d leave day(s) for %s: %s",
			displayName(ev), len(ev.Dates), ev.Month, joinDates(ev.Dates))
		if ev.ActorID != "" && ev.ActorID != ev.EmployeeID {
			msg += fmt.Sprintf(" (entered by %s)", ev.ActorID)
		}
		return msg
	case schedule.EventScheduleVoided:
		msg := fmt.Sprintf("%s's %s schedule was voided by %s", displayName(ev), ev.Month, ev.ActorID)
		if ev.Reason != "" {
			msg += ": " + ev.Reason
		}
		return msg
	case schedule.EventWindowClosingSoon:
		return fmt.Sprintf("Leave scheduling for %s closes at %s", ev.Month, ev.ClosesAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s event for %s", ev.Kind, ev.Month)
}

func displayName(ev schedule.Event) string {
	if ev.EmployeeName != "" {
		return ev.EmployeeName
	}
	return ev.EmployeeID
}

func joinDates(dates []schedule.Date) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = string(d)
	}
	return strings.Join(parts, ", ")
}

// =============================================================================
// LOG NOTIFIER
// =============================================================================

// Log writes events to a zap logger. It never fails.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

func (l *Log) Notify(_ context.Context, ev schedule.Event) error {
	l.logger.Info(Format(ev),
		zap.String("event", string(ev.Kind)),
		zap.String("month", string(ev.Month)),
		zap.String("employee_id", ev.EmployeeID),
		zap.String("actor_id", ev.ActorID),
	)
	return nil
}

// =============================================================================
// MULTI NOTIFIER
// =============================================================================

// Multi delivers to every notifier and combines their errors.
type Multi []schedule.Notifier

func (m Multi) Notify(ctx context.Context, ev schedule.Event) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Notify(ctx, ev))
	}
	return err
}
