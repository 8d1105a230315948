/*
coordinator.go - Orchestrates gate -> lock -> validator -> commit

PURPOSE:
  The Coordinator is the single entry point for scheduling operations.
  It owns the session lock and the commit mutex; storage and notification
  are collaborators.

OPERATIONS:
  Status:         Gate + lock state + whether the employee already submitted
  EnterSession:   Acquire the exclusive editing session
  SubmitSchedule: Validate and commit while holding the session
  ExitSession:    Voluntary early release
  Preview:        Validate without committing (UI pre-check)
  AdminSubmit:    Admin-assisted commit, bypasses gate and session
  VoidSchedule:   Mark a submitted record voided (frees quota)

OUTCOMES:
  Expected business conditions come back as a Result with an Outcome,
  never as a Go error. Go errors are reserved for storage failures
  (wrapping ErrStorageUnavailable), missing settings and unknown employees.

COMMIT SERIALIZATION:
  Every writer takes commitMu around "read all schedules, validate, write".
  Per-day caps are computed over all employees, so the admin path must be
  serialized with the session path, not just with other session holders.
  The session check is repeated inside the critical section.

STORAGE FAILURE:
  If the write fails the session is left untouched, so the holder can
  retry within the remaining TTL.

SEE ALSO:
  - lock.go: Session state machine
  - validator.go: Rule checks
  - api/handlers.go: HTTP mapping of outcomes
*/
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// RESULTS
// =============================================================================

type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeSystemClosed     Outcome = "system_closed"
	OutcomeBusy             Outcome = "busy"
	OutcomeAlreadySubmitted Outcome = "already_submitted"
	OutcomeSessionNotHeld   Outcome = "session_not_held"
	OutcomeValidationFailed Outcome = "validation_failed"
)

// Status is the caller's view of the scheduling window.
type Status struct {
	Open             bool
	Month            Month
	OpensAt          time.Time
	ClosesAt         time.Time
	HolderID         string
	HolderName       string
	RemainingSeconds int
	IsHolder         bool
	AlreadySubmitted bool
}

// Result is returned by every coordinator operation.
type Result struct {
	Outcome    Outcome
	Status     *Status
	Session    *Session
	Validation *ValidationResult
	Schedule   *EmployeeSchedule
	Busy       *BusyError
	NextOpen   time.Time
}

func (r *Result) OK() bool { return r.Outcome == OutcomeOK }

// Err converts a non-OK outcome into its sentinel or structured error.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeOK:
		return nil
	case OutcomeSystemClosed:
		return &SystemClosedError{NextOpen: r.NextOpen}
	case OutcomeBusy:
		if r.Busy != nil {
			return r.Busy
		}
		return ErrBusy
	case OutcomeAlreadySubmitted:
		return ErrAlreadySubmitted
	case OutcomeSessionNotHeld:
		return ErrSessionNotHeld
	case OutcomeValidationFailed:
		var violations []Violation
		if r.Validation != nil {
			violations = r.Validation.Violations
		}
		return &ValidationFailedError{Violations: violations}
	}
	return fmt.Errorf("unknown outcome %q", r.Outcome)
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	store    Store
	notifier Notifier
	loc      *time.Location
	logger   *zap.Logger

	lock     *LockManager
	commitMu sync.Mutex

	announceMu sync.Mutex
	announced  map[Month]bool

	newID func() string
}

// NewCoordinator creates a coordinator with its own session lock.
// notifier may be nil. loc is the time zone of the settings' open/close times.
func NewCoordinator(store Store, notifier Notifier, loc *time.Location, logger *zap.Logger) *Coordinator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		notifier:  notifier,
		loc:       loc,
		logger:    logger.Named("coordinator"),
		lock:      NewLockManager(),
		announced: make(map[Month]bool),
		newID:     uuid.NewString,
	}
}

// Location returns the time zone the gate is evaluated in.
func (c *Coordinator) Location() *time.Location { return c.loc }

// window is the active month's settings plus the gate evaluation at now.
type window struct {
	settings Settings
	open     bool
	opensAt  time.Time
	closesAt time.Time
}

func (c *Coordinator) window(ctx context.Context, now time.Time) (*window, error) {
	s, err := c.store.LatestSettings(ctx)
	if err != nil {
		return nil, storageError("load settings", err)
	}
	if s == nil {
		return nil, ErrNoSettings
	}
	w := &window{settings: *s, open: IsOpen(now, *s, c.loc)}
	w.opensAt, _ = OpensAt(*s, c.loc)
	w.closesAt, _ = ClosesAt(*s, c.loc)
	return w, nil
}

func (w *window) closed(now time.Time) *Result {
	r := &Result{
		Outcome: OutcomeSystemClosed,
		Status: &Status{
			Open:     false,
			Month:    w.settings.Month,
			OpensAt:  w.opensAt,
			ClosesAt: w.closesAt,
		},
	}
	if now.Before(w.opensAt) {
		r.NextOpen = w.opensAt
	}
	return r
}

func (c *Coordinator) employee(ctx context.Context, id string) (*Employee, error) {
	emp, err := c.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, storageError("load employee", err)
	}
	if emp == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, id)
	}
	return emp, nil
}

// =============================================================================
// STATUS
// =============================================================================

// Status reports whether the window is open, who holds the session and
// whether employeeID already submitted for the month.
func (c *Coordinator) Status(ctx context.Context, employeeID string, now time.Time) (*Result, error) {
	w, err := c.window(ctx, now)
	if err != nil {
		return nil, err
	}
	if !w.open {
		return w.closed(now), nil
	}

	existing, err := c.store.GetSchedule(ctx, employeeID, w.settings.Month)
	if err != nil {
		return nil, storageError("load schedule", err)
	}

	st := &Status{
		Open:             true,
		Month:            w.settings.Month,
		OpensAt:          w.opensAt,
		ClosesAt:         w.closesAt,
		AlreadySubmitted: existing != nil,
	}
	if sess, ok := c.lock.Current(now); ok && sess.Month == w.settings.Month {
		st.HolderID = sess.HolderID
		st.HolderName = sess.HolderName
		st.RemainingSeconds = sess.RemainingSeconds(now)
		st.IsHolder = sess.HolderID == employeeID
	}
	return &Result{Outcome: OutcomeOK, Status: st}, nil
}

// =============================================================================
// ENTER / EXIT SESSION
// =============================================================================

// EnterSession acquires the editing session for employeeID.
// Re-entry by the current holder returns the original session unchanged.
func (c *Coordinator) EnterSession(ctx context.Context, employeeID string, now time.Time) (*Result, error) {
	w, err := c.window(ctx, now)
	if err != nil {
		return nil, err
	}
	if !w.open {
		return w.closed(now), nil
	}

	emp, err := c.employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	// One submission per employee per month, enforced before the lock.
	existing, err := c.store.GetSchedule(ctx, emp.ID, w.settings.Month)
	if err != nil {
		return nil, storageError("load schedule", err)
	}
	if existing != nil {
		return &Result{Outcome: OutcomeAlreadySubmitted, Schedule: existing}, nil
	}

	sess, fresh, err := c.lock.TryAcquire(emp.ID, emp.Name, w.settings.Month, now, w.settings.SessionTTL())
	var busy *BusyError
	if errors.As(err, &busy) {
		c.logger.Debug("session busy",
			zap.String("employee_id", emp.ID),
			zap.String("holder_id", busy.HolderID),
			zap.Int("remaining_seconds", busy.RemainingSeconds),
		)
		return &Result{Outcome: OutcomeBusy, Busy: busy}, nil
	}
	if err != nil {
		return nil, err
	}

	if fresh {
		c.logger.Info("session opened",
			zap.String("employee_id", emp.ID),
			zap.String("month", string(sess.Month)),
			zap.Time("expires_at", sess.ExpiresAt),
		)
		c.emit(ctx, Event{
			Kind:         EventSessionOpened,
			Month:        sess.Month,
			At:           now,
			EmployeeID:   emp.ID,
			EmployeeName: emp.Name,
			StoreID:      emp.StoreID,
			ChatID:       emp.TelegramChatID,
			ActorID:      emp.ID,
			ExpiresAt:    sess.ExpiresAt,
		})
	}
	return &Result{Outcome: OutcomeOK, Session: &sess}, nil
}

// ExitSession releases the session if employeeID holds it.
// Allowed while the window is closed; releasing is never harmful.
func (c *Coordinator) ExitSession(ctx context.Context, employeeID string, now time.Time) (*Result, error) {
	sess, ok := c.lock.Current(now)
	if !ok || sess.HolderID != employeeID {
		return &Result{Outcome: OutcomeSessionNotHeld}, nil
	}
	c.lock.Release(employeeID)

	c.logger.Info("session exited",
		zap.String("employee_id", employeeID),
		zap.Int("remaining_seconds", sess.RemainingSeconds(now)),
	)
	return &Result{Outcome: OutcomeOK, Session: &sess}, nil
}

// =============================================================================
// SUBMIT / PREVIEW
// =============================================================================

// SubmitSchedule validates and commits leave dates for the session holder.
// On validation failure the session is kept so the employee can correct
// and resubmit within the remaining TTL. An empty storeID falls back to the
// employee's home store.
func (c *Coordinator) SubmitSchedule(ctx context.Context, employeeID, storeID string, dates []string, now time.Time) (*Result, error) {
	w, err := c.window(ctx, now)
	if err != nil {
		return nil, err
	}
	if !w.open {
		return w.closed(now), nil
	}
	if _, ok := c.lock.Holds(employeeID, w.settings.Month, now); !ok {
		return &Result{Outcome: OutcomeSessionNotHeld}, nil
	}

	emp, err := c.employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	return c.commit(ctx, commitRequest{
		settings:   w.settings,
		employee:   *emp,
		storeID:    storeID,
		dates:      dates,
		actorID:    emp.ID,
		viaSession: true,
		now:        now,
	})
}

// Preview validates dates against the current snapshot without committing.
// Its result is advisory; SubmitSchedule re-validates at commit time.
func (c *Coordinator) Preview(ctx context.Context, employeeID, storeID string, dates []string, now time.Time) (*Result, error) {
	w, err := c.window(ctx, now)
	if err != nil {
		return nil, err
	}
	if !w.open {
		return w.closed(now), nil
	}

	emp, err := c.employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if storeID == "" {
		storeID = emp.StoreID
	}

	snapshot, err := c.store.ListSchedules(ctx, w.settings.Month)
	if err != nil {
		return nil, storageError("load schedules", err)
	}

	v := Validate(LeaveRequest{EmployeeID: emp.ID, StoreID: storeID, Dates: dates}, w.settings, snapshot)
	outcome := OutcomeOK
	if !v.OK {
		outcome = OutcomeValidationFailed
	}
	return &Result{Outcome: outcome, Validation: &v}, nil
}

// AdminSubmit commits a schedule on behalf of an employee. It bypasses the
// gate and the session but shares the serialized validate+commit unit.
func (c *Coordinator) AdminSubmit(ctx context.Context, adminID, employeeID, storeID string, dates []string, now time.Time) (*Result, error) {
	w, err := c.window(ctx, now)
	if err != nil {
		return nil, err
	}
	emp, err := c.employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return c.commit(ctx, commitRequest{
		settings: w.settings,
		employee: *emp,
		storeID:  storeID,
		dates:    dates,
		actorID:  adminID,
		now:      now,
	})
}

type commitRequest struct {
	settings   Settings
	employee   Employee
	storeID    string
	dates      []string
	actorID    string
	viaSession bool
	now        time.Time
}

// commit is the serialized validate+commit unit shared by every writer.
func (c *Coordinator) commit(ctx context.Context, req commitRequest) (*Result, error) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	month := req.settings.Month
	emp := req.employee

	if req.viaSession {
		if _, ok := c.lock.Holds(emp.ID, month, req.now); !ok {
			return &Result{Outcome: OutcomeSessionNotHeld}, nil
		}
	}

	storeID := req.storeID
	if storeID == "" {
		storeID = emp.StoreID
	}

	// Re-read under the mutex: a preview or an earlier check may be stale.
	snapshot, err := c.store.ListSchedules(ctx, month)
	if err != nil {
		return nil, storageError("load schedules", err)
	}

	v := Validate(LeaveRequest{EmployeeID: emp.ID, StoreID: storeID, Dates: req.dates}, req.settings, snapshot)
	if !v.OK {
		c.logger.Info("schedule rejected",
			zap.String("employee_id", emp.ID),
			zap.String("month", string(month)),
			zap.Int("violations", len(v.Violations)),
		)
		return &Result{Outcome: OutcomeValidationFailed, Validation: &v}, nil
	}

	record := EmployeeSchedule{
		ID:           c.newID(),
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		StoreID:      storeID,
		Month:        month,
		LeaveDates:   v.Dates,
		Status:       StatusSubmitted,
		SubmittedAt:  req.now,
		SubmittedBy:  req.actorID,
	}
	for _, s := range snapshot {
		if s.IsActive() && s.EmployeeID == emp.ID {
			record.ID = s.ID // overwrite the earlier submission
			break
		}
	}

	if err := c.store.SaveSchedule(ctx, record); err != nil {
		c.logger.Error("schedule write failed",
			zap.String("employee_id", emp.ID),
			zap.String("month", string(month)),
			zap.Error(err),
		)
		return nil, storageError("save schedule", err)
	}

	if req.viaSession && !c.lock.Release(emp.ID) {
		c.logger.Error("session lost between validation and release",
			zap.String("employee_id", emp.ID),
			zap.String("month", string(month)),
		)
	}

	c.logger.Info("schedule submitted",
		zap.String("employee_id", emp.ID),
		zap.String("store_id", storeID),
		zap.String("month", string(month)),
		zap.Int("days", len(record.LeaveDates)),
		zap.String("actor_id", req.actorID),
	)
	c.emit(ctx, Event{
		Kind:         EventScheduleSubmitted,
		Month:        month,
		At:           req.now,
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		StoreID:      storeID,
		ChatID:       emp.TelegramChatID,
		ActorID:      req.actorID,
		Dates:        record.LeaveDates,
	})

	return &Result{Outcome: OutcomeOK, Schedule: &record, Validation: &v}, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// VoidSchedule marks the employee's submitted record for month as voided.
// The record is kept for audit and no longer counts toward any cap.
func (c *Coordinator) VoidSchedule(ctx context.Context, adminID, employeeID string, month Month, reason string, now time.Time) (*EmployeeSchedule, error) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	rec, err := c.store.GetSchedule(ctx, employeeID, month)
	if err != nil {
		return nil, storageError("load schedule", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrScheduleNotFound, employeeID, month)
	}

	voidedAt := now
	rec.Status = StatusVoided
	rec.VoidedAt = &voidedAt
	rec.VoidedBy = adminID
	rec.VoidReason = reason

	if err := c.store.SaveSchedule(ctx, *rec); err != nil {
		return nil, storageError("save schedule", err)
	}

	c.logger.Info("schedule voided",
		zap.String("employee_id", employeeID),
		zap.String("month", string(month)),
		zap.String("actor_id", adminID),
	)

	// The record is already voided; a failed lookup only loses the direct notice.
	var chatID string
	if emp, err := c.store.GetEmployee(ctx, rec.EmployeeID); err != nil {
		c.logger.Warn("void notice without employee chat",
			zap.String("employee_id", rec.EmployeeID),
			zap.Error(err),
		)
	} else if emp != nil {
		chatID = emp.TelegramChatID
	}

	c.emit(ctx, Event{
		Kind:         EventScheduleVoided,
		Month:        month,
		At:           now,
		EmployeeID:   rec.EmployeeID,
		EmployeeName: rec.EmployeeName,
		StoreID:      rec.StoreID,
		ChatID:       chatID,
		ActorID:      adminID,
		Dates:        rec.LeaveDates,
		Reason:       reason,
	})
	return rec, nil
}

// ListSchedules returns every record of month, voided ones included.
func (c *Coordinator) ListSchedules(ctx context.Context, month Month) ([]EmployeeSchedule, error) {
	records, err := c.store.ListSchedules(ctx, month)
	if err != nil {
		return nil, storageError("load schedules", err)
	}
	return records, nil
}

// =============================================================================
// WINDOW CLOSING NOTICE
// =============================================================================

// AnnounceClosingSoon emits one window_closing_soon event per month once the
// open window is within lead of closing. Returns true when the notifier
// accepted the event; a rejected event is offered again on the next call.
func (c *Coordinator) AnnounceClosingSoon(ctx context.Context, now time.Time, lead time.Duration) (bool, error) {
	w, err := c.window(ctx, now)
	if errors.Is(err, ErrNoSettings) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !w.open || w.closesAt.Sub(now) > lead {
		return false, nil
	}

	c.announceMu.Lock()
	if c.announced[w.settings.Month] {
		c.announceMu.Unlock()
		return false, nil
	}
	c.announced[w.settings.Month] = true
	c.announceMu.Unlock()

	err = c.emit(ctx, Event{
		Kind:     EventWindowClosingSoon,
		Month:    w.settings.Month,
		At:       now,
		ClosesAt: w.closesAt,
	})
	if err != nil {
		// Not handed off: the next check tries again.
		c.announceMu.Lock()
		delete(c.announced, w.settings.Month)
		c.announceMu.Unlock()
		return false, nil
	}

	c.logger.Info("window closing soon",
		zap.String("month", string(w.settings.Month)),
		zap.Time("closes_at", w.closesAt),
	)
	return true, nil
}

// emit hands ev to the notifier. Failures are logged and returned; callers
// other than the closing-soon notice ignore them.
func (c *Coordinator) emit(ctx context.Context, ev Event) error {
	if c.notifier == nil {
		return nil
	}
	err := c.notifier.Notify(context.WithoutCancel(ctx), ev)
	if err != nil {
		c.logger.Warn("notification failed",
			zap.String("event", string(ev.Kind)),
			zap.String("employee_id", ev.EmployeeID),
			zap.Error(err),
		)
	}
	return err
}
