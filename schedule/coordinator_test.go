package schedule_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/schedule"
	"github.com/warp/leave-scheduler/schedule/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// inWindow is a moment inside the September 2025 window (Aug 16 02:00 to Aug 21 02:00).
var inWindow = time.Date(2025, 8, 17, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []schedule.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev schedule.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) kinds() []schedule.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]schedule.EventKind, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	ctx      context.Context
	store    *store.Memory
	notifier *recordingNotifier
	coord    *schedule.Coordinator
}

func newFixture(t *testing.T, mutate ...func(*schedule.Settings)) *fixture {
	t.Helper()
	ctx := context.Background()

	s := ruleSet()
	s.MaxSameStoreLeavePerDay = 2
	s.MaxWeekendLeaveDays = 3
	for _, m := range mutate {
		m(&s)
	}

	st := store.NewMemory()
	require.NoError(t, st.SaveSettings(ctx, s))
	for _, e := range []schedule.Employee{
		{ID: "e1", Name: "Alice", StoreID: "s1", TelegramChatID: "1001"},
		{ID: "e2", Name: "Bob", StoreID: "s1"},
		{ID: "e3", Name: "Carol", StoreID: "s2"},
	} {
		require.NoError(t, st.SaveEmployee(ctx, e))
	}

	n := &recordingNotifier{}
	return &fixture{
		ctx:      ctx,
		store:    st,
		notifier: n,
		coord:    schedule.NewCoordinator(st, n, time.UTC, zap.NewNop()),
	}
}

func (f *fixture) enter(t *testing.T, employeeID string, at time.Time) *schedule.Result {
	t.Helper()
	res, err := f.coord.EnterSession(f.ctx, employeeID, at)
	require.NoError(t, err)
	return res
}

func (f *fixture) submit(t *testing.T, employeeID string, at time.Time, dates ...string) *schedule.Result {
	t.Helper()
	res, err := f.coord.SubmitSchedule(f.ctx, employeeID, "", dates, at)
	require.NoError(t, err)
	return res
}

// =============================================================================
// GATE
// =============================================================================

func TestCoordinator_ClosedWindowRejectsEverything(t *testing.T) {
	f := newFixture(t)
	before := time.Date(2025, 8, 16, 1, 0, 0, 0, time.UTC)
	after := time.Date(2025, 8, 21, 2, 0, 0, 0, time.UTC)

	// Before opening: next open time is reported
	res := f.enter(t, "e1", before)
	assert.Equal(t, schedule.OutcomeSystemClosed, res.Outcome)
	assert.Equal(t, time.Date(2025, 8, 16, 2, 0, 0, 0, time.UTC), res.NextOpen)

	// After closing: no next open time
	res = f.enter(t, "e1", after)
	assert.Equal(t, schedule.OutcomeSystemClosed, res.Outcome)
	assert.True(t, res.NextOpen.IsZero())

	res, err := f.coord.Status(f.ctx, "e1", after)
	require.NoError(t, err)
	assert.Equal(t, schedule.OutcomeSystemClosed, res.Outcome)
	assert.False(t, res.Status.Open)

	res, err = f.coord.SubmitSchedule(f.ctx, "e1", "", []string{"2025-09-01"}, after)
	require.NoError(t, err)
	assert.Equal(t, schedule.OutcomeSystemClosed, res.Outcome)
	assert.ErrorIs(t, res.Err(), schedule.ErrSystemClosed)
}

func TestCoordinator_NoSettingsConfigured(t *testing.T) {
	coord := schedule.NewCoordinator(store.NewMemory(), nil, nil, nil)

	_, err := coord.Status(context.Background(), "e1", inWindow)
	assert.ErrorIs(t, err, schedule.ErrNoSettings)
}

func TestCoordinator_UnknownEmployee(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.EnterSession(f.ctx, "nobody", inWindow)
	assert.ErrorIs(t, err, schedule.ErrEmployeeNotFound)
	assert.True(t, schedule.IsNotFound(err))
}

// =============================================================================
// SESSION
// =============================================================================

func TestCoordinator_ConcurrentEnterGrantsExactlyOneSession(t *testing.T) {
	// GIVEN: two employees racing for the session at the same instant
	f := newFixture(t)

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]*schedule.Result, 2)
	)
	for i, id := range []string{"e1", "e2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			res, err := f.coord.EnterSession(f.ctx, id, inWindow)
			assert.NoError(t, err)
			results[i] = res
		}(i, id)
	}
	close(start)
	wg.Wait()

	// THEN: exactly one wins, the loser sees the winner's name
	var winner, loser *schedule.Result
	for _, r := range results {
		require.NotNil(t, r)
		if r.OK() {
			winner = r
		} else {
			loser = r
		}
	}
	require.NotNil(t, winner, "one caller must win")
	require.NotNil(t, loser, "one caller must lose")
	assert.Equal(t, schedule.OutcomeBusy, loser.Outcome)
	assert.Equal(t, winner.Session.HolderName, loser.Busy.HolderName)
	assert.Equal(t, 600, loser.Busy.RemainingSeconds)
}

func TestCoordinator_SessionExpiresLazily(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())

	// Just before expiry Bob is still blocked
	res := f.enter(t, "e2", inWindow.Add(10*time.Minute-time.Second))
	assert.Equal(t, schedule.OutcomeBusy, res.Outcome)
	assert.Equal(t, 1, res.Busy.RemainingSeconds)

	// At expiry the status shows no holder
	status, err := f.coord.Status(f.ctx, "e2", inWindow.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, status.Status.HolderID)

	// Alice can no longer submit
	res = f.submit(t, "e1", inWindow.Add(10*time.Minute), "2025-09-01")
	assert.Equal(t, schedule.OutcomeSessionNotHeld, res.Outcome)

	// Bob can now enter
	assert.True(t, f.enter(t, "e2", inWindow.Add(10*time.Minute)).OK())
}

func TestCoordinator_ReentryDoesNotExtendSession(t *testing.T) {
	f := newFixture(t)
	first := f.enter(t, "e1", inWindow)
	require.True(t, first.OK())

	again := f.enter(t, "e1", inWindow.Add(4*time.Minute))
	require.True(t, again.OK())
	assert.Equal(t, first.Session.ExpiresAt, again.Session.ExpiresAt)

	// Only the first entry is announced
	assert.Equal(t, []schedule.EventKind{schedule.EventSessionOpened}, f.notifier.kinds())
}

func TestCoordinator_StatusReportsHolder(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())

	res, err := f.coord.Status(f.ctx, "e2", inWindow.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.True(t, res.Status.Open)
	assert.Equal(t, "Alice", res.Status.HolderName)
	assert.Equal(t, 540, res.Status.RemainingSeconds)
	assert.False(t, res.Status.IsHolder)
	assert.False(t, res.Status.AlreadySubmitted)
}

func TestCoordinator_ExitSessionOnlyByHolder(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())

	res, err := f.coord.ExitSession(f.ctx, "e2", inWindow)
	require.NoError(t, err)
	assert.Equal(t, schedule.OutcomeSessionNotHeld, res.Outcome)
	assert.Equal(t, schedule.OutcomeBusy, f.enter(t, "e2", inWindow).Outcome)

	res, err = f.coord.ExitSession(f.ctx, "e1", inWindow.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.True(t, f.enter(t, "e2", inWindow.Add(time.Minute)).OK())
}

func TestCoordinator_AlreadySubmittedCannotEnter(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())
	require.True(t, f.submit(t, "e1", inWindow, "2025-09-01").OK())

	res := f.enter(t, "e1", inWindow.Add(time.Minute))
	assert.Equal(t, schedule.OutcomeAlreadySubmitted, res.Outcome)
	require.NotNil(t, res.Schedule)
	assert.Equal(t, []schedule.Date{"2025-09-01"}, res.Schedule.LeaveDates)
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestCoordinator_SubmitWithoutSession(t *testing.T) {
	f := newFixture(t)

	res := f.submit(t, "e1", inWindow, "2025-09-01")
	assert.Equal(t, schedule.OutcomeSessionNotHeld, res.Outcome)
	assert.ErrorIs(t, res.Err(), schedule.ErrSessionNotHeld)
}

func TestCoordinator_SubmitReleasesSessionAndNotifies(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())

	res := f.submit(t, "e1", inWindow.Add(time.Minute), "2025-09-02", "2025-09-01")
	require.True(t, res.OK())
	assert.Equal(t, []schedule.Date{"2025-09-01", "2025-09-02"}, res.Schedule.LeaveDates)
	assert.Equal(t, "s1", res.Schedule.StoreID, "home store is used when none is given")
	assert.Equal(t, "e1", res.Schedule.SubmittedBy)

	stored, err := f.store.GetSchedule(f.ctx, "e1", "2025-09")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Schedule.ID, stored.ID)

	// Session is free again
	assert.True(t, f.enter(t, "e2", inWindow.Add(time.Minute)).OK())

	kinds := f.notifier.kinds()
	assert.Contains(t, kinds, schedule.EventScheduleSubmitted)
}

func TestCoordinator_QuotaViolationKeepsSession(t *testing.T) {
	// GIVEN: max 8 leave days per person
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())

	// WHEN: 9 days are submitted
	res := f.submit(t, "e1", inWindow,
		"2025-09-01", "2025-09-02", "2025-09-03", "2025-09-04",
		"2025-09-08", "2025-09-09", "2025-09-11", "2025-09-16", "2025-09-17",
	)

	// THEN: nothing is committed and Alice keeps her session
	assert.Equal(t, schedule.OutcomeValidationFailed, res.Outcome)
	require.NotNil(t, res.Validation)
	assert.Equal(t, schedule.ViolationQuota, res.Validation.Violations[0].Code)

	var vErr *schedule.ValidationFailedError
	require.True(t, errors.As(res.Err(), &vErr))
	assert.Len(t, vErr.Violations, 1)

	stored, err := f.store.GetSchedule(f.ctx, "e1", "2025-09")
	require.NoError(t, err)
	assert.Nil(t, stored)

	status, err := f.coord.Status(f.ctx, "e1", inWindow.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, status.Status.IsHolder)

	// Corrected resubmission succeeds
	assert.True(t, f.submit(t, "e1", inWindow.Add(2*time.Minute), "2025-09-01", "2025-09-02").OK())
}

func TestCoordinator_HolidayAllowedForbiddenBlocked(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())

	res := f.submit(t, "e1", inWindow, "2025-09-15")
	assert.Equal(t, schedule.OutcomeValidationFailed, res.Outcome)
	assert.Equal(t, schedule.ViolationForbiddenDay, res.Validation.Violations[0].Code)

	res = f.submit(t, "e1", inWindow, "2025-09-10")
	require.True(t, res.OK())
	require.Len(t, res.Validation.Notices, 1)
	assert.Equal(t, schedule.NoticeHolidayOverlap, res.Validation.Notices[0].Code)
}

func TestCoordinator_PerDayCapRaceAdmitsOne(t *testing.T) {
	// GIVEN: one person may be off per day and two writers both previewed OK
	f := newFixture(t, func(s *schedule.Settings) { s.MaxLeavePeoplePerDay = 1 })
	require.True(t, f.enter(t, "e1", inWindow).OK())

	p1, err := f.coord.Preview(f.ctx, "e1", "", []string{"2025-09-20"}, inWindow)
	require.NoError(t, err)
	require.True(t, p1.OK())
	p3, err := f.coord.Preview(f.ctx, "e3", "", []string{"2025-09-20"}, inWindow)
	require.NoError(t, err)
	require.True(t, p3.OK())

	// WHEN: the session holder and an admin commit the same day concurrently
	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		result [2]*schedule.Result
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		res, err := f.coord.SubmitSchedule(f.ctx, "e1", "", []string{"2025-09-20"}, inWindow)
		assert.NoError(t, err)
		result[0] = res
	}()
	go func() {
		defer wg.Done()
		<-start
		res, err := f.coord.AdminSubmit(f.ctx, "admin", "e3", "", []string{"2025-09-20"}, inWindow)
		assert.NoError(t, err)
		result[1] = res
	}()
	close(start)
	wg.Wait()

	// THEN: exactly one commits, the other fails the daily cap
	ok, failed := 0, 0
	for _, r := range result {
		require.NotNil(t, r)
		switch r.Outcome {
		case schedule.OutcomeOK:
			ok++
		case schedule.OutcomeValidationFailed:
			failed++
			assert.Equal(t, schedule.ViolationDailyCap, r.Validation.Violations[0].Code)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)

	all, err := f.store.ListSchedules(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCoordinator_StorageFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())

	// GIVEN: the store is down
	f.store.FailWrites = errors.New("disk full")

	// WHEN: Alice submits
	_, err := f.coord.SubmitSchedule(f.ctx, "e1", "", []string{"2025-09-01"}, inWindow)

	// THEN: a retryable storage error, nothing stored, session intact
	require.Error(t, err)
	assert.True(t, schedule.IsRetryable(err))
	assert.ErrorIs(t, err, schedule.ErrStorageUnavailable)

	status, serr := f.coord.Status(f.ctx, "e1", inWindow)
	require.NoError(t, serr)
	assert.True(t, status.Status.IsHolder)
	assert.False(t, status.Status.AlreadySubmitted)

	// Retry after recovery succeeds
	f.store.FailWrites = nil
	assert.True(t, f.submit(t, "e1", inWindow.Add(time.Minute), "2025-09-01").OK())
}

func TestCoordinator_NotifierFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("telegram down")

	require.True(t, f.enter(t, "e1", inWindow).OK())
	assert.True(t, f.submit(t, "e1", inWindow, "2025-09-01").OK())
}

// =============================================================================
// OVERWRITE / VOID
// =============================================================================

func TestCoordinator_AdminSubmitOverwritesExistingRecord(t *testing.T) {
	// GIVEN: Alice submitted dates A
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())
	first := f.submit(t, "e1", inWindow, "2025-09-01", "2025-09-02")
	require.True(t, first.OK())

	// WHEN: an admin submits dates B for her
	res, err := f.coord.AdminSubmit(f.ctx, "admin", "e1", "", []string{"2025-09-03"}, inWindow.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, res.OK())

	// THEN: B replaces A under the same record
	stored, err := f.store.GetSchedule(f.ctx, "e1", "2025-09")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.Schedule.ID, stored.ID)
	assert.Equal(t, []schedule.Date{"2025-09-03"}, stored.LeaveDates)
	assert.Equal(t, "admin", stored.SubmittedBy)

	all, err := f.store.ListSchedules(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCoordinator_AdminSubmitBypassesGate(t *testing.T) {
	f := newFixture(t)
	afterClose := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)

	res, err := f.coord.AdminSubmit(f.ctx, "admin", "e2", "", []string{"2025-09-01"}, afterClose)
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestCoordinator_VoidThenResubmit(t *testing.T) {
	// GIVEN: Alice submitted A
	f := newFixture(t)
	require.True(t, f.enter(t, "e1", inWindow).OK())
	first := f.submit(t, "e1", inWindow, "2025-09-01")
	require.True(t, first.OK())

	// WHEN: an admin voids it and Alice goes through a new session with B
	voided, err := f.coord.VoidSchedule(f.ctx, "admin", "e1", "2025-09", "wrong dates", inWindow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusVoided, voided.Status)
	assert.Equal(t, "wrong dates", voided.VoidReason)

	require.True(t, f.enter(t, "e1", inWindow.Add(2*time.Minute)).OK())
	second := f.submit(t, "e1", inWindow.Add(3*time.Minute), "2025-09-02")
	require.True(t, second.OK())

	// THEN: B is the active record, A is kept for audit
	stored, err := f.store.GetSchedule(f.ctx, "e1", "2025-09")
	require.NoError(t, err)
	assert.Equal(t, []schedule.Date{"2025-09-02"}, stored.LeaveDates)
	assert.NotEqual(t, first.Schedule.ID, stored.ID)

	all, err := f.coord.ListSchedules(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Contains(t, f.notifier.kinds(), schedule.EventScheduleVoided)

	// The void notice reaches Alice's own chat
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	var voidChats []string
	for _, ev := range f.notifier.events {
		if ev.Kind == schedule.EventScheduleVoided {
			voidChats = append(voidChats, ev.ChatID)
		}
	}
	assert.Equal(t, []string{"1001"}, voidChats)
}

func TestCoordinator_VoidFreesDailyCap(t *testing.T) {
	f := newFixture(t, func(s *schedule.Settings) { s.MaxLeavePeoplePerDay = 1 })
	res, err := f.coord.AdminSubmit(f.ctx, "admin", "e2", "", []string{"2025-09-22"}, inWindow)
	require.NoError(t, err)
	require.True(t, res.OK())

	res, err = f.coord.AdminSubmit(f.ctx, "admin", "e3", "", []string{"2025-09-22"}, inWindow)
	require.NoError(t, err)
	require.Equal(t, schedule.OutcomeValidationFailed, res.Outcome)

	_, err = f.coord.VoidSchedule(f.ctx, "admin", "e2", "2025-09", "", inWindow)
	require.NoError(t, err)

	res, err = f.coord.AdminSubmit(f.ctx, "admin", "e3", "", []string{"2025-09-22"}, inWindow)
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestCoordinator_VoidMissingSchedule(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.VoidSchedule(f.ctx, "admin", "e1", "2025-09", "", inWindow)
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}

// =============================================================================
// CLOSING SOON
// =============================================================================

func TestCoordinator_AnnounceClosingSoonOncePerMonth(t *testing.T) {
	f := newFixture(t)
	closes := time.Date(2025, 8, 21, 2, 0, 0, 0, time.UTC)

	emitted, err := f.coord.AnnounceClosingSoon(f.ctx, closes.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.False(t, emitted, "outside lead time")

	emitted, err = f.coord.AnnounceClosingSoon(f.ctx, closes.Add(-30*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.True(t, emitted)

	emitted, err = f.coord.AnnounceClosingSoon(f.ctx, closes.Add(-10*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, emitted, "already announced")

	assert.Equal(t, []schedule.EventKind{schedule.EventWindowClosingSoon}, f.notifier.kinds())
}

func TestCoordinator_ClosingSoonRetriedAfterRejectedNotify(t *testing.T) {
	// GIVEN: the notifier rejects the first closing-soon event
	f := newFixture(t)
	closes := time.Date(2025, 8, 21, 2, 0, 0, 0, time.UTC)
	f.notifier.mu.Lock()
	f.notifier.err = errors.New("notification queue full")
	f.notifier.mu.Unlock()

	emitted, err := f.coord.AnnounceClosingSoon(f.ctx, closes.Add(-30*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, emitted, "rejected notice is not counted")

	// WHEN: the notifier recovers
	f.notifier.mu.Lock()
	f.notifier.err = nil
	f.notifier.mu.Unlock()

	emitted, err = f.coord.AnnounceClosingSoon(f.ctx, closes.Add(-20*time.Minute), time.Hour)
	require.NoError(t, err)

	// THEN: the notice goes out, once
	assert.True(t, emitted)
	emitted, err = f.coord.AnnounceClosingSoon(f.ctx, closes.Add(-10*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Len(t, f.notifier.kinds(), 2, "one rejected attempt and one delivered")
}
