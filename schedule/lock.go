package schedule

import (
	"sync"
	"time"
)

// =============================================================================
// SESSION LOCK MANAGER
// =============================================================================
//
// State machine: NoSession -> Active(holder, expiresAt) -> NoSession.
//
// Expiry is evaluated lazily: every read first checks the current session
// against the caller-supplied now and evicts it when expired. There is no
// background sweep.

// LockManager grants at most one active editing session at a time.
// Each Coordinator owns its own LockManager.
type LockManager struct {
	mu      sync.Mutex
	current *Session
}

func NewLockManager() *LockManager {
	return &LockManager{}
}

// IsExpired reports whether the session is over at now.
func IsExpired(s Session, now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TryAcquire grants the session to holderID.
//
// Returns a *BusyError when another employee holds an unexpired session.
// When the same holder retries, the existing session is returned unchanged
// (expiresAt is not refreshed) and fresh is false.
func (lm *LockManager) TryAcquire(holderID, holderName string, month Month, now time.Time, ttl time.Duration) (s Session, fresh bool, err error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.evictLocked(now)

	if cur := lm.current; cur != nil && cur.Month == month {
		if cur.HolderID == holderID {
			return *cur, false, nil
		}
		return Session{}, false, &BusyError{
			HolderID:         cur.HolderID,
			HolderName:       cur.HolderName,
			RemainingSeconds: cur.RemainingSeconds(now),
		}
	}

	// A live session for a superseded month does not block the new month.
	lm.current = &Session{
		HolderID:   holderID,
		HolderName: holderName,
		Month:      month,
		StartedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	return *lm.current, true, nil
}

// Release clears the session if holderID holds it. No-op otherwise.
func (lm *LockManager) Release(holderID string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.current == nil || lm.current.HolderID != holderID {
		return false
	}
	lm.current = nil
	return true
}

// Current returns the live session, if any.
func (lm *LockManager) Current(now time.Time) (Session, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.evictLocked(now)
	if lm.current == nil {
		return Session{}, false
	}
	return *lm.current, true
}

// Holds returns the session when holderID owns a live session for month.
func (lm *LockManager) Holds(holderID string, month Month, now time.Time) (Session, bool) {
	s, ok := lm.Current(now)
	if !ok || s.HolderID != holderID || s.Month != month {
		return Session{}, false
	}
	return s, true
}

func (lm *LockManager) evictLocked(now time.Time) {
	if lm.current != nil && IsExpired(*lm.current, now) {
		lm.current = nil
	}
}
