package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// INSTANCE LEASE
// =============================================================================
//
// The session lock lives in process memory, so two coordinators sharing one
// database would each grant their own session. The lease row makes the
// second process refuse to start while the first keeps renewing it.
//
// Expiry is evaluated on access against the caller's now. A holder that
// stops renewing loses the lease once expires_at passes.

const instanceLeaseName = "coordinator"

// ErrInstanceConflict is returned when another live instance holds the lease.
var ErrInstanceConflict = errors.New("another coordinator instance holds the lease")

// InstanceConflictError names the current holder of the lease.
type InstanceConflictError struct {
	HolderID  string
	ExpiresAt time.Time
}

func (e *InstanceConflictError) Error() string {
	return fmt.Sprintf("%v: instance %s until %s", ErrInstanceConflict, e.HolderID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *InstanceConflictError) Unwrap() error { return ErrInstanceConflict }

// ClaimInstance acquires or renews the lease for instanceID until now+ttl.
// Returns *InstanceConflictError if another instance holds an unexpired lease.
func (s *Store) ClaimInstance(ctx context.Context, instanceID string, ttl time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var holder, expires string
	err = tx.QueryRowContext(ctx,
		"SELECT instance_id, expires_at FROM instance_lease WHERE name = ?",
		instanceLeaseName,
	).Scan(&holder, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read instance lease: %w", err)
	default:
		if exp := parseTime(expires); holder != instanceID && now.Before(exp) {
			return &InstanceConflictError{HolderID: holder, ExpiresAt: exp}
		}
	}

	query := `
		INSERT INTO instance_lease (name, instance_id, acquired_at, renewed_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			acquired_at = CASE
				WHEN instance_lease.instance_id = excluded.instance_id THEN instance_lease.acquired_at
				ELSE excluded.acquired_at
			END,
			instance_id = excluded.instance_id,
			renewed_at = excluded.renewed_at,
			expires_at = excluded.expires_at
	`
	_, err = tx.ExecContext(ctx, query,
		instanceLeaseName,
		instanceID,
		formatTime(now),
		formatTime(now),
		formatTime(now.Add(ttl)),
	)
	if err != nil {
		return fmt.Errorf("failed to write instance lease: %w", err)
	}

	return tx.Commit()
}

// ReleaseInstance drops the lease if instanceID holds it.
func (s *Store) ReleaseInstance(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM instance_lease WHERE name = ? AND instance_id = ?",
		instanceLeaseName, instanceID,
	)
	if err != nil {
		return fmt.Errorf("failed to release instance lease: %w", err)
	}
	return nil
}
