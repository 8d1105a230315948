/*
Package sqlite provides a SQLite-backed implementation of schedule.Store.

PURPOSE:
  Persists the month rule sets, the submitted/voided leave schedules, the
  employee directory and the single-instance lease. The coordinator
  serializes its own writers; this package only has to be durable and
  enforce the one-submitted-record-per-month constraint.

KEY TABLES:
  employees:          Directory entries (name, home store, chat id)
  schedule_settings:  One rule set per target month (calendars as JSON)
  employee_schedules: Leave reservations, voided rows kept for audit
  instance_lease:     Which process currently owns the session lock

INDEXES:
  - idx_unique_submitted_schedule: (employee_id, month) WHERE status='submitted'.
    A violating write surfaces as schedule.ErrDuplicateSubmission.
  - idx_employee_schedules_month: Month listing (hot path of every commit)

MIGRATIONS:
  Versioned goose migrations are embedded under migrations/ and applied by
  New(). The current version is available via SchemaVersion.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to
  one connection, since every new connection would open an empty database.

WAL MODE:
  File databases are opened with WAL so readers do not block the writer.

USAGE:
  store, err := sqlite.New(ctx, "./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  coord := schedule.NewCoordinator(store, notifier, loc, logger)

SEE ALSO:
  - schedule/store.go: Interface definitions
  - schedule/store/memory.go: In-memory implementation for testing
  - lease.go: Single-instance lease
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/leave-scheduler/schedule"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeLayout = time.RFC3339Nano

// Store implements schedule.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ schedule.Store = (*Store)(nil)

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

const settingsColumns = `
	month, max_leave_days_per_person, max_leave_people_per_day,
	max_weekend_leave_days, max_same_store_leave_per_day, operation_time_limit_minutes,
	system_open_date, system_open_time, system_close_date, system_close_time,
	holidays_json, forbidden_json, updated_at, updated_by`

// SaveSettings creates or supersedes the rule set of a month.
func (s *Store) SaveSettings(ctx context.Context, st schedule.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holidays, err := json.Marshal(nonNilDateMap(st.StoreHolidays))
	if err != nil {
		return fmt.Errorf("failed to marshal holidays: %w", err)
	}
	forbidden, err := json.Marshal(nonNilDateMap(st.StoreForbiddenDays))
	if err != nil {
		return fmt.Errorf("failed to marshal forbidden days: %w", err)
	}
	updatedAt := st.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO schedule_settings (` + settingsColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(month) DO UPDATE SET
			max_leave_days_per_person = excluded.max_leave_days_per_person,
			max_leave_people_per_day = excluded.max_leave_people_per_day,
			max_weekend_leave_days = excluded.max_weekend_leave_days,
			max_same_store_leave_per_day = excluded.max_same_store_leave_per_day,
			operation_time_limit_minutes = excluded.operation_time_limit_minutes,
			system_open_date = excluded.system_open_date,
			system_open_time = excluded.system_open_time,
			system_close_date = excluded.system_close_date,
			system_close_time = excluded.system_close_time,
			holidays_json = excluded.holidays_json,
			forbidden_json = excluded.forbidden_json,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`

	_, err = s.db.ExecContext(ctx, query,
		st.Month,
		st.MaxLeaveDaysPerPerson,
		st.MaxLeavePeoplePerDay,
		st.MaxWeekendLeaveDays,
		st.MaxSameStoreLeavePerDay,
		st.OperationTimeLimitMinutes,
		st.SystemOpenDate,
		st.SystemOpenTime,
		st.SystemCloseDate,
		st.SystemCloseTime,
		string(holidays),
		string(forbidden),
		formatTime(updatedAt),
		st.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetSettings returns the rule set of a month, or nil.
func (s *Store) GetSettings(ctx context.Context, month schedule.Month) (*schedule.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+settingsColumns+" FROM schedule_settings WHERE month = ?", month)
	st, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// LatestSettings returns the rule set with the greatest month, or nil.
func (s *Store) LatestSettings(ctx context.Context) (*schedule.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+settingsColumns+" FROM schedule_settings ORDER BY month DESC LIMIT 1")
	st, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListSettings returns every configured month, newest first.
func (s *Store) ListSettings(ctx context.Context) ([]schedule.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+settingsColumns+" FROM schedule_settings ORDER BY month DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Settings
	for rows.Next() {
		st, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSettings(row scanner) (*schedule.Settings, error) {
	var (
		st                  schedule.Settings
		holidays, forbidden string
		updatedAt           string
	)
	err := row.Scan(
		&st.Month,
		&st.MaxLeaveDaysPerPerson,
		&st.MaxLeavePeoplePerDay,
		&st.MaxWeekendLeaveDays,
		&st.MaxSameStoreLeavePerDay,
		&st.OperationTimeLimitMinutes,
		&st.SystemOpenDate,
		&st.SystemOpenTime,
		&st.SystemCloseDate,
		&st.SystemCloseTime,
		&holidays,
		&forbidden,
		&updatedAt,
		&st.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(holidays), &st.StoreHolidays); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holidays for %s: %w", st.Month, err)
	}
	if err := json.Unmarshal([]byte(forbidden), &st.StoreForbiddenDays); err != nil {
		return nil, fmt.Errorf("failed to unmarshal forbidden days for %s: %w", st.Month, err)
	}
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

const scheduleColumns = `
	id, employee_id, employee_name, store_id, month, leave_dates_json, status,
	submitted_at, submitted_by, voided_at, voided_by, void_reason`

// SaveSchedule upserts a record by ID. A write that would leave two
// submitted records for one employee and month returns
// schedule.ErrDuplicateSubmission.
func (s *Store) SaveSchedule(ctx context.Context, rec schedule.EmployeeSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := rec.LeaveDates
	if dates == nil {
		dates = []schedule.Date{}
	}
	datesJSON, err := json.Marshal(dates)
	if err != nil {
		return fmt.Errorf("failed to marshal leave dates: %w", err)
	}

	var voidedAt sql.NullString
	if rec.VoidedAt != nil {
		voidedAt = sql.NullString{String: formatTime(*rec.VoidedAt), Valid: true}
	}

	query := `
		INSERT INTO employee_schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_name = excluded.employee_name,
			store_id = excluded.store_id,
			leave_dates_json = excluded.leave_dates_json,
			status = excluded.status,
			submitted_at = excluded.submitted_at,
			submitted_by = excluded.submitted_by,
			voided_at = excluded.voided_at,
			voided_by = excluded.voided_by,
			void_reason = excluded.void_reason
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.EmployeeID,
		rec.EmployeeName,
		rec.StoreID,
		rec.Month,
		string(datesJSON),
		rec.Status,
		formatTime(rec.SubmittedAt),
		rec.SubmittedBy,
		voidedAt,
		rec.VoidedBy,
		rec.VoidReason,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return schedule.ErrDuplicateSubmission
		}
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// GetSchedule returns the submitted record of an employee for month, or nil.
func (s *Store) GetSchedule(ctx context.Context, employeeID string, month schedule.Month) (*schedule.EmployeeSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+scheduleColumns+" FROM employee_schedules WHERE employee_id = ? AND month = ? AND status = ?",
		employeeID, month, schedule.StatusSubmitted,
	)
	rec, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSchedules returns every record of month, voided ones included,
// in submission order.
func (s *Store) ListSchedules(ctx context.Context, month schedule.Month) ([]schedule.EmployeeSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+scheduleColumns+" FROM employee_schedules WHERE month = ? ORDER BY submitted_at ASC, id ASC",
		month,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.EmployeeSchedule
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanSchedule(row scanner) (*schedule.EmployeeSchedule, error) {
	var (
		rec         schedule.EmployeeSchedule
		datesJSON   string
		submittedAt string
		voidedAt    sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&rec.EmployeeID,
		&rec.EmployeeName,
		&rec.StoreID,
		&rec.Month,
		&datesJSON,
		&rec.Status,
		&submittedAt,
		&rec.SubmittedBy,
		&voidedAt,
		&rec.VoidedBy,
		&rec.VoidReason,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(datesJSON), &rec.LeaveDates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal leave dates of %s: %w", rec.ID, err)
	}
	rec.SubmittedAt = parseTime(submittedAt)
	if voidedAt.Valid {
		t := parseTime(voidedAt.String)
		rec.VoidedAt = &t
	}
	return &rec, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// SaveEmployee creates or updates a directory entry.
func (s *Store) SaveEmployee(ctx context.Context, emp schedule.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := emp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO employees (id, name, store_id, telegram_chat_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			store_id = excluded.store_id,
			telegram_chat_id = excluded.telegram_chat_id
	`

	_, err := s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.StoreID, emp.TelegramChatID,
		formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID, or nil.
func (s *Store) GetEmployee(ctx context.Context, id string) (*schedule.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emp schedule.Employee
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, store_id, telegram_chat_id, created_at FROM employees WHERE id = ?",
		id,
	).Scan(&emp.ID, &emp.Name, &emp.StoreID, &emp.TelegramChatID, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	emp.CreatedAt = parseTime(createdAt)
	return &emp, nil
}

// ListEmployees returns all employees ordered by name.
func (s *Store) ListEmployees(ctx context.Context) ([]schedule.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, store_id, telegram_chat_id, created_at FROM employees ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []schedule.Employee
	for rows.Next() {
		var emp schedule.Employee
		var createdAt string
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.StoreID, &emp.TelegramChatID, &createdAt); err != nil {
			return nil, err
		}
		emp.CreatedAt = parseTime(createdAt)
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nonNilDateMap(m map[string][]schedule.Date) map[string][]schedule.Date {
	if m == nil {
		return map[string][]schedule.Date{}
	}
	return m
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
