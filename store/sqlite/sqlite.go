/*
Package sqlite provides a SQLite-backed implementation of leave.Store.

PURPOSE:
  Persists employees (with their per-type balances and no-pay flag) and leave
  requests (with the processed marker the approval service sets). The engine
  never sees this package; it only sees the leave.Repository interface.

KEY TABLES:
  employees:       Employee records, balances as a JSON object of decimal strings
  leave_requests:  Requests with status, units and the processed marker

INDEXES:
  - idx_leave_requests_employee_start: Year and month window queries (hot path)
  - idx_leave_requests_status: Pending queues

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole callback, so an approval's read-modify-write of a balance cannot
  interleave with another write.

DECIMALS:
  Balances and units are stored as decimal strings, never REAL.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := leave.NewApprovalService(store, leave.NewEngine(leave.DefaultPolicy()))

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/service.go: Uses WithTx for approvals
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ leave.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		hire_date TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT '',
		balances_json TEXT NOT NULL DEFAULT '{}',
		no_pay BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		status TEXT NOT NULL DEFAULT 'Pending',
		units_value TEXT NOT NULL,
		units_unit TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		decided_by TEXT,
		decided_at TEXT,
		decision_note TEXT,
		applied_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee_start
		ON leave_requests(employee_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

// SaveEmployee inserts or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEmployee(ctx, s.db, emp)
}

// ListEmployees returns every employee ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

const employeeColumns = `id, name, hire_date, gender, balances_json, no_pay`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func getEmployee(ctx context.Context, q querier, id string) (*leave.Employee, error) {
	row := q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func scanEmployee(row rowScanner) (leave.Employee, error) {
	var (
		emp          leave.Employee
		hireDate     string
		gender       string
		balancesJSON string
	)
	err := row.Scan(&emp.ID, &emp.Name, &hireDate, &gender, &balancesJSON, &emp.NoPay)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Employee{}, err
	}
	if err != nil {
		return leave.Employee{}, fmt.Errorf("failed to load employee: %w", err)
	}

	if emp.HireDate, err = generic.ParseDate(hireDate); err != nil {
		return leave.Employee{}, fmt.Errorf("employee %s hire date: %w", emp.ID, err)
	}
	emp.Gender = leave.Gender(gender)
	if emp.Balances, err = decodeBalances(balancesJSON); err != nil {
		return leave.Employee{}, fmt.Errorf("employee %s balances: %w", emp.ID, err)
	}
	return emp, nil
}

func saveEmployee(ctx context.Context, q querier, emp leave.Employee) error {
	balancesJSON, err := encodeBalances(emp.Balances)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO employees (id, name, hire_date, gender, balances_json, no_pay, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			hire_date = excluded.hire_date,
			gender = excluded.gender,
			balances_json = excluded.balances_json,
			no_pay = excluded.no_pay,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.HireDate.String(), string(emp.Gender), balancesJSON, emp.NoPay, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const requestColumns = `
	id, employee_id, leave_type, start_date, end_date, start_time, end_time, status,
	units_value, units_unit, reason, processed, decided_by, decided_at, decision_note, applied_at
`

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

// SaveRequest inserts or updates a request.
func (s *Store) SaveRequest(ctx context.Context, req leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRequest(ctx, s.db, req)
}

// ListRequests returns requests of an employee that start within period.
func (s *Store) ListRequests(ctx context.Context, employeeID string, period generic.Period) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequests(ctx, s.db, employeeID, period)
}

// ListByStatus returns requests in any of the given statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...leave.Status) ([]leave.Request, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE status IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY applied_at ASC`
	return queryRequests(ctx, s.db, query, args...)
}

func getRequest(ctx context.Context, q querier, id string) (*leave.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE id = ?`
	requests, err := queryRequests(ctx, q, query, id)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("leave request %s: %w", id, generic.ErrNotFound)
	}
	return &requests[0], nil
}

func listRequests(ctx context.Context, q querier, employeeID string, period generic.Period) ([]leave.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM leave_requests
		WHERE employee_id = ? AND start_date >= ? AND start_date <= ?
		ORDER BY start_date ASC, applied_at ASC
	`
	return queryRequests(ctx, q, query, employeeID, period.Start.String(), period.End.String())
}

func saveRequest(ctx context.Context, q querier, r leave.Request) error {
	query := `
		INSERT INTO leave_requests (` + requestColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			units_value = excluded.units_value,
			units_unit = excluded.units_unit,
			processed = excluded.processed,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at,
			decision_note = excluded.decision_note,
			updated_at = excluded.updated_at
	`

	var decidedAt *string
	if r.DecidedAt != nil {
		s := r.DecidedAt.UTC().Format(time.RFC3339)
		decidedAt = &s
	}
	appliedAt := r.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}

	_, err := q.ExecContext(ctx, query,
		r.ID, r.EmployeeID, string(r.Type), r.StartDate.String(), r.EndDate.String(),
		clockString(r.StartTime), clockString(r.EndTime), string(r.Status),
		r.Units.Value.String(), string(r.Units.Unit), r.Reason, r.Processed,
		nullString(r.DecidedBy), decidedAt, nullString(r.DecisionNote),
		appliedAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("employee %s: %w", r.EmployeeID, generic.ErrNotFound)
		}
		return fmt.Errorf("failed to save leave request: %w", err)
	}
	return nil
}

func queryRequests(ctx context.Context, q querier, query string, args ...any) ([]leave.Request, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(rows *sql.Rows) (leave.Request, error) {
	var (
		r                     leave.Request
		leaveType, status     string
		startDate, endDate    string
		startTime, endTime    sql.NullString
		unitsValue, unitsUnit string
		decidedBy, decidedAt  sql.NullString
		decisionNote          sql.NullString
		appliedAt             string
	)
	err := rows.Scan(
		&r.ID, &r.EmployeeID, &leaveType, &startDate, &endDate, &startTime, &endTime, &status,
		&unitsValue, &unitsUnit, &r.Reason, &r.Processed, &decidedBy, &decidedAt, &decisionNote, &appliedAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan leave request: %w", err)
	}

	r.Type = leave.Type(leaveType)
	r.Status = leave.Status(status)
	if r.StartDate, err = generic.ParseDate(startDate); err != nil {
		return r, err
	}
	if r.EndDate, err = generic.ParseDate(endDate); err != nil {
		return r, err
	}
	if r.StartTime, err = parseClock(startTime); err != nil {
		return r, err
	}
	if r.EndTime, err = parseClock(endTime); err != nil {
		return r, err
	}
	value, err := decimal.NewFromString(unitsValue)
	if err != nil {
		return r, fmt.Errorf("leave request %s: units %q: %w", r.ID, unitsValue, err)
	}
	r.Units = generic.Amount{Value: value, Unit: generic.Unit(unitsUnit)}
	r.DecidedBy = decidedBy.String
	r.DecisionNote = decisionNote.String
	if decidedAt.Valid {
		t, err := time.Parse(time.RFC3339, decidedAt.String)
		if err != nil {
			return r, fmt.Errorf("leave request %s: decided_at: %w", r.ID, err)
		}
		r.DecidedAt = &t
	}
	if r.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt); err != nil {
		return r, fmt.Errorf("leave request %s: applied_at: %w", r.ID, err)
	}
	return r, nil
}

// =============================================================================
// TRANSACTIONAL STORE (leave.Store interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(repo leave.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every call on the open transaction. It takes no locks: the
// enclosing WithTx already holds the write lock.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return saveEmployee(ctx, ts.tx, emp)
}

func (ts *txStore) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	return getRequest(ctx, ts.tx, id)
}

func (ts *txStore) SaveRequest(ctx context.Context, req leave.Request) error {
	return saveRequest(ctx, ts.tx, req)
}

func (ts *txStore) ListRequests(ctx context.Context, employeeID string, period generic.Period) ([]leave.Request, error) {
	return listRequests(ctx, ts.tx, employeeID, period)
}

// Reset clears all data (dev and tests).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"leave_requests", "employees"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func encodeBalances(b leave.Balances) (string, error) {
	raw := make(map[string]string, len(b))
	for t, v := range b {
		raw[string(t)] = v.String()
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to encode balances: %w", err)
	}
	return string(out), nil
}

func decodeBalances(s string) (leave.Balances, error) {
	raw := map[string]string{}
	if strings.TrimSpace(s) != "" {
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, err
		}
	}
	b := make(leave.Balances, len(raw))
	for k, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", k, err)
		}
		b[leave.Type(k)] = d
	}
	return b, nil
}

func clockString(c *generic.ClockTime) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}

func parseClock(s sql.NullString) (*generic.ClockTime, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	c, err := generic.ParseClock(s.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
