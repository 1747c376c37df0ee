/*
postgres.go - PostgreSQL storage implementation

PURPOSE:
  Implements leave.Store on PostgreSQL through sqlx and lib/pq. Selected
  with DB_DRIVER=postgres; SQLite remains the default for single-node runs.

SCHEMA:
  employees       - Employee records with balances as JSONB
  leave_requests  - Requests and their decision state

CONCURRENCY:
  WithTx runs in a database transaction and reads the employee row with
  SELECT ... FOR UPDATE, so concurrent approvals for the same employee
  serialize on the row lock.

SEE ALSO:
  - store/sqlite/sqlite.go: Default single-file backend
  - leave/store.go: Interface definition
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// foreignKeyViolation is the SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

// Store persists employees and leave requests in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ leave.Store = (*Store)(nil)

// New opens and pings a PostgreSQL connection, then applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewWithDB(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing connection without migrating it.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		hire_date DATE NOT NULL,
		gender TEXT NOT NULL DEFAULT '',
		balances JSONB NOT NULL DEFAULT '{}',
		no_pay BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		start_time TEXT,
		end_time TEXT,
		status TEXT NOT NULL,
		units_value NUMERIC NOT NULL,
		units_unit TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		decided_by TEXT,
		decided_at TIMESTAMPTZ,
		decision_note TEXT,
		applied_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee_start
		ON leave_requests(employee_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// ROWS
// =============================================================================

type employeeRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	HireDate  time.Time `db:"hire_date"`
	Gender    string    `db:"gender"`
	Balances  []byte    `db:"balances"`
	NoPay     bool      `db:"no_pay"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type requestRow struct {
	ID           string          `db:"id"`
	EmployeeID   string          `db:"employee_id"`
	LeaveType    string          `db:"leave_type"`
	StartDate    time.Time       `db:"start_date"`
	EndDate      time.Time       `db:"end_date"`
	StartTime    sql.NullString  `db:"start_time"`
	EndTime      sql.NullString  `db:"end_time"`
	Status       string          `db:"status"`
	UnitsValue   decimal.Decimal `db:"units_value"`
	UnitsUnit    string          `db:"units_unit"`
	Reason       string          `db:"reason"`
	Processed    bool            `db:"processed"`
	DecidedBy    sql.NullString  `db:"decided_by"`
	DecidedAt    sql.NullTime    `db:"decided_at"`
	DecisionNote sql.NullString  `db:"decision_note"`
	AppliedAt    time.Time       `db:"applied_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

const employeeColumns = `id, name, hire_date, gender, balances, no_pay`

const requestColumns = `id, employee_id, leave_type, start_date, end_date, start_time, end_time, status,
units_value, units_unit, reason, processed, decided_by, decided_at, decision_note, applied_at`

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return getEmployee(ctx, s.db, id, false)
}

func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return saveEmployee(ctx, s.db, emp)
}

// ListEmployees returns every employee ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	var rows []employeeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+employeeColumns+` FROM employees ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	out := make([]leave.Employee, 0, len(rows))
	for _, row := range rows {
		emp, err := row.toEmployee()
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, nil
}

func getEmployee(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*leave.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row employeeRow
	err := sqlx.GetContext(ctx, q, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	emp, err := row.toEmployee()
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func saveEmployee(ctx context.Context, e sqlx.ExtContext, emp leave.Employee) error {
	balances, err := json.Marshal(emp.Balances)
	if err != nil {
		return fmt.Errorf("encode balances: %w", err)
	}
	now := time.Now().UTC()
	row := employeeRow{
		ID:        emp.ID,
		Name:      emp.Name,
		HireDate:  dateOnly(emp.HireDate),
		Gender:    string(emp.Gender),
		Balances:  balances,
		NoPay:     emp.NoPay,
		CreatedAt: now,
		UpdatedAt: now,
	}
	const query = `INSERT INTO employees (id, name, hire_date, gender, balances, no_pay, created_at, updated_at)
VALUES (:id, :name, :hire_date, :gender, :balances, :no_pay, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, hire_date = EXCLUDED.hire_date, gender = EXCLUDED.gender,
balances = EXCLUDED.balances, no_pay = EXCLUDED.no_pay, updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, e, query, row); err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

func (r employeeRow) toEmployee() (leave.Employee, error) {
	balances := leave.Balances{}
	if len(r.Balances) > 0 {
		if err := json.Unmarshal(r.Balances, &balances); err != nil {
			return leave.Employee{}, fmt.Errorf("employee %s balances: %w", r.ID, err)
		}
	}
	return leave.Employee{
		ID:       r.ID,
		Name:     r.Name,
		HireDate: generic.FromTime(r.HireDate),
		Gender:   leave.Gender(r.Gender),
		Balances: balances,
		NoPay:    r.NoPay,
	}, nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	return getRequest(ctx, s.db, id)
}

func (s *Store) SaveRequest(ctx context.Context, req leave.Request) error {
	return saveRequest(ctx, s.db, req)
}

func (s *Store) ListRequests(ctx context.Context, employeeID string, period generic.Period) ([]leave.Request, error) {
	return listRequests(ctx, s.db, employeeID, period)
}

// ListByStatus returns requests in any of the given statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...leave.Status) ([]leave.Request, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE status = ANY($1) ORDER BY applied_at ASC`
	return selectRequests(ctx, s.db, query, pq.Array(names))
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, id string) (*leave.Request, error) {
	var row requestRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+requestColumns+` FROM leave_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("leave request %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get leave request: %w", err)
	}
	req, err := row.toRequest()
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func listRequests(ctx context.Context, q sqlx.QueryerContext, employeeID string, period generic.Period) ([]leave.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM leave_requests
WHERE employee_id = $1 AND start_date BETWEEN $2 AND $3
ORDER BY start_date ASC, applied_at ASC`
	return selectRequests(ctx, q, query, employeeID, period.Start.String(), period.End.String())
}

func selectRequests(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) ([]leave.Request, error) {
	var rows []requestRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	out := make([]leave.Request, 0, len(rows))
	for _, row := range rows {
		req, err := row.toRequest()
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

func saveRequest(ctx context.Context, e sqlx.ExtContext, req leave.Request) error {
	row := requestRow{
		ID:           req.ID,
		EmployeeID:   req.EmployeeID,
		LeaveType:    string(req.Type),
		StartDate:    dateOnly(req.StartDate),
		EndDate:      dateOnly(req.EndDate),
		StartTime:    clockString(req.StartTime),
		EndTime:      clockString(req.EndTime),
		Status:       string(req.Status),
		UnitsValue:   req.Units.Value,
		UnitsUnit:    string(req.Units.Unit),
		Reason:       req.Reason,
		Processed:    req.Processed,
		DecidedBy:    nullString(req.DecidedBy),
		DecisionNote: nullString(req.DecisionNote),
		AppliedAt:    req.AppliedAt.UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if req.DecidedAt != nil {
		row.DecidedAt = sql.NullTime{Time: req.DecidedAt.UTC(), Valid: true}
	}

	const query = `INSERT INTO leave_requests (id, employee_id, leave_type, start_date, end_date, start_time, end_time, status,
units_value, units_unit, reason, processed, decided_by, decided_at, decision_note, applied_at, updated_at)
VALUES (:id, :employee_id, :leave_type, :start_date, :end_date, :start_time, :end_time, :status,
:units_value, :units_unit, :reason, :processed, :decided_by, :decided_at, :decision_note, :applied_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, units_value = EXCLUDED.units_value,
units_unit = EXCLUDED.units_unit, reason = EXCLUDED.reason, processed = EXCLUDED.processed,
decided_by = EXCLUDED.decided_by, decided_at = EXCLUDED.decided_at, decision_note = EXCLUDED.decision_note,
updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, e, query, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return fmt.Errorf("employee %s: %w", req.EmployeeID, generic.ErrNotFound)
		}
		return fmt.Errorf("save leave request: %w", err)
	}
	return nil
}

func (r requestRow) toRequest() (leave.Request, error) {
	req := leave.Request{
		ID:           r.ID,
		EmployeeID:   r.EmployeeID,
		Type:         leave.Type(r.LeaveType),
		StartDate:    generic.FromTime(r.StartDate),
		EndDate:      generic.FromTime(r.EndDate),
		Status:       leave.Status(r.Status),
		Units:        generic.NewAmountFromDecimal(r.UnitsValue, generic.Unit(r.UnitsUnit)),
		Reason:       r.Reason,
		Processed:    r.Processed,
		DecidedBy:    r.DecidedBy.String,
		DecisionNote: r.DecisionNote.String,
		AppliedAt:    r.AppliedAt,
	}
	var err error
	if req.StartTime, err = parseClock(r.StartTime); err != nil {
		return leave.Request{}, fmt.Errorf("leave request %s start time: %w", r.ID, err)
	}
	if req.EndTime, err = parseClock(r.EndTime); err != nil {
		return leave.Request{}, fmt.Errorf("leave request %s end time: %w", r.ID, err)
	}
	if r.DecidedAt.Valid {
		t := r.DecidedAt.Time
		req.DecidedAt = &t
	}
	return req, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a transaction. Employee reads inside fn lock the row.
func (s *Store) WithTx(ctx context.Context, fn func(repo leave.Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sqlx.Tx
}

func (t *txStore) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return getEmployee(ctx, t.tx, id, true)
}

func (t *txStore) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return saveEmployee(ctx, t.tx, emp)
}

func (t *txStore) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	return getRequest(ctx, t.tx, id)
}

func (t *txStore) SaveRequest(ctx context.Context, req leave.Request) error {
	return saveRequest(ctx, t.tx, req)
}

func (t *txStore) ListRequests(ctx context.Context, employeeID string, period generic.Period) ([]leave.Request, error) {
	return listRequests(ctx, t.tx, employeeID, period)
}

// =============================================================================
// HELPERS
// =============================================================================

func dateOnly(tp generic.TimePoint) time.Time {
	return time.Date(tp.Year(), tp.Month(), tp.Day(), 0, 0, 0, 0, time.UTC)
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
