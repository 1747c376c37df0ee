package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func newStoreMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlxDB.Close()
	})
	return NewWithDB(sqlxDB), mock
}

var (
	employeeCols = []string{"id", "name", "hire_date", "gender", "balances", "no_pay"}
	requestCols  = []string{
		"id", "employee_id", "leave_type", "start_date", "end_date", "start_time", "end_time", "status",
		"units_value", "units_unit", "reason", "processed", "decided_by", "decided_at", "decision_note", "applied_at",
	}
)

func TestGetEmployee(t *testing.T) {
	store, mock := newStoreMock(t)

	rows := sqlmock.NewRows(employeeCols).
		AddRow("emp-1", "Ana", time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), "female", []byte(`{"annualLeave":"10","sickLeave":"-1"}`), true)
	mock.ExpectQuery(`SELECT (.+) FROM employees WHERE id = \$1`).
		WithArgs("emp-1").
		WillReturnRows(rows)

	emp, err := store.GetEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2023-05-15", emp.HireDate.String())
	assert.Equal(t, leave.GenderFemale, emp.Gender)
	assert.True(t, decimal.NewFromInt(-1).Equal(emp.Balances.Get(leave.TypeSick)))
	assert.True(t, emp.NoPay)
}

func TestGetEmployee_NotFound(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM employees`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(employeeCols))

	_, err := store.GetEmployee(context.Background(), "ghost")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestSaveEmployee(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectExec("INSERT INTO employees").
		WithArgs("emp-1", "Ana", time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), "female",
			sqlmock.AnyArg(), false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveEmployee(context.Background(), leave.Employee{
		ID:       "emp-1",
		Name:     "Ana",
		HireDate: generic.MustParseDate("2023-05-15"),
		Gender:   leave.GenderFemale,
		Balances: leave.Balances{leave.TypeAnnual: decimal.NewFromInt(10)},
	})
	require.NoError(t, err)
}

func TestSaveRequest_UnknownEmployee(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectExec("INSERT INTO leave_requests").
		WillReturnError(&pq.Error{Code: foreignKeyViolation})

	err := store.SaveRequest(context.Background(), leave.Request{
		ID:         "req-1",
		EmployeeID: "ghost",
		Type:       leave.TypeSick,
		StartDate:  generic.MustParseDate("2024-06-04"),
		EndDate:    generic.MustParseDate("2024-06-04"),
		Status:     leave.StatusPending,
		Units:      generic.NewAmount(1, generic.UnitDays),
	})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestListRequests(t *testing.T) {
	store, mock := newStoreMock(t)

	decided := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(requestCols).
		AddRow("req-1", "emp-1", "shortLeave", time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC),
			"09:00", "10:30", "Approved", "1.5", "hours", "", true, "manager", decided, nil, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	mock.ExpectQuery(`FROM leave_requests\s+WHERE employee_id = \$1 AND start_date BETWEEN \$2 AND \$3`).
		WithArgs("emp-1", "2024-01-01", "2024-12-31").
		WillReturnRows(rows)

	got, err := store.ListRequests(context.Background(), "emp-1", generic.YearPeriod(2024))
	require.NoError(t, err)
	require.Len(t, got, 1)

	req := got[0]
	assert.Equal(t, leave.TypeShort, req.Type)
	require.NotNil(t, req.StartTime)
	assert.Equal(t, "10:30", req.EndTime.String())
	assert.True(t, decimal.RequireFromString("1.5").Equal(req.Units.Value))
	assert.Equal(t, generic.UnitHours, req.Units.Unit)
	require.NotNil(t, req.DecidedAt)
	assert.True(t, req.DecidedAt.Equal(decided))
	assert.Empty(t, req.DecisionNote)
}

func TestListByStatus(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectQuery(`WHERE status = ANY\(\$1\)`).
		WithArgs(`{"Pending","Pending HR Approval"}`).
		WillReturnRows(sqlmock.NewRows(requestCols))

	got, err := store.ListByStatus(context.Background(), leave.StatusPending, leave.StatusPendingHR)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWithTx_LocksEmployeeAndCommits(t *testing.T) {
	store, mock := newStoreMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM employees WHERE id = \$1 FOR UPDATE`).
		WithArgs("emp-1").
		WillReturnRows(sqlmock.NewRows(employeeCols).
			AddRow("emp-1", "Ana", time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), "female", []byte(`{"annualLeave":"10"}`), false))
	mock.ExpectExec("INSERT INTO employees").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(repo leave.Repository) error {
		emp, err := repo.GetEmployee(ctx, "emp-1")
		if err != nil {
			return err
		}
		emp.Balances = emp.Balances.With(leave.TypeAnnual, decimal.NewFromInt(8))
		return repo.SaveEmployee(ctx, *emp)
	})
	require.NoError(t, err)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store, mock := newStoreMock(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithTx(context.Background(), func(leave.Repository) error { return boom })
	assert.ErrorIs(t, err, boom)
}
