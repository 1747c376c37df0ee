package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// seedCorruptRow stores a valid request, then overwrites one column with raw SQL.
func seedCorruptRow(t *testing.T, column, value string) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{
		ID:       "emp-1",
		HireDate: generic.MustParseDate("2020-01-10"),
		Balances: leave.Balances{leave.TypeAnnual: decimal.NewFromInt(14)},
	}))
	decided := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRequest(ctx, leave.Request{
		ID:         "req-1",
		EmployeeID: "emp-1",
		Type:       leave.TypeAnnual,
		StartDate:  generic.MustParseDate("2024-06-04"),
		EndDate:    generic.MustParseDate("2024-06-04"),
		Status:     leave.StatusApproved,
		Units:      generic.NewAmount(1, generic.UnitDays),
		DecidedBy:  "manager",
		DecidedAt:  &decided,
		AppliedAt:  time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}))

	_, err = store.db.ExecContext(ctx, `UPDATE leave_requests SET `+column+` = ? WHERE id = ?`, value, "req-1")
	require.NoError(t, err)
	return store
}

func TestScanRequest_CorruptColumnsFail(t *testing.T) {
	for _, tc := range []struct {
		column, value, want string
	}{
		{"units_value", "one and a half", "units"},
		{"decided_at", "yesterday", "decided_at"},
		{"applied_at", "", "applied_at"},
	} {
		t.Run(tc.column, func(t *testing.T) {
			// GIVEN: A row whose column no longer parses
			store := seedCorruptRow(t, tc.column, tc.value)

			// WHEN: Reading it back
			_, err := store.GetRequest(context.Background(), "req-1")

			// THEN: The read fails instead of returning a zero value
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestScanRequest_ValidRowStillReads(t *testing.T) {
	store := seedCorruptRow(t, "reason", "dentist")

	got, err := store.GetRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(got.Units.Value))
	require.NotNil(t, got.DecidedAt)
	assert.False(t, got.AppliedAt.IsZero())
}
