package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestCanTransition(t *testing.T) {
	allowed := map[leave.Status][]leave.Status{
		leave.StatusPending:           {leave.StatusApproved, leave.StatusRejected, leave.StatusPendingDepartment, leave.StatusPendingHR},
		leave.StatusPendingDepartment: {leave.StatusPendingHR, leave.StatusApproved, leave.StatusRejected},
		leave.StatusPendingHR:         {leave.StatusApproved, leave.StatusRejected},
	}
	all := []leave.Status{
		leave.StatusPending, leave.StatusPendingDepartment, leave.StatusPendingHR,
		leave.StatusApproved, leave.StatusRejected,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, leave.CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	assert.True(t, leave.StatusApproved.IsTerminal())
	assert.True(t, leave.StatusRejected.IsTerminal())
	assert.False(t, leave.StatusPendingHR.IsTerminal())
}

func TestTransition(t *testing.T) {
	at := time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC)
	req := leave.Request{ID: "r1", Status: leave.StatusPending}

	// Intermediate stage does not record a decision
	fwd, err := leave.Transition(req, leave.StatusPendingHR, "manager", at)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPendingHR, fwd.Status)
	assert.Nil(t, fwd.DecidedAt)

	// Terminal stage does
	done, err := leave.Transition(fwd, leave.StatusApproved, "hr", at)
	require.NoError(t, err)
	assert.Equal(t, "hr", done.DecidedBy)
	require.NotNil(t, done.DecidedAt)
	assert.True(t, done.DecidedAt.Equal(at))

	// Original is untouched
	assert.Equal(t, leave.StatusPending, req.Status)

	// Terminal states cannot move
	_, err = leave.Transition(done, leave.StatusRejected, "hr", at)
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
	assert.True(t, generic.IsConflict(err))
}

func TestRoute(t *testing.T) {
	r := newEngine().Reducer
	current := balances(leave.TypeAnnual, "2", leave.TypeCasual, "1", leave.TypeSick, "1")

	// Covered by annual + casual
	routing, err := r.Route(current, approved(leave.TypeAnnual, "2024-06-04", "3"))
	require.NoError(t, err)
	assert.Equal(t, leave.RouteAutoApprove, routing.Route)
	assert.Equal(t, leave.StatusApproved, routing.Next)

	// Sick would go negative
	routing, err = r.Route(current, approved(leave.TypeSick, "2024-06-04", "2"))
	require.NoError(t, err)
	assert.Equal(t, leave.RouteEscalate, routing.Route)
	assert.Equal(t, leave.StatusPendingHR, routing.Next)
	assertDecimal(t, "-1", routing.Deduction.After.Get(leave.TypeSick))
}

func TestEligibleFor(t *testing.T) {
	assert.NoError(t, leave.TypeMaternity.EligibleFor(leave.GenderFemale))
	assert.ErrorIs(t, leave.TypeMaternity.EligibleFor(leave.GenderMale), generic.ErrUnknownLeaveType)
	assert.NoError(t, leave.TypePaternity.EligibleFor(leave.GenderMale))
	assert.ErrorIs(t, leave.TypePaternity.EligibleFor(leave.GenderUnspecified), generic.ErrUnknownLeaveType)
	assert.NoError(t, leave.TypeAnnual.EligibleFor(leave.GenderUnspecified))

	_, err := leave.ParseType("bonusLeave")
	assert.ErrorIs(t, err, generic.ErrUnknownLeaveType)
	typ, err := leave.ParseType(" sickLeave ")
	require.NoError(t, err)
	assert.Equal(t, leave.TypeSick, typ)
}
