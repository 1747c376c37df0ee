package leave

import (
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// REQUEST STATE MACHINE
// =============================================================================

//	Pending                     -> Approved | Rejected | Pending Department Approval | Pending HR Approval
//	Pending Department Approval -> Pending HR Approval | Approved | Rejected
//	Pending HR Approval         -> Approved | Rejected
//	Approved, Rejected          -> (terminal)
var transitions = map[Status][]Status{
	StatusPending:           {StatusApproved, StatusRejected, StatusPendingDepartment, StatusPendingHR},
	StatusPendingDepartment: {StatusPendingHR, StatusApproved, StatusRejected},
	StatusPendingHR:         {StatusApproved, StatusRejected},
	StatusApproved:          nil,
	StatusRejected:          nil,
}

func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns a copy of req moved to status to.
func Transition(req Request, to Status, actor string, at time.Time) (Request, error) {
	if !CanTransition(req.Status, to) {
		return req, &generic.TransitionError{From: string(req.Status), To: string(to)}
	}
	req.Status = to
	if to.IsTerminal() {
		req.DecidedBy = actor
		decided := at
		req.DecidedAt = &decided
	}
	return req, nil
}

// =============================================================================
// APPROVAL ROUTING
// =============================================================================

type Route string

const (
	RouteAutoApprove Route = "auto_approve"
	RouteEscalate    Route = "escalate"
)

type Routing struct {
	Route     Route
	Next      Status
	Deduction Deduction
}

// Route decides, without side effects, whether req can be approved directly or
// must go to HR because it would drive a balance negative.
func (r *Reducer) Route(current Balances, req Request) (Routing, error) {
	d, err := r.Deduct(current, req)
	if err != nil {
		return Routing{}, err
	}
	if d.WentNegative {
		return Routing{Route: RouteEscalate, Next: StatusPendingHR, Deduction: d}, nil
	}
	return Routing{Route: RouteAutoApprove, Next: StatusApproved, Deduction: d}, nil
}
