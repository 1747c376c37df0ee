/*
balance.go - Balance reduction, cross-utilization and no-pay detection

PURPOSE:
  Turns an entitlement plus the approved requests of a year into remaining
  balances, and expresses every balance change as a pure function of
  (current balances, request) so the caller can apply it inside a single
  atomic read-modify-write.

BALANCE MODELS:
  Annual / Casual / Sick:
    remaining = max(0, entitlement - approved usage in the year)

  Short leave (hours):
    remaining = max(0, monthly limit - approved hours in the asOf month)
    The window moves with asOf; there is no stored counter to reset.

  Stored balances are not the derived view above: they keep the deficits
  and cross-utilization of every approval. Replay rebuilds them from the
  year's opening entitlement.

CROSS-UTILIZATION (Annual <-> Casual):
  primary >= required            -> all from primary
  primary + fallback >= required -> primary to 0, remainder from fallback
  otherwise                      -> all from primary, which goes negative

NO-PAY:
  An employee with any negative balance is in no-pay status. Deduct reports
  whether the deduction itself drove a balance negative so approval can be
  routed before anything is written.

SEE ALSO:
  - entitlement.go: Produces the Entitlement consumed here
  - workflow.go: Uses WouldGoNegative for approval routing
  - service.go: Applies Deduct inside a store transaction
*/
package leave

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

type Reducer struct {
	policy Policy
}

func NewReducer(p Policy) *Reducer {
	return &Reducer{policy: p}
}

// =============================================================================
// BALANCE - Derived for a year, never stored by the engine
// =============================================================================

type Balance struct {
	Year        int
	AsOf        generic.TimePoint
	Entitlement Entitlement

	// Remaining holds annual, casual and sick days plus short-leave hours.
	Remaining Balances
	Used      Balances

	ShortLeaveUsedHours      decimal.Decimal
	ShortLeaveRemainingHours decimal.Decimal
}

// CalculateBalances subtracts approved usage from ent. Requests that are not
// approved, or that start outside ent.Year, are ignored. Short-leave usage is
// taken from asOf's calendar month.
func (r *Reducer) CalculateBalances(ent Entitlement, requests []Request, asOf generic.TimePoint) Balance {
	year := generic.YearPeriod(ent.Year)
	used := Balances{}
	for _, t := range AnnualTypes {
		used[t] = decimal.Zero
	}
	for _, req := range requests {
		if !req.IsApproved() || !year.Contains(req.StartDate) {
			continue
		}
		if _, ok := ent.For(req.Type); ok {
			used[req.Type] = used[req.Type].Add(req.Units.Value)
		}
	}

	remaining := Balances{}
	for _, t := range AnnualTypes {
		allotted, _ := ent.For(t)
		remaining[t] = generic.MaxZero(allotted.Sub(used[t]))
	}

	shortUsed := r.ShortLeaveUsedInMonth(requests, asOf)
	shortRemaining := generic.MaxZero(r.policy.ShortLeaveMonthlyHours.Sub(shortUsed))
	used[TypeShort] = shortUsed
	remaining[TypeShort] = shortRemaining

	return Balance{
		Year:                     ent.Year,
		AsOf:                     asOf,
		Entitlement:              ent,
		Remaining:                remaining,
		Used:                     used,
		ShortLeaveUsedHours:      shortUsed,
		ShortLeaveRemainingHours: shortRemaining,
	}
}

// ShortLeaveUsedInMonth sums approved short-leave hours starting in asOf's month.
func (r *Reducer) ShortLeaveUsedInMonth(requests []Request, asOf generic.TimePoint) decimal.Decimal {
	total := decimal.Zero
	for _, req := range requests {
		if req.Type == TypeShort && req.IsApproved() && req.StartDate.SameMonth(asOf) {
			total = total.Add(req.Units.Value)
		}
	}
	return total
}

// =============================================================================
// SHORT LEAVE VALIDATION
// =============================================================================

type ShortLeaveValidation struct {
	Valid                   bool
	Errors                  []string
	RemainingHoursThisMonth decimal.Decimal
}

// ValidateShortLeave checks the per-request cap and the monthly cap. The
// remaining hours assume the request is granted and never go below zero.
func (r *Reducer) ValidateShortLeave(requestedHours, usedHoursThisMonth decimal.Decimal) ShortLeaveValidation {
	var errs []string
	if !requestedHours.IsPositive() {
		errs = append(errs, "requested hours must be positive")
	}
	if requestedHours.GreaterThan(r.policy.ShortLeaveRequestHours) {
		errs = append(errs, fmt.Sprintf("short leave cannot exceed %s hours per request", r.policy.ShortLeaveRequestHours))
	}
	if usedHoursThisMonth.Add(requestedHours).GreaterThan(r.policy.ShortLeaveMonthlyHours) {
		errs = append(errs, fmt.Sprintf("monthly short leave limit of %s hours exceeded (used %s, requested %s)",
			r.policy.ShortLeaveMonthlyHours, usedHoursThisMonth, requestedHours))
	}
	return ShortLeaveValidation{
		Valid:                   len(errs) == 0,
		Errors:                  errs,
		RemainingHoursThisMonth: generic.MaxZero(r.policy.ShortLeaveMonthlyHours.Sub(usedHoursThisMonth).Sub(requestedHours)),
	}
}

// =============================================================================
// CROSS-UTILIZATION
// =============================================================================

type CrossUtilization struct {
	PrimaryType  Type
	FallbackType Type
	Required     decimal.Decimal

	// New balances after the deduction.
	Primary  decimal.Decimal
	Fallback decimal.Decimal

	FromPrimary   decimal.Decimal
	CrossUtilized decimal.Decimal

	// NoPay is set when the primary balance ends negative.
	NoPay bool
}

// CrossUtilize deducts required from primary (annual or casual), falling back to
// its sibling. Only positive balances count as available; a negative primary
// stays negative and the fallback covers the full shortfall.
func (r *Reducer) CrossUtilize(primary Type, primaryBalance, fallbackBalance, required decimal.Decimal) (CrossUtilization, error) {
	fallback, ok := primary.Sibling()
	if !ok {
		return CrossUtilization{}, &generic.UnknownLeaveTypeError{Key: string(primary), Reason: "no cross-utilization fallback"}
	}
	if !required.IsPositive() {
		return CrossUtilization{}, &generic.InvalidRangeError{From: "0", To: required.String(), Reason: "required deduction must be positive"}
	}

	out := CrossUtilization{
		PrimaryType:   primary,
		FallbackType:  fallback,
		Required:      required,
		Fallback:      fallbackBalance,
		CrossUtilized: decimal.Zero,
	}
	primaryAvailable := generic.MaxZero(primaryBalance)
	fallbackAvailable := generic.MaxZero(fallbackBalance)

	switch {
	case primaryAvailable.GreaterThanOrEqual(required):
		out.FromPrimary = required
		out.Primary = primaryBalance.Sub(required)
	case primaryAvailable.Add(fallbackAvailable).GreaterThanOrEqual(required):
		out.FromPrimary = primaryAvailable
		out.CrossUtilized = required.Sub(primaryAvailable)
		out.Primary = primaryBalance.Sub(primaryAvailable)
		out.Fallback = fallbackBalance.Sub(out.CrossUtilized)
	default:
		out.FromPrimary = required
		out.Primary = primaryBalance.Sub(required)
	}
	out.NoPay = out.Primary.IsNegative()
	return out, nil
}

// =============================================================================
// DEDUCTION - (current balances, request) -> new balances
// =============================================================================

type Deduction struct {
	RequestID string
	Type      Type
	Units     generic.Amount
	Before    Balances
	After     Balances

	CrossUtilization *CrossUtilization

	// WentNegative is set when this deduction lowers a balance and leaves it
	// below zero. A balance that was already negative and is not drawn on
	// does not count.
	WentNegative bool
	// NoPay is the employee's resulting status: any balance negative.
	NoPay bool
}

// Deduct computes the balances after approving req. It does not look at the
// request status; callers decide when a request is approvable. Types that are
// not tracked leave balances unchanged.
func (r *Reducer) Deduct(current Balances, req Request) (Deduction, error) {
	if _, err := ParseType(string(req.Type)); err != nil {
		return Deduction{}, err
	}
	units := req.Units
	if units.Unit == "" {
		units.Unit = req.Type.Unit()
	}
	if units.Unit != req.Type.Unit() {
		return Deduction{}, &generic.OutOfPolicyError{Rule: "unit", Value: string(units.Unit), Limit: string(req.Type.Unit())}
	}
	if units.IsNegative() {
		return Deduction{}, &generic.InvalidRangeError{From: "0", To: units.Value.String(), Reason: "leave units must not be negative"}
	}

	d := Deduction{
		RequestID: req.ID,
		Type:      req.Type,
		Units:     units,
		Before:    current.Clone(),
		After:     current.Clone(),
	}

	switch {
	case !req.Type.Tracked() || units.IsZero():
		// nothing to deduct
	case req.Type == TypeAnnual || req.Type == TypeCasual:
		cu, err := r.CrossUtilize(req.Type, current.Get(req.Type), current.Get(mustSibling(req.Type)), units.Value)
		if err != nil {
			return Deduction{}, err
		}
		d.After[cu.PrimaryType] = cu.Primary
		d.After[cu.FallbackType] = cu.Fallback
		d.CrossUtilization = &cu
		d.WentNegative = lowersBelowZero(current.Get(cu.PrimaryType), cu.Primary) ||
			lowersBelowZero(current.Get(cu.FallbackType), cu.Fallback)
	default:
		left := current.Get(req.Type).Sub(units.Value)
		d.After[req.Type] = left
		d.WentNegative = lowersBelowZero(current.Get(req.Type), left)
	}

	d.NoPay = d.After.AnyNegative()
	return d, nil
}

// Replay rebuilds stored balances from opening by deducting every approved,
// day-based request that starts in year, ordered by start date then
// submission time. Cross-utilization and deficits carry through exactly as
// they did at approval. Short leave is reset to the monthly allowance less
// the approved hours in asOf's month.
func (r *Reducer) Replay(opening Balances, requests []Request, year int, asOf generic.TimePoint) (Balances, error) {
	window := generic.YearPeriod(year)
	var due []Request
	for _, req := range requests {
		if req.IsApproved() && req.Type != TypeShort && window.Contains(req.StartDate) {
			due = append(due, req)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].StartDate.Equal(due[j].StartDate) {
			return due[i].StartDate.Before(due[j].StartDate)
		}
		return due[i].AppliedAt.Before(due[j].AppliedAt)
	})

	current := opening.Clone()
	for _, req := range due {
		d, err := r.Deduct(current, req)
		if err != nil {
			return nil, fmt.Errorf("replay request %s: %w", req.ID, err)
		}
		current = d.After
	}
	current[TypeShort] = generic.MaxZero(r.policy.ShortLeaveMonthlyHours.Sub(r.ShortLeaveUsedInMonth(requests, asOf)))
	return current, nil
}

// WouldGoNegative reports, without side effects, whether approving req would
// leave a touched balance below zero.
func (r *Reducer) WouldGoNegative(current Balances, req Request) (bool, error) {
	d, err := r.Deduct(current, req)
	if err != nil {
		return false, err
	}
	return d.WentNegative, nil
}

// =============================================================================
// NO-PAY STATUS
// =============================================================================

type NoPayChange int

const (
	NoPayUnchanged NoPayChange = iota
	NoPayEntered
	NoPayCleared
)

func (c NoPayChange) String() string {
	switch c {
	case NoPayEntered:
		return "entered"
	case NoPayCleared:
		return "cleared"
	default:
		return "unchanged"
	}
}

// IsNoPay is true while any balance is negative.
func IsNoPay(b Balances) bool { return b.AnyNegative() }

// NoPayTransition compares the persisted flag against the new balances.
func NoPayTransition(wasNoPay bool, after Balances) NoPayChange {
	now := IsNoPay(after)
	switch {
	case now && !wasNoPay:
		return NoPayEntered
	case !now && wasNoPay:
		return NoPayCleared
	default:
		return NoPayUnchanged
	}
}

func lowersBelowZero(before, after decimal.Decimal) bool {
	return after.IsNegative() && after.LessThan(before)
}

func mustSibling(t Type) Type {
	s, _ := t.Sibling()
	return s
}
