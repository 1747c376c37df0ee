// Package leave implements leave entitlements, unit conversion and balances.
// It builds on the generic value types and hosts the approval workflow that
// applies the pure calculations against a transactional store.
package leave

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// Type is a leave-type key as stored by the surrounding application.
type Type string

const (
	TypeAnnual    Type = "annualLeave"
	TypeCasual    Type = "casualLeave"
	TypeSick      Type = "sickLeave"
	TypeShort     Type = "shortLeave"
	TypeMaternity Type = "maternityLeave"
	TypePaternity Type = "paternityLeave"
	TypeLieu      Type = "leave-in-lieu"
	TypeOther     Type = "other"
	TypeUnpaid    Type = "unpaid"
)

var knownTypes = map[Type]bool{
	TypeAnnual: true, TypeCasual: true, TypeSick: true, TypeShort: true,
	TypeMaternity: true, TypePaternity: true, TypeLieu: true, TypeOther: true, TypeUnpaid: true,
}

// Types returns every known key in a stable order.
func Types() []Type {
	return []Type{TypeAnnual, TypeCasual, TypeSick, TypeShort, TypeMaternity, TypePaternity, TypeLieu, TypeOther, TypeUnpaid}
}

// ParseType validates a leave-type key.
func ParseType(key string) (Type, error) {
	t := Type(strings.TrimSpace(key))
	if !knownTypes[t] {
		return "", &generic.UnknownLeaveTypeError{Key: key}
	}
	return t, nil
}

// Unit is hours for short leave and days for everything else.
func (t Type) Unit() generic.Unit {
	if t == TypeShort {
		return generic.UnitHours
	}
	return generic.UnitDays
}

// Tracked reports whether approving this type deducts from a balance.
// Other and unpaid leave are recorded but never deducted.
func (t Type) Tracked() bool {
	return t != TypeOther && t != TypeUnpaid
}

// Sibling returns the cross-utilization fallback for annual and casual leave.
func (t Type) Sibling() (Type, bool) {
	switch t {
	case TypeAnnual:
		return TypeCasual, true
	case TypeCasual:
		return TypeAnnual, true
	default:
		return "", false
	}
}

// EligibleFor rejects gender-restricted types the employee cannot take.
func (t Type) EligibleFor(g Gender) error {
	switch {
	case t == TypeMaternity && g != GenderFemale:
		return &generic.UnknownLeaveTypeError{Key: string(t), Reason: "only available to female employees"}
	case t == TypePaternity && g != GenderMale:
		return &generic.UnknownLeaveTypeError{Key: string(t), Reason: "only available to male employees"}
	}
	return nil
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type Gender string

const (
	GenderUnspecified Gender = ""
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
)

// ParseGender accepts female/male in any case; anything else is unspecified.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "female", "f":
		return GenderFemale
	case "male", "m":
		return GenderMale
	default:
		return GenderUnspecified
	}
}

// Employee is the read-only view of an employee the engine works from.
type Employee struct {
	ID       string
	Name     string
	HireDate generic.TimePoint
	Gender   Gender
	Balances Balances
	NoPay    bool
}

// Balances maps leave type to its current balance (days, or hours for short leave).
type Balances map[Type]decimal.Decimal

// Get returns zero for missing types.
func (b Balances) Get(t Type) decimal.Decimal {
	if v, ok := b[t]; ok {
		return v
	}
	return decimal.Zero
}

// Clone returns an independent copy. Nil clones to an empty map.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// With returns a copy with t set to v.
func (b Balances) With(t Type, v decimal.Decimal) Balances {
	out := b.Clone()
	out[t] = v
	return out
}

// AnyNegative is the no-pay condition.
func (b Balances) AnyNegative() bool {
	for _, v := range b {
		if v.IsNegative() {
			return true
		}
	}
	return false
}

// Keys returns the populated types sorted by key.
func (b Balances) Keys() []Type {
	keys := make([]Type, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type Status string

const (
	StatusPending           Status = "Pending"
	StatusPendingDepartment Status = "Pending Department Approval"
	StatusPendingHR         Status = "Pending HR Approval"
	StatusApproved          Status = "Approved"
	StatusRejected          Status = "Rejected"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.TrimSpace(s))
	_, ok := transitions[st]
	return st, ok
}

// Request is one leave request. StartTime/EndTime are only meaningful when the
// request covers a single day.
type Request struct {
	ID         string
	EmployeeID string
	Type       Type
	StartDate  generic.TimePoint
	EndDate    generic.TimePoint
	StartTime  *generic.ClockTime
	EndTime    *generic.ClockTime
	Status     Status
	Units      generic.Amount
	Reason     string
	AppliedAt  time.Time

	// Processed is set in the same write that deducts the balance.
	Processed    bool
	DecidedBy    string
	DecidedAt    *time.Time
	DecisionNote string
}

// Period returns the validated [StartDate, EndDate] range.
func (r Request) Period() (generic.Period, error) {
	return generic.NewPeriod(r.StartDate, r.EndDate)
}

func (r Request) IsApproved() bool { return r.Status == StatusApproved }

// HasTimes reports whether both wall-clock bounds are present.
func (r Request) HasTimes() bool { return r.StartTime != nil && r.EndTime != nil }
