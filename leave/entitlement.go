/*
entitlement.go - Join-date based leave entitlements

PURPOSE:
  Determines which tenure tier an employee falls into for a target year and
  what that tier entitles them to.

TENURE CONDITIONS:
  A:      Joined in the target year. No annual leave yet; casual leave accrues
          0.5 day per completed month up to Dec 31.
  B:      Joined the year before. Annual leave is prorated by join quarter.
  C:      Joined two or more years before. Full allotments.
  Future: Joins after the target year. Everything is zero.

QUARTER PRORATION (condition B):
  Jan-Mar: 14   Apr-Jun: 10   Jul-Sep: 7   Oct-Dec: 4

EXAMPLE:
  calc := leave.NewCalculator(leave.DefaultPolicy())
  ent, _ := calc.Calculate(generic.MustParseDate("2024-03-25"), 2024)
  // ent.Condition == ConditionA, ent.CasualLeave == 4.5 (9 months x 0.5)

SEE ALSO:
  - policy.go: Quarter table and standard allotments
  - balance.go: Subtracts approved usage from these entitlements
*/
package leave

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Condition is the tenure tier for a target year.
type Condition string

const (
	ConditionA      Condition = "A"
	ConditionB      Condition = "B"
	ConditionC      Condition = "C"
	ConditionFuture Condition = "Future"
)

// Quarter is the join quarter and the annual leave it prorates to.
type Quarter struct {
	Index           int
	AnnualLeaveDays decimal.Decimal
}

// Entitlement is derived from (hire date, year) and never mutated.
type Entitlement struct {
	Year            int
	Condition       Condition
	AnnualLeave     decimal.Decimal
	SickLeave       decimal.Decimal
	CasualLeave     decimal.Decimal
	CompletedMonths int
	JoinQuarter     int
}

// For returns the allotment for an annually entitled type.
func (e Entitlement) For(t Type) (decimal.Decimal, bool) {
	switch t {
	case TypeAnnual:
		return e.AnnualLeave, true
	case TypeSick:
		return e.SickLeave, true
	case TypeCasual:
		return e.CasualLeave, true
	default:
		return decimal.Zero, false
	}
}

// AnnualTypes are the types driven by the yearly entitlement.
var AnnualTypes = []Type{TypeAnnual, TypeCasual, TypeSick}

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	policy Policy
}

func NewCalculator(p Policy) *Calculator {
	return &Calculator{policy: p}
}

// CompletedMonths counts whole months from hire to asOf, comparing day-of-month.
// The result is never negative.
func CompletedMonths(hire, asOf generic.TimePoint) int {
	months := (asOf.Year()-hire.Year())*12 + int(asOf.Month()) - int(hire.Month())
	if asOf.Day() < hire.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// ConditionFor returns the tenure tier of hire for year.
func ConditionFor(hire generic.TimePoint, year int) (Condition, error) {
	if err := validateInputs(hire, year); err != nil {
		return "", err
	}
	switch hy := hire.Year(); {
	case hy > year:
		return ConditionFuture, nil
	case hy == year:
		return ConditionA, nil
	case hy == year-1:
		return ConditionB, nil
	default:
		return ConditionC, nil
	}
}

// QuarterOf maps the hire month to its quarter and table entry.
func (c *Calculator) QuarterOf(hire generic.TimePoint) Quarter {
	index := (int(hire.Month())-1)/3 + 1
	return Quarter{Index: index, AnnualLeaveDays: c.policy.AnnualLeaveForQuarter(index)}
}

// Calculate returns the entitlement of an employee hired on hire for year.
func (c *Calculator) Calculate(hire generic.TimePoint, year int) (Entitlement, error) {
	condition, err := ConditionFor(hire, year)
	if err != nil {
		return Entitlement{}, err
	}

	ent := Entitlement{
		Year:        year,
		Condition:   condition,
		AnnualLeave: decimal.Zero,
		SickLeave:   decimal.Zero,
		CasualLeave: decimal.Zero,
		JoinQuarter: c.QuarterOf(hire).Index,
	}
	if condition == ConditionFuture {
		return ent, nil
	}

	ent.CompletedMonths = CompletedMonths(hire, generic.EndOfYear(year))
	ent.SickLeave = c.policy.SickLeaveDays

	switch condition {
	case ConditionA:
		accrued := c.policy.CasualAccrualPerMonth.Mul(decimal.NewFromInt(int64(ent.CompletedMonths)))
		ent.CasualLeave = accrued.Round(c.policy.CasualRoundPlaces)
	case ConditionB:
		ent.AnnualLeave = c.QuarterOf(hire).AnnualLeaveDays
		ent.CasualLeave = c.policy.CasualLeaveDays
	case ConditionC:
		ent.AnnualLeave = c.policy.LongTermAnnualDays
		ent.CasualLeave = c.policy.CasualLeaveDays
	}
	return ent, nil
}

// InitialBalances seeds a balance map from an entitlement, with the monthly
// short-leave allowance in hours.
func (c *Calculator) InitialBalances(ent Entitlement) Balances {
	b := Balances{TypeShort: c.policy.ShortLeaveMonthlyHours}
	for _, t := range AnnualTypes {
		v, _ := ent.For(t)
		b[t] = v
	}
	return b
}

func validateInputs(hire generic.TimePoint, year int) error {
	if hire.IsZero() {
		return &generic.InvalidDateError{Input: "", Reason: "missing hire date"}
	}
	if year < 1 || year > 9999 {
		return &generic.InvalidDateError{Input: strconv.Itoa(year), Reason: "target year out of range"}
	}
	return nil
}
