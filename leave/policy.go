/*
policy.go - Leave policy constants

PURPOSE:
  Collects every number the engine depends on into one immutable value.
  Calculator, Converter and Reducer receive a copy at construction, so a test
  or a tenant with different rules builds its own Policy instead of patching
  shared state.

DEFAULTS:
  Annual leave by join quarter:  Q1 14, Q2 10, Q3 7, Q4 4
  Long-term annual leave:        14 days
  Sick leave:                    7 days
  Casual leave:                  7 days (0.5 per completed month for new joiners)
  Short leave:                   3 hours per month, 2 hours per request
  Sub-day thresholds:            90 and 270 minutes
  Business hours:                08:00 - 17:00

EXAMPLE:
  policy := leave.DefaultPolicy()
  policy.SickLeaveDays = decimal.NewFromInt(10) // copy, not shared
  engine := leave.NewEngine(policy)

SEE ALSO:
  - entitlement.go: Uses the quarter table and standard allotments
  - units.go: Uses thresholds and business hours
  - balance.go: Uses short-leave limits
*/
package leave

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Policy is passed by value. The quarter table is an array so copies never alias.
type Policy struct {
	AnnualLeaveByQuarter  [4]decimal.Decimal
	LongTermAnnualDays    decimal.Decimal
	SickLeaveDays         decimal.Decimal
	CasualLeaveDays       decimal.Decimal
	CasualAccrualPerMonth decimal.Decimal
	CasualRoundPlaces     int32

	ShortLeaveMonthlyHours decimal.Decimal
	ShortLeaveRequestHours decimal.Decimal

	// Single time-range thresholds: <= NoDeductionMinutes costs nothing,
	// <= HalfDayMaxMinutes costs half a day, anything longer a full day.
	NoDeductionMinutes int
	HalfDayMaxMinutes  int

	// Per-date short entries below this many minutes cost half a day.
	GranularShortMinutes int

	BusinessStart generic.ClockTime
	BusinessEnd   generic.ClockTime
}

// DefaultPolicy returns the standard company policy.
func DefaultPolicy() Policy {
	return Policy{
		AnnualLeaveByQuarter: [4]decimal.Decimal{
			decimal.NewFromInt(14),
			decimal.NewFromInt(10),
			decimal.NewFromInt(7),
			decimal.NewFromInt(4),
		},
		LongTermAnnualDays:    decimal.NewFromInt(14),
		SickLeaveDays:         decimal.NewFromInt(7),
		CasualLeaveDays:       decimal.NewFromInt(7),
		CasualAccrualPerMonth: decimal.NewFromFloat(0.5),
		CasualRoundPlaces:     2,

		ShortLeaveMonthlyHours: decimal.NewFromInt(3),
		ShortLeaveRequestHours: decimal.NewFromInt(2),

		NoDeductionMinutes:   90,
		HalfDayMaxMinutes:    270,
		GranularShortMinutes: 90,

		BusinessStart: generic.NewClockTime(8, 0),
		BusinessEnd:   generic.NewClockTime(17, 0),
	}
}

// AnnualLeaveForQuarter returns the table entry for quarter 1..4, zero otherwise.
func (p Policy) AnnualLeaveForQuarter(quarter int) decimal.Decimal {
	if quarter < 1 || quarter > len(p.AnnualLeaveByQuarter) {
		return decimal.Zero
	}
	return p.AnnualLeaveByQuarter[quarter-1]
}

// Validate rejects policies the engine cannot apply consistently.
func (p Policy) Validate() error {
	for i, d := range p.AnnualLeaveByQuarter {
		if d.IsNegative() {
			return fmt.Errorf("annual leave for Q%d must not be negative", i+1)
		}
	}
	for name, d := range map[string]decimal.Decimal{
		"long-term annual leave":   p.LongTermAnnualDays,
		"sick leave":               p.SickLeaveDays,
		"casual leave":             p.CasualLeaveDays,
		"casual accrual per month": p.CasualAccrualPerMonth,
	} {
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if !p.ShortLeaveRequestHours.IsPositive() || !p.ShortLeaveMonthlyHours.IsPositive() {
		return fmt.Errorf("short leave limits must be positive")
	}
	if p.ShortLeaveRequestHours.GreaterThan(p.ShortLeaveMonthlyHours) {
		return fmt.Errorf("short leave per-request cap %s exceeds monthly limit %s",
			p.ShortLeaveRequestHours, p.ShortLeaveMonthlyHours)
	}
	if p.NoDeductionMinutes < 0 || p.HalfDayMaxMinutes <= p.NoDeductionMinutes {
		return fmt.Errorf("sub-day thresholds must satisfy 0 <= %d < %d", p.NoDeductionMinutes, p.HalfDayMaxMinutes)
	}
	if !p.BusinessStart.Before(p.BusinessEnd) {
		return fmt.Errorf("business hours %s - %s are empty", p.BusinessStart, p.BusinessEnd)
	}
	return nil
}

// =============================================================================
// ENGINE - The three calculators sharing one policy
// =============================================================================

type Engine struct {
	Policy     Policy
	Calculator *Calculator
	Converter  *Converter
	Reducer    *Reducer
}

func NewEngine(p Policy) *Engine {
	return &Engine{
		Policy:     p,
		Calculator: NewCalculator(p),
		Converter:  NewConverter(p),
		Reducer:    NewReducer(p),
	}
}
