/*
Package generic provides the domain-agnostic building blocks of the leave engine.

PURPOSE:
  This package contains the value types every leave calculation is expressed in:
  quantities with units, calendar dates, wall-clock times, inclusive periods and
  the error kinds the engine reports. It knows nothing about leave types,
  tenure tiers or approval workflows.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 4.5 days, 2 hours)
  - Unit:   Days for day-based leave, hours for short leave

DESIGN PRINCIPLES:
  1. Immutability: Every operation returns a new value
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. Explicit inputs: Nothing in this package reads the system clock

USAGE:
  used := generic.NewAmount(1.5, generic.UnitDays)
  used.String() // "1.5 days"

SEE ALSO:
  - time.go: TimePoint and ClockTime
  - period.go: Inclusive date ranges
  - errors.go: Error kinds reported by the engine
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func (a Amount) IsNegative() bool { return a.Value.IsNegative() }
func (a Amount) IsZero() bool     { return a.Value.IsZero() }
func (a Amount) IsPositive() bool { return a.Value.IsPositive() }

func (a Amount) String() string { return a.Value.String() + " " + string(a.Unit) }

// MaxZero returns d, or zero if d is negative.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
