/*
units.go - Converting dates and times into leave units

PURPOSE:
  Answers "how much does this request cost?" in leave units: days for
  day-based leave, hours for short leave.

RULES:
  Date ranges (WorkingDaysBetween), inclusive:
    Sunday 0, Saturday 0.5, every other day 1

  Single time range on one day (TimeRangeToUnits):
    <= 90 min  -> 0
    91-270 min -> 0.5
    > 270 min  -> 1
    Both ends must lie within business hours (08:00 - 17:00).

  Per-date configuration (GranularUnits):
    full 1, half 0.5, not-applicable 0, dates not configured 1
    short with times: under 90 min -> 0.5, otherwise 0

  The two short/partial-day rules disagree and stay separate operations until
  product confirms which one is intended. See DESIGN.md before merging them.

SEE ALSO:
  - policy.go: Thresholds and business hours
  - balance.go: Consumes the units computed here
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

var (
	zero = decimal.Zero
	half = decimal.NewFromFloat(0.5)
	one  = decimal.NewFromInt(1)
)

type Converter struct {
	policy Policy
}

func NewConverter(p Policy) *Converter {
	return &Converter{policy: p}
}

// =============================================================================
// DATE RANGES
// =============================================================================

// DayWeight is the cost of one calendar day in a plain date range.
func DayWeight(day generic.TimePoint) decimal.Decimal {
	switch day.Weekday() {
	case time.Sunday:
		return zero
	case time.Saturday:
		return half
	default:
		return one
	}
}

// WorkingDaysBetween sums DayWeight over [start, end].
func (c *Converter) WorkingDaysBetween(start, end generic.TimePoint) (decimal.Decimal, error) {
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return zero, err
	}
	total := zero
	for _, day := range period.Days() {
		total = total.Add(DayWeight(day))
	}
	return total, nil
}

// =============================================================================
// SINGLE TIME RANGE
// =============================================================================

// TimeRangeToUnits converts a same-day time range into 0, 0.5 or 1 unit.
func (c *Converter) TimeRangeToUnits(start, end generic.ClockTime) (decimal.Decimal, error) {
	minutes, err := c.rangeMinutes(start, end)
	if err != nil {
		return zero, err
	}
	if err := c.checkBusinessHours(start, end); err != nil {
		return zero, err
	}
	switch {
	case minutes <= c.policy.NoDeductionMinutes:
		return zero, nil
	case minutes <= c.policy.HalfDayMaxMinutes:
		return half, nil
	default:
		return one, nil
	}
}

func (c *Converter) rangeMinutes(start, end generic.ClockTime) (int, error) {
	minutes := generic.MinutesBetween(start, end)
	if minutes <= 0 {
		return 0, &generic.InvalidRangeError{From: start.String(), To: end.String(), Reason: "end time must be after start time"}
	}
	return minutes, nil
}

func (c *Converter) checkBusinessHours(start, end generic.ClockTime) error {
	for _, t := range []generic.ClockTime{start, end} {
		if t.Before(c.policy.BusinessStart) || t.After(c.policy.BusinessEnd) {
			return &generic.OutOfPolicyError{
				Rule:  "business_hours",
				Value: t.String(),
				Limit: c.policy.BusinessStart.String() + "-" + c.policy.BusinessEnd.String(),
			}
		}
	}
	return nil
}

// =============================================================================
// PER-DATE CONFIGURATION
// =============================================================================

type DayKind string

const (
	DayFull          DayKind = "full"
	DayHalf          DayKind = "half"
	DayNotApplicable DayKind = "not-applicable"
	DayShort         DayKind = "short"
)

// DayConfig says how one date of a multi-day request is taken.
type DayConfig struct {
	Kind      DayKind
	StartTime *generic.ClockTime
	EndTime   *generic.ClockTime
}

// DayConfigs is keyed by the date's YYYY-MM-DD form.
type DayConfigs map[string]DayConfig

// Set stores cfg for day.
func (d DayConfigs) Set(day generic.TimePoint, cfg DayConfig) { d[day.String()] = cfg }

// GranularUnits sums per-date costs over period. Dates without an entry count
// as full days.
func (c *Converter) GranularUnits(period generic.Period, configs DayConfigs) (decimal.Decimal, error) {
	if _, err := generic.NewPeriod(period.Start, period.End); err != nil {
		return zero, err
	}
	total := zero
	for _, day := range period.Days() {
		cfg, ok := configs[day.String()]
		if !ok {
			total = total.Add(one)
			continue
		}
		cost, err := c.dayCost(day, cfg)
		if err != nil {
			return zero, err
		}
		total = total.Add(cost)
	}
	return total, nil
}

func (c *Converter) dayCost(day generic.TimePoint, cfg DayConfig) (decimal.Decimal, error) {
	switch cfg.Kind {
	case DayFull:
		return one, nil
	case DayHalf:
		return half, nil
	case DayNotApplicable:
		return zero, nil
	case DayShort:
		if cfg.StartTime == nil || cfg.EndTime == nil {
			return zero, &generic.InvalidDateError{Input: day.String(), Reason: "short day needs start and end time"}
		}
		minutes, err := c.rangeMinutes(*cfg.StartTime, *cfg.EndTime)
		if err != nil {
			return zero, err
		}
		if minutes < c.policy.GranularShortMinutes {
			return half, nil
		}
		return zero, nil
	default:
		return zero, &generic.OutOfPolicyError{Rule: "day_kind", Value: fmt.Sprintf("%q on %s", cfg.Kind, day)}
	}
}

// =============================================================================
// REQUEST UNITS
// =============================================================================

// UnitsFor computes what a request costs:
//   - short leave: hours between start and end time, single day only
//   - any other type with times: TimeRangeToUnits, single day only
//   - otherwise: WorkingDaysBetween
func (c *Converter) UnitsFor(req Request) (generic.Amount, error) {
	period, err := req.Period()
	if err != nil {
		return generic.Amount{}, err
	}
	singleDay := period.Start.Equal(period.End)

	if req.Type == TypeShort {
		if !req.HasTimes() {
			return generic.Amount{}, &generic.InvalidDateError{Input: req.StartDate.String(), Reason: "short leave needs start and end time"}
		}
		if !singleDay {
			return generic.Amount{}, &generic.InvalidRangeError{From: period.Start.String(), To: period.End.String(), Reason: "short leave must be a single day"}
		}
		minutes, err := c.rangeMinutes(*req.StartTime, *req.EndTime)
		if err != nil {
			return generic.Amount{}, err
		}
		if err := c.checkBusinessHours(*req.StartTime, *req.EndTime); err != nil {
			return generic.Amount{}, err
		}
		hours := decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2)
		return generic.NewAmountFromDecimal(hours, generic.UnitHours), nil
	}

	if req.HasTimes() {
		if !singleDay {
			return generic.Amount{}, &generic.InvalidRangeError{From: period.Start.String(), To: period.End.String(), Reason: "times only apply to single-day requests"}
		}
		units, err := c.TimeRangeToUnits(*req.StartTime, *req.EndTime)
		if err != nil {
			return generic.Amount{}, err
		}
		return generic.NewAmountFromDecimal(units, generic.UnitDays), nil
	}

	days, err := c.WorkingDaysBetween(period.Start, period.End)
	if err != nil {
		return generic.Amount{}, err
	}
	return generic.NewAmountFromDecimal(days, generic.UnitDays), nil
}

// ResolveUnits returns what req will be charged. Without supplied units this
// is UnitsFor. Supplied units must be positive, in the type's unit, in half-day
// steps for day-based leave, and no more than UnitsFor allows.
func (c *Converter) ResolveUnits(req Request) (generic.Amount, error) {
	computed, err := c.UnitsFor(req)
	if err != nil {
		return generic.Amount{}, err
	}
	supplied := req.Units
	if supplied.IsZero() && supplied.Unit == "" {
		return computed, nil
	}
	if supplied.Unit == "" {
		supplied.Unit = req.Type.Unit()
	}
	if supplied.Unit != req.Type.Unit() {
		return generic.Amount{}, &generic.OutOfPolicyError{Rule: "unit", Value: string(supplied.Unit), Limit: string(req.Type.Unit())}
	}
	if !supplied.IsPositive() {
		return generic.Amount{}, &generic.InvalidRangeError{From: "0", To: supplied.Value.String(), Reason: "leave units must be positive"}
	}
	if supplied.Unit == generic.UnitDays && !supplied.Value.Mod(half).IsZero() {
		return generic.Amount{}, &generic.OutOfPolicyError{Rule: "half_day_steps", Value: supplied.Value.String() + " is not a multiple of " + half.String()}
	}
	if supplied.Value.GreaterThan(computed.Value) {
		return generic.Amount{}, &generic.OutOfPolicyError{Rule: "units_for_period", Value: supplied.Value.String(), Limit: computed.Value.String()}
	}
	return supplied, nil
}
