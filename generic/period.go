package generic

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is the inclusive range [Start, End].
//
// Examples:
//   - Calendar year 2025: Jan 1 - Dec 31
//   - A leave request: its start date through its end date
//   - The short-leave window: first to last day of the evaluation month
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates the range. End before Start is an InvalidRangeError.
func NewPeriod(start, end TimePoint) (Period, error) {
	if start.IsZero() {
		return Period{}, &InvalidDateError{Input: "", Reason: "missing start date"}
	}
	if end.IsZero() {
		return Period{}, &InvalidDateError{Input: "", Reason: "missing end date"}
	}
	if end.Before(start) {
		return Period{}, &InvalidRangeError{From: start.String(), To: end.String(), Reason: "end before start"}
	}
	return Period{Start: start, End: end}, nil
}

// YearPeriod returns Jan 1 - Dec 31 of year.
func YearPeriod(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}

// MonthPeriod returns the calendar month containing tp.
func MonthPeriod(tp TimePoint) Period {
	return Period{Start: StartOfMonth(tp.Year(), tp.Month()), End: EndOfMonth(tp.Year(), tp.Month())}
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
