package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DATE PARSING
// =============================================================================

func TestParseDate_AnchorsAtNoon(t *testing.T) {
	tp, err := generic.ParseDate("2024-03-31")
	require.NoError(t, err)

	assert.Equal(t, 12, tp.Time.Hour())
	assert.Equal(t, time.UTC, tp.Time.Location())
	assert.Equal(t, "2024-03-31", tp.String())
}

func TestParseDate_TimestampKeepsCalendarDate(t *testing.T) {
	// GIVEN: A late-evening timestamp in a zone east of UTC
	// WHEN: Parsed
	// THEN: The date is the local calendar date, not the UTC one
	tp, err := generic.ParseDate("2024-04-01T00:30:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", tp.String())
}

func TestParseDate_Invalid(t *testing.T) {
	for _, input := range []string{"", "2024-02-30", "31/03/2024", "yesterday"} {
		_, err := generic.ParseDate(input)
		require.Error(t, err, input)
		assert.True(t, errors.Is(err, generic.ErrInvalidDate), input)

		var dateErr *generic.InvalidDateError
		assert.ErrorAs(t, err, &dateErr)
	}
}

func TestParseClock(t *testing.T) {
	c, err := generic.ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 510, c.Minutes())
	assert.Equal(t, "08:30", c.String())

	_, err = generic.ParseClock("25:00")
	assert.ErrorIs(t, err, generic.ErrInvalidDate)
}

func TestMinutesBetween(t *testing.T) {
	assert.Equal(t, 240, generic.MinutesBetween(generic.NewClockTime(8, 30), generic.NewClockTime(12, 30)))
	assert.Equal(t, -30, generic.MinutesBetween(generic.NewClockTime(9, 0), generic.NewClockTime(8, 30)))
}

// =============================================================================
// PERIODS
// =============================================================================

func TestNewPeriod_EndBeforeStart(t *testing.T) {
	_, err := generic.NewPeriod(generic.MustParseDate("2024-05-10"), generic.MustParseDate("2024-05-09"))
	assert.ErrorIs(t, err, generic.ErrInvalidRange)
}

func TestPeriod_DaysInclusive(t *testing.T) {
	p, err := generic.NewPeriod(generic.MustParseDate("2024-02-27"), generic.MustParseDate("2024-03-01"))
	require.NoError(t, err)

	days := p.Days()
	require.Len(t, days, 4) // leap year: 27, 28, 29, 1
	assert.Equal(t, "2024-02-29", days[2].String())
}

func TestMonthPeriod(t *testing.T) {
	p := generic.MonthPeriod(generic.MustParseDate("2024-02-14"))
	assert.Equal(t, "2024-02-01", p.Start.String())
	assert.Equal(t, "2024-02-29", p.End.String())
	assert.True(t, p.Contains(generic.MustParseDate("2024-02-29")))
	assert.False(t, p.Contains(generic.MustParseDate("2024-03-01")))
}

// =============================================================================
// AMOUNTS
// =============================================================================

func TestAmount(t *testing.T) {
	a := generic.NewAmountFromDecimal(decimal.NewFromFloat(-1.5), generic.UnitDays)
	assert.True(t, a.IsNegative())
	assert.False(t, a.IsPositive())
	assert.Equal(t, "-1.5 days", a.String())
	assert.True(t, generic.NewAmount(0, generic.UnitHours).IsZero())
}

func TestMaxZero(t *testing.T) {
	assert.True(t, generic.MaxZero(decimal.NewFromInt(-2)).IsZero())
	assert.True(t, generic.MaxZero(decimal.NewFromFloat(0.5)).Equal(decimal.NewFromFloat(0.5)))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, generic.IsClientError(&generic.OutOfPolicyError{Rule: "business_hours"}))
	assert.True(t, generic.IsClientError(&generic.UnknownLeaveTypeError{Key: "x"}))
	assert.True(t, generic.IsConflict(&generic.TransitionError{From: "Approved", To: "Rejected"}))
	assert.True(t, generic.IsNotFound(generic.ErrNotFound))
	assert.False(t, generic.IsClientError(generic.ErrNotFound))
}
