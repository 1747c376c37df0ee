/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Dates are YYYY-MM-DD,
  times are HH:MM, and every unit or balance is a decimal string so 0.5-day
  steps never pass through a float.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags. Handlers run the validator
  before parsing dates and decimals, then let the engine report domain errors.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// POLICY
// =============================================================================

type PolicyDTO struct {
	AnnualLeaveByQuarter   []string `json:"annualLeaveByQuarter"`
	LongTermAnnualDays     string   `json:"longTermAnnualDays"`
	SickLeaveDays          string   `json:"sickLeaveDays"`
	CasualLeaveDays        string   `json:"casualLeaveDays"`
	CasualAccrualPerMonth  string   `json:"casualAccrualPerMonth"`
	ShortLeaveMonthlyHours string   `json:"shortLeaveMonthlyHours"`
	ShortLeaveRequestHours string   `json:"shortLeaveRequestHours"`
	NoDeductionMinutes     int      `json:"noDeductionMinutes"`
	HalfDayMaxMinutes      int      `json:"halfDayMaxMinutes"`
	GranularShortMinutes   int      `json:"granularShortMinutes"`
	BusinessStart          string   `json:"businessStart"`
	BusinessEnd            string   `json:"businessEnd"`
	LeaveTypes             []string `json:"leaveTypes"`
}

func toPolicyDTO(p leave.Policy) PolicyDTO {
	quarters := make([]string, len(p.AnnualLeaveByQuarter))
	for i, d := range p.AnnualLeaveByQuarter {
		quarters[i] = d.String()
	}
	types := make([]string, 0, len(leave.Types()))
	for _, t := range leave.Types() {
		types = append(types, string(t))
	}
	return PolicyDTO{
		AnnualLeaveByQuarter:   quarters,
		LongTermAnnualDays:     p.LongTermAnnualDays.String(),
		SickLeaveDays:          p.SickLeaveDays.String(),
		CasualLeaveDays:        p.CasualLeaveDays.String(),
		CasualAccrualPerMonth:  p.CasualAccrualPerMonth.String(),
		ShortLeaveMonthlyHours: p.ShortLeaveMonthlyHours.String(),
		ShortLeaveRequestHours: p.ShortLeaveRequestHours.String(),
		NoDeductionMinutes:     p.NoDeductionMinutes,
		HalfDayMaxMinutes:      p.HalfDayMaxMinutes,
		GranularShortMinutes:   p.GranularShortMinutes,
		BusinessStart:          p.BusinessStart.String(),
		BusinessEnd:            p.BusinessEnd.String(),
		LeaveTypes:             types,
	}
}

// =============================================================================
// CALCULATOR ENDPOINTS
// =============================================================================

type EntitlementRequest struct {
	HireDate string `json:"hireDate" validate:"required"`
	Year     int    `json:"year" validate:"required,min=1,max=9999"`
}

type EntitlementDTO struct {
	Year            int    `json:"year"`
	Condition       string `json:"condition"`
	AnnualLeave     string `json:"annualLeave"`
	SickLeave       string `json:"sickLeave"`
	CasualLeave     string `json:"casualLeave"`
	CompletedMonths int    `json:"completedMonths"`
	JoinQuarter     int    `json:"joinQuarter"`
}

func toEntitlementDTO(e leave.Entitlement) EntitlementDTO {
	return EntitlementDTO{
		Year:            e.Year,
		Condition:       string(e.Condition),
		AnnualLeave:     e.AnnualLeave.String(),
		SickLeave:       e.SickLeave.String(),
		CasualLeave:     e.CasualLeave.String(),
		CompletedMonths: e.CompletedMonths,
		JoinQuarter:     e.JoinQuarter,
	}
}

type DateRangeRequest struct {
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
}

type TimeRangeRequest struct {
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

type DayConfigRequest struct {
	Type      string `json:"type" validate:"required,oneof=full half not-applicable short"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

type GranularRequest struct {
	StartDate string                      `json:"startDate" validate:"required"`
	EndDate   string                      `json:"endDate" validate:"required"`
	Days      map[string]DayConfigRequest `json:"days" validate:"dive"`
}

type UnitsResponse struct {
	Units string `json:"units"`
	Unit  string `json:"unit"`
}

type ShortLeaveValidationRequest struct {
	RequestedHours     string `json:"requestedHours" validate:"required"`
	UsedHoursThisMonth string `json:"usedHoursThisMonth"`
}

type ShortLeaveValidationDTO struct {
	Valid                   bool     `json:"isValid"`
	Errors                  []string `json:"errors"`
	RemainingHoursThisMonth string   `json:"remainingHoursThisMonth"`
}

type CrossUtilizationRequest struct {
	PrimaryType     string `json:"primaryType" validate:"required,oneof=annualLeave casualLeave"`
	PrimaryBalance  string `json:"primaryBalance" validate:"required"`
	FallbackBalance string `json:"fallbackBalance" validate:"required"`
	Required        string `json:"required" validate:"required"`
}

type CrossUtilizationDTO struct {
	PrimaryType   string `json:"primaryType"`
	FallbackType  string `json:"fallbackType"`
	Required      string `json:"required"`
	Primary       string `json:"primaryBalance"`
	Fallback      string `json:"fallbackBalance"`
	FromPrimary   string `json:"fromPrimary"`
	CrossUtilized string `json:"crossUtilized"`
	NoPay         bool   `json:"noPay"`
}

func toCrossUtilizationDTO(cu *leave.CrossUtilization) *CrossUtilizationDTO {
	if cu == nil {
		return nil
	}
	return &CrossUtilizationDTO{
		PrimaryType:   string(cu.PrimaryType),
		FallbackType:  string(cu.FallbackType),
		Required:      cu.Required.String(),
		Primary:       cu.Primary.String(),
		Fallback:      cu.Fallback.String(),
		FromPrimary:   cu.FromPrimary.String(),
		CrossUtilized: cu.CrossUtilized.String(),
		NoPay:         cu.NoPay,
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type CreateEmployeeRequest struct {
	ID       string            `json:"id,omitempty" validate:"omitempty,max=64"`
	Name     string            `json:"name" validate:"required,max=200"`
	HireDate string            `json:"hireDate" validate:"required"`
	Gender   string            `json:"gender" validate:"omitempty,oneof=female male f m Female Male"`
	Balances map[string]string `json:"balances,omitempty"`
}

type EmployeeDTO struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	HireDate string            `json:"hireDate"`
	Gender   string            `json:"gender,omitempty"`
	Balances map[string]string `json:"balances"`
	NoPay    bool              `json:"noPay"`
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:       e.ID,
		Name:     e.Name,
		HireDate: e.HireDate.String(),
		Gender:   string(e.Gender),
		Balances: balancesDTO(e.Balances),
		NoPay:    e.NoPay,
	}
}

type BalanceDTO struct {
	EmployeeID               string            `json:"employeeId"`
	Year                     int               `json:"year"`
	AsOf                     string            `json:"asOf"`
	Entitlement              EntitlementDTO    `json:"entitlement"`
	Remaining                map[string]string `json:"remaining"`
	Used                     map[string]string `json:"used"`
	ShortLeaveUsedHours      string            `json:"shortLeaveUsedHours"`
	ShortLeaveRemainingHours string            `json:"shortLeaveRemainingHours"`
}

func toBalanceDTO(employeeID string, b leave.Balance) BalanceDTO {
	return BalanceDTO{
		EmployeeID:               employeeID,
		Year:                     b.Year,
		AsOf:                     b.AsOf.String(),
		Entitlement:              toEntitlementDTO(b.Entitlement),
		Remaining:                balancesDTO(b.Remaining),
		Used:                     balancesDTO(b.Used),
		ShortLeaveUsedHours:      b.ShortLeaveUsedHours.String(),
		ShortLeaveRemainingHours: b.ShortLeaveRemainingHours.String(),
	}
}

type RefreshResponse struct {
	Employee EmployeeDTO `json:"employee"`
	Balance  BalanceDTO  `json:"balance"`
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

type SubmitRequestDTO struct {
	Type      string `json:"type" validate:"required"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Units     string `json:"units,omitempty"`
	Reason    string `json:"reason,omitempty" validate:"max=1000"`
}

type RequestDTO struct {
	ID           string     `json:"id"`
	EmployeeID   string     `json:"employeeId"`
	Type         string     `json:"type"`
	StartDate    string     `json:"startDate"`
	EndDate      string     `json:"endDate"`
	StartTime    string     `json:"startTime,omitempty"`
	EndTime      string     `json:"endTime,omitempty"`
	Status       string     `json:"status"`
	Units        string     `json:"units"`
	Unit         string     `json:"unit"`
	Reason       string     `json:"reason,omitempty"`
	AppliedAt    time.Time  `json:"appliedAt"`
	Processed    bool       `json:"processed"`
	DecidedBy    string     `json:"decidedBy,omitempty"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	DecisionNote string     `json:"decisionNote,omitempty"`
}

func toRequestDTO(r leave.Request) RequestDTO {
	dto := RequestDTO{
		ID:           r.ID,
		EmployeeID:   r.EmployeeID,
		Type:         string(r.Type),
		StartDate:    r.StartDate.String(),
		EndDate:      r.EndDate.String(),
		Status:       string(r.Status),
		Units:        r.Units.Value.String(),
		Unit:         string(r.Units.Unit),
		Reason:       r.Reason,
		AppliedAt:    r.AppliedAt,
		Processed:    r.Processed,
		DecidedBy:    r.DecidedBy,
		DecidedAt:    r.DecidedAt,
		DecisionNote: r.DecisionNote,
	}
	if r.StartTime != nil {
		dto.StartTime = r.StartTime.String()
	}
	if r.EndTime != nil {
		dto.EndTime = r.EndTime.String()
	}
	return dto
}

type DecisionRequest struct {
	Actor string `json:"actor" validate:"required,max=200"`
	Note  string `json:"note,omitempty" validate:"max=1000"`
}

type ForwardRequest struct {
	Actor string `json:"actor" validate:"required,max=200"`
	To    string `json:"to" validate:"required,oneof='Pending Department Approval' 'Pending HR Approval'"`
}

type DeductionDTO struct {
	Type             string               `json:"type"`
	Units            string               `json:"units"`
	Before           map[string]string    `json:"before"`
	After            map[string]string    `json:"after"`
	CrossUtilization *CrossUtilizationDTO `json:"crossUtilization,omitempty"`
	WentNegative     bool                 `json:"wentNegative"`
	NoPay            bool                 `json:"noPay"`
}

func toDeductionDTO(d *leave.Deduction) *DeductionDTO {
	if d == nil {
		return nil
	}
	return &DeductionDTO{
		Type:             string(d.Type),
		Units:            d.Units.Value.String(),
		Before:           balancesDTO(d.Before),
		After:            balancesDTO(d.After),
		CrossUtilization: toCrossUtilizationDTO(d.CrossUtilization),
		WentNegative:     d.WentNegative,
		NoPay:            d.NoPay,
	}
}

type ReviewResponse struct {
	Route     string        `json:"route"`
	Next      string        `json:"nextStatus"`
	Deduction *DeductionDTO `json:"deduction"`
}

type ApprovalResponse struct {
	Request          RequestDTO    `json:"request"`
	Employee         EmployeeDTO   `json:"employee"`
	Deduction        *DeductionDTO `json:"deduction,omitempty"`
	NoPayChange      string        `json:"noPayChange"`
	AlreadyProcessed bool          `json:"alreadyProcessed"`
}

// ErrorResponse is returned for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

func balancesDTO(b leave.Balances) map[string]string {
	out := make(map[string]string, len(b))
	for _, t := range b.Keys() {
		out[string(t)] = b[t].String()
	}
	return out
}

func parseBalances(raw map[string]string) (leave.Balances, error) {
	if raw == nil {
		return nil, nil
	}
	b := make(leave.Balances, len(raw))
	for k, v := range raw {
		t, err := leave.ParseType(k)
		if err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", k, err)
		}
		b[t] = d
	}
	return b, nil
}

func parseOptionalClock(s string) (*generic.ClockTime, error) {
	if s == "" {
		return nil, nil
	}
	c, err := generic.ParseClock(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
