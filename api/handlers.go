/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine and the approval workflow via REST API. Handles
  HTTP request/response, JSON serialization and input validation, and
  delegates to the leave package.

ENDPOINTS:
  Policy & calculators (stateless):
    GET    /api/policy                      Active policy constants
    POST   /api/entitlements                Entitlement for hire date + year
    POST   /api/units/working-days          Units for a date range
    POST   /api/units/time-range            Units for a single-day time range
    POST   /api/units/granular              Units for per-date configuration
    POST   /api/short-leave/validate        Short-leave cap check
    POST   /api/cross-utilization           Annual/casual fallback preview

  Employees:
    POST   /api/employees                   Create employee (balances seeded)
    GET    /api/employees/{id}              Get employee with stored balances
    GET    /api/employees/{id}/balance      Computed balance (?year=)
    POST   /api/employees/{id}/balance/refresh  Write computed balance back

  Requests:
    POST   /api/employees/{id}/requests     Submit a leave request
    GET    /api/employees/{id}/requests     List requests (?year=)
    GET    /api/requests                    Review queue (?status=, default open)
    POST   /api/requests/{id}/review        Routing preview, no writes
    POST   /api/requests/{id}/forward       Move to department/HR approval
    POST   /api/requests/{id}/approve       Approve and deduct once
    POST   /api/requests/{id}/reject        Reject

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid dates/ranges, policy violations
  - 404: Employee or request not found
  - 409: Workflow transition not allowed
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The actor on decisions is taken from the request body.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers read directly, beside the approval service.
type Store interface {
	Ping(ctx context.Context) error
	ListByStatus(ctx context.Context, statuses ...leave.Status) ([]leave.Request, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *leave.ApprovalService
	Store    Store
	Logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler around the approval service.
func NewHandler(svc *leave.ApprovalService, store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:  svc,
		Store:    store,
		Logger:   logger,
		validate: validator.New(),
	}
}

func (h *Handler) engine() *leave.Engine { return h.Service.Engine() }

// =============================================================================
// POLICY & CALCULATORS
// =============================================================================

// GetPolicy returns the policy constants the engine runs with.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPolicyDTO(h.engine().Policy))
}

// CalculateEntitlement handles POST /api/entitlements.
func (h *Handler) CalculateEntitlement(w http.ResponseWriter, r *http.Request) {
	var req EntitlementRequest
	if !h.decode(w, r, &req) {
		return
	}
	hire, err := generic.ParseDate(req.HireDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	ent, err := h.engine().Calculator.Calculate(hire, req.Year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementDTO(ent))
}

// WorkingDays handles POST /api/units/working-days.
func (h *Handler) WorkingDays(w http.ResponseWriter, r *http.Request) {
	var req DateRangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	units, err := h.engine().Converter.WorkingDaysBetween(period.Start, period.End)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UnitsResponse{Units: units.String(), Unit: string(generic.UnitDays)})
}

// TimeRange handles POST /api/units/time-range.
func (h *Handler) TimeRange(w http.ResponseWriter, r *http.Request) {
	var req TimeRangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := generic.ParseClock(req.StartTime)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	end, err := generic.ParseClock(req.EndTime)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	units, err := h.engine().Converter.TimeRangeToUnits(start, end)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UnitsResponse{Units: units.String(), Unit: string(generic.UnitDays)})
}

// Granular handles POST /api/units/granular.
func (h *Handler) Granular(w http.ResponseWriter, r *http.Request) {
	var req GranularRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	configs := leave.DayConfigs{}
	for key, day := range req.Days {
		date, err := generic.ParseDate(key)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		cfg := leave.DayConfig{Kind: leave.DayKind(day.Type)}
		if cfg.StartTime, err = parseOptionalClock(day.StartTime); err != nil {
			h.writeDomainError(w, err)
			return
		}
		if cfg.EndTime, err = parseOptionalClock(day.EndTime); err != nil {
			h.writeDomainError(w, err)
			return
		}
		configs.Set(date, cfg)
	}

	units, err := h.engine().Converter.GranularUnits(period, configs)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UnitsResponse{Units: units.String(), Unit: string(generic.UnitDays)})
}

// ValidateShortLeave handles POST /api/short-leave/validate.
func (h *Handler) ValidateShortLeave(w http.ResponseWriter, r *http.Request) {
	var req ShortLeaveValidationRequest
	if !h.decode(w, r, &req) {
		return
	}
	requested, err := parseDecimal("requestedHours", req.RequestedHours)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid number", err)
		return
	}
	used := decimal.Zero
	if req.UsedHoursThisMonth != "" {
		if used, err = parseDecimal("usedHoursThisMonth", req.UsedHoursThisMonth); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid number", err)
			return
		}
	}

	v := h.engine().Reducer.ValidateShortLeave(requested, used)
	errs := v.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, ShortLeaveValidationDTO{
		Valid:                   v.Valid,
		Errors:                  errs,
		RemainingHoursThisMonth: v.RemainingHoursThisMonth.String(),
	})
}

// CrossUtilize handles POST /api/cross-utilization.
func (h *Handler) CrossUtilize(w http.ResponseWriter, r *http.Request) {
	var req CrossUtilizationRequest
	if !h.decode(w, r, &req) {
		return
	}
	values := make([]decimal.Decimal, 3)
	for i, f := range []struct{ name, raw string }{
		{"primaryBalance", req.PrimaryBalance},
		{"fallbackBalance", req.FallbackBalance},
		{"required", req.Required},
	} {
		d, err := parseDecimal(f.name, f.raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid number", err)
			return
		}
		values[i] = d
	}

	cu, err := h.engine().Reducer.CrossUtilize(leave.Type(req.PrimaryType), values[0], values[1], values[2])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCrossUtilizationDTO(&cu))
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// CreateEmployee handles POST /api/employees.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	hire, err := generic.ParseDate(req.HireDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	balances, err := parseBalances(req.Balances)
	if err != nil {
		if generic.IsClientError(err) {
			h.writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid balances", err)
		return
	}

	emp, err := h.Service.CreateEmployee(r.Context(), leave.Employee{
		ID:       req.ID,
		Name:     req.Name,
		HireDate: hire,
		Gender:   leave.ParseGender(req.Gender),
		Balances: balances,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetEmployee handles GET /api/employees/{id}.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Service.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// GetBalance handles GET /api/employees/{id}/balance?year=YYYY.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	year, ok := h.year(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	bal, err := h.Service.Balance(r.Context(), id, year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(id, bal))
}

// RefreshBalance handles POST /api/employees/{id}/balance/refresh?year=YYYY.
func (h *Handler) RefreshBalance(w http.ResponseWriter, r *http.Request) {
	year, ok := h.year(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	emp, bal, err := h.Service.RefreshBalances(r.Context(), id, year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Employee: toEmployeeDTO(emp), Balance: toBalanceDTO(id, bal)})
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// SubmitRequest handles POST /api/employees/{id}/requests.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	lr := leave.Request{
		EmployeeID: chi.URLParam(r, "id"),
		Type:       leave.Type(req.Type),
		StartDate:  period.Start,
		EndDate:    period.End,
		Reason:     req.Reason,
	}
	if lr.StartTime, err = parseOptionalClock(req.StartTime); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if lr.EndTime, err = parseOptionalClock(req.EndTime); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if req.Units != "" {
		units, err := parseDecimal("units", req.Units)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid number", err)
			return
		}
		lr.Units = generic.NewAmountFromDecimal(units, lr.Type.Unit())
	}

	saved, err := h.Service.Submit(r.Context(), lr)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(saved))
}

// ListRequests handles GET /api/employees/{id}/requests?year=YYYY.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	year, ok := h.year(w, r)
	if !ok {
		return
	}
	requests, err := h.Service.Requests(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]RequestDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListQueue handles GET /api/requests. status is a comma separated list and
// defaults to the statuses still awaiting a decision.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	statuses := []leave.Status{leave.StatusPending, leave.StatusPendingDepartment, leave.StatusPendingHR}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = statuses[:0]
		for _, part := range strings.Split(raw, ",") {
			st, ok := leave.ParseStatus(part)
			if !ok {
				writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("unknown status %q", part))
				return
			}
			statuses = append(statuses, st)
		}
	}

	requests, err := h.Store.ListByStatus(r.Context(), statuses...)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]RequestDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, out)
}

// ReviewRequest handles POST /api/requests/{id}/review.
func (h *Handler) ReviewRequest(w http.ResponseWriter, r *http.Request) {
	routing, err := h.Service.Review(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReviewResponse{
		Route:     string(routing.Route),
		Next:      string(routing.Next),
		Deduction: toDeductionDTO(&routing.Deduction),
	})
}

// ForwardRequest handles POST /api/requests/{id}/forward.
func (h *Handler) ForwardRequest(w http.ResponseWriter, r *http.Request) {
	var req ForwardRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Service.Forward(r.Context(), chi.URLParam(r, "id"), leave.Status(req.To), req.Actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(out))
}

// ApproveRequest handles POST /api/requests/{id}/approve.
// Approving an already processed request returns 200 with alreadyProcessed set.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Service.Approve(r.Context(), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApprovalResponse{
		Request:          toRequestDTO(res.Request),
		Employee:         toEmployeeDTO(res.Employee),
		Deduction:        toDeductionDTO(res.Deduction),
		NoPayChange:      res.NoPayChange.String(),
		AlreadyProcessed: res.AlreadyProcessed,
	})
}

// RejectRequest handles POST /api/requests/{id}/reject.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Service.Reject(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Note)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(out))
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// year reads ?year=, defaulting to the current year.
func (h *Handler) year(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return h.Service.Today().Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "Invalid year", &generic.InvalidDateError{Input: raw, Reason: "year must be 1-9999"})
		return 0, false
	}
	return year, true
}

// writeDomainError maps engine and store errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, "Transition not allowed", err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, errorTitle(err), err)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func errorTitle(err error) string {
	switch {
	case errors.Is(err, generic.ErrInvalidDate):
		return "Invalid date"
	case errors.Is(err, generic.ErrInvalidRange):
		return "Invalid range"
	case errors.Is(err, generic.ErrOutOfPolicy):
		return "Out of policy"
	case errors.Is(err, generic.ErrUnknownLeaveType):
		return "Unknown leave type"
	default:
		return "Bad request"
	}
}

func parsePeriod(start, end string) (generic.Period, error) {
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Period{}, err
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.NewPeriod(s, e)
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New(field + ": not a decimal number")
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
