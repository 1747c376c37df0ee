/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Stateless calculator endpoints and their error statuses
- Employee creation and balance lookups
- Submit / approve / reject flow, including double approval
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/metrics"
	"github.com/warp/leave-engine/store/sqlite"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zaptest.NewLogger(t)
	m := metrics.New()
	seq := 0
	svc := leave.NewApprovalService(store, leave.NewEngine(leave.DefaultPolicy()),
		leave.WithLogger(log),
		leave.WithObserver(m),
		leave.WithClock(func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }),
		leave.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return NewRouter(NewHandler(svc, store, log), RouterOptions{Metrics: m})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// =============================================================================
// CALCULATOR ENDPOINTS
// =============================================================================

func TestGetPolicy(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/policy", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[PolicyDTO](t, rec)
	assert.Equal(t, []string{"14", "10", "7", "4"}, p.AnnualLeaveByQuarter)
	assert.Equal(t, "3", p.ShortLeaveMonthlyHours)
	assert.Equal(t, 270, p.HalfDayMaxMinutes)
	assert.Equal(t, "08:00", p.BusinessStart)
}

func TestCalculateEntitlement(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/entitlements", EntitlementRequest{HireDate: "2024-03-25", Year: 2024})

	require.Equal(t, http.StatusOK, rec.Code)
	ent := decodeBody[EntitlementDTO](t, rec)
	assert.Equal(t, "A", ent.Condition)
	assert.Equal(t, "4.5", ent.CasualLeave)
	assert.Equal(t, "0", ent.AnnualLeave)
}

func TestCalculateEntitlement_BadInput(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/entitlements", EntitlementRequest{HireDate: "25/03/2024", Year: 2024})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid date", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, srv, http.MethodPost, "/api/entitlements", map[string]any{"hireDate": "2024-03-25"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation failed", decodeBody[ErrorResponse](t, rec).Error)
}

func TestUnitEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/units/working-days", DateRangeRequest{StartDate: "2024-06-03", EndDate: "2024-06-09"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5.5", decodeBody[UnitsResponse](t, rec).Units)

	rec = do(t, srv, http.MethodPost, "/api/units/time-range", TimeRangeRequest{StartTime: "08:30", EndTime: "12:30"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.5", decodeBody[UnitsResponse](t, rec).Units)

	rec = do(t, srv, http.MethodPost, "/api/units/time-range", TimeRangeRequest{StartTime: "07:00", EndTime: "12:30"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Out of policy", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, srv, http.MethodPost, "/api/units/granular", GranularRequest{
		StartDate: "2024-06-03",
		EndDate:   "2024-06-05",
		Days: map[string]DayConfigRequest{
			"2024-06-03": {Type: "half"},
			"2024-06-04": {Type: "short", StartTime: "09:00", EndTime: "10:00"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", decodeBody[UnitsResponse](t, rec).Units)
}

func TestShortLeaveAndCrossUtilization(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/short-leave/validate", ShortLeaveValidationRequest{RequestedHours: "2", UsedHoursThisMonth: "2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[ShortLeaveValidationDTO](t, rec).Valid)

	rec = do(t, srv, http.MethodPost, "/api/short-leave/validate", ShortLeaveValidationRequest{RequestedHours: "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeBody[ShortLeaveValidationDTO](t, rec)
	assert.True(t, v.Valid)
	assert.Equal(t, "2", v.RemainingHoursThisMonth)

	rec = do(t, srv, http.MethodPost, "/api/cross-utilization", CrossUtilizationRequest{
		PrimaryType: "annualLeave", PrimaryBalance: "1", FallbackBalance: "5", Required: "3",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	cu := decodeBody[CrossUtilizationDTO](t, rec)
	assert.Equal(t, "0", cu.Primary)
	assert.Equal(t, "3", cu.Fallback)
	assert.Equal(t, "2", cu.CrossUtilized)
}

// =============================================================================
// WORKFLOW
// =============================================================================

func TestRequestLifecycle(t *testing.T) {
	srv := newTestServer(t)

	// GIVEN: A long-term employee
	rec := do(t, srv, http.MethodPost, "/api/employees", CreateEmployeeRequest{Name: "Ada", HireDate: "2020-01-10", Gender: "female"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decodeBody[EmployeeDTO](t, rec)
	assert.Equal(t, "14", emp.Balances["annualLeave"])

	// WHEN: A request is submitted and approved twice
	rec = do(t, srv, http.MethodPost, "/api/employees/"+emp.ID+"/requests", SubmitRequestDTO{
		Type: "annualLeave", StartDate: "2024-06-03", EndDate: "2024-06-05", Reason: "trip",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decodeBody[RequestDTO](t, rec)
	assert.Equal(t, "3", req.Units)
	assert.Equal(t, "Pending", req.Status)

	rec = do(t, srv, http.MethodPost, "/api/requests/"+req.ID+"/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auto_approve", decodeBody[ReviewResponse](t, rec).Route)

	rec = do(t, srv, http.MethodPost, "/api/requests/"+req.ID+"/approve", DecisionRequest{Actor: "manager"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[ApprovalResponse](t, rec)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, "11", first.Employee.Balances["annualLeave"])

	rec = do(t, srv, http.MethodPost, "/api/requests/"+req.ID+"/approve", DecisionRequest{Actor: "manager"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[ApprovalResponse](t, rec)

	// THEN: The balance was charged once
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, "11", second.Employee.Balances["annualLeave"])

	// AND: Rejecting an approved request conflicts
	rec = do(t, srv, http.MethodPost, "/api/requests/"+req.ID+"/reject", DecisionRequest{Actor: "hr"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: The computed balance agrees
	rec = do(t, srv, http.MethodGet, "/api/employees/"+emp.ID+"/balance?year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "11", bal.Remaining["annualLeave"])
	assert.Equal(t, "C", bal.Entitlement.Condition)

	rec = do(t, srv, http.MethodGet, "/api/employees/"+emp.ID+"/requests?year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]RequestDTO](t, rec), 1)
}

func TestSubmitRequest_Errors(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/employees", CreateEmployeeRequest{Name: "Bob", HireDate: "2020-01-10", Gender: "male"})
	require.Equal(t, http.StatusCreated, rec.Code)
	emp := decodeBody[EmployeeDTO](t, rec)

	rec = do(t, srv, http.MethodPost, "/api/employees/"+emp.ID+"/requests", SubmitRequestDTO{Type: "maternityLeave", StartDate: "2024-06-03", EndDate: "2024-06-05"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown leave type", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, srv, http.MethodPost, "/api/employees/"+emp.ID+"/requests", SubmitRequestDTO{Type: "annualLeave", StartDate: "2024-06-05", EndDate: "2024-06-03"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid range", decodeBody[ErrorResponse](t, rec).Error)

	rec = do(t, srv, http.MethodPost, "/api/employees/nobody/requests", SubmitRequestDTO{Type: "annualLeave", StartDate: "2024-06-03", EndDate: "2024-06-03"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/employees/"+emp.ID+"/balance?year=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRequest_SuppliedUnits(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/employees", CreateEmployeeRequest{Name: "Eve", HireDate: "2020-01-10", Gender: "female"})
	require.Equal(t, http.StatusCreated, rec.Code)
	emp := decodeBody[EmployeeDTO](t, rec)
	path := "/api/employees/" + emp.ID + "/requests"

	tests := []struct {
		units  string
		status int
		title  string
	}{
		{"0.3", http.StatusBadRequest, "Out of policy"},
		{"40", http.StatusBadRequest, "Out of policy"},
		{"-1", http.StatusBadRequest, "Invalid range"},
		{"0", http.StatusBadRequest, "Invalid range"},
		{"2.5", http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.units, func(t *testing.T) {
			// Monday to Wednesday is worth three days
			rec := do(t, srv, http.MethodPost, path, SubmitRequestDTO{
				Type: "annualLeave", StartDate: "2024-06-03", EndDate: "2024-06-05", Units: tt.units,
			})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.title != "" {
				assert.Equal(t, tt.title, decodeBody[ErrorResponse](t, rec).Error)
			} else {
				assert.Equal(t, tt.units, decodeBody[RequestDTO](t, rec).Units)
			}
		})
	}
}

func TestForwardAndReject(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/employees", CreateEmployeeRequest{ID: "emp-1", Name: "Cy", HireDate: "2020-01-10"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/employees/emp-1/requests", SubmitRequestDTO{Type: "casualLeave", StartDate: "2024-06-04", EndDate: "2024-06-04"})
	require.Equal(t, http.StatusCreated, rec.Code)
	req := decodeBody[RequestDTO](t, rec)

	rec = do(t, srv, http.MethodPost, "/api/requests/"+req.ID+"/forward", ForwardRequest{Actor: "lead", To: "Pending Department Approval"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Pending Department Approval", decodeBody[RequestDTO](t, rec).Status)

	rec = do(t, srv, http.MethodPost, "/api/requests/"+req.ID+"/forward", ForwardRequest{Actor: "lead", To: "Approved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/requests/"+req.ID+"/reject", DecisionRequest{Actor: "dept", Note: "busy week"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[RequestDTO](t, rec)
	assert.Equal(t, "Rejected", out.Status)
	assert.Equal(t, "busy week", out.DecisionNote)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_ = do(t, srv, http.MethodGet, "/api/policy", nil)
	rec = do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/api/policy"`)
}

func TestListQueue(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/employees", CreateEmployeeRequest{ID: "emp-1", Name: "Di", HireDate: "2020-01-10"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var ids []string
	for _, day := range []string{"2024-06-04", "2024-06-05"} {
		rec = do(t, srv, http.MethodPost, "/api/employees/emp-1/requests", SubmitRequestDTO{Type: "sickLeave", StartDate: day, EndDate: day})
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decodeBody[RequestDTO](t, rec).ID)
	}
	rec = do(t, srv, http.MethodPost, "/api/requests/"+ids[1]+"/reject", DecisionRequest{Actor: "manager"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Default queue holds only undecided requests
	rec = do(t, srv, http.MethodGet, "/api/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	open := decodeBody[[]RequestDTO](t, rec)
	require.Len(t, open, 1)
	assert.Equal(t, ids[0], open[0].ID)

	rec = do(t, srv, http.MethodGet, "/api/requests?status=Rejected,Pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]RequestDTO](t, rec), 2)

	rec = do(t, srv, http.MethodGet, "/api/requests?status=Archived", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
