package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/metrics"
)

func TestObserveDecisionAndNoPay(t *testing.T) {
	m := metrics.New()

	m.ObserveDecision("approved")
	m.ObserveDecision("approved")
	m.ObserveDecision("rejected")
	m.ObserveNoPay(leave.NoPayEntered)
	m.ObserveNoPay(leave.NoPayUnchanged)

	expected := `
# HELP leave_decisions_total Leave request decisions by outcome
# TYPE leave_decisions_total counter
leave_decisions_total{outcome="approved"} 2
leave_decisions_total{outcome="rejected"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "leave_decisions_total"))

	expected = `
# HELP leave_no_pay_transitions_total Employees entering or leaving no-pay status
# TYPE leave_no_pay_transitions_total counter
leave_no_pay_transitions_total{change="entered"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "leave_no_pay_transitions_total"))
}

func TestHandlerServesExposition(t *testing.T) {
	m := metrics.New()
	m.ObserveHTTPRequest(http.MethodGet, "/api/policy", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/policy",status="200"} 1`)
}

func TestNilServiceIsSafe(t *testing.T) {
	var m *metrics.Service

	m.ObserveDecision("approved")
	m.ObserveNoPay(leave.NoPayEntered)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
