/*
handlers_test.go - HTTP endpoint tests

Runs the full stack (router, handlers, service, SQLite) against an
in-memory database and drives it through httptest.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	router http.Handler
	store  *sqlite.Store
}

func mustDay(n float64) decimal.Decimal {
	return decimal.NewFromFloat(n)
}

func newTestEnv(t *testing.T) *testEnv {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveLeaveType(ctx, leave.LeaveType{
		ID:             "annual",
		Name:           "Annual Leave",
		MonthlyAccrual: mustDay(1.5),
		Active:         true,
	}, true))

	manager := leave.EmployeeID("mgr-1")
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{
		ID:       manager,
		Name:     "Morgan Reyes",
		Active:   true,
		HireDate: time.Date(2020, time.January, 6, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{
		ID:        "emp-1",
		Name:      "Alex Kim",
		ManagerID: &manager,
		Active:    true,
		HireDate:  time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
	}))

	service := leave.NewService(store, store, nil, "hr-admin")
	engine := leave.NewAccrualEngine(store, store)
	handler := NewHandler(service, engine, store)
	router := NewRouter(handler, []string{"*"})

	return &testEnv{router: router, store: store}
}

func (e *testEnv) credit(t *testing.T, employeeID string, amount float64) {
	t.Helper()
	ctx := context.Background()
	key := leave.BalanceKey{
		EmployeeID:  leave.EmployeeID(employeeID),
		LeaveTypeID: "annual",
		Year:        time.Now().Year(),
	}
	_, err := e.store.EnsureBalance(ctx, key)
	require.NoError(t, err)
	require.NoError(t, e.store.Credit(ctx, key, mustDay(amount)))
}

func (e *testEnv) do(t *testing.T, method, path string, body any, actorID, role string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
	}
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out), "body: %s", rec.Body.String())
}

func applyBody(days int) ApplyLeaveRequest {
	year := time.Now().Year()
	req := ApplyLeaveRequest{
		LeaveTypeID: "annual",
		FromDate:    fmt.Sprintf("%d-03-02", year),
		ToDate:      fmt.Sprintf("%d-03-%02d", year, 1+days),
		Reason:      "trip",
	}
	for i := 0; i < days; i++ {
		req.Days = append(req.Days, LeaveDayRequest{
			Date: fmt.Sprintf("%d-03-%02d", year, 2+i),
		})
	}
	return req
}

func (e *testEnv) submit(t *testing.T, days int) ApplyLeaveResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/leaves", applyBody(days), "emp-1", "employee")
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	var resp ApplyLeaveResponse
	decodeInto(t, rec, &resp)
	return resp
}

// =============================================================================
// SUBMISSION ENDPOINT TESTS
// =============================================================================

func TestApplyLeaveEndpoint_Success(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 5)

	resp := env.submit(t, 3)

	assert.NotEmpty(t, resp.ApplicationID)
	assert.Equal(t, 3.0, resp.PaidDays)
	assert.Equal(t, 0.0, resp.UnpaidDays)
	assert.False(t, resp.IsPartiallyUnpaid)
}

func TestApplyLeaveEndpoint_PartiallyUnpaid(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 1)

	resp := env.submit(t, 3)

	assert.True(t, resp.IsPartiallyUnpaid)
	assert.Equal(t, 1.0, resp.PaidDays)
	assert.Equal(t, 2.0, resp.UnpaidDays)
}

func TestApplyLeaveEndpoint_MissingActor(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/leaves", applyBody(1), "", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyLeaveEndpoint_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	body := applyBody(2)
	body.Days = nil
	rec := env.do(t, http.MethodPost, "/api/leaves", body, "emp-1", "employee")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	decodeInto(t, rec, &resp)
	assert.NotEmpty(t, resp.Error)
}

func TestApplyLeaveEndpoint_UnknownEmployee(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/leaves", applyBody(1), "ghost", "employee")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetApplicationEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 5)
	submitted := env.submit(t, 2)

	rec := env.do(t, http.MethodGet, "/api/leaves/"+submitted.ApplicationID, nil, "emp-1", "employee")

	require.Equal(t, http.StatusOK, rec.Code)
	var app ApplicationDTO
	decodeInto(t, rec, &app)
	assert.Equal(t, "PENDING", app.Status)
	assert.Equal(t, "Alex Kim", app.EmployeeName)
	assert.Len(t, app.Days, 2)

	rec = env.do(t, http.MethodGet, "/api/leaves/nope", nil, "emp-1", "employee")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// BALANCE ENDPOINT TESTS
// =============================================================================

func TestGetBalanceEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 4.5)

	rec := env.do(t, http.MethodGet,
		fmt.Sprintf("/api/employees/emp-1/balance?year=%d", time.Now().Year()),
		nil, "emp-1", "employee")

	require.Equal(t, http.StatusOK, rec.Code)
	var b BalanceDTO
	decodeInto(t, rec, &b)
	assert.Equal(t, 4.5, b.AvailableDays)
	assert.Equal(t, 4.5, b.TotalAllocated)
}

func TestGetBalanceEndpoint_MissingRowIsZero(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil, "emp-1", "employee")

	require.Equal(t, http.StatusOK, rec.Code)
	var b BalanceDTO
	decodeInto(t, rec, &b)
	assert.Equal(t, 0.0, b.AvailableDays)
}

// =============================================================================
// APPROVAL ENDPOINT TESTS
// =============================================================================

func TestDecideEndpoint_ApproveFlow(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 5)
	submitted := env.submit(t, 3)

	// Manager sees the pending application
	rec := env.do(t, http.MethodGet, "/api/approvals/pending", nil, "mgr-1", "manager")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []ApplicationDTO
	decodeInto(t, rec, &pending)
	require.Len(t, pending, 1)

	// Approve
	rec = env.do(t, http.MethodPost, "/api/approvals/"+submitted.ApplicationID+"/decide",
		DecisionRequest{Decision: "APPROVED", Comments: "ok"}, "mgr-1", "manager")
	require.Equal(t, http.StatusOK, rec.Code)
	var app ApplicationDTO
	decodeInto(t, rec, &app)
	assert.Equal(t, "APPROVED", app.Status)
	assert.Equal(t, "mgr-1", app.ApprovedBy)

	// Queue drains
	rec = env.do(t, http.MethodGet, "/api/approvals/pending", nil, "mgr-1", "manager")
	decodeInto(t, rec, &pending)
	assert.Empty(t, pending)

	// Ledger reflects the debit
	rec = env.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil, "emp-1", "employee")
	var b BalanceDTO
	decodeInto(t, rec, &b)
	assert.Equal(t, 2.0, b.AvailableDays)
	assert.Equal(t, 3.0, b.UsedDays)
}

func TestDecideEndpoint_SecondDecisionConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 5)
	submitted := env.submit(t, 2)

	rec := env.do(t, http.MethodPost, "/api/approvals/"+submitted.ApplicationID+"/decide",
		DecisionRequest{Decision: "REJECTED", Comments: "no"}, "mgr-1", "manager")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/approvals/"+submitted.ApplicationID+"/decide",
		DecisionRequest{Decision: "APPROVED"}, "mgr-1", "manager")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDecideEndpoint_InvalidDecision(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 5)
	submitted := env.submit(t, 1)

	rec := env.do(t, http.MethodPost, "/api/approvals/"+submitted.ApplicationID+"/decide",
		DecisionRequest{Decision: "MAYBE"}, "mgr-1", "manager")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ROLE-GATED VIEW TESTS
// =============================================================================

func TestManagerLeavesEndpoint_RoleRequired(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 5)
	env.submit(t, 2)

	rec := env.do(t, http.MethodGet, "/api/manager/leaves", nil, "mgr-1", "employee")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/manager/leaves", nil, "mgr-1", "manager")
	require.Equal(t, http.StatusOK, rec.Code)
	var apps []ApplicationDTO
	decodeInto(t, rec, &apps)
	assert.Len(t, apps, 1)
}

func TestAdminLeavesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 5)
	env.submit(t, 2)

	rec := env.do(t, http.MethodGet, "/api/admin/leaves", nil, "emp-1", "employee")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/leaves", nil, "hr-admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var apps []ApplicationDTO
	decodeInto(t, rec, &apps)
	assert.Len(t, apps, 1)
}

// =============================================================================
// ADMIN ACCRUAL ENDPOINT TESTS
// =============================================================================

func TestAccrualRunEndpoint_FencedRepeat(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/accrual/run", nil, "hr-admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var first AccrualRunResponse
	decodeInto(t, rec, &first)
	assert.False(t, first.Skipped)
	assert.Equal(t, 2, first.EmployeesCredited)

	rec = env.do(t, http.MethodPost, "/api/admin/accrual/run", nil, "hr-admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var second AccrualRunResponse
	decodeInto(t, rec, &second)
	assert.True(t, second.Skipped)

	rec = env.do(t, http.MethodGet, "/api/admin/accrual/stats", nil, "hr-admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []AccrualLogDTO
	decodeInto(t, rec, &logs)
	assert.Len(t, logs, 1)
}

func TestResetBalanceEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "emp-1", 5)

	body := ResetBalanceRequest{
		EmployeeID:  "emp-1",
		LeaveTypeID: "annual",
		Year:        time.Now().Year(),
	}
	rec := env.do(t, http.MethodPost, "/api/admin/balances/reset", body, "hr-admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/employees/emp-1/balance", nil, "emp-1", "employee")
	var b BalanceDTO
	decodeInto(t, rec, &b)
	assert.Equal(t, 0.0, b.AvailableDays)
}

// =============================================================================
// DIRECTORY ENDPOINT TESTS
// =============================================================================

func TestEmployeeEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/employees", CreateEmployeeRequest{
		ID:        "emp-new",
		Name:      "Nur Osman",
		ManagerID: "mgr-1",
		HireDate:  "2026-01-12",
	}, "hr-admin", "admin")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/employees/emp-new", nil, "emp-new", "employee")
	require.Equal(t, http.StatusOK, rec.Code)
	var emp EmployeeDTO
	decodeInto(t, rec, &emp)
	assert.Equal(t, "Nur Osman", emp.Name)
	assert.Equal(t, "mgr-1", emp.ManagerID)

	rec = env.do(t, http.MethodGet, "/api/employees", nil, "emp-1", "employee")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []EmployeeDTO
	decodeInto(t, rec, &all)
	assert.Len(t, all, 3)
}

func TestLeaveTypeEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/leave-types", CreateLeaveTypeRequest{
		ID:                "maternity",
		Name:              "Maternity Leave",
		GenderRestriction: "female",
	}, "hr-admin", "admin")
	require.Equal(t, http.StatusCreated, rec.Code)

	// Non-admin cannot create
	rec = env.do(t, http.MethodPost, "/api/leave-types", CreateLeaveTypeRequest{
		ID: "x", Name: "X",
	}, "emp-1", "employee")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/leave-types", nil, "emp-1", "employee")
	require.Equal(t, http.StatusOK, rec.Code)
	var types []LeaveTypeDTO
	decodeInto(t, rec, &types)
	assert.Len(t, types, 2)
}

// =============================================================================
// METRICS ENDPOINT TEST
// =============================================================================

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", nil, "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
