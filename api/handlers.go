/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain service.

ENDPOINTS:
  Applications:
    POST   /api/leaves                     Submit leave application
    GET    /api/leaves/{id}                Get application details
    GET    /api/employees/{id}/leaves      Employee's applications
    GET    /api/employees/{id}/balance     Yearly balance row

  Approvals:
    GET    /api/approvals/pending          Applications awaiting the actor
    POST   /api/approvals/{id}/decide      Approve or reject

  Views:
    GET    /api/manager/leaves             Direct reports' applications
    GET    /api/admin/leaves               All applications

  Admin:
    POST   /api/admin/accrual/run          Trigger monthly accrual
    POST   /api/admin/carryforward/run     Trigger year-end carry-forward
    GET    /api/admin/accrual/stats        Recorded accrual runs
    POST   /api/admin/balances/reset       Zero a ledger row

  Directory:
    GET    /api/employees                  List employees
    POST   /api/employees                  Create/update employee
    GET    /api/employees/{id}             Get employee
    GET    /api/leave-types                List leave types
    POST   /api/leave-types                Create/update leave type

ACTOR IDENTITY:
  The caller's identity arrives in X-Actor-ID and X-Actor-Role headers,
  set by the gateway that authenticated the session. Manager endpoints
  require the manager or admin role; admin endpoints require admin.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, eligibility failures, invalid input
  - 403: Role not allowed
  - 404: Application, employee, or leave type not found
  - 409: Already decided, insufficient balance
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - leave/service.go: Domain logic behind these handlers
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *leave.Service
	Engine  *leave.AccrualEngine
	Store   *sqlite.Store
}

// NewHandler creates a new handler.
func NewHandler(service *leave.Service, engine *leave.AccrualEngine, store *sqlite.Store) *Handler {
	return &Handler{Service: service, Engine: engine, Store: store}
}

// =============================================================================
// ACTOR IDENTITY
// =============================================================================

func actorFrom(r *http.Request) leave.Actor {
	role := leave.Role(r.Header.Get("X-Actor-Role"))
	if role == "" {
		role = leave.RoleEmployee
	}
	return leave.Actor{
		EmployeeID: leave.EmployeeID(r.Header.Get("X-Actor-ID")),
		Role:       role,
	}
}

// requireActor rejects requests without an identity header.
func requireActor(w http.ResponseWriter, r *http.Request) (leave.Actor, bool) {
	actor := actorFrom(r)
	if actor.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "X-Actor-ID header is required", nil)
		return leave.Actor{}, false
	}
	return actor, true
}

func requireRole(w http.ResponseWriter, r *http.Request, roles ...leave.Role) (leave.Actor, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return leave.Actor{}, false
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, true
		}
	}
	writeError(w, http.StatusForbidden, "role not allowed", nil)
	return leave.Actor{}, false
}

// =============================================================================
// APPLICATION ENDPOINTS
// =============================================================================

// ApplyLeave submits a leave application for the acting employee.
// POST /api/leaves
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ApplyLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sub, err := toSubmissionRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.Service.ApplyLeave(r.Context(), actor, sub)
	if err != nil {
		submissionsTotal.WithLabelValues("error").Inc()
		writeDomainError(w, err)
		return
	}

	submissionsTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusCreated, ApplyLeaveResponse{
		ApplicationID:     string(result.ApplicationID),
		Message:           result.Message,
		RequestedDays:     result.Allocation.RequestedDays.InexactFloat64(),
		PaidDays:          result.Allocation.PaidDays.InexactFloat64(),
		UnpaidDays:        result.Allocation.UnpaidDays.InexactFloat64(),
		IsPartiallyUnpaid: result.Allocation.IsPartiallyUnpaid,
	})
}

// GetApplication returns a single application with its day list.
// GET /api/leaves/{id}
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id := leave.ApplicationID(chi.URLParam(r, "id"))

	app, err := h.Service.ApplicationByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// ListEmployeeLeaves returns an employee's applications, newest first.
// GET /api/employees/{id}/leaves
func (h *Handler) ListEmployeeLeaves(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	apps, err := h.Service.ApplicationsByEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// GetBalance returns the yearly ledger row. The year query parameter
// defaults to the current year; a missing row reads as all zeros.
// GET /api/employees/{id}/balance?year=2026&leave_type=annual
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	year := time.Now().Year()
	if q := r.URL.Query().Get("year"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year", err)
			return
		}
		year = parsed
	}

	leaveTypeID := leave.LeaveTypeID(r.URL.Query().Get("leave_type"))
	if leaveTypeID == "" {
		lt, err := h.Store.StandardLeaveType(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		leaveTypeID = lt.ID
	}

	b, err := h.Service.BalanceFor(r.Context(), leave.BalanceKey{
		EmployeeID:  id,
		LeaveTypeID: leaveTypeID,
		Year:        year,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// =============================================================================
// APPROVAL ENDPOINTS
// =============================================================================

// PendingApprovals returns applications awaiting the acting approver.
// GET /api/approvals/pending
func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	apps, err := h.Service.PendingForApprover(r.Context(), actor.EmployeeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// DecideApplication approves or rejects a pending application. The
// decision is one-shot: a second call returns 409.
// POST /api/approvals/{id}/decide
func (h *Handler) DecideApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := leave.ApplicationID(chi.URLParam(r, "id"))

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	app, err := h.Service.ProcessApproval(r.Context(), actor.EmployeeID, id,
		leave.ApplicationStatus(req.Decision), req.Comments)
	if err != nil {
		decisionsTotal.WithLabelValues("error").Inc()
		writeDomainError(w, err)
		return
	}

	decisionsTotal.WithLabelValues(string(app.Status)).Inc()
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// =============================================================================
// MANAGER / ADMIN VIEWS
// =============================================================================

// ManagerLeaves returns all applications filed by the actor's reports.
// GET /api/manager/leaves
func (h *Handler) ManagerLeaves(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, leave.RoleManager, leave.RoleAdmin)
	if !ok {
		return
	}

	apps, err := h.Service.ApplicationsForManager(r.Context(), actor.EmployeeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// AllLeaves returns every application in the system.
// GET /api/admin/leaves
func (h *Handler) AllLeaves(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, leave.RoleAdmin); !ok {
		return
	}

	apps, err := h.Service.AllApplications(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// =============================================================================
// ADMIN / ACCRUAL ENDPOINTS
// =============================================================================

// RunAccrual triggers the monthly accrual for the current period. Safe to
// call repeatedly: an already-processed period reports skipped=true.
// POST /api/admin/accrual/run
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, leave.RoleAdmin); !ok {
		return
	}

	summary, err := h.Engine.RunMonthlyAccrual(r.Context(), time.Now())
	if err != nil {
		accrualRunsTotal.WithLabelValues("monthly", "error").Inc()
		writeDomainError(w, err)
		return
	}
	accrualRunsTotal.WithLabelValues("monthly", runOutcome(summary)).Inc()
	writeJSON(w, http.StatusOK, toAccrualRunResponse(summary))
}

// RunCarryForward triggers the year-end carry-forward.
// POST /api/admin/carryforward/run
func (h *Handler) RunCarryForward(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, leave.RoleAdmin); !ok {
		return
	}

	summary, err := h.Engine.RunYearEndCarryForward(r.Context(), time.Now())
	if err != nil {
		accrualRunsTotal.WithLabelValues("carryforward", "error").Inc()
		writeDomainError(w, err)
		return
	}
	accrualRunsTotal.WithLabelValues("carryforward", runOutcome(summary)).Inc()
	writeJSON(w, http.StatusOK, toAccrualRunResponse(summary))
}

func runOutcome(summary leave.AccrualSummary) string {
	if summary.Skipped {
		return "skipped"
	}
	return "processed"
}

// AccrualStats returns recorded accrual runs, newest first.
// GET /api/admin/accrual/stats
func (h *Handler) AccrualStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, leave.RoleAdmin); !ok {
		return
	}

	logs, err := h.Engine.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AccrualLogDTO, 0, len(logs))
	for _, entry := range logs {
		dtos = append(dtos, AccrualLogDTO{
			ID:                entry.ID,
			LeaveTypeID:       string(entry.LeaveTypeID),
			Year:              entry.Year,
			Month:             entry.Month,
			AccrualAmount:     entry.AccrualAmount.InexactFloat64(),
			EmployeesAffected: entry.EmployeesAffected,
			ProcessedAt:       entry.ProcessedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetBalance zeroes a ledger row.
// POST /api/admin/balances/reset
func (h *Handler) ResetBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, leave.RoleAdmin); !ok {
		return
	}

	var req ResetBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.EmployeeID == "" || req.LeaveTypeID == "" || req.Year == 0 {
		writeError(w, http.StatusBadRequest, "employee_id, leave_type_id, and year are required", nil)
		return
	}

	err := h.Service.ResetEmployeeBalance(r.Context(), leave.BalanceKey{
		EmployeeID:  leave.EmployeeID(req.EmployeeID),
		LeaveTypeID: leave.LeaveTypeID(req.LeaveTypeID),
		Year:        req.Year,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// DIRECTORY ENDPOINTS
// =============================================================================

// ListEmployees returns all active employees.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ActiveEmployees(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]EmployeeDTO, 0, len(employees))
	for _, emp := range employees {
		dtos = append(dtos, toEmployeeDTO(emp))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.Store.EmployeeByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates or updates an employee.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, leave.RoleAdmin); !ok {
		return
	}

	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	hireDate := time.Now()
	if req.HireDate != "" {
		parsed, err := time.Parse("2006-01-02", req.HireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid hire_date, expected YYYY-MM-DD", err)
			return
		}
		hireDate = parsed
	}

	emp := leave.Employee{
		ID:       leave.EmployeeID(req.ID),
		Name:     req.Name,
		Email:    req.Email,
		Gender:   req.Gender,
		Active:   req.Active == nil || *req.Active,
		HireDate: hireDate,
	}
	if req.ManagerID != "" {
		m := leave.EmployeeID(req.ManagerID)
		emp.ManagerID = &m
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// ListLeaveTypes returns all leave types.
// GET /api/leave-types
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListLeaveTypes(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]LeaveTypeDTO, 0, len(types))
	for _, lt := range types {
		dtos = append(dtos, toLeaveTypeDTO(lt))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLeaveType creates or updates a leave type.
// POST /api/leave-types
func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, leave.RoleAdmin); !ok {
		return
	}

	var req CreateLeaveTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	lt := leave.LeaveType{
		ID:                leave.LeaveTypeID(req.ID),
		Name:              req.Name,
		MonthlyAccrual:    decimal.NewFromFloat(req.MonthlyAccrual),
		GenderRestriction: req.GenderRestriction,
		Active:            req.Active == nil || *req.Active,
	}

	if err := h.Store.SaveLeaveType(r.Context(), lt, req.IsStandard); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(lt))
}

// =============================================================================
// HELPERS
// =============================================================================

func toSubmissionRequest(req ApplyLeaveRequest) (leave.SubmissionRequest, error) {
	fromDate, err := time.Parse("2006-01-02", req.FromDate)
	if err != nil {
		return leave.SubmissionRequest{}, err
	}
	toDate, err := time.Parse("2006-01-02", req.ToDate)
	if err != nil {
		return leave.SubmissionRequest{}, err
	}

	days := make([]leave.RequestedDay, 0, len(req.Days))
	for _, d := range req.Days {
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return leave.SubmissionRequest{}, err
		}
		days = append(days, leave.RequestedDay{
			Date:        date,
			IsHalfDay:   d.IsHalfDay,
			HalfDayType: leave.HalfDayType(d.HalfDayType),
		})
	}

	return leave.SubmissionRequest{
		LeaveTypeID: leave.LeaveTypeID(req.LeaveTypeID),
		FromDate:    fromDate,
		ToDate:      toDate,
		Reason:      req.Reason,
		Days:        days,
	}, nil
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

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case leave.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err)
	case leave.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
