/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Applications:
    ApplyLeaveRequest, LeaveDayRequest, ApplyLeaveResponse, ApplicationDTO

  Approvals:
    DecisionRequest

  Balances:
    BalanceDTO

  Directory:
    EmployeeDTO, CreateEmployeeRequest, LeaveTypeDTO, CreateLeaveTypeRequest

  Accrual:
    AccrualRunResponse, AccrualLogDTO

DECIMAL FIELDS:
  Day quantities travel as JSON numbers (float64). Halves are exact in
  binary floating point, so nothing is lost on the wire; all arithmetic
  stays in decimal on the server side.

VALIDATION:
  Validation is done in handlers and the service, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/types.go: Domain model these map from
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// LeaveDayRequest is one requested calendar day in a submission.
type LeaveDayRequest struct {
	Date        string `json:"date"` // YYYY-MM-DD
	IsHalfDay   bool   `json:"is_half_day"`
	HalfDayType string `json:"half_day_type,omitempty"` // morning | afternoon
}

// ApplyLeaveRequest is the request body to submit a leave application.
type ApplyLeaveRequest struct {
	LeaveTypeID string            `json:"leave_type_id"`
	FromDate    string            `json:"from_date"` // YYYY-MM-DD
	ToDate      string            `json:"to_date"`   // YYYY-MM-DD
	Reason      string            `json:"reason"`
	Days        []LeaveDayRequest `json:"days"`
}

// ApplyLeaveResponse reports the outcome of a submission, including the
// paid/unpaid split fixed at submission time.
type ApplyLeaveResponse struct {
	ApplicationID     string  `json:"application_id"`
	Message           string  `json:"message"`
	RequestedDays     float64 `json:"requested_days"`
	PaidDays          float64 `json:"paid_days"`
	UnpaidDays        float64 `json:"unpaid_days"`
	IsPartiallyUnpaid bool    `json:"is_partially_unpaid"`
}

// LeaveDayDTO is one day of an application in responses.
type LeaveDayDTO struct {
	Date        string `json:"date"`
	IsHalfDay   bool   `json:"is_half_day"`
	HalfDayType string `json:"half_day_type,omitempty"`
	PayStatus   string `json:"pay_status"`
}

// ApplicationDTO represents a leave application in API responses.
type ApplicationDTO struct {
	ID                string        `json:"id"`
	EmployeeID        string        `json:"employee_id"`
	EmployeeName      string        `json:"employee_name,omitempty"`
	LeaveTypeID       string        `json:"leave_type_id"`
	LeaveTypeName     string        `json:"leave_type_name,omitempty"`
	FromDate          string        `json:"from_date"`
	ToDate            string        `json:"to_date"`
	Reason            string        `json:"reason"`
	TotalDays         float64       `json:"total_days"`
	Status            string        `json:"status"`
	PaidDays          float64       `json:"paid_days"`
	UnpaidDays        float64       `json:"unpaid_days"`
	IsPartiallyUnpaid bool          `json:"is_partially_unpaid"`
	AppliedAt         string        `json:"applied_at"`
	ResponseAt        string        `json:"response_at,omitempty"`
	ApprovedBy        string        `json:"approved_by,omitempty"`
	RejectionReason   string        `json:"rejection_reason,omitempty"`
	Days              []LeaveDayDTO `json:"days"`
}

// DecisionRequest is the request body to decide a pending application.
type DecisionRequest struct {
	Decision string `json:"decision"` // APPROVED | REJECTED
	Comments string `json:"comments"`
}

// BalanceDTO represents a yearly ledger row.
type BalanceDTO struct {
	EmployeeID      string  `json:"employee_id"`
	LeaveTypeID     string  `json:"leave_type_id"`
	Year            int     `json:"year"`
	TotalAllocated  float64 `json:"total_allocated"`
	UsedDays        float64 `json:"used_days"`
	AvailableDays   float64 `json:"available_days"`
	CarriedForward  float64 `json:"carried_forward"`
	UnpaidDaysTaken float64 `json:"unpaid_days_taken"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	ManagerID string `json:"manager_id,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Active    bool   `json:"active"`
	HireDate  string `json:"hire_date"`
}

// CreateEmployeeRequest is the request to create or update an employee.
type CreateEmployeeRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	ManagerID string `json:"manager_id"`
	Gender    string `json:"gender"`
	Active    *bool  `json:"active"` // nil means active
	HireDate  string `json:"hire_date"`
}

// LeaveTypeDTO represents a leave type in API responses.
type LeaveTypeDTO struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	MonthlyAccrual    float64 `json:"monthly_accrual"`
	GenderRestriction string  `json:"gender_restriction,omitempty"`
	Active            bool    `json:"active"`
}

// CreateLeaveTypeRequest is the request to create or update a leave type.
type CreateLeaveTypeRequest struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	MonthlyAccrual    float64 `json:"monthly_accrual"`
	GenderRestriction string  `json:"gender_restriction"`
	IsStandard        bool    `json:"is_standard"`
	Active            *bool   `json:"active"`
}

// AccrualRunResponse reports a triggered accrual or carry-forward run.
type AccrualRunResponse struct {
	LeaveTypeID       string  `json:"leave_type_id"`
	Year              int     `json:"year"`
	Month             int     `json:"month"`
	Amount            float64 `json:"amount"`
	EmployeesCredited int     `json:"employees_credited"`
	EmployeesFailed   int     `json:"employees_failed"`
	Skipped           bool    `json:"skipped"`
}

// AccrualLogDTO represents a recorded accrual run.
type AccrualLogDTO struct {
	ID                string  `json:"id"`
	LeaveTypeID       string  `json:"leave_type_id"`
	Year              int     `json:"year"`
	Month             int     `json:"month"`
	AccrualAmount     float64 `json:"accrual_amount"`
	EmployeesAffected int     `json:"employees_affected"`
	ProcessedAt       string  `json:"processed_at"`
}

// ResetBalanceRequest is the admin request to zero a ledger row.
type ResetBalanceRequest struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	Year        int    `json:"year"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toApplicationDTO(app leave.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:                string(app.ID),
		EmployeeID:        string(app.EmployeeID),
		EmployeeName:      app.EmployeeName,
		LeaveTypeID:       string(app.LeaveTypeID),
		LeaveTypeName:     app.LeaveTypeName,
		FromDate:          app.FromDate.Format("2006-01-02"),
		ToDate:            app.ToDate.Format("2006-01-02"),
		Reason:            app.Reason,
		TotalDays:         app.TotalDays.InexactFloat64(),
		Status:            string(app.Status),
		PaidDays:          app.PaidDays.InexactFloat64(),
		UnpaidDays:        app.UnpaidDays.InexactFloat64(),
		IsPartiallyUnpaid: app.IsPartiallyUnpaid,
		AppliedAt:         app.AppliedAt.Format(time.RFC3339),
		ApprovedBy:        string(app.ApprovedBy),
		RejectionReason:   app.RejectionReason,
		Days:              make([]LeaveDayDTO, 0, len(app.Days)),
	}
	if app.ResponseAt != nil {
		dto.ResponseAt = app.ResponseAt.Format(time.RFC3339)
	}
	for _, d := range app.Days {
		dto.Days = append(dto.Days, LeaveDayDTO{
			Date:        d.Date.Format("2006-01-02"),
			IsHalfDay:   d.IsHalfDay,
			HalfDayType: string(d.HalfDayType),
			PayStatus:   string(d.PayStatus),
		})
	}
	return dto
}

func toApplicationDTOs(apps []leave.Application) []ApplicationDTO {
	dtos := make([]ApplicationDTO, 0, len(apps))
	for _, app := range apps {
		dtos = append(dtos, toApplicationDTO(app))
	}
	return dtos
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	dto := BalanceDTO{
		EmployeeID:      string(b.EmployeeID),
		LeaveTypeID:     string(b.LeaveTypeID),
		Year:            b.Year,
		TotalAllocated:  b.TotalAllocated.InexactFloat64(),
		UsedDays:        b.UsedDays.InexactFloat64(),
		AvailableDays:   b.AvailableDays.InexactFloat64(),
		CarriedForward:  b.CarriedForward.InexactFloat64(),
		UnpaidDaysTaken: b.UnpaidDaysTaken.InexactFloat64(),
	}
	if !b.UpdatedAt.IsZero() {
		dto.UpdatedAt = b.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toEmployeeDTO(emp leave.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:       string(emp.ID),
		Name:     emp.Name,
		Email:    emp.Email,
		Gender:   emp.Gender,
		Active:   emp.Active,
		HireDate: emp.HireDate.Format("2006-01-02"),
	}
	if emp.ManagerID != nil {
		dto.ManagerID = string(*emp.ManagerID)
	}
	return dto
}

func toLeaveTypeDTO(lt leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:                string(lt.ID),
		Name:              lt.Name,
		MonthlyAccrual:    lt.MonthlyAccrual.InexactFloat64(),
		GenderRestriction: lt.GenderRestriction,
		Active:            lt.Active,
	}
}

func toAccrualRunResponse(sum leave.AccrualSummary) AccrualRunResponse {
	return AccrualRunResponse{
		LeaveTypeID:       string(sum.LeaveTypeID),
		Year:              sum.Year,
		Month:             sum.Month,
		Amount:            sum.Amount.InexactFloat64(),
		EmployeesCredited: sum.Credited,
		EmployeesFailed:   sum.Failed,
		Skipped:           sum.Skipped,
	}
}
