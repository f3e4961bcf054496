/*
service.go - Leave service orchestration

PURPOSE:
  Composes the ledger, allocator, application repository, and approval
  workflow into the two request-path use cases:

    ApplyLeave       validate -> allocate -> persist -> workflow -> notify
    ProcessApproval  load -> decide with ledger effect -> notify

CONSISTENCY:
  - Application + day rows: one store transaction (CreateApplication)
  - Application status, workflow decision, and the approval's balance
    debit: one store transaction (DecideApplication), so a losing
    concurrent approval debits nothing
  - Payment snapshot: best-effort audit row, failure logged and swallowed
  - Notifications: fire-and-forget goroutine, failure logged and swallowed

SEE ALSO:
  - allocator.go: the paid/unpaid split
  - accrual.go: scheduled balance maintenance
*/
package leave

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates the leave use cases.
type Service struct {
	store    Store
	dir      Directory
	notifier Notifier

	// DefaultApprover receives applications from employees without a
	// manager, so every application always has exactly one approver.
	DefaultApprover EmployeeID

	now func() time.Time
}

// NewService wires the service. defaultApprover must be a valid employee
// id (typically an administrator).
func NewService(store Store, dir Directory, notifier Notifier, defaultApprover EmployeeID) *Service {
	return &Service{
		store:           store,
		dir:             dir,
		notifier:        notifier,
		DefaultApprover: defaultApprover,
		now:             time.Now,
	}
}

// SetClock overrides the service clock (tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmissionRequest is one leave request as received from the caller.
type SubmissionRequest struct {
	LeaveTypeID LeaveTypeID
	FromDate    time.Time
	ToDate      time.Time
	Reason      string
	Days        []RequestedDay
}

// SubmissionResult is returned from a successful ApplyLeave.
type SubmissionResult struct {
	ApplicationID ApplicationID
	Message       string
	Allocation    Allocation
}

// ValidateSubmission rejects malformed submissions before any write.
func ValidateSubmission(req SubmissionRequest) error {
	if req.LeaveTypeID == "" {
		return &ValidationError{Field: "leaveTypeId", Message: "required"}
	}
	if req.FromDate.IsZero() {
		return &ValidationError{Field: "fromDate", Message: "required"}
	}
	if req.ToDate.IsZero() {
		return &ValidationError{Field: "toDate", Message: "required"}
	}
	if req.ToDate.Before(req.FromDate) {
		return &ValidationError{Field: "toDate", Message: "before fromDate"}
	}
	if req.Reason == "" {
		return &ValidationError{Field: "reason", Message: "required"}
	}
	if len(req.Days) == 0 {
		return &ValidationError{Field: "days", Message: "at least one day required"}
	}
	seen := make(map[string]bool, len(req.Days))
	for i, d := range req.Days {
		if d.Date.IsZero() {
			return &ValidationError{Field: fmt.Sprintf("days[%d].date", i), Message: "required"}
		}
		if d.IsHalfDay && d.HalfDayType != HalfDayMorning && d.HalfDayType != HalfDayAfternoon {
			return &ValidationError{Field: fmt.Sprintf("days[%d].halfDayType", i), Message: "must be morning or afternoon"}
		}
		date := d.Date.Format("2006-01-02")
		if seen[date] {
			return &ValidationError{Field: fmt.Sprintf("days[%d].date", i), Message: "duplicate date " + date}
		}
		seen[date] = true
	}
	return nil
}

// ApplyLeave runs the full submission flow for the acting employee.
func (s *Service) ApplyLeave(ctx context.Context, actor Actor, req SubmissionRequest) (SubmissionResult, error) {
	if err := ValidateSubmission(req); err != nil {
		return SubmissionResult{}, err
	}

	lt, err := s.dir.LeaveTypeByID(ctx, req.LeaveTypeID)
	if err != nil {
		return SubmissionResult{}, err
	}
	emp, err := s.dir.EmployeeByID(ctx, actor.EmployeeID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if err := CheckEligibility(lt, emp); err != nil {
		return SubmissionResult{}, err
	}

	key := BalanceKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID, Year: req.FromDate.Year()}
	available, err := s.store.Available(ctx, key)
	if err != nil {
		return SubmissionResult{}, err
	}

	alloc := Allocate(req.Days, available)
	now := s.now().UTC()

	app := Application{
		ID:                ApplicationID(uuid.NewString()),
		EmployeeID:        emp.ID,
		LeaveTypeID:       lt.ID,
		FromDate:          req.FromDate,
		ToDate:            req.ToDate,
		Reason:            req.Reason,
		TotalDays:         alloc.RequestedDays,
		Status:            StatusPending,
		PaidDays:          alloc.PaidDays,
		UnpaidDays:        alloc.UnpaidDays,
		IsPartiallyUnpaid: alloc.IsPartiallyUnpaid,
		AppliedAt:         now,
		Days:              daysFromAllocation(alloc),
	}

	id, err := s.store.CreateApplication(ctx, app)
	if err != nil {
		return SubmissionResult{}, err
	}

	// Audit snapshot of what the allocation saw. Best-effort: the
	// application stands even if this row is lost.
	snapshot := PaymentDetails{
		ApplicationID:   id,
		RequestedDays:   alloc.RequestedDays,
		PaidDays:        alloc.PaidDays,
		UnpaidDays:      alloc.UnpaidDays,
		AvailableAtTime: available,
		CreatedAt:       now,
	}
	if err := s.store.SavePaymentDetails(ctx, snapshot); err != nil {
		log.Printf("[Leave] payment snapshot for %s not saved: %v", id, err)
	}

	approver, err := s.resolveApprover(ctx, emp.ID)
	if err != nil {
		return SubmissionResult{}, err
	}
	wf := ApprovalWorkflow{
		ID:            WorkflowID(uuid.NewString()),
		ApplicationID: id,
		ApproverID:    approver,
		ApprovalLevel: 1,
		Status:        StatusPending,
		CreatedAt:     now,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return SubmissionResult{}, err
	}

	s.emit("submitted", func(ctx context.Context) error {
		return s.notifier.LeaveSubmitted(ctx, LeaveSubmitted{
			ApplicationID: id,
			EmployeeID:    emp.ID,
			ApproverID:    approver,
			LeaveType:     lt.Name,
			FromDate:      req.FromDate,
			ToDate:        req.ToDate,
			TotalDays:     alloc.RequestedDays,
			Reason:        req.Reason,
		})
	})

	return SubmissionResult{
		ApplicationID: id,
		Message:       submissionMessage(alloc),
		Allocation:    alloc,
	}, nil
}

// resolveApprover walks the reporting line and falls back to the default
// approver, so no application is ever left without a pending approver.
func (s *Service) resolveApprover(ctx context.Context, employeeID EmployeeID) (EmployeeID, error) {
	manager, found, err := s.dir.ManagerOf(ctx, employeeID)
	if err != nil {
		return "", err
	}
	if found && manager != "" && manager != employeeID {
		return manager, nil
	}
	if s.DefaultApprover == "" {
		return "", fmt.Errorf("no manager for %s and no default approver configured", employeeID)
	}
	return s.DefaultApprover, nil
}

func daysFromAllocation(alloc Allocation) []ApplicationDay {
	days := make([]ApplicationDay, 0, len(alloc.PerDay))
	for _, da := range alloc.PerDay {
		days = append(days, ApplicationDay{
			Date:        da.Day.Date,
			IsHalfDay:   da.Day.IsHalfDay,
			HalfDayType: da.Day.HalfDayType,
			PayStatus:   da.PayStatus,
		})
	}
	return days
}

func submissionMessage(alloc Allocation) string {
	if !alloc.IsPartiallyUnpaid {
		return fmt.Sprintf("Leave application submitted: %s paid day(s).", alloc.PaidDays)
	}
	if alloc.PaidDays.IsZero() {
		return fmt.Sprintf("Leave application submitted: all %s day(s) unpaid (no available balance).", alloc.UnpaidDays)
	}
	return fmt.Sprintf("Leave application submitted: %s paid day(s), %s unpaid day(s) beyond available balance.",
		alloc.PaidDays, alloc.UnpaidDays)
}

// =============================================================================
// APPROVAL
// =============================================================================

// ProcessApproval records an approver's decision and, on approval, debits
// the ledger by the paid days fixed at submission time. The debit rides
// inside the decision transaction: when two approvals race, only the one
// that claims the pending rows touches the balance.
func (s *Service) ProcessApproval(ctx context.Context, approverID EmployeeID, applicationID ApplicationID, decision ApplicationStatus, comments string) (Application, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return Application{}, &ValidationError{Field: "decision", Message: "must be APPROVED or REJECTED"}
	}

	app, err := s.store.ApplicationByID(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if app.Status.Decided() {
		return Application{}, ErrAlreadyDecided
	}

	var effect *LedgerEffect
	if decision == StatusApproved {
		paid, unpaid := app.PaidDays, app.UnpaidDays
		if pd, found, pdErr := s.store.PaymentDetailsByApplication(ctx, applicationID); pdErr == nil && found {
			paid, unpaid = pd.PaidDays, pd.UnpaidDays
		} else if pdErr != nil {
			log.Printf("[Leave] payment snapshot lookup for %s failed, using application columns: %v", applicationID, pdErr)
		}

		effect = &LedgerEffect{
			Key:        BalanceKey{EmployeeID: app.EmployeeID, LeaveTypeID: app.LeaveTypeID, Year: app.FromDate.Year()},
			PaidDays:   paid,
			UnpaidDays: unpaid,
		}
	}

	if err := s.store.DecideApplication(ctx, applicationID, approverID, decision, comments, effect); err != nil {
		return Application{}, err
	}

	decided, err := s.store.ApplicationByID(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}

	s.emit("decided", func(ctx context.Context) error {
		return s.notifier.LeaveDecided(ctx, LeaveDecided{
			ApplicationID: decided.ID,
			EmployeeID:    decided.EmployeeID,
			ApproverID:    approverID,
			Status:        decided.Status,
			Comments:      comments,
			LeaveType:     decided.LeaveTypeName,
			FromDate:      decided.FromDate,
			ToDate:        decided.ToDate,
			TotalDays:     decided.TotalDays,
		})
	})

	return decided, nil
}

// =============================================================================
// READS & ADMIN
// =============================================================================

// BalanceFor returns the ledger row, an all-zero row when none exists yet.
func (s *Service) BalanceFor(ctx context.Context, key BalanceKey) (Balance, error) {
	b, found, err := s.store.Balance(ctx, key)
	if err != nil {
		return Balance{}, err
	}
	if !found {
		return Balance{
			EmployeeID:      key.EmployeeID,
			LeaveTypeID:     key.LeaveTypeID,
			Year:            key.Year,
			TotalAllocated:  decimal.Zero,
			UsedDays:        decimal.Zero,
			AvailableDays:   decimal.Zero,
			CarriedForward:  decimal.Zero,
			UnpaidDaysTaken: decimal.Zero,
		}, nil
	}
	return b, nil
}

// ApplicationByID loads a single application with its day list.
func (s *Service) ApplicationByID(ctx context.Context, id ApplicationID) (Application, error) {
	return s.store.ApplicationByID(ctx, id)
}

// ApplicationsByEmployee lists the employee's own applications.
func (s *Service) ApplicationsByEmployee(ctx context.Context, id EmployeeID) ([]Application, error) {
	return s.store.ApplicationsByEmployee(ctx, id)
}

// PendingForApprover lists applications awaiting the approver. Both the
// workflow row and the application must still be pending.
func (s *Service) PendingForApprover(ctx context.Context, approverID EmployeeID) ([]Application, error) {
	return s.store.PendingForApprover(ctx, approverID)
}

// ApplicationsForManager lists every application filed by the manager's
// direct reports.
func (s *Service) ApplicationsForManager(ctx context.Context, managerID EmployeeID) ([]Application, error) {
	return s.store.ApplicationsForManager(ctx, managerID)
}

// AllApplications is the unfiltered admin projection.
func (s *Service) AllApplications(ctx context.Context) ([]Application, error) {
	return s.store.AllApplications(ctx)
}

// ResetEmployeeBalance zeroes a ledger row (admin operation).
func (s *Service) ResetEmployeeBalance(ctx context.Context, key BalanceKey) error {
	return s.store.ResetBalance(ctx, key)
}

// =============================================================================
// NOTIFICATION SIDE CHANNEL
// =============================================================================

// emit delivers a notification on its own goroutine. Delivery failure is
// logged and swallowed; it must never surface as a core error or block
// the request path.
func (s *Service) emit(event string, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Notify] %s notification panicked: %v", event, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			log.Printf("[Notify] %s notification failed: %v", event, err)
		}
	}()
}
