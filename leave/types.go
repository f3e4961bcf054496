/*
Package leave implements the employee leave ledger and approval workflow engine.

PURPOSE:
  This package contains the domain core: yearly per-employee balances,
  leave applications with day-level paid/unpaid breakdown, single-approver
  workflow rows, and the periodic accrual/carry-forward batch jobs.
  Transport (HTTP) and persistence (SQLite) live in their own packages and
  depend on the interfaces defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Balance: per (employee, leave type, year) ledger row
  - Application / ApplicationDay: one request plus one row per calendar day
  - PaymentDetails: audit snapshot of the allocation decision
  - ApprovalWorkflow: who must decide an application and what they decided
  - AccrualLog: audit + idempotency fence for scheduled jobs

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere a day count appears (0.5 granularity)
  2. Immutability: day rows and payment snapshots are written once, never updated
  3. Recomputation: AvailableDays is always recomputed from its parts,
     never trusted as an accumulated delta
  4. Type safety: distinct ID types prevent mixing employees and applications

SEE ALSO:
  - allocator.go: paid/unpaid day allocation
  - service.go: ApplyLeave / ProcessApproval orchestration
  - accrual.go: monthly accrual and year-end carry-forward
  - store.go: persistence and collaborator interfaces
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type ApplicationID string
type WorkflowID string

// Actor is the authenticated identity attached to every operation.
// Authentication itself happens outside this engine; the core trusts
// the value it is handed.
type Actor struct {
	EmployeeID EmployeeID
	Role       Role
}

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// =============================================================================
// DAY WEIGHTS
// =============================================================================

// FullDayWeight and HalfDayWeight are the only two weights a requested
// calendar day can carry.
var (
	FullDayWeight = decimal.NewFromInt(1)
	HalfDayWeight = decimal.New(5, -1) // 0.5
)

type HalfDayType string

const (
	HalfDayMorning   HalfDayType = "morning"
	HalfDayAfternoon HalfDayType = "afternoon"
)

// RequestedDay is one calendar day of a submission, before allocation.
type RequestedDay struct {
	Date        time.Time
	IsHalfDay   bool
	HalfDayType HalfDayType // set only when IsHalfDay
}

// Weight returns 1.0 for a full day, 0.5 for a half day.
func (d RequestedDay) Weight() decimal.Decimal {
	if d.IsHalfDay {
		return HalfDayWeight
	}
	return FullDayWeight
}

// TotalWeight sums the weights of a day list.
func TotalWeight(days []RequestedDay) decimal.Decimal {
	total := decimal.Zero
	for _, d := range days {
		total = total.Add(d.Weight())
	}
	return total
}

// =============================================================================
// BALANCE - yearly ledger row
// =============================================================================

// BalanceKey identifies a single ledger row.
type BalanceKey struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Year        int
}

// Balance is the per-employee, per-leave-type, per-year ledger row.
//
// INVARIANT: AvailableDays == TotalAllocated + CarriedForward - UsedDays
// after every mutation. The store recomputes this explicitly on each
// write rather than accumulating deltas.
type Balance struct {
	EmployeeID      EmployeeID
	LeaveTypeID     LeaveTypeID
	Year            int
	TotalAllocated  decimal.Decimal
	UsedDays        decimal.Decimal
	AvailableDays   decimal.Decimal
	CarriedForward  decimal.Decimal
	UnpaidDaysTaken decimal.Decimal
	UpdatedAt       time.Time
}

// Key returns the identifying key of this row.
func (b Balance) Key() BalanceKey {
	return BalanceKey{EmployeeID: b.EmployeeID, LeaveTypeID: b.LeaveTypeID, Year: b.Year}
}

// InvariantHolds reports whether the availability equation holds.
func (b Balance) InvariantHolds() bool {
	return b.AvailableDays.Equal(b.TotalAllocated.Add(b.CarriedForward).Sub(b.UsedDays))
}

// =============================================================================
// APPLICATION - one leave request
// =============================================================================

type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "PENDING"
	StatusApproved ApplicationStatus = "APPROVED"
	StatusRejected ApplicationStatus = "REJECTED"
)

// Decided reports whether the status is terminal.
func (s ApplicationStatus) Decided() bool {
	return s == StatusApproved || s == StatusRejected
}

type PayStatus string

const (
	PayStatusPaid   PayStatus = "PAID"
	PayStatusUnpaid PayStatus = "UNPAID"
)

// Application is one leave request. Owned by the employee who filed it,
// mutated only by the approval decision, immutable once decided.
type Application struct {
	ID                ApplicationID
	EmployeeID        EmployeeID
	EmployeeName      string // joined on read, not stored on the row
	LeaveTypeID       LeaveTypeID
	LeaveTypeName     string // joined on read
	FromDate          time.Time
	ToDate            time.Time
	Reason            string
	TotalDays         decimal.Decimal
	Status            ApplicationStatus
	PaidDays          decimal.Decimal
	UnpaidDays        decimal.Decimal
	IsPartiallyUnpaid bool
	AppliedAt         time.Time
	ResponseAt        *time.Time
	ApprovedBy        EmployeeID
	RejectionReason   string
	Days              []ApplicationDay
}

// ApplicationDay is one calendar day of an application. Created atomically
// with its parent and never mutated afterward: pay status is fixed at
// submission time, not recomputed at approval time.
type ApplicationDay struct {
	Date        time.Time
	IsHalfDay   bool
	HalfDayType HalfDayType
	PayStatus   PayStatus
}

// Weight returns the day's contribution to the application total.
func (d ApplicationDay) Weight() decimal.Decimal {
	if d.IsHalfDay {
		return HalfDayWeight
	}
	return FullDayWeight
}

// =============================================================================
// PAYMENT DETAILS - allocation audit snapshot
// =============================================================================

// PaymentDetails preserves what balance the allocation decision was based
// on, independent of later ledger mutations. Best-effort: a missing
// snapshot never blocks a submission or a decision.
type PaymentDetails struct {
	ApplicationID   ApplicationID
	RequestedDays   decimal.Decimal
	PaidDays        decimal.Decimal
	UnpaidDays      decimal.Decimal
	AvailableAtTime decimal.Decimal
	CreatedAt       time.Time
}

// =============================================================================
// APPROVAL WORKFLOW - one row per (application, approver, level)
// =============================================================================

// ApprovalWorkflow records who must decide an application. Created at
// submission time with the approver resolved from the reporting line
// (default approver when none exists); decided exactly once.
type ApprovalWorkflow struct {
	ID            WorkflowID
	ApplicationID ApplicationID
	ApproverID    EmployeeID
	ApprovalLevel int
	Status        ApplicationStatus
	Comments      string
	ActionDate    *time.Time
	CreatedAt     time.Time
}

// =============================================================================
// ACCRUAL LOG - audit + idempotency fence
// =============================================================================

// CarryForwardMonth is the month value under which year-end carry-forward
// runs are logged; real accrual months are 1..12.
const CarryForwardMonth = 0

// AccrualLog is the audit row per (leave type, year, month). The scheduler
// checks it before crediting, which makes re-invocation a no-op.
type AccrualLog struct {
	ID                string
	LeaveTypeID       LeaveTypeID
	Year              int
	Month             int
	AccrualAmount     decimal.Decimal
	EmployeesAffected int
	ProcessedAt       time.Time
}

// =============================================================================
// DIRECTORY TYPES - supplied by the user-directory collaborator
// =============================================================================

// Employee is the directory record the engine consumes: reporting line,
// active flag, and the attributes eligibility rules evaluate.
type Employee struct {
	ID        EmployeeID
	Name      string
	Email     string
	ManagerID *EmployeeID
	Gender    string
	Active    bool
	HireDate  time.Time
}

// LeaveType is a named category of absence with its own yearly balance,
// accrual policy, and eligibility restriction.
type LeaveType struct {
	ID                LeaveTypeID
	Name              string
	MonthlyAccrual    decimal.Decimal
	GenderRestriction string // empty means unrestricted
	Active            bool
}

// =============================================================================
// NOTIFICATION EVENTS - delivered out-of-band by an external notifier
// =============================================================================

// LeaveSubmitted is emitted after a successful submission.
type LeaveSubmitted struct {
	ApplicationID ApplicationID
	EmployeeID    EmployeeID
	ApproverID    EmployeeID
	LeaveType     string
	FromDate      time.Time
	ToDate        time.Time
	TotalDays     decimal.Decimal
	Reason        string
}

// LeaveDecided is emitted after an approval decision.
type LeaveDecided struct {
	ApplicationID ApplicationID
	EmployeeID    EmployeeID
	ApproverID    EmployeeID
	Status        ApplicationStatus
	Comments      string
	LeaveType     string
	FromDate      time.Time
	ToDate        time.Time
	TotalDays     decimal.Decimal
}
