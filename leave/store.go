/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines what the domain core needs from the outside world: the durable
  store (balances, applications, workflows, accrual logs), the employee
  directory, and the notification side channel. The SQLite implementation
  lives in store/sqlite; tests may substitute their own.

TRANSACTION BOUNDARIES:
  CreateApplication and DecideApplication are the two multi-row units that
  must be atomic. They are single methods so the implementation can wrap
  them in one database transaction with commit-or-rollback. An approval's
  ledger debit rides inside DecideApplication as a LedgerEffect: the debit
  lands if and only if the decision claims the pending rows.

SEE ALSO:
  - store/sqlite/sqlite.go: the production implementation
  - notify/notify.go: Notifier implementations
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE LEDGER
// =============================================================================

// BalanceStore is the guarded mutation surface of the yearly ledger.
type BalanceStore interface {
	// EnsureBalance returns the existing row or creates one at all-zero.
	// Safe to call repeatedly: create-if-absent, never duplicate.
	EnsureBalance(ctx context.Context, key BalanceKey) (Balance, error)

	// Credit increases TotalAllocated and recomputes AvailableDays.
	Credit(ctx context.Context, key BalanceKey, amount decimal.Decimal) error

	// Debit increases UsedDays and recomputes AvailableDays. The update is
	// conditional on sufficient availability; on shortage it returns an
	// InsufficientBalanceError and changes nothing.
	Debit(ctx context.Context, key BalanceKey, amount decimal.Decimal) error

	// AddUnpaidTaken increments UnpaidDaysTaken only. Unpaid days were
	// never available, so AvailableDays is untouched.
	AddUnpaidTaken(ctx context.Context, key BalanceKey, amount decimal.Decimal) error

	// RolloverYear carries every active, eligible employee's fromYear
	// availability into a fresh toYear row. Upsert semantics: re-running
	// overwrites rather than duplicates. Returns employees affected.
	RolloverYear(ctx context.Context, leaveTypeID LeaveTypeID, fromYear, toYear int) (int, error)

	// Balance returns the row for the key, found=false when it does not
	// exist yet.
	Balance(ctx context.Context, key BalanceKey) (Balance, bool, error)

	// Available returns the available days, zero (never an error) when no
	// row exists.
	Available(ctx context.Context, key BalanceKey) (decimal.Decimal, error)

	// ResetBalance zeroes every field of the row (admin operation).
	ResetBalance(ctx context.Context, key BalanceKey) error
}

// =============================================================================
// APPLICATIONS
// =============================================================================

// LedgerEffect is the balance mutation an approval carries into
// DecideApplication. It is applied only when the guarded status updates
// claim the pending rows, so two racing approvals can never both debit.
type LedgerEffect struct {
	Key        BalanceKey
	PaidDays   decimal.Decimal // debited; checked against availability
	UnpaidDays decimal.Decimal // tallied only, never affects availability
}

// ApplicationStore persists applications, their day rows, and payment
// snapshots.
type ApplicationStore interface {
	// CreateApplication inserts the application row and all day rows in a
	// single transaction. A failure at any step leaves no partial rows.
	CreateApplication(ctx context.Context, app Application) (ApplicationID, error)

	// ApplicationByID returns the application joined with leave-type and
	// employee names plus its day list, or ErrApplicationNotFound.
	ApplicationByID(ctx context.Context, id ApplicationID) (Application, error)

	// Read projections; each attaches the application's day list.
	ApplicationsByEmployee(ctx context.Context, employeeID EmployeeID) ([]Application, error)
	PendingForApprover(ctx context.Context, approverID EmployeeID) ([]Application, error)
	ApplicationsForManager(ctx context.Context, managerID EmployeeID) ([]Application, error)
	AllApplications(ctx context.Context) ([]Application, error)

	// UpdateApplicationStatus sets status, response time, approver, and
	// rejection reason. Balance effects belong to DecideApplication.
	UpdateApplicationStatus(ctx context.Context, id ApplicationID, status ApplicationStatus, approverID EmployeeID, comments string) error

	// DecideApplication applies the application status update, the
	// workflow decision, and the optional ledger effect in one
	// transaction, so a decided application can never coexist with an
	// undecided workflow row or a half-applied debit. Returns
	// ErrAlreadyDecided if either row is no longer pending; in that case
	// the effect is not applied. An InsufficientBalanceError from the
	// effect rolls the decision back and leaves the application pending.
	DecideApplication(ctx context.Context, id ApplicationID, approverID EmployeeID, status ApplicationStatus, comments string, effect *LedgerEffect) error

	// SavePaymentDetails persists the allocation snapshot (best-effort
	// from the caller's point of view).
	SavePaymentDetails(ctx context.Context, pd PaymentDetails) error

	// PaymentDetailsByApplication returns the snapshot, found=false when
	// the best-effort write never landed.
	PaymentDetailsByApplication(ctx context.Context, id ApplicationID) (PaymentDetails, bool, error)
}

// =============================================================================
// APPROVAL WORKFLOW
// =============================================================================

// WorkflowStore persists approval workflow rows.
type WorkflowStore interface {
	// CreateWorkflow inserts the pending approver row for an application.
	CreateWorkflow(ctx context.Context, wf ApprovalWorkflow) error

	// WorkflowByApplication returns the workflow row for an application.
	WorkflowByApplication(ctx context.Context, id ApplicationID) (ApprovalWorkflow, bool, error)
}

// =============================================================================
// ACCRUAL LOG
// =============================================================================

// AccrualLogStore persists the scheduler's audit/fence rows.
type AccrualLogStore interface {
	// ClaimAccrualLog inserts the fence row for (type, year, month).
	// claimed=false means another run already holds the period; the two
	// outcomes are decided atomically, so concurrent runs cannot both
	// claim.
	ClaimAccrualLog(ctx context.Context, entry AccrualLog) (claimed bool, err error)

	// SaveAccrualLog upserts the audit row for a run, recording the
	// final employee count on a previously claimed fence.
	SaveAccrualLog(ctx context.Context, entry AccrualLog) error

	// AccrualLogs returns all recorded runs, newest first.
	AccrualLogs(ctx context.Context) ([]AccrualLog, error)
}

// =============================================================================
// DIRECTORY - external collaborator
// =============================================================================

// Directory supplies reporting lines and employee/leave-type attributes.
// The engine performs no credential checks; it trusts this collaborator.
type Directory interface {
	// ManagerOf returns the employee's approver from the reporting line,
	// found=false when the employee has no manager.
	ManagerOf(ctx context.Context, id EmployeeID) (EmployeeID, bool, error)

	// EmployeeByID returns the directory record or ErrEmployeeNotFound.
	EmployeeByID(ctx context.Context, id EmployeeID) (Employee, error)

	// ActiveEmployees returns every active employee, for batch jobs.
	ActiveEmployees(ctx context.Context) ([]Employee, error)

	// LeaveTypeByID returns the leave type or ErrLeaveTypeNotFound.
	LeaveTypeByID(ctx context.Context, id LeaveTypeID) (LeaveType, error)

	// StandardLeaveType returns the leave type the scheduled jobs accrue,
	// or ErrLeaveTypeNotFound when none is configured.
	StandardLeaveType(ctx context.Context) (LeaveType, error)
}

// =============================================================================
// NOTIFIER - fire-and-forget side channel
// =============================================================================

// Notifier delivers structured events out-of-band. Implementations must
// never block the caller; the service logs and swallows any error.
type Notifier interface {
	LeaveSubmitted(ctx context.Context, ev LeaveSubmitted) error
	LeaveDecided(ctx context.Context, ev LeaveDecided) error
}

// Store is the full persistence surface the service composes.
type Store interface {
	BalanceStore
	ApplicationStore
	WorkflowStore
	AccrualLogStore
}
