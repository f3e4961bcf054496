/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All domain errors in one place. The HTTP layer maps classes of these
  errors to status codes; it never inspects error strings.

ERROR CATEGORIES:
  1. Validation errors  - malformed submissions, rejected before any write
  2. Eligibility errors - leave-type restriction not satisfied
  3. Not-found errors   - unknown application/employee/leave type
  4. Conflict errors    - re-decided workflow rows, insufficient balance
  5. Persistence errors - transaction/commit failures

USAGE:
  if errors.Is(err, leave.ErrInsufficientBalance) { ... }

  var verr *leave.ValidationError
  if errors.As(err, &verr) { ... verr.Field ... }
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrApplicationNotFound is returned when an application id is unknown.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrEmployeeNotFound is returned when an employee id is unknown.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrLeaveTypeNotFound is returned when a leave type id is unknown
	// or no standard leave type is configured.
	ErrLeaveTypeNotFound = errors.New("leave type not found")

	// ErrInsufficientBalance is returned by the guarded debit when the
	// requested amount exceeds the available days on the ledger row.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyDecided is returned when a decision is recorded against a
	// workflow row or application that is no longer pending. Second
	// decisions are rejected, never overwritten.
	ErrAlreadyDecided = errors.New("already decided")

	// ErrNotEligible is returned when a leave-type restriction excludes
	// the requesting employee.
	ErrNotEligible = errors.New("not eligible for leave type")

	// ErrInvalidSubmission is the sentinel all ValidationErrors unwrap to.
	ErrInvalidSubmission = errors.New("invalid submission")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a missing or malformed submission field.
// Detected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSubmission }

// EligibilityError reports which restriction excluded the employee.
type EligibilityError struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Rule        string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("employee %s is not eligible for leave type %s (%s)",
		e.EmployeeID, e.LeaveTypeID, e.Rule)
}

func (e *EligibilityError) Unwrap() error { return ErrNotEligible }

// InsufficientBalanceError provides details about a balance shortage on
// the hardened debit path.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s/%d: available %s, requested %s",
		e.Key.EmployeeID, e.Key.LeaveTypeID, e.Key.Year, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSubmission) ||
		errors.Is(err, ErrNotEligible)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrApplicationNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrLeaveTypeNotFound)
}

// IsConflict returns true if the error indicates a state conflict that a
// retry with the same input cannot fix.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, ErrInsufficientBalance)
}
