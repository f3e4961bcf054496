/*
accrual.go - Scheduled balance maintenance

PURPOSE:
  Two idempotent batch jobs over the yearly ledger:
    RunMonthlyAccrual        credit the policy amount to every active,
                             eligible employee once per calendar month
    RunYearEndCarryForward   roll unspent balance into the next year

IDEMPOTENCY:
  Crediting is not naturally idempotent (re-running doubles balances), so
  each run claims its accrual-log row before touching any balance. The
  claim is a unique insert on (leave type, year, month): exactly one run
  per period wins it, losers skip without crediting, even when the timer
  and a manual trigger fire together. Carry-forward runs are logged under
  month 0 of the target year.

FAILURE ISOLATION:
  One employee's failure is logged and counted; it never aborts the rest
  of the batch.

SEE ALSO:
  - api/scheduler.go: ticker-driven invocation
  - store.go: BalanceStore, AccrualLogStore
*/
package leave

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMonthlyAccrual is the policy amount credited per month when the
// leave type does not carry its own rate.
var DefaultMonthlyAccrual = decimal.New(15, -1) // 1.5 days

// AccrualEngine runs the scheduled ledger maintenance jobs.
type AccrualEngine struct {
	store Store
	dir   Directory
}

// NewAccrualEngine wires the engine.
func NewAccrualEngine(store Store, dir Directory) *AccrualEngine {
	return &AccrualEngine{store: store, dir: dir}
}

// AccrualSummary reports what a batch run did.
type AccrualSummary struct {
	LeaveTypeID LeaveTypeID
	Year        int
	Month       int
	Amount      decimal.Decimal
	Credited    int
	Failed      int
	Skipped     bool // fence row already existed; nothing was credited
}

// RunMonthlyAccrual credits the standard leave type for the month of now.
// Safe to invoke more than once per month, including concurrently: the
// run claims the accrual-log row before crediting, so at most one caller
// per period ever reaches the credit loop.
func (e *AccrualEngine) RunMonthlyAccrual(ctx context.Context, now time.Time) (AccrualSummary, error) {
	lt, err := e.dir.StandardLeaveType(ctx)
	if err != nil {
		return AccrualSummary{}, err
	}

	year, month := now.Year(), int(now.Month())
	summary := AccrualSummary{LeaveTypeID: lt.ID, Year: year, Month: month}

	amount := lt.MonthlyAccrual
	if amount.IsZero() {
		amount = DefaultMonthlyAccrual
	}
	summary.Amount = amount

	entry := AccrualLog{
		ID:            uuid.NewString(),
		LeaveTypeID:   lt.ID,
		Year:          year,
		Month:         month,
		AccrualAmount: amount,
		ProcessedAt:   now.UTC(),
	}
	claimed, err := e.store.ClaimAccrualLog(ctx, entry)
	if err != nil {
		return summary, err
	}
	if !claimed {
		summary.Skipped = true
		log.Printf("[Accrual] %s %d-%02d already processed, skipping", lt.ID, year, month)
		return summary, nil
	}

	employees, err := e.dir.ActiveEmployees(ctx)
	if err != nil {
		return summary, err
	}

	for _, emp := range employees {
		if CheckEligibility(lt, emp) != nil {
			continue
		}
		key := BalanceKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID, Year: year}
		if _, err := e.store.EnsureBalance(ctx, key); err != nil {
			log.Printf("[Accrual] bootstrap for %s failed: %v", emp.ID, err)
			summary.Failed++
			continue
		}
		if err := e.store.Credit(ctx, key, amount); err != nil {
			log.Printf("[Accrual] credit for %s failed: %v", emp.ID, err)
			summary.Failed++
			continue
		}
		summary.Credited++
	}

	entry.EmployeesAffected = summary.Credited
	if err := e.store.SaveAccrualLog(ctx, entry); err != nil {
		return summary, err
	}

	log.Printf("[Accrual] %s %d-%02d: credited %d employee(s) %s day(s), %d failed",
		lt.ID, year, month, summary.Credited, amount, summary.Failed)
	return summary, nil
}

// RunYearEndCarryForward rolls every active, eligible employee's unspent
// balance from year(now) into year(now)+1. Claims a month-0 log row on
// the target year first, so the timer and a manual trigger cannot both
// roll the ledger.
func (e *AccrualEngine) RunYearEndCarryForward(ctx context.Context, now time.Time) (AccrualSummary, error) {
	lt, err := e.dir.StandardLeaveType(ctx)
	if err != nil {
		return AccrualSummary{}, err
	}

	fromYear := now.Year()
	toYear := fromYear + 1
	summary := AccrualSummary{LeaveTypeID: lt.ID, Year: toYear, Month: CarryForwardMonth}

	entry := AccrualLog{
		ID:            uuid.NewString(),
		LeaveTypeID:   lt.ID,
		Year:          toYear,
		Month:         CarryForwardMonth,
		AccrualAmount: decimal.Zero,
		ProcessedAt:   now.UTC(),
	}
	claimed, err := e.store.ClaimAccrualLog(ctx, entry)
	if err != nil {
		return summary, err
	}
	if !claimed {
		summary.Skipped = true
		log.Printf("[Accrual] carry-forward %d->%d already processed, skipping", fromYear, toYear)
		return summary, nil
	}

	affected, err := e.store.RolloverYear(ctx, lt.ID, fromYear, toYear)
	if err != nil {
		return summary, err
	}
	summary.Credited = affected

	entry.EmployeesAffected = affected
	if err := e.store.SaveAccrualLog(ctx, entry); err != nil {
		return summary, err
	}

	log.Printf("[Accrual] carry-forward %d->%d: %d employee(s) rolled over", fromYear, toYear, affected)
	return summary, nil
}

// Stats returns the recorded runs, newest first, for the admin endpoint.
func (e *AccrualEngine) Stats(ctx context.Context) ([]AccrualLog, error) {
	return e.store.AccrualLogs(ctx)
}
