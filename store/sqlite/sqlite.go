/*
Package sqlite provides the SQLite-backed implementation of the leave
engine's storage interfaces.

PURPOSE:
  Implements leave.Store (balances, applications, workflows, accrual logs)
  and leave.Directory (employees, leave types) using SQLite. In production
  the same patterns apply to PostgreSQL - only minor dialect differences.

INTERFACES IMPLEMENTED:
  leave.BalanceStore:     guarded yearly ledger mutations
  leave.ApplicationStore: atomic application + day-row persistence
  leave.WorkflowStore:    one-shot approval rows
  leave.AccrualLogStore:  scheduler audit/fence rows
  leave.Directory:        reporting lines and eligibility attributes

KEY TABLES:
  employees:                directory records (reporting line, attributes)
  leave_types:              absence categories with accrual policy
  leave_balances:           per (employee, type, year) ledger rows
  leave_applications:       one row per request
  leave_application_days:   one row per requested calendar day
  leave_payment_details:    allocation audit snapshots
  leave_approval_workflows: one approver row per application
  leave_accrual_logs:       one row per scheduled run (idempotency fence)

CONSISTENCY:
  - Application + day rows are written inside one database transaction;
    any failure rolls the whole submission back.
  - DecideApplication updates the application row, the workflow row, and
    the approval's ledger effect in one transaction. Both status updates
    are guarded by status='PENDING'; zero rows affected on either aborts
    with leave.ErrAlreadyDecided and the balance is untouched, so a
    losing concurrent approval never debits.
  - Debit verifies availability before writing and returns
    leave.InsufficientBalanceError on shortage; the store-wide mutex
    serializes the check with the write.
  - ClaimAccrualLog relies on the unique (leave_type_id, year, month)
    index: exactly one caller per period wins the insert.
  - AvailableDays is recomputed as allocated + carried - used on every
    balance write, never accumulated.

DECIMALS:
  Day quantities are stored as TEXT and parsed with shopspring/decimal,
  so half-day arithmetic stays exact.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL mode for readers. In
  production with PostgreSQL, row-level locking handles this instead.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: interface definitions
  - leave/service.go: the orchestrator driving these methods
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
)

const dayFormat = "2006-01-02"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and the
	// store serializes writes anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Directory: employees with reporting line and eligibility attributes
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		manager_id TEXT,
		gender TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		hire_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_manager
		ON employees(manager_id);

	-- Directory: leave types with accrual policy and restriction
	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		monthly_accrual TEXT NOT NULL DEFAULT '0',
		gender_restriction TEXT NOT NULL DEFAULT '',
		is_standard BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Yearly ledger rows
	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		total_allocated TEXT NOT NULL DEFAULT '0',
		used_days TEXT NOT NULL DEFAULT '0',
		available_days TEXT NOT NULL DEFAULT '0',
		carried_forward TEXT NOT NULL DEFAULT '0',
		unpaid_days_taken TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_type_id, year)
	);

	-- Applications
	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		reason TEXT NOT NULL,
		total_days TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		paid_days TEXT NOT NULL DEFAULT '0',
		unpaid_days TEXT NOT NULL DEFAULT '0',
		is_partially_unpaid BOOLEAN NOT NULL DEFAULT FALSE,
		applied_at TEXT NOT NULL,
		response_at TEXT,
		approved_by TEXT,
		rejection_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_applications_employee
		ON leave_applications(employee_id);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON leave_applications(status);

	-- One row per requested calendar day; pay status fixed at submission
	CREATE TABLE IF NOT EXISTS leave_application_days (
		application_id TEXT NOT NULL REFERENCES leave_applications(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		is_half_day BOOLEAN NOT NULL DEFAULT FALSE,
		half_day_type TEXT,
		pay_status TEXT NOT NULL,
		PRIMARY KEY (application_id, date)
	);

	-- Allocation audit snapshots
	CREATE TABLE IF NOT EXISTS leave_payment_details (
		application_id TEXT PRIMARY KEY REFERENCES leave_applications(id) ON DELETE CASCADE,
		requested_days TEXT NOT NULL,
		paid_days TEXT NOT NULL,
		unpaid_days TEXT NOT NULL,
		available_at_time TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Approval workflow rows
	CREATE TABLE IF NOT EXISTS leave_approval_workflows (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL REFERENCES leave_applications(id) ON DELETE CASCADE,
		approver_id TEXT NOT NULL,
		approval_level INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'PENDING',
		comments TEXT,
		action_date TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (application_id, approver_id, approval_level)
	);

	CREATE INDEX IF NOT EXISTS idx_workflows_approver
		ON leave_approval_workflows(approver_id, status);

	-- Scheduler audit rows; the unique index is the idempotency fence
	CREATE TABLE IF NOT EXISTS leave_accrual_logs (
		id TEXT PRIMARY KEY,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		accrual_amount TEXT NOT NULL,
		employees_affected INTEGER NOT NULL DEFAULT 0,
		processed_at TEXT NOT NULL,
		UNIQUE (leave_type_id, year, month)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BALANCE LEDGER (leave.BalanceStore interface)
// =============================================================================

// EnsureBalance returns the existing ledger row or creates an all-zero one.
func (s *Store) EnsureBalance(ctx context.Context, key leave.BalanceKey) (leave.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_balances (employee_id, leave_type_id, year, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, leave_type_id, year) DO NOTHING
	`, key.EmployeeID, key.LeaveTypeID, key.Year, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return leave.Balance{}, fmt.Errorf("failed to ensure balance row: %w", err)
	}

	return s.readBalance(ctx, s.db, key)
}

// Credit increases TotalAllocated and recomputes AvailableDays.
func (s *Store) Credit(ctx context.Context, key leave.BalanceKey, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.readBalance(ctx, s.db, key)
	if err != nil {
		return err
	}

	b.TotalAllocated = b.TotalAllocated.Add(amount)
	return s.writeBalance(ctx, s.db, b)
}

// Debit increases UsedDays and recomputes AvailableDays. The availability
// check and the write happen under the store lock; a shortage returns
// leave.InsufficientBalanceError and writes nothing.
func (s *Store) Debit(ctx context.Context, key leave.BalanceKey, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.readBalance(ctx, s.db, key)
	if err != nil {
		return err
	}

	if b.AvailableDays.LessThan(amount) {
		return &leave.InsufficientBalanceError{
			Key:       key,
			Available: b.AvailableDays,
			Requested: amount,
		}
	}

	b.UsedDays = b.UsedDays.Add(amount)
	return s.writeBalance(ctx, s.db, b)
}

// AddUnpaidTaken increments the unpaid tally only. Unpaid days were never
// available, so the availability equation is untouched.
func (s *Store) AddUnpaidTaken(ctx context.Context, key leave.BalanceKey, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.readBalance(ctx, s.db, key)
	if err != nil {
		return err
	}

	b.UnpaidDaysTaken = b.UnpaidDaysTaken.Add(amount)
	return s.writeBalance(ctx, s.db, b)
}

// RolloverYear carries fromYear availability into fresh toYear rows for
// every active, eligible employee holding a fromYear row. Upsert semantics
// make the operation safe to re-run.
func (s *Store) RolloverYear(ctx context.Context, leaveTypeID leave.LeaveTypeID, fromYear, toYear int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lt, err := s.leaveTypeLocked(ctx, leaveTypeID)
	if err != nil {
		return 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.employee_id, b.available_days
		FROM leave_balances b
		JOIN employees e ON e.id = b.employee_id
		WHERE b.leave_type_id = ? AND b.year = ? AND e.active = TRUE
	`, leaveTypeID, fromYear)
	if err != nil {
		return 0, fmt.Errorf("failed to query rollover candidates: %w", err)
	}

	type candidate struct {
		employeeID leave.EmployeeID
		available  decimal.Decimal
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var available string
		if err := rows.Scan(&c.employeeID, &available); err != nil {
			rows.Close()
			return 0, err
		}
		c.available = mustDecimal(available)
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// Eligibility is resolved before the transaction opens so the insert
	// loop never needs a second connection.
	eligible := candidates[:0]
	for _, c := range candidates {
		emp, err := s.employeeLocked(ctx, c.employeeID)
		if err != nil {
			continue
		}
		if leave.CheckEligibility(lt, emp) != nil {
			continue
		}
		eligible = append(eligible, c)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin rollover transaction: %w", err)
	}
	defer sqlTx.Rollback()

	affected := 0
	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range eligible {
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO leave_balances
				(employee_id, leave_type_id, year, total_allocated, used_days,
				 available_days, carried_forward, unpaid_days_taken, updated_at)
			VALUES (?, ?, ?, '0', '0', ?, ?, '0', ?)
			ON CONFLICT(employee_id, leave_type_id, year) DO UPDATE SET
				total_allocated = '0',
				used_days = '0',
				available_days = excluded.available_days,
				carried_forward = excluded.carried_forward,
				unpaid_days_taken = '0',
				updated_at = excluded.updated_at
		`, c.employeeID, leaveTypeID, toYear, c.available.String(), c.available.String(), now)
		if err != nil {
			return 0, fmt.Errorf("failed to roll over %s: %w", c.employeeID, err)
		}
		affected++
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

// Balance returns the ledger row for the key, found=false when it does
// not exist yet.
func (s *Store) Balance(ctx context.Context, key leave.BalanceKey) (leave.Balance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.readBalance(ctx, s.db, key)
	if err == sql.ErrNoRows {
		return leave.Balance{}, false, nil
	}
	if err != nil {
		return leave.Balance{}, false, err
	}
	return b, true, nil
}

// Available returns the available days, zero when no row exists.
func (s *Store) Available(ctx context.Context, key leave.BalanceKey) (decimal.Decimal, error) {
	b, found, err := s.Balance(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, nil
	}
	return b.AvailableDays, nil
}

// ResetBalance zeroes every field of the row (admin operation).
func (s *Store) ResetBalance(ctx context.Context, key leave.BalanceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE leave_balances
		SET total_allocated = '0', used_days = '0', available_days = '0',
		    carried_forward = '0', unpaid_days_taken = '0', updated_at = ?
		WHERE employee_id = ? AND leave_type_id = ? AND year = ?
	`, time.Now().UTC().Format(time.RFC3339), key.EmployeeID, key.LeaveTypeID, key.Year)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so the balance helpers
// can run standalone or inside a decision transaction. With a single
// pooled connection, a helper touching s.db while a transaction is open
// would deadlock; transactional callers must pass their tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) readBalance(ctx context.Context, db dbtx, key leave.BalanceKey) (leave.Balance, error) {
	var (
		b                                           leave.Balance
		allocated, used, available, carried, unpaid string
		updatedAt                                   string
	)
	err := db.QueryRowContext(ctx, `
		SELECT employee_id, leave_type_id, year, total_allocated, used_days,
		       available_days, carried_forward, unpaid_days_taken, updated_at
		FROM leave_balances
		WHERE employee_id = ? AND leave_type_id = ? AND year = ?
	`, key.EmployeeID, key.LeaveTypeID, key.Year).Scan(
		&b.EmployeeID, &b.LeaveTypeID, &b.Year,
		&allocated, &used, &available, &carried, &unpaid, &updatedAt,
	)
	if err != nil {
		return leave.Balance{}, err
	}

	b.TotalAllocated = mustDecimal(allocated)
	b.UsedDays = mustDecimal(used)
	b.AvailableDays = mustDecimal(available)
	b.CarriedForward = mustDecimal(carried)
	b.UnpaidDaysTaken = mustDecimal(unpaid)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return b, nil
}

// writeBalance persists a row, recomputing AvailableDays from its
// parts rather than trusting whatever the caller accumulated.
func (s *Store) writeBalance(ctx context.Context, db dbtx, b leave.Balance) error {
	available := b.TotalAllocated.Add(b.CarriedForward).Sub(b.UsedDays)

	res, err := db.ExecContext(ctx, `
		UPDATE leave_balances
		SET total_allocated = ?, used_days = ?, available_days = ?,
		    carried_forward = ?, unpaid_days_taken = ?, updated_at = ?
		WHERE employee_id = ? AND leave_type_id = ? AND year = ?
	`,
		b.TotalAllocated.String(), b.UsedDays.String(), available.String(),
		b.CarriedForward.String(), b.UnpaidDaysTaken.String(),
		time.Now().UTC().Format(time.RFC3339),
		b.EmployeeID, b.LeaveTypeID, b.Year,
	)
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// =============================================================================
// APPLICATION STORE (leave.ApplicationStore interface)
// =============================================================================

// CreateApplication inserts the application row and all day rows in one
// transaction. A failure at any step leaves no partial rows.
func (s *Store) CreateApplication(ctx context.Context, app leave.Application) (leave.ApplicationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO leave_applications
			(id, employee_id, leave_type_id, from_date, to_date, reason,
			 total_days, status, paid_days, unpaid_days, is_partially_unpaid, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		app.ID, app.EmployeeID, app.LeaveTypeID,
		app.FromDate.Format(dayFormat), app.ToDate.Format(dayFormat),
		app.Reason, app.TotalDays.String(), app.Status,
		app.PaidDays.String(), app.UnpaidDays.String(), app.IsPartiallyUnpaid,
		app.AppliedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert application: %w", err)
	}

	for _, d := range app.Days {
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO leave_application_days
				(application_id, date, is_half_day, half_day_type, pay_status)
			VALUES (?, ?, ?, ?, ?)
		`, app.ID, d.Date.Format(dayFormat), d.IsHalfDay,
			nullString(string(d.HalfDayType)), d.PayStatus)
		if err != nil {
			return "", fmt.Errorf("failed to insert day %s: %w", d.Date.Format(dayFormat), err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit application: %w", err)
	}
	return app.ID, nil
}

const applicationColumns = `
	a.id, a.employee_id, e.name, a.leave_type_id, t.name,
	a.from_date, a.to_date, a.reason, a.total_days, a.status,
	a.paid_days, a.unpaid_days, a.is_partially_unpaid,
	a.applied_at, a.response_at, a.approved_by, a.rejection_reason`

const applicationJoins = `
	FROM leave_applications a
	LEFT JOIN employees e ON e.id = a.employee_id
	LEFT JOIN leave_types t ON t.id = a.leave_type_id`

// ApplicationByID returns the application joined with leave-type and
// employee names plus its day list.
func (s *Store) ApplicationByID(ctx context.Context, id leave.ApplicationID) (leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps, err := s.queryApplications(ctx,
		"SELECT"+applicationColumns+applicationJoins+" WHERE a.id = ?", id)
	if err != nil {
		return leave.Application{}, err
	}
	if len(apps) == 0 {
		return leave.Application{}, leave.ErrApplicationNotFound
	}
	return apps[0], nil
}

// ApplicationsByEmployee returns the employee's applications, newest first.
func (s *Store) ApplicationsByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApplications(ctx,
		"SELECT"+applicationColumns+applicationJoins+
			" WHERE a.employee_id = ? ORDER BY a.applied_at DESC", employeeID)
}

// PendingForApprover returns applications awaiting this approver. Both the
// workflow row and the application itself must still be pending.
func (s *Store) PendingForApprover(ctx context.Context, approverID leave.EmployeeID) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApplications(ctx,
		"SELECT"+applicationColumns+applicationJoins+`
		JOIN leave_approval_workflows w ON w.application_id = a.id
		WHERE w.approver_id = ? AND w.status = 'PENDING' AND a.status = 'PENDING'
		ORDER BY a.applied_at ASC`, approverID)
}

// ApplicationsForManager returns every application filed by the manager's
// direct reports.
func (s *Store) ApplicationsForManager(ctx context.Context, managerID leave.EmployeeID) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApplications(ctx,
		"SELECT"+applicationColumns+applicationJoins+
			" WHERE e.manager_id = ? ORDER BY a.applied_at DESC", managerID)
}

// AllApplications is the unfiltered admin projection.
func (s *Store) AllApplications(ctx context.Context) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApplications(ctx,
		"SELECT"+applicationColumns+applicationJoins+" ORDER BY a.applied_at DESC")
}

// UpdateApplicationStatus sets the decision fields on the application row
// only. Balance effects belong to the service layer.
func (s *Store) UpdateApplicationStatus(ctx context.Context, id leave.ApplicationID, status leave.ApplicationStatus, approverID leave.EmployeeID, comments string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateApplicationStatus(ctx, s.db, id, status, approverID, comments)
}

func (s *Store) updateApplicationStatus(ctx context.Context, db dbtx, id leave.ApplicationID, status leave.ApplicationStatus, approverID leave.EmployeeID, comments string) error {
	rejection := ""
	if status == leave.StatusRejected {
		rejection = comments
	}

	res, err := db.ExecContext(ctx, `
		UPDATE leave_applications
		SET status = ?, response_at = ?, approved_by = ?, rejection_reason = ?
		WHERE id = ? AND status = 'PENDING'
	`, status, time.Now().UTC().Format(time.RFC3339), approverID, nullString(rejection), id)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return leave.ErrAlreadyDecided
	}
	return nil
}

// DecideApplication applies the application update, the workflow
// decision, and the optional ledger effect in one transaction. The
// guarded status updates run first: a caller that finds the rows already
// decided gets leave.ErrAlreadyDecided before the balance is read, so
// racing approvals cannot both debit. A failed effect (shortage) rolls
// the whole decision back.
func (s *Store) DecideApplication(ctx context.Context, id leave.ApplicationID, approverID leave.EmployeeID, status leave.ApplicationStatus, comments string, effect *leave.LedgerEffect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.updateApplicationStatus(ctx, sqlTx, id, status, approverID, comments); err != nil {
		return err
	}

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE leave_approval_workflows
		SET status = ?, comments = ?, action_date = ?
		WHERE application_id = ? AND status = 'PENDING'
	`, status, nullString(comments), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to record workflow decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return leave.ErrAlreadyDecided
	}

	if effect != nil {
		if err := s.applyLedgerEffect(ctx, sqlTx, *effect); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// applyLedgerEffect ensures the balance row exists, then debits the paid
// days and tallies the unpaid ones through the caller's transaction.
func (s *Store) applyLedgerEffect(ctx context.Context, tx dbtx, effect leave.LedgerEffect) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO leave_balances (employee_id, leave_type_id, year, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, leave_type_id, year) DO NOTHING
	`, effect.Key.EmployeeID, effect.Key.LeaveTypeID, effect.Key.Year,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to ensure balance row: %w", err)
	}

	b, err := s.readBalance(ctx, tx, effect.Key)
	if err != nil {
		return err
	}

	if effect.PaidDays.IsPositive() && b.AvailableDays.LessThan(effect.PaidDays) {
		return &leave.InsufficientBalanceError{
			Key:       effect.Key,
			Available: b.AvailableDays,
			Requested: effect.PaidDays,
		}
	}

	b.UsedDays = b.UsedDays.Add(effect.PaidDays)
	b.UnpaidDaysTaken = b.UnpaidDaysTaken.Add(effect.UnpaidDays)
	return s.writeBalance(ctx, tx, b)
}

// SavePaymentDetails persists an allocation snapshot. First write wins:
// the snapshot must keep reflecting what the allocation originally saw.
func (s *Store) SavePaymentDetails(ctx context.Context, pd leave.PaymentDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_payment_details
			(application_id, requested_days, paid_days, unpaid_days, available_at_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(application_id) DO NOTHING
	`,
		pd.ApplicationID, pd.RequestedDays.String(), pd.PaidDays.String(),
		pd.UnpaidDays.String(), pd.AvailableAtTime.String(),
		pd.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// PaymentDetailsByApplication returns the snapshot, found=false when the
// best-effort write never landed.
func (s *Store) PaymentDetailsByApplication(ctx context.Context, id leave.ApplicationID) (leave.PaymentDetails, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		pd                                 leave.PaymentDetails
		requested, paid, unpaid, available string
		createdAt                          string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT application_id, requested_days, paid_days, unpaid_days, available_at_time, created_at
		FROM leave_payment_details WHERE application_id = ?
	`, id).Scan(&pd.ApplicationID, &requested, &paid, &unpaid, &available, &createdAt)
	if err == sql.ErrNoRows {
		return leave.PaymentDetails{}, false, nil
	}
	if err != nil {
		return leave.PaymentDetails{}, false, err
	}

	pd.RequestedDays = mustDecimal(requested)
	pd.PaidDays = mustDecimal(paid)
	pd.UnpaidDays = mustDecimal(unpaid)
	pd.AvailableAtTime = mustDecimal(available)
	pd.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return pd, true, nil
}

func (s *Store) queryApplications(ctx context.Context, query string, args ...any) ([]leave.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []leave.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range apps {
		days, err := s.applicationDays(ctx, apps[i].ID)
		if err != nil {
			return nil, err
		}
		apps[i].Days = days
	}
	return apps, nil
}

func scanApplication(rows *sql.Rows) (leave.Application, error) {
	var (
		app                               leave.Application
		employeeName, leaveTypeName       sql.NullString
		fromDate, toDate                  string
		totalDays, paidDays, unpaidDays   string
		appliedAt                         string
		responseAt, approvedBy, rejection sql.NullString
	)

	err := rows.Scan(
		&app.ID, &app.EmployeeID, &employeeName, &app.LeaveTypeID, &leaveTypeName,
		&fromDate, &toDate, &app.Reason, &totalDays, &app.Status,
		&paidDays, &unpaidDays, &app.IsPartiallyUnpaid,
		&appliedAt, &responseAt, &approvedBy, &rejection,
	)
	if err != nil {
		return app, fmt.Errorf("failed to scan application: %w", err)
	}

	app.EmployeeName = employeeName.String
	app.LeaveTypeName = leaveTypeName.String
	app.FromDate, _ = time.Parse(dayFormat, fromDate)
	app.ToDate, _ = time.Parse(dayFormat, toDate)
	app.TotalDays = mustDecimal(totalDays)
	app.PaidDays = mustDecimal(paidDays)
	app.UnpaidDays = mustDecimal(unpaidDays)
	app.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
	if responseAt.Valid {
		t, _ := time.Parse(time.RFC3339, responseAt.String)
		app.ResponseAt = &t
	}
	app.ApprovedBy = leave.EmployeeID(approvedBy.String)
	app.RejectionReason = rejection.String
	return app, nil
}

func (s *Store) applicationDays(ctx context.Context, id leave.ApplicationID) ([]leave.ApplicationDay, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, is_half_day, half_day_type, pay_status
		FROM leave_application_days
		WHERE application_id = ?
		ORDER BY date ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query application days: %w", err)
	}
	defer rows.Close()

	var days []leave.ApplicationDay
	for rows.Next() {
		var (
			d           leave.ApplicationDay
			date        string
			halfDayType sql.NullString
		)
		if err := rows.Scan(&date, &d.IsHalfDay, &halfDayType, &d.PayStatus); err != nil {
			return nil, err
		}
		d.Date, _ = time.Parse(dayFormat, date)
		d.HalfDayType = leave.HalfDayType(halfDayType.String)
		days = append(days, d)
	}
	return days, rows.Err()
}

// =============================================================================
// APPROVAL WORKFLOW STORE (leave.WorkflowStore interface)
// =============================================================================

// CreateWorkflow inserts the pending approver row for an application.
func (s *Store) CreateWorkflow(ctx context.Context, wf leave.ApprovalWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_approval_workflows
			(id, application_id, approver_id, approval_level, status, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		wf.ID, wf.ApplicationID, wf.ApproverID, wf.ApprovalLevel,
		wf.Status, nullString(wf.Comments), wf.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow row: %w", err)
	}
	return nil
}

// WorkflowByApplication returns the first-level workflow row.
func (s *Store) WorkflowByApplication(ctx context.Context, id leave.ApplicationID) (leave.ApprovalWorkflow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		wf                   leave.ApprovalWorkflow
		comments, actionDate sql.NullString
		createdAt            string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, application_id, approver_id, approval_level, status, comments, action_date, created_at
		FROM leave_approval_workflows
		WHERE application_id = ?
		ORDER BY approval_level ASC
		LIMIT 1
	`, id).Scan(&wf.ID, &wf.ApplicationID, &wf.ApproverID, &wf.ApprovalLevel,
		&wf.Status, &comments, &actionDate, &createdAt)
	if err == sql.ErrNoRows {
		return leave.ApprovalWorkflow{}, false, nil
	}
	if err != nil {
		return leave.ApprovalWorkflow{}, false, err
	}

	wf.Comments = comments.String
	if actionDate.Valid {
		t, _ := time.Parse(time.RFC3339, actionDate.String)
		wf.ActionDate = &t
	}
	wf.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return wf, true, nil
}

// =============================================================================
// ACCRUAL LOG STORE (leave.AccrualLogStore interface)
// =============================================================================

// ClaimAccrualLog inserts the fence row for the entry's period. The
// unique (leave_type_id, year, month) index turns the insert into an
// atomic claim: claimed=false means another run already holds it.
func (s *Store) ClaimAccrualLog(ctx context.Context, entry leave.AccrualLog) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_accrual_logs
			(id, leave_type_id, year, month, accrual_amount, employees_affected, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(leave_type_id, year, month) DO NOTHING
	`,
		entry.ID, entry.LeaveTypeID, entry.Year, entry.Month,
		entry.AccrualAmount.String(), entry.EmployeesAffected,
		entry.ProcessedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim accrual log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveAccrualLog upserts the audit row for a run, typically to record
// the final employee count on a previously claimed fence.
func (s *Store) SaveAccrualLog(ctx context.Context, entry leave.AccrualLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_accrual_logs
			(id, leave_type_id, year, month, accrual_amount, employees_affected, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(leave_type_id, year, month) DO UPDATE SET
			accrual_amount = excluded.accrual_amount,
			employees_affected = excluded.employees_affected,
			processed_at = excluded.processed_at
	`,
		entry.ID, entry.LeaveTypeID, entry.Year, entry.Month,
		entry.AccrualAmount.String(), entry.EmployeesAffected,
		entry.ProcessedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// AccrualLogs returns all recorded runs, newest first.
func (s *Store) AccrualLogs(ctx context.Context) ([]leave.AccrualLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, leave_type_id, year, month, accrual_amount, employees_affected, processed_at
		FROM leave_accrual_logs
		ORDER BY processed_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []leave.AccrualLog
	for rows.Next() {
		var (
			entry       leave.AccrualLog
			amount      string
			processedAt string
		)
		if err := rows.Scan(&entry.ID, &entry.LeaveTypeID, &entry.Year, &entry.Month,
			&amount, &entry.EmployeesAffected, &processedAt); err != nil {
			return nil, err
		}
		entry.AccrualAmount = mustDecimal(amount)
		entry.ProcessedAt, _ = time.Parse(time.RFC3339, processedAt)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// =============================================================================
// DIRECTORY (leave.Directory interface)
// =============================================================================

// SaveEmployee upserts a directory record.
func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var managerID any
	if emp.ManagerID != nil {
		managerID = string(*emp.ManagerID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, manager_id, gender, active, hire_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			manager_id = excluded.manager_id,
			gender = excluded.gender,
			active = excluded.active,
			hire_date = excluded.hire_date
	`,
		emp.ID, emp.Name, emp.Email, managerID, emp.Gender, emp.Active,
		emp.HireDate.Format(dayFormat), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// EmployeeByID returns the directory record.
func (s *Store) EmployeeByID(ctx context.Context, id leave.EmployeeID) (leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.employeeLocked(ctx, id)
}

func (s *Store) employeeLocked(ctx context.Context, id leave.EmployeeID) (leave.Employee, error) {
	var (
		emp       leave.Employee
		managerID sql.NullString
		hireDate  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, manager_id, gender, active, hire_date
		FROM employees WHERE id = ?
	`, id).Scan(&emp.ID, &emp.Name, &emp.Email, &managerID, &emp.Gender, &emp.Active, &hireDate)
	if err == sql.ErrNoRows {
		return leave.Employee{}, leave.ErrEmployeeNotFound
	}
	if err != nil {
		return leave.Employee{}, err
	}

	if managerID.Valid && managerID.String != "" {
		m := leave.EmployeeID(managerID.String)
		emp.ManagerID = &m
	}
	emp.HireDate, _ = time.Parse(dayFormat, hireDate)
	return emp, nil
}

// ManagerOf returns the employee's approver from the reporting line.
func (s *Store) ManagerOf(ctx context.Context, id leave.EmployeeID) (leave.EmployeeID, bool, error) {
	emp, err := s.EmployeeByID(ctx, id)
	if err != nil {
		return "", false, err
	}
	if emp.ManagerID == nil {
		return "", false, nil
	}
	return *emp.ManagerID, true, nil
}

// ActiveEmployees returns every active employee, for batch jobs.
func (s *Store) ActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, manager_id, gender, active, hire_date
		FROM employees
		WHERE active = TRUE
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		var (
			emp       leave.Employee
			managerID sql.NullString
			hireDate  string
		)
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Email, &managerID,
			&emp.Gender, &emp.Active, &hireDate); err != nil {
			return nil, err
		}
		if managerID.Valid && managerID.String != "" {
			m := leave.EmployeeID(managerID.String)
			emp.ManagerID = &m
		}
		emp.HireDate, _ = time.Parse(dayFormat, hireDate)
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// SaveLeaveType upserts a leave type. The standard flag marks the type
// the scheduled jobs accrue.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType, standard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_types (id, name, monthly_accrual, gender_restriction, is_standard, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			monthly_accrual = excluded.monthly_accrual,
			gender_restriction = excluded.gender_restriction,
			is_standard = excluded.is_standard,
			active = excluded.active
	`,
		lt.ID, lt.Name, lt.MonthlyAccrual.String(), lt.GenderRestriction,
		standard, lt.Active, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// LeaveTypeByID returns the leave type.
func (s *Store) LeaveTypeByID(ctx context.Context, id leave.LeaveTypeID) (leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.leaveTypeLocked(ctx, id)
}

func (s *Store) leaveTypeLocked(ctx context.Context, id leave.LeaveTypeID) (leave.LeaveType, error) {
	var (
		lt      leave.LeaveType
		accrual string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, monthly_accrual, gender_restriction, active
		FROM leave_types WHERE id = ?
	`, id).Scan(&lt.ID, &lt.Name, &accrual, &lt.GenderRestriction, &lt.Active)
	if err == sql.ErrNoRows {
		return leave.LeaveType{}, leave.ErrLeaveTypeNotFound
	}
	if err != nil {
		return leave.LeaveType{}, err
	}
	lt.MonthlyAccrual = mustDecimal(accrual)
	return lt, nil
}

// StandardLeaveType returns the type flagged for scheduled accrual.
func (s *Store) StandardLeaveType(ctx context.Context) (leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		lt      leave.LeaveType
		accrual string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, monthly_accrual, gender_restriction, active
		FROM leave_types
		WHERE is_standard = TRUE AND active = TRUE
		LIMIT 1
	`).Scan(&lt.ID, &lt.Name, &accrual, &lt.GenderRestriction, &lt.Active)
	if err == sql.ErrNoRows {
		return leave.LeaveType{}, leave.ErrLeaveTypeNotFound
	}
	if err != nil {
		return leave.LeaveType{}, err
	}
	lt.MonthlyAccrual = mustDecimal(accrual)
	return lt, nil
}

// ListLeaveTypes returns all leave types.
func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, monthly_accrual, gender_restriction, active
		FROM leave_types ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		var (
			lt      leave.LeaveType
			accrual string
		)
		if err := rows.Scan(&lt.ID, &lt.Name, &accrual, &lt.GenderRestriction, &lt.Active); err != nil {
			return nil, err
		}
		lt.MonthlyAccrual = mustDecimal(accrual)
		types = append(types, lt)
	}
	return types, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
