package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	annualLeave = leave.LeaveTypeID("annual")
	yr          = 2026
)

// recordingNotifier captures events so tests can assert async delivery.
type recordingNotifier struct {
	submitted chan leave.LeaveSubmitted
	decided   chan leave.LeaveDecided
	fail      bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		submitted: make(chan leave.LeaveSubmitted, 8),
		decided:   make(chan leave.LeaveDecided, 8),
	}
}

func (n *recordingNotifier) LeaveSubmitted(ctx context.Context, ev leave.LeaveSubmitted) error {
	if n.fail {
		return errors.New("smtp unreachable")
	}
	n.submitted <- ev
	return nil
}

func (n *recordingNotifier) LeaveDecided(ctx context.Context, ev leave.LeaveDecided) error {
	if n.fail {
		return errors.New("smtp unreachable")
	}
	n.decided <- ev
	return nil
}

// newSeededStore builds an in-memory store with the standard leave type
// and a small reporting line: emp-1 reports to mgr-1, emp-orphan has no
// manager.
func newSeededStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()

	require.NoError(t, store.SaveLeaveType(ctx, leave.LeaveType{
		ID:             annualLeave,
		Name:           "Annual Leave",
		MonthlyAccrual: days(1.5),
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
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{
		ID:       "emp-orphan",
		Name:     "Jo Banks",
		Active:   true,
		HireDate: time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC),
	}))

	return store
}

func newTestService(t *testing.T) (*leave.Service, *sqlite.Store, *recordingNotifier) {
	store := newSeededStore(t)
	notifier := newRecordingNotifier()
	service := leave.NewService(store, store, notifier, "hr-admin")
	return service, store, notifier
}

func creditBalance(t *testing.T, store *sqlite.Store, employeeID leave.EmployeeID, amount float64) leave.BalanceKey {
	t.Helper()
	ctx := context.Background()
	key := leave.BalanceKey{EmployeeID: employeeID, LeaveTypeID: annualLeave, Year: yr}
	_, err := store.EnsureBalance(ctx, key)
	require.NoError(t, err)
	require.NoError(t, store.Credit(ctx, key, days(amount)))
	return key
}

func threeDayRequest() leave.SubmissionRequest {
	return leave.SubmissionRequest{
		LeaveTypeID: annualLeave,
		FromDate:    time.Date(yr, time.March, 2, 0, 0, 0, 0, time.UTC),
		ToDate:      time.Date(yr, time.March, 4, 0, 0, 0, 0, time.UTC),
		Reason:      "family visit",
		Days: []leave.RequestedDay{
			fullDay(yr, time.March, 2),
			fullDay(yr, time.March, 3),
			fullDay(yr, time.March, 4),
		},
	}
}

func actor(id string) leave.Actor {
	return leave.Actor{EmployeeID: leave.EmployeeID(id), Role: leave.RoleEmployee}
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestApplyLeave_CreatesApplicationAndWorkflow(t *testing.T) {
	// GIVEN: Employee with 5 days available
	// WHEN: Submitting a 3-day request
	// THEN: Application is PENDING with per-day rows, the manager holds a
	//       pending workflow, and the balance is untouched until approval

	service, store, notifier := newTestService(t)
	ctx := context.Background()
	key := creditBalance(t, store, "emp-1", 5)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)
	require.NotEmpty(t, result.ApplicationID)
	assert.True(t, result.Allocation.PaidDays.Equal(days(3)))
	assert.False(t, result.Allocation.IsPartiallyUnpaid)

	app, err := service.ApplicationByID(ctx, result.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, app.Status)
	assert.Len(t, app.Days, 3)
	assert.Equal(t, "Alex Kim", app.EmployeeName)
	assert.Equal(t, "Annual Leave", app.LeaveTypeName)

	wf, found, err := store.WorkflowByApplication(ctx, result.ApplicationID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, leave.EmployeeID("mgr-1"), wf.ApproverID)
	assert.Equal(t, leave.StatusPending, wf.Status)

	// Submission must not touch the ledger
	b, err := service.BalanceFor(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.AvailableDays.Equal(days(5)))
	assert.True(t, b.UsedDays.IsZero())

	select {
	case ev := <-notifier.submitted:
		assert.Equal(t, result.ApplicationID, ev.ApplicationID)
		assert.Equal(t, leave.EmployeeID("mgr-1"), ev.ApproverID)
	case <-time.After(2 * time.Second):
		t.Fatal("submission notification never arrived")
	}
}

func TestApplyLeave_PartiallyUnpaidMessage(t *testing.T) {
	// GIVEN: Employee with 2 days available
	// WHEN: Requesting 3 days
	// THEN: The result flags the unpaid remainder and snapshots the split

	service, store, _ := newTestService(t)
	ctx := context.Background()
	creditBalance(t, store, "emp-1", 2)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	assert.True(t, result.Allocation.IsPartiallyUnpaid)
	assert.True(t, result.Allocation.PaidDays.Equal(days(2)))
	assert.True(t, result.Allocation.UnpaidDays.Equal(days(1)))

	pd, found, err := store.PaymentDetailsByApplication(ctx, result.ApplicationID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, pd.PaidDays.Equal(days(2)))
	assert.True(t, pd.UnpaidDays.Equal(days(1)))
	assert.True(t, pd.AvailableAtTime.Equal(days(2)))
}

func TestApplyLeave_NoManager_FallsBackToDefaultApprover(t *testing.T) {
	service, store, _ := newTestService(t)
	ctx := context.Background()
	creditBalance(t, store, "emp-orphan", 5)

	req := threeDayRequest()
	result, err := service.ApplyLeave(ctx, actor("emp-orphan"), req)
	require.NoError(t, err)

	wf, found, err := store.WorkflowByApplication(ctx, result.ApplicationID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, leave.EmployeeID("hr-admin"), wf.ApproverID)
}

func TestApplyLeave_UnknownEmployee(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.ApplyLeave(context.Background(), actor("ghost"), threeDayRequest())

	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
	assert.True(t, leave.IsNotFound(err))
}

func TestApplyLeave_UnknownLeaveType(t *testing.T) {
	service, _, _ := newTestService(t)

	req := threeDayRequest()
	req.LeaveTypeID = "sabbatical"
	_, err := service.ApplyLeave(context.Background(), actor("emp-1"), req)

	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
}

func TestApplyLeave_ValidationFailures(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*leave.SubmissionRequest)
		field  string
	}{
		{"missing leave type", func(r *leave.SubmissionRequest) { r.LeaveTypeID = "" }, "leaveTypeId"},
		{"no days", func(r *leave.SubmissionRequest) { r.Days = nil }, "days"},
		{"to before from", func(r *leave.SubmissionRequest) {
			r.ToDate = r.FromDate.AddDate(0, 0, -1)
		}, "toDate"},
		{"bad half-day type", func(r *leave.SubmissionRequest) {
			r.Days[0].IsHalfDay = true
			r.Days[0].HalfDayType = "evening"
		}, "days[0].halfDayType"},
		{"same date listed twice", func(r *leave.SubmissionRequest) {
			r.Days[1].Date = r.Days[0].Date
		}, "days[1].date"},
		{"morning and afternoon of one date", func(r *leave.SubmissionRequest) {
			r.Days = []leave.RequestedDay{
				halfDay(yr, time.March, 2, leave.HalfDayMorning),
				halfDay(yr, time.March, 2, leave.HalfDayAfternoon),
			}
		}, "days[1].date"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := threeDayRequest()
			tc.mutate(&req)

			_, err := service.ApplyLeave(ctx, actor("emp-1"), req)

			var verr *leave.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.True(t, leave.IsClientError(err))
		})
	}
}

func TestApplyLeave_GenderRestrictedType(t *testing.T) {
	// GIVEN: A leave type restricted to female employees
	// WHEN: A male employee applies
	// THEN: Submission fails the eligibility rule, not validation

	service, store, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.SaveLeaveType(ctx, leave.LeaveType{
		ID:                "maternity",
		Name:              "Maternity Leave",
		GenderRestriction: "female",
		Active:            true,
	}, false))
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{
		ID:       "emp-m",
		Name:     "Sam Park",
		Gender:   "male",
		Active:   true,
		HireDate: time.Date(2022, time.May, 9, 0, 0, 0, 0, time.UTC),
	}))

	req := threeDayRequest()
	req.LeaveTypeID = "maternity"
	_, err := service.ApplyLeave(ctx, actor("emp-m"), req)

	var elig *leave.EligibilityError
	require.ErrorAs(t, err, &elig)
	assert.ErrorIs(t, err, leave.ErrNotEligible)
	assert.True(t, leave.IsClientError(err))
}

func TestApplyLeave_NotifierFailureDoesNotSurface(t *testing.T) {
	service, store, notifier := newTestService(t)
	notifier.fail = true
	creditBalance(t, store, "emp-1", 5)

	_, err := service.ApplyLeave(context.Background(), actor("emp-1"), threeDayRequest())

	assert.NoError(t, err, "notification failure must never fail a submission")
}

// =============================================================================
// APPROVAL TESTS
// =============================================================================

func TestProcessApproval_Rejection_LeavesLedgerUntouched(t *testing.T) {
	// GIVEN: A pending 3-day application
	// WHEN: The approver rejects it
	// THEN: Application and workflow are REJECTED, balance unchanged

	service, store, _ := newTestService(t)
	ctx := context.Background()
	key := creditBalance(t, store, "emp-1", 5)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	app, err := service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, leave.StatusRejected, "project deadline")
	require.NoError(t, err)

	assert.Equal(t, leave.StatusRejected, app.Status)
	assert.Equal(t, "project deadline", app.RejectionReason)
	require.NotNil(t, app.ResponseAt)

	wf, found, err := store.WorkflowByApplication(ctx, result.ApplicationID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, leave.StatusRejected, wf.Status)
	assert.Equal(t, "project deadline", wf.Comments)

	b, err := service.BalanceFor(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.AvailableDays.Equal(days(5)))
	assert.True(t, b.UsedDays.IsZero())
}

func TestProcessApproval_Approval_DebitsPaidDays(t *testing.T) {
	// GIVEN: A pending application with paidDays=3, unpaidDays=0
	// WHEN: The approver approves it
	// THEN: usedDays += 3, availableDays -= 3, unpaidDaysTaken unchanged

	service, store, notifier := newTestService(t)
	ctx := context.Background()
	key := creditBalance(t, store, "emp-1", 5)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	app, err := service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, leave.StatusApproved, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, app.Status)
	assert.Equal(t, leave.EmployeeID("mgr-1"), app.ApprovedBy)

	b, err := service.BalanceFor(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.UsedDays.Equal(days(3)), "used: %s", b.UsedDays)
	assert.True(t, b.AvailableDays.Equal(days(2)), "available: %s", b.AvailableDays)
	assert.True(t, b.UnpaidDaysTaken.IsZero())
	assert.True(t, b.InvariantHolds())

	select {
	case ev := <-notifier.decided:
		assert.Equal(t, leave.StatusApproved, ev.Status)
		assert.Equal(t, leave.EmployeeID("emp-1"), ev.EmployeeID)
	case <-time.After(2 * time.Second):
		t.Fatal("decision notification never arrived")
	}
}

func TestProcessApproval_PartiallyUnpaid_SplitsLedgerEffects(t *testing.T) {
	// GIVEN: 2 days available, request for 3 (paid=2, unpaid=1)
	// WHEN: Approved
	// THEN: Only the paid part is debited; the unpaid part lands in the
	//       unpaid tally and never goes below zero availability

	service, store, _ := newTestService(t)
	ctx := context.Background()
	key := creditBalance(t, store, "emp-1", 2)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	_, err = service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, leave.StatusApproved, "")
	require.NoError(t, err)

	b, err := service.BalanceFor(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.UsedDays.Equal(days(2)))
	assert.True(t, b.AvailableDays.IsZero())
	assert.True(t, b.UnpaidDaysTaken.Equal(days(1)))
	assert.True(t, b.InvariantHolds())
}

func TestProcessApproval_SecondDecisionConflicts(t *testing.T) {
	// GIVEN: An application already rejected
	// WHEN: The approver tries to approve it afterwards
	// THEN: ErrAlreadyDecided, and the ledger stays untouched

	service, store, _ := newTestService(t)
	ctx := context.Background()
	key := creditBalance(t, store, "emp-1", 5)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	_, err = service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, leave.StatusRejected, "no")
	require.NoError(t, err)

	_, err = service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, leave.StatusApproved, "changed my mind")
	assert.ErrorIs(t, err, leave.ErrAlreadyDecided)
	assert.True(t, leave.IsConflict(err))

	b, err := service.BalanceFor(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.UsedDays.IsZero(), "re-decision must not debit")
}

// stalePendingStore serves a frozen PENDING copy of one application, the
// state two racing approvers would both read before either decides.
type stalePendingStore struct {
	*sqlite.Store
	stale *leave.Application
}

func (s *stalePendingStore) ApplicationByID(ctx context.Context, id leave.ApplicationID) (leave.Application, error) {
	if s.stale != nil && s.stale.ID == id {
		return *s.stale, nil
	}
	return s.Store.ApplicationByID(ctx, id)
}

func TestProcessApproval_RacingApprovalsDebitOnce(t *testing.T) {
	// GIVEN: Two approvals that both read the application while PENDING
	// WHEN: Both proceed to decide
	// THEN: Exactly one debit lands; the loser gets ErrAlreadyDecided and
	//       the ledger shows the single approval's 3 days, not 6

	store := newSeededStore(t)
	wrapped := &stalePendingStore{Store: store}
	service := leave.NewService(wrapped, store, nil, "hr-admin")
	ctx := context.Background()
	key := creditBalance(t, store, "emp-1", 5)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	pending, err := store.ApplicationByID(ctx, result.ApplicationID)
	require.NoError(t, err)
	wrapped.stale = &pending

	_, err = service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, leave.StatusApproved, "first")
	require.NoError(t, err)

	_, err = service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, leave.StatusApproved, "second")
	assert.ErrorIs(t, err, leave.ErrAlreadyDecided)

	b, _, err := store.Balance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.UsedDays.Equal(days(3)), "used: %s", b.UsedDays)
	assert.True(t, b.AvailableDays.Equal(days(2)), "available: %s", b.AvailableDays)
	assert.True(t, b.InvariantHolds())
}

// snapshotlessStore rejects every payment snapshot write, leaving
// approvals with only the application columns to go on.
type snapshotlessStore struct {
	*sqlite.Store
}

func (s *snapshotlessStore) SavePaymentDetails(ctx context.Context, pd leave.PaymentDetails) error {
	return errors.New("snapshot table unavailable")
}

func TestProcessApproval_MissingSnapshotUsesApplicationColumns(t *testing.T) {
	// GIVEN: A partially unpaid application whose snapshot write was lost
	// WHEN: The approver approves it
	// THEN: The debit falls back to the paid/unpaid columns on the
	//       application row

	store := newSeededStore(t)
	service := leave.NewService(&snapshotlessStore{Store: store}, store, nil, "hr-admin")
	ctx := context.Background()
	key := creditBalance(t, store, "emp-1", 2)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	_, found, err := store.PaymentDetailsByApplication(ctx, result.ApplicationID)
	require.NoError(t, err)
	require.False(t, found, "fixture must leave no snapshot behind")

	_, err = service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, leave.StatusApproved, "")
	require.NoError(t, err)

	b, _, err := store.Balance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.UsedDays.Equal(days(2)))
	assert.True(t, b.UnpaidDaysTaken.Equal(days(1)))
	assert.True(t, b.AvailableDays.IsZero())
	assert.True(t, b.InvariantHolds())
}

func TestProcessApproval_InvalidDecision(t *testing.T) {
	service, store, _ := newTestService(t)
	ctx := context.Background()
	creditBalance(t, store, "emp-1", 5)

	result, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	_, err = service.ProcessApproval(ctx, "mgr-1", result.ApplicationID, "MAYBE", "")

	var verr *leave.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestProcessApproval_UnknownApplication(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.ProcessApproval(context.Background(), "mgr-1", "nope", leave.StatusApproved, "")

	assert.ErrorIs(t, err, leave.ErrApplicationNotFound)
}

// =============================================================================
// READ PROJECTION TESTS
// =============================================================================

func TestPendingForApprover_OnlyPending(t *testing.T) {
	service, store, _ := newTestService(t)
	ctx := context.Background()
	creditBalance(t, store, "emp-1", 10)

	first, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)

	second := threeDayRequest()
	second.FromDate = time.Date(yr, time.April, 6, 0, 0, 0, 0, time.UTC)
	second.ToDate = second.FromDate
	second.Days = []leave.RequestedDay{fullDay(yr, time.April, 6)}
	_, err = service.ApplyLeave(ctx, actor("emp-1"), second)
	require.NoError(t, err)

	_, err = service.ProcessApproval(ctx, "mgr-1", first.ApplicationID, leave.StatusApproved, "")
	require.NoError(t, err)

	pending, err := service.PendingForApprover(ctx, "mgr-1")
	require.NoError(t, err)
	require.Len(t, pending, 1, "decided applications must drop out of the queue")
	assert.Equal(t, leave.StatusPending, pending[0].Status)
}

func TestApplicationsForManager_DirectReportsOnly(t *testing.T) {
	service, store, _ := newTestService(t)
	ctx := context.Background()
	creditBalance(t, store, "emp-1", 5)
	creditBalance(t, store, "emp-orphan", 5)

	_, err := service.ApplyLeave(ctx, actor("emp-1"), threeDayRequest())
	require.NoError(t, err)
	_, err = service.ApplyLeave(ctx, actor("emp-orphan"), threeDayRequest())
	require.NoError(t, err)

	apps, err := service.ApplicationsForManager(ctx, "mgr-1")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, leave.EmployeeID("emp-1"), apps[0].EmployeeID)

	all, err := service.AllApplications(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBalanceFor_MissingRowReadsAsZero(t *testing.T) {
	service, _, _ := newTestService(t)

	b, err := service.BalanceFor(context.Background(), leave.BalanceKey{
		EmployeeID:  "emp-1",
		LeaveTypeID: annualLeave,
		Year:        yr,
	})
	require.NoError(t, err)
	assert.True(t, b.AvailableDays.IsZero())
	assert.True(t, b.TotalAllocated.IsZero())
	assert.Equal(t, yr, b.Year)
}
