/*
Package notify delivers leave lifecycle notifications.

PURPOSE:
  Implements leave.Notifier. Notifications are advisory: the service layer
  fires them on a background goroutine and never fails an operation because
  a notification could not be delivered.

IMPLEMENTATIONS:
  LogNotifier: writes notifications to the process log. The production
  deployment would swap in an email or chat connector behind the same
  interface.

SEE ALSO:
  - leave/service.go: where notifications are emitted
*/
package notify

import (
	"context"
	"log"

	"github.com/warp/leave-engine/leave"
)

// LogNotifier writes every notification to the standard logger.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// LeaveSubmitted logs a submission notice addressed to the approver.
func (n *LogNotifier) LeaveSubmitted(ctx context.Context, ev leave.LeaveSubmitted) error {
	log.Printf("[Notify] leave submitted: application=%s employee=%s approver=%s days=%s",
		ev.ApplicationID, ev.EmployeeID, ev.ApproverID, ev.TotalDays.String())
	return nil
}

// LeaveDecided logs a decision notice addressed to the applicant.
func (n *LogNotifier) LeaveDecided(ctx context.Context, ev leave.LeaveDecided) error {
	log.Printf("[Notify] leave decided: application=%s employee=%s status=%s approver=%s",
		ev.ApplicationID, ev.EmployeeID, ev.Status, ev.ApproverID)
	return nil
}
