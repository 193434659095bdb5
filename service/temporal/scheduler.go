package temporal

import (
	"context"
	"time"
)

// Scheduler starts and schedules account archive runs.
// *Client implements it against a Temporal server; MockScheduler in tests.
type Scheduler interface {
	// StartArchive starts one ArchiveAccountWorkflow run and returns its workflow ID.
	StartArchive(ctx context.Context, address string, limit int) (string, error)

	// UpsertArchiveSchedule creates or updates a recurring archive run.
	UpsertArchiveSchedule(ctx context.Context, address string, limit int, interval time.Duration) error

	// DeleteArchiveSchedule removes the recurring archive run for address.
	DeleteArchiveSchedule(ctx context.Context, address string) error
}

var _ Scheduler = (*Client)(nil)

// scheduleID returns the Temporal schedule ID for an account.
func scheduleID(address string) string {
	return "archive-schedule-" + address
}
