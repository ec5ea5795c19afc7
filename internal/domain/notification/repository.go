// internal/domain/notification/repository.go
package notification

import (
	"context"
	"errors"
	"time"

	"sweep_notifier/internal/domain/subscription"
)

var (
	ErrTaskNotFound = errors.New("due notification not found")
	// ErrStaleFence is returned by Arm when the subscription row no longer
	// carries the task's fence (it was replaced or deleted meanwhile).
	ErrStaleFence = errors.New("subscription fence changed")
)

// TaskStore persists the durable alarms of scheduling units.
type TaskStore interface {
	// Arm inserts or replaces the task for task.Key, provided the subscription
	// row still holds task.Fence; otherwise it returns ErrStaleFence.
	Arm(ctx context.Context, task *Task) error
	Get(ctx context.Context, key subscription.Key) (*Task, error)
	ListByDevice(ctx context.Context, deviceToken string) ([]*Task, error)
	// Cancel removes an unclaimed task and reports whether one existed.
	Cancel(ctx context.Context, key subscription.Key) (bool, error)
	CancelByDevice(ctx context.Context, deviceToken string) (int64, error)
	// ClaimDue removes and returns up to limit tasks with FireAt <= now in one
	// transaction. Rows locked by a concurrent claimer are skipped.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Task, error)
}
