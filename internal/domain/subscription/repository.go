// internal/domain/subscription/repository.go
package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("subscription not found")
	ErrLimitExceeded = errors.New("pending subscription limit exceeded for device")
)

// Repository defines persistence operations for subscriptions.
type Repository interface {
	// Upsert inserts or replaces the row for sub.Key(), assigning a fresh fence.
	// A device may hold at most limit pending (never notified) subscriptions;
	// going over returns ErrLimitExceeded. limit <= 0 disables the cap.
	Upsert(ctx context.Context, sub *Subscription, limit int) error
	Get(ctx context.Context, key Key) (*Subscription, error)
	ListByDevice(ctx context.Context, deviceToken string) ([]*Subscription, error)
	// ListUnarmedSweeping pages through sweeping subscriptions without a pending
	// due notification, ordered by ID and starting after afterID. Timing
	// subscriptions are one-shot and never listed.
	ListUnarmedSweeping(ctx context.Context, afterID int64, limit int) ([]*Subscription, error)
	Delete(ctx context.Context, key Key) error
	DeleteByDevice(ctx context.Context, deviceToken string) (int64, error)

	// DeleteFenced and MarkNotified only apply when the stored fence equals
	// fence; they report whether a row was touched.
	DeleteFenced(ctx context.Context, key Key, fence uuid.UUID) (bool, error)
	MarkNotified(ctx context.Context, key Key, fence uuid.UUID, at time.Time) (bool, error)
}
