// internal/domain/notification/task.go
package notification

import (
	"fmt"
	"time"

	"sweep_notifier/internal/domain/subscription"

	"github.com/google/uuid"
)

// State is the lifecycle position of a scheduling unit.
type State string

const (
	StateIdle      State = "IDLE"
	StateArmed     State = "ARMED"
	StateFired     State = "FIRED"
	StateCancelled State = "CANCELLED"
)

// Payload is everything needed to deliver a notification without another lookup.
type Payload struct {
	DeviceToken string                `json:"deviceToken"`
	Platform    subscription.Platform `json:"platform"`
	Title       string                `json:"title"`
	Body        string                `json:"body"`
	Data        map[string]string     `json:"data,omitempty"`
}

// Task is the single pending alarm of a scheduling unit.
// Corresponds to the 'due_notifications' table.
type Task struct {
	Key     subscription.Key
	Kind    subscription.Type
	FireAt  time.Time
	Payload Payload
	// Fence is copied from the subscription row the task was armed for.
	Fence     uuid.UUID
	CreatedAt time.Time
}

// FireTime derives when to notify for a deadline. The ideal instant is
// deadline minus lead; when that has passed but the deadline has not, the
// notification is due now. ok is false once the deadline is reached.
func FireTime(deadline time.Time, lead time.Duration, now time.Time) (fireAt, ideal time.Time, ok bool) {
	if !deadline.After(now) {
		return time.Time{}, time.Time{}, false
	}
	ideal = deadline.Add(-lead)
	fireAt = ideal
	if fireAt.Before(now) {
		fireAt = now
	}
	return fireAt, ideal, true
}

// SchedulingError wraps a delivery failure at alarm time. It is logged only.
type SchedulingError struct {
	Key subscription.Key
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("delivery for %s failed: %v", e.Key, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}
