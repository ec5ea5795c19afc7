// internal/domain/subscription/subscription.go
package subscription

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Platform is the delivery channel family of a device token.
type Platform string

const (
	PlatformIOS      Platform = "ios"
	PlatformAndroid  Platform = "android"
	PlatformWeb      Platform = "web"
	PlatformTelegram Platform = "telegram" // device token is "tg:<chat id>"
)

// Type is the stored discriminant of a Target.
type Type string

const (
	TypeSweeping Type = "sweeping"
	TypeTiming   Type = "timing"
)

// Target is what a subscription watches. The only implementations are
// SweepingTarget and TimingTarget; switch on the concrete type.
type Target interface {
	Type() Type
	ScheduleID() int64
	isTarget()
}

// SweepingTarget watches a street-sweeping schedule. It recurs: after each
// notification the subscription stays and the next window is armed later.
type SweepingTarget struct {
	BlockSweepID int64
}

func (t SweepingTarget) Type() Type        { return TypeSweeping }
func (t SweepingTarget) ScheduleID() int64 { return t.BlockSweepID }
func (SweepingTarget) isTarget()           {}

// TimingTarget watches a time-limited parking regulation. It is one-shot: the
// subscription is deleted once its notification fired.
type TimingTarget struct {
	RegulationID int64
}

func (t TimingTarget) Type() Type        { return TypeTiming }
func (t TimingTarget) ScheduleID() int64 { return t.RegulationID }
func (TimingTarget) isTarget()           {}

// NewTarget rebuilds a Target from its stored discriminant and id.
func NewTarget(kind Type, scheduleID int64) (Target, error) {
	switch kind {
	case TypeSweeping:
		return SweepingTarget{BlockSweepID: scheduleID}, nil
	case TypeTiming:
		return TimingTarget{RegulationID: scheduleID}, nil
	default:
		return nil, fmt.Errorf("unknown subscription type %q", kind)
	}
}

// Key addresses one scheduling unit.
type Key struct {
	DeviceToken string
	ScheduleID  int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.DeviceToken, k.ScheduleID)
}

// Subscription corresponds to one row of the 'subscriptions' table.
type Subscription struct {
	ID             int64
	DeviceToken    string
	Platform       Platform
	Target         Target
	LeadMinutes    int
	Latitude       float64
	Longitude      float64
	LastNotifiedAt sql.NullTime
	// Fence changes on every upsert. Alarm cleanup only touches the row when
	// the fence it armed with still matches.
	Fence     uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the scheduling unit key of s.
func (s *Subscription) Key() Key {
	return Key{DeviceToken: s.DeviceToken, ScheduleID: s.Target.ScheduleID()}
}

// Lead returns the lead time as a duration.
func (s *Subscription) Lead() time.Duration {
	return time.Duration(s.LeadMinutes) * time.Minute
}
