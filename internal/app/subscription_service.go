// internal/app/subscription_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/domain/subscription"

	"github.com/sirupsen/logrus"
)

// MaxLeadMinutes caps how far ahead of a deadline a notification may fire.
const MaxLeadMinutes = 1440

const rearmPageSize = 200

// SubscribeRequest is the input of SubscriptionService.Subscribe.
type SubscribeRequest struct {
	DeviceToken string
	Platform    subscription.Platform
	ScheduleID  int64
	Type        subscription.Type
	LeadMinutes int
	Latitude    float64
	Longitude   float64
}

// SubscriptionStatus describes one subscription and its scheduling unit.
type SubscriptionStatus struct {
	Subscription *subscription.Subscription
	// Deadline is only known right after Subscribe; List leaves it zero.
	Deadline time.Time
	FireAt   time.Time
	State    notification.State
}

// Armed reports whether a notification is pending.
func (s SubscriptionStatus) Armed() bool {
	return s.State == notification.StateArmed
}

// SubscriptionService manages subscriptions and keeps their alarms armed.
type SubscriptionService interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (*SubscriptionStatus, error)
	List(ctx context.Context, deviceToken string) ([]SubscriptionStatus, error)
	Unsubscribe(ctx context.Context, key subscription.Key) error
	UnsubscribeAll(ctx context.Context, deviceToken string) (int64, error)
	// Rearm arms every sweeping subscription that has no pending alarm but a
	// future window, and returns how many were armed. Timing subscriptions
	// are one-shot and never rearmed.
	Rearm(ctx context.Context) (int, error)
}

type SubscriptionServiceImpl struct {
	subs        subscription.Repository
	tasks       notification.TaskStore
	scheduler   NotificationScheduler
	sweeping    schedule.SweepingSource
	regulations schedule.RegulationSource
	calendar    schedule.Calendar
	limit       int
	logger      *logrus.Entry
	clock       func() time.Time
}

func NewSubscriptionService(
	subs subscription.Repository,
	tasks notification.TaskStore,
	scheduler NotificationScheduler,
	sweeping schedule.SweepingSource,
	regulations schedule.RegulationSource,
	calendar schedule.Calendar,
	limit int,
	logger *logrus.Entry,
) *SubscriptionServiceImpl {
	return &SubscriptionServiceImpl{
		subs:        subs,
		tasks:       tasks,
		scheduler:   scheduler,
		sweeping:    sweeping,
		regulations: regulations,
		calendar:    calendar,
		limit:       limit,
		logger:      logger.WithField("component", "subscription_service"),
		clock:       time.Now,
	}
}

func validatePlatform(p subscription.Platform) bool {
	switch p {
	case subscription.PlatformIOS, subscription.PlatformAndroid, subscription.PlatformWeb, subscription.PlatformTelegram:
		return true
	}
	return false
}

func (s *SubscriptionServiceImpl) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscriptionStatus, error) {
	if req.DeviceToken == "" {
		return nil, fmt.Errorf("%w: device token is required", ErrInvalidRequest)
	}
	if !validatePlatform(req.Platform) {
		return nil, fmt.Errorf("%w: unsupported platform %q", ErrInvalidRequest, req.Platform)
	}
	if req.LeadMinutes < 0 || req.LeadMinutes > MaxLeadMinutes {
		return nil, fmt.Errorf("%w: lead minutes must be between 0 and %d", ErrInvalidRequest, MaxLeadMinutes)
	}
	target, err := subscription.NewTarget(req.Type, req.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	sub := &subscription.Subscription{
		DeviceToken: req.DeviceToken,
		Platform:    req.Platform,
		Target:      target,
		LeadMinutes: req.LeadMinutes,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}
	logCtx := s.logger.WithFields(logrus.Fields{
		"device_token": sub.DeviceToken,
		"schedule_id":  target.ScheduleID(),
		"kind":         target.Type(),
	})

	now := s.clock()
	deadline, build, err := s.deadline(ctx, sub, now)
	if err != nil {
		return nil, err
	}
	if err := s.subs.Upsert(ctx, sub, s.limit); err != nil {
		if errors.Is(err, subscription.ErrLimitExceeded) {
			logCtx.Warn("Device reached its pending subscription limit")
			return nil, err
		}
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	status := &SubscriptionStatus{Subscription: sub, Deadline: deadline, State: notification.StateIdle}
	task := taskFor(sub, deadline, build, now)
	if task == nil {
		// Nothing to fire for this deadline; drop any alarm left by a previous subscribe.
		if err := s.scheduler.Cancel(ctx, sub.Key()); err != nil {
			return nil, err
		}
		logCtx.Info("Subscription saved without a pending alarm")
		return status, nil
	}
	if err := s.scheduler.Schedule(ctx, task); err != nil {
		return nil, err
	}
	status.FireAt = task.FireAt
	status.State = notification.StateArmed
	return status, nil
}

// deadline resolves the instant the subscriber has to act by, and how to build
// the payload announcing it.
func (s *SubscriptionServiceImpl) deadline(ctx context.Context, sub *subscription.Subscription, now time.Time) (time.Time, payloadFunc, error) {
	region := s.calendar.Region
	switch t := sub.Target.(type) {
	case subscription.SweepingTarget:
		c, err := s.sweeping.GetSchedule(ctx, t.BlockSweepID)
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("failed to load schedule %d: %w", t.BlockSweepID, err)
		}
		w, _, ok, errs := s.calendar.EarliestWindow(c.Rules, now)
		if !ok {
			if len(errs) == 0 {
				errs = append(errs, &schedule.ComputationError{Reason: schedule.ReasonNoOccurrence, Detail: "schedule has no rules"})
			}
			return time.Time{}, nil, errors.Join(errs...)
		}
		return w.Start, func(fireAt time.Time) notification.Payload {
			return SweepingPayload(sub, c, w, fireAt, region)
		}, nil
	case subscription.TimingTarget:
		c, err := s.regulations.GetRegulation(ctx, t.RegulationID)
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("failed to load regulation %d: %w", t.RegulationID, err)
		}
		d, err := s.calendar.NextDeadline(c.Days, c.HoursBegin, c.HoursEnd, c.HourLimit, now)
		if err != nil {
			return time.Time{}, nil, err
		}
		return d.MoveBy, func(time.Time) notification.Payload {
			return TimingPayload(sub, c, d, region)
		}, nil
	default:
		return time.Time{}, nil, fmt.Errorf("unsupported subscription target %T", t)
	}
}

// taskFor returns nil when the deadline is reached or the subscriber was
// already notified for it.
func taskFor(sub *subscription.Subscription, deadline time.Time, build payloadFunc, now time.Time) *notification.Task {
	fireAt, ideal, ok := notification.FireTime(deadline, sub.Lead(), now)
	if !ok {
		return nil
	}
	if sub.LastNotifiedAt.Valid && !sub.LastNotifiedAt.Time.Before(ideal) {
		return nil
	}
	return &notification.Task{
		Key:     sub.Key(),
		Kind:    sub.Target.Type(),
		FireAt:  fireAt,
		Payload: build(fireAt),
		Fence:   sub.Fence,
	}
}

func (s *SubscriptionServiceImpl) List(ctx context.Context, deviceToken string) ([]SubscriptionStatus, error) {
	subs, err := s.subs.ListByDevice(ctx, deviceToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil, subscription.ErrNotFound
	}
	tasks, err := s.tasks.ListByDevice(ctx, deviceToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending notifications: %w", err)
	}
	pending := make(map[subscription.Key]*notification.Task, len(tasks))
	for _, t := range tasks {
		pending[t.Key] = t
	}

	out := make([]SubscriptionStatus, 0, len(subs))
	for _, sub := range subs {
		status := SubscriptionStatus{Subscription: sub, State: notification.StateIdle}
		if t, ok := pending[sub.Key()]; ok {
			status.State = notification.StateArmed
			status.FireAt = t.FireAt
		}
		out = append(out, status)
	}
	return out, nil
}

func (s *SubscriptionServiceImpl) Unsubscribe(ctx context.Context, key subscription.Key) error {
	if err := s.scheduler.Cancel(ctx, key); err != nil {
		return err
	}
	if err := s.subs.Delete(ctx, key); err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"device_token": key.DeviceToken, "schedule_id": key.ScheduleID}).Info("Subscription removed")
	return nil
}

func (s *SubscriptionServiceImpl) UnsubscribeAll(ctx context.Context, deviceToken string) (int64, error) {
	if _, err := s.tasks.CancelByDevice(ctx, deviceToken); err != nil {
		return 0, fmt.Errorf("failed to cancel pending notifications: %w", err)
	}
	n, err := s.subs.DeleteByDevice(ctx, deviceToken)
	if err != nil {
		return 0, fmt.Errorf("failed to delete subscriptions: %w", err)
	}
	if n == 0 {
		return 0, subscription.ErrNotFound
	}
	s.logger.WithFields(logrus.Fields{"device_token": deviceToken, "count": n}).Info("All subscriptions removed for device")
	return n, nil
}

func (s *SubscriptionServiceImpl) Rearm(ctx context.Context) (int, error) {
	armed := 0
	var afterID int64
	for {
		page, err := s.subs.ListUnarmedSweeping(ctx, afterID, rearmPageSize)
		if err != nil {
			return armed, fmt.Errorf("failed to list unarmed subscriptions: %w", err)
		}
		now := s.clock()
		for _, sub := range page {
			afterID = sub.ID
			if s.rearmOne(ctx, sub, now) {
				armed++
			}
		}
		if len(page) < rearmPageSize || ctx.Err() != nil {
			return armed, nil
		}
	}
}

func (s *SubscriptionServiceImpl) rearmOne(ctx context.Context, sub *subscription.Subscription, now time.Time) bool {
	logCtx := s.logger.WithFields(logrus.Fields{"device_token": sub.DeviceToken, "schedule_id": sub.Target.ScheduleID()})
	if _, recurring := sub.Target.(subscription.SweepingTarget); !recurring {
		// Timing subscriptions are armed by Subscribe only.
		logCtx.Debug("Skipping one-shot subscription in rearm")
		return false
	}
	deadline, build, err := s.deadline(ctx, sub, now)
	if err != nil {
		if schedule.IsComputationError(err, "") {
			logCtx.WithError(err).Debug("No computable deadline, skipping rearm")
		} else {
			logCtx.WithError(err).Warn("Failed to resolve deadline for rearm")
		}
		return false
	}
	task := taskFor(sub, deadline, build, now)
	if task == nil {
		return false
	}
	if err := s.scheduler.Schedule(ctx, task); err != nil {
		if errors.Is(err, notification.ErrStaleFence) {
			logCtx.Debug("Subscription changed during rearm, skipping")
		} else {
			logCtx.WithError(err).Error("Failed to rearm subscription")
		}
		return false
	}
	return true
}
