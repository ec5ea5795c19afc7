// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/subscription"

	"github.com/sirupsen/logrus"
)

const (
	// sendTimeout bounds one delivery attempt of an already claimed task.
	sendTimeout = 15 * time.Second
	// releaseTimeout bounds the subscription cleanup after an alarm.
	releaseTimeout = 5 * time.Second
	// claimReserve is the least time left on the job context for another
	// batch to be claimed; claimed rows are gone from the table.
	claimReserve = 20 * time.Second
)

// Delivery outcomes reported to the Recorder.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// NotificationScheduler owns the durable alarm of every scheduling unit.
type NotificationScheduler interface {
	// Schedule arms task, replacing any pending alarm for the same key.
	Schedule(ctx context.Context, task *notification.Task) error
	// Cancel drops the pending alarm for key. Cancelling an idle unit is a no-op.
	Cancel(ctx context.Context, key subscription.Key) error
	// OnAlarm performs the single delivery attempt for a claimed task and
	// then releases the subscription.
	OnAlarm(ctx context.Context, task *notification.Task) notification.State
	// DispatchDue claims every due task and fires it. It returns the number claimed.
	DispatchDue(ctx context.Context) (int, error)
}

type NotificationSchedulerImpl struct {
	tasks     notification.TaskStore
	subs      subscription.Repository
	push      notification.PushGateway
	recorder  Recorder
	logger    *logrus.Entry
	batchSize int
	clock     func() time.Time
}

func NewNotificationScheduler(
	tasks notification.TaskStore,
	subs subscription.Repository,
	push notification.PushGateway,
	recorder Recorder,
	logger *logrus.Entry,
	batchSize int,
) *NotificationSchedulerImpl {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &NotificationSchedulerImpl{
		tasks:     tasks,
		subs:      subs,
		push:      push,
		recorder:  recorderOrNoop(recorder),
		logger:    logger.WithField("component", "notification_scheduler"),
		batchSize: batchSize,
		clock:     time.Now,
	}
}

func (s *NotificationSchedulerImpl) Schedule(ctx context.Context, task *notification.Task) error {
	if err := s.tasks.Arm(ctx, task); err != nil {
		return fmt.Errorf("failed to arm notification for %s: %w", task.Key, err)
	}
	s.recorder.ObserveArmed(string(task.Kind))
	s.logger.WithFields(logrus.Fields{
		"device_token": task.Key.DeviceToken,
		"schedule_id":  task.Key.ScheduleID,
		"fire_at":      task.FireAt,
	}).Info("Notification armed")
	return nil
}

func (s *NotificationSchedulerImpl) Cancel(ctx context.Context, key subscription.Key) error {
	removed, err := s.tasks.Cancel(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to cancel notification for %s: %w", key, err)
	}
	if removed {
		s.logger.WithFields(logrus.Fields{"device_token": key.DeviceToken, "schedule_id": key.ScheduleID}).Info("Notification cancelled")
	}
	return nil
}

func (s *NotificationSchedulerImpl) OnAlarm(ctx context.Context, task *notification.Task) notification.State {
	if task == nil || task.Payload.DeviceToken == "" {
		s.logger.Warn("Alarm fired without a stored payload, nothing to deliver")
		s.recorder.ObserveDelivery("", OutcomeSkipped)
		return notification.StateIdle
	}
	logCtx := s.logger.WithFields(logrus.Fields{
		"device_token": task.Key.DeviceToken,
		"schedule_id":  task.Key.ScheduleID,
		"fire_at":      task.FireAt,
		"kind":         task.Kind,
	})

	// Cleanup runs whatever happens to the delivery.
	var tokenGone bool
	defer func() { s.release(ctx, task, tokenGone, logCtx) }()

	if err := s.push.Send(ctx, notification.MessageFromPayload(task.Payload)); err != nil {
		tokenGone = errors.Is(err, notification.ErrTokenUnregistered)
		schedErr := &notification.SchedulingError{Key: task.Key, Err: err}
		logCtx.WithError(schedErr).Error("Push delivery failed, not retrying")
		s.recorder.ObserveDelivery(string(task.Payload.Platform), OutcomeFailed)
		return notification.StateFired
	}
	s.recorder.ObserveDelivery(string(task.Payload.Platform), OutcomeDelivered)
	logCtx.Info("Notification delivered")
	return notification.StateFired
}

// release consumes the subscription the task was armed for. The fence keeps a
// re-subscribe that raced this alarm intact. It runs detached from ctx so an
// expired job context cannot skip the cleanup. A sweeping subscription whose
// token is gone is deleted instead of waiting for its next cycle.
func (s *NotificationSchedulerImpl) release(ctx context.Context, task *notification.Task, tokenGone bool, logCtx *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	var (
		touched bool
		err     error
	)
	switch task.Kind {
	case subscription.TypeTiming:
		touched, err = s.subs.DeleteFenced(ctx, task.Key, task.Fence)
	case subscription.TypeSweeping:
		if tokenGone {
			logCtx.Warn("Device token unregistered, removing recurring subscription")
			touched, err = s.subs.DeleteFenced(ctx, task.Key, task.Fence)
			break
		}
		touched, err = s.subs.MarkNotified(ctx, task.Key, task.Fence, s.clock())
	default:
		logCtx.Errorf("Unknown subscription kind %q, leaving subscription untouched", task.Kind)
		return
	}
	if err != nil {
		logCtx.WithError(err).Error("Failed to release subscription after alarm")
		return
	}
	if !touched {
		logCtx.Info("Subscription changed or removed while alarm was in flight, leaving it as is")
	}
}

// DispatchDue claims due tasks batch by batch. A claimed task has left the
// table, so it gets its delivery attempt even if ctx ends mid-batch; ctx only
// decides whether another batch is claimed.
func (s *NotificationSchedulerImpl) DispatchDue(ctx context.Context) (int, error) {
	total := 0
	for canClaim(ctx) {
		claimed, err := s.tasks.ClaimDue(ctx, s.clock(), s.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to claim due notifications: %w", err)
		}
		s.recorder.ObserveClaimed(len(claimed))
		for _, task := range claimed {
			s.fire(ctx, task)
		}
		total += len(claimed)
		if len(claimed) < s.batchSize {
			break
		}
	}
	return total, nil
}

func (s *NotificationSchedulerImpl) fire(ctx context.Context, task *notification.Task) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	s.OnAlarm(sendCtx, task)
}

func canClaim(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) >= claimReserve
}
