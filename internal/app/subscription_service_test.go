package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/domain/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pacificAt(year int, month time.Month, day, hour, minute int) time.Time {
	return schedule.Pacific.Date(year, month, day, schedule.Clock{Hour: hour, Minute: minute})
}

// Saturday 2025-02-01 is the first Saturday of the month.
var firstSaturdayMorning = schedule.RecurringRule{
	Pattern:    schedule.MonthlyPattern{Weekday: schedule.Saturday, WeeksOfMonth: []int{1}},
	TimeWindow: schedule.TimeWindow{Start: schedule.Clock{Hour: 8}, End: schedule.Clock{Hour: 10}},
	SourceID:   77,
}

type serviceFixture struct {
	subs      *fakeSubs
	tasks     *fakeTasks
	push      *fakePush
	scheduler *NotificationSchedulerImpl
	service   *SubscriptionServiceImpl
}

func newServiceFixture(now time.Time, limit int) *serviceFixture {
	subs := newFakeSubs()
	tasks := newFakeTasks(subs)
	push := &fakePush{}
	scheduler := NewNotificationScheduler(tasks, subs, push, nil, testLogger(), 10)
	scheduler.clock = fixedClock(now)
	sweeping := &fakeSweeping{byID: map[int64]*schedule.ScheduleCandidate{
		77: {Corridor: "Main St", Limits: "100 - 200", BlockSide: "East", SideToken: schedule.SideRight, Rules: []schedule.RecurringRule{firstSaturdayMorning}},
		88: {Corridor: "Holiday Ln", Rules: []schedule.RecurringRule{{Pattern: schedule.MonthlyPattern{Weekday: schedule.Holiday}}}},
	}}
	regulations := &fakeRegulations{byID: map[int64]*schedule.RegulationCandidate{
		5: {ID: 5, Days: "Sa", HoursBegin: 600, HoursEnd: 800, HourLimit: 2, Neighborhood: "Mission"},
	}}
	svc := NewSubscriptionService(subs, tasks, scheduler, sweeping, regulations, schedule.DefaultCalendar, limit, testLogger())
	svc.clock = fixedClock(now)
	return &serviceFixture{subs: subs, tasks: tasks, push: push, scheduler: scheduler, service: svc}
}

func TestSubscribeTimingArmsLeadBeforeDeadline(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(pacificAt(2025, time.January, 31, 12, 0), 5)

	status, err := f.service.Subscribe(ctx, SubscribeRequest{
		DeviceToken: "device-1",
		Platform:    subscription.PlatformIOS,
		ScheduleID:  5,
		Type:        subscription.TypeTiming,
		LeadMinutes: 60,
	})
	require.NoError(t, err)
	assert.True(t, status.Deadline.Equal(pacificAt(2025, time.February, 1, 8, 0)))
	assert.True(t, status.FireAt.Equal(pacificAt(2025, time.February, 1, 7, 0)))
	assert.True(t, status.Armed())

	task, err := f.tasks.Get(ctx, subscription.Key{DeviceToken: "device-1", ScheduleID: 5})
	require.NoError(t, err)
	assert.Equal(t, "Move your car by 8:00 AM", task.Payload.Title)
	assert.Equal(t, "Mission: 2-hour limit 6:00 AM - 8:00 AM", task.Payload.Body)
	assert.Equal(t, "timing", task.Payload.Data["subscription_type"])
	assert.Equal(t, "2025-02-01T08:00:00-08:00", task.Payload.Data["move_by"])

	// Firing at the armed instant delivers once and consumes the subscription.
	f.scheduler.clock = fixedClock(status.FireAt)
	n, err := f.scheduler.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.push.sent, 1)
	assert.Len(t, f.subs.deleted, 1)
	assert.Equal(t, 0, f.tasks.len())
}

func TestSubscribeSweepingBuildsPayload(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(pacificAt(2025, time.January, 31, 12, 0), 5)

	status, err := f.service.Subscribe(ctx, SubscribeRequest{
		DeviceToken: "device-1",
		Platform:    subscription.PlatformAndroid,
		ScheduleID:  77,
		Type:        subscription.TypeSweeping,
		LeadMinutes: 60,
	})
	require.NoError(t, err)
	assert.True(t, status.FireAt.Equal(pacificAt(2025, time.February, 1, 7, 0)))

	task, err := f.tasks.Get(ctx, subscription.Key{DeviceToken: "device-1", ScheduleID: 77})
	require.NoError(t, err)
	assert.Equal(t, "Street sweeping on Main St in 60 minutes!", task.Payload.Title)
	assert.Equal(t, "Main St (100 - 200) - East side: 8:00 AM - 10:00 AM", task.Payload.Body)
	assert.Equal(t, "77", task.Payload.Data["schedule_block_sweep_id"])
	assert.Equal(t, "2025-02-01T10:00:00-08:00", task.Payload.Data["next_sweep_end"])
}

func TestSubscribeLateFiresImmediately(t *testing.T) {
	now := pacificAt(2025, time.February, 1, 7, 30)
	f := newServiceFixture(now, 5)

	status, err := f.service.Subscribe(context.Background(), SubscribeRequest{
		DeviceToken: "device-1", Platform: subscription.PlatformWeb, ScheduleID: 77, Type: subscription.TypeSweeping, LeadMinutes: 60,
	})
	require.NoError(t, err)
	assert.True(t, status.FireAt.Equal(now))

	task, err := f.tasks.Get(context.Background(), subscription.Key{DeviceToken: "device-1", ScheduleID: 77})
	require.NoError(t, err)
	assert.Equal(t, "Street sweeping on Main St in 30 minutes!", task.Payload.Title)
}

func TestSweepingTitleCountsTimeLeft(t *testing.T) {
	assert.Equal(t, "Street sweeping on Main St in 45 minutes!", sweepingTitle("Main St", 44*time.Minute+10*time.Second))
	assert.Equal(t, "Street sweeping on Main St in 1 minute!", sweepingTitle("Main St", 20*time.Second))
	assert.Equal(t, "Street sweeping on Main St starts now!", sweepingTitle("Main St", 0))
}

func TestSubscribeWithStartedWindowIsNotArmed(t *testing.T) {
	f := newServiceFixture(pacificAt(2025, time.February, 1, 9, 0), 5)

	status, err := f.service.Subscribe(context.Background(), SubscribeRequest{
		DeviceToken: "device-1", Platform: subscription.PlatformWeb, ScheduleID: 77, Type: subscription.TypeSweeping, LeadMinutes: 60,
	})
	require.NoError(t, err)
	assert.False(t, status.Armed())
	assert.Equal(t, 0, f.tasks.len())
}

func TestSubscribeErrors(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(pacificAt(2025, time.January, 31, 12, 0), 1)
	valid := SubscribeRequest{DeviceToken: "device-1", Platform: subscription.PlatformIOS, ScheduleID: 77, Type: subscription.TypeSweeping, LeadMinutes: 30}

	bad := valid
	bad.Platform = "blackberry"
	_, err := f.service.Subscribe(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	bad = valid
	bad.LeadMinutes = MaxLeadMinutes + 1
	_, err = f.service.Subscribe(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	bad = valid
	bad.Type = "monthly"
	_, err = f.service.Subscribe(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	bad = valid
	bad.ScheduleID = 404
	_, err = f.service.Subscribe(ctx, bad)
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	bad = valid
	bad.ScheduleID = 88
	_, err = f.service.Subscribe(ctx, bad)
	assert.True(t, schedule.IsComputationError(err, schedule.ReasonHolidayOnly))

	_, err = f.service.Subscribe(ctx, valid)
	require.NoError(t, err)
	second := valid
	second.ScheduleID = 5
	second.Type = subscription.TypeTiming
	_, err = f.service.Subscribe(ctx, second)
	assert.ErrorIs(t, err, subscription.ErrLimitExceeded)
}

func TestListReportsPendingAlarms(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(pacificAt(2025, time.January, 31, 12, 0), 5)
	_, err := f.service.List(ctx, "device-1")
	assert.ErrorIs(t, err, subscription.ErrNotFound)

	_, err = f.service.Subscribe(ctx, SubscribeRequest{DeviceToken: "device-1", Platform: subscription.PlatformIOS, ScheduleID: 77, Type: subscription.TypeSweeping, LeadMinutes: 60})
	require.NoError(t, err)

	statuses, err := f.service.List(ctx, "device-1")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, notification.StateArmed, statuses[0].State)
	assert.True(t, statuses[0].FireAt.Equal(pacificAt(2025, time.February, 1, 7, 0)))
}

func TestUnsubscribeCancelsAlarm(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(pacificAt(2025, time.January, 31, 12, 0), 5)
	_, err := f.service.Subscribe(ctx, SubscribeRequest{DeviceToken: "device-1", Platform: subscription.PlatformIOS, ScheduleID: 77, Type: subscription.TypeSweeping, LeadMinutes: 60})
	require.NoError(t, err)

	key := subscription.Key{DeviceToken: "device-1", ScheduleID: 77}
	require.NoError(t, f.service.Unsubscribe(ctx, key))
	assert.Equal(t, 0, f.tasks.len())
	assert.ErrorIs(t, f.service.Unsubscribe(ctx, key), subscription.ErrNotFound)
}

func TestUnsubscribeAll(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(pacificAt(2025, time.January, 31, 12, 0), 5)
	for _, req := range []SubscribeRequest{
		{DeviceToken: "device-1", Platform: subscription.PlatformIOS, ScheduleID: 77, Type: subscription.TypeSweeping, LeadMinutes: 60},
		{DeviceToken: "device-1", Platform: subscription.PlatformIOS, ScheduleID: 5, Type: subscription.TypeTiming, LeadMinutes: 15},
	} {
		_, err := f.service.Subscribe(ctx, req)
		require.NoError(t, err)
	}

	n, err := f.service.UnsubscribeAll(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, f.tasks.len())

	_, err = f.service.UnsubscribeAll(ctx, "device-1")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestRearmSkipsAlreadyNotifiedWindow(t *testing.T) {
	ctx := context.Background()
	now := pacificAt(2025, time.February, 1, 7, 5)
	f := newServiceFixture(now, 5)
	sub := &subscription.Subscription{DeviceToken: "device-1", Platform: subscription.PlatformIOS, Target: subscription.SweepingTarget{BlockSweepID: 77}, LeadMinutes: 60}
	require.NoError(t, f.subs.Upsert(ctx, sub, 0))
	_, err := f.subs.MarkNotified(ctx, sub.Key(), sub.Fence, pacificAt(2025, time.February, 1, 7, 0))
	require.NoError(t, err)

	armed, err := f.service.Rearm(ctx)
	require.NoError(t, err)
	assert.Zero(t, armed)
	assert.Equal(t, 0, f.tasks.len())
}

func TestRearmArmsNextWindow(t *testing.T) {
	ctx := context.Background()
	// The February window has passed; the next first Saturday is 2025-03-01.
	now := pacificAt(2025, time.February, 1, 11, 0)
	f := newServiceFixture(now, 5)
	sub := &subscription.Subscription{DeviceToken: "device-1", Platform: subscription.PlatformIOS, Target: subscription.SweepingTarget{BlockSweepID: 77}, LeadMinutes: 60}
	require.NoError(t, f.subs.Upsert(ctx, sub, 0))
	row := f.subs.rows[sub.Key()]
	row.LastNotifiedAt = sql.NullTime{Time: pacificAt(2025, time.February, 1, 7, 0), Valid: true}

	holiday := &subscription.Subscription{DeviceToken: "device-2", Platform: subscription.PlatformIOS, Target: subscription.SweepingTarget{BlockSweepID: 88}}
	require.NoError(t, f.subs.Upsert(ctx, holiday, 0))

	armed, err := f.service.Rearm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, armed)

	task, err := f.tasks.Get(ctx, sub.Key())
	require.NoError(t, err)
	assert.True(t, task.FireAt.Equal(pacificAt(2025, time.March, 1, 7, 0)))
	assert.Equal(t, subscription.TypeSweeping, task.Kind)
}

func TestRearmNeverRearmsTimingSubscription(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(pacificAt(2025, time.January, 31, 12, 0), 5)
	f.subs.deleteErr = errors.New("connection reset")

	status, err := f.service.Subscribe(ctx, SubscribeRequest{
		DeviceToken: "device-1", Platform: subscription.PlatformIOS, ScheduleID: 5, Type: subscription.TypeTiming, LeadMinutes: 60,
	})
	require.NoError(t, err)

	// Delivery happens, but the one-shot row survives because cleanup failed.
	f.scheduler.clock = fixedClock(status.FireAt)
	n, err := f.scheduler.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.push.sent, 1)
	_, err = f.subs.Get(ctx, subscription.Key{DeviceToken: "device-1", ScheduleID: 5})
	require.NoError(t, err)

	// The next regulation day must not be armed for it.
	f.service.clock = fixedClock(pacificAt(2025, time.February, 2, 12, 0))
	armed, err := f.service.Rearm(ctx)
	require.NoError(t, err)
	assert.Zero(t, armed)
	assert.Equal(t, 0, f.tasks.len())
}
