package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/domain/subscription"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func testLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakeSubs struct {
	mu        sync.Mutex
	rows      map[subscription.Key]*subscription.Subscription
	nextID    int64
	deleted   []subscription.Key
	notified  []subscription.Key
	upsertErr error
	deleteErr error
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{rows: make(map[subscription.Key]*subscription.Subscription)}
}

func (f *fakeSubs) Upsert(ctx context.Context, sub *subscription.Subscription, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	key := sub.Key()
	if limit > 0 {
		pending := 0
		for k, row := range f.rows {
			if k.DeviceToken == key.DeviceToken && k != key && !row.LastNotifiedAt.Valid {
				pending++
			}
		}
		if pending >= limit {
			return subscription.ErrLimitExceeded
		}
	}
	if existing, ok := f.rows[key]; ok {
		sub.ID = existing.ID
		sub.LastNotifiedAt = existing.LastNotifiedAt
	} else {
		f.nextID++
		sub.ID = f.nextID
	}
	sub.Fence = uuid.New()
	stored := *sub
	f.rows[key] = &stored
	return nil
}

func (f *fakeSubs) Get(ctx context.Context, key subscription.Key) (*subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[key]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeSubs) ListByDevice(ctx context.Context, deviceToken string) ([]*subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*subscription.Subscription
	for k, row := range f.rows {
		if k.DeviceToken == deviceToken {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListUnarmedSweeping returns every row, timing ones included, so the service
// has to tell the lifecycles apart on its own.
func (f *fakeSubs) ListUnarmedSweeping(ctx context.Context, afterID int64, limit int) ([]*subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*subscription.Subscription
	for _, row := range f.rows {
		if row.ID > afterID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSubs) Delete(ctx context.Context, key subscription.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[key]; !ok {
		return subscription.ErrNotFound
	}
	delete(f.rows, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeSubs) DeleteByDevice(ctx context.Context, deviceToken string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.rows {
		if k.DeviceToken == deviceToken {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeSubs) DeleteFenced(ctx context.Context, key subscription.Key, fence uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	row, ok := f.rows[key]
	if !ok || row.Fence != fence {
		return false, nil
	}
	delete(f.rows, key)
	f.deleted = append(f.deleted, key)
	return true, nil
}

func (f *fakeSubs) MarkNotified(ctx context.Context, key subscription.Key, fence uuid.UUID, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[key]
	if !ok || row.Fence != fence {
		return false, nil
	}
	row.LastNotifiedAt = sql.NullTime{Time: at, Valid: true}
	f.notified = append(f.notified, key)
	return true, nil
}

type fakeTasks struct {
	mu    sync.Mutex
	subs  *fakeSubs
	tasks map[subscription.Key]*notification.Task
}

func newFakeTasks(subs *fakeSubs) *fakeTasks {
	return &fakeTasks{subs: subs, tasks: make(map[subscription.Key]*notification.Task)}
}

func (f *fakeTasks) Arm(ctx context.Context, task *notification.Task) error {
	if f.subs != nil {
		row, err := f.subs.Get(ctx, task.Key)
		if err != nil || row.Fence != task.Fence {
			return notification.ErrStaleFence
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *task
	f.tasks[task.Key] = &cp
	return nil
}

func (f *fakeTasks) Get(ctx context.Context, key subscription.Key) (*notification.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[key]
	if !ok {
		return nil, notification.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeTasks) ListByDevice(ctx context.Context, deviceToken string) ([]*notification.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Task
	for k, t := range f.tasks {
		if k.DeviceToken == deviceToken {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) Cancel(ctx context.Context, key subscription.Key) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tasks[key]
	delete(f.tasks, key)
	return ok, nil
}

func (f *fakeTasks) CancelByDevice(ctx context.Context, deviceToken string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.tasks {
		if k.DeviceToken == deviceToken {
			delete(f.tasks, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeTasks) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*notification.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Task
	for k, t := range f.tasks {
		if len(out) == limit {
			break
		}
		if !t.FireAt.After(now) {
			out = append(out, t)
			delete(f.tasks, k)
		}
	}
	return out, nil
}

func (f *fakeTasks) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

type fakePush struct {
	mu     sync.Mutex
	sent   []notification.Message
	err    error
	onSend func()
}

// Send fails like a real gateway when ctx is already done.
func (f *fakePush) Send(ctx context.Context, msg notification.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeSweeping struct {
	nearby    []schedule.ScheduleCandidate
	byID      map[int64]*schedule.ScheduleCandidate
	nearbyErr error
}

func (f *fakeSweeping) NearbySchedules(ctx context.Context, p schedule.Point) ([]schedule.ScheduleCandidate, error) {
	return f.nearby, f.nearbyErr
}

func (f *fakeSweeping) GetSchedule(ctx context.Context, id int64) (*schedule.ScheduleCandidate, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, schedule.ErrNotFound
	}
	return c, nil
}

type fakeRegulations struct {
	nearby    []schedule.RegulationCandidate
	byID      map[int64]*schedule.RegulationCandidate
	nearbyErr error
}

func (f *fakeRegulations) NearbyRegulations(ctx context.Context, p schedule.Point, radius float64) ([]schedule.RegulationCandidate, error) {
	return f.nearby, f.nearbyErr
}

func (f *fakeRegulations) GetRegulation(ctx context.Context, id int64) (*schedule.RegulationCandidate, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, schedule.ErrNotFound
	}
	return c, nil
}
