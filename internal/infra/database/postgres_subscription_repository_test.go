package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"sweep_notifier/internal/domain/subscription"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

var subscriptionColumnNames = []string{"id", "device_token", "platform", "schedule_id", "subscription_type", "lead_minutes",
	"latitude", "longitude", "last_notified_at", "fence", "created_at", "updated_at"}

func sampleSubscription() *subscription.Subscription {
	return &subscription.Subscription{
		DeviceToken: "tok",
		Platform:    subscription.PlatformIOS,
		Target:      subscription.SweepingTarget{BlockSweepID: 42},
		LeadMinutes: 60,
		Latitude:    37.77,
		Longitude:   -122.42,
	}
}

func TestSubscriptionRepositoryUpsertAssignsFence(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresSubscriptionRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WithArgs("tok", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("INSERT INTO subscriptions").
		WithArgs("tok", "ios", int64(42), "sweeping", 60, 37.77, -122.42, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "last_notified_at", "created_at", "updated_at"}).
			AddRow(int64(7), nil, now, now))
	mock.ExpectCommit()

	sub := sampleSubscription()
	require.NoError(t, repo.Upsert(context.Background(), sub, 10))
	assert.Equal(t, int64(7), sub.ID)
	assert.NotEqual(t, uuid.Nil, sub.Fence)
	assert.False(t, sub.LastNotifiedAt.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryUpsertRejectsAtLimit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresSubscriptionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WithArgs("tok", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectRollback()

	sub := sampleSubscription()
	err := repo.Upsert(context.Background(), sub, 10)
	assert.ErrorIs(t, err, subscription.ErrLimitExceeded)
	assert.Equal(t, uuid.Nil, sub.Fence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryUpsertMapsTriggerLimit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresSubscriptionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO subscriptions").
		WillReturnError(&pq.Error{Code: "P0001", Message: "Subscription limit reached"})
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), sampleSubscription(), 0)
	assert.ErrorIs(t, err, subscription.ErrLimitExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresSubscriptionRepository(db)
	fence := uuid.New()
	notified := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, device_token").WithArgs("tok", int64(9)).
		WillReturnRows(sqlmock.NewRows(subscriptionColumnNames).
			AddRow(int64(3), "tok", "android", int64(9), "timing", 15, 0.0, 0.0, notified, fence.String(), notified, notified))

	sub, err := repo.Get(context.Background(), subscription.Key{DeviceToken: "tok", ScheduleID: 9})
	require.NoError(t, err)
	assert.Equal(t, subscription.TimingTarget{RegulationID: 9}, sub.Target)
	assert.Equal(t, subscription.PlatformAndroid, sub.Platform)
	assert.Equal(t, fence, sub.Fence)
	assert.Equal(t, sql.NullTime{Time: notified, Valid: true}, sub.LastNotifiedAt)
}

func TestSubscriptionRepositoryGetNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresSubscriptionRepository(db)

	mock.ExpectQuery("SELECT id, device_token").WithArgs("tok", int64(9)).
		WillReturnRows(sqlmock.NewRows(subscriptionColumnNames))

	_, err := repo.Get(context.Background(), subscription.Key{DeviceToken: "tok", ScheduleID: 9})
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestSubscriptionRepositoryListUnarmedSweepingPagesByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresSubscriptionRepository(db)
	now := time.Now()

	mock.ExpectQuery(`subscription_type = 'sweeping'\s+AND NOT EXISTS`).WithArgs(int64(5), 2).
		WillReturnRows(sqlmock.NewRows(subscriptionColumnNames).
			AddRow(int64(6), "a", "ios", int64(1), "sweeping", 30, 0.0, 0.0, nil, uuid.NewString(), now, now).
			AddRow(int64(8), "b", "web", int64(2), "sweeping", 0, 0.0, 0.0, nil, uuid.NewString(), now, now))

	subs, err := repo.ListUnarmedSweeping(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(6), subs[0].ID)
	assert.Equal(t, subscription.TypeSweeping, subs[1].Target.Type())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresSubscriptionRepository(db)

	mock.ExpectExec("DELETE FROM subscriptions").WithArgs("tok", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), subscription.Key{DeviceToken: "tok", ScheduleID: 1})
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestSubscriptionRepositoryFencedCleanup(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresSubscriptionRepository(db)
	key := subscription.Key{DeviceToken: "tok", ScheduleID: 1}
	fence := uuid.New()
	at := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM subscriptions").WithArgs("tok", int64(1), fence).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE subscriptions SET last_notified_at").WithArgs("tok", int64(1), fence, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteFenced(context.Background(), key, fence)
	require.NoError(t, err)
	assert.False(t, deleted, "a re-subscribe replaced the fence")

	marked, err := repo.MarkNotified(context.Background(), key, fence, at)
	require.NoError(t, err)
	assert.True(t, marked)
	require.NoError(t, mock.ExpectationsWereMet())
}
