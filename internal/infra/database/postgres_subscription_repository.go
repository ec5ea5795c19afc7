// internal/infra/database/postgres_subscription_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sweep_notifier/internal/domain/subscription"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `id, device_token, platform, schedule_id, subscription_type, lead_minutes,
       latitude, longitude, last_notified_at, fence, created_at, updated_at`

type subscriptionRow struct {
	ID               int64        `db:"id"`
	DeviceToken      string       `db:"device_token"`
	Platform         string       `db:"platform"`
	ScheduleID       int64        `db:"schedule_id"`
	SubscriptionType string       `db:"subscription_type"`
	LeadMinutes      int          `db:"lead_minutes"`
	Latitude         float64      `db:"latitude"`
	Longitude        float64      `db:"longitude"`
	LastNotifiedAt   sql.NullTime `db:"last_notified_at"`
	Fence            uuid.UUID    `db:"fence"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r subscriptionRow) toDomain() (*subscription.Subscription, error) {
	target, err := subscription.NewTarget(subscription.Type(r.SubscriptionType), r.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("subscription %d: %w", r.ID, err)
	}
	return &subscription.Subscription{
		ID:             r.ID,
		DeviceToken:    r.DeviceToken,
		Platform:       subscription.Platform(r.Platform),
		Target:         target,
		LeadMinutes:    r.LeadMinutes,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		LastNotifiedAt: r.LastNotifiedAt,
		Fence:          r.Fence,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

func toDomainList(rows []subscriptionRow) ([]*subscription.Subscription, error) {
	out := make([]*subscription.Subscription, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

type PostgresSubscriptionRepository struct {
	db *sqlx.DB
}

func NewPostgresSubscriptionRepository(db *sqlx.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

func (r *PostgresSubscriptionRepository) Upsert(ctx context.Context, sub *subscription.Subscription, limit int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for subscription upsert: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	key := sub.Key()
	if limit > 0 {
		// Serializes concurrent subscribes of one device so the count below holds.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.DeviceToken); err != nil {
			return fmt.Errorf("error locking device subscriptions: %w", err)
		}
		var pending int
		err := tx.GetContext(ctx, &pending, `SELECT COUNT(*) FROM subscriptions
               WHERE device_token = $1 AND schedule_id <> $2 AND last_notified_at IS NULL`, key.DeviceToken, key.ScheduleID)
		if err != nil {
			return fmt.Errorf("error counting pending subscriptions: %w", err)
		}
		if pending >= limit {
			return subscription.ErrLimitExceeded
		}
	}

	fence := uuid.New()
	query := `INSERT INTO subscriptions (device_token, platform, schedule_id, subscription_type, lead_minutes, latitude, longitude, fence)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               ON CONFLICT (device_token, schedule_id) DO UPDATE
               SET platform = EXCLUDED.platform,
                   subscription_type = EXCLUDED.subscription_type,
                   lead_minutes = EXCLUDED.lead_minutes,
                   latitude = EXCLUDED.latitude,
                   longitude = EXCLUDED.longitude,
                   fence = EXCLUDED.fence,
                   last_notified_at = CASE WHEN subscriptions.subscription_type = EXCLUDED.subscription_type
                                           THEN subscriptions.last_notified_at END,
                   updated_at = NOW()
               RETURNING id, last_notified_at, created_at, updated_at`
	err = tx.QueryRowxContext(ctx, query,
		key.DeviceToken, sub.Platform, key.ScheduleID, sub.Target.Type(), sub.LeadMinutes, sub.Latitude, sub.Longitude, fence,
	).Scan(&sub.ID, &sub.LastNotifiedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if raisedLimit(err) {
			return subscription.ErrLimitExceeded
		}
		return fmt.Errorf("error upserting subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if raisedLimit(err) {
			return subscription.ErrLimitExceeded
		}
		return fmt.Errorf("error committing subscription upsert: %w", err)
	}
	sub.Fence = fence
	return nil
}

func (r *PostgresSubscriptionRepository) Get(ctx context.Context, key subscription.Key) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE device_token = $1 AND schedule_id = $2`
	var row subscriptionRow
	if err := r.db.GetContext(ctx, &row, query, key.DeviceToken, key.ScheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("error getting subscription: %w", err)
	}
	return row.toDomain()
}

func (r *PostgresSubscriptionRepository) ListByDevice(ctx context.Context, deviceToken string) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE device_token = $1 ORDER BY id`
	var rows []subscriptionRow
	if err := r.db.SelectContext(ctx, &rows, query, deviceToken); err != nil {
		return nil, fmt.Errorf("error listing subscriptions by device: %w", err)
	}
	return toDomainList(rows)
}

func (r *PostgresSubscriptionRepository) ListUnarmedSweeping(ctx context.Context, afterID int64, limit int) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions s
               WHERE s.id > $1
                 AND s.subscription_type = 'sweeping'
                 AND NOT EXISTS (SELECT 1 FROM due_notifications d
                                 WHERE d.device_token = s.device_token AND d.schedule_id = s.schedule_id)
               ORDER BY s.id
               LIMIT $2`
	var rows []subscriptionRow
	if err := r.db.SelectContext(ctx, &rows, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("error listing unarmed subscriptions: %w", err)
	}
	return toDomainList(rows)
}

func (r *PostgresSubscriptionRepository) Delete(ctx context.Context, key subscription.Key) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE device_token = $1 AND schedule_id = $2`, key.DeviceToken, key.ScheduleID)
	if err != nil {
		return fmt.Errorf("error deleting subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading deleted subscription count: %w", err)
	}
	if n == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (r *PostgresSubscriptionRepository) DeleteByDevice(ctx context.Context, deviceToken string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE device_token = $1`, deviceToken)
	if err != nil {
		return 0, fmt.Errorf("error deleting device subscriptions: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresSubscriptionRepository) DeleteFenced(ctx context.Context, key subscription.Key, fence uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE device_token = $1 AND schedule_id = $2 AND fence = $3`,
		key.DeviceToken, key.ScheduleID, fence)
	if err != nil {
		return false, fmt.Errorf("error deleting fenced subscription: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresSubscriptionRepository) MarkNotified(ctx context.Context, key subscription.Key, fence uuid.UUID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET last_notified_at = $4, updated_at = NOW()
               WHERE device_token = $1 AND schedule_id = $2 AND fence = $3`,
		key.DeviceToken, key.ScheduleID, fence, at)
	if err != nil {
		return false, fmt.Errorf("error marking subscription notified: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
