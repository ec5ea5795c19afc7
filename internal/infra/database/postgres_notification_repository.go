// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/subscription"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // For pq.Array
)

const taskColumns = `device_token, schedule_id, subscription_type, fire_at, payload, fence, created_at`

type taskRow struct {
	DeviceToken      string    `db:"device_token"`
	ScheduleID       int64     `db:"schedule_id"`
	SubscriptionType string    `db:"subscription_type"`
	FireAt           time.Time `db:"fire_at"`
	Payload          []byte    `db:"payload"`
	Fence            uuid.UUID `db:"fence"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r taskRow) toDomain() (*notification.Task, error) {
	task := &notification.Task{
		Key:       subscription.Key{DeviceToken: r.DeviceToken, ScheduleID: r.ScheduleID},
		Kind:      subscription.Type(r.SubscriptionType),
		FireAt:    r.FireAt,
		Fence:     r.Fence,
		CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.Payload, &task.Payload); err != nil {
		return nil, fmt.Errorf("error decoding payload of %s: %w", task.Key, err)
	}
	return task, nil
}

func tasksToDomain(rows []taskRow) ([]*notification.Task, error) {
	out := make([]*notification.Task, 0, len(rows))
	for _, row := range rows {
		task, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

// PostgresNotificationRepository stores due notifications, one row per scheduling unit.
type PostgresNotificationRepository struct {
	db *sqlx.DB
}

func NewPostgresNotificationRepository(db *sqlx.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Arm(ctx context.Context, task *notification.Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("error encoding notification payload: %w", err)
	}
	// Only arm while the subscription still carries the fence the task was built for.
	query := `INSERT INTO due_notifications (device_token, schedule_id, subscription_type, fire_at, payload, fence)
               SELECT $1::text, $2::bigint, $3::text, $4::timestamptz, $5::jsonb, $6::uuid
               WHERE EXISTS (SELECT 1 FROM subscriptions
                             WHERE device_token = $1::text AND schedule_id = $2::bigint AND fence = $6::uuid)
               ON CONFLICT (device_token, schedule_id) DO UPDATE
               SET subscription_type = EXCLUDED.subscription_type,
                   fire_at = EXCLUDED.fire_at,
                   payload = EXCLUDED.payload,
                   fence = EXCLUDED.fence,
                   created_at = NOW()`
	res, err := r.db.ExecContext(ctx, query,
		task.Key.DeviceToken, task.Key.ScheduleID, task.Kind, task.FireAt, payload, task.Fence)
	if err != nil {
		return fmt.Errorf("error arming due notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading armed notification count: %w", err)
	}
	if n == 0 {
		return notification.ErrStaleFence
	}
	return nil
}

func (r *PostgresNotificationRepository) Get(ctx context.Context, key subscription.Key) (*notification.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM due_notifications WHERE device_token = $1 AND schedule_id = $2`
	var row taskRow
	if err := r.db.GetContext(ctx, &row, query, key.DeviceToken, key.ScheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrTaskNotFound
		}
		return nil, fmt.Errorf("error getting due notification: %w", err)
	}
	return row.toDomain()
}

func (r *PostgresNotificationRepository) ListByDevice(ctx context.Context, deviceToken string) ([]*notification.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM due_notifications WHERE device_token = $1 ORDER BY fire_at`
	var rows []taskRow
	if err := r.db.SelectContext(ctx, &rows, query, deviceToken); err != nil {
		return nil, fmt.Errorf("error listing due notifications by device: %w", err)
	}
	return tasksToDomain(rows)
}

func (r *PostgresNotificationRepository) Cancel(ctx context.Context, key subscription.Key) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM due_notifications WHERE device_token = $1 AND schedule_id = $2`,
		key.DeviceToken, key.ScheduleID)
	if err != nil {
		return false, fmt.Errorf("error cancelling due notification: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresNotificationRepository) CancelByDevice(ctx context.Context, deviceToken string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM due_notifications WHERE device_token = $1`, deviceToken)
	if err != nil {
		return 0, fmt.Errorf("error cancelling device notifications: %w", err)
	}
	return res.RowsAffected()
}

// ClaimDue locks due rows (skipping rows another dispatcher holds), deletes
// them and commits before anything is delivered. A claimed row can therefore
// never be delivered twice.
func (r *PostgresNotificationRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*notification.Task, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for claim: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	var rows []taskRow
	query := `SELECT ` + taskColumns + ` FROM due_notifications
               WHERE fire_at <= $1
               ORDER BY fire_at
               LIMIT $2
               FOR UPDATE SKIP LOCKED`
	if err := tx.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, fmt.Errorf("error selecting due notifications: %w", err)
	}
	if len(rows) == 0 {
		return nil, tx.Commit()
	}

	tokens := make([]string, len(rows))
	ids := make([]int64, len(rows))
	for i, row := range rows {
		tokens[i] = row.DeviceToken
		ids[i] = row.ScheduleID
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM due_notifications
               WHERE (device_token, schedule_id) IN (SELECT * FROM UNNEST($1::text[], $2::bigint[]))`,
		pq.Array(tokens), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error deleting claimed notifications: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing claim: %w", err)
	}
	return tasksToDomain(rows)
}
