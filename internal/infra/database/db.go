package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // PostgreSQL driver
)

//go:embed schema.sql
var schemaSQL string

// PoolOptions sizes the connection pool. Zero fields keep the defaults.
type PoolOptions struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

var defaultPool = PoolOptions{
	MaxOpen:     25,
	MaxIdle:     25,
	MaxLifetime: 5 * time.Minute,
	MaxIdleTime: time.Minute,
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxOpen <= 0 {
		o.MaxOpen = defaultPool.MaxOpen
	}
	if o.MaxIdle <= 0 {
		o.MaxIdle = defaultPool.MaxIdle
	}
	if o.MaxLifetime <= 0 {
		o.MaxLifetime = defaultPool.MaxLifetime
	}
	if o.MaxIdleTime <= 0 {
		o.MaxIdleTime = defaultPool.MaxIdleTime
	}
	return o
}

// NewPostgresConnection opens the pool and pings it before handing it out.
func NewPostgresConnection(ctx context.Context, dataSourceName string, opts PoolOptions) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	opts = opts.withDefaults()
	db.SetMaxOpenConns(opts.MaxOpen)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(opts.MaxLifetime)
	db.SetConnMaxIdleTime(opts.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the subscriptions and due_notifications tables when
// they are missing. Every statement is idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// raisedLimit reports whether err is the store-side subscription cap, raised
// by a trigger as a plain exception mentioning "limit".
func raisedLimit(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "P0001" && strings.Contains(strings.ToLower(pqErr.Message), "limit")
}
