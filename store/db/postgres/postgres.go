package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/internal/profile"
	"github.com/hrygo/rhythm/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection pool for profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open postgres connection", "error", err)
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate postgres schema")
		}
	}
	return nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// wrapNoRows maps sql.ErrNoRows to store.ErrNotFound.
func wrapNoRows(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(store.ErrNotFound, message)
	}
	return errors.Wrap(err, message)
}

type scanner interface {
	Scan(dest ...any) error
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		preferences JSONB NOT NULL DEFAULT '{}',
		created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
		updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
	)`,
	`CREATE TABLE IF NOT EXISTS daily_task (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		scheduled_date TEXT NOT NULL,
		scheduled_time TEXT,
		estimated_duration INTEGER NOT NULL DEFAULT 30,
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'pending',
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
		updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_task_user_date ON daily_task (user_id, scheduled_date)`,
	`CREATE TABLE IF NOT EXISTS goal (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		year INTEGER NOT NULL,
		created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
	)`,
	`CREATE TABLE IF NOT EXISTS objective (
		id SERIAL PRIMARY KEY,
		goal_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
	)`,
	`CREATE TABLE IF NOT EXISTS behavior_insight (
		id BIGSERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL,
		insight_type TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}',
		confidence TEXT NOT NULL,
		created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
	)`,
	`CREATE INDEX IF NOT EXISTS idx_behavior_insight_user ON behavior_insight (user_id, created_ts DESC)`,
	`CREATE TABLE IF NOT EXISTS suggestion (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		actionable BOOLEAN NOT NULL DEFAULT TRUE,
		priority TEXT NOT NULL,
		context JSONB NOT NULL DEFAULT '{}',
		valid_until BIGINT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
		updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestion_user_status ON suggestion (user_id, status)`,
	`CREATE TABLE IF NOT EXISTS learning_state (
		user_id INTEGER PRIMARY KEY,
		enabled BOOLEAN NOT NULL DEFAULT FALSE,
		started_ts BIGINT NOT NULL DEFAULT 0,
		updated_ts BIGINT NOT NULL DEFAULT 0
	)`,
}
