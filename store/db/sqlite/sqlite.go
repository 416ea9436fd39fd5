package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/rhythm/internal/profile"
	"github.com/hrygo/rhythm/store"
)

// SQLite is meant for single-user instances and tests. Concurrent writers are
// serialized by a single connection.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database named by profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	separator := "?"
	if strings.Contains(profile.DSN, "?") {
		separator = "&"
	}
	sqliteDB, err := sql.Open("sqlite", profile.DSN+separator+"_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB, profile: profile}, nil
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
			return errors.Wrap(err, "failed to migrate sqlite schema")
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		preferences TEXT NOT NULL DEFAULT '{}',
		created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE TABLE IF NOT EXISTS daily_task (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		scheduled_date TEXT NOT NULL,
		scheduled_time TEXT,
		estimated_duration INTEGER NOT NULL DEFAULT 30,
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'pending',
		tags TEXT NOT NULL DEFAULT '[]',
		created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_task_user_date ON daily_task (user_id, scheduled_date)`,
	`CREATE TABLE IF NOT EXISTS goal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		year INTEGER NOT NULL,
		created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE TABLE IF NOT EXISTS objective (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		goal_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE TABLE IF NOT EXISTS behavior_insight (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		insight_type TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		confidence TEXT NOT NULL,
		created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_behavior_insight_user ON behavior_insight (user_id, created_ts)`,
	`CREATE TABLE IF NOT EXISTS suggestion (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		actionable INTEGER NOT NULL DEFAULT 1,
		priority TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '{}',
		valid_until BIGINT NOT NULL,
		confidence REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestion_user_status ON suggestion (user_id, status)`,
	`CREATE TABLE IF NOT EXISTS learning_state (
		user_id INTEGER PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 0,
		started_ts BIGINT NOT NULL DEFAULT 0,
		updated_ts BIGINT NOT NULL DEFAULT 0
	)`,
}
