package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that lexical order on the TEXT columns matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements the storage.Storer interface for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore and establishes a connection to the database file.
// It also runs migrations to ensure the schema is up to date.
func New(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dataSourceName, "?") {
		sep = "&"
	}
	dsn := dataSourceName + sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// Single writer; the pragmas above are per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// migrate ensures the database schema is created.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id                   TEXT PRIMARY KEY,
	project_id           TEXT NOT NULL,
	name                 TEXT NOT NULL,
	type                 TEXT NOT NULL,
	endpoint             TEXT NOT NULL DEFAULT '',
	method               TEXT NOT NULL DEFAULT 'GET',
	frequency            INTEGER NOT NULL DEFAULT 60,
	status               TEXT NOT NULL DEFAULT 'ACTIVE',
	http_config          TEXT NOT NULL DEFAULT '{}',
	keyword              TEXT NOT NULL DEFAULT '',
	server_config        TEXT NOT NULL DEFAULT '{}',
	expected_interval    INTEGER NOT NULL DEFAULT 0,
	grace_period         INTEGER NOT NULL DEFAULT 0,
	last_heartbeat       TEXT,
	latency_threshold    INTEGER,
	response_body_check  TEXT,
	error_rate_threshold REAL,
	channels             TEXT NOT NULL DEFAULT '[]',
	last_alerted_at      TEXT,
	ssl_is_valid         INTEGER,
	ssl_expires_at       TEXT,
	ssl_days_remaining   INTEGER,
	ssl_error_message    TEXT,
	ssl_last_checked_at  TEXT,
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitors_status_type ON monitors (status, type);
CREATE INDEX IF NOT EXISTS idx_monitors_project_id ON monitors (project_id);

CREATE TABLE IF NOT EXISTS results (
	id             TEXT PRIMARY KEY,
	monitor_id     TEXT NOT NULL,
	project_id     TEXT NOT NULL,
	location       TEXT NOT NULL,
	ts             TEXT NOT NULL,
	latency_ms     INTEGER NOT NULL,
	status_code    INTEGER NOT NULL,
	is_up          INTEGER NOT NULL,
	error_message  TEXT,
	server_metrics TEXT,
	FOREIGN KEY(monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_results_monitor_id_ts ON results (monitor_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_results_ts ON results (ts);

CREATE TABLE IF NOT EXISTS maintenance_windows (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL,
	name          TEXT NOT NULL,
	type          TEXT NOT NULL,
	start_time    TEXT,
	end_time      TEXT,
	cron_schedule TEXT NOT NULL DEFAULT '',
	duration_min  INTEGER NOT NULL DEFAULT 0,
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_maintenance_windows_project ON maintenance_windows (project_id, is_active);

CREATE TABLE IF NOT EXISTS api_keys (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL,
	name         TEXT NOT NULL,
	key_hash     TEXT NOT NULL UNIQUE,
	key_prefix   TEXT NOT NULL,
	permissions  TEXT NOT NULL DEFAULT '[]',
	last_used_at TEXT,
	expires_at   TEXT,
	is_active    INTEGER NOT NULL DEFAULT 1,
	created_at   TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
