package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the storage.Storer interface for PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// New creates a new PostgresStore and establishes a connection to the database.
// It also runs migrations to ensure the schema is up to date.
func New(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// migrate ensures the database schema is created.
func (s *PostgresStore) migrate(ctx context.Context) error {
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
		http_config          JSONB NOT NULL DEFAULT '{}',
		keyword              TEXT NOT NULL DEFAULT '',
		server_config        JSONB NOT NULL DEFAULT '{}',
		expected_interval    INTEGER NOT NULL DEFAULT 0,
		grace_period         INTEGER NOT NULL DEFAULT 0,
		last_heartbeat       TIMESTAMPTZ,
		latency_threshold    BIGINT,
		response_body_check  TEXT,
		error_rate_threshold DOUBLE PRECISION,
		channels             JSONB NOT NULL DEFAULT '[]',
		last_alerted_at      TIMESTAMPTZ,
		ssl_is_valid         BOOLEAN,
		ssl_expires_at       TIMESTAMPTZ,
		ssl_days_remaining   INTEGER,
		ssl_error_message    TEXT,
		ssl_last_checked_at  TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_monitors_status_type ON monitors (status, type);
	CREATE INDEX IF NOT EXISTS idx_monitors_project_id ON monitors (project_id);

	CREATE TABLE IF NOT EXISTS results (
		id             TEXT PRIMARY KEY,
		monitor_id     TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		project_id     TEXT NOT NULL,
		location       TEXT NOT NULL,
		ts             TIMESTAMPTZ NOT NULL,
		latency_ms     BIGINT NOT NULL,
		status_code    INTEGER NOT NULL,
		is_up          BOOLEAN NOT NULL,
		error_message  TEXT,
		server_metrics JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_results_monitor_id_ts ON results (monitor_id, ts DESC);
	CREATE INDEX IF NOT EXISTS idx_results_ts ON results (ts);

	CREATE TABLE IF NOT EXISTS maintenance_windows (
		id            TEXT PRIMARY KEY,
		project_id    TEXT NOT NULL,
		name          TEXT NOT NULL,
		type          TEXT NOT NULL,
		start_time    TIMESTAMPTZ,
		end_time      TIMESTAMPTZ,
		cron_schedule TEXT NOT NULL DEFAULT '',
		duration_min  INTEGER NOT NULL DEFAULT 0,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_maintenance_windows_project ON maintenance_windows (project_id, is_active);

	CREATE TABLE IF NOT EXISTS api_keys (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL,
		name         TEXT NOT NULL,
		key_hash     TEXT NOT NULL UNIQUE,
		key_prefix   TEXT NOT NULL,
		permissions  TEXT[] NOT NULL DEFAULT '{}',
		last_used_at TIMESTAMPTZ,
		expires_at   TIMESTAMPTZ,
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := s.db.Exec(ctx, schema)
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == "23505" }
