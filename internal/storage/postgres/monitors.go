package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
)

const monitorColumns = `id, project_id, name, type, endpoint, method, frequency, status,
	http_config, keyword, server_config, expected_interval, grace_period, last_heartbeat,
	latency_threshold, response_body_check, error_rate_threshold, channels, last_alerted_at,
	ssl_is_valid, ssl_expires_at, ssl_days_remaining, ssl_error_message, ssl_last_checked_at,
	created_at, updated_at`

// CreateMonitor implements the Storer interface.
func (s *PostgresStore) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	httpConfig, err := json.Marshal(m.HTTPConfig)
	if err != nil {
		return fmt.Errorf("failed to encode http config: %w", err)
	}
	serverConfig, err := json.Marshal(m.ServerConfig)
	if err != nil {
		return fmt.Errorf("failed to encode server config: %w", err)
	}
	channels := m.AlertConfig.Channels
	if channels == nil {
		channels = []models.Channel{}
	}
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("failed to encode channels: %w", err)
	}

	query := `INSERT INTO monitors (` + monitorColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`
	_, err = s.db.Exec(ctx, query,
		m.ID, m.ProjectID, m.Name, string(m.Type), m.Endpoint, m.Method, m.Frequency, string(m.Status),
		httpConfig, m.Keyword, serverConfig, m.ExpectedInterval, m.GracePeriod, m.LastHeartbeat,
		m.AlertConfig.LatencyThreshold, m.AlertConfig.ResponseBodyCheck, m.AlertConfig.ErrorRateThreshold,
		channelsJSON, m.AlertConfig.LastAlertedAt,
		m.SSL.IsValid, m.SSL.ExpiresAt, m.SSL.DaysRemaining, m.SSL.ErrorMessage, m.SSL.LastCheckedAt,
		m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert monitor: %w", err)
	}
	return nil
}

// GetMonitor implements the Storer interface.
func (s *PostgresStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	row := s.db.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor by id: %w", err)
	}
	return m, nil
}

// ListMonitors implements the Storer interface.
func (s *PostgresStore) ListMonitors(ctx context.Context, filter storage.MonitorFilter) ([]models.Monitor, error) {
	var args []any
	qb := strings.Builder{}
	qb.WriteString("SELECT " + monitorColumns + " FROM monitors WHERE 1=1")
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		qb.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		qb.WriteString(fmt.Sprintf(" AND type = ANY($%d)", len(args)))
	}
	if filter.WithErrorRate {
		qb.WriteString(" AND error_rate_threshold IS NOT NULL")
	}
	qb.WriteString(" ORDER BY created_at, id")

	rows, err := s.db.Query(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	defer rows.Close()
	var monitors []models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor row: %w", err)
		}
		monitors = append(monitors, *m)
	}
	return monitors, rows.Err()
}

// DeleteMonitor implements the Storer interface.
func (s *PostgresStore) DeleteMonitor(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateSSL implements the Storer interface.
func (s *PostgresStore) UpdateSSL(ctx context.Context, id string, state models.SSLState) error {
	tag, err := s.db.Exec(ctx, `UPDATE monitors SET ssl_is_valid = $1, ssl_expires_at = $2, ssl_days_remaining = $3,
	ssl_error_message = $4, ssl_last_checked_at = $5, updated_at = NOW() WHERE id = $6`,
		state.IsValid, state.ExpiresAt, state.DaysRemaining, state.ErrorMessage, state.LastCheckedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update ssl state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordHeartbeat implements the Storer interface.
func (s *PostgresStore) RecordHeartbeat(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE monitors SET last_heartbeat = $1, updated_at = NOW() WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AcquireAlertSlots implements the cooldown compare-and-swap in one statement.
func (s *PostgresStore) AcquireAlertSlots(ctx context.Context, ids []string, now time.Time, cooldown time.Duration) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `UPDATE monitors SET last_alerted_at = $1
	WHERE id = ANY($2) AND (last_alerted_at IS NULL OR last_alerted_at < $3)
	RETURNING id`, now, ids, now.Add(-cooldown))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire alert slots: %w", err)
	}
	acquired, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect acquired ids: %w", err)
	}
	return acquired, nil
}

// TouchLastAlerted implements the Storer interface.
func (s *PostgresStore) TouchLastAlerted(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `UPDATE monitors SET last_alerted_at = $1 WHERE id = ANY($2)`, at, ids); err != nil {
		return fmt.Errorf("failed to update last alerted: %w", err)
	}
	return nil
}

func scanMonitor(row pgx.Row) (*models.Monitor, error) {
	var m models.Monitor
	var typ, status string
	var httpConfig, serverConfig, channels []byte
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.Name, &typ, &m.Endpoint, &m.Method, &m.Frequency, &status,
		&httpConfig, &m.Keyword, &serverConfig, &m.ExpectedInterval, &m.GracePeriod, &m.LastHeartbeat,
		&m.AlertConfig.LatencyThreshold, &m.AlertConfig.ResponseBodyCheck, &m.AlertConfig.ErrorRateThreshold,
		&channels, &m.AlertConfig.LastAlertedAt,
		&m.SSL.IsValid, &m.SSL.ExpiresAt, &m.SSL.DaysRemaining, &m.SSL.ErrorMessage, &m.SSL.LastCheckedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = models.MonitorType(typ)
	m.Status = models.MonitorStatus(status)
	if err := json.Unmarshal(httpConfig, &m.HTTPConfig); err != nil {
		return nil, fmt.Errorf("decode http config: %w", err)
	}
	if err := json.Unmarshal(serverConfig, &m.ServerConfig); err != nil {
		return nil, fmt.Errorf("decode server config: %w", err)
	}
	if err := json.Unmarshal(channels, &m.AlertConfig.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	return &m, nil
}

var _ storage.Storer = (*PostgresStore)(nil)
