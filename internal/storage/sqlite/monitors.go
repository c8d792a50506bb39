package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
)

const monitorColumns = `id, project_id, name, type, endpoint, method, frequency, status,
	http_config, keyword, server_config, expected_interval, grace_period, last_heartbeat,
	latency_threshold, response_body_check, error_rate_threshold, channels, last_alerted_at,
	ssl_is_valid, ssl_expires_at, ssl_days_remaining, ssl_error_message, ssl_last_checked_at,
	created_at, updated_at`

// CreateMonitor inserts a new monitor. An empty ID is filled with a uuid.
func (s *SQLiteStore) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	httpConfig, err := toJSON(m.HTTPConfig)
	if err != nil {
		return fmt.Errorf("failed to encode http config: %w", err)
	}
	serverConfig, err := toJSON(m.ServerConfig)
	if err != nil {
		return fmt.Errorf("failed to encode server config: %w", err)
	}
	channels := m.AlertConfig.Channels
	if channels == nil {
		channels = []models.Channel{}
	}
	channelsJSON, err := toJSON(channels)
	if err != nil {
		return fmt.Errorf("failed to encode channels: %w", err)
	}

	query := `INSERT INTO monitors (` + monitorColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.ProjectID, m.Name, string(m.Type), m.Endpoint, m.Method, m.Frequency, string(m.Status),
		httpConfig, m.Keyword, serverConfig, m.ExpectedInterval, m.GracePeriod, formatTimePtr(m.LastHeartbeat),
		m.AlertConfig.LatencyThreshold, m.AlertConfig.ResponseBodyCheck, m.AlertConfig.ErrorRateThreshold,
		channelsJSON, formatTimePtr(m.AlertConfig.LastAlertedAt),
		m.SSL.IsValid, formatTimePtr(m.SSL.ExpiresAt), m.SSL.DaysRemaining, m.SSL.ErrorMessage, formatTimePtr(m.SSL.LastCheckedAt),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert monitor: %w", err)
	}
	return nil
}

// GetMonitor retrieves a single monitor by its unique ID.
func (s *SQLiteStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor by id: %w", err)
	}
	return m, nil
}

// ListMonitors retrieves the monitors matching filter, ordered by creation.
func (s *SQLiteStore) ListMonitors(ctx context.Context, filter storage.MonitorFilter) ([]models.Monitor, error) {
	var args []any
	qb := strings.Builder{}
	qb.WriteString("SELECT " + monitorColumns + " FROM monitors WHERE 1=1")
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		qb.WriteString(" AND status = ?")
	}
	if len(filter.Types) > 0 {
		qb.WriteString(" AND type IN (" + placeholders(len(filter.Types)) + ")")
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if filter.WithErrorRate {
		qb.WriteString(" AND error_rate_threshold IS NOT NULL")
	}
	qb.WriteString(" ORDER BY created_at, id")

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
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

// DeleteMonitor removes a monitor; its results go with it.
func (s *SQLiteStore) DeleteMonitor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateSSL overwrites the certificate sub-state of a monitor.
func (s *SQLiteStore) UpdateSSL(ctx context.Context, id string, state models.SSLState) error {
	query := `UPDATE monitors SET ssl_is_valid = ?, ssl_expires_at = ?, ssl_days_remaining = ?,
	ssl_error_message = ?, ssl_last_checked_at = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		state.IsValid, formatTimePtr(state.ExpiresAt), state.DaysRemaining, state.ErrorMessage,
		formatTimePtr(state.LastCheckedAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update ssl state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordHeartbeat stamps the last heartbeat of a monitor.
func (s *SQLiteStore) RecordHeartbeat(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE monitors SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AcquireAlertSlots implements the cooldown compare-and-swap.
func (s *SQLiteStore) AcquireAlertSlots(ctx context.Context, ids []string, now time.Time, cooldown time.Duration) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{formatTime(now)}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, formatTime(now.Add(-cooldown)))
	query := `UPDATE monitors SET last_alerted_at = ?
WHERE id IN (` + placeholders(len(ids)) + `)
AND (last_alerted_at IS NULL OR last_alerted_at < ?)
RETURNING id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire alert slots: %w", err)
	}
	defer rows.Close()
	var acquired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan acquired id: %w", err)
		}
		acquired = append(acquired, id)
	}
	return acquired, rows.Err()
}

// TouchLastAlerted sets last_alerted_at unconditionally.
func (s *SQLiteStore) TouchLastAlerted(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{formatTime(at)}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE monitors SET last_alerted_at = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to update last alerted: %w", err)
	}
	return nil
}

func scanMonitor(row rowScanner) (*models.Monitor, error) {
	var m models.Monitor
	var typ, status, httpConfig, serverConfig, chans, createdAt, updatedAt string
	var lastHeartbeat, lastAlerted, bodyCheck, sslExpires, sslError, sslChecked sql.NullString
	var latency, sslDays sql.NullInt64
	var errRate sql.NullFloat64
	var sslValid sql.NullBool
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.Name, &typ, &m.Endpoint, &m.Method, &m.Frequency, &status,
		&httpConfig, &m.Keyword, &serverConfig, &m.ExpectedInterval, &m.GracePeriod, &lastHeartbeat,
		&latency, &bodyCheck, &errRate, &chans, &lastAlerted,
		&sslValid, &sslExpires, &sslDays, &sslError, &sslChecked,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = models.MonitorType(typ)
	m.Status = models.MonitorStatus(status)
	if err := json.Unmarshal([]byte(httpConfig), &m.HTTPConfig); err != nil {
		return nil, fmt.Errorf("decode http config: %w", err)
	}
	if err := json.Unmarshal([]byte(serverConfig), &m.ServerConfig); err != nil {
		return nil, fmt.Errorf("decode server config: %w", err)
	}
	if err := json.Unmarshal([]byte(chans), &m.AlertConfig.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	m.LastHeartbeat = parseNullTime(lastHeartbeat)
	m.AlertConfig.LastAlertedAt = parseNullTime(lastAlerted)
	if latency.Valid {
		m.AlertConfig.LatencyThreshold = &latency.Int64
	}
	if bodyCheck.Valid {
		m.AlertConfig.ResponseBodyCheck = &bodyCheck.String
	}
	if errRate.Valid {
		m.AlertConfig.ErrorRateThreshold = &errRate.Float64
	}
	if sslValid.Valid {
		m.SSL.IsValid = &sslValid.Bool
	}
	m.SSL.ExpiresAt = parseNullTime(sslExpires)
	if sslDays.Valid {
		d := int(sslDays.Int64)
		m.SSL.DaysRemaining = &d
	}
	if sslError.Valid {
		m.SSL.ErrorMessage = &sslError.String
	}
	m.SSL.LastCheckedAt = parseNullTime(sslChecked)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

var _ storage.Storer = (*SQLiteStore)(nil)
