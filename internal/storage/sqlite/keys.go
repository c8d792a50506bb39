package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
)

// CreateMaintenanceWindow saves a new maintenance window.
func (s *SQLiteStore) CreateMaintenanceWindow(ctx context.Context, w *models.MaintenanceWindow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO maintenance_windows
(id, project_id, name, type, start_time, end_time, cron_schedule, duration_min, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, w.ID, w.ProjectID, w.Name, string(w.Type),
		formatTimePtr(w.StartTime), formatTimePtr(w.EndTime), w.CronSchedule, w.Duration, w.IsActive, formatTime(w.CreatedAt))
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert maintenance window: %w", err)
	}
	return nil
}

// ListMaintenanceWindows returns the active windows of a project.
func (s *SQLiteStore) ListMaintenanceWindows(ctx context.Context, projectID string) ([]models.MaintenanceWindow, error) {
	query := `SELECT id, project_id, name, type, start_time, end_time, cron_schedule, duration_min, is_active, created_at
FROM maintenance_windows WHERE project_id = ? AND is_active = 1 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance windows: %w", err)
	}
	defer rows.Close()
	var windows []models.MaintenanceWindow
	for rows.Next() {
		var w models.MaintenanceWindow
		var typ, createdAt string
		var start, end sql.NullString
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.Name, &typ, &start, &end, &w.CronSchedule,
			&w.Duration, &w.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan maintenance window row: %w", err)
		}
		w.Type = models.WindowType(typ)
		w.StartTime = parseNullTime(start)
		w.EndTime = parseNullTime(end)
		w.CreatedAt = parseTime(createdAt)
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// CreateAPIKey saves a new API key. Only the hash is persisted.
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	perms, err := toJSON(k.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}
	query := `INSERT INTO api_keys
(id, project_id, name, key_hash, key_prefix, permissions, last_used_at, expires_at, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, k.ID, k.ProjectID, k.Name, k.KeyHash, k.KeyPrefix, perms,
		formatTimePtr(k.LastUsedAt), formatTimePtr(k.ExpiresAt), k.IsActive, formatTime(k.CreatedAt))
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash looks a key up by its sha256 hex digest.
func (s *SQLiteStore) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	query := `SELECT id, project_id, name, key_hash, key_prefix, permissions, last_used_at, expires_at, is_active, created_at
FROM api_keys WHERE key_hash = ?`
	var k models.APIKey
	var perms, createdAt string
	var lastUsed, expires sql.NullString
	err := s.db.QueryRowContext(ctx, query, hash).Scan(&k.ID, &k.ProjectID, &k.Name, &k.KeyHash, &k.KeyPrefix,
		&perms, &lastUsed, &expires, &k.IsActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if err := json.Unmarshal([]byte(perms), &k.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	k.LastUsedAt = parseNullTime(lastUsed)
	k.ExpiresAt = parseNullTime(expires)
	k.CreatedAt = parseTime(createdAt)
	return &k, nil
}

// TouchAPIKey records the last use of a key.
func (s *SQLiteStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, formatTime(at), id); err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
