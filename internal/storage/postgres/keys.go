package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
)

// CreateMaintenanceWindow implements the Storer interface.
func (s *PostgresStore) CreateMaintenanceWindow(ctx context.Context, w *models.MaintenanceWindow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO maintenance_windows
	(id, project_id, name, type, start_time, end_time, cron_schedule, duration_min, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.ProjectID, w.Name, string(w.Type), w.StartTime, w.EndTime, w.CronSchedule, w.Duration, w.IsActive, w.CreatedAt)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert maintenance window: %w", err)
	}
	return nil
}

// ListMaintenanceWindows implements the Storer interface.
func (s *PostgresStore) ListMaintenanceWindows(ctx context.Context, projectID string) ([]models.MaintenanceWindow, error) {
	rows, err := s.db.Query(ctx, `SELECT id, project_id, name, type, start_time, end_time, cron_schedule, duration_min, is_active, created_at
	FROM maintenance_windows WHERE project_id = $1 AND is_active ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance windows: %w", err)
	}
	defer rows.Close()
	var windows []models.MaintenanceWindow
	for rows.Next() {
		var w models.MaintenanceWindow
		var typ string
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.Name, &typ, &w.StartTime, &w.EndTime, &w.CronSchedule,
			&w.Duration, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan maintenance window row: %w", err)
		}
		w.Type = models.WindowType(typ)
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// CreateAPIKey implements the Storer interface.
func (s *PostgresStore) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	perms := k.Permissions
	if perms == nil {
		perms = []string{}
	}
	_, err := s.db.Exec(ctx, `INSERT INTO api_keys
	(id, project_id, name, key_hash, key_prefix, permissions, last_used_at, expires_at, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		k.ID, k.ProjectID, k.Name, k.KeyHash, k.KeyPrefix, perms, k.LastUsedAt, k.ExpiresAt, k.IsActive, k.CreatedAt)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash implements the Storer interface.
func (s *PostgresStore) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.db.QueryRow(ctx, `SELECT id, project_id, name, key_hash, key_prefix, permissions, last_used_at, expires_at, is_active, created_at
	FROM api_keys WHERE key_hash = $1`, hash).Scan(&k.ID, &k.ProjectID, &k.Name, &k.KeyHash, &k.KeyPrefix,
		&k.Permissions, &k.LastUsedAt, &k.ExpiresAt, &k.IsActive, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &k, nil
}

// TouchAPIKey implements the Storer interface.
func (s *PostgresStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
