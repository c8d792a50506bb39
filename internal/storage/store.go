package storage

import (
	"context"
	"errors"
	"time"

	"pulsewatch/internal/models"
)

var (
	// ErrDuplicateKey is returned when attempting to create a duplicate resource
	ErrDuplicateKey = errors.New("duplicate")
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidReference is returned when a row points at a monitor or project that does not exist
	ErrInvalidReference = errors.New("invalid reference")
)

// MonitorFilter narrows ListMonitors. Zero values match everything.
type MonitorFilter struct {
	Status models.MonitorStatus
	Types  []models.MonitorType
	// WithErrorRate keeps only monitors that configure an error rate threshold.
	WithErrorRate bool
}

// ListResultsParams contains parameters for listing results with filtering and pagination
type ListResultsParams struct {
	MonitorID string
	Since     *time.Time
	Limit     int
}

// BulkResult reports the outcome of an unordered bulk insert.
type BulkResult struct {
	Inserted int
	Failed   int
}

// ResultCounts aggregates results for one monitor over a window.
type ResultCounts struct {
	Total int
	Down  int
}

// Storer defines the interface for storage operations on monitors, results,
// maintenance windows and API keys.
type Storer interface {
	CreateMonitor(ctx context.Context, m *models.Monitor) error
	GetMonitor(ctx context.Context, id string) (*models.Monitor, error)
	ListMonitors(ctx context.Context, filter MonitorFilter) ([]models.Monitor, error)
	DeleteMonitor(ctx context.Context, id string) error
	UpdateSSL(ctx context.Context, id string, state models.SSLState) error
	RecordHeartbeat(ctx context.Context, id string, at time.Time) error

	// AcquireAlertSlots atomically stamps last_alerted_at = now on every
	// monitor in ids whose previous alert is unset or older than now-cooldown,
	// and returns the ids it stamped.
	AcquireAlertSlots(ctx context.Context, ids []string, now time.Time, cooldown time.Duration) ([]string, error)
	TouchLastAlerted(ctx context.Context, ids []string, at time.Time) error

	// InsertResults writes the batch unordered; rows that fail are skipped and counted.
	InsertResults(ctx context.Context, results []models.Result) (BulkResult, error)
	ListResults(ctx context.Context, params ListResultsParams) ([]models.Result, error)
	CountResultsSince(ctx context.Context, since time.Time) (map[string]ResultCounts, error)
	PurgeResultsBefore(ctx context.Context, before time.Time) (int64, error)

	CreateMaintenanceWindow(ctx context.Context, w *models.MaintenanceWindow) error
	ListMaintenanceWindows(ctx context.Context, projectID string) ([]models.MaintenanceWindow, error)

	CreateAPIKey(ctx context.Context, k *models.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error

	Close() error
}
