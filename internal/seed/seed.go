// Package seed imports monitors, maintenance windows and API keys from a
// YAML document.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"pulsewatch/internal/api"
	"pulsewatch/internal/maintenance"
	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
	"pulsewatch/internal/urlutil"
)

// File is the top-level import document.
type File struct {
	Monitors []MonitorSpec `yaml:"monitors" validate:"dive"`
	Windows  []WindowSpec  `yaml:"maintenance_windows" validate:"dive"`
	APIKeys  []KeySpec     `yaml:"api_keys" validate:"dive"`
}

// MonitorSpec is a monitor entry of the import document.
type MonitorSpec struct {
	ID               string               `yaml:"id"`
	ProjectID        string               `yaml:"project_id" validate:"required"`
	Name             string               `yaml:"name" validate:"required"`
	Type             models.MonitorType   `yaml:"type" validate:"required,oneof=http keyword ping heartbeat server"`
	Endpoint         string               `yaml:"endpoint"`
	Method           string               `yaml:"method"`
	Frequency        int                  `yaml:"frequency"`
	Status           models.MonitorStatus `yaml:"status"`
	HTTPConfig       models.HTTPConfig    `yaml:"http_config"`
	Keyword          string               `yaml:"keyword"`
	ExpectedInterval int                  `yaml:"expected_interval"`
	GracePeriod      int                  `yaml:"grace_period"`
	ServerConfig     models.ServerConfig  `yaml:"server_config"`
	AlertConfig      models.AlertConfig   `yaml:"alert_config"`
}

// WindowSpec is a maintenance window entry.
type WindowSpec struct {
	ID           string            `yaml:"id"`
	ProjectID    string            `yaml:"project_id" validate:"required"`
	Name         string            `yaml:"name" validate:"required"`
	Type         models.WindowType `yaml:"type" validate:"required,oneof=one-time recurring"`
	StartTime    *time.Time        `yaml:"start_time"`
	EndTime      *time.Time        `yaml:"end_time"`
	CronSchedule string            `yaml:"cron_schedule"`
	Duration     int               `yaml:"duration"`
	Active       *bool             `yaml:"active"`
}

// KeySpec is an API key entry. When Key is empty a new key is generated.
type KeySpec struct {
	ProjectID   string     `yaml:"project_id" validate:"required"`
	Name        string     `yaml:"name" validate:"required,max=100"`
	Permissions []string   `yaml:"permissions" validate:"required,min=1,dive,oneof=log:write heartbeat:write deployment:write monitor:read monitor:write"`
	Key         string     `yaml:"key"`
	ExpiresAt   *time.Time `yaml:"expires_at"`
}

// IssuedKey is a plain API key created during import. It is shown once.
type IssuedKey struct {
	ProjectID string
	Name      string
	Key       string
}

// Report summarizes an import.
type Report struct {
	Monitors int
	Windows  int
	Keys     int
	Skipped  int
	Issued   []IssuedKey
}

// Store is the subset of storage.Storer used by Import.
type Store interface {
	CreateMonitor(ctx context.Context, m *models.Monitor) error
	CreateMaintenanceWindow(ctx context.Context, w *models.MaintenanceWindow) error
	CreateAPIKey(ctx context.Context, k *models.APIKey) error
}

var validate = validator.New()

// Parse decodes and validates a document. Unknown fields are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the struct tags of every entry in f.
func Validate(f *File) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid seed file: %w", err)
	}
	return nil
}

// Import writes every entry of f. Entries whose ID already exists are skipped;
// any other failure stops the import.
func Import(ctx context.Context, store Store, f *File, logger logrus.FieldLogger) (Report, error) {
	log := logger.WithField("component", "seed")
	var rep Report

	for i, spec := range f.Monitors {
		m, err := spec.monitor()
		if err != nil {
			return rep, fmt.Errorf("monitor %d (%s): %w", i, spec.Name, err)
		}
		if err := store.CreateMonitor(ctx, m); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				log.WithField("monitor_id", m.ID).Info("monitor already exists, skipping")
				rep.Skipped++
				continue
			}
			return rep, fmt.Errorf("create monitor %s: %w", spec.Name, err)
		}
		rep.Monitors++
	}

	for i, spec := range f.Windows {
		w, err := spec.window()
		if err != nil {
			return rep, fmt.Errorf("maintenance window %d (%s): %w", i, spec.Name, err)
		}
		if err := store.CreateMaintenanceWindow(ctx, w); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				rep.Skipped++
				continue
			}
			return rep, fmt.Errorf("create maintenance window %s: %w", spec.Name, err)
		}
		rep.Windows++
	}

	for _, spec := range f.APIKeys {
		plain := spec.Key
		if plain == "" {
			generated, err := api.GenerateKey(spec.ProjectID)
			if err != nil {
				return rep, err
			}
			plain = generated
			rep.Issued = append(rep.Issued, IssuedKey{ProjectID: spec.ProjectID, Name: spec.Name, Key: plain})
		}
		k := &models.APIKey{
			ProjectID:   spec.ProjectID,
			Name:        spec.Name,
			KeyHash:     api.HashKey(plain),
			KeyPrefix:   api.KeyPrefix(spec.ProjectID),
			Permissions: spec.Permissions,
			ExpiresAt:   spec.ExpiresAt,
			IsActive:    true,
		}
		if err := store.CreateAPIKey(ctx, k); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				rep.Skipped++
				continue
			}
			return rep, fmt.Errorf("create api key %s: %w", spec.Name, err)
		}
		rep.Keys++
	}

	log.WithFields(logrus.Fields{
		"monitors": rep.Monitors,
		"windows":  rep.Windows,
		"keys":     rep.Keys,
		"skipped":  rep.Skipped,
	}).Info("import complete")
	return rep, nil
}

func (s MonitorSpec) monitor() (*models.Monitor, error) {
	m := &models.Monitor{
		ID:               s.ID,
		ProjectID:        s.ProjectID,
		Name:             s.Name,
		Type:             s.Type,
		Endpoint:         s.Endpoint,
		Method:           s.Method,
		Frequency:        s.Frequency,
		Status:           s.Status,
		HTTPConfig:       s.HTTPConfig,
		Keyword:          s.Keyword,
		ExpectedInterval: s.ExpectedInterval,
		GracePeriod:      s.GracePeriod,
		ServerConfig:     s.ServerConfig,
		AlertConfig:      s.AlertConfig,
	}
	m.AlertConfig.LastAlertedAt = nil
	m.ApplyDefaults()
	if m.Type == models.TypeHTTP || m.Type == models.TypeKeyword {
		canonical, err := urlutil.Canonicalize(m.Endpoint)
		if err != nil {
			return nil, err
		}
		m.Endpoint = canonical
	}
	for _, ch := range m.AlertConfig.Channels {
		if _, err := urlutil.Canonicalize(ch.URL); err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.URL, err)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s WindowSpec) window() (*models.MaintenanceWindow, error) {
	w := &models.MaintenanceWindow{
		ID:           s.ID,
		ProjectID:    s.ProjectID,
		Name:         s.Name,
		Type:         s.Type,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		CronSchedule: s.CronSchedule,
		Duration:     s.Duration,
		IsActive:     s.Active == nil || *s.Active,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if w.Type == models.WindowRecurring {
		if _, err := maintenance.ParseSchedule(w.CronSchedule); err != nil {
			return nil, err
		}
	}
	return w, nil
}
