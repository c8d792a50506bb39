package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AllowedFrequencies lists the accepted probe frequencies in seconds.
var AllowedFrequencies = []int{60, 300, 600, 1800, 3600}

// AllowedMethods lists the HTTP methods a monitor may use.
var AllowedMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodHead, http.MethodOptions,
}

const (
	DefaultFrequency   = 60
	DefaultGracePeriod = 300
	DefaultCPU         = 80
	DefaultMemory      = 80
	DefaultDisk        = 90
)

// ErrInvalidMonitor wraps every monitor validation failure.
var ErrInvalidMonitor = errors.New("invalid monitor")

// ApplyDefaults fills unset fields with their defaults.
func (m *Monitor) ApplyDefaults() {
	if m.Method == "" {
		m.Method = http.MethodGet
	}
	m.Method = strings.ToUpper(m.Method)
	if m.Frequency == 0 {
		m.Frequency = DefaultFrequency
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.HTTPConfig.BodyType == "" {
		m.HTTPConfig.BodyType = BodyNone
	}
	switch m.Type {
	case TypeHeartbeat:
		if m.GracePeriod == 0 {
			m.GracePeriod = DefaultGracePeriod
		}
	case TypeServer:
		if m.ServerConfig.CPUThreshold == 0 {
			m.ServerConfig.CPUThreshold = DefaultCPU
		}
		if m.ServerConfig.MemoryThreshold == 0 {
			m.ServerConfig.MemoryThreshold = DefaultMemory
		}
		if m.ServerConfig.DiskThreshold == 0 {
			m.ServerConfig.DiskThreshold = DefaultDisk
		}
	}
}

// Validate checks the monitor against the allowed enumerations and the
// fields its type requires.
func (m *Monitor) Validate() error {
	if m.ProjectID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidMonitor)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMonitor)
	}
	switch m.Type {
	case TypeHTTP, TypeKeyword, TypePing, TypeHeartbeat, TypeServer:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMonitor, m.Type)
	}
	if m.Status != StatusActive && m.Status != StatusPaused {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidMonitor, m.Status)
	}
	if !containsString(AllowedMethods, m.Method) {
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidMonitor, m.Method)
	}
	if !containsInt(AllowedFrequencies, m.Frequency) {
		return fmt.Errorf("%w: frequency %d not in %v", ErrInvalidMonitor, m.Frequency, AllowedFrequencies)
	}
	switch m.HTTPConfig.BodyType {
	case BodyNone, BodyJSON, BodyRaw:
	default:
		return fmt.Errorf("%w: unknown body type %q", ErrInvalidMonitor, m.HTTPConfig.BodyType)
	}

	switch m.Type {
	case TypeHTTP, TypeKeyword, TypePing:
		if strings.TrimSpace(m.Endpoint) == "" {
			return fmt.Errorf("%w: endpoint is required for %s monitors", ErrInvalidMonitor, m.Type)
		}
	}
	if m.Type == TypeKeyword && m.Keyword == "" {
		return fmt.Errorf("%w: keyword is required for keyword monitors", ErrInvalidMonitor)
	}
	if m.Type == TypeHeartbeat {
		if m.ExpectedInterval <= 0 {
			return fmt.Errorf("%w: expected interval is required for heartbeat monitors", ErrInvalidMonitor)
		}
		if m.GracePeriod < 0 {
			return fmt.Errorf("%w: grace period must not be negative", ErrInvalidMonitor)
		}
	}
	if m.Type == TypeServer {
		for name, v := range map[string]float64{
			"cpu":    m.ServerConfig.CPUThreshold,
			"memory": m.ServerConfig.MemoryThreshold,
			"disk":   m.ServerConfig.DiskThreshold,
		} {
			if v <= 0 || v > 100 {
				return fmt.Errorf("%w: %s threshold must be in (0, 100]", ErrInvalidMonitor, name)
			}
		}
	}
	if t := m.AlertConfig.ErrorRateThreshold; t != nil && (*t < 0 || *t > 100) {
		return fmt.Errorf("%w: error rate threshold must be in [0, 100]", ErrInvalidMonitor)
	}
	return nil
}

// Validate checks the window shape for its type.
func (w *MaintenanceWindow) Validate() error {
	if w.ProjectID == "" {
		return errors.New("maintenance window: project id is required")
	}
	switch w.Type {
	case WindowOneTime:
		if w.StartTime == nil || w.EndTime == nil {
			return errors.New("maintenance window: one-time windows need start and end")
		}
		if w.EndTime.Before(*w.StartTime) {
			return errors.New("maintenance window: end before start")
		}
	case WindowRecurring:
		if strings.TrimSpace(w.CronSchedule) == "" {
			return errors.New("maintenance window: recurring windows need a cron schedule")
		}
		if w.Duration <= 0 {
			return errors.New("maintenance window: recurring windows need a positive duration")
		}
	default:
		return fmt.Errorf("maintenance window: unknown type %q", w.Type)
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}
