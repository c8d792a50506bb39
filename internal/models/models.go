package models

import "time"

// MonitorType selects the probe strategy for a Monitor.
type MonitorType string

const (
	TypeHTTP      MonitorType = "http"
	TypeKeyword   MonitorType = "keyword"
	TypePing      MonitorType = "ping"
	TypeHeartbeat MonitorType = "heartbeat"
	TypeServer    MonitorType = "server"
)

// MonitorStatus controls whether the probe scheduler picks up a Monitor.
type MonitorStatus string

const (
	StatusActive MonitorStatus = "ACTIVE"
	StatusPaused MonitorStatus = "PAUSED"
)

// BodyType describes how HTTPConfig.Body is sent.
type BodyType string

const (
	BodyNone BodyType = "none"
	BodyJSON BodyType = "json"
	BodyRaw  BodyType = "raw"
)

// Header is a single request header sent by HTTP and keyword probes.
type Header struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// HTTPConfig holds the request shape for http and keyword monitors.
type HTTPConfig struct {
	Headers  []Header `json:"headers" yaml:"headers"`
	Body     string   `json:"body,omitempty" yaml:"body"`
	BodyType BodyType `json:"bodyType" yaml:"body_type"`
}

// Channel is an outbound webhook destination.
type Channel struct {
	URL string `json:"url" yaml:"url"`
}

// AlertConfig holds alert thresholds and the cooldown state of a Monitor.
type AlertConfig struct {
	LatencyThreshold   *int64     `json:"latencyThreshold" yaml:"latency_threshold"`
	ResponseBodyCheck  *string    `json:"responseBodyCheck" yaml:"response_body_check"`
	ErrorRateThreshold *float64   `json:"errorRateThreshold" yaml:"error_rate_threshold"`
	Channels           []Channel  `json:"channels" yaml:"channels"`
	LastAlertedAt      *time.Time `json:"lastAlertedAt" yaml:"-"`
}

// ServerConfig holds the resource thresholds of a server monitor, in percent.
type ServerConfig struct {
	CPUThreshold    float64 `json:"cpuThreshold" yaml:"cpu_threshold"`
	MemoryThreshold float64 `json:"memoryThreshold" yaml:"memory_threshold"`
	DiskThreshold   float64 `json:"diskThreshold" yaml:"disk_threshold"`
}

// SSLState is the certificate sub-state written by the daily SSL job.
type SSLState struct {
	IsValid       *bool      `json:"isValid"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	DaysRemaining *int       `json:"daysRemaining"`
	ErrorMessage  *string    `json:"errorMessage"`
	LastCheckedAt *time.Time `json:"lastCheckedAt"`
}

// Monitor is a named check configuration owned by a project.
type Monitor struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"projectId"`
	Name      string        `json:"name"`
	Type      MonitorType   `json:"type"`
	Endpoint  string        `json:"endpoint"`
	Method    string        `json:"method"`
	Frequency int           `json:"frequency"`
	Status    MonitorStatus `json:"status"`

	HTTPConfig   HTTPConfig   `json:"httpConfig"`
	Keyword      string       `json:"keyword,omitempty"`
	ServerConfig ServerConfig `json:"serverConfig"`

	// Heartbeat monitors only, in seconds.
	ExpectedInterval int        `json:"expectedInterval,omitempty"`
	GracePeriod      int        `json:"gracePeriod,omitempty"`
	LastHeartbeat    *time.Time `json:"lastHeartbeat"`

	AlertConfig AlertConfig `json:"alertConfig"`
	SSL         SSLState    `json:"ssl"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResultMeta is the time-series bucketing key of a Result.
type ResultMeta struct {
	MonitorID string `json:"monitorId"`
	ProjectID string `json:"projectId"`
	Location  string `json:"location"`
}

// ServerMetrics is the resource payload pushed by a server agent.
type ServerMetrics struct {
	CPUUsage      float64   `json:"cpuUsage"`
	MemoryUsage   float64   `json:"memoryUsage"`
	MemoryUsedMB  float64   `json:"memoryUsedMB"`
	MemoryTotalMB float64   `json:"memoryTotalMB"`
	DiskUsage     float64   `json:"diskUsage"`
	DiskUsedGB    float64   `json:"diskUsedGB"`
	DiskTotalGB   float64   `json:"diskTotalGB"`
	NetworkIn     float64   `json:"networkIn"`
	NetworkOut    float64   `json:"networkOut"`
	LoadAverage   []float64 `json:"loadAverage"`
}

// Result is one immutable outcome of one probe execution.
type Result struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Meta          ResultMeta     `json:"meta"`
	LatencyMS     int64          `json:"latency"`
	StatusCode    int            `json:"statusCode"`
	IsUp          bool           `json:"isUp"`
	ErrorMessage  *string        `json:"errorMessage"`
	ServerMetrics *ServerMetrics `json:"serverMetrics,omitempty"`
}

// WindowType distinguishes one-time from cron-recurring maintenance windows.
type WindowType string

const (
	WindowOneTime   WindowType = "one-time"
	WindowRecurring WindowType = "recurring"
)

// MaintenanceWindow is a project-scoped alert suppression interval.
type MaintenanceWindow struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"projectId"`
	Name         string     `json:"name"`
	Type         WindowType `json:"type"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	CronSchedule string     `json:"cronSchedule,omitempty"`
	// Duration is in minutes.
	Duration  int       `json:"duration,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Permission names accepted on API keys.
const (
	PermLogWrite        = "log:write"
	PermHeartbeatWrite  = "heartbeat:write"
	PermDeploymentWrite = "deployment:write"
	PermMonitorRead     = "monitor:read"
	PermMonitorWrite    = "monitor:write"
)

// APIKey authenticates passive ingestion. Only the sha256 hash of the key is stored.
type APIKey struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Name        string     `json:"name"`
	KeyHash     string     `json:"-"`
	KeyPrefix   string     `json:"keyPrefix"`
	Permissions []string   `json:"permissions"`
	LastUsedAt  *time.Time `json:"lastUsedAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// HasAny reports whether the key carries at least one of perms.
func (k *APIKey) HasAny(perms ...string) bool {
	for _, have := range k.Permissions {
		for _, want := range perms {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Usable reports whether the key is active and unexpired at now.
func (k *APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}
