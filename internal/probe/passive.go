package probe

import (
	"time"

	"pulsewatch/internal/models"
)

// HeartbeatWatch detects heartbeat monitors whose pings stopped.
type HeartbeatWatch struct{}

// Overdue reports how far past its deadline m is at now. The deadline is
// lastHeartbeat + expectedInterval + gracePeriod. Monitors that never sent a
// heartbeat or lack an interval are never overdue.
func (HeartbeatWatch) Overdue(m models.Monitor, now time.Time) (time.Duration, bool) {
	if m.LastHeartbeat == nil || m.ExpectedInterval <= 0 {
		return 0, false
	}
	grace := m.GracePeriod
	if grace <= 0 {
		grace = models.DefaultGracePeriod
	}
	deadline := m.LastHeartbeat.Add(time.Duration(m.ExpectedInterval+grace) * time.Second)
	if !now.After(deadline) {
		return 0, false
	}
	return now.Sub(deadline), true
}

// Thresholds are the resource limits of a server monitor, in percent.
type Thresholds struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
}

// ThresholdsFor returns the monitor's thresholds with defaults applied.
func ThresholdsFor(m models.Monitor) Thresholds {
	t := Thresholds{
		CPU:    m.ServerConfig.CPUThreshold,
		Memory: m.ServerConfig.MemoryThreshold,
		Disk:   m.ServerConfig.DiskThreshold,
	}
	if t.CPU <= 0 {
		t.CPU = models.DefaultCPU
	}
	if t.Memory <= 0 {
		t.Memory = models.DefaultMemory
	}
	if t.Disk <= 0 {
		t.Disk = models.DefaultDisk
	}
	return t
}

// ServerPush evaluates metrics pushed by a server agent.
type ServerPush struct{}

// Evaluate is up only when every metric is strictly below its threshold.
func (ServerPush) Evaluate(m models.Monitor, metrics models.ServerMetrics, t Thresholds) Outcome {
	out := newOutcome(m)
	out.IsUp = metrics.CPUUsage < t.CPU && metrics.MemoryUsage < t.Memory && metrics.DiskUsage < t.Disk
	if out.IsUp {
		out.StatusCode = 200
		return out
	}
	out.StatusCode = 500
	out.ErrorMessage = Truncate("Resource usage exceeds threshold")
	return out
}
