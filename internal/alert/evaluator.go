package alert

import (
	"fmt"
	"math"
	"strings"
	"time"

	"pulsewatch/internal/models"
	"pulsewatch/internal/probe"
	"pulsewatch/internal/storage"
)

// Evaluator decides which alerts a monitor raises. It has no side effects.
type Evaluator struct {
	Cooldown        time.Duration
	ErrorRateWindow time.Duration
	SSLWarningDays  int
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cooldown, errorRateWindow time.Duration, sslWarningDays int) *Evaluator {
	return &Evaluator{Cooldown: cooldown, ErrorRateWindow: errorRateWindow, SSLWarningDays: sslWarningDays}
}

// CanAlert reports whether the cooldown since last has elapsed at now.
func (e *Evaluator) CanAlert(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) > e.Cooldown
}

// Evaluate checks a probe outcome. At most one event is raised, in priority
// order downtime, latency, body content.
func (e *Evaluator) Evaluate(m models.Monitor, o probe.Outcome, now time.Time) []Event {
	if !e.CanAlert(m.AlertConfig.LastAlertedAt, now) {
		return nil
	}
	cfg := m.AlertConfig
	switch {
	case !o.IsUp:
		details := fmt.Sprintf("Status code %d", o.StatusCode)
		if o.ErrorMessage != nil && *o.ErrorMessage != "" {
			details += ": " + *o.ErrorMessage
		}
		return e.one(m, TypeDowntime, details, now)
	case cfg.LatencyThreshold != nil && o.LatencyMS > *cfg.LatencyThreshold:
		return e.one(m, TypeHighLatency, fmt.Sprintf("Latency %dms exceeds threshold %dms", o.LatencyMS, *cfg.LatencyThreshold), now)
	case cfg.ResponseBodyCheck != nil && *cfg.ResponseBodyCheck != "" && strings.Contains(o.Body, *cfg.ResponseBodyCheck):
		return e.one(m, TypeBodyMatch, fmt.Sprintf("Response body contains %q", *cfg.ResponseBodyCheck), now)
	}
	return nil
}

// ErrorRate returns down/total as a percentage rounded to one decimal.
// ok is false when there were no checks.
func ErrorRate(c storage.ResultCounts) (rate float64, ok bool) {
	if c.Total == 0 {
		return 0, false
	}
	raw := float64(c.Down) / float64(c.Total) * 100
	return math.Round(raw*10) / 10, true
}

// EvaluateErrorRate raises when the failure share over the window exceeds the
// monitor's threshold. The comparison uses the unrounded rate.
func (e *Evaluator) EvaluateErrorRate(m models.Monitor, c storage.ResultCounts, now time.Time) []Event {
	threshold := m.AlertConfig.ErrorRateThreshold
	if threshold == nil || !e.CanAlert(m.AlertConfig.LastAlertedAt, now) || c.Total == 0 {
		return nil
	}
	raw := float64(c.Down) / float64(c.Total) * 100
	if raw <= *threshold {
		return nil
	}
	rate, _ := ErrorRate(c)
	details := fmt.Sprintf("Error rate %.1f%% exceeds threshold %g%% over the last %s (%d/%d checks failed)",
		rate, *threshold, formatWindow(e.ErrorRateWindow), c.Down, c.Total)
	return e.one(m, TypeHighErrorRate, details, now)
}

// EvaluateHeartbeat raises when a heartbeat monitor is overdue.
func (e *Evaluator) EvaluateHeartbeat(m models.Monitor, now time.Time) []Event {
	overdue, late := probe.HeartbeatWatch{}.Overdue(m, now)
	if !late || !e.CanAlert(m.AlertConfig.LastAlertedAt, now) {
		return nil
	}
	details := fmt.Sprintf("No heartbeat from %q for %d minutes. Last seen: %s",
		m.Name, int(overdue.Minutes()), m.LastHeartbeat.UTC().Format(time.RFC3339))
	return e.one(m, TypeHeartbeatMiss, details, now)
}

// EvaluateSSL raises when the certificate is invalid or expires within the
// warning period.
func (e *Evaluator) EvaluateSSL(m models.Monitor, s models.SSLState, now time.Time) []Event {
	if !e.CanAlert(m.AlertConfig.LastAlertedAt, now) {
		return nil
	}
	if s.IsValid == nil || !*s.IsValid {
		reason := "certificate is not valid"
		if s.ErrorMessage != nil {
			reason = *s.ErrorMessage
		}
		return e.one(m, TypeSSLExpiry, "SSL check failed: "+reason, now)
	}
	if s.DaysRemaining != nil && *s.DaysRemaining <= e.SSLWarningDays {
		details := fmt.Sprintf("SSL certificate expires in %d days", *s.DaysRemaining)
		if s.ExpiresAt != nil {
			details += " on " + s.ExpiresAt.UTC().Format("2006-01-02")
		}
		return e.one(m, TypeSSLExpiry, details, now)
	}
	return nil
}

// EvaluateServer raises for pushed metrics at or above any threshold.
func (e *Evaluator) EvaluateServer(m models.Monitor, sm models.ServerMetrics, t probe.Thresholds, now time.Time) []Event {
	if !e.CanAlert(m.AlertConfig.LastAlertedAt, now) {
		return nil
	}
	var breaches []string
	if sm.CPUUsage >= t.CPU {
		breaches = append(breaches, fmt.Sprintf("CPU: %g%% (threshold: %g%%)", sm.CPUUsage, t.CPU))
	}
	if sm.MemoryUsage >= t.Memory {
		breaches = append(breaches, fmt.Sprintf("RAM: %g%% (threshold: %g%%)", sm.MemoryUsage, t.Memory))
	}
	if sm.DiskUsage >= t.Disk {
		breaches = append(breaches, fmt.Sprintf("Disk: %g%% (threshold: %g%%)", sm.DiskUsage, t.Disk))
	}
	if len(breaches) == 0 {
		return nil
	}
	return e.one(m, TypeServerResource, strings.Join(breaches, ", "), now)
}

func (e *Evaluator) one(m models.Monitor, t Type, details string, now time.Time) []Event {
	return []Event{{Monitor: m, Type: t, Details: details, FiredAt: now}}
}

func formatWindow(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	return d.String()
}
