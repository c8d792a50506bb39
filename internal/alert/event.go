// Package alert turns monitor state into alert events, gates them by
// cooldown and maintenance, and delivers them to webhook channels.
package alert

import (
	"fmt"
	"time"

	"pulsewatch/internal/models"
)

// Type names an alert condition. The value is shown to humans.
type Type string

const (
	TypeDowntime       Type = "Downtime"
	TypeHighLatency    Type = "High Latency"
	TypeBodyMatch      Type = "Response Body Match"
	TypeHighErrorRate  Type = "High Error Rate"
	TypeHeartbeatMiss  Type = "Heartbeat Missing"
	TypeSSLExpiry      Type = "SSL Expiry"
	TypeServerResource Type = "Server Resource Alert"
)

// Event is one alert to deliver. It is not persisted.
type Event struct {
	Monitor models.Monitor
	Type    Type
	Details string
	FiredAt time.Time
}

// Text renders the webhook message.
func (e Event) Text() string {
	return fmt.Sprintf("🚨 Pulsewatch alert: [%s] %s\nDetails: %s\nURL: %s", e.Monitor.Name, e.Type, e.Details, e.Monitor.Endpoint)
}

// Payload is the webhook request body.
type Payload struct {
	Text string `json:"text"`
}

// Message is the structured form published on the event bus.
type Message struct {
	MonitorID string    `json:"monitorId"`
	ProjectID string    `json:"projectId"`
	Monitor   string    `json:"monitor"`
	Type      Type      `json:"type"`
	Details   string    `json:"details"`
	Endpoint  string    `json:"endpoint"`
	FiredAt   time.Time `json:"firedAt"`
}

// Message returns the bus representation of e.
func (e Event) Message() Message {
	return Message{
		MonitorID: e.Monitor.ID,
		ProjectID: e.Monitor.ProjectID,
		Monitor:   e.Monitor.Name,
		Type:      e.Type,
		Details:   e.Details,
		Endpoint:  e.Monitor.Endpoint,
		FiredAt:   e.FiredAt,
	}
}
