// Package probe holds one strategy per monitor type. Active strategies are
// driven by the scheduler; passive ones are evaluated on demand.
package probe

import (
	"context"
	"errors"
	"fmt"

	"pulsewatch/internal/models"
)

const (
	// StatusNetworkError is recorded when no HTTP response was received.
	StatusNetworkError = 599
	// MaxErrorLen caps stored error messages.
	MaxErrorLen = 500
)

// ErrPassive is returned by Set.For for types that are never probed per tick.
var ErrPassive = errors.New("passive monitor type")

// Outcome is the normalized result of one probe execution.
type Outcome struct {
	MonitorID    string
	ProjectID    string
	Type         models.MonitorType
	LatencyMS    int64
	StatusCode   int
	IsUp         bool
	ErrorMessage *string
	// Body is the response body, used by the body content alert. Never persisted.
	Body string
}

// Prober executes one probe. Failures are reported in the Outcome, never as
// a panic or error.
type Prober interface {
	Probe(ctx context.Context, m models.Monitor) Outcome
}

// Set selects the strategy for a monitor type.
type Set struct {
	HTTP    Prober
	Keyword Prober
	Ping    Prober
}

// For returns the active strategy for t.
func (s *Set) For(t models.MonitorType) (Prober, error) {
	switch t {
	case models.TypeHTTP:
		return s.HTTP, nil
	case models.TypeKeyword:
		return s.Keyword, nil
	case models.TypePing:
		return s.Ping, nil
	case models.TypeHeartbeat, models.TypeServer:
		return nil, fmt.Errorf("%s: %w", t, ErrPassive)
	default:
		return nil, fmt.Errorf("unknown monitor type %q", t)
	}
}

// Down builds a failed outcome for m.
func Down(m models.Monitor, status int, msg string) Outcome {
	out := newOutcome(m)
	out.StatusCode = status
	out.ErrorMessage = Truncate(msg)
	return out
}

// Truncate caps msg at MaxErrorLen runes. An empty msg yields nil.
func Truncate(msg string) *string {
	if msg == "" {
		return nil
	}
	r := []rune(msg)
	if len(r) > MaxErrorLen {
		msg = string(r[:MaxErrorLen])
	}
	return &msg
}

func newOutcome(m models.Monitor) Outcome {
	return Outcome{MonitorID: m.ID, ProjectID: m.ProjectID, Type: m.Type}
}
