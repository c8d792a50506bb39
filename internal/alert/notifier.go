package alert

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"pulsewatch/internal/metrics"
)

// Suppressor reports whether alerts for a project are muted at now.
type Suppressor interface {
	IsSuppressed(ctx context.Context, projectID string, now time.Time) bool
}

// Notifier gates evaluated events through maintenance and cooldown and hands
// the survivors to the dispatcher.
type Notifier struct {
	guard      Suppressor
	cooldown   Cooldown
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	log        *logrus.Entry
}

// NewNotifier creates a Notifier. guard and m may be nil.
func NewNotifier(guard Suppressor, cooldown Cooldown, dispatcher *Dispatcher, m *metrics.Metrics, logger logrus.FieldLogger) *Notifier {
	return &Notifier{
		guard:      guard,
		cooldown:   cooldown,
		dispatcher: dispatcher,
		metrics:    m,
		log:        logger.WithField("component", "notifier"),
	}
}

// Notify delivers events and returns how many were dispatched. At most one
// event per monitor is considered; cooldown slots for all candidates are
// acquired in one call before anything is sent.
func (n *Notifier) Notify(ctx context.Context, now time.Time, events []Event) int {
	candidates := make([]Event, 0, len(events))
	seen := make(map[string]bool, len(events))
	muted := make(map[string]bool)
	for _, ev := range events {
		if seen[ev.Monitor.ID] {
			continue
		}
		seen[ev.Monitor.ID] = true

		pid := ev.Monitor.ProjectID
		mute, checked := muted[pid]
		if !checked && n.guard != nil {
			mute = n.guard.IsSuppressed(ctx, pid, now)
			muted[pid] = mute
		}
		if mute {
			n.suppressed("maintenance")
			n.log.WithFields(logrus.Fields{"monitor_id": ev.Monitor.ID, "alert_type": ev.Type}).
				Info("alert suppressed by maintenance window")
			continue
		}
		candidates = append(candidates, ev)
	}
	if len(candidates) == 0 {
		return 0
	}

	ids := make([]string, len(candidates))
	for i, ev := range candidates {
		ids[i] = ev.Monitor.ID
	}
	granted, err := n.cooldown.Acquire(ctx, ids, now)
	if err != nil {
		n.log.WithError(err).WithField("candidates", len(ids)).Error("cooldown acquisition failed")
		if len(granted) == 0 {
			return 0
		}
	}
	allowed := make(map[string]bool, len(granted))
	for _, id := range granted {
		allowed[id] = true
	}

	sent := 0
	for _, ev := range candidates {
		if !allowed[ev.Monitor.ID] {
			n.suppressed("cooldown")
			continue
		}
		n.dispatcher.Dispatch(ctx, ev)
		sent++
	}
	return sent
}

func (n *Notifier) suppressed(reason string) {
	if n.metrics != nil {
		n.metrics.AlertsSuppressed.WithLabelValues(reason).Inc()
	}
}
