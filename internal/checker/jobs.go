package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pulsewatch/internal/alert"
	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
	"pulsewatch/internal/urlutil"
)

var activeTypes = []models.MonitorType{models.TypeHTTP, models.TypeKeyword, models.TypePing}

// Due reports whether a monitor with the given frequency in seconds is due in
// the minute starting at tick.
func Due(frequency int, tick time.Time) bool {
	if frequency <= 0 {
		frequency = models.DefaultFrequency
	}
	return tick.Truncate(time.Minute).Unix()%int64(frequency) == 0
}

// RunProbeTick probes every due active monitor, records the outcomes with one
// shared minute timestamp and alerts on them at now.
func (c *Checker) RunProbeTick(ctx context.Context, now time.Time) error {
	tick := now.Truncate(time.Minute)
	monitors, err := c.Store.ListMonitors(ctx, storage.MonitorFilter{Status: models.StatusActive, Types: activeTypes})
	if err != nil {
		return fmt.Errorf("load monitors: %w", err)
	}

	tasks := make([]Task, 0, len(monitors))
	for _, m := range monitors {
		if !Due(m.Frequency, tick) {
			continue
		}
		p, err := c.Probes.For(m.Type)
		if err != nil {
			c.log.WithError(err).WithField("monitor_id", m.ID).Warn("no probe strategy for monitor")
			continue
		}
		tasks = append(tasks, Task{Monitor: m, Prober: p})
	}
	if len(tasks) == 0 {
		c.log.WithField("job", JobProbe).Debug("no monitors due")
		return nil
	}

	outcomes := c.pool.Run(ctx, tasks)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sum := c.Recorder.Record(ctx, tick, outcomes)

	var events []alert.Event
	for i, o := range outcomes {
		if c.Metrics != nil {
			c.Metrics.ObserveProbe(string(o.Type), o.IsUp, time.Duration(o.LatencyMS)*time.Millisecond)
		}
		events = append(events, c.Evaluator.Evaluate(tasks[i].Monitor, o, now)...)
	}
	sent := 0
	if len(events) > 0 {
		sent = c.Notifier.Notify(ctx, now, events)
	}

	c.log.WithFields(logrus.Fields{
		"job":      JobProbe,
		"probed":   len(outcomes),
		"written":  sum.Written,
		"dropped":  sum.Rejected + sum.Failed,
		"alerts":   len(events),
		"notified": sent,
	}).Info("probe tick complete")
	return nil
}

// RunHeartbeatTick alerts on active heartbeat monitors that missed their deadline.
func (c *Checker) RunHeartbeatTick(ctx context.Context, now time.Time) error {
	monitors, err := c.Store.ListMonitors(ctx, storage.MonitorFilter{
		Status: models.StatusActive,
		Types:  []models.MonitorType{models.TypeHeartbeat},
	})
	if err != nil {
		return fmt.Errorf("load heartbeat monitors: %w", err)
	}

	var events []alert.Event
	for _, m := range monitors {
		events = append(events, c.Evaluator.EvaluateHeartbeat(m, now)...)
	}
	if len(events) == 0 {
		return nil
	}
	sent := c.Notifier.Notify(ctx, now, events)
	c.log.WithFields(logrus.Fields{"job": JobHeartbeat, "overdue": len(events), "notified": sent}).Info("heartbeat tick complete")
	return nil
}

// RunErrorRateTick compares each monitor's failure share over the window with
// its threshold.
func (c *Checker) RunErrorRateTick(ctx context.Context, now time.Time) error {
	monitors, err := c.Store.ListMonitors(ctx, storage.MonitorFilter{Status: models.StatusActive, WithErrorRate: true})
	if err != nil {
		return fmt.Errorf("load monitors: %w", err)
	}
	if len(monitors) == 0 {
		return nil
	}
	counts, err := c.Store.CountResultsSince(ctx, now.Add(-c.Evaluator.ErrorRateWindow))
	if err != nil {
		return fmt.Errorf("count results: %w", err)
	}

	var events []alert.Event
	for _, m := range monitors {
		events = append(events, c.Evaluator.EvaluateErrorRate(m, counts[m.ID], now)...)
	}
	if len(events) == 0 {
		return nil
	}
	sent := c.Notifier.Notify(ctx, now, events)
	c.log.WithFields(logrus.Fields{"job": JobErrorRate, "breaching": len(events), "notified": sent}).Info("error rate tick complete")
	return nil
}

// RunSSLTick checks the certificate of every URL monitor's host, paused
// monitors included, and stores the result. Each host is contacted once.
// Only active https monitors can raise an SSL alert.
func (c *Checker) RunSSLTick(ctx context.Context, now time.Time) error {
	monitors, err := c.Store.ListMonitors(ctx, storage.MonitorFilter{
		Types: []models.MonitorType{models.TypeHTTP, models.TypeKeyword},
	})
	if err != nil {
		return fmt.Errorf("load monitors: %w", err)
	}

	byHost := make(map[string][]models.Monitor)
	for _, m := range monitors {
		host := urlutil.Hostname(m.Endpoint)
		if host == "" {
			continue
		}
		byHost[host] = append(byHost[host], m)
	}

	var (
		mu     sync.Mutex
		states = make(map[string]models.SSLState, len(byHost))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.sslLimit)
	for host := range byHost {
		host := host
		g.Go(func() error {
			state := c.Certs.Check(gctx, host)
			mu.Lock()
			states[host] = state
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var (
		events  []alert.Event
		updated int
		errs    []error
	)
	for host, ms := range byHost {
		state := states[host]
		if state.ErrorMessage != nil {
			c.log.WithFields(logrus.Fields{"job": JobSSL, "host": host, "error": *state.ErrorMessage}).Warn("certificate check failed")
		}
		for _, m := range ms {
			if err := c.Store.UpdateSSL(ctx, m.ID, state); err != nil {
				errs = append(errs, fmt.Errorf("monitor %s: %w", m.ID, err))
				continue
			}
			updated++
			if m.Status == models.StatusActive && urlutil.IsHTTPS(m.Endpoint) {
				events = append(events, c.Evaluator.EvaluateSSL(m, state, now)...)
			}
		}
	}
	sent := 0
	if len(events) > 0 {
		sent = c.Notifier.Notify(ctx, now, events)
	}
	c.log.WithFields(logrus.Fields{
		"job":      JobSSL,
		"hosts":    len(byHost),
		"updated":  updated,
		"notified": sent,
	}).Info("certificate check complete")
	return errors.Join(errs...)
}

// RunRetention deletes results older than the retention period.
func (c *Checker) RunRetention(ctx context.Context, now time.Time) error {
	if c.retention <= 0 {
		return nil
	}
	n, err := c.Store.PurgeResultsBefore(ctx, now.Add(-c.retention))
	if err != nil {
		return fmt.Errorf("purge results: %w", err)
	}
	c.log.WithFields(logrus.Fields{"job": JobRetention, "deleted": n}).Info("old results purged")
	return nil
}
