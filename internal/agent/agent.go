// Package agent pushes host metrics to a pulsewatch server on an interval.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/config"
	"pulsewatch/internal/models"
)

const metricsPath = "/api/monitor/server-metrics"

type payload struct {
	MonitorID string `json:"monitorId"`
	models.ServerMetrics
	Timestamp time.Time `json:"timestamp"`
}

type pushResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		IsUp bool `json:"isUp"`
	} `json:"data"`
}

// Agent collects metrics from a Source and posts them to the server.
type Agent struct {
	client    *resty.Client
	source    Source
	monitorID string
	interval  time.Duration
	log       *logrus.Entry
}

// New creates an Agent from cfg.
func New(cfg config.AgentConfig, source Source, logger logrus.FieldLogger) (*Agent, error) {
	var errs []error
	if cfg.ServerURL == "" {
		errs = append(errs, errors.New("agent.server_url is required"))
	}
	if cfg.APIKey == "" {
		errs = append(errs, errors.New("agent.api_key is required"))
	}
	if cfg.MonitorID == "" {
		errs = append(errs, errors.New("agent.monitor_id is required"))
	}
	if cfg.Interval <= 0 {
		errs = append(errs, errors.New("agent.interval must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	client := resty.New().
		SetBaseURL(cfg.ServerURL).
		SetHeader("X-API-Key", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &Agent{
		client:    client,
		source:    source,
		monitorID: cfg.MonitorID,
		interval:  cfg.Interval,
		log:       logger.WithField("component", "agent"),
	}, nil
}

// Push collects one sample and sends it. It returns whether the server
// considered the host up.
func (a *Agent) Push(ctx context.Context) (bool, error) {
	sm, err := a.source.Collect(ctx)
	if err != nil {
		return false, fmt.Errorf("collect metrics: %w", err)
	}

	var out pushResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(payload{MonitorID: a.monitorID, ServerMetrics: sm, Timestamp: time.Now().UTC()}).
		SetResult(&out).
		SetError(&out).
		Post(metricsPath)
	if err != nil {
		return false, fmt.Errorf("send metrics: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("server rejected metrics: %d %s", resp.StatusCode(), out.Message)
	}

	a.log.WithFields(logrus.Fields{
		"cpu":     sm.CPUUsage,
		"memory":  sm.MemoryUsage,
		"disk":    sm.DiskUsage,
		"is_up":   out.Data.IsUp,
		"monitor": a.monitorID,
	}).Info("metrics sent")
	return out.Data.IsUp, nil
}

// Run pushes immediately and then every interval until ctx is done. Failed
// pushes are logged and retried on the next interval.
func (a *Agent) Run(ctx context.Context) error {
	a.log.WithFields(logrus.Fields{"monitor": a.monitorID, "interval": a.interval}).Info("starting metrics agent")
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := a.Push(ctx); err != nil && ctx.Err() == nil {
			a.log.WithError(err).Warn("metrics push failed")
		}
		select {
		case <-ctx.Done():
			a.log.Info("metrics agent stopped")
			return nil
		case <-ticker.C:
		}
	}
}
