// Package checker drives the periodic jobs: active probing, heartbeat
// timeouts, error rates, certificate checks and result retention.
package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/alert"
	"pulsewatch/internal/config"
	"pulsewatch/internal/metrics"
	"pulsewatch/internal/probe"
	"pulsewatch/internal/recorder"
	"pulsewatch/internal/storage"
)

const (
	JobProbe     = "probe"
	JobHeartbeat = "heartbeat"
	JobErrorRate = "error_rate"
	JobSSL       = "ssl"
	JobRetention = "retention"
)

// Deps are the collaborators of the Checker.
type Deps struct {
	Store     storage.Storer
	Probes    *probe.Set
	Certs     *probe.CertChecker
	Recorder  *recorder.Recorder
	Evaluator *alert.Evaluator
	Notifier  *alert.Notifier
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
}

// Checker is responsible for scheduling and running the background jobs.
type Checker struct {
	Deps
	pool      *WorkerPool
	limiter   *JobLimiter
	schedule  config.ScheduleConfig
	retention time.Duration
	sslLimit  int
	cron      *cron.Cron
	log       *logrus.Entry
	now       func() time.Time

	cancel context.CancelFunc
}

// New creates a new Checker.
func New(deps Deps, cfg *config.Config) *Checker {
	log := deps.Logger.WithField("component", "checker")
	return &Checker{
		Deps:      deps,
		pool:      NewWorkerPool(cfg.Probe.MaxConcurrency, deps.Logger),
		limiter:   NewJobLimiter(),
		schedule:  cfg.Schedule,
		retention: cfg.Retention.Results,
		sslLimit:  max(cfg.Probe.MaxConcurrency, 1),
		log:       log,
		now:       time.Now,
		cron: cron.New(
			cron.WithLogger(cron.PrintfLogger(log)),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
	}
}

// Start registers every job and begins the schedule. Jobs run with a context
// that is cancelled by Stop.
func (c *Checker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context, time.Time) error
	}{
		{JobProbe, c.schedule.Probe, c.RunProbeTick},
		{JobHeartbeat, c.schedule.Heartbeat, c.RunHeartbeatTick},
		{JobErrorRate, c.schedule.ErrorRate, c.RunErrorRateTick},
		{JobSSL, c.schedule.SSL, c.RunSSLTick},
		{JobRetention, c.schedule.Retention, c.RunRetention},
	}
	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.spec, func() { c.runJob(runCtx, j.name, j.run) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s job %q: %w", j.name, j.spec, err)
		}
		c.log.WithFields(logrus.Fields{"job": j.name, "spec": j.spec}).Info("job scheduled")
	}

	c.cancel = cancel
	c.cron.Start()
	c.log.Info("starting background checker")
	return nil
}

// Stop halts the schedule, cancels in-flight runs and waits for them to return.
func (c *Checker) Stop() {
	stopped := c.cron.Stop()
	if c.cancel != nil {
		c.cancel()
	}
	<-stopped.Done()
	c.log.Info("background checker stopped")
}

// runJob runs one tick of a job unless the previous tick is still running.
func (c *Checker) runJob(ctx context.Context, name string, run func(context.Context, time.Time) error) {
	if !c.limiter.Acquire(name) {
		c.log.WithField("job", name).Warn("previous run still in progress, skipping tick")
		if c.Metrics != nil {
			c.Metrics.JobSkipped.WithLabelValues(name).Inc()
		}
		return
	}
	defer c.limiter.Release(name)

	start := time.Now()
	err := run(ctx, c.now())
	if c.Metrics != nil {
		c.Metrics.ObserveJob(name, time.Since(start))
	}
	if err != nil {
		c.log.WithError(err).WithField("job", name).Error("job failed")
	}
}
