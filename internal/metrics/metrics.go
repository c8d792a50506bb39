package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry.
type Metrics struct {
	ProbesTotal      *prometheus.CounterVec
	ProbeLatency     *prometheus.HistogramVec
	ResultsWritten   prometheus.Counter
	ResultsDropped   prometheus.Counter
	AlertsDispatched *prometheus.CounterVec
	AlertsSuppressed *prometheus.CounterVec
	WebhookFailures  prometheus.Counter
	JobDuration      *prometheus.HistogramVec
	JobSkipped       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors under namespace and registers them.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Probes executed, by monitor type and result",
			},
			[]string{"type", "result"},
		),
		ProbeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_latency_seconds",
				Help:      "Measured probe latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		ResultsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_written_total",
			Help:      "Results persisted",
		}),
		ResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_dropped_total",
			Help:      "Results rejected or lost during persistence",
		}),
		AlertsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_dispatched_total",
				Help:      "Alerts handed to the dispatcher, by alert type",
			},
			[]string{"type"},
		),
		AlertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_suppressed_total",
				Help:      "Alerts not sent, by reason",
			},
			[]string{"reason"},
		),
		WebhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_failures_total",
			Help:      "Webhook deliveries that failed",
		}),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Background job run time in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"job"},
		),
		JobSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_skipped_total",
				Help:      "Job ticks skipped because the previous run was still going",
			},
			[]string{"job"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.ProbesTotal,
		m.ProbeLatency,
		m.ResultsWritten,
		m.ResultsDropped,
		m.AlertsDispatched,
		m.AlertsSuppressed,
		m.WebhookFailures,
		m.JobDuration,
		m.JobSkipped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProbe records one probe outcome.
func (m *Metrics) ObserveProbe(monitorType string, up bool, latency time.Duration) {
	result := "up"
	if !up {
		result = "down"
	}
	m.ProbesTotal.WithLabelValues(monitorType, result).Inc()
	m.ProbeLatency.WithLabelValues(monitorType).Observe(latency.Seconds())
}

// ObserveJob records the run time of a job.
func (m *Metrics) ObserveJob(job string, d time.Duration) {
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}
