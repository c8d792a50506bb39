package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/metrics"
	"pulsewatch/internal/models"
	"pulsewatch/internal/probe"
	"pulsewatch/internal/storage"
)

// DefaultLocation tags results written by the scheduler.
const DefaultLocation = "default"

// Summary reports what happened to one batch.
type Summary struct {
	Written  int
	Rejected int
	Failed   int
}

// Recorder turns probe outcomes into Result rows and writes them in bulk.
type Recorder struct {
	store    storage.Storer
	metrics  *metrics.Metrics
	log      *logrus.Entry
	location string
}

// New creates a Recorder. metrics may be nil.
func New(store storage.Storer, m *metrics.Metrics, logger logrus.FieldLogger) *Recorder {
	return &Recorder{
		store:    store,
		metrics:  m,
		log:      logger.WithField("component", "recorder"),
		location: DefaultLocation,
	}
}

// Record writes every outcome with the shared tick timestamp. Malformed
// outcomes are dropped before the write; a failing batch is logged, not retried.
func (r *Recorder) Record(ctx context.Context, ts time.Time, outcomes []probe.Outcome) Summary {
	results := make([]models.Result, 0, len(outcomes))
	var sum Summary
	for _, o := range outcomes {
		if o.MonitorID == "" || o.ProjectID == "" {
			sum.Rejected++
			r.log.WithFields(logrus.Fields{"monitor_id": o.MonitorID, "project_id": o.ProjectID}).
				Warn("dropping outcome without monitor or project reference")
			continue
		}
		results = append(results, ResultFrom(o, ts, r.location))
	}
	sum.Failed, sum.Written = r.write(ctx, results)
	r.observe(sum)
	return sum
}

// RecordOne writes a single result, as pushed by an agent.
func (r *Recorder) RecordOne(ctx context.Context, result models.Result) Summary {
	var sum Summary
	if result.Meta.MonitorID == "" || result.Meta.ProjectID == "" {
		sum.Rejected = 1
		r.observe(sum)
		return sum
	}
	sum.Failed, sum.Written = r.write(ctx, []models.Result{result})
	r.observe(sum)
	return sum
}

func (r *Recorder) write(ctx context.Context, results []models.Result) (failed, written int) {
	if len(results) == 0 {
		return 0, 0
	}
	res, err := r.store.InsertResults(ctx, results)
	if err != nil {
		r.log.WithError(err).WithField("batch", len(results)).Error("bulk result write failed")
		return len(results), 0
	}
	if res.Failed > 0 {
		r.log.WithFields(logrus.Fields{"inserted": res.Inserted, "failed": res.Failed}).Warn("some results were not stored")
	}
	return res.Failed, res.Inserted
}

func (r *Recorder) observe(sum Summary) {
	if r.metrics == nil {
		return
	}
	r.metrics.ResultsWritten.Add(float64(sum.Written))
	r.metrics.ResultsDropped.Add(float64(sum.Rejected + sum.Failed))
}

// ResultFrom converts an outcome into a Result row.
func ResultFrom(o probe.Outcome, ts time.Time, location string) models.Result {
	return models.Result{
		ID:           uuid.NewString(),
		Timestamp:    ts,
		Meta:         models.ResultMeta{MonitorID: o.MonitorID, ProjectID: o.ProjectID, Location: location},
		LatencyMS:    o.LatencyMS,
		StatusCode:   o.StatusCode,
		IsUp:         o.IsUp,
		ErrorMessage: o.ErrorMessage,
	}
}
