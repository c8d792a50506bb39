package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/metrics"
	"pulsewatch/internal/models"
)

// NewRouter creates the chi router and registers the API handlers.
func NewRouter(h *Handlers, m *metrics.Metrics, logger logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.Healthz)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(h.store, logger, h.now))

		beat := r.With(RequireAny(models.PermHeartbeatWrite))
		beat.Post("/heartbeat/{monitorId}", h.Heartbeat)
		beat.Get("/heartbeat/{monitorId}", h.Heartbeat)
		r.With(RequireAny(models.PermMonitorWrite, models.PermHeartbeatWrite)).
			Post("/monitor/server-metrics", h.ServerMetrics)
		r.With(RequireAny(models.PermMonitorRead)).
			Get("/monitors/{monitorId}/results", h.ListResults)
	})

	return r
}
