package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/alert"
	"pulsewatch/internal/models"
	"pulsewatch/internal/probe"
	"pulsewatch/internal/recorder"
	"pulsewatch/internal/storage"
)

// AgentLocation tags results pushed by server agents.
const AgentLocation = "agent"

// Handlers holds dependencies for the API handlers.
type Handlers struct {
	store     storage.Storer
	recorder  *recorder.Recorder
	evaluator *alert.Evaluator
	notifier  *alert.Notifier
	validate  *validator.Validate
	log       *logrus.Entry
	now       func() time.Time
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(store storage.Storer, rec *recorder.Recorder, eval *alert.Evaluator, notifier *alert.Notifier, logger logrus.FieldLogger) *Handlers {
	return &Handlers{
		store:     store,
		recorder:  rec,
		evaluator: eval,
		notifier:  notifier,
		validate:  validator.New(),
		log:       logger.WithField("component", "api"),
		now:       time.Now,
	}
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Success: false, Message: msg})
}

// projectMonitor loads a monitor that must belong to the key's project.
func (h *Handlers) projectMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	m, err := h.store.GetMonitor(ctx, id)
	if err != nil {
		return nil, err
	}
	if key := APIKeyFromContext(ctx); key == nil || key.ProjectID != m.ProjectID {
		return nil, storage.ErrNotFound
	}
	return m, nil
}

// Heartbeat records a ping from a heartbeat monitor.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "monitorId")
	m, err := h.projectMonitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Monitor not found")
			return
		}
		h.log.WithError(err).WithField("monitor_id", id).Error("get monitor error")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if m.Type != models.TypeHeartbeat {
		writeError(w, http.StatusBadRequest, "Monitor is not a heartbeat monitor")
		return
	}

	now := h.now().UTC()
	if err := h.store.RecordHeartbeat(r.Context(), m.ID, now); err != nil {
		h.log.WithError(err).WithField("monitor_id", m.ID).Error("record heartbeat error")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}{true, "Heartbeat received", now.Format(time.RFC3339Nano)})
}

type serverMetricsRequest struct {
	MonitorID     string     `json:"monitorId" validate:"required"`
	CPUUsage      *float64   `json:"cpuUsage" validate:"required,min=0,max=100"`
	MemoryUsage   *float64   `json:"memoryUsage" validate:"required,min=0,max=100"`
	MemoryUsedMB  *float64   `json:"memoryUsedMB" validate:"required,min=0"`
	MemoryTotalMB *float64   `json:"memoryTotalMB" validate:"required,min=0"`
	DiskUsage     *float64   `json:"diskUsage" validate:"required,min=0,max=100"`
	DiskUsedGB    *float64   `json:"diskUsedGB" validate:"required,min=0"`
	DiskTotalGB   *float64   `json:"diskTotalGB" validate:"required,min=0"`
	NetworkIn     *float64   `json:"networkIn" validate:"omitempty,min=0"`
	NetworkOut    *float64   `json:"networkOut" validate:"omitempty,min=0"`
	LoadAverage   []float64  `json:"loadAverage" validate:"omitempty,len=3"`
	Timestamp     *time.Time `json:"timestamp"`
}

func (req serverMetricsRequest) metrics() models.ServerMetrics {
	sm := models.ServerMetrics{
		CPUUsage:      *req.CPUUsage,
		MemoryUsage:   *req.MemoryUsage,
		MemoryUsedMB:  *req.MemoryUsedMB,
		MemoryTotalMB: *req.MemoryTotalMB,
		DiskUsage:     *req.DiskUsage,
		DiskUsedGB:    *req.DiskUsedGB,
		DiskTotalGB:   *req.DiskTotalGB,
		LoadAverage:   req.LoadAverage,
	}
	if req.NetworkIn != nil {
		sm.NetworkIn = *req.NetworkIn
	}
	if req.NetworkOut != nil {
		sm.NetworkOut = *req.NetworkOut
	}
	if sm.LoadAverage == nil {
		sm.LoadAverage = []float64{}
	}
	return sm
}

// ServerMetrics stores metrics pushed by an agent and alerts when a resource
// threshold is reached.
func (h *Handlers) ServerMetrics(w http.ResponseWriter, r *http.Request) {
	var req serverMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid metrics data")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid metrics data")
		return
	}

	m, err := h.projectMonitor(r.Context(), req.MonitorID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.log.WithError(err).WithField("monitor_id", req.MonitorID).Error("get monitor error")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if m == nil || m.Type != models.TypeServer {
		writeError(w, http.StatusNotFound, "Server monitor not found")
		return
	}

	now := h.now().UTC()
	ts := now
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	sm := req.metrics()
	thresholds := probe.ThresholdsFor(*m)
	outcome := probe.ServerPush{}.Evaluate(*m, sm, thresholds)

	result := recorder.ResultFrom(outcome, ts, AgentLocation)
	result.ServerMetrics = &sm
	if sum := h.recorder.RecordOne(r.Context(), result); sum.Written == 0 {
		writeError(w, http.StatusInternalServerError, "Failed to record server metrics")
		return
	}

	if !outcome.IsUp {
		if events := h.evaluator.EvaluateServer(*m, sm, thresholds, now); len(events) > 0 {
			h.notifier.Notify(context.WithoutCancel(r.Context()), now, events)
		}
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Server metrics recorded successfully",
		Data: struct {
			IsUp       bool             `json:"isUp"`
			Thresholds probe.Thresholds `json:"thresholds"`
		}{outcome.IsUp, thresholds},
	})
}

// ListResults handles listing recent results for a monitor.
func (h *Handlers) ListResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "monitorId")
	if _, err := h.projectMonitor(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Monitor not found")
			return
		}
		h.log.WithError(err).WithField("monitor_id", id).Error("get monitor error")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	q := r.URL.Query()
	limit := 100
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	var sincePtr *time.Time
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			utc := t.UTC()
			sincePtr = &utc
		}
	}

	results, err := h.store.ListResults(r.Context(), storage.ListResultsParams{
		MonitorID: id,
		Since:     sincePtr,
		Limit:     limit,
	})
	if err != nil {
		h.log.WithError(err).WithField("monitor_id", id).Error("list results error")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if results == nil {
		results = []models.Result{}
	}

	writeJSON(w, http.StatusOK, struct {
		Items []models.Result `json:"items"`
	}{Items: results})
}

// Healthz is a simple health check endpoint.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
