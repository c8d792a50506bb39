package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsewatch/internal/metrics"
	"pulsewatch/internal/models"
	"pulsewatch/internal/probe"
	"pulsewatch/internal/storage"
	"pulsewatch/internal/storage/sqlite"
)

func ptr[T any](v T) *T { return &v }

func monitor() models.Monitor {
	m := models.Monitor{ID: "m1", ProjectID: "p1", Name: "api", Type: models.TypeHTTP, Endpoint: "https://api.example.com/health"}
	m.ApplyDefaults()
	return m
}

func TestCanAlert(t *testing.T) {
	e := NewEvaluator(5*time.Minute, 10*time.Minute, 14)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, e.CanAlert(nil, now))
	assert.False(t, e.CanAlert(ptr(now.Add(-4*time.Minute)), now))
	assert.False(t, e.CanAlert(ptr(now.Add(-5*time.Minute)), now))
	assert.True(t, e.CanAlert(ptr(now.Add(-5*time.Minute-time.Second)), now))
}

func TestEvaluatePriority(t *testing.T) {
	e := NewEvaluator(5*time.Minute, 10*time.Minute, 14)
	now := time.Now()

	m := monitor()
	m.AlertConfig.LatencyThreshold = ptr(int64(100))
	m.AlertConfig.ResponseBodyCheck = ptr("maintenance")

	t.Run("down wins over latency and body", func(t *testing.T) {
		out := probe.Outcome{StatusCode: 500, LatencyMS: 900, Body: "maintenance", ErrorMessage: ptr("Internal Server Error")}
		evs := e.Evaluate(m, out, now)
		require.Len(t, evs, 1)
		assert.Equal(t, TypeDowntime, evs[0].Type)
		assert.Contains(t, evs[0].Details, "500")
	})

	t.Run("latency over body", func(t *testing.T) {
		out := probe.Outcome{StatusCode: 200, IsUp: true, LatencyMS: 101, Body: "maintenance"}
		evs := e.Evaluate(m, out, now)
		require.Len(t, evs, 1)
		assert.Equal(t, TypeHighLatency, evs[0].Type)
	})

	t.Run("latency at threshold does not fire", func(t *testing.T) {
		out := probe.Outcome{StatusCode: 200, IsUp: true, LatencyMS: 100}
		assert.Empty(t, e.Evaluate(m, out, now))
	})

	t.Run("body match", func(t *testing.T) {
		out := probe.Outcome{StatusCode: 200, IsUp: true, LatencyMS: 10, Body: "down for maintenance"}
		evs := e.Evaluate(m, out, now)
		require.Len(t, evs, 1)
		assert.Equal(t, TypeBodyMatch, evs[0].Type)
	})

	t.Run("cooldown silences everything", func(t *testing.T) {
		cooling := m
		cooling.AlertConfig.LastAlertedAt = ptr(now.Add(-time.Minute))
		assert.Empty(t, e.Evaluate(cooling, probe.Outcome{StatusCode: 500}, now))
	})
}

func TestErrorRate(t *testing.T) {
	rate, ok := ErrorRate(storage.ResultCounts{Total: 3, Down: 1})
	assert.True(t, ok)
	assert.Equal(t, 33.3, rate)

	_, ok = ErrorRate(storage.ResultCounts{})
	assert.False(t, ok)

	e := NewEvaluator(5*time.Minute, 10*time.Minute, 14)
	m := monitor()
	m.AlertConfig.ErrorRateThreshold = ptr(20.0)
	now := time.Now()

	evs := e.EvaluateErrorRate(m, storage.ResultCounts{Total: 10, Down: 3}, now)
	require.Len(t, evs, 1)
	assert.Equal(t, TypeHighErrorRate, evs[0].Type)
	assert.Contains(t, evs[0].Details, "30.0%")
	assert.Contains(t, evs[0].Details, "(3/10 checks failed)")
	assert.Contains(t, evs[0].Details, "10 minutes")

	assert.Empty(t, e.EvaluateErrorRate(m, storage.ResultCounts{Total: 10, Down: 2}, now), "equal to threshold")
	assert.Empty(t, e.EvaluateErrorRate(m, storage.ResultCounts{}, now), "no checks")

	m.AlertConfig.ErrorRateThreshold = nil
	assert.Empty(t, e.EvaluateErrorRate(m, storage.ResultCounts{Total: 10, Down: 10}, now))
}

func TestEvaluateHeartbeat(t *testing.T) {
	e := NewEvaluator(5*time.Minute, 10*time.Minute, 14)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	m := monitor()
	m.Type = models.TypeHeartbeat
	m.ExpectedInterval = 60
	m.GracePeriod = 300

	m.LastHeartbeat = ptr(now.Add(-400 * time.Second))
	evs := e.EvaluateHeartbeat(m, now)
	require.Len(t, evs, 1)
	assert.Equal(t, TypeHeartbeatMiss, evs[0].Type)

	m.LastHeartbeat = ptr(now.Add(-960 * time.Second))
	evs = e.EvaluateHeartbeat(m, now)
	require.Len(t, evs, 1)
	assert.Contains(t, evs[0].Details, "for 10 minutes")

	m.LastHeartbeat = ptr(now.Add(-200 * time.Second))
	assert.Empty(t, e.EvaluateHeartbeat(m, now))

	m.LastHeartbeat = nil
	assert.Empty(t, e.EvaluateHeartbeat(m, now))
}

func TestEvaluateSSL(t *testing.T) {
	e := NewEvaluator(5*time.Minute, 10*time.Minute, 14)
	now := time.Now()
	m := monitor()

	evs := e.EvaluateSSL(m, models.SSLState{IsValid: ptr(true), DaysRemaining: ptr(14)}, now)
	require.Len(t, evs, 1)
	assert.Equal(t, TypeSSLExpiry, evs[0].Type)
	assert.Contains(t, evs[0].Details, "14 days")

	assert.Empty(t, e.EvaluateSSL(m, models.SSLState{IsValid: ptr(true), DaysRemaining: ptr(15)}, now))

	evs = e.EvaluateSSL(m, models.SSLState{IsValid: ptr(false), DaysRemaining: ptr(0), ErrorMessage: ptr("x509: certificate has expired")}, now)
	require.Len(t, evs, 1)
	assert.Contains(t, evs[0].Details, "expired")
}

func TestEvaluateServer(t *testing.T) {
	e := NewEvaluator(5*time.Minute, 10*time.Minute, 14)
	now := time.Now()
	m := monitor()
	th := probe.Thresholds{CPU: 80, Memory: 80, Disk: 90}

	evs := e.EvaluateServer(m, models.ServerMetrics{CPUUsage: 95, MemoryUsage: 80, DiskUsage: 50}, th, now)
	require.Len(t, evs, 1)
	assert.Equal(t, TypeServerResource, evs[0].Type)
	assert.Equal(t, "CPU: 95% (threshold: 80%), RAM: 80% (threshold: 80%)", evs[0].Details)

	assert.Empty(t, e.EvaluateServer(m, models.ServerMetrics{CPUUsage: 10, MemoryUsage: 10, DiskUsage: 10}, th, now))
}

func TestEventText(t *testing.T) {
	ev := Event{Monitor: monitor(), Type: TypeDowntime, Details: "Status code 500"}
	assert.Equal(t, "🚨 Pulsewatch alert: [api] Downtime\nDetails: Status code 500\nURL: https://api.example.com/health", ev.Text())
}

type sink struct {
	mu       sync.Mutex
	payloads []Payload
	srv      *httptest.Server
}

func newSink(t *testing.T, status int) *sink {
	s := &sink{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			s.mu.Lock()
			s.payloads = append(s.payloads, p)
			s.mu.Unlock()
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

type recordingPublisher struct {
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(subject string, payload any) error {
	p.subjects = append(p.subjects, subject)
	return p.err
}

func TestDispatchChannelsIndependently(t *testing.T) {
	ok := newSink(t, http.StatusOK)
	failing := newSink(t, http.StatusInternalServerError)

	m := monitor()
	m.AlertConfig.Channels = []models.Channel{
		{URL: failing.srv.URL},
		{URL: "http://127.0.0.1:1/unreachable"},
		{URL: ok.srv.URL},
	}
	mx := metrics.New("test")
	pub := &recordingPublisher{err: errors.New("nats down")}
	d := NewDispatcher(2*time.Second, mx, logrus.New()).WithPublisher(pub, "pulsewatch.alerts")

	delivered := d.Dispatch(context.Background(), Event{Monitor: m, Type: TypeDowntime, Details: "Status code 500"})
	assert.Equal(t, 1, delivered)
	require.Equal(t, 1, ok.count())
	assert.Contains(t, ok.payloads[0].Text, "[api] Downtime")
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 2.0, testutil.ToFloat64(mx.WebhookFailures))
	assert.Equal(t, []string{"pulsewatch.alerts"}, pub.subjects)
}

type staticGuard map[string]bool

func (g staticGuard) IsSuppressed(ctx context.Context, projectID string, now time.Time) bool {
	return g[projectID]
}

func newStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "alert.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNotifierDownScenario(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	hook := newSink(t, http.StatusOK)

	m := models.Monitor{ProjectID: "p1", Name: "api", Type: models.TypeHTTP, Endpoint: "https://api.example.com"}
	m.ApplyDefaults()
	m.AlertConfig.Channels = []models.Channel{{URL: hook.srv.URL}}
	require.NoError(t, store.CreateMonitor(ctx, &m))

	mx := metrics.New("test")
	eval := NewEvaluator(5*time.Minute, 10*time.Minute, 14)
	n := NewNotifier(staticGuard{}, NewStoreCooldown(store, 5*time.Minute), NewDispatcher(time.Second, mx, logrus.New()), mx, logrus.New())

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	out := probe.Outcome{MonitorID: m.ID, ProjectID: m.ProjectID, StatusCode: 500, ErrorMessage: ptr("Internal Server Error")}

	evs := eval.Evaluate(m, out, now)
	require.Len(t, evs, 1)
	assert.Equal(t, 1, n.Notify(ctx, now, evs))
	require.Equal(t, 1, hook.count())
	assert.Contains(t, hook.payloads[0].Text, "Downtime")

	// A second tick with the same stale monitor snapshot loses the slot.
	assert.Equal(t, 0, n.Notify(ctx, now.Add(time.Minute), eval.Evaluate(m, out, now.Add(time.Minute))))
	assert.Equal(t, 1, hook.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(mx.AlertsSuppressed.WithLabelValues("cooldown")))

	got, err := store.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AlertConfig.LastAlertedAt)
	assert.True(t, got.AlertConfig.LastAlertedAt.Equal(now))

	assert.Empty(t, eval.Evaluate(*got, out, now.Add(5*time.Minute)))
	later := now.Add(5*time.Minute + time.Second)
	assert.Equal(t, 1, n.Notify(ctx, later, eval.Evaluate(*got, out, later)))
	assert.Equal(t, 2, hook.count())
}

func TestNotifierMaintenance(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	hook := newSink(t, http.StatusOK)

	m := models.Monitor{ProjectID: "quiet", Name: "api", Type: models.TypeHTTP, Endpoint: "https://api.example.com"}
	m.ApplyDefaults()
	m.AlertConfig.Channels = []models.Channel{{URL: hook.srv.URL}}
	require.NoError(t, store.CreateMonitor(ctx, &m))

	mx := metrics.New("test")
	n := NewNotifier(staticGuard{"quiet": true}, NewStoreCooldown(store, 5*time.Minute), NewDispatcher(time.Second, mx, logrus.New()), mx, logrus.New())

	now := time.Now()
	sent := n.Notify(ctx, now, []Event{{Monitor: m, Type: TypeDowntime, Details: "Status code 500"}})
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, hook.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(mx.AlertsSuppressed.WithLabelValues("maintenance")))

	got, err := store.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AlertConfig.LastAlertedAt, "suppressed alerts do not consume the cooldown")
}
