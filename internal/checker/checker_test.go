package checker

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsewatch/internal/alert"
	"pulsewatch/internal/config"
	"pulsewatch/internal/metrics"
	"pulsewatch/internal/models"
	"pulsewatch/internal/probe"
	"pulsewatch/internal/recorder"
	"pulsewatch/internal/storage"
	"pulsewatch/internal/storage/sqlite"
)

// webhookSink collects alert payloads.
type webhookSink struct {
	mu    sync.Mutex
	texts []string
	srv   *httptest.Server
}

func newWebhookSink(t *testing.T) *webhookSink {
	s := &webhookSink{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p alert.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		s.mu.Lock()
		s.texts = append(s.texts, p.Text)
		s.mu.Unlock()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *webhookSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type harness struct {
	store   *sqlite.SQLiteStore
	checker *Checker
}

func newHarness(t *testing.T, certs *probe.CertChecker) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "checker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	mx := metrics.New("test")

	cfg := &config.Config{}
	cfg.Probe.MaxConcurrency = 4
	cfg.Retention.Results = 30 * 24 * time.Hour
	cfg.Schedule = config.ScheduleConfig{
		Probe:     "* * * * *",
		Heartbeat: "* * * * *",
		ErrorRate: "*/5 * * * *",
		SSL:       "5 0 * * *",
		Retention: "30 3 * * *",
	}

	h := probe.NewHTTP(2*time.Second, "pulsewatch-test")
	if certs == nil {
		certs = &probe.CertChecker{Timeout: time.Second}
	}
	c := New(Deps{
		Store:     store,
		Probes:    &probe.Set{HTTP: h, Keyword: probe.NewKeyword(h), Ping: probe.NewPing(time.Second, false)},
		Certs:     certs,
		Recorder:  recorder.New(store, mx, logger),
		Evaluator: alert.NewEvaluator(5*time.Minute, 10*time.Minute, 14),
		Notifier: alert.NewNotifier(nil, alert.NewStoreCooldown(store, 5*time.Minute),
			alert.NewDispatcher(time.Second, mx, logger), mx, logger),
		Metrics: mx,
		Logger:  logger,
	}, cfg)
	return &harness{store: store, checker: c}
}

func (h *harness) create(t *testing.T, m models.Monitor) models.Monitor {
	t.Helper()
	m.ApplyDefaults()
	require.NoError(t, m.Validate())
	require.NoError(t, h.store.CreateMonitor(context.Background(), &m))
	return m
}

func (h *harness) results(t *testing.T, id string) []models.Result {
	t.Helper()
	rs, err := h.store.ListResults(context.Background(), storage.ListResultsParams{MonitorID: id, Limit: 100})
	require.NoError(t, err)
	return rs
}

var tick = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDue(t *testing.T) {
	cases := []struct {
		freq int
		at   time.Time
		want bool
	}{
		{60, tick.Add(17 * time.Minute), true},
		{300, tick, true},
		{300, tick.Add(time.Minute), false},
		{300, tick.Add(5*time.Minute + 30*time.Second), true},
		{3600, tick, true},
		{3600, tick.Add(30 * time.Minute), false},
		{0, tick.Add(time.Minute), true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Due(tc.freq, tc.at), "freq=%d at=%s", tc.freq, tc.at)
	}
}

func TestProbeTickSkipsPausedMonitors(t *testing.T) {
	var activeHits, pausedHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/paused" {
			pausedHits.Add(1)
		} else {
			activeHits.Add(1)
		}
	}))
	defer srv.Close()

	h := newHarness(t, nil)
	active := h.create(t, models.Monitor{ProjectID: "p1", Name: "active", Type: models.TypeHTTP, Endpoint: srv.URL + "/active"})
	paused := h.create(t, models.Monitor{ProjectID: "p1", Name: "paused", Type: models.TypeHTTP, Endpoint: srv.URL + "/paused", Status: models.StatusPaused})
	hourly := h.create(t, models.Monitor{ProjectID: "p1", Name: "hourly", Type: models.TypeHTTP, Endpoint: srv.URL + "/hourly", Frequency: 3600})

	require.NoError(t, h.checker.RunProbeTick(context.Background(), tick.Add(time.Minute+10*time.Second)))

	assert.Equal(t, int32(1), activeHits.Load())
	assert.Equal(t, int32(0), pausedHits.Load())
	assert.Empty(t, h.results(t, paused.ID))
	assert.Empty(t, h.results(t, hourly.ID), "hourly monitor is not due")

	rs := h.results(t, active.ID)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].IsUp)
	assert.Equal(t, 200, rs[0].StatusCode)
	assert.True(t, rs[0].Timestamp.Equal(tick.Add(time.Minute)), "results carry the tick timestamp")
	assert.Equal(t, recorder.DefaultLocation, rs[0].Meta.Location)
}

func TestProbeTickDowntimeAlertsOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}))
	defer srv.Close()
	hook := newWebhookSink(t)

	h := newHarness(t, nil)
	m := h.create(t, models.Monitor{
		ProjectID:   "p1",
		Name:        "checkout",
		Type:        models.TypeHTTP,
		Endpoint:    srv.URL,
		AlertConfig: models.AlertConfig{Channels: []models.Channel{{URL: hook.srv.URL}}},
	})

	ctx := context.Background()
	require.NoError(t, h.checker.RunProbeTick(ctx, tick))

	rs := h.results(t, m.ID)
	require.Len(t, rs, 1)
	assert.False(t, rs[0].IsUp)
	assert.Equal(t, 500, rs[0].StatusCode)
	require.NotNil(t, rs[0].ErrorMessage)
	assert.Contains(t, *rs[0].ErrorMessage, "Internal Server Error")

	texts := hook.all()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[checkout] Downtime")

	for i := 1; i <= 5; i++ {
		require.NoError(t, h.checker.RunProbeTick(ctx, tick.Add(time.Duration(i)*time.Minute)))
	}
	assert.Len(t, hook.all(), 1, "cooldown holds for five minutes")
	assert.Len(t, h.results(t, m.ID), 6)

	require.NoError(t, h.checker.RunProbeTick(ctx, tick.Add(6*time.Minute)))
	assert.Len(t, hook.all(), 2)
}

func TestProbeTickKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer srv.Close()

	h := newHarness(t, nil)
	found := h.create(t, models.Monitor{ProjectID: "p1", Name: "found", Type: models.TypeKeyword, Endpoint: srv.URL, Keyword: "degraded"})
	missing := h.create(t, models.Monitor{ProjectID: "p1", Name: "missing", Type: models.TypeKeyword, Endpoint: srv.URL, Keyword: "healthy"})

	require.NoError(t, h.checker.RunProbeTick(context.Background(), tick))

	rs := h.results(t, found.ID)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].IsUp)

	rs = h.results(t, missing.ID)
	require.Len(t, rs, 1)
	assert.False(t, rs[0].IsUp)
	assert.Equal(t, 200, rs[0].StatusCode)
	require.NotNil(t, rs[0].ErrorMessage)
	assert.Contains(t, *rs[0].ErrorMessage, `"healthy"`)
}

func TestHeartbeatTick(t *testing.T) {
	hook := newWebhookSink(t)
	h := newHarness(t, nil)
	channels := []models.Channel{{URL: hook.srv.URL}}

	late := tick.Add(-400 * time.Second)
	recent := tick.Add(-200 * time.Second)
	h.create(t, models.Monitor{ProjectID: "p1", Name: "nightly-job", Type: models.TypeHeartbeat, ExpectedInterval: 60,
		LastHeartbeat: &late, AlertConfig: models.AlertConfig{Channels: channels}})
	h.create(t, models.Monitor{ProjectID: "p1", Name: "fresh-job", Type: models.TypeHeartbeat, ExpectedInterval: 60,
		LastHeartbeat: &recent, AlertConfig: models.AlertConfig{Channels: channels}})
	h.create(t, models.Monitor{ProjectID: "p1", Name: "never-seen", Type: models.TypeHeartbeat, ExpectedInterval: 60,
		AlertConfig: models.AlertConfig{Channels: channels}})

	require.NoError(t, h.checker.RunHeartbeatTick(context.Background(), tick))

	texts := hook.all()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[nightly-job] Heartbeat Missing")
}

func TestErrorRateTick(t *testing.T) {
	hook := newWebhookSink(t)
	h := newHarness(t, nil)
	threshold := 20.0
	m := h.create(t, models.Monitor{ProjectID: "p1", Name: "flaky", Type: models.TypeHTTP, Endpoint: "https://flaky.example.com",
		AlertConfig: models.AlertConfig{ErrorRateThreshold: &threshold, Channels: []models.Channel{{URL: hook.srv.URL}}}})

	var rs []models.Result
	for i := 0; i < 10; i++ {
		rs = append(rs, models.Result{
			ID:         uuid.NewString(),
			Timestamp:  tick.Add(-time.Duration(i) * time.Minute),
			Meta:       models.ResultMeta{MonitorID: m.ID, ProjectID: m.ProjectID, Location: recorder.DefaultLocation},
			StatusCode: 200,
			IsUp:       i >= 3,
		})
	}
	// Outside the window.
	rs = append(rs, models.Result{ID: uuid.NewString(), Timestamp: tick.Add(-30 * time.Minute),
		Meta: models.ResultMeta{MonitorID: m.ID, ProjectID: m.ProjectID}, StatusCode: 500})
	_, err := h.store.InsertResults(context.Background(), rs)
	require.NoError(t, err)

	require.NoError(t, h.checker.RunErrorRateTick(context.Background(), tick))
	texts := hook.all()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "High Error Rate")
	assert.Contains(t, texts[0], "30.0%")
	assert.Contains(t, texts[0], "(3/10 checks failed)")
}

func TestSSLTickIncludesPausedMonitors(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	pool := srv.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs

	h := newHarness(t, &probe.CertChecker{Timeout: time.Second, Port: port, RootCAs: pool})
	paused := h.create(t, models.Monitor{ProjectID: "p1", Name: "paused", Type: models.TypeHTTP, Endpoint: srv.URL, Status: models.StatusPaused})
	beat := h.create(t, models.Monitor{ProjectID: "p1", Name: "beat", Type: models.TypeHeartbeat, ExpectedInterval: 60})

	require.NoError(t, h.checker.RunSSLTick(context.Background(), time.Now()))

	got, err := h.store.GetMonitor(context.Background(), paused.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SSL.IsValid)
	assert.True(t, *got.SSL.IsValid)
	assert.NotNil(t, got.SSL.LastCheckedAt)
	assert.Greater(t, *got.SSL.DaysRemaining, 14)

	got, err = h.store.GetMonitor(context.Background(), beat.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SSL.LastCheckedAt)
}

func TestSSLTickDoesNotAlertPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}))
	defer srv.Close()
	hook := newWebhookSink(t)

	// Nothing listens on 127.0.0.1:443, so the handshake fails.
	h := newHarness(t, &probe.CertChecker{Timeout: time.Second})
	m := h.create(t, models.Monitor{
		ProjectID:   "p1",
		Name:        "plain",
		Type:        models.TypeHTTP,
		Endpoint:    srv.URL,
		AlertConfig: models.AlertConfig{Channels: []models.Channel{{URL: hook.srv.URL}}},
	})

	ctx := context.Background()
	require.NoError(t, h.checker.RunSSLTick(ctx, tick))
	assert.Empty(t, hook.all())

	got, err := h.store.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SSL.IsValid)
	assert.False(t, *got.SSL.IsValid, "state is still recorded")
	assert.Nil(t, got.AlertConfig.LastAlertedAt)

	require.NoError(t, h.checker.RunProbeTick(ctx, tick.Add(time.Minute)))
	texts := hook.all()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[plain] Downtime")
}

func TestSSLTickAlertsOnUntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	hook := newWebhookSink(t)

	h := newHarness(t, &probe.CertChecker{Timeout: time.Second, Port: port})
	h.create(t, models.Monitor{
		ProjectID:   "p1",
		Name:        "secure",
		Type:        models.TypeHTTP,
		Endpoint:    srv.URL,
		AlertConfig: models.AlertConfig{Channels: []models.Channel{{URL: hook.srv.URL}}},
	})

	require.NoError(t, h.checker.RunSSLTick(context.Background(), tick))
	texts := hook.all()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[secure] SSL Expiry")
	assert.Contains(t, texts[0], "SSL check failed")
}

func TestProbeTickStampsCooldownAtRunTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	hook := newWebhookSink(t)

	h := newHarness(t, nil)
	m := h.create(t, models.Monitor{
		ProjectID:   "p1",
		Name:        "edge",
		Type:        models.TypeHTTP,
		Endpoint:    srv.URL,
		AlertConfig: models.AlertConfig{Channels: []models.Channel{{URL: hook.srv.URL}}},
	})

	ctx := context.Background()
	runAt := tick.Add(42 * time.Second)
	require.NoError(t, h.checker.RunProbeTick(ctx, runAt))
	require.Len(t, hook.all(), 1)

	rs := h.results(t, m.ID)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].Timestamp.Equal(tick), "results keep the minute timestamp")

	got, err := h.store.GetMonitor(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AlertConfig.LastAlertedAt)
	assert.WithinDuration(t, runAt, *got.AlertConfig.LastAlertedAt, time.Second)

	// 4m48s after the alert: still inside the cooldown.
	require.NoError(t, h.checker.RunProbeTick(ctx, tick.Add(5*time.Minute+30*time.Second)))
	assert.Len(t, hook.all(), 1)
}

func TestRetention(t *testing.T) {
	h := newHarness(t, nil)
	m := h.create(t, models.Monitor{ProjectID: "p1", Name: "api", Type: models.TypeHTTP, Endpoint: "https://api.example.com"})
	meta := models.ResultMeta{MonitorID: m.ID, ProjectID: m.ProjectID}
	_, err := h.store.InsertResults(context.Background(), []models.Result{
		{ID: uuid.NewString(), Timestamp: tick.Add(-31 * 24 * time.Hour), Meta: meta, StatusCode: 200, IsUp: true},
		{ID: uuid.NewString(), Timestamp: tick.Add(-time.Hour), Meta: meta, StatusCode: 200, IsUp: true},
	})
	require.NoError(t, err)

	require.NoError(t, h.checker.RunRetention(context.Background(), tick))
	assert.Len(t, h.results(t, m.ID), 1)
}

type panicky struct{}

func (panicky) Probe(ctx context.Context, m models.Monitor) probe.Outcome { panic("boom") }

type fixed struct{ status int }

func (f fixed) Probe(ctx context.Context, m models.Monitor) probe.Outcome {
	return probe.Outcome{MonitorID: m.ID, ProjectID: m.ProjectID, StatusCode: f.status, IsUp: true}
}

func TestWorkerPoolAllSettled(t *testing.T) {
	pool := NewWorkerPool(2, logrus.New())
	tasks := []Task{
		{Monitor: models.Monitor{ID: "a", ProjectID: "p"}, Prober: fixed{200}},
		{Monitor: models.Monitor{ID: "b", ProjectID: "p"}, Prober: panicky{}},
		{Monitor: models.Monitor{ID: "c", ProjectID: "p"}, Prober: fixed{204}},
	}
	out := pool.Run(context.Background(), tasks)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].MonitorID)
	assert.True(t, out[0].IsUp)

	assert.Equal(t, "b", out[1].MonitorID)
	assert.False(t, out[1].IsUp)
	assert.Equal(t, probe.StatusNetworkError, out[1].StatusCode)
	require.NotNil(t, out[1].ErrorMessage)
	assert.Contains(t, *out[1].ErrorMessage, "boom")

	assert.Equal(t, 204, out[2].StatusCode)
	assert.Empty(t, pool.Run(context.Background(), nil))
}

func TestJobLimiter(t *testing.T) {
	l := NewJobLimiter()
	assert.True(t, l.Acquire(JobProbe))
	assert.False(t, l.Acquire(JobProbe))
	assert.True(t, l.Acquire(JobSSL))
	l.Release(JobProbe)
	assert.True(t, l.Acquire(JobProbe))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, nil)
	h.checker.schedule.SSL = "not a cron"
	assert.Error(t, h.checker.Start(context.Background()))

	ok := newHarness(t, nil)
	require.NoError(t, ok.checker.Start(context.Background()))
	ok.checker.Stop()
}
