package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsewatch/internal/config"
	"pulsewatch/internal/models"
)

type staticSource struct {
	sm  models.ServerMetrics
	err error
}

func (s staticSource) Collect(ctx context.Context) (models.ServerMetrics, error) {
	return s.sm, s.err
}

func agentConfig(url string) config.AgentConfig {
	return config.AgentConfig{ServerURL: url, APIKey: "pw_test_key", MonitorID: "srv-1", Interval: time.Minute}
}

func TestNewValidates(t *testing.T) {
	_, err := New(config.AgentConfig{}, staticSource{}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.api_key is required")
	assert.Contains(t, err.Error(), "agent.monitor_id is required")
}

func TestPush(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, metricsPath, r.URL.Path)
		assert.Equal(t, "pw_test_key", r.Header.Get("X-API-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"Server metrics recorded successfully","data":{"isUp":false,"thresholds":{"cpu":80,"memory":80,"disk":90}}}`))
	}))
	defer srv.Close()

	src := staticSource{sm: models.ServerMetrics{CPUUsage: 91.5, MemoryUsage: 40, MemoryUsedMB: 1024, MemoryTotalMB: 2048,
		DiskUsage: 10, DiskUsedGB: 5, DiskTotalGB: 50, LoadAverage: []float64{1, 2, 3}}}
	a, err := New(agentConfig(srv.URL), src, logrus.New())
	require.NoError(t, err)

	up, err := a.Push(context.Background())
	require.NoError(t, err)
	assert.False(t, up)
	assert.Equal(t, "srv-1", got["monitorId"])
	assert.Equal(t, 91.5, got["cpuUsage"])
	assert.Equal(t, 2048.0, got["memoryTotalMB"])
	assert.Len(t, got["loadAverage"], 3)
	assert.NotEmpty(t, got["timestamp"])
}

func TestPushErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false,"message":"API key does not have required permissions"}`))
	}))
	defer srv.Close()

	a, err := New(agentConfig(srv.URL), staticSource{}, logrus.New())
	require.NoError(t, err)
	_, err = a.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "required permissions")

	broken, err := New(agentConfig(srv.URL), staticSource{err: errors.New("no /proc")}, logrus.New())
	require.NoError(t, err)
	_, err = broken.Push(context.Background())
	assert.ErrorContains(t, err, "collect metrics")
}

func TestRunStopsOnCancel(t *testing.T) {
	pushes := make(chan struct{}, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes <- struct{}{}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	a, err := New(agentConfig(srv.URL), staticSource{}, logrus.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-pushes:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial push")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestHostSource(t *testing.T) {
	sm, err := HostSource{DiskPath: "/"}.Collect(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	assert.GreaterOrEqual(t, sm.CPUUsage, 0.0)
	assert.LessOrEqual(t, sm.CPUUsage, 100.0)
	assert.Greater(t, sm.MemoryTotalMB, 0.0)
	assert.Greater(t, sm.DiskTotalGB, 0.0)
}
