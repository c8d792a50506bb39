package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
)

func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Exec(context.Background(), `TRUNCATE results, monitors, maintenance_windows, api_keys`)
		s.Close()
	})
	return s
}

func TestPostgresBulkInsertAndCooldown(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := models.Monitor{ProjectID: "p", Name: "api", Type: models.TypeHTTP, Endpoint: "https://example.com"}
	m.ApplyDefaults()
	require.NoError(t, s.CreateMonitor(ctx, &m))

	ts := time.Now().UTC().Truncate(time.Millisecond)
	batch := make([]models.Result, 100)
	for i := range batch {
		batch[i] = models.Result{
			Timestamp:  ts,
			Meta:       models.ResultMeta{MonitorID: m.ID, ProjectID: "p", Location: "default"},
			StatusCode: 200,
			IsUp:       true,
		}
	}
	batch[36].Meta.MonitorID = "missing"

	res, err := s.InsertResults(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, storage.BulkResult{Inserted: 99, Failed: 1}, res)

	now := time.Now().UTC()
	got, err := s.AcquireAlertSlots(ctx, []string{m.ID}, now, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{m.ID}, got)
	got, err = s.AcquireAlertSlots(ctx, []string{m.ID}, now.Add(time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, got)

	counts, err := s.CountResultsSince(ctx, ts.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, storage.ResultCounts{Total: 99, Down: 0}, counts[m.ID])
}
