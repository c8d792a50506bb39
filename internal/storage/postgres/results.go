package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
)

// InsertResults sends the whole batch as column arrays in one statement. Rows
// whose monitor no longer exists are filtered out by the EXISTS clause and
// counted as failed.
func (s *PostgresStore) InsertResults(ctx context.Context, results []models.Result) (storage.BulkResult, error) {
	var out storage.BulkResult
	if len(results) == 0 {
		return out, nil
	}
	n := len(results)
	var (
		ids        = make([]string, 0, n)
		monitorIDs = make([]string, 0, n)
		projectIDs = make([]string, 0, n)
		locations  = make([]string, 0, n)
		stamps     = make([]time.Time, 0, n)
		latencies  = make([]int64, 0, n)
		codes      = make([]int32, 0, n)
		ups        = make([]bool, 0, n)
		errMsgs    = make([]*string, 0, n)
		metrics    = make([]*string, 0, n)
	)
	for i := range results {
		r := &results[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		var encoded *string
		if r.ServerMetrics != nil {
			b, err := json.Marshal(r.ServerMetrics)
			if err != nil {
				out.Failed++
				logrus.WithError(err).WithField("monitor_id", r.Meta.MonitorID).Warn("skipping result with unencodable metrics")
				continue
			}
			str := string(b)
			encoded = &str
		}
		ids = append(ids, r.ID)
		monitorIDs = append(monitorIDs, r.Meta.MonitorID)
		projectIDs = append(projectIDs, r.Meta.ProjectID)
		locations = append(locations, r.Meta.Location)
		stamps = append(stamps, r.Timestamp)
		latencies = append(latencies, r.LatencyMS)
		codes = append(codes, int32(r.StatusCode))
		ups = append(ups, r.IsUp)
		errMsgs = append(errMsgs, r.ErrorMessage)
		metrics = append(metrics, encoded)
	}

	query := `
	INSERT INTO results (id, monitor_id, project_id, location, ts, latency_ms, status_code, is_up, error_message, server_metrics)
	SELECT u.id, u.monitor_id, u.project_id, u.location, u.ts, u.latency_ms, u.status_code, u.is_up, u.error_message, u.server_metrics::jsonb
	FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::timestamptz[], $6::bigint[], $7::int[], $8::bool[], $9::text[], $10::text[])
		AS u(id, monitor_id, project_id, location, ts, latency_ms, status_code, is_up, error_message, server_metrics)
	WHERE EXISTS (SELECT 1 FROM monitors m WHERE m.id = u.monitor_id)
	ON CONFLICT (id) DO NOTHING`
	tag, err := s.db.Exec(ctx, query, ids, monitorIDs, projectIDs, locations, stamps, latencies, codes, ups, errMsgs, metrics)
	if err != nil {
		return storage.BulkResult{Failed: n}, fmt.Errorf("failed to bulk insert results: %w", err)
	}
	out.Inserted = int(tag.RowsAffected())
	out.Failed = n - out.Inserted
	if skipped := len(ids) - out.Inserted; skipped > 0 {
		logrus.WithFields(logrus.Fields{"skipped": skipped, "reason": storage.ErrInvalidReference}).Warn("skipped result rows")
	}
	return out, nil
}

// ListResults implements the Storer interface.
func (s *PostgresStore) ListResults(ctx context.Context, params storage.ListResultsParams) ([]models.Result, error) {
	args := []any{params.MonitorID}
	qb := strings.Builder{}
	qb.WriteString(`SELECT id, monitor_id, project_id, location, ts, latency_ms, status_code, is_up, error_message, server_metrics
	FROM results WHERE monitor_id = $1`)
	if params.Since != nil {
		args = append(args, *params.Since)
		qb.WriteString(" AND ts > $2")
	}
	args = append(args, params.Limit)
	qb.WriteString(fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d", len(args)))

	rows, err := s.db.Query(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()
	var results []models.Result
	for rows.Next() {
		var r models.Result
		var code int32
		var metrics []byte
		if err := rows.Scan(&r.ID, &r.Meta.MonitorID, &r.Meta.ProjectID, &r.Meta.Location, &r.Timestamp,
			&r.LatencyMS, &code, &r.IsUp, &r.ErrorMessage, &metrics); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.StatusCode = int(code)
		if len(metrics) > 0 {
			var sm models.ServerMetrics
			if err := json.Unmarshal(metrics, &sm); err == nil {
				r.ServerMetrics = &sm
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountResultsSince implements the Storer interface.
func (s *PostgresStore) CountResultsSince(ctx context.Context, since time.Time) (map[string]storage.ResultCounts, error) {
	rows, err := s.db.Query(ctx, `SELECT monitor_id, COUNT(*), COUNT(*) FILTER (WHERE NOT is_up)
	FROM results WHERE ts >= $1 GROUP BY monitor_id`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]storage.ResultCounts)
	for rows.Next() {
		var id string
		var total, down int64
		if err := rows.Scan(&id, &total, &down); err != nil {
			return nil, fmt.Errorf("failed to scan result counts: %w", err)
		}
		counts[id] = storage.ResultCounts{Total: int(total), Down: int(down)}
	}
	return counts, rows.Err()
}

// PurgeResultsBefore implements the Storer interface.
func (s *PostgresStore) PurgeResultsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM results WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge results: %w", err)
	}
	return tag.RowsAffected(), nil
}
