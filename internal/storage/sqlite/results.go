package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
)

// InsertResults writes the batch in one transaction through a prepared
// statement. A row that violates a constraint is skipped; the rest commit.
func (s *SQLiteStore) InsertResults(ctx context.Context, results []models.Result) (storage.BulkResult, error) {
	var out storage.BulkResult
	if len(results) == 0 {
		return out, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
(id, monitor_id, project_id, location, ts, latency_ms, status_code, is_up, error_message, server_metrics)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return out, fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i := range results {
		r := &results[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		metrics, err := encodeMetrics(r.ServerMetrics)
		if err != nil {
			out.Failed++
			logrus.WithError(err).WithField("monitor_id", r.Meta.MonitorID).Warn("skipping result with unencodable metrics")
			continue
		}
		_, err = stmt.ExecContext(ctx, r.ID, r.Meta.MonitorID, r.Meta.ProjectID, r.Meta.Location,
			formatTime(r.Timestamp), r.LatencyMS, r.StatusCode, r.IsUp, r.ErrorMessage, metrics)
		if err != nil {
			if ctx.Err() != nil {
				return out, fmt.Errorf("bulk insert interrupted: %w", ctx.Err())
			}
			out.Failed++
			entry := logrus.WithError(err).WithField("monitor_id", r.Meta.MonitorID)
			if isForeignKeyViolation(err) {
				entry = entry.WithField("reason", storage.ErrInvalidReference)
			}
			entry.Warn("skipping result row")
			continue
		}
		out.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return storage.BulkResult{Failed: len(results)}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return out, nil
}

// ListResults retrieves recent results for a monitor, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, params storage.ListResultsParams) ([]models.Result, error) {
	args := []any{params.MonitorID}
	qb := strings.Builder{}
	qb.WriteString(`SELECT id, monitor_id, project_id, location, ts, latency_ms, status_code, is_up, error_message, server_metrics
FROM results WHERE monitor_id = ?`)
	if params.Since != nil {
		args = append(args, formatTime(*params.Since))
		qb.WriteString(" AND ts > ?")
	}
	qb.WriteString(" ORDER BY ts DESC LIMIT ?")
	args = append(args, params.Limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()
	var results []models.Result
	for rows.Next() {
		var (
			r       models.Result
			ts      string
			errMsg  sql.NullString
			metrics sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Meta.MonitorID, &r.Meta.ProjectID, &r.Meta.Location, &ts,
			&r.LatencyMS, &r.StatusCode, &r.IsUp, &errMsg, &metrics); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.Timestamp = parseTime(ts)
		if errMsg.Valid {
			r.ErrorMessage = &errMsg.String
		}
		if metrics.Valid && metrics.String != "" {
			var sm models.ServerMetrics
			if err := json.Unmarshal([]byte(metrics.String), &sm); err == nil {
				r.ServerMetrics = &sm
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountResultsSince groups results at or after since by monitor.
func (s *SQLiteStore) CountResultsSince(ctx context.Context, since time.Time) (map[string]storage.ResultCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT monitor_id, COUNT(*), SUM(CASE WHEN is_up = 0 THEN 1 ELSE 0 END)
FROM results WHERE ts >= ? GROUP BY monitor_id`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]storage.ResultCounts)
	for rows.Next() {
		var id string
		var c storage.ResultCounts
		if err := rows.Scan(&id, &c.Total, &c.Down); err != nil {
			return nil, fmt.Errorf("failed to scan result counts: %w", err)
		}
		counts[id] = c
	}
	return counts, rows.Err()
}

// PurgeResultsBefore deletes results older than before.
func (s *SQLiteStore) PurgeResultsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE ts < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to purge results: %w", err)
	}
	return res.RowsAffected()
}

func encodeMetrics(m *models.ServerMetrics) (any, error) {
	if m == nil {
		return nil, nil
	}
	return toJSON(m)
}
