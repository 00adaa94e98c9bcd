package store

import (
	"context"
	"database/sql"
	"time"
)

// IngestRun records one upstream call for auditing.
type IngestRun struct {
	ID                int64
	RunID             sql.NullString // collection cycle the call belonged to
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "current", "geocoding", "forecast_5day", "onecall_v3", ...
	Endpoint          string // "data/2.5/weather", "data/2.5/forecast", etc.
	Place             sql.NullString
	LocationID        sql.NullInt64
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	RecordsStored     sql.NullInt64
	ParseErrors       sql.NullInt64 // Number of records that were skipped
	Success           bool
	ErrorMessage      sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(ctx context.Context, runID, source, endpoint, place string) (*IngestRun, error) {
	run := &IngestRun{
		RunID:     sql.NullString{String: runID, Valid: runID != ""},
		StartedAt: time.Now().UTC(),
		Source:    source,
		Endpoint:  endpoint,
		Place:     sql.NullString{String: place, Valid: place != ""},
	}

	err := s.withRetry(ctx, "start_ingest_run", func() error {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO ingest_runs (run_id, started_at, source, endpoint, place, success)
			VALUES (?, ?, ?, ?, ?, FALSE)
		`, run.RunID, run.StartedAt, run.Source, run.Endpoint, run.Place)
		if err != nil {
			return err
		}
		run.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	return s.withRetry(ctx, "complete_ingest_run", func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE ingest_runs SET
				finished_at = ?,
				location_id = ?,
				http_status = ?,
				response_size_bytes = ?,
				records_parsed = ?,
				records_stored = ?,
				parse_errors = ?,
				success = ?,
				error_message = ?
			WHERE id = ?
		`, run.FinishedAt, run.LocationID, run.HTTPStatus, run.ResponseSizeBytes, run.RecordsParsed,
			run.RecordsStored, run.ParseErrors, run.Success, run.ErrorMessage, run.ID)
		return err
	})
}

// IngestHealthSummary represents a daily ingest health summary.
type IngestHealthSummary struct {
	Date             string
	Source           string
	Endpoint         string
	TotalRuns        int
	SuccessRuns      int
	FailedRuns       int
	TotalRecords     int64
	TotalParseErrors int64
}

// GetIngestHealth summarizes runs per UTC day, source and endpoint over the
// last days days, newest day first.
func (s *Store) GetIngestHealth(ctx context.Context, days int) ([]IngestHealthSummary, error) {
	if days < 1 {
		days = 1
	}
	var summaries []IngestHealthSummary
	err := s.withRetry(ctx, "ingest_health", func() error {
		summaries = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT
				DATE(SUBSTR(started_at, 1, 19)) AS day,
				source,
				endpoint,
				COUNT(*),
				SUM(CASE WHEN success THEN 1 ELSE 0 END),
				SUM(CASE WHEN success THEN 0 ELSE 1 END),
				COALESCE(SUM(records_stored), 0),
				COALESCE(SUM(parse_errors), 0)
			FROM ingest_runs
			WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
			GROUP BY day, source, endpoint
			ORDER BY day DESC, source, endpoint
		`, days)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var h IngestHealthSummary
			if err := rows.Scan(&h.Date, &h.Source, &h.Endpoint, &h.TotalRuns,
				&h.SuccessRuns, &h.FailedRuns, &h.TotalRecords, &h.TotalParseErrors); err != nil {
				return err
			}
			summaries = append(summaries, h)
		}
		return rows.Err()
	})
	return summaries, err
}

const ingestRunColumns = `id, run_id, started_at, finished_at, source, endpoint, place, location_id,
	http_status, response_size_bytes, records_parsed, records_stored, parse_errors, success, error_message`

func scanIngestRun(row interface{ Scan(...any) error }) (IngestRun, error) {
	var r IngestRun
	err := row.Scan(&r.ID, &r.RunID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Endpoint,
		&r.Place, &r.LocationID, &r.HTTPStatus, &r.ResponseSizeBytes,
		&r.RecordsParsed, &r.RecordsStored, &r.ParseErrors, &r.Success, &r.ErrorMessage)
	return r, err
}

// GetRecentIngestErrors returns up to limit failed runs, newest first.
func (s *Store) GetRecentIngestErrors(ctx context.Context, limit int) ([]IngestRun, error) {
	var runs []IngestRun
	err := s.withRetry(ctx, "recent_ingest_errors", func() error {
		runs = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+ingestRunColumns+`
			FROM ingest_runs
			WHERE success = FALSE
			ORDER BY started_at DESC, id DESC
			LIMIT ?
		`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanIngestRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, r)
		}
		return rows.Err()
	})
	return runs, err
}
