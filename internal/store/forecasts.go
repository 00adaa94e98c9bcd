package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/metrics"
	"github.com/lox/wxetl/internal/models"
)

// MaxForecastChunk bounds the rows written by one INSERT statement.
const MaxForecastChunk = 50

const forecastInsertColumns = 18

// BatchResult reports how a chunked insert went. Rows in failed chunks were
// rolled back; rows in committed chunks stay.
type BatchResult struct {
	Stored       int
	Duplicates   int
	Failed       int
	FailedChunks int
}

// InsertForecastBatch writes entries in chunks of at most MaxForecastChunk
// rows, one transaction per chunk. A chunk that fails with a query error is
// rolled back and counted in the result; the remaining chunks still run.
// A connection error after retries stops the batch and is returned together
// with what was committed so far.
func (s *Store) InsertForecastBatch(ctx context.Context, entries []models.ForecastEntry) (BatchResult, error) {
	var result BatchResult
	for start := 0; start < len(entries); start += MaxForecastChunk {
		end := min(start+MaxForecastChunk, len(entries))
		chunk := entries[start:end]

		var stored int
		err := s.withRetry(ctx, "insert_forecast_chunk", func() error {
			var err error
			stored, err = s.insertForecastChunk(ctx, chunk)
			return err
		})

		var cerr *ConnectionError
		if errors.As(err, &cerr) {
			result.Failed += len(entries) - start
			result.FailedChunks++
			return result, err
		}
		if err != nil {
			s.logger.Warn("forecast chunk rolled back",
				zap.Int("offset", start),
				zap.Int("rows", len(chunk)),
				zap.Error(err))
			metrics.ForecastChunksFailed.Inc()
			result.Failed += len(chunk)
			result.FailedChunks++
			continue
		}
		result.Stored += stored
		result.Duplicates += len(chunk) - stored
	}
	return result, nil
}

func (s *Store) insertForecastChunk(ctx context.Context, chunk []models.ForecastEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var sb strings.Builder
	sb.WriteString(`INSERT INTO forecasts (location_id, source, collected_at, valid_at, temperature_c, temp_min_c, temp_max_c,
		feels_like_c, humidity_pct, pressure_hpa, wind_speed_ms, wind_direction_deg, condition_code, condition_text,
		cloud_pct, precipitation_probability_pct, precipitation_mm, raw_json) VALUES `)

	args := make([]any, 0, len(chunk)*forecastInsertColumns)
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", forecastInsertColumns), ", ") + ")"
	for i, f := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
		args = append(args, f.LocationID, f.Source, f.CollectedAt.UTC(), f.ValidAt.UTC(), f.TemperatureC, f.TempMinC, f.TempMaxC,
			f.FeelsLikeC, f.HumidityPct, f.PressureHPa, f.WindSpeedMS, f.WindDirectionDeg, f.ConditionCode, f.ConditionText,
			f.CloudPct, f.PrecipitationProbabilityPct, f.PrecipitationMM, f.RawJSON)
	}
	sb.WriteString(" ON CONFLICT(location_id, source, collected_at, valid_at) DO NOTHING")

	res, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

const forecastColumns = `id, location_id, source, collected_at, valid_at, temperature_c, temp_min_c, temp_max_c,
	feels_like_c, humidity_pct, pressure_hpa, wind_speed_ms, wind_direction_deg, condition_code, condition_text,
	cloud_pct, precipitation_probability_pct, precipitation_mm, COALESCE(raw_json, '')`

func scanForecast(row interface{ Scan(...any) error }) (models.ForecastEntry, error) {
	var f models.ForecastEntry
	err := row.Scan(&f.ID, &f.LocationID, &f.Source, &f.CollectedAt, &f.ValidAt, &f.TemperatureC, &f.TempMinC, &f.TempMaxC,
		&f.FeelsLikeC, &f.HumidityPct, &f.PressureHPa, &f.WindSpeedMS, &f.WindDirectionDeg, &f.ConditionCode, &f.ConditionText,
		&f.CloudPct, &f.PrecipitationProbabilityPct, &f.PrecipitationMM, &f.RawJSON)
	return f, err
}

// GetForecastsValidBetween returns every stored forecast entry whose valid
// time falls in [start, end), across all collection times.
func (s *Store) GetForecastsValidBetween(ctx context.Context, locationID int64, start, end time.Time) ([]models.ForecastEntry, error) {
	return s.queryForecasts(ctx, "forecasts_valid_between", `
		SELECT `+forecastColumns+`
		FROM forecasts
		WHERE location_id = ? AND valid_at >= ? AND valid_at < ?
		ORDER BY valid_at, collected_at
	`, locationID, start.UTC(), end.UTC())
}

// GetLatestForecasts returns the entries from the most recent collection.
func (s *Store) GetLatestForecasts(ctx context.Context, locationID int64) ([]models.ForecastEntry, error) {
	return s.queryForecasts(ctx, "latest_forecasts", `
		SELECT `+forecastColumns+`
		FROM forecasts
		WHERE location_id = ?
		  AND collected_at = (SELECT MAX(collected_at) FROM forecasts WHERE location_id = ?)
		ORDER BY valid_at
	`, locationID, locationID)
}

func (s *Store) queryForecasts(ctx context.Context, op, query string, args ...any) ([]models.ForecastEntry, error) {
	var forecasts []models.ForecastEntry
	err := s.withRetry(ctx, op, func() error {
		forecasts = nil
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			f, err := scanForecast(rows)
			if err != nil {
				return err
			}
			forecasts = append(forecasts, f)
		}
		return rows.Err()
	})
	return forecasts, err
}
