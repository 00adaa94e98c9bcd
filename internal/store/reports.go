package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/models"
)

const reportDateFormat = "2006-01-02"

// GenerateDailyReport aggregates a location's observations for one local
// calendar day and upserts the result, replacing any earlier report for the
// same day. It returns nil when there are no observations for that day.
func (s *Store) GenerateDailyReport(ctx context.Context, locationID int64, date time.Time) (*models.DailyReport, error) {
	local := date.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	observations, err := s.GetObservations(ctx, locationID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	if len(observations) == 0 {
		s.logger.Info("no observations for daily report",
			zap.Int64("location_id", locationID),
			zap.String("date", dayStart.Format(reportDateFormat)))
		return nil, nil
	}

	report := AggregateDailyReport(observations)
	report.LocationID = locationID
	report.ReportDate = dayStart
	report.GeneratedAt = time.Now().UTC()
	report.Summary = summarizeDay(dayStart, report, observations)

	err = s.withRetry(ctx, "upsert_daily_report", func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO daily_reports (location_id, report_date, avg_temperature_c, min_temperature_c, max_temperature_c,
				avg_humidity_pct, total_precipitation_mm, dominant_condition, observation_count, summary, generated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(location_id, report_date) DO UPDATE SET
				avg_temperature_c = excluded.avg_temperature_c,
				min_temperature_c = excluded.min_temperature_c,
				max_temperature_c = excluded.max_temperature_c,
				avg_humidity_pct = excluded.avg_humidity_pct,
				total_precipitation_mm = excluded.total_precipitation_mm,
				dominant_condition = excluded.dominant_condition,
				observation_count = excluded.observation_count,
				summary = excluded.summary,
				generated_at = excluded.generated_at
			RETURNING id
		`, locationID, dayStart.Format(reportDateFormat), report.AvgTemperatureC, report.MinTemperatureC, report.MaxTemperatureC,
			report.AvgHumidityPct, report.TotalPrecipitation, report.DominantCondition, report.ObservationCount,
			report.Summary, report.GeneratedAt).Scan(&report.ID)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// AggregateDailyReport computes the numeric fields of a report. Nulls are
// ignored; a field with no values stays null.
func AggregateDailyReport(observations []models.CurrentObservation) models.DailyReport {
	var r models.DailyReport
	r.ObservationCount = len(observations)

	var tempSum, humSum, precipSum float64
	var tempN, humN, precipN int
	conditions := make(map[string]int)

	for _, o := range observations {
		if o.TemperatureC.Valid {
			t := o.TemperatureC.Float64
			tempSum += t
			tempN++
			if !r.MinTemperatureC.Valid || t < r.MinTemperatureC.Float64 {
				r.MinTemperatureC = sql.NullFloat64{Float64: t, Valid: true}
			}
			if !r.MaxTemperatureC.Valid || t > r.MaxTemperatureC.Float64 {
				r.MaxTemperatureC = sql.NullFloat64{Float64: t, Valid: true}
			}
		}
		if o.HumidityPct.Valid {
			humSum += float64(o.HumidityPct.Int64)
			humN++
		}
		if o.PrecipitationMM.Valid {
			precipSum += o.PrecipitationMM.Float64
			precipN++
		}
		if o.ConditionCode.Valid && o.ConditionCode.String != "" {
			conditions[o.ConditionCode.String]++
		}
	}

	if tempN > 0 {
		r.AvgTemperatureC = sql.NullFloat64{Float64: tempSum / float64(tempN), Valid: true}
	}
	if humN > 0 {
		r.AvgHumidityPct = sql.NullFloat64{Float64: humSum / float64(humN), Valid: true}
	}
	if precipN > 0 {
		r.TotalPrecipitation = sql.NullFloat64{Float64: precipSum, Valid: true}
	}

	// Most frequent condition; ties go to the alphabetically first.
	best, bestN := "", 0
	for cond, n := range conditions {
		if n > bestN || (n == bestN && cond < best) {
			best, bestN = cond, n
		}
	}
	if bestN > 0 {
		r.DominantCondition = sql.NullString{String: best, Valid: true}
	}
	return r
}

func summarizeDay(day time.Time, r models.DailyReport, observations []models.CurrentObservation) string {
	seen := make(map[string]bool)
	var conditions []string
	for _, o := range observations {
		if o.ConditionText.Valid && o.ConditionText.String != "" && !seen[o.ConditionText.String] {
			seen[o.ConditionText.String] = true
			conditions = append(conditions, o.ConditionText.String)
		}
	}
	sort.Strings(conditions)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Weather summary for %s", day.Format("January 02, 2006"))
	if len(conditions) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(conditions, ", "))
	}
	if r.AvgTemperatureC.Valid {
		fmt.Fprintf(&sb, ". Avg %.1f°C (min %.1f°C, max %.1f°C)",
			r.AvgTemperatureC.Float64, r.MinTemperatureC.Float64, r.MaxTemperatureC.Float64)
	}
	if r.TotalPrecipitation.Valid && r.TotalPrecipitation.Float64 > 0 {
		fmt.Fprintf(&sb, ", %.1f mm precipitation", r.TotalPrecipitation.Float64)
	}
	sb.WriteString(".")
	return sb.String()
}

func (s *Store) GetDailyReport(ctx context.Context, locationID int64, date time.Time) (*models.DailyReport, error) {
	var r models.DailyReport
	var reportDate string
	err := s.withRetry(ctx, "get_daily_report", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, location_id, report_date, avg_temperature_c, min_temperature_c, max_temperature_c,
				avg_humidity_pct, total_precipitation_mm, dominant_condition, observation_count,
				COALESCE(summary, ''), generated_at
			FROM daily_reports
			WHERE location_id = ? AND report_date = ?
		`, locationID, date.In(s.loc).Format(reportDateFormat)).Scan(&r.ID, &r.LocationID, &reportDate, &r.AvgTemperatureC,
			&r.MinTemperatureC, &r.MaxTemperatureC, &r.AvgHumidityPct, &r.TotalPrecipitation, &r.DominantCondition,
			&r.ObservationCount, &r.Summary, &r.GeneratedAt)
	})
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ReportDate, err = time.ParseInLocation(reportDateFormat, reportDate, s.loc)
	if err != nil {
		return nil, fmt.Errorf("parse report date %q: %w", reportDate, err)
	}
	return &r, nil
}
