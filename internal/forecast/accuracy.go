package forecast

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"time"

	"github.com/lox/wxetl/internal/models"
)

// LeadBands are the lead-time buckets accuracy is reported in. Leads outside
// every band are not scored.
var LeadBands = []models.LeadBand{
	{Label: "0-24h", MinHours: 0, MaxHours: 24},
	{Label: "24-48h", MinHours: 24, MaxHours: 48},
	{Label: "48-72h", MinHours: 48, MaxHours: 72},
	{Label: "72-96h", MinHours: 72, MaxHours: 96},
	{Label: "96-120h", MinHours: 96, MaxHours: 120},
}

func bandFor(lead time.Duration) (int, bool) {
	hours := lead.Hours()
	for i, b := range LeadBands {
		if hours >= float64(b.MinHours) && hours < float64(b.MaxHours) {
			return i, true
		}
	}
	return 0, false
}

type bandErrors struct {
	samples  int
	tempAbs  []float64
	tempPct  []float64
	humidAbs []float64
	humidPct []float64
}

func (b *bandErrors) add(forecast, actual float64, abs, pct *[]float64) {
	diff := math.Abs(forecast - actual)
	*abs = append(*abs, diff)
	if actual != 0 {
		*pct = append(*pct, diff/math.Abs(actual)*100)
	}
}

// EvaluateAccuracy pairs observations with forecasts valid in the same hour
// and summarizes their errors by lead time. Every observation in an hour is
// paired with every forecast for that hour. Bands with no pairs are omitted.
func EvaluateAccuracy(observations []models.CurrentObservation, forecasts []models.ForecastEntry) []models.AccuracyRecord {
	byHour := make(map[time.Time][]models.CurrentObservation)
	for _, obs := range observations {
		hour := obs.ObservedAt.UTC().Truncate(time.Hour)
		byHour[hour] = append(byHour[hour], obs)
	}

	bands := make([]bandErrors, len(LeadBands))
	for _, fc := range forecasts {
		matches := byHour[fc.ValidAt.UTC().Truncate(time.Hour)]
		if len(matches) == 0 {
			continue
		}
		idx, ok := bandFor(fc.ValidAt.Sub(fc.CollectedAt))
		if !ok {
			continue
		}
		b := &bands[idx]
		for _, obs := range matches {
			b.samples++
			if fc.TemperatureC.Valid && obs.TemperatureC.Valid {
				b.add(fc.TemperatureC.Float64, obs.TemperatureC.Float64, &b.tempAbs, &b.tempPct)
			}
			if fc.HumidityPct.Valid && obs.HumidityPct.Valid {
				b.add(float64(fc.HumidityPct.Int64), float64(obs.HumidityPct.Int64), &b.humidAbs, &b.humidPct)
			}
		}
	}

	records := make([]models.AccuracyRecord, 0, len(LeadBands))
	for i, b := range bands {
		if b.samples == 0 {
			continue
		}
		records = append(records, models.AccuracyRecord{
			Band:    LeadBands[i],
			Samples: b.samples,
			Temperature: models.MetricAccuracy{
				AbsError: summarize(b.tempAbs),
				PctError: summarize(b.tempPct),
			},
			Humidity: models.MetricAccuracy{
				AbsError: summarize(b.humidAbs),
				PctError: summarize(b.humidPct),
			},
		})
	}
	return records
}

// summarize returns count, mean, median and sample standard deviation.
// The deviation needs at least two values.
func summarize(values []float64) models.ErrorStats {
	stats := models.ErrorStats{Count: len(values)}
	if len(values) == 0 {
		return stats
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	stats.Mean = sql.NullFloat64{Float64: mean, Valid: true}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	stats.Median = sql.NullFloat64{Float64: median, Valid: true}

	if len(values) >= 2 {
		var sq float64
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		stats.StdDev = sql.NullFloat64{Float64: math.Sqrt(sq / float64(len(values)-1)), Valid: true}
	}
	return stats
}

// AccuracyStore is the read side the evaluator needs.
type AccuracyStore interface {
	GetObservations(ctx context.Context, locationID int64, start, end time.Time) ([]models.CurrentObservation, error)
	GetForecastsValidBetween(ctx context.Context, locationID int64, start, end time.Time) ([]models.ForecastEntry, error)
}

type Evaluator struct {
	store AccuracyStore
	now   func() time.Time
}

func NewEvaluator(s AccuracyStore) *Evaluator {
	return &Evaluator{store: s, now: time.Now}
}

// Evaluate scores forecasts that came due in the last days days against what
// was observed.
func (e *Evaluator) Evaluate(ctx context.Context, locationID int64, days int) ([]models.AccuracyRecord, error) {
	if days <= 0 {
		days = 7
	}
	end := e.now().UTC()
	start := end.AddDate(0, 0, -days)

	observations, err := e.store.GetObservations(ctx, locationID, start, end)
	if err != nil {
		return nil, err
	}
	forecasts, err := e.store.GetForecastsValidBetween(ctx, locationID, start, end)
	if err != nil {
		return nil, err
	}
	return EvaluateAccuracy(observations, forecasts), nil
}
