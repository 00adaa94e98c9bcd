package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/forecast"
	"github.com/lox/wxetl/internal/store"
)

const (
	accuracyWindowDays      = 7
	rawPayloadRetentionDays = 30
)

// DailyJobs is the once-a-day housekeeping: reports for the finished day,
// accuracy scoring and raw payload cleanup.
type DailyJobs struct {
	store     *store.Store
	evaluator *forecast.Evaluator
	logger    *zap.Logger
}

func NewDailyJobs(st *store.Store, logger *zap.Logger) *DailyJobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyJobs{
		store:     st,
		evaluator: forecast.NewEvaluator(st),
		logger:    logger.Named("daily"),
	}
}

func (d *DailyJobs) RunAll(ctx context.Context, forDate time.Time) error {
	date := forDate.Format("2006-01-02")
	d.logger.Info("running daily jobs", zap.String("date", date))

	var errs []error
	if err := d.GenerateReports(ctx, forDate); err != nil {
		errs = append(errs, fmt.Errorf("reports: %w", err))
	}
	if err := d.ScoreAccuracy(ctx, accuracyWindowDays); err != nil {
		errs = append(errs, fmt.Errorf("accuracy: %w", err))
	}

	removed, err := d.store.CleanupOldRawPayloads(ctx, rawPayloadRetentionDays)
	if err != nil {
		errs = append(errs, fmt.Errorf("raw payload cleanup: %w", err))
	} else if removed > 0 {
		d.logger.Info("removed old raw payloads", zap.Int64("removed", removed))
	}

	return errors.Join(errs...)
}

// GenerateReports (re)builds the report for forDate at every known location.
func (d *DailyJobs) GenerateReports(ctx context.Context, forDate time.Time) error {
	locations, err := d.store.ListLocations(ctx)
	if err != nil {
		return err
	}

	generated := 0
	for _, loc := range locations {
		report, err := d.store.GenerateDailyReport(ctx, loc.ID, forDate)
		if err != nil {
			d.logger.Error("daily report failed", zap.String("location", loc.Name), zap.Error(err))
			continue
		}
		if report == nil {
			continue
		}
		generated++
	}

	d.logger.Info("generated daily reports",
		zap.Int("reports", generated),
		zap.String("date", forDate.Format("2006-01-02")))
	return nil
}

// ScoreAccuracy logs forecast accuracy by lead time for every location.
func (d *DailyJobs) ScoreAccuracy(ctx context.Context, days int) error {
	locations, err := d.store.ListLocations(ctx)
	if err != nil {
		return err
	}

	for _, loc := range locations {
		records, err := d.evaluator.Evaluate(ctx, loc.ID, days)
		if err != nil {
			d.logger.Error("accuracy evaluation failed", zap.String("location", loc.Name), zap.Error(err))
			continue
		}
		for _, r := range records {
			d.logger.Info("forecast accuracy",
				zap.String("location", loc.Name),
				zap.String("lead", r.Band.Label),
				zap.Int("samples", r.Samples),
				zap.Float64("temp_mae", r.Temperature.AbsError.Mean.Float64),
				zap.Float64("humidity_mae", r.Humidity.AbsError.Mean.Float64))
		}
	}
	return nil
}
