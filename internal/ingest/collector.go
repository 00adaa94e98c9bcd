package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/wxetl/internal/config"
	"github.com/lox/wxetl/internal/metrics"
	"github.com/lox/wxetl/internal/store"
)

// Collector runs one collection cycle: fetch current conditions and a
// forecast concurrently, build rows, and write them.
type Collector struct {
	cfg     config.Config
	client  *Client
	builder *Builder
	store   *store.Store
	logger  *zap.Logger
}

func NewCollector(cfg config.Config, client *Client, st *store.Store, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		cfg:     cfg,
		client:  client,
		builder: NewBuilder(st, ParsePlace(cfg.DefaultPlace), logger),
		store:   st,
		logger:  logger.Named("collector"),
	}
}

type CycleResult struct {
	RunID             string
	Place             string
	LocationID        int64
	ObservationStored bool
	ForecastSource    string
	ForecastStored    int
	ForecastFailed    int
	ForecastSkipped   int
	Duration          time.Duration
}

type fetchOutcome[T any] struct {
	value T
	err   error
	run   *store.IngestRun
}

// RunOnce performs a full cycle. Each half is written independently: a
// failed forecast does not stop the observation being stored. The returned
// error joins every stage failure.
func (c *Collector) RunOnce(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	place := ParsePlace(c.cfg.DefaultPlace).String()
	result := &CycleResult{RunID: uuid.NewString(), Place: place}
	logger := c.logger.With(zap.String("run_id", result.RunID), zap.String("place", place))

	logger.Info("collection started")

	var current fetchOutcome[*FetchResult]
	var forecast fetchOutcome[*ForecastBundle]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		current.run = c.startRun(gctx, result.RunID, sourceCurrent, currentEndpoint, place)
		current.value, current.err = c.client.FetchCurrent(gctx, place)
		// Fetch errors stay with their half so the other half can finish.
		return nil
	})
	g.Go(func() error {
		forecast.run = c.startRun(gctx, result.RunID, "forecast", "data/forecast", place)
		forecast.value, forecast.err = c.client.FetchForecast(gctx, place, c.cfg.ForecastDays)
		return nil
	})
	_ = g.Wait()

	var errs []error
	if err := c.storeCurrent(ctx, current, result); err != nil {
		logger.Error("current conditions failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("current: %w", err))
	}
	if err := c.storeForecast(ctx, forecast, result); err != nil {
		logger.Error("forecast failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("forecast: %w", err))
	}

	if result.LocationID > 0 && result.ObservationStored {
		if _, err := c.store.GenerateDailyReport(ctx, result.LocationID, time.Now()); err != nil {
			logger.Error("daily report failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("daily report: %w", err))
		}
	}

	result.Duration = time.Since(start)
	err := errors.Join(errs...)
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.CollectionRuns.WithLabelValues(status).Inc()

	logger.Info("collection finished",
		zap.String("status", status),
		zap.Int64("location_id", result.LocationID),
		zap.Bool("observation_stored", result.ObservationStored),
		zap.String("forecast_source", result.ForecastSource),
		zap.Int("forecast_stored", result.ForecastStored),
		zap.Int("forecast_failed", result.ForecastFailed),
		zap.Int("forecast_skipped", result.ForecastSkipped),
		zap.Duration("duration", result.Duration))
	return result, err
}

func (c *Collector) storeCurrent(ctx context.Context, out fetchOutcome[*FetchResult], result *CycleResult) (err error) {
	run := out.run
	if out.value != nil && run != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(out.value.HTTPStatus), Valid: out.value.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(out.value.ResponseSize), Valid: out.value.ResponseSize > 0}
	}
	defer func() { c.completeRun(ctx, run, err) }()

	if out.err != nil {
		return out.err
	}

	batch, err := c.builder.BuildCurrent(ctx, out.value.Body)
	if err != nil {
		return err
	}
	result.LocationID = batch.LocationID
	if run != nil {
		run.LocationID = sql.NullInt64{Int64: batch.LocationID, Valid: true}
		run.RecordsParsed = sql.NullInt64{Int64: 1, Valid: true}
	}

	c.storeRaw(ctx, run, sourceCurrent, currentEndpoint, batch.LocationID, out.value.Body)

	id, err := c.store.InsertObservation(ctx, batch.Observation)
	if err != nil {
		return err
	}
	result.ObservationStored = true
	if run != nil {
		stored := int64(0)
		if id > 0 {
			stored = 1
		}
		run.RecordsStored = sql.NullInt64{Int64: stored, Valid: true}
	}
	if id > 0 {
		metrics.ObservationsIngested.WithLabelValues(batch.Location.Name).Inc()
	}
	return nil
}

func (c *Collector) storeForecast(ctx context.Context, out fetchOutcome[*ForecastBundle], result *CycleResult) (err error) {
	run := out.run
	defer func() { c.completeRun(ctx, run, err) }()

	if out.err != nil {
		return out.err
	}
	bundle := out.value
	result.ForecastSource = bundle.Source
	if run != nil {
		run.Source = bundle.Source
		if bundle.Fetch != nil {
			run.Endpoint = bundle.Fetch.Endpoint
			run.HTTPStatus = sql.NullInt64{Int64: int64(bundle.Fetch.HTTPStatus), Valid: true}
			run.ResponseSizeBytes = sql.NullInt64{Int64: int64(bundle.Fetch.ResponseSize), Valid: true}
		}
		run.RecordsParsed = sql.NullInt64{Int64: int64(len(bundle.Entries)), Valid: true}
	}

	batch, err := c.builder.BuildForecast(ctx, bundle)
	if err != nil {
		return err
	}
	if result.LocationID == 0 {
		result.LocationID = batch.LocationID
	}
	result.ForecastSkipped = batch.Skipped
	if run != nil {
		run.LocationID = sql.NullInt64{Int64: batch.LocationID, Valid: true}
		run.ParseErrors = sql.NullInt64{Int64: int64(batch.Skipped), Valid: batch.Skipped > 0}
	}

	endpoint := bundle.Source
	if bundle.Fetch != nil {
		endpoint = bundle.Fetch.Endpoint
	}
	c.storeRaw(ctx, run, bundle.Source, endpoint, batch.LocationID, bundle.Raw)

	res, err := c.store.InsertForecastBatch(ctx, batch.Entries)
	result.ForecastStored = res.Stored
	result.ForecastFailed = res.Failed
	if run != nil {
		run.RecordsStored = sql.NullInt64{Int64: int64(res.Stored), Valid: true}
	}
	metrics.ForecastsIngested.WithLabelValues(batch.Location.Name, bundle.Source).Add(float64(res.Stored))
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		c.logger.Warn("forecast rows not stored",
			zap.Int("failed", res.Failed),
			zap.Int("failed_chunks", res.FailedChunks))
	}
	return nil
}

func (c *Collector) startRun(ctx context.Context, runID, source, endpoint, place string) *store.IngestRun {
	run, err := c.store.StartIngestRun(ctx, runID, source, endpoint, place)
	if err != nil {
		c.logger.Warn("failed to record ingest run", zap.String("source", source), zap.Error(err))
		return nil
	}
	return run
}

func (c *Collector) completeRun(ctx context.Context, run *store.IngestRun, err error) {
	if run == nil {
		return
	}
	run.Success = err == nil
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	if cerr := c.store.CompleteIngestRun(ctx, run); cerr != nil {
		c.logger.Warn("failed to complete ingest run", zap.Int64("ingest_run", run.ID), zap.Error(cerr))
	}
}

func (c *Collector) storeRaw(ctx context.Context, run *store.IngestRun, source, endpoint string, locationID int64, body []byte) {
	existing, err := c.store.GetRawPayloadByHash(ctx, store.PayloadHash(body))
	if err != nil {
		c.logger.Warn("raw payload lookup failed", zap.String("source", source), zap.Error(err))
	}
	if existing != nil {
		metrics.RawPayloadsArchived.WithLabelValues(source, "duplicate").Inc()
		c.logger.Debug("raw payload unchanged",
			zap.String("source", source),
			zap.Int64("payload_id", existing.ID),
			zap.Time("first_fetched_at", existing.FetchedAt))
		return
	}

	var runID *int64
	if run != nil {
		runID = &run.ID
	}
	id, err := c.store.StoreRawPayload(ctx, runID, source, endpoint, locationID, body)
	if err != nil {
		c.logger.Warn("failed to store raw payload", zap.String("source", source), zap.Error(err))
		return
	}
	outcome := "stored"
	if id == 0 {
		outcome = "duplicate"
	}
	metrics.RawPayloadsArchived.WithLabelValues(source, outcome).Inc()
}
