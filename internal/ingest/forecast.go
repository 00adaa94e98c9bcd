package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/config"
	"github.com/lox/wxetl/internal/metrics"
	"github.com/lox/wxetl/internal/models"
)

const (
	SourceFiveDay  = "forecast_5day"
	SourceOneCall3 = "onecall_v3"
	SourceOneCall2 = "onecall_v25"
	SourceDaily    = "daily_forecast"
)

// forecastSource is one upstream forecast variant.
type forecastSource struct {
	ID        string
	Endpoint  string
	Enabled   func(config.Config) bool
	Params    func(coords Coordinates, days int) url.Values
	Normalize func(raw []byte, days int, collectedAt time.Time) ([]models.ForecastEntry, error)
}

func coordParams(coords Coordinates) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	params.Set("units", "metric")
	return params
}

func oneCallParams(coords Coordinates, _ int) url.Values {
	params := coordParams(coords)
	params.Set("exclude", "minutely,alerts")
	return params
}

// forecastSources lists the forecast variants in the order they are tried.
// The 5 day forecast is on every plan and always attempted; the rest need a
// paid subscription and must be switched on.
var forecastSources = []forecastSource{
	{
		ID:       SourceFiveDay,
		Endpoint: "data/2.5/forecast",
		Enabled:  func(config.Config) bool { return true },
		Params:   func(coords Coordinates, _ int) url.Values { return coordParams(coords) },
		Normalize: func(raw []byte, _ int, collectedAt time.Time) ([]models.ForecastEntry, error) {
			return NormalizeFiveDay(raw, collectedAt)
		},
	},
	{
		ID:        SourceOneCall3,
		Endpoint:  "data/3.0/onecall",
		Enabled:   func(c config.Config) bool { return c.EnableOneCallV3 },
		Params:    oneCallParams,
		Normalize: NormalizeOneCall,
	},
	{
		ID:        SourceOneCall2,
		Endpoint:  "data/2.5/onecall",
		Enabled:   func(c config.Config) bool { return c.EnableOneCallV25 },
		Params:    oneCallParams,
		Normalize: NormalizeOneCall,
	},
	{
		ID:       SourceDaily,
		Endpoint: "data/2.5/forecast/daily",
		Enabled:  func(c config.Config) bool { return c.EnableDailyForecast },
		Params: func(coords Coordinates, days int) url.Values {
			params := coordParams(coords)
			params.Set("cnt", strconv.Itoa(clampDays(days, 1, dailyMaxDays)))
			return params
		},
		Normalize: NormalizeDaily,
	},
}

// ForecastBundle is a normalized forecast from the first source that worked.
type ForecastBundle struct {
	Place       string
	Source      string
	Coordinates Coordinates
	FetchedAt   time.Time
	Entries     []models.ForecastEntry
	// Raw is the upstream payload with an "api_source" field added.
	Raw   []byte
	Fetch *FetchResult
}

// FetchForecast resolves place and walks the enabled forecast sources in
// priority order, returning the first that fetches and normalizes cleanly.
// A failing source is logged and skipped. If every attempted source fails
// the error is an *AllSourcesExhaustedError.
func (c *Client) FetchForecast(ctx context.Context, place string, days int) (*ForecastBundle, error) {
	coords, err := c.ResolveCoordinates(ctx, place)
	if err != nil {
		return nil, err
	}

	exhausted := &AllSourcesExhaustedError{Place: place}
	for _, src := range forecastSources {
		if !src.Enabled(c.cfg) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bundle, uerr := c.tryForecastSource(ctx, src, place, coords, days)
		if uerr == nil {
			c.logger.Info("forecast fetched",
				zap.String("place", place),
				zap.String("source", src.ID),
				zap.Int("entries", len(bundle.Entries)))
			return bundle, nil
		}

		metrics.ForecastSourceFailures.WithLabelValues(src.ID).Inc()
		c.logger.Warn("forecast source failed",
			zap.String("place", place),
			zap.String("source", src.ID),
			zap.String("endpoint", src.Endpoint),
			zap.Int("status", uerr.StatusCode),
			zap.Error(uerr.Err))
		exhausted.Failures = append(exhausted.Failures, uerr)
	}
	return nil, exhausted
}

func (c *Client) tryForecastSource(ctx context.Context, src forecastSource, place string, coords Coordinates, days int) (*ForecastBundle, *UpstreamError) {
	res, err := c.get(ctx, src.ID, src.Endpoint, src.Params(coords, days))
	if err != nil {
		var uerr *UpstreamError
		if errors.As(err, &uerr) {
			return nil, uerr
		}
		return nil, &UpstreamError{Source: src.ID, Endpoint: src.Endpoint, Err: err}
	}

	fetchedAt := time.Now().UTC().Truncate(time.Second)
	entries, err := src.Normalize(res.Body, days, fetchedAt)
	if err != nil {
		return nil, &UpstreamError{Source: src.ID, Endpoint: src.Endpoint, StatusCode: res.HTTPStatus, Err: err}
	}
	for i := range entries {
		entries[i].Source = src.ID
	}

	tagged, err := sjson.SetBytes(res.Body, "api_source", src.ID)
	if err != nil {
		return nil, &UpstreamError{Source: src.ID, Endpoint: src.Endpoint, StatusCode: res.HTTPStatus,
			Err: fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)}
	}

	return &ForecastBundle{
		Place:       place,
		Source:      src.ID,
		Coordinates: coords,
		FetchedAt:   fetchedAt,
		Entries:     entries,
		Raw:         tagged,
		Fetch:       res,
	}, nil
}
