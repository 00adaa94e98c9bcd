package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/derive"
	"github.com/lox/wxetl/internal/metrics"
	"github.com/lox/wxetl/internal/models"
)

// LocationStore resolves a location to its id, creating it on first sight.
type LocationStore interface {
	GetOrCreateLocation(ctx context.Context, l models.Location) (int64, error)
}

// Builder turns raw payloads and forecast bundles into rows ready to store.
type Builder struct {
	locations LocationStore
	fallback  Place
	logger    *zap.Logger
	now       func() time.Time
}

func NewBuilder(locations LocationStore, fallback Place, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		locations: locations,
		fallback:  fallback,
		logger:    logger.Named("builder"),
		now:       time.Now,
	}
}

type CurrentBatch struct {
	LocationID  int64
	Location    models.Location
	Observation models.CurrentObservation
}

type ForecastBatch struct {
	LocationID int64
	Location   models.Location
	Entries    []models.ForecastEntry
	Skipped    int
}

type currentPayload struct {
	Dt   *int64 `json:"dt"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Pressure  *float64 `json:"pressure"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Weather []owmWeather `json:"weather"`
	Wind    *struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Clouds     amountField `json:"clouds"`
	Visibility *float64    `json:"visibility"`
	Rain       amountField `json:"rain"`
	Snow       amountField `json:"snow"`
}

func isObject(raw []byte) bool {
	return gjson.ValidBytes(raw) && gjson.ParseBytes(raw).IsObject()
}

// BuildCurrent maps a current-conditions payload. Missing groups leave
// their columns null; a missing timestamp defaults to now.
func (b *Builder) BuildCurrent(ctx context.Context, raw []byte) (*CurrentBatch, error) {
	if !isObject(raw) {
		return nil, fmt.Errorf("%w: current payload is not a JSON object", ErrUnrecognizedPayload)
	}
	var p currentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}

	obs := models.CurrentObservation{
		CloudPct:    nullInt(p.Clouds.Value),
		VisibilityM: nullInt(p.Visibility),
		RawJSON:     string(raw),
	}
	if p.Dt != nil {
		obs.ObservedAt = time.Unix(*p.Dt, 0).UTC()
	} else {
		b.logger.Debug("current payload has no dt, using now")
		obs.ObservedAt = b.now().UTC().Truncate(time.Second)
	}
	if p.Main != nil {
		obs.TemperatureC = nullFloat(p.Main.Temp)
		obs.FeelsLikeC = nullFloat(p.Main.FeelsLike)
		obs.PressureHPa = nullFloat(p.Main.Pressure)
		obs.HumidityPct = nullInt(p.Main.Humidity)
	}
	if p.Wind != nil {
		obs.WindSpeedMS = nullFloat(p.Wind.Speed)
		obs.WindDirectionDeg = nullInt(p.Wind.Deg)
	}
	if len(p.Weather) > 0 {
		obs.ConditionCode = sql.NullString{String: p.Weather[0].Main, Valid: p.Weather[0].Main != ""}
		obs.ConditionText = sql.NullString{String: p.Weather[0].Description, Valid: p.Weather[0].Description != ""}
	}
	if precip := firstFloat(p.Rain.Value, p.Snow.Value); precip != nil {
		obs.PrecipitationMM = sql.NullFloat64{Float64: *precip, Valid: true}
	}

	humidity := sql.NullFloat64{Float64: float64(obs.HumidityPct.Int64), Valid: obs.HumidityPct.Valid}
	obs.HeatIndexC = derive.HeatIndex(obs.TemperatureC, humidity)
	obs.WindChillC = derive.WindChill(obs.TemperatureC, obs.WindSpeedMS)

	flags := ValidateObservation(&obs)
	flags = append(flags, ConditionFlags(&obs)...)
	obs.Flags = FlagsToJSON(flags)

	loc := ProbeLocation(raw, b.fallback)
	id, err := b.locations.GetOrCreateLocation(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("resolve location %s,%s: %w", loc.Name, loc.CountryCode, err)
	}
	obs.LocationID = id
	loc.ID = id

	return &CurrentBatch{LocationID: id, Location: loc, Observation: obs}, nil
}

// BuildForecast attaches a location to every entry in bundle. Entries with
// no valid time are logged and skipped; the rest are kept.
func (b *Builder) BuildForecast(ctx context.Context, bundle *ForecastBundle) (*ForecastBatch, error) {
	if bundle == nil || !isObject(bundle.Raw) {
		return nil, fmt.Errorf("%w: forecast bundle has no JSON object payload", ErrUnrecognizedPayload)
	}

	fallback := b.fallback
	if bundle.Place != "" {
		fallback = ParsePlace(bundle.Place)
	}
	loc := ProbeLocation(bundle.Raw, fallback)
	if !loc.Latitude.Valid || !loc.Longitude.Valid {
		loc.Latitude = sql.NullFloat64{Float64: bundle.Coordinates.Lat, Valid: true}
		loc.Longitude = sql.NullFloat64{Float64: bundle.Coordinates.Lon, Valid: true}
	}

	id, err := b.locations.GetOrCreateLocation(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("resolve location %s,%s: %w", loc.Name, loc.CountryCode, err)
	}
	loc.ID = id

	batch := &ForecastBatch{LocationID: id, Location: loc, Entries: make([]models.ForecastEntry, 0, len(bundle.Entries))}
	for i, e := range bundle.Entries {
		if e.ValidAt.IsZero() {
			perr := &PartialRecordError{Kind: "forecast", Index: i, Field: "dt"}
			b.logger.Warn("skipping forecast entry", zap.String("source", bundle.Source), zap.Error(perr))
			metrics.RecordsSkipped.WithLabelValues("forecast").Inc()
			batch.Skipped++
			continue
		}
		e.LocationID = id
		if e.Source == "" {
			e.Source = bundle.Source
		}
		if e.CollectedAt.IsZero() {
			e.CollectedAt = bundle.FetchedAt
		}
		batch.Entries = append(batch.Entries, e)
	}
	return batch, nil
}
