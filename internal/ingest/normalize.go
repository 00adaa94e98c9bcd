package ingest

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lox/wxetl/internal/models"
)

const (
	oneCallMaxDays = 8
	dailyMaxDays   = 16
)

type owmWeather struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
}

// tempField accepts either a bare number or an object with day/min/max.
type tempField struct {
	Day, Min, Max *float64
}

func (t *tempField) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		t.Day = &n
		return nil
	}
	var obj struct {
		Day *float64 `json:"day"`
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	t.Day, t.Min, t.Max = obj.Day, obj.Min, obj.Max
	return nil
}

// amountField accepts a bare number, {"all": n}, {"1h": n} or {"3h": n}.
type amountField struct {
	Value *float64
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		a.Value = &n
		return nil
	}
	var obj struct {
		All   *float64 `json:"all"`
		One   *float64 `json:"1h"`
		Three *float64 `json:"3h"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	switch {
	case obj.All != nil:
		a.Value = obj.All
	case obj.Three != nil:
		a.Value = obj.Three
	case obj.One != nil:
		a.Value = obj.One
	}
	return nil
}

type threeHourStep struct {
	Dt   *int64 `json:"dt"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		TempMin   *float64 `json:"temp_min"`
		TempMax   *float64 `json:"temp_max"`
		Pressure  *float64 `json:"pressure"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Weather []owmWeather `json:"weather"`
	Clouds  amountField  `json:"clouds"`
	Wind    *struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Pop  *float64    `json:"pop"`
	Rain amountField `json:"rain"`
}

type dailyEntry struct {
	Dt        *int64       `json:"dt"`
	Temp      tempField    `json:"temp"`
	FeelsLike tempField    `json:"feels_like"`
	Pressure  *float64     `json:"pressure"`
	Humidity  *float64     `json:"humidity"`
	WindSpeed *float64     `json:"wind_speed"`
	WindDeg   *float64     `json:"wind_deg"`
	Speed     *float64     `json:"speed"`
	Deg       *float64     `json:"deg"`
	Weather   []owmWeather `json:"weather"`
	Clouds    amountField  `json:"clouds"`
	Pop       *float64     `json:"pop"`
	Rain      amountField  `json:"rain"`
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *float64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(math.Round(*p)), Valid: true}
}

func firstFloat(ps ...*float64) *float64 {
	for _, p := range ps {
		if p != nil {
			return p
		}
	}
	return nil
}

// precipProbability converts an OpenWeatherMap pop (0..1) to a percentage.
// Values above 1 are taken to be percentages already.
func precipProbability(pop *float64) sql.NullFloat64 {
	if pop == nil {
		return sql.NullFloat64{}
	}
	p := *pop
	if p <= 1 {
		p = math.Round(p*1000) / 10
	}
	return sql.NullFloat64{Float64: p, Valid: true}
}

func applyCondition(e *models.ForecastEntry, weather []owmWeather) {
	if len(weather) == 0 {
		return
	}
	e.ConditionCode = sql.NullString{String: weather[0].Main, Valid: weather[0].Main != ""}
	e.ConditionText = sql.NullString{String: weather[0].Description, Valid: weather[0].Description != ""}
}

func clampDays(days, lo, hi int) int {
	return max(lo, min(days, hi))
}

// decodeList splits the named top-level array into raw items.
func decodeList(raw []byte, field string) ([]json.RawMessage, map[string]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}
	listRaw, ok := envelope[field]
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing %q", ErrUnrecognizedPayload, field)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(listRaw, &items); err != nil {
		return nil, nil, fmt.Errorf("%w: %q is not a list: %v", ErrUnrecognizedPayload, field, err)
	}
	if len(items) == 0 {
		return nil, nil, ErrEmptyForecast
	}
	return items, envelope, nil
}

// NormalizeFiveDay folds the 3-hour steps of the 5 day forecast into one
// entry per local calendar day. The first step of a day seeds every field;
// later steps only widen the min/max temperature and add to rainfall.
// Steps are grouped by the city's UTC offset when the payload gives one.
func NormalizeFiveDay(raw []byte, collectedAt time.Time) ([]models.ForecastEntry, error) {
	items, envelope, err := decodeList(raw, "list")
	if err != nil {
		return nil, err
	}

	zone := time.UTC
	if cityRaw, ok := envelope["city"]; ok {
		var city struct {
			Timezone *int `json:"timezone"`
		}
		if json.Unmarshal(cityRaw, &city) == nil && city.Timezone != nil {
			zone = time.FixedZone("", *city.Timezone)
		}
	}

	var (
		entries    []models.ForecastEntry
		current    *models.ForecastEntry
		currentDay string
		steps      []json.RawMessage
	)
	flush := func() {
		if current == nil {
			return
		}
		current.RawJSON = marshalSteps(steps)
		entries = append(entries, *current)
		current = nil
		steps = nil
	}

	for i, item := range items {
		var step threeHourStep
		if err := json.Unmarshal(item, &step); err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrUnrecognizedPayload, i, err)
		}
		if step.Dt == nil {
			continue
		}
		validAt := time.Unix(*step.Dt, 0).UTC()
		day := validAt.In(zone).Format("2006-01-02")

		var tmin, tmax *float64
		if step.Main != nil {
			tmin = firstFloat(step.Main.TempMin, step.Main.Temp)
			tmax = firstFloat(step.Main.TempMax, step.Main.Temp)
		}

		if day != currentDay || current == nil {
			flush()
			currentDay = day
			current = newFiveDayEntry(step, validAt, collectedAt)
			current.TempMinC = nullFloat(tmin)
			current.TempMaxC = nullFloat(tmax)
			current.PrecipitationMM = sql.NullFloat64{Float64: valueOr(step.Rain.Value, 0), Valid: true}
			steps = append(steps, item)
			continue
		}

		if tmin != nil && (!current.TempMinC.Valid || *tmin < current.TempMinC.Float64) {
			current.TempMinC = sql.NullFloat64{Float64: *tmin, Valid: true}
		}
		if tmax != nil && (!current.TempMaxC.Valid || *tmax > current.TempMaxC.Float64) {
			current.TempMaxC = sql.NullFloat64{Float64: *tmax, Valid: true}
		}
		if step.Rain.Value != nil {
			current.PrecipitationMM.Float64 += *step.Rain.Value
		}
		steps = append(steps, item)
	}
	flush()

	if len(entries) == 0 {
		return nil, ErrEmptyForecast
	}
	return entries, nil
}

func newFiveDayEntry(step threeHourStep, validAt, collectedAt time.Time) *models.ForecastEntry {
	e := &models.ForecastEntry{
		CollectedAt:                 collectedAt,
		ValidAt:                     validAt,
		CloudPct:                    nullInt(step.Clouds.Value),
		PrecipitationProbabilityPct: precipProbability(step.Pop),
	}
	if step.Main != nil {
		e.TemperatureC = nullFloat(step.Main.Temp)
		e.FeelsLikeC = nullFloat(step.Main.FeelsLike)
		e.PressureHPa = nullFloat(step.Main.Pressure)
		e.HumidityPct = nullInt(step.Main.Humidity)
	}
	if step.Wind != nil {
		e.WindSpeedMS = nullFloat(step.Wind.Speed)
		e.WindDirectionDeg = nullInt(step.Wind.Deg)
	}
	applyCondition(e, step.Weather)
	return e
}

func marshalSteps(steps []json.RawMessage) string {
	b, err := json.Marshal(steps)
	if err != nil {
		return ""
	}
	return string(b)
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// NormalizeOneCall maps the daily block of a OneCall payload (3.0 or the
// legacy 2.5) one to one, keeping at most min(days, 8) entries. days <= 0
// keeps none.
func NormalizeOneCall(raw []byte, days int, collectedAt time.Time) ([]models.ForecastEntry, error) {
	items, _, err := decodeList(raw, "daily")
	if err != nil {
		return nil, err
	}
	return normalizeDailyItems(items, clampDays(days, 0, oneCallMaxDays), collectedAt)
}

// NormalizeDaily maps the 16 day daily forecast, keeping between 1 and 16
// entries. Location fields come from the city envelope, not the entries.
func NormalizeDaily(raw []byte, days int, collectedAt time.Time) ([]models.ForecastEntry, error) {
	items, _, err := decodeList(raw, "list")
	if err != nil {
		return nil, err
	}
	return normalizeDailyItems(items, clampDays(days, 1, dailyMaxDays), collectedAt)
}

// normalizeDailyItems passes entries without a timestamp through with a
// zero ValidAt so the builder can count and skip them.
func normalizeDailyItems(items []json.RawMessage, limit int, collectedAt time.Time) ([]models.ForecastEntry, error) {
	if len(items) > limit {
		items = items[:limit]
	}

	entries := make([]models.ForecastEntry, 0, len(items))
	for i, item := range items {
		var d dailyEntry
		if err := json.Unmarshal(item, &d); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrUnrecognizedPayload, i, err)
		}

		e := models.ForecastEntry{
			CollectedAt:                 collectedAt,
			TemperatureC:                nullFloat(d.Temp.Day),
			TempMinC:                    nullFloat(d.Temp.Min),
			TempMaxC:                    nullFloat(d.Temp.Max),
			FeelsLikeC:                  nullFloat(d.FeelsLike.Day),
			HumidityPct:                 nullInt(d.Humidity),
			PressureHPa:                 nullFloat(d.Pressure),
			WindSpeedMS:                 nullFloat(firstFloat(d.WindSpeed, d.Speed)),
			WindDirectionDeg:            nullInt(firstFloat(d.WindDeg, d.Deg)),
			CloudPct:                    nullInt(d.Clouds.Value),
			PrecipitationProbabilityPct: precipProbability(d.Pop),
			PrecipitationMM:             nullFloat(d.Rain.Value),
			RawJSON:                     string(item),
		}
		if d.Dt != nil {
			e.ValidAt = time.Unix(*d.Dt, 0).UTC()
		}
		applyCondition(&e, d.Weather)
		entries = append(entries, e)
	}
	return entries, nil
}
