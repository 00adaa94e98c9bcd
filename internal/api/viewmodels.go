package api

import (
	"database/sql"
	"time"

	"github.com/lox/wxetl/internal/derive"
	"github.com/lox/wxetl/internal/models"
	"github.com/lox/wxetl/internal/store"
)

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string           `json:"status"`
	Locations []LocationHealth `json:"locations"`
	Errors    []string         `json:"errors,omitempty"`
}

// LocationHealth reports how fresh the newest observation for a location is.
type LocationHealth struct {
	LocationID int64      `json:"location_id"`
	Name       string     `json:"name"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	AgeMinutes int        `json:"age_minutes"`
	Stale      bool       `json:"stale"`
}

type LocationView struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	CountryCode string   `json:"country_code"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Timezone    *string  `json:"timezone,omitempty"`
	Population  *int64   `json:"population,omitempty"`
}

type ObservationView struct {
	LocationID       int64     `json:"location_id"`
	ObservedAt       time.Time `json:"observed_at"`
	TemperatureC     *float64  `json:"temperature_c"`
	FeelsLikeC       *float64  `json:"feels_like_c"`
	HumidityPct      *int64    `json:"humidity_pct"`
	PressureHPa      *float64  `json:"pressure_hpa"`
	WindSpeedMS      *float64  `json:"wind_speed_ms"`
	WindDirectionDeg *int64    `json:"wind_direction_deg"`
	ConditionCode    *string   `json:"condition_code"`
	ConditionText    *string   `json:"condition_text"`
	CloudPct         *int64    `json:"cloud_pct"`
	VisibilityM      *int64    `json:"visibility_m"`
	PrecipitationMM  *float64  `json:"precipitation_mm"`
	HeatIndexC       *float64  `json:"heat_index_c"`
	WindChillC       *float64  `json:"wind_chill_c"`
	Flags            []string  `json:"flags"`
}

type ForecastView struct {
	Source                      string    `json:"source"`
	CollectedAt                 time.Time `json:"collected_at"`
	ValidAt                     time.Time `json:"valid_at"`
	TemperatureC                *float64  `json:"temperature_c"`
	TempMinC                    *float64  `json:"temp_min_c"`
	TempMaxC                    *float64  `json:"temp_max_c"`
	HumidityPct                 *int64    `json:"humidity_pct"`
	WindSpeedMS                 *float64  `json:"wind_speed_ms"`
	ConditionText               *string   `json:"condition_text"`
	PrecipitationProbabilityPct *float64  `json:"precipitation_probability_pct"`
	PrecipitationMM             *float64  `json:"precipitation_mm"`
}

type DailyReportView struct {
	LocationID         int64     `json:"location_id"`
	Date               string    `json:"date"`
	AvgTemperatureC    *float64  `json:"avg_temperature_c"`
	MinTemperatureC    *float64  `json:"min_temperature_c"`
	MaxTemperatureC    *float64  `json:"max_temperature_c"`
	AvgHumidityPct     *float64  `json:"avg_humidity_pct"`
	TotalPrecipitation *float64  `json:"total_precipitation_mm"`
	DominantCondition  *string   `json:"dominant_condition"`
	ObservationCount   int       `json:"observation_count"`
	Summary            string    `json:"summary"`
	GeneratedAt        time.Time `json:"generated_at"`
}

type ErrorStatsView struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	StdDev *float64 `json:"std_dev"`
}

type MetricAccuracyView struct {
	AbsError ErrorStatsView `json:"abs_error"`
	PctError ErrorStatsView `json:"pct_error"`
}

type AccuracyView struct {
	Lead        string             `json:"lead"`
	MinHours    int                `json:"min_hours"`
	MaxHours    int                `json:"max_hours"`
	Samples     int                `json:"samples"`
	Temperature MetricAccuracyView `json:"temperature"`
	Humidity    MetricAccuracyView `json:"humidity"`
}

type AccuracyResponse struct {
	LocationID int64          `json:"location_id"`
	Days       int            `json:"days"`
	Bands      []AccuracyView `json:"bands"`
}

type AnomalyView struct {
	ObservedAt time.Time `json:"observed_at"`
	Value      float64   `json:"value"`
	Mean       *float64  `json:"window_mean"`
	StdDev     *float64  `json:"window_std_dev"`
	ZScore     *float64  `json:"z_score"`
}

type AnomalyResponse struct {
	LocationID int64         `json:"location_id"`
	Metric     string        `json:"metric"`
	Units      string        `json:"units"`
	Window     int           `json:"window"`
	Threshold  float64       `json:"threshold"`
	Samples    int           `json:"samples"`
	Anomalies  []AnomalyView `json:"anomalies"`
}

type IngestHealthView struct {
	Date             string `json:"date"`
	Source           string `json:"source"`
	Endpoint         string `json:"endpoint"`
	TotalRuns        int    `json:"total_runs"`
	SuccessRuns      int    `json:"success_runs"`
	FailedRuns       int    `json:"failed_runs"`
	TotalRecords     int64  `json:"total_records"`
	TotalParseErrors int64  `json:"total_parse_errors"`
}

type IngestErrorView struct {
	RunID      *string   `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Source     string    `json:"source"`
	Endpoint   string    `json:"endpoint"`
	HTTPStatus *int64    `json:"http_status,omitempty"`
	Error      *string   `json:"error"`
}

type RawPayloadStatsView struct {
	TotalCount      int              `json:"total_count"`
	TotalSizeBytes  int64            `json:"total_size_bytes"`
	OldestFetchedAt *time.Time       `json:"oldest_fetched_at,omitempty"`
	NewestFetchedAt *time.Time       `json:"newest_fetched_at,omitempty"`
	CountBySource   map[string]int   `json:"count_by_source"`
	SizeBySource    map[string]int64 `json:"size_by_source"`
}

type IngestReport struct {
	Days         int                  `json:"days"`
	Summaries    []IngestHealthView   `json:"summaries"`
	RecentErrors []IngestErrorView    `json:"recent_errors"`
	RawPayloads  *RawPayloadStatsView `json:"raw_payloads,omitempty"`
}

type AskRequest struct {
	Question   string `json:"question"`
	LocationID int64  `json:"location_id"`
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nonZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func newLocationView(l models.Location) LocationView {
	return LocationView{
		ID:          l.ID,
		Name:        l.Name,
		CountryCode: l.CountryCode,
		Latitude:    nullFloat(l.Latitude),
		Longitude:   nullFloat(l.Longitude),
		Timezone:    nullString(l.Timezone),
		Population:  nullInt(l.Population),
	}
}

func newObservationView(o models.CurrentObservation, flags []string) ObservationView {
	if flags == nil {
		flags = []string{}
	}
	return ObservationView{
		LocationID:       o.LocationID,
		ObservedAt:       o.ObservedAt,
		TemperatureC:     nullFloat(o.TemperatureC),
		FeelsLikeC:       nullFloat(o.FeelsLikeC),
		HumidityPct:      nullInt(o.HumidityPct),
		PressureHPa:      nullFloat(o.PressureHPa),
		WindSpeedMS:      nullFloat(o.WindSpeedMS),
		WindDirectionDeg: nullInt(o.WindDirectionDeg),
		ConditionCode:    nullString(o.ConditionCode),
		ConditionText:    nullString(o.ConditionText),
		CloudPct:         nullInt(o.CloudPct),
		VisibilityM:      nullInt(o.VisibilityM),
		PrecipitationMM:  nullFloat(o.PrecipitationMM),
		HeatIndexC:       nullFloat(o.HeatIndexC),
		WindChillC:       nullFloat(o.WindChillC),
		Flags:            flags,
	}
}

func newForecastView(f models.ForecastEntry) ForecastView {
	return ForecastView{
		Source:                      f.Source,
		CollectedAt:                 f.CollectedAt,
		ValidAt:                     f.ValidAt,
		TemperatureC:                nullFloat(f.TemperatureC),
		TempMinC:                    nullFloat(f.TempMinC),
		TempMaxC:                    nullFloat(f.TempMaxC),
		HumidityPct:                 nullInt(f.HumidityPct),
		WindSpeedMS:                 nullFloat(f.WindSpeedMS),
		ConditionText:               nullString(f.ConditionText),
		PrecipitationProbabilityPct: nullFloat(f.PrecipitationProbabilityPct),
		PrecipitationMM:             nullFloat(f.PrecipitationMM),
	}
}

func newDailyReportView(r models.DailyReport, loc *time.Location) DailyReportView {
	return DailyReportView{
		LocationID:         r.LocationID,
		Date:               r.ReportDate.In(loc).Format(dateLayout),
		AvgTemperatureC:    nullFloat(r.AvgTemperatureC),
		MinTemperatureC:    nullFloat(r.MinTemperatureC),
		MaxTemperatureC:    nullFloat(r.MaxTemperatureC),
		AvgHumidityPct:     nullFloat(r.AvgHumidityPct),
		TotalPrecipitation: nullFloat(r.TotalPrecipitation),
		DominantCondition:  nullString(r.DominantCondition),
		ObservationCount:   r.ObservationCount,
		Summary:            r.Summary,
		GeneratedAt:        r.GeneratedAt,
	}
}

func newErrorStatsView(s models.ErrorStats) ErrorStatsView {
	return ErrorStatsView{
		Count:  s.Count,
		Mean:   nullFloat(s.Mean),
		Median: nullFloat(s.Median),
		StdDev: nullFloat(s.StdDev),
	}
}

func newAccuracyView(r models.AccuracyRecord) AccuracyView {
	return AccuracyView{
		Lead:     r.Band.Label,
		MinHours: r.Band.MinHours,
		MaxHours: r.Band.MaxHours,
		Samples:  r.Samples,
		Temperature: MetricAccuracyView{
			AbsError: newErrorStatsView(r.Temperature.AbsError),
			PctError: newErrorStatsView(r.Temperature.PctError),
		},
		Humidity: MetricAccuracyView{
			AbsError: newErrorStatsView(r.Humidity.AbsError),
			PctError: newErrorStatsView(r.Humidity.PctError),
		},
	}
}

func newAnomalyView(at time.Time, a derive.Anomaly) AnomalyView {
	return AnomalyView{
		ObservedAt: at,
		Value:      a.Value.Float64,
		Mean:       nullFloat(a.Mean),
		StdDev:     nullFloat(a.StdDev),
		ZScore:     nullFloat(a.ZScore),
	}
}

func newIngestHealthView(h store.IngestHealthSummary) IngestHealthView {
	return IngestHealthView{
		Date:             h.Date,
		Source:           h.Source,
		Endpoint:         h.Endpoint,
		TotalRuns:        h.TotalRuns,
		SuccessRuns:      h.SuccessRuns,
		FailedRuns:       h.FailedRuns,
		TotalRecords:     h.TotalRecords,
		TotalParseErrors: h.TotalParseErrors,
	}
}

func newIngestErrorView(r store.IngestRun) IngestErrorView {
	return IngestErrorView{
		RunID:      nullString(r.RunID),
		StartedAt:  r.StartedAt,
		Source:     r.Source,
		Endpoint:   r.Endpoint,
		HTTPStatus: nullInt(r.HTTPStatus),
		Error:      nullString(r.ErrorMessage),
	}
}

func newRawPayloadStatsView(s *store.RawPayloadStats) *RawPayloadStatsView {
	if s == nil {
		return nil
	}
	return &RawPayloadStatsView{
		TotalCount:      s.TotalCount,
		TotalSizeBytes:  s.TotalSizeBytes,
		OldestFetchedAt: nonZeroTime(s.OldestFetchedAt),
		NewestFetchedAt: nonZeroTime(s.NewestFetchedAt),
		CountBySource:   s.CountBySource,
		SizeBySource:    s.SizeBySource,
	}
}
