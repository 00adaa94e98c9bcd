package models

import (
	"database/sql"
	"time"
)

type Location struct {
	ID          int64
	Name        string
	CountryCode string
	Latitude    sql.NullFloat64
	Longitude   sql.NullFloat64
	Timezone    sql.NullString // IANA name or UTC offset in seconds, as reported upstream
	Population  sql.NullInt64
	CreatedAt   time.Time
}

type CurrentObservation struct {
	ID               int64
	LocationID       int64
	ObservedAt       time.Time
	TemperatureC     sql.NullFloat64
	FeelsLikeC       sql.NullFloat64
	HumidityPct      sql.NullInt64
	PressureHPa      sql.NullFloat64
	WindSpeedMS      sql.NullFloat64
	WindDirectionDeg sql.NullInt64
	ConditionCode    sql.NullString
	ConditionText    sql.NullString
	CloudPct         sql.NullInt64
	VisibilityM      sql.NullInt64
	PrecipitationMM  sql.NullFloat64
	HeatIndexC       sql.NullFloat64
	WindChillC       sql.NullFloat64
	Flags            string // JSON array of quality and condition flags
	RawJSON          string
	CreatedAt        time.Time
}

type ForecastEntry struct {
	ID                          int64
	LocationID                  int64
	Source                      string // "forecast_5day", "onecall_v3", "onecall_v25", "daily_forecast"
	CollectedAt                 time.Time
	ValidAt                     time.Time
	TemperatureC                sql.NullFloat64
	TempMinC                    sql.NullFloat64
	TempMaxC                    sql.NullFloat64
	FeelsLikeC                  sql.NullFloat64
	HumidityPct                 sql.NullInt64
	PressureHPa                 sql.NullFloat64
	WindSpeedMS                 sql.NullFloat64
	WindDirectionDeg            sql.NullInt64
	ConditionCode               sql.NullString
	ConditionText               sql.NullString
	CloudPct                    sql.NullInt64
	PrecipitationProbabilityPct sql.NullFloat64
	PrecipitationMM             sql.NullFloat64
	RawJSON                     string
}

type DailyReport struct {
	ID                 int64
	LocationID         int64
	ReportDate         time.Time
	AvgTemperatureC    sql.NullFloat64
	MinTemperatureC    sql.NullFloat64
	MaxTemperatureC    sql.NullFloat64
	AvgHumidityPct     sql.NullFloat64
	TotalPrecipitation sql.NullFloat64
	DominantCondition  sql.NullString
	ObservationCount   int
	Summary            string
	GeneratedAt        time.Time
}

// LeadBand is a half-open lead-time interval in hours.
type LeadBand struct {
	Label    string
	MinHours int
	MaxHours int
}

type ErrorStats struct {
	Count  int
	Mean   sql.NullFloat64
	Median sql.NullFloat64
	StdDev sql.NullFloat64
}

type MetricAccuracy struct {
	AbsError ErrorStats
	PctError ErrorStats
}

type AccuracyRecord struct {
	Band        LeadBand
	Samples     int
	Temperature MetricAccuracy
	Humidity    MetricAccuracy
}
