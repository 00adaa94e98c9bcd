package ingest

import (
	"encoding/json"

	"github.com/lox/wxetl/internal/models"
)

// Quality flags mark values outside a physically plausible range.
const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagCloudInvalid       = "cloud_invalid"
	FlagPrecipNegative     = "precip_negative"
)

// Condition flags mark plausible but extreme weather.
const (
	FlagExtremeHeat  = "extreme_heat"
	FlagExtremeCold  = "extreme_cold"
	FlagHighWind     = "high_wind"
	FlagVeryDry      = "very_dry"
	FlagVeryHumid    = "very_humid"
	extremeHeatC     = 35.0
	extremeColdC     = -5.0
	highWindMS       = 10.7
	veryDryPct       = 20
	veryHumidPct     = 90
)

func ValidateObservation(obs *models.CurrentObservation) []string {
	var flags []string

	if obs.TemperatureC.Valid {
		if obs.TemperatureC.Float64 < -90 || obs.TemperatureC.Float64 > 60 {
			flags = append(flags, FlagTempOutOfRange)
		}
	}

	if obs.HumidityPct.Valid {
		if obs.HumidityPct.Int64 < 0 || obs.HumidityPct.Int64 > 100 {
			flags = append(flags, FlagHumidityInvalid)
		}
	}

	if obs.WindDirectionDeg.Valid {
		if obs.WindDirectionDeg.Int64 < 0 || obs.WindDirectionDeg.Int64 > 360 {
			flags = append(flags, FlagWindDirInvalid)
		}
	}

	if obs.WindSpeedMS.Valid {
		if obs.WindSpeedMS.Float64 < 0 || obs.WindSpeedMS.Float64 > 110 {
			flags = append(flags, FlagWindSpeedUnlikely)
		}
	}

	if obs.PressureHPa.Valid {
		if obs.PressureHPa.Float64 < 850 || obs.PressureHPa.Float64 > 1090 {
			flags = append(flags, FlagPressureOutOfRange)
		}
	}

	if obs.CloudPct.Valid {
		if obs.CloudPct.Int64 < 0 || obs.CloudPct.Int64 > 100 {
			flags = append(flags, FlagCloudInvalid)
		}
	}

	if obs.PrecipitationMM.Valid && obs.PrecipitationMM.Float64 < 0 {
		flags = append(flags, FlagPrecipNegative)
	}

	return flags
}

func ConditionFlags(obs *models.CurrentObservation) []string {
	var flags []string
	if obs.TemperatureC.Valid {
		switch {
		case obs.TemperatureC.Float64 > extremeHeatC:
			flags = append(flags, FlagExtremeHeat)
		case obs.TemperatureC.Float64 < extremeColdC:
			flags = append(flags, FlagExtremeCold)
		}
	}
	if obs.WindSpeedMS.Valid && obs.WindSpeedMS.Float64 > highWindMS {
		flags = append(flags, FlagHighWind)
	}
	if obs.HumidityPct.Valid {
		switch {
		case obs.HumidityPct.Int64 < veryDryPct:
			flags = append(flags, FlagVeryDry)
		case obs.HumidityPct.Int64 > veryHumidPct:
			flags = append(flags, FlagVeryHumid)
		}
	}
	return flags
}

func FlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
