package ask

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lox/wxetl/internal/models"
)

const systemPrompt = `You answer questions about the weather at one place using only the data provided.
Temperatures are in °C, wind in m/s, precipitation in mm.
If the data does not answer the question, say so briefly. Keep answers to a few sentences.`

// maxForecastLines bounds how much of the forecast goes into a prompt.
const maxForecastLines = 8

// DataSource is the stored weather the assistant can draw on.
type DataSource interface {
	GetLocation(ctx context.Context, id int64) (*models.Location, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	GetLatestObservation(ctx context.Context, locationID int64) (*models.CurrentObservation, error)
	GetLatestForecasts(ctx context.Context, locationID int64) ([]models.ForecastEntry, error)
	GetDailyReport(ctx context.Context, locationID int64, date time.Time) (*models.DailyReport, error)
}

// resolveLocation returns the location with id, or the first known location
// when id is zero.
func resolveLocation(ctx context.Context, data DataSource, id int64) (*models.Location, error) {
	if id != 0 {
		loc, err := data.GetLocation(ctx, id)
		if err != nil {
			return nil, err
		}
		if loc == nil {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownLocation, id)
		}
		return loc, nil
	}

	locations, err := data.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, ErrNoData
	}
	return &locations[0], nil
}

// BuildContext renders what is stored for loc as plain text for the model.
func BuildContext(ctx context.Context, data DataSource, loc *models.Location, now time.Time) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s, %s\n", loc.Name, loc.CountryCode)
	fmt.Fprintf(&b, "Now: %s\n", now.Format("Monday 2 January 2006 15:04 MST"))

	obs, err := data.GetLatestObservation(ctx, loc.ID)
	if err != nil {
		return "", fmt.Errorf("latest observation: %w", err)
	}
	report, err := data.GetDailyReport(ctx, loc.ID, now)
	if err != nil {
		return "", fmt.Errorf("daily report: %w", err)
	}
	forecasts, err := data.GetLatestForecasts(ctx, loc.ID)
	if err != nil {
		return "", fmt.Errorf("forecasts: %w", err)
	}
	if obs == nil && report == nil && len(forecasts) == 0 {
		return "", ErrNoData
	}

	if obs != nil {
		b.WriteString("\nLatest observation (")
		b.WriteString(obs.ObservedAt.In(now.Location()).Format("2006-01-02 15:04"))
		b.WriteString("):\n")
		writeValue(&b, "condition", obs.ConditionText.String, obs.ConditionText.Valid)
		writeFloat(&b, "temperature", obs.TemperatureC.Float64, obs.TemperatureC.Valid, "°C")
		writeFloat(&b, "feels like", obs.FeelsLikeC.Float64, obs.FeelsLikeC.Valid, "°C")
		writeFloat(&b, "heat index", obs.HeatIndexC.Float64, obs.HeatIndexC.Valid, "°C")
		writeFloat(&b, "wind chill", obs.WindChillC.Float64, obs.WindChillC.Valid, "°C")
		writeFloat(&b, "humidity", float64(obs.HumidityPct.Int64), obs.HumidityPct.Valid, "%")
		writeFloat(&b, "wind", obs.WindSpeedMS.Float64, obs.WindSpeedMS.Valid, " m/s")
		writeFloat(&b, "pressure", obs.PressureHPa.Float64, obs.PressureHPa.Valid, " hPa")
		writeFloat(&b, "precipitation", obs.PrecipitationMM.Float64, obs.PrecipitationMM.Valid, " mm")
		writeValue(&b, "flags", obs.Flags, obs.Flags != "")
	}

	if report != nil && report.Summary != "" {
		b.WriteString("\nToday so far: ")
		b.WriteString(report.Summary)
		b.WriteString("\n")
	}

	if len(forecasts) > 0 {
		fmt.Fprintf(&b, "\nForecast (%s):\n", forecasts[0].Source)
		for i, f := range forecasts {
			if i == maxForecastLines {
				break
			}
			b.WriteString("- ")
			b.WriteString(f.ValidAt.In(now.Location()).Format("Mon 2 Jan"))
			if f.ConditionText.Valid {
				b.WriteString(": " + f.ConditionText.String)
			}
			if f.TempMinC.Valid && f.TempMaxC.Valid {
				fmt.Fprintf(&b, ", %.1f to %.1f°C", f.TempMinC.Float64, f.TempMaxC.Float64)
			} else if f.TemperatureC.Valid {
				fmt.Fprintf(&b, ", %.1f°C", f.TemperatureC.Float64)
			}
			if f.PrecipitationProbabilityPct.Valid {
				fmt.Fprintf(&b, ", %.0f%% chance of rain", f.PrecipitationProbabilityPct.Float64)
			}
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

func writeValue(b *strings.Builder, label, value string, ok bool) {
	if ok {
		fmt.Fprintf(b, "- %s: %s\n", label, value)
	}
}

func writeFloat(b *strings.Builder, label string, v float64, ok bool, unit string) {
	if ok {
		fmt.Fprintf(b, "- %s: %.1f%s\n", label, v, unit)
	}
}
