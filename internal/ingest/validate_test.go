package ingest

import (
	"database/sql"
	"encoding/json"
	"slices"
	"sort"
	"testing"

	"github.com/lox/wxetl/internal/models"
)

func TestValidateObservation(t *testing.T) {
	tests := []struct {
		name      string
		obs       *models.CurrentObservation
		wantFlags []string
	}{
		{
			name: "valid observation - no flags",
			obs: &models.CurrentObservation{
				TemperatureC:     sql.NullFloat64{Float64: 25.0, Valid: true},
				HumidityPct:      sql.NullInt64{Int64: 60, Valid: true},
				WindDirectionDeg: sql.NullInt64{Int64: 180, Valid: true},
				WindSpeedMS:      sql.NullFloat64{Float64: 4.2, Valid: true},
				PressureHPa:      sql.NullFloat64{Float64: 1013.0, Valid: true},
				CloudPct:         sql.NullInt64{Int64: 40, Valid: true},
				PrecipitationMM:  sql.NullFloat64{Float64: 0.0, Valid: true},
			},
			wantFlags: nil,
		},
		{
			name:      "temp too cold",
			obs:       &models.CurrentObservation{TemperatureC: sql.NullFloat64{Float64: -95.0, Valid: true}},
			wantFlags: []string{FlagTempOutOfRange},
		},
		{
			name:      "temp too hot",
			obs:       &models.CurrentObservation{TemperatureC: sql.NullFloat64{Float64: 61.0, Valid: true}},
			wantFlags: []string{FlagTempOutOfRange},
		},
		{
			name:      "temp at hot boundary - valid",
			obs:       &models.CurrentObservation{TemperatureC: sql.NullFloat64{Float64: 60.0, Valid: true}},
			wantFlags: nil,
		},
		{
			name:      "humidity negative",
			obs:       &models.CurrentObservation{HumidityPct: sql.NullInt64{Int64: -5, Valid: true}},
			wantFlags: []string{FlagHumidityInvalid},
		},
		{
			name:      "humidity over 100",
			obs:       &models.CurrentObservation{HumidityPct: sql.NullInt64{Int64: 105, Valid: true}},
			wantFlags: []string{FlagHumidityInvalid},
		},
		{
			name:      "wind direction over 360",
			obs:       &models.CurrentObservation{WindDirectionDeg: sql.NullInt64{Int64: 400, Valid: true}},
			wantFlags: []string{FlagWindDirInvalid},
		},
		{
			name:      "wind speed negative",
			obs:       &models.CurrentObservation{WindSpeedMS: sql.NullFloat64{Float64: -1.0, Valid: true}},
			wantFlags: []string{FlagWindSpeedUnlikely},
		},
		{
			name:      "pressure at low boundary - valid",
			obs:       &models.CurrentObservation{PressureHPa: sql.NullFloat64{Float64: 850.0, Valid: true}},
			wantFlags: nil,
		},
		{
			name:      "pressure too high",
			obs:       &models.CurrentObservation{PressureHPa: sql.NullFloat64{Float64: 1150.0, Valid: true}},
			wantFlags: []string{FlagPressureOutOfRange},
		},
		{
			name:      "cloud cover over 100",
			obs:       &models.CurrentObservation{CloudPct: sql.NullInt64{Int64: 120, Valid: true}},
			wantFlags: []string{FlagCloudInvalid},
		},
		{
			name:      "precip negative",
			obs:       &models.CurrentObservation{PrecipitationMM: sql.NullFloat64{Float64: -2.0, Valid: true}},
			wantFlags: []string{FlagPrecipNegative},
		},
		{
			name: "multiple flags - temp and humidity",
			obs: &models.CurrentObservation{
				TemperatureC: sql.NullFloat64{Float64: 70.0, Valid: true},
				HumidityPct:  sql.NullInt64{Int64: 150, Valid: true},
			},
			wantFlags: []string{FlagTempOutOfRange, FlagHumidityInvalid},
		},
		{
			name:      "null fields - no flags",
			obs:       &models.CurrentObservation{},
			wantFlags: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateObservation(tt.obs)
			sort.Strings(got)
			want := append([]string(nil), tt.wantFlags...)
			sort.Strings(want)
			if !slices.Equal(got, want) {
				t.Errorf("ValidateObservation() = %v, want %v", got, want)
			}
		})
	}
}

func TestConditionFlags(t *testing.T) {
	tests := []struct {
		name string
		obs  *models.CurrentObservation
		want []string
	}{
		{
			name: "mild day",
			obs: &models.CurrentObservation{
				TemperatureC: sql.NullFloat64{Float64: 22, Valid: true},
				WindSpeedMS:  sql.NullFloat64{Float64: 3, Valid: true},
				HumidityPct:  sql.NullInt64{Int64: 55, Valid: true},
			},
			want: nil,
		},
		{
			name: "hot, dry and windy",
			obs: &models.CurrentObservation{
				TemperatureC: sql.NullFloat64{Float64: 38, Valid: true},
				WindSpeedMS:  sql.NullFloat64{Float64: 12, Valid: true},
				HumidityPct:  sql.NullInt64{Int64: 15, Valid: true},
			},
			want: []string{FlagExtremeHeat, FlagHighWind, FlagVeryDry},
		},
		{
			name: "cold and humid",
			obs: &models.CurrentObservation{
				TemperatureC: sql.NullFloat64{Float64: -8, Valid: true},
				HumidityPct:  sql.NullInt64{Int64: 95, Valid: true},
			},
			want: []string{FlagExtremeCold, FlagVeryHumid},
		},
		{
			name: "thresholds are exclusive",
			obs: &models.CurrentObservation{
				TemperatureC: sql.NullFloat64{Float64: 35, Valid: true},
				WindSpeedMS:  sql.NullFloat64{Float64: 10.7, Valid: true},
				HumidityPct:  sql.NullInt64{Int64: 90, Valid: true},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConditionFlags(tt.obs); !slices.Equal(got, tt.want) {
				t.Errorf("ConditionFlags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlagsToJSON(t *testing.T) {
	tests := []struct {
		name      string
		flags     []string
		wantEmpty bool
	}{
		{name: "empty flags", flags: []string{}, wantEmpty: true},
		{name: "nil flags", flags: nil, wantEmpty: true},
		{name: "single flag", flags: []string{FlagTempOutOfRange}},
		{name: "multiple flags", flags: []string{FlagTempOutOfRange, FlagExtremeHeat}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlagsToJSON(tt.flags)
			if tt.wantEmpty {
				if got != "" {
					t.Errorf("FlagsToJSON() = %q, want empty", got)
				}
				return
			}
			var parsed []string
			if err := json.Unmarshal([]byte(got), &parsed); err != nil {
				t.Fatalf("failed to unmarshal result: %v", err)
			}
			if !slices.Equal(parsed, tt.flags) {
				t.Errorf("FlagsToJSON() parsed = %v, want %v", parsed, tt.flags)
			}
		})
	}
}
