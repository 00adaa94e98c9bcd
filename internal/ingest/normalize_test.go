package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// 2024-07-01 00:00:00 UTC
const july1 int64 = 1719792000

var collectedAt = time.Date(2024, 6, 30, 22, 0, 0, 0, time.UTC)

func TestNormalizeFiveDayTwoDays(t *testing.T) {
	raw := fmt.Sprintf(`{
		"list": [
			{"dt": %d, "main": {"temp": 19, "temp_min": 18, "temp_max": 19, "humidity": 60},
			 "weather": [{"main": "Clouds", "description": "broken clouds"}], "pop": 0.2, "rain": {"3h": 0.5}},
			{"dt": %d, "main": {"temp": 20, "temp_min": 19, "temp_max": 20, "humidity": 55},
			 "weather": [{"main": "Rain", "description": "light rain"}], "pop": 0.6, "rain": {"3h": 1.25}},
			{"dt": %d, "main": {"temp": 25}}
		],
		"city": {"name": "Louisville", "country": "US"}
	}`, july1, july1+3*3600, july1+24*3600)

	entries, err := NormalizeFiveDay([]byte(raw), collectedAt)
	if err != nil {
		t.Fatalf("NormalizeFiveDay: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	day1 := entries[0]
	if day1.TempMinC.Float64 != 18 || day1.TempMaxC.Float64 != 20 {
		t.Errorf("day 1 min/max = %v/%v, want 18/20", day1.TempMinC.Float64, day1.TempMaxC.Float64)
	}
	if day1.TemperatureC.Float64 != 19 {
		t.Errorf("day 1 temperature = %v, want first step's 19", day1.TemperatureC.Float64)
	}
	if day1.ConditionCode.String != "Clouds" || day1.ConditionText.String != "broken clouds" {
		t.Errorf("day 1 condition = %q/%q, want first step's", day1.ConditionCode.String, day1.ConditionText.String)
	}
	if day1.PrecipitationMM.Float64 != 1.75 {
		t.Errorf("day 1 precipitation = %v, want 1.75", day1.PrecipitationMM.Float64)
	}
	if day1.PrecipitationProbabilityPct.Float64 != 20 {
		t.Errorf("day 1 pop = %v, want 20", day1.PrecipitationProbabilityPct.Float64)
	}
	if day1.HumidityPct.Int64 != 60 {
		t.Errorf("day 1 humidity = %d, want 60", day1.HumidityPct.Int64)
	}
	if !day1.ValidAt.Equal(time.Unix(july1, 0)) {
		t.Errorf("day 1 valid_at = %v", day1.ValidAt)
	}
	if !day1.CollectedAt.Equal(collectedAt) {
		t.Errorf("day 1 collected_at = %v", day1.CollectedAt)
	}
	var steps []json.RawMessage
	if err := json.Unmarshal([]byte(day1.RawJSON), &steps); err != nil || len(steps) != 2 {
		t.Errorf("day 1 raw should hold its 2 steps, got %d (%v)", len(steps), err)
	}

	day2 := entries[1]
	if day2.TempMinC.Float64 != 25 || day2.TempMaxC.Float64 != 25 {
		t.Errorf("day 2 min/max = %v/%v, want 25/25", day2.TempMinC.Float64, day2.TempMaxC.Float64)
	}
	if !day2.PrecipitationMM.Valid || day2.PrecipitationMM.Float64 != 0 {
		t.Errorf("day 2 precipitation = %v, want 0", day2.PrecipitationMM)
	}
	if day2.ConditionCode.Valid {
		t.Errorf("day 2 condition should be null, got %q", day2.ConditionCode.String)
	}
}

func TestNormalizeFiveDayGroupsByLocalDate(t *testing.T) {
	// UTC-4: 02:00 UTC on July 2 is still July 1 locally.
	raw := fmt.Sprintf(`{
		"list": [
			{"dt": %d, "main": {"temp": 30}},
			{"dt": %d, "main": {"temp": 22}},
			{"dt": %d, "main": {"temp": 20}}
		],
		"city": {"timezone": -14400}
	}`, july1+18*3600, july1+26*3600, july1+29*3600)

	entries, err := NormalizeFiveDay([]byte(raw), collectedAt)
	if err != nil {
		t.Fatalf("NormalizeFiveDay: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].TempMinC.Float64 != 22 || entries[0].TempMaxC.Float64 != 30 {
		t.Errorf("local day 1 min/max = %v/%v, want 22/30", entries[0].TempMinC.Float64, entries[0].TempMaxC.Float64)
	}
	if entries[1].TempMinC.Float64 != 20 {
		t.Errorf("local day 2 min = %v, want 20", entries[1].TempMinC.Float64)
	}
}

func TestNormalizeFiveDaySkipsStepsWithoutTimestamp(t *testing.T) {
	raw := fmt.Sprintf(`{"list": [{"main": {"temp": 40}}, {"dt": %d, "main": {"temp": 21}}]}`, july1)

	entries, err := NormalizeFiveDay([]byte(raw), collectedAt)
	if err != nil {
		t.Fatalf("NormalizeFiveDay: %v", err)
	}
	if len(entries) != 1 || entries[0].TempMaxC.Float64 != 21 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"not an object", `[1, 2, 3]`, ErrUnrecognizedPayload},
		{"not json", `<html>`, ErrUnrecognizedPayload},
		{"missing list", `{"cod": "200"}`, ErrUnrecognizedPayload},
		{"list is not an array", `{"list": {"dt": 1}}`, ErrUnrecognizedPayload},
		{"empty list", `{"list": []}`, ErrEmptyForecast},
		{"only undated steps", `{"list": [{"main": {"temp": 1}}]}`, ErrEmptyForecast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeFiveDay([]byte(tt.raw), collectedAt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func dailyList(n int, tmpl func(i int) string) string {
	items := make([]string, n)
	for i := range items {
		items[i] = tmpl(i)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestNormalizeOneCall(t *testing.T) {
	daily := dailyList(10, func(i int) string {
		return fmt.Sprintf(`{"dt": %d, "temp": {"day": %d, "min": %d, "max": %d}, "feels_like": {"day": %d},
			"humidity": 50, "pressure": 1012, "wind_speed": 4.5, "wind_deg": 200, "clouds": 75,
			"pop": 0.45, "rain": 2.5, "weather": [{"main": "Rain", "description": "moderate rain"}]}`,
			july1+int64(i)*86400, 20+i, 15+i, 25+i, 19+i)
	})
	raw := []byte(`{"lat": 38.25, "lon": -85.76, "timezone": "America/Kentucky/Louisville", "daily": ` + daily + `}`)

	tests := []struct {
		days int
		want int
	}{
		{3, 3},
		{8, 8},
		{20, 8},
		{0, 0},
		{-3, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("days=%d", tt.days), func(t *testing.T) {
			entries, err := NormalizeOneCall(raw, tt.days, collectedAt)
			if err != nil {
				t.Fatalf("NormalizeOneCall: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}

	entries, _ := NormalizeOneCall(raw, 2, collectedAt)
	e := entries[1]
	if e.TemperatureC.Float64 != 21 || e.TempMinC.Float64 != 16 || e.TempMaxC.Float64 != 26 || e.FeelsLikeC.Float64 != 20 {
		t.Errorf("temps = %v/%v/%v/%v", e.TemperatureC.Float64, e.TempMinC.Float64, e.TempMaxC.Float64, e.FeelsLikeC.Float64)
	}
	if e.WindSpeedMS.Float64 != 4.5 || e.WindDirectionDeg.Int64 != 200 {
		t.Errorf("wind = %v @ %d", e.WindSpeedMS.Float64, e.WindDirectionDeg.Int64)
	}
	if e.PrecipitationProbabilityPct.Float64 != 45 || e.PrecipitationMM.Float64 != 2.5 {
		t.Errorf("precip = %v%% %vmm", e.PrecipitationProbabilityPct.Float64, e.PrecipitationMM.Float64)
	}
	if e.CloudPct.Int64 != 75 || e.ConditionCode.String != "Rain" {
		t.Errorf("clouds = %d, condition = %q", e.CloudPct.Int64, e.ConditionCode.String)
	}
	if !e.ValidAt.Equal(time.Unix(july1+86400, 0)) {
		t.Errorf("valid_at = %v", e.ValidAt)
	}
}

func TestNormalizeDaily(t *testing.T) {
	list := dailyList(20, func(i int) string {
		return fmt.Sprintf(`{"dt": %d, "temp": {"day": 22, "min": 17, "max": 27}, "speed": 3.1, "deg": 90, "pop": 1, "clouds": 10}`,
			july1+int64(i)*86400)
	})
	raw := []byte(`{"city": {"name": "Louisville", "coord": {"lat": 38.25, "lon": -85.76}, "timezone": -14400}, "cnt": 20, "list": ` + list + `}`)

	tests := []struct {
		days int
		want int
	}{
		{7, 7},
		{16, 16},
		{30, 16},
		{-3, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("days=%d", tt.days), func(t *testing.T) {
			entries, err := NormalizeDaily(raw, tt.days, collectedAt)
			if err != nil {
				t.Fatalf("NormalizeDaily: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}

	entries, _ := NormalizeDaily(raw, 1, collectedAt)
	e := entries[0]
	if e.WindSpeedMS.Float64 != 3.1 || e.WindDirectionDeg.Int64 != 90 {
		t.Errorf("wind = %v @ %d, want 3.1 @ 90", e.WindSpeedMS.Float64, e.WindDirectionDeg.Int64)
	}
	if e.PrecipitationProbabilityPct.Float64 != 100 {
		t.Errorf("pop = %v, want 100", e.PrecipitationProbabilityPct.Float64)
	}
	if e.PrecipitationMM.Valid {
		t.Errorf("precipitation should be null when rain is absent")
	}
}

func TestNormalizeDailyKeepsUndatedEntries(t *testing.T) {
	raw := fmt.Sprintf(`{"list": [{"temp": {"day": 10}}, {"dt": %d, "temp": {"day": 12}}]}`, july1)

	entries, err := NormalizeDaily([]byte(raw), 5, collectedAt)
	if err != nil {
		t.Fatalf("NormalizeDaily: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if !entries[0].ValidAt.IsZero() {
		t.Errorf("undated entry valid_at = %v, want zero", entries[0].ValidAt)
	}
}

func TestPrecipProbability(t *testing.T) {
	tests := []struct {
		pop  float64
		want float64
	}{
		{0, 0},
		{0.07, 7},
		{0.555, 55.5},
		{1, 100},
		{45, 45},
	}
	for _, tt := range tests {
		v := tt.pop
		if got := precipProbability(&v); got.Float64 != tt.want {
			t.Errorf("precipProbability(%v) = %v, want %v", tt.pop, got.Float64, tt.want)
		}
	}
	if precipProbability(nil).Valid {
		t.Error("precipProbability(nil) should be null")
	}
}
