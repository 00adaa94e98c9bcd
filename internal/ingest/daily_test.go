package ingest

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lox/wxetl/internal/models"
)

func TestDailyJobsRunAll(t *testing.T) {
	st := setupTestStore(t)
	ctx := t.Context()

	id, err := st.GetOrCreateLocation(ctx, models.Location{Name: "Louisville", CountryCode: "US"})
	if err != nil {
		t.Fatal(err)
	}

	day := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, temp := range []float64{17, 24, 29} {
		_, err := st.InsertObservation(ctx, models.CurrentObservation{
			LocationID:    id,
			ObservedAt:    day.Add(time.Duration(6+6*i) * time.Hour),
			TemperatureC:  sql.NullFloat64{Float64: temp, Valid: true},
			HumidityPct:   sql.NullInt64{Int64: 60, Valid: true},
			ConditionText: sql.NullString{String: "Clear", Valid: true},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	jobs := NewDailyJobs(st, nil)
	if err := jobs.RunAll(ctx, day.Add(15*time.Hour)); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	report, err := st.GetDailyReport(ctx, id, day)
	if err != nil {
		t.Fatal(err)
	}
	if report == nil {
		t.Fatal("expected a report for the day")
	}
	if report.ObservationCount != 3 {
		t.Errorf("observation count = %d, want 3", report.ObservationCount)
	}
	if report.MinTemperatureC.Float64 != 17 || report.MaxTemperatureC.Float64 != 29 {
		t.Errorf("min/max = %v/%v, want 17/29", report.MinTemperatureC.Float64, report.MaxTemperatureC.Float64)
	}

	// A day with nothing observed produces no report and no error.
	if err := jobs.GenerateReports(ctx, day.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("GenerateReports: %v", err)
	}
	if r, _ := st.GetDailyReport(ctx, id, day.AddDate(0, 0, 1)); r != nil {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestDailyJobsNoLocations(t *testing.T) {
	jobs := NewDailyJobs(setupTestStore(t), nil)
	if err := jobs.RunAll(t.Context(), time.Now()); err != nil {
		t.Fatalf("RunAll on an empty store: %v", err)
	}
}
