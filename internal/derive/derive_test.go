package derive

import (
	"database/sql"
	"math"
	"testing"
)

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func TestCelsiusFahrenheitRoundTrip(t *testing.T) {
	for _, c := range []float64{-40, -17.5, 0, 0.1, 21.3, 37, 100, 1e6} {
		got := FahrenheitToCelsius(CelsiusToFahrenheit(c))
		if math.Abs(got-c) > 1e-9 {
			t.Errorf("round trip %v = %v", c, got)
		}
	}
	if got := CelsiusToFahrenheit(100); got != 212 {
		t.Errorf("CelsiusToFahrenheit(100) = %v, want 212", got)
	}
	if got := CelsiusToFahrenheit(-40); got != -40 {
		t.Errorf("CelsiusToFahrenheit(-40) = %v, want -40", got)
	}
}

func TestToFahrenheitPreservesNulls(t *testing.T) {
	out := ToFahrenheit([]sql.NullFloat64{nf(0), {}, nf(100)})
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if !out[0].Valid || out[0].Float64 != 32 {
		t.Errorf("out[0] = %+v, want 32", out[0])
	}
	if out[1].Valid {
		t.Errorf("out[1] = %+v, want null", out[1])
	}
	if !out[2].Valid || out[2].Float64 != 212 {
		t.Errorf("out[2] = %+v, want 212", out[2])
	}
}

func TestHeatIndex(t *testing.T) {
	tests := []struct {
		name     string
		tempF    float64
		rh       float64
		wantNull bool
		wantF    float64
	}{
		{name: "humidity exactly 40", tempF: 95, rh: 40, wantNull: true},
		{name: "temp exactly 80", tempF: 80, rh: 70, wantNull: true},
		{name: "cool", tempF: 70, rh: 90, wantNull: true},
		{name: "dry", tempF: 100, rh: 20, wantNull: true},
		{name: "hot humid", tempF: 90, rh: 60, wantF: 100},
		{name: "very hot humid", tempF: 96, rh: 65, wantF: 121},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeatIndexFahrenheit(tt.tempF, tt.rh)
			if tt.wantNull {
				if got.Valid {
					t.Errorf("HeatIndexFahrenheit(%v, %v) = %v, want null", tt.tempF, tt.rh, got.Float64)
				}
				return
			}
			if !got.Valid {
				t.Fatalf("HeatIndexFahrenheit(%v, %v) = null", tt.tempF, tt.rh)
			}
			if math.Abs(got.Float64-tt.wantF) > 1.5 {
				t.Errorf("HeatIndexFahrenheit(%v, %v) = %.1f, want ~%.0f", tt.tempF, tt.rh, got.Float64, tt.wantF)
			}
		})
	}
}

func TestHeatIndexCelsiusBoundaries(t *testing.T) {
	if got := HeatIndex(nf(FahrenheitToCelsius(80)), nf(70)); got.Valid {
		t.Errorf("HeatIndex at 80F = %v, want null", got.Float64)
	}
	if got := HeatIndex(nf(35), nf(40)); got.Valid {
		t.Errorf("HeatIndex at RH 40 = %v, want null", got.Float64)
	}
	if got := HeatIndex(sql.NullFloat64{}, nf(70)); got.Valid {
		t.Error("HeatIndex with null temp should be null")
	}

	got := HeatIndex(nf(32), nf(60))
	if !got.Valid {
		t.Fatal("HeatIndex(32C, 60%) should be valid")
	}
	if got.Float64 <= 32 {
		t.Errorf("HeatIndex(32C, 60%%) = %.2f, want above air temperature", got.Float64)
	}
}

func TestWindChill(t *testing.T) {
	tests := []struct {
		name     string
		tempC    sql.NullFloat64
		windMS   sql.NullFloat64
		wantNull bool
	}{
		{name: "cold and windy", tempC: nf(-10), windMS: nf(10)},
		{name: "exactly 50F", tempC: nf(10), windMS: nf(10), wantNull: true},
		{name: "warm", tempC: nf(20), windMS: nf(10), wantNull: true},
		{name: "calm", tempC: nf(-10), windMS: nf(1), wantNull: true},
		{name: "null wind", tempC: nf(-10), windMS: sql.NullFloat64{}, wantNull: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WindChill(tt.tempC, tt.windMS)
			if got.Valid == tt.wantNull {
				t.Fatalf("WindChill valid = %v, want %v", got.Valid, !tt.wantNull)
			}
			if got.Valid && got.Float64 >= tt.tempC.Float64 {
				t.Errorf("WindChill = %.2f, want below air temperature %.1f", got.Float64, tt.tempC.Float64)
			}
		})
	}

	// -10C (14F) at 10 m/s is roughly -4.5F.
	got := WindChill(nf(-10), nf(10))
	if want := FahrenheitToCelsius(-4.5); math.Abs(got.Float64-want) > 0.5 {
		t.Errorf("WindChill(-10, 10) = %.2f, want ~%.2f", got.Float64, want)
	}
}

func TestSeries(t *testing.T) {
	temps := []sql.NullFloat64{nf(32), nf(-10), {}}
	hum := []sql.NullFloat64{nf(60), nf(80), nf(50)}
	wind := []sql.NullFloat64{nf(2), nf(10), nf(5)}

	hi := HeatIndexSeries(temps, hum)
	if !hi[0].Valid || hi[1].Valid || hi[2].Valid {
		t.Errorf("HeatIndexSeries validity = %v %v %v, want true false false", hi[0].Valid, hi[1].Valid, hi[2].Valid)
	}
	wc := WindChillSeries(temps, wind)
	if wc[0].Valid || !wc[1].Valid || wc[2].Valid {
		t.Errorf("WindChillSeries validity = %v %v %v, want false true false", wc[0].Valid, wc[1].Valid, wc[2].Valid)
	}
}
