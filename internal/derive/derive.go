// Package derive computes unit conversions and derived weather metrics
// (heat index, wind chill, rolling z-score anomalies) from numeric series.
// Null inputs propagate to null outputs.
package derive

import (
	"database/sql"
	"math"
)

const (
	DefaultAnomalyWindow    = 24
	DefaultAnomalyThreshold = 2.0

	msToMPH = 2.237
)

func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// thresholdF converts to Fahrenheit rounded to 1e-9 so that a value sitting
// on a threshold after the C->F round trip compares as equal.
func thresholdF(c float64) float64 {
	return math.Round(CelsiusToFahrenheit(c)*1e9) / 1e9
}

// ToFahrenheit converts a Celsius series element-wise.
func ToFahrenheit(temps []sql.NullFloat64) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, len(temps))
	for i, t := range temps {
		if t.Valid {
			out[i] = sql.NullFloat64{Float64: CelsiusToFahrenheit(t.Float64), Valid: true}
		}
	}
	return out
}

// HeatIndex applies the Rothfusz regression. It is only defined above 80°F
// and 40% relative humidity; outside that range the result is null.
func HeatIndex(tempC, humidityPct sql.NullFloat64) sql.NullFloat64 {
	if !tempC.Valid || !humidityPct.Valid {
		return sql.NullFloat64{}
	}
	hi := HeatIndexFahrenheit(thresholdF(tempC.Float64), humidityPct.Float64)
	if !hi.Valid {
		return hi
	}
	return sql.NullFloat64{Float64: FahrenheitToCelsius(hi.Float64), Valid: true}
}

// HeatIndexFahrenheit is HeatIndex with input and output in Fahrenheit.
func HeatIndexFahrenheit(t, rh float64) sql.NullFloat64 {
	if t <= 80 || rh <= 40 {
		return sql.NullFloat64{}
	}

	hi := -42.379 +
		2.04901523*t +
		10.14333127*rh -
		0.22475541*t*rh -
		0.00683783*t*t -
		0.05481717*rh*rh +
		0.00122874*t*t*rh +
		0.00085282*t*rh*rh -
		0.00000199*t*t*rh*rh

	return sql.NullFloat64{Float64: hi, Valid: true}
}

// WindChill applies the NWS wind chill formula, defined below 50°F with wind
// above 3 mph.
func WindChill(tempC, windMS sql.NullFloat64) sql.NullFloat64 {
	if !tempC.Valid || !windMS.Valid {
		return sql.NullFloat64{}
	}
	t := thresholdF(tempC.Float64)
	v := windMS.Float64 * msToMPH
	if t >= 50 || v <= 3 {
		return sql.NullFloat64{}
	}

	vp := math.Pow(v, 0.16)
	wc := 35.74 + 0.6215*t - 35.75*vp + 0.4275*t*vp
	return sql.NullFloat64{Float64: FahrenheitToCelsius(wc), Valid: true}
}

func HeatIndexSeries(temps, humidity []sql.NullFloat64) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, len(temps))
	for i := range temps {
		if i < len(humidity) {
			out[i] = HeatIndex(temps[i], humidity[i])
		}
	}
	return out
}

func WindChillSeries(temps, wind []sql.NullFloat64) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, len(temps))
	for i := range temps {
		if i < len(wind) {
			out[i] = WindChill(temps[i], wind[i])
		}
	}
	return out
}
