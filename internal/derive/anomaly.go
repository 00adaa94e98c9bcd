package derive

import (
	"database/sql"
	"math"
)

type Anomaly struct {
	Value     sql.NullFloat64
	Mean      sql.NullFloat64
	StdDev    sql.NullFloat64
	ZScore    sql.NullFloat64
	Anomalous bool
}

// DetectAnomalies scores each point against the window samples before it.
// Points with fewer than window predecessors, or with a null anywhere in the
// window, get a null z-score and are never flagged.
//
// A flat window (zero stddev) has no defined z-score; the point is flagged
// when it differs from the window mean at all.
func DetectAnomalies(values []sql.NullFloat64, window int, threshold float64) []Anomaly {
	if window <= 1 {
		window = DefaultAnomalyWindow
	}
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}

	out := make([]Anomaly, len(values))
	for i, v := range values {
		out[i].Value = v
		if i < window || !v.Valid {
			continue
		}

		mean, std, ok := windowStats(values[i-window : i])
		if !ok {
			continue
		}
		out[i].Mean = sql.NullFloat64{Float64: mean, Valid: true}
		out[i].StdDev = sql.NullFloat64{Float64: std, Valid: true}

		if std == 0 {
			out[i].Anomalous = v.Float64 != mean
			continue
		}

		z := (v.Float64 - mean) / std
		out[i].ZScore = sql.NullFloat64{Float64: z, Valid: true}
		out[i].Anomalous = math.Abs(z) > threshold
	}
	return out
}

func windowStats(w []sql.NullFloat64) (mean, std float64, ok bool) {
	var sum float64
	for _, v := range w {
		if !v.Valid {
			return 0, 0, false
		}
		sum += v.Float64
	}
	mean = sum / float64(len(w))

	var ss float64
	for _, v := range w {
		d := v.Float64 - mean
		ss += d * d
	}
	std = math.Sqrt(ss / float64(len(w)-1))
	return mean, std, true
}
