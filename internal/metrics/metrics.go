package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_upstream_calls_total",
			Help: "Total OpenWeatherMap API calls",
		},
		[]string{"source", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wxetl_upstream_latency_seconds",
			Help:    "OpenWeatherMap API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ForecastSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_forecast_source_failures_total",
			Help: "Forecast source attempts that failed and fell through to the next source",
		},
		[]string{"source"},
	)

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_observations_ingested_total",
			Help: "Total observations successfully ingested",
		},
		[]string{"location"},
	)

	ForecastsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_forecasts_ingested_total",
			Help: "Total forecast entries successfully ingested",
		},
		[]string{"location", "source"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_records_skipped_total",
			Help: "Records skipped because required fields were missing",
		},
		[]string{"kind"},
	)

	RawPayloadsArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_raw_payloads_total",
			Help: "Raw upstream payloads handled by the archive, by outcome",
		},
		[]string{"source", "outcome"},
	)

	ForecastChunksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wxetl_forecast_chunks_failed_total",
			Help: "Forecast insert chunks rolled back",
		},
	)

	DBRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_db_retries_total",
			Help: "Database operations retried after a transient failure",
		},
		[]string{"op"},
	)

	CollectionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_collection_runs_total",
			Help: "Collection cycles by outcome",
		},
		[]string{"status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxetl_http_requests_total",
			Help: "Total HTTP requests served by the ops API",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wxetl_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
