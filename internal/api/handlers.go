package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/ask"
	"github.com/lox/wxetl/internal/derive"
	"github.com/lox/wxetl/internal/models"
)

const (
	defaultAccuracyDays = 7
	maxAccuracyDays     = 90
	defaultIngestDays   = 7
	maxAskBodyBytes     = 4 << 10
	defaultAnomalyDays  = 7
)

// anomalyMetrics maps the metric query parameter to an observation column.
var anomalyMetrics = map[string]func(models.CurrentObservation) sql.NullFloat64{
	"temperature_c": func(o models.CurrentObservation) sql.NullFloat64 { return o.TemperatureC },
	"feels_like_c":  func(o models.CurrentObservation) sql.NullFloat64 { return o.FeelsLikeC },
	"pressure_hpa":  func(o models.CurrentObservation) sql.NullFloat64 { return o.PressureHPa },
	"wind_speed_ms": func(o models.CurrentObservation) sql.NullFloat64 { return o.WindSpeedMS },
	"humidity_pct": func(o models.CurrentObservation) sql.NullFloat64 {
		return sql.NullFloat64{Float64: float64(o.HumidityPct.Int64), Valid: o.HumidityPct.Valid}
	},
}

var temperatureMetrics = map[string]bool{"temperature_c": true, "feels_like_c": true}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthStatus{
			Status:    "error",
			Locations: []LocationHealth{},
			Errors:    []string{"database: " + err.Error()},
		})
		return
	}

	locations, err := s.store.ListLocations(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthStatus{
			Status:    "error",
			Locations: []LocationHealth{},
			Errors:    []string{err.Error()},
		})
		return
	}

	health := HealthStatus{
		Status:    "ok",
		Locations: make([]LocationHealth, 0, len(locations)),
	}
	now := time.Now()

	for _, l := range locations {
		obs, err := s.store.GetLatestObservation(ctx, l.ID)
		if err != nil {
			health.Errors = append(health.Errors, l.Name+": "+err.Error())
			continue
		}

		lh := LocationHealth{LocationID: l.ID, Name: l.Name}
		if obs != nil {
			seen := obs.ObservedAt
			lh.LastSeen = &seen
			lh.AgeMinutes = int(now.Sub(seen).Minutes())
			lh.Stale = now.Sub(seen) > s.staleAfter
		} else {
			lh.Stale = true
			lh.AgeMinutes = -1
		}
		if lh.Stale {
			health.Status = "degraded"
		}
		health.Locations = append(health.Locations, lh)
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if name := q.Get("name"); name != "" {
		country := q.Get("country")
		if country == "" {
			writeError(w, r, http.StatusBadRequest, "invalid_query", "country is required with name")
			return
		}
		l, err := s.store.FindLocation(r.Context(), name, strings.ToUpper(country))
		if err != nil {
			s.writeInternalError(w, r, err)
			return
		}
		views := []LocationView{}
		if l != nil {
			views = append(views, newLocationView(*l))
		}
		writeJSON(w, http.StatusOK, views)
		return
	}

	locations, err := s.store.ListLocations(r.Context())
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	views := make([]LocationView, 0, len(locations))
	for _, l := range locations {
		views = append(views, newLocationView(l))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.lookupLocation(w, r)
	if !ok {
		return
	}
	obs, err := s.store.GetLatestObservation(r.Context(), loc.ID)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	if obs == nil {
		writeError(w, r, http.StatusNotFound, "no_data", "no observations stored for this location")
		return
	}
	writeJSON(w, http.StatusOK, newObservationView(*obs, parseFlags(obs.Flags)))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.lookupLocation(w, r)
	if !ok {
		return
	}
	entries, err := s.store.GetLatestForecasts(r.Context(), loc.ID)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	views := make([]ForecastView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newForecastView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.lookupLocation(w, r)
	if !ok {
		return
	}

	days := defaultAccuracyDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAccuracyDays {
			writeError(w, r, http.StatusBadRequest, "invalid_days", "days must be between 1 and 90")
			return
		}
		days = n
	}

	records, err := s.evaluator.Evaluate(r.Context(), loc.ID, days)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	resp := AccuracyResponse{
		LocationID: loc.ID,
		Days:       days,
		Bands:      make([]AccuracyView, 0, len(records)),
	}
	for _, rec := range records {
		resp.Bands = append(resp.Bands, newAccuracyView(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.lookupLocation(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	metric := q.Get("metric")
	if metric == "" {
		metric = "temperature_c"
	}
	column, ok := anomalyMetrics[metric]
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_metric", "unknown metric "+strconv.Quote(metric))
		return
	}

	units := q.Get("units")
	switch {
	case units == "":
		units = "c"
	case units == "f" && !temperatureMetrics[metric]:
		writeError(w, r, http.StatusBadRequest, "invalid_units", "units=f only applies to temperature metrics")
		return
	case units != "c" && units != "f":
		writeError(w, r, http.StatusBadRequest, "invalid_units", "units must be c or f")
		return
	}

	window := derive.DefaultAnomalyWindow
	if raw := q.Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			writeError(w, r, http.StatusBadRequest, "invalid_window", "window must be an integer of at least 2")
			return
		}
		window = n
	}
	threshold := derive.DefaultAnomalyThreshold
	if raw := q.Get("threshold"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_threshold", "threshold must be positive")
			return
		}
		threshold = f
	}

	end := time.Now().UTC()
	observations, err := s.store.GetObservations(r.Context(), loc.ID, end.AddDate(0, 0, -defaultAnomalyDays), end)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}

	series := make([]sql.NullFloat64, len(observations))
	for i, o := range observations {
		series[i] = column(o)
	}
	if units == "f" {
		series = derive.ToFahrenheit(series)
	}

	resp := AnomalyResponse{
		LocationID: loc.ID,
		Metric:     metric,
		Units:      units,
		Window:     window,
		Threshold:  threshold,
		Samples:    len(series),
		Anomalies:  []AnomalyView{},
	}
	for i, a := range derive.DetectAnomalies(series, window, threshold) {
		if a.Anomalous {
			resp.Anomalies = append(resp.Anomalies, newAnomalyView(observations[i].ObservedAt, a))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.lookupLocation(w, r)
	if !ok {
		return
	}
	date, err := time.ParseInLocation(dateLayout, mux.Vars(r)["date"], s.loc)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	report, err := s.store.GetDailyReport(r.Context(), loc.ID, date)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	if report == nil {
		writeError(w, r, http.StatusNotFound, "no_report", "no report for that date")
		return
	}
	writeJSON(w, http.StatusOK, newDailyReportView(*report, s.loc))
}

func (s *Server) handleIngestHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days := defaultIngestDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
			return
		}
		days = n
	}

	summaries, err := s.store.GetIngestHealth(ctx, days)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	recent, err := s.store.GetRecentIngestErrors(ctx, recentErrorLimit)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	stats, err := s.store.GetRawPayloadStats(ctx)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}

	report := IngestReport{
		Days:         days,
		Summaries:    make([]IngestHealthView, 0, len(summaries)),
		RecentErrors: make([]IngestErrorView, 0, len(recent)),
		RawPayloads:  newRawPayloadStatsView(stats),
	}
	for _, h := range summaries {
		report.Summaries = append(report.Summaries, newIngestHealthView(h))
	}
	for _, run := range recent {
		report.RecentErrors = append(report.RecentErrors, newIngestErrorView(run))
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.asker == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ask_disabled", "question answering is not configured")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "body must be JSON with a question field")
		return
	}

	answer, err := s.asker.Ask(r.Context(), req.Question, req.LocationID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, answer)
	case errors.Is(err, ask.ErrEmptyQuestion):
		writeError(w, r, http.StatusBadRequest, "empty_question", err.Error())
	case errors.Is(err, ask.ErrUnknownLocation), errors.Is(err, ask.ErrNoData):
		writeError(w, r, http.StatusNotFound, "no_data", err.Error())
	default:
		s.logger.Warn("ask failed", zap.Error(err), zap.String("correlation_id", correlationID(r.Context())))
		writeError(w, r, http.StatusBadGateway, "upstream_error", "unable to answer right now")
	}
}

// lookupLocation resolves the {id} route variable, writing a 404 when the
// location is unknown.
func (s *Server) lookupLocation(w http.ResponseWriter, r *http.Request) (*models.Location, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_id", "location id must be numeric")
		return nil, false
	}
	loc, err := s.store.GetLocation(r.Context(), id)
	if err != nil {
		s.writeInternalError(w, r, err)
		return nil, false
	}
	if loc == nil {
		writeError(w, r, http.StatusNotFound, "unknown_location", "no location with that id")
		return nil, false
	}
	return loc, true
}

func parseFlags(raw string) []string {
	flags := []string{}
	gjson.Parse(raw).ForEach(func(_, v gjson.Result) bool {
		flags = append(flags, v.String())
		return true
	})
	return flags
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": {"code", "message", "requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r.Context()),
		},
	})
}

func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("correlation_id", correlationID(r.Context())),
		zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
}
