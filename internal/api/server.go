// Package api serves the read-only ops API: health, metrics, stored
// observations, forecasts, daily reports, accuracy, anomalies and ingest
// health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/ask"
	"github.com/lox/wxetl/internal/forecast"
	"github.com/lox/wxetl/internal/store"
)

const (
	dateLayout        = "2006-01-02"
	defaultStaleAfter = 2 * time.Hour
	recentErrorLimit  = 20
)

// Asker answers free-form questions about stored weather.
type Asker interface {
	Ask(ctx context.Context, question string, locationID int64) (*ask.Answer, error)
}

type Server struct {
	store      *store.Store
	evaluator  *forecast.Evaluator
	asker      Asker
	port       string
	loc        *time.Location
	staleAfter time.Duration
	logger     *zap.Logger
}

func NewServer(st *store.Store, port string, loc *time.Location, logger *zap.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:      st,
		evaluator:  forecast.NewEvaluator(st),
		port:       port,
		loc:        loc,
		staleAfter: defaultStaleAfter,
		logger:     logger.Named("api"),
	}
}

// SetAsker enables POST /api/ask. Without one the endpoint answers 503.
func (s *Server) SetAsker(a Asker) {
	s.asker = a
}

// SetStaleAfter sets how old the newest observation may get before /health
// reports the location as stale.
func (s *Server) SetStaleAfter(d time.Duration) {
	if d > 0 {
		s.staleAfter = d
	}
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware, LoggingMiddleware(s.logger), MetricsMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/locations", s.handleLocations).Methods(http.MethodGet)
	apiRouter.HandleFunc("/locations/{id:[0-9]+}/latest", s.handleLatest).Methods(http.MethodGet)
	apiRouter.HandleFunc("/locations/{id:[0-9]+}/forecast", s.handleForecast).Methods(http.MethodGet)
	apiRouter.HandleFunc("/locations/{id:[0-9]+}/accuracy", s.handleAccuracy).Methods(http.MethodGet)
	apiRouter.HandleFunc("/locations/{id:[0-9]+}/anomalies", s.handleAnomalies).Methods(http.MethodGet)
	apiRouter.HandleFunc("/locations/{id:[0-9]+}/reports/{date}", s.handleReport).Methods(http.MethodGet)
	apiRouter.HandleFunc("/ingest/health", s.handleIngestHealth).Methods(http.MethodGet)
	apiRouter.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no such endpoint")
	})
	return router
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
