// Package api declares HTTP contracts and route registration helpers for
// the reporting surface: run history, committed results and engine stats.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	service "github.com/okian/ifrs9/internal/app"
	"github.com/okian/ifrs9/internal/domain/model"
)

// dateLayout is the wire format for calculation dates.
const dateLayout = "2006-01-02"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the engine.
type Dependencies interface {
	// GetStats returns engine statistics for the ops endpoint.
	GetStats(ctx context.Context) map[string]any

	// ResultsForDate returns the committed ECL rows for a calculation date.
	ResultsForDate(ctx context.Context, date time.Time) ([]model.EclResult, error)

	// Runs returns the most recent run logs, newest first.
	Runs(ctx context.Context, limit int) ([]model.RunLog, error)

	// Run executes a full calculation for the date, optionally narrowed to
	// one scenario, and commits the results.
	Run(ctx context.Context, calcDate time.Time, scenarioFilter string) (*service.RunReport, error)
}

// Server wires HTTP routes for the reporting API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	resultsHandler *ResultsHandler
	runsHandler    *RunsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		resultsHandler: NewResultsHandler(deps),
		runsHandler:    NewRunsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/readyz", MetricsMiddleware(s.healthHandler.HandleReady, "readyz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/results", MetricsMiddleware(s.resultsHandler.HandleGetResults, "results"))
	mux.HandleFunc("/runs", MetricsMiddleware(s.runsHandler.HandleRuns, "runs"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
