package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/ifrs9/internal/app"
	"github.com/okian/ifrs9/internal/domain/model"
)

// Default and maximum page sizes for the run history.
const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// RunsDependencies defines the interface for reading run history and
// triggering calculations.
type RunsDependencies interface {
	Runs(ctx context.Context, limit int) ([]model.RunLog, error)
	Run(ctx context.Context, calcDate time.Time, scenarioFilter string) (*service.RunReport, error)
}

// RunsHandler handles run-history queries and run triggers.
type RunsHandler struct {
	deps RunsDependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunsDependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

// HandleRuns dispatches GET (history) and POST (trigger) on /runs.
func (h *RunsHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetRuns(w, r)
	case http.MethodPost:
		h.handlePostRun(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleGetRuns handles GET /runs?limit=N requests.
func (h *RunsHandler) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		if n > maxRunLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded",
				fmt.Errorf("%w: limit above %d", ErrBadRequest, maxRunLimit))
			return
		}
		limit = n
	}

	runs, err := h.deps.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// runRequest is the POST /runs body.
type runRequest struct {
	Date     string `json:"date"`
	Scenario string `json:"scenario,omitempty"`
}

// handlePostRun handles POST /runs requests: it executes a full calculation
// synchronously and returns the run report.
func (h *RunsHandler) handlePostRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("%w: invalid JSON body", ErrBadRequest))
		return
	}

	calcDate, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_date",
			fmt.Errorf("%w: date must be %s", ErrBadRequest, dateLayout))
		return
	}

	report, err := h.deps.Run(r.Context(), calcDate, req.Scenario)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		if errors.Is(err, service.ErrMissingScenario) ||
			errors.Is(err, service.ErrStaleScenario) ||
			errors.Is(err, service.ErrNoLoans) {
			status = http.StatusUnprocessableEntity
			code = "run_rejected"
		}
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
