package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/ifrs9/internal/domain/model"
)

// ResultsDependencies defines the interface for reading committed results.
type ResultsDependencies interface {
	ResultsForDate(ctx context.Context, date time.Time) ([]model.EclResult, error)
}

// ResultsHandler handles committed-result queries.
type ResultsHandler struct {
	deps ResultsDependencies
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultsDependencies) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

// HandleGetResults handles GET /results?date=YYYY-MM-DD[&scenario=Name]
// requests. The scenario filter defaults to the Weighted rows.
func (h *ResultsHandler) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	dateStr := r.URL.Query().Get("date")
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_date",
			fmt.Errorf("%w: date must be %s", ErrBadRequest, dateLayout))
		return
	}

	scenario := r.URL.Query().Get("scenario")
	if scenario == "" {
		scenario = model.ScenarioWeighted
	}

	rows, err := h.deps.ResultsForDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	filtered := make([]model.EclResult, 0, len(rows))
	for _, row := range rows {
		if row.ScenarioName == scenario {
			filtered = append(filtered, row)
		}
	}
	if len(filtered) == 0 {
		writeError(w, http.StatusNotFound, "not_found",
			fmt.Errorf("no %s results for %s", scenario, dateStr))
		return
	}
	writeJSON(w, http.StatusOK, filtered)
}
