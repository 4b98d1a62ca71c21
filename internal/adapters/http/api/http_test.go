package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/ifrs9/internal/adapters/http/api"
	service "github.com/okian/ifrs9/internal/app"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var calcDate = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

// stubDeps serves canned data for the handler tests.
type stubDeps struct {
	results []model.EclResult
	runs    []model.RunLog
}

func (s *stubDeps) GetStats(context.Context) map[string]any {
	return map[string]any{"workerCount": 4}
}

func (s *stubDeps) ResultsForDate(_ context.Context, date time.Time) ([]model.EclResult, error) {
	if !date.Equal(calcDate) {
		return nil, nil
	}
	return s.results, nil
}

func (s *stubDeps) Runs(_ context.Context, limit int) ([]model.RunLog, error) {
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func (s *stubDeps) Run(_ context.Context, date time.Time, scenario string) (*service.RunReport, error) {
	if !date.Equal(calcDate) {
		return nil, service.ErrNoLoans
	}
	return &service.RunReport{
		RunID:           "r3",
		CalculationDate: date,
		LoansProcessed:  2,
	}, nil
}

func newTestServer() *httptest.Server {
	deps := &stubDeps{
		results: []model.EclResult{
			{LoanID: "L0001", ScenarioName: model.ScenarioWeighted, CalculationDate: calcDate,
				ECLFinal: 420, Stage: model.Stage1, ProductType: model.ProductMortgage},
			{LoanID: "L0001", ScenarioName: model.ScenarioBaseline, CalculationDate: calcDate,
				ECLFinal: 380, Stage: model.Stage1, ProductType: model.ProductMortgage},
		},
		runs: []model.RunLog{
			{RunID: "r2", Status: "completed", CalculationDate: calcDate},
			{RunID: "r1", Status: "completed", CalculationDate: calcDate.AddDate(0, -1, 0)},
		},
	}
	mux := http.NewServeMux()
	api.NewServer(deps).Register(mux)
	return httptest.NewServer(mux)
}

func TestHealthz(t *testing.T) {
	Convey("Given the API server", t, func() {
		ts := newTestServer()
		defer ts.Close()

		Convey("When hitting /healthz", func() {
			resp, err := http.Get(ts.URL + "/healthz")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var body map[string]string
			So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
			So(body["status"], ShouldEqual, "ok")
		})

		Convey("When hitting /readyz", func() {
			resp, err := http.Get(ts.URL + "/readyz")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("When scraping /metrics", func() {
			resp, err := http.Get(ts.URL + "/metrics")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given the API server", t, func() {
		ts := newTestServer()
		defer ts.Close()

		Convey("When hitting /stats", func() {
			resp, err := http.Get(ts.URL + "/stats")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var body map[string]any
			So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
			So(body["workerCount"], ShouldEqual, 4.0)
		})
	})
}

func TestResults(t *testing.T) {
	Convey("Given the API server", t, func() {
		ts := newTestServer()
		defer ts.Close()

		Convey("When fetching results without a scenario filter", func() {
			resp, err := http.Get(ts.URL + "/results?date=2024-03-31")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var rows []model.EclResult
			So(json.NewDecoder(resp.Body).Decode(&rows), ShouldBeNil)

			Convey("Then only the Weighted rows come back", func() {
				So(len(rows), ShouldEqual, 1)
				So(rows[0].ScenarioName, ShouldEqual, model.ScenarioWeighted)
			})
		})

		Convey("When filtering by scenario", func() {
			resp, err := http.Get(ts.URL + "/results?date=2024-03-31&scenario=Baseline")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			var rows []model.EclResult
			So(json.NewDecoder(resp.Body).Decode(&rows), ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
			So(rows[0].ECLFinal, ShouldAlmostEqual, 380, 1e-9)
		})

		Convey("When the date is malformed", func() {
			resp, err := http.Get(ts.URL + "/results?date=03/31/2024")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When no results exist for the date", func() {
			resp, err := http.Get(ts.URL + "/results?date=2030-01-31")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRuns(t *testing.T) {
	Convey("Given the API server", t, func() {
		ts := newTestServer()
		defer ts.Close()

		Convey("When listing runs with a limit", func() {
			resp, err := http.Get(ts.URL + "/runs?limit=1")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var runs []model.RunLog
			So(json.NewDecoder(resp.Body).Decode(&runs), ShouldBeNil)
			So(len(runs), ShouldEqual, 1)
			So(runs[0].RunID, ShouldEqual, "r2")
		})

		Convey("When the limit is not a positive integer", func() {
			resp, err := http.Get(ts.URL + "/runs?limit=zero")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the limit exceeds the page cap", func() {
			resp, err := http.Get(ts.URL + "/runs?limit=10000")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestTriggerRun(t *testing.T) {
	Convey("Given the API server", t, func() {
		ts := newTestServer()
		defer ts.Close()

		post := func(body string) *http.Response {
			resp, err := http.Post(ts.URL+"/runs", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			return resp
		}

		Convey("When triggering a run for a seeded date", func() {
			resp := post(`{"date":"2024-03-31"}`)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var report service.RunReport
			So(json.NewDecoder(resp.Body).Decode(&report), ShouldBeNil)
			So(report.RunID, ShouldEqual, "r3")
			So(report.LoansProcessed, ShouldEqual, 2)
		})

		Convey("When the body is not JSON", func() {
			resp := post("not json")
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the date is malformed", func() {
			resp := post(`{"date":"31/03/2024"}`)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the engine rejects the run", func() {
			resp := post(`{"date":"2030-01-31"}`)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
		})
	})
}
