package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/ifrs9/internal/adapters/repository"
	service "github.com/okian/ifrs9/internal/app"
	"github.com/okian/ifrs9/internal/config"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/monitor"
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

func openStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	s, err := repository.Open(filepath.Join(t.TempDir(), "ecl.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedMacros(ctx context.Context, t *testing.T, s *repository.SQLStore, forecastDate time.Time) {
	t.Helper()
	macros := []model.MacroScenario{
		{ScenarioName: model.ScenarioBaseline, ForecastDate: forecastDate,
			UnemploymentRate: 5.5, GDPGrowthYoY: 2.0, PolicyRate: 3.0, HPIChangeYoY: 3.0},
		{ScenarioName: model.ScenarioAdverse, ForecastDate: forecastDate,
			UnemploymentRate: 8.5, GDPGrowthYoY: -3.0, PolicyRate: 5.0, HPIChangeYoY: -12.0},
		{ScenarioName: model.ScenarioSevere, ForecastDate: forecastDate,
			UnemploymentRate: 10.0, GDPGrowthYoY: -5.5, PolicyRate: 6.0, HPIChangeYoY: -19.5},
	}
	if err := s.SaveMacros(ctx, macros); err != nil {
		t.Fatalf("seed macros: %v", err)
	}
}

// seedBook loads three loans: a clean mortgage, a 35-DPD credit card and a
// 120-DPD personal loan. The personal loan has no calibrated model input.
func seedBook(ctx context.Context, t *testing.T, s *repository.SQLStore) {
	t.Helper()
	loans := []model.Loan{
		{LoanID: "L0001", CustomerID: "C1", ProductType: model.ProductMortgage, Province: "ON",
			OriginationDate: calcDate.AddDate(-2, 0, 0), OriginalAmount: 400_000,
			InterestRate: 0.045, CreditScore: 720, LoanToValue: 0.80},
		{LoanID: "L0002", CustomerID: "C2", ProductType: model.ProductCreditCard, Province: "AB",
			OriginationDate: calcDate.AddDate(-1, 0, 0), OriginalAmount: 10_000,
			InterestRate: 0.1999, CreditScore: 650},
		{LoanID: "L0003", CustomerID: "C3", ProductType: model.ProductPersonalLoan, Province: "BC",
			OriginationDate: calcDate.AddDate(0, -30, 0), OriginalAmount: 25_000,
			InterestRate: 0.09, CreditScore: 590},
	}
	if err := s.SaveLoans(ctx, loans); err != nil {
		t.Fatalf("seed loans: %v", err)
	}

	payments := []model.PaymentObservation{
		{LoanID: "L0001", PaymentDate: calcDate.AddDate(0, -1, 0), ScheduledAmount: 2000, ActualAmount: 2000},
		{LoanID: "L0001", PaymentDate: calcDate, ScheduledAmount: 2000, ActualAmount: 2000},
		{LoanID: "L0002", PaymentDate: calcDate, ScheduledAmount: 300, ActualAmount: 0, DaysPastDue: 35},
		{LoanID: "L0003", PaymentDate: calcDate, ScheduledAmount: 500, ActualAmount: 0, DaysPastDue: 120},
	}
	if err := s.SavePayments(ctx, payments); err != nil {
		t.Fatalf("seed payments: %v", err)
	}

	inputs := []model.ModelInput{
		{LoanID: "L0001", PD12M: 0.01, PDAtOrigination: 0.012, LGDBase: 0.10},
		{LoanID: "L0002", PD12M: 0.06, PDAtOrigination: 0.04, LGDBase: 0.75},
	}
	if err := s.SaveModelInputs(ctx, inputs); err != nil {
		t.Fatalf("seed inputs: %v", err)
	}
}

func newService(store *repository.SQLStore) *service.Service {
	return service.New(store, config.New(), service.WithWorkerCount(2), service.WithQueueSize(64))
}

func TestRunEndToEnd(t *testing.T) {
	Convey("Given a seeded portfolio and fresh macro forecasts", t, func() {
		ctx := context.Background()
		store := openStore(t)
		seedBook(ctx, t, store)
		seedMacros(ctx, t, store, calcDate)
		svc := newService(store)

		Convey("When running the full weighted calculation", func() {
			report, err := svc.Run(ctx, calcDate, "")
			So(err, ShouldBeNil)

			Convey("Then every loan is processed and none excluded", func() {
				So(report.LoansProcessed, ShouldEqual, 3)
				So(report.LoansExcluded, ShouldEqual, 0)
			})

			Convey("Then the delinquency staging holds", func() {
				So(report.StageCounts[model.Stage1], ShouldEqual, 1) // clean mortgage
				So(report.StageCounts[model.Stage2], ShouldEqual, 1) // 35 DPD card
				So(report.StageCounts[model.Stage3], ShouldEqual, 1) // 120 DPD personal
			})

			Convey("Then scenario severity orders the portfolio ECL", func() {
				base := report.PortfolioECL[model.ScenarioBaseline]
				adverse := report.PortfolioECL[model.ScenarioAdverse]
				severe := report.PortfolioECL[model.ScenarioSevere]
				So(base, ShouldBeGreaterThan, 0)
				So(adverse, ShouldBeGreaterThan, base)
				So(severe, ShouldBeGreaterThan, adverse)

				weighted := report.PortfolioECL[model.ScenarioWeighted]
				So(weighted, ShouldBeGreaterThan, 0)
				So(report.CoverageRatio, ShouldBeGreaterThan, 0)
			})

			Convey("Then the committed partition carries four rows per loan", func() {
				rows, err := store.ResultsForDate(ctx, calcDate)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 12) // 3 loans x (3 scenarios + weighted)
			})

			Convey("Then the loan missing a calibrated input is flagged", func() {
				rows, err := store.ResultsForDate(ctx, calcDate)
				So(err, ShouldBeNil)
				for _, row := range rows {
					So(row.Flagged, ShouldEqual, row.LoanID == "L0003")
				}
			})

			Convey("Then rerunning the date replaces, not duplicates, the partition", func() {
				_, err := svc.Run(ctx, calcDate, "")
				So(err, ShouldBeNil)

				rows, err := store.ResultsForDate(ctx, calcDate)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 12)
			})
		})

		Convey("When a loan migrated since the previous observation date", func() {
			// The 120-DPD personal loan was Stage 1 a month ago.
			prevDate := calcDate.AddDate(0, -1, 0)
			err := store.WriteRun(ctx, model.RunLog{RunID: "prior", CalculationDate: prevDate, Status: "completed"},
				[]model.LoanFeatureSnapshot{
					{LoanID: "L0003", ObservationDate: prevDate, Stage: model.Stage1,
						ProductType: model.ProductPersonalLoan},
				}, nil, nil, nil)
			So(err, ShouldBeNil)

			report, err := svc.Run(ctx, calcDate, "")
			So(err, ShouldBeNil)

			Convey("Then the run records the migration once", func() {
				So(report.MigrationMatrix[0][2], ShouldEqual, 1) // Stage 1 -> 3

				transitions, err := store.TransitionsForDate(ctx, calcDate)
				So(err, ShouldBeNil)
				So(len(transitions), ShouldEqual, 1)
				So(transitions[0].LoanID, ShouldEqual, "L0003")
			})

			Convey("Then rerunning the date does not duplicate the transition", func() {
				_, err := svc.Run(ctx, calcDate, "")
				So(err, ShouldBeNil)

				transitions, err := store.TransitionsForDate(ctx, calcDate)
				So(err, ShouldBeNil)
				So(len(transitions), ShouldEqual, 1)
			})
		})

		Convey("When running a single named scenario", func() {
			report, err := svc.Run(ctx, calcDate, model.ScenarioBaseline)
			So(err, ShouldBeNil)

			Convey("Then only baseline and weighted rows are committed", func() {
				rows, err := store.ResultsForDate(ctx, calcDate)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 6) // 3 loans x (baseline + weighted)
			})

			Convey("Then the weighted total equals the baseline total", func() {
				So(report.PortfolioECL[model.ScenarioWeighted], ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestRunValidation(t *testing.T) {
	Convey("Given a seeded portfolio", t, func() {
		ctx := context.Background()

		Convey("When a scenario forecast is missing the run aborts", func() {
			store := openStore(t)
			seedBook(ctx, t, store)
			// only the baseline forecast exists
			err := store.SaveMacros(ctx, []model.MacroScenario{
				{ScenarioName: model.ScenarioBaseline, ForecastDate: calcDate, UnemploymentRate: 5.5},
			})
			So(err, ShouldBeNil)

			_, err = newService(store).Run(ctx, calcDate, "")
			So(errors.Is(err, service.ErrMissingScenario), ShouldBeTrue)

			Convey("Then nothing was committed", func() {
				rows, err := store.ResultsForDate(ctx, calcDate)
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
			})
		})

		Convey("When the forecasts are stale the run aborts", func() {
			store := openStore(t)
			seedBook(ctx, t, store)
			seedMacros(ctx, t, store, calcDate.AddDate(-2, 0, 0))

			_, err := newService(store).Run(ctx, calcDate, "")
			So(errors.Is(err, service.ErrStaleScenario), ShouldBeTrue)
		})

		Convey("When the portfolio is empty the run aborts", func() {
			store := openStore(t)
			seedMacros(ctx, t, store, calcDate)

			_, err := newService(store).Run(ctx, calcDate, "")
			So(errors.Is(err, service.ErrNoLoans), ShouldBeTrue)
		})

		Convey("When a loan carries a corrupt payment history", func() {
			store := openStore(t)
			seedBook(ctx, t, store)
			seedMacros(ctx, t, store, calcDate)

			err := store.SaveLoans(ctx, []model.Loan{
				{LoanID: "L0009", CustomerID: "C9", ProductType: model.ProductAutoLoan, Province: "QC",
					OriginationDate: calcDate.AddDate(-1, 0, 0), OriginalAmount: 30_000,
					InterestRate: 0.07, CreditScore: 700},
			})
			So(err, ShouldBeNil)
			err = store.SavePayments(ctx, []model.PaymentObservation{
				{LoanID: "L0009", PaymentDate: calcDate, ScheduledAmount: 450, DaysPastDue: -5},
			})
			So(err, ShouldBeNil)
			err = store.SaveModelInputs(ctx, []model.ModelInput{
				{LoanID: "L0009", PD12M: 0.02, PDAtOrigination: 0.02, LGDBase: 0.35},
			})
			So(err, ShouldBeNil)

			report, err := newService(store).Run(ctx, calcDate, "")
			So(err, ShouldBeNil)

			Convey("Then the loan is excluded and counted, not silently computed", func() {
				So(report.LoansProcessed, ShouldEqual, 3)
				So(report.LoansExcluded, ShouldEqual, 1)
				So(report.Excluded["L0009"], ShouldContainSubstring, "days past due")
			})

			Convey("Then no result rows were committed for it", func() {
				rows, err := store.ResultsForDate(ctx, calcDate)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 12)
				for _, row := range rows {
					So(row.LoanID, ShouldNotEqual, "L0009")
				}
			})
		})
	})
}

func TestStressAndMonitoring(t *testing.T) {
	Convey("Given a seeded portfolio with fresh forecasts", t, func() {
		ctx := context.Background()
		store := openStore(t)
		seedBook(ctx, t, store)
		seedMacros(ctx, t, store, calcDate)
		svc := newService(store)

		Convey("When stress testing", func() {
			res, err := svc.StressTest(ctx, calcDate)
			So(err, ShouldBeNil)

			So(res.BaselineECL, ShouldBeGreaterThan, 0)
			So(res.ByScenario[model.ScenarioAdverse].TotalECL, ShouldBeGreaterThan, res.BaselineECL)
			So(res.ByScenario[model.ScenarioSevere].TotalECL, ShouldBeGreaterThan,
				res.ByScenario[model.ScenarioAdverse].TotalECL)
		})

		Convey("When running the monitoring checks", func() {
			rep, err := svc.Monitoring(ctx, calcDate)
			So(err, ShouldBeNil)

			So(rep.PDStability.Metric, ShouldEqual, "pd_12m")
			// All three loans are seasoned to at least 12 months on book.
			So(rep.Backtest.CohortSize, ShouldEqual, 3)

			Convey("Then every input characteristic gets a stability report", func() {
				names := make([]string, 0, len(rep.Characteristics))
				for _, c := range rep.Characteristics {
					names = append(names, c.Metric)
				}
				So(names, ShouldResemble,
					[]string{"credit_score", "current_dpd", "loan_to_value", "product_type"})
			})

			Convey("Then a first run has no book to drift from", func() {
				for _, c := range rep.Characteristics {
					So(c.Index, ShouldAlmostEqual, 0, 1e-9)
					So(c.Status, ShouldEqual, monitor.StatusStable)
				}
			})
		})

		Convey("When a prior observation date exists", func() {
			prevDate := calcDate.AddDate(0, -1, 0)
			seedMacros(ctx, t, store, prevDate)
			_, err := svc.Run(ctx, prevDate, "")
			So(err, ShouldBeNil)

			rep, err := svc.Monitoring(ctx, calcDate)
			So(err, ShouldBeNil)

			Convey("Then the characteristic drift is measured against it", func() {
				So(len(rep.Characteristics), ShouldEqual, 4)
				for _, c := range rep.Characteristics {
					So(c.Index, ShouldBeGreaterThanOrEqualTo, 0)
					So(c.Baseline, ShouldNotBeEmpty)
					So(c.Current, ShouldNotBeEmpty)
				}
			})
		})
	})
}

func TestExport(t *testing.T) {
	Convey("Given a committed run", t, func() {
		ctx := context.Background()
		store := openStore(t)
		seedBook(ctx, t, store)
		seedMacros(ctx, t, store, calcDate)
		svc := newService(store)

		_, err := svc.Run(ctx, calcDate, "")
		So(err, ShouldBeNil)

		Convey("When exporting the workbook", func() {
			path := filepath.Join(t.TempDir(), "ecl_report.xlsx")
			So(svc.Export(ctx, calcDate, path), ShouldBeNil)

			info, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info.Size(), ShouldBeGreaterThan, 0)
		})

		Convey("When exporting a date with no results", func() {
			err := svc.Export(ctx, calcDate.AddDate(0, 1, 0), "unused.xlsx")
			So(errors.Is(err, service.ErrNoResults), ShouldBeTrue)
		})
	})
}
