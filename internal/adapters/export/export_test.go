package export_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okian/ifrs9/internal/adapters/export"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/monitor"
	"github.com/okian/ifrs9/internal/domain/stress"
	"github.com/okian/ifrs9/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func sampleReport() export.Report {
	date := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	return export.Report{
		CalculationDate: date,
		Results: []model.EclResult{
			{LoanID: "L0001", ScenarioName: model.ScenarioWeighted, CalculationDate: date,
				EAD: 380_000, PD12M: 0.01, LGD: 0.10, ECL12M: 380, ECLLifetime: 1500,
				ECLFinal: 380, Stage: model.Stage1, ProductType: model.ProductMortgage,
				OverlayFactor: 1.0, CoverageRatio: 0.001},
			{LoanID: "L0002", ScenarioName: model.ScenarioWeighted, CalculationDate: date,
				EAD: 9_000, PD12M: 0.08, LGD: 0.70, ECL12M: 504, ECLLifetime: 1200,
				ECLFinal: 1200, Stage: model.Stage2, ProductType: model.ProductCreditCard,
				OverlayFactor: 1.05, CoverageRatio: 0.133},
		},
		Stress: &stress.Result{
			BaselineECL: 1580,
			ByScenario: map[string]stress.ScenarioImpact{
				model.ScenarioAdverse: {TotalECL: 2400, CapitalImpact: 0.08 * 820},
				model.ScenarioSevere:  {TotalECL: 3300, CapitalImpact: 0.08 * 1720},
			},
		},
		Sensitivity: []stress.Point{
			{Magnitude: 0, ECL: 1580},
			{Magnitude: 3, ECL: 2500},
		},
		Stability: []monitor.StabilityReport{
			{Metric: "credit_score", Index: 0.04, Status: monitor.StatusStable},
		},
		Backtest: &monitor.BacktestReport{CohortSize: 2, MAE: 0.05},
	}
}

func TestWrite(t *testing.T) {
	Convey("Given a full run report", t, func() {
		w := export.NewWriter()
		path := filepath.Join(t.TempDir(), "ecl_report.xlsx")

		Convey("When writing the workbook", func() {
			So(w.Write(context.Background(), path, sampleReport()), ShouldBeNil)

			f, err := excelize.OpenFile(path)
			So(err, ShouldBeNil)
			defer func() { _ = f.Close() }()

			Convey("Then every section has its sheet and no default sheet remains", func() {
				sheets := f.GetSheetList()
				So(sheets, ShouldContain, "ECL Summary")
				So(sheets, ShouldContain, "Loan Results")
				So(sheets, ShouldContain, "Stress Testing")
				So(sheets, ShouldContain, "Sensitivity")
				So(sheets, ShouldContain, "Monitoring")
				So(sheets, ShouldNotContain, "Sheet1")
			})

			Convey("Then the results sheet carries the loan rows", func() {
				id, err := f.GetCellValue("Loan Results", "A2")
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "L0001")

				id, err = f.GetCellValue("Loan Results", "A3")
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "L0002")
			})

			Convey("Then the stress sheet leads with the baseline", func() {
				name, err := f.GetCellValue("Stress Testing", "A2")
				So(err, ShouldBeNil)
				So(name, ShouldEqual, model.ScenarioBaseline)

				adverse, err := f.GetCellValue("Stress Testing", "A3")
				So(err, ShouldBeNil)
				So(adverse, ShouldEqual, model.ScenarioAdverse)
			})
		})

		Convey("When optional sections are absent their sheets are skipped", func() {
			r := sampleReport()
			r.Stress = nil
			r.Sensitivity = nil
			r.Stability = nil
			r.Backtest = nil

			lean := filepath.Join(t.TempDir(), "lean.xlsx")
			So(w.Write(context.Background(), lean, r), ShouldBeNil)

			f, err := excelize.OpenFile(lean)
			So(err, ShouldBeNil)
			defer func() { _ = f.Close() }()

			sheets := f.GetSheetList()
			So(sheets, ShouldContain, "ECL Summary")
			So(sheets, ShouldNotContain, "Stress Testing")
			So(sheets, ShouldNotContain, "Monitoring")
		})
	})
}
