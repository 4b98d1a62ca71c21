// Package export renders a committed calculation run into an Excel
// workbook for finance sign-off: portfolio summary, per-loan results,
// stress outcomes and monitoring reports.
package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/monitor"
	"github.com/okian/ifrs9/internal/domain/stress"
	"github.com/okian/ifrs9/pkg/logger"
)

// Sheet names in workbook order.
const (
	sheetSummary     = "ECL Summary"
	sheetResults     = "Loan Results"
	sheetStress      = "Stress Testing"
	sheetSensitivity = "Sensitivity"
	sheetMonitoring  = "Monitoring"
)

// Report bundles everything one workbook carries. Optional sections are
// nil-able; their sheets are skipped.
type Report struct {
	CalculationDate time.Time

	// Results holds the Weighted rows of the run, one per loan.
	Results []model.EclResult

	Stress      *stress.Result
	Sensitivity []stress.Point
	Stability   []monitor.StabilityReport
	Backtest    *monitor.BacktestReport
}

// Option applies a configuration option to the Writer.
type Option func(*Writer)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// Writer renders run reports to disk.
type Writer struct {
	logger logger.Logger
}

// NewWriter creates a report writer.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{logger: logger.Get().Named("export")}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders the report as an Excel workbook at path.
func (w *Writer) Write(ctx context.Context, path string, r Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := w.writeSummary(f, r); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := w.writeResults(f, r.Results); err != nil {
		return fmt.Errorf("results sheet: %w", err)
	}
	if r.Stress != nil {
		if err := w.writeStress(f, r.Stress); err != nil {
			return fmt.Errorf("stress sheet: %w", err)
		}
	}
	if len(r.Sensitivity) > 0 {
		if err := w.writeSensitivity(f, r.Sensitivity); err != nil {
			return fmt.Errorf("sensitivity sheet: %w", err)
		}
	}
	if len(r.Stability) > 0 || r.Backtest != nil {
		if err := w.writeMonitoring(f, r); err != nil {
			return fmt.Errorf("monitoring sheet: %w", err)
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	w.logger.Info(ctx, "report written",
		logger.String("path", path),
		logger.Int("loans", len(r.Results)),
	)
	return nil
}

// summaryBucket aggregates the weighted rows per product and stage.
type summaryBucket struct {
	count    int
	ead      float64
	eclFinal float64
}

func (w *Writer) writeSummary(f *excelize.File, r Report) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	buckets := make(map[model.ProductType]map[model.Stage]*summaryBucket)
	var totalEAD, totalECL float64
	for _, row := range r.Results {
		byStage, ok := buckets[row.ProductType]
		if !ok {
			byStage = make(map[model.Stage]*summaryBucket, 3)
			buckets[row.ProductType] = byStage
		}
		b, ok := byStage[row.Stage]
		if !ok {
			b = &summaryBucket{}
			byStage[row.Stage] = b
		}
		b.count++
		b.ead += row.EAD
		b.eclFinal += row.ECLFinal
		totalEAD += row.EAD
		totalECL += row.ECLFinal
	}

	if err := setRow(f, sheetSummary, 1,
		"Calculation Date", r.CalculationDate.Format("2006-01-02")); err != nil {
		return err
	}
	if err := setRow(f, sheetSummary, 3,
		"Product", "Stage", "Loans", "EAD", "ECL", "Coverage"); err != nil {
		return err
	}

	rowIdx := 4
	for _, product := range model.AllProducts() {
		byStage, ok := buckets[product]
		if !ok {
			continue
		}
		for _, stage := range []model.Stage{model.Stage1, model.Stage2, model.Stage3} {
			b, ok := byStage[stage]
			if !ok {
				continue
			}
			coverage := 0.0
			if b.ead > 0 {
				coverage = b.eclFinal / b.ead
			}
			if err := setRow(f, sheetSummary, rowIdx,
				string(product), int(stage), b.count, b.ead, b.eclFinal, coverage); err != nil {
				return err
			}
			rowIdx++
		}
	}

	rowIdx++
	totalCoverage := 0.0
	if totalEAD > 0 {
		totalCoverage = totalECL / totalEAD
	}
	return setRow(f, sheetSummary, rowIdx,
		"Total", "", len(r.Results), totalEAD, totalECL, totalCoverage)
}

func (w *Writer) writeResults(f *excelize.File, results []model.EclResult) error {
	if _, err := f.NewSheet(sheetResults); err != nil {
		return err
	}
	if err := setRow(f, sheetResults, 1,
		"Loan ID", "Product", "Stage", "EAD", "PD 12m", "PD Lifetime", "LGD",
		"ECL 12m", "ECL Lifetime", "ECL Final", "Overlay", "Coverage", "Flagged"); err != nil {
		return err
	}

	sorted := append([]model.EclResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LoanID < sorted[j].LoanID })

	for i, row := range sorted {
		if err := setRow(f, sheetResults, i+2,
			row.LoanID, string(row.ProductType), int(row.Stage), row.EAD,
			row.PD12M, row.PDLifetime, row.LGD,
			row.ECL12M, row.ECLLifetime, row.ECLFinal,
			row.OverlayFactor, row.CoverageRatio, row.Flagged); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeStress(f *excelize.File, res *stress.Result) error {
	if _, err := f.NewSheet(sheetStress); err != nil {
		return err
	}
	if err := setRow(f, sheetStress, 1,
		"Scenario", "Total ECL", "Increment", "Capital Impact"); err != nil {
		return err
	}
	if err := setRow(f, sheetStress, 2,
		model.ScenarioBaseline, res.BaselineECL, 0.0, 0.0); err != nil {
		return err
	}

	names := make([]string, 0, len(res.ByScenario))
	for name := range res.ByScenario {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		impact := res.ByScenario[name]
		if err := setRow(f, sheetStress, i+3,
			name, impact.TotalECL, impact.TotalECL-res.BaselineECL, impact.CapitalImpact); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeSensitivity(f *excelize.File, points []stress.Point) error {
	if _, err := f.NewSheet(sheetSensitivity); err != nil {
		return err
	}
	if err := setRow(f, sheetSensitivity, 1, "Shock Magnitude", "Portfolio ECL"); err != nil {
		return err
	}
	for i, p := range points {
		if err := setRow(f, sheetSensitivity, i+2, p.Magnitude, p.ECL); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeMonitoring(f *excelize.File, r Report) error {
	if _, err := f.NewSheet(sheetMonitoring); err != nil {
		return err
	}

	rowIdx := 1
	if len(r.Stability) > 0 {
		if err := setRow(f, sheetMonitoring, rowIdx, "Metric", "PSI", "Status"); err != nil {
			return err
		}
		rowIdx++
		for _, rep := range r.Stability {
			if err := setRow(f, sheetMonitoring, rowIdx,
				rep.Metric, rep.Index, string(rep.Status)); err != nil {
				return err
			}
			rowIdx++
		}
		rowIdx++
	}

	if r.Backtest != nil {
		b := r.Backtest
		rows := [][]any{
			{"Backtest Cohort", b.CohortSize},
			{"Predicted Default Rate", b.PredictedDefaultRate},
			{"Observed Default Rate", b.ObservedDefaultRate},
			{"MAE", b.MAE},
			{"RMSE", b.RMSE},
			{"Precision", b.Precision},
			{"Recall", b.Recall},
			{"F1", b.F1},
		}
		for _, cells := range rows {
			if err := setRow(f, sheetMonitoring, rowIdx, cells...); err != nil {
				return err
			}
			rowIdx++
		}
	}
	return nil
}

// setRow writes cells left to right starting at column A of the given row.
func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
