package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/ifrs9/internal/adapters/export"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/monitor"
	"github.com/okian/ifrs9/internal/domain/stress"
	"github.com/okian/ifrs9/pkg/logger"
)

// StressTest recomputes the portfolio under the adverse and severely
// adverse shocks applied to the baseline macro forecast.
func (s *Service) StressTest(ctx context.Context, calcDate time.Time) (stress.Result, error) {
	items, baseline, err := s.stressInputs(ctx, calcDate)
	if err != nil {
		return stress.Result{}, err
	}
	return s.stressEng.Run(ctx, items, baseline)
}

// Sensitivity sweeps one macro factor and reports portfolio ECL per step.
func (s *Service) Sensitivity(ctx context.Context, calcDate time.Time, factor stress.Factor, lo, hi float64) ([]stress.Point, error) {
	items, baseline, err := s.stressInputs(ctx, calcDate)
	if err != nil {
		return nil, err
	}
	return s.stressEng.Sensitivity(ctx, items, baseline, factor, lo, hi)
}

// ReverseStress searches for the unified stress level that doubles the
// portfolio ECL (or the configured target multiple).
func (s *Service) ReverseStress(ctx context.Context, calcDate time.Time) (stress.Breakeven, error) {
	items, baseline, err := s.stressInputs(ctx, calcDate)
	if err != nil {
		return stress.Breakeven{}, err
	}
	return s.stressEng.ReverseStress(ctx, items, baseline)
}

func (s *Service) stressInputs(ctx context.Context, calcDate time.Time) ([]model.LoanWorkItem, model.MacroScenario, error) {
	macros, err := s.loadMacros(ctx, calcDate, model.ScenarioBaseline)
	if err != nil {
		return nil, model.MacroScenario{}, err
	}
	items, _, err := s.loadPortfolio(ctx, calcDate)
	if err != nil {
		return nil, model.MacroScenario{}, err
	}
	return items, macros[0], nil
}

// MonitoringReport is the model-health summary for one calculation date.
type MonitoringReport struct {
	// PDStability compares the current PD distribution against the
	// origination-time distribution of the same book.
	PDStability monitor.StabilityReport

	// Characteristics holds the CSI reports comparing the book's input
	// characteristics against the previous observation date's book.
	Characteristics []monitor.StabilityReport

	Backtest   monitor.BacktestReport
	Challenger monitor.ChallengerReport
}

// Monitoring runs the model-health checks over the current portfolio.
func (s *Service) Monitoring(ctx context.Context, calcDate time.Time) (MonitoringReport, error) {
	items, _, err := s.loadPortfolio(ctx, calcDate)
	if err != nil {
		return MonitoringReport{}, err
	}

	prevSnaps, err := s.store.SnapshotsAsOf(ctx, calcDate)
	if err != nil {
		return MonitoringReport{}, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
	}

	baselinePD := make([]float64, 0, len(items))
	currentPD := make([]float64, 0, len(items))
	observations := make([]monitor.Observation, 0, len(items))
	var champion, challenger []float64

	for _, item := range items {
		baselinePD = append(baselinePD, item.Inputs.PDAtOrigination)
		currentPD = append(currentPD, item.Inputs.PD12M)

		observations = append(observations, monitor.Observation{
			LoanID:       item.Loan.LoanID,
			PredictedPD:  item.Inputs.PDAtOrigination,
			Defaulted:    item.Loan.DefaultFlag,
			MonthsOnBook: item.Snapshot.MonthsOnBook,
		})

		if s.monitor.RouteToChallenger(item.Loan.LoanID) {
			challenger = append(challenger, item.Inputs.PD12M)
		} else {
			champion = append(champion, item.Inputs.PD12M)
		}
	}

	baseChars, currChars := characteristicSets(items, prevSnaps)

	report := MonitoringReport{
		PDStability:     s.monitor.PSI(ctx, "pd_12m", baselinePD, currentPD),
		Characteristics: s.monitor.CSI(ctx, baseChars, currChars),
		Backtest:        s.monitor.Backtest(ctx, observations),
		Challenger:      s.monitor.CompareChallenger(ctx, champion, challenger),
	}
	return report, nil
}

// characteristicSets builds the baseline and current input-characteristic
// distributions for CSI: credit score, loan-to-value, current DPD and the
// product mix. The baseline is the book as of the previous observation
// date; on a first run with no prior snapshots the current book is its own
// baseline and drift is zero by definition.
func characteristicSets(items []model.LoanWorkItem, prev map[string]model.LoanFeatureSnapshot) (baseline, current map[string][]float64) {
	current = map[string][]float64{
		"credit_score":  make([]float64, 0, len(items)),
		"loan_to_value": make([]float64, 0, len(items)),
		"current_dpd":   make([]float64, 0, len(items)),
		"product_type":  make([]float64, 0, len(items)),
	}
	for _, item := range items {
		current["credit_score"] = append(current["credit_score"], float64(item.Loan.CreditScore))
		current["loan_to_value"] = append(current["loan_to_value"], item.Loan.LoanToValue)
		current["current_dpd"] = append(current["current_dpd"], float64(item.Snapshot.CurrentDPD))
		current["product_type"] = append(current["product_type"], productCode(item.Snapshot.ProductType))
	}

	if len(prev) == 0 {
		return current, current
	}

	// Score and LTV are static on the loan record, so the baseline joins
	// the prior snapshot rows back to the loans still on book.
	loansByID := make(map[string]model.Loan, len(items))
	for _, item := range items {
		loansByID[item.Loan.LoanID] = item.Loan
	}

	baseline = map[string][]float64{
		"credit_score":  make([]float64, 0, len(prev)),
		"loan_to_value": make([]float64, 0, len(prev)),
		"current_dpd":   make([]float64, 0, len(prev)),
		"product_type":  make([]float64, 0, len(prev)),
	}
	for loanID, snap := range prev {
		baseline["current_dpd"] = append(baseline["current_dpd"], float64(snap.CurrentDPD))
		baseline["product_type"] = append(baseline["product_type"], productCode(snap.ProductType))
		if loan, ok := loansByID[loanID]; ok {
			baseline["credit_score"] = append(baseline["credit_score"], float64(loan.CreditScore))
			baseline["loan_to_value"] = append(baseline["loan_to_value"], loan.LoanToValue)
		}
	}
	return baseline, current
}

// productCode maps the product mix onto a stable numeric axis for binning.
func productCode(p model.ProductType) float64 {
	for i, known := range model.AllProducts() {
		if known == p {
			return float64(i)
		}
	}
	return float64(len(model.AllProducts()))
}

// Export renders the committed run for calcDate into an Excel workbook,
// including stress, sensitivity and monitoring sections.
func (s *Service) Export(ctx context.Context, calcDate time.Time, path string) error {
	rows, err := s.store.ResultsForDate(ctx, calcDate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataIntegrity, err)
	}

	weighted := make([]model.EclResult, 0, len(rows))
	for _, row := range rows {
		if row.ScenarioName == model.ScenarioWeighted {
			weighted = append(weighted, row)
		}
	}
	if len(weighted) == 0 {
		return fmt.Errorf("%w: %s", ErrNoResults, calcDate.Format("2006-01-02"))
	}

	report := export.Report{
		CalculationDate: calcDate,
		Results:         weighted,
	}

	if stressRes, err := s.StressTest(ctx, calcDate); err == nil {
		report.Stress = &stressRes
	} else {
		s.logger.Warn(ctx, "stress section skipped", logger.Error(err))
	}
	if points, err := s.Sensitivity(ctx, calcDate, stress.FactorUnemployment, 0, 6); err == nil {
		report.Sensitivity = points
	} else {
		s.logger.Warn(ctx, "sensitivity section skipped", logger.Error(err))
	}
	if mon, err := s.Monitoring(ctx, calcDate); err == nil {
		report.Stability = append([]monitor.StabilityReport{mon.PDStability}, mon.Characteristics...)
		report.Backtest = &mon.Backtest
	} else {
		s.logger.Warn(ctx, "monitoring section skipped", logger.Error(err))
	}

	return s.exporter.Write(ctx, path, report)
}
