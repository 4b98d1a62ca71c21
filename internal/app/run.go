package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ifrs9/internal/adapters/mq/queue"
	"github.com/okian/ifrs9/internal/adapters/mq/worker"
	"github.com/okian/ifrs9/internal/config"
	"github.com/okian/ifrs9/internal/domain/ecl"
	"github.com/okian/ifrs9/internal/domain/lgd"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/staging"
	"github.com/okian/ifrs9/pkg/logger"
	"github.com/okian/ifrs9/pkg/metrics"
)

// Risk-segment cutoffs on credit score.
const (
	primeScore     = 680
	nearPrimeScore = 600
)

// stagingComponents bundles the stateless staging engine; the migration
// tracker is per-run state created inside Run.
type stagingComponents struct {
	engine *staging.Engine
}

func newStagingComponents(cfg *config.Config) *stagingComponents {
	return &stagingComponents{
		engine: staging.New(staging.WithSICRThreshold(cfg.Staging.SICRThreshold)),
	}
}

// RunReport summarizes a committed calculation run.
type RunReport struct {
	RunID           string
	CalculationDate time.Time
	LoansProcessed  int
	LoansExcluded   int
	Excluded        map[string]string

	// PortfolioECL totals ECLFinal per scenario, including the Weighted
	// pseudo-scenario carrying the provisioned amount.
	PortfolioECL  map[string]float64
	CoverageRatio float64

	StageCounts     map[model.Stage]int
	MigrationMatrix [3][3]int

	Duration time.Duration
}

// Run executes a full calculation for the date: snapshot derivation,
// staging, per-loan PD/LGD/EAD/ECL under every scenario, aggregation and a
// single atomic commit. scenarioFilter narrows the run to one named
// scenario; empty means the full weighted blend.
func (s *Service) Run(ctx context.Context, calcDate time.Time, scenarioFilter string) (*RunReport, error) {
	metrics.RecordRunStarted()
	started := time.Now()

	report, err := s.run(ctx, calcDate, scenarioFilter, started)
	metrics.RecordRunDuration(time.Since(started).Seconds())
	if err != nil {
		metrics.RecordRunFailed()
		s.logger.Error(ctx, "run failed",
			logger.String("calcDate", calcDate.Format("2006-01-02")),
			logger.Error(err),
		)
		return nil, err
	}

	metrics.RecordRunCompleted()
	s.logger.Info(ctx, "run committed",
		logger.String("runID", report.RunID),
		logger.Int("processed", report.LoansProcessed),
		logger.Int("excluded", report.LoansExcluded),
		logger.Float64("portfolioECL", report.PortfolioECL[model.ScenarioWeighted]),
	)
	return report, nil
}

func (s *Service) run(ctx context.Context, calcDate time.Time, scenarioFilter string, started time.Time) (*RunReport, error) {
	macros, err := s.loadMacros(ctx, calcDate, scenarioFilter)
	if err != nil {
		return nil, err
	}

	items, tracker, err := s.loadPortfolio(ctx, calcDate)
	if err != nil {
		return nil, err
	}

	collector := newRunCollector()
	calc := &loanCalculator{svc: s, macros: macros, calcDate: calcDate}

	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	pool := worker.NewPool(s.workerCount, q, calc, collector)
	pool.Start(ctx)

	for _, item := range items {
		if !q.Enqueue(ctx, item) {
			_ = q.Close()
			return nil, fmt.Errorf("%w: queue rejected loan %s", ErrDataIntegrity, item.Loan.LoanID)
		}
	}
	if err := q.Close(); err != nil {
		return nil, fmt.Errorf("close queue: %w", err)
	}
	if err := pool.Wait(ctx); err != nil {
		return nil, fmt.Errorf("drain pool: %w", err)
	}

	results, excluded := collector.take()

	report := s.aggregate(results, excluded, calcDate, tracker)
	report.Duration = time.Since(started)

	if err := s.commit(ctx, report, items, results, tracker, started); err != nil {
		return nil, err
	}
	return report, nil
}

// loadMacros loads and validates the scenario set for the run.
func (s *Service) loadMacros(ctx context.Context, calcDate time.Time, scenarioFilter string) ([]model.MacroScenario, error) {
	macros, err := s.store.MacroForDate(ctx, calcDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
	}

	present := make(map[string]model.MacroScenario, len(macros))
	for _, m := range macros {
		present[m.ScenarioName] = m
	}

	wanted := model.AllScenarios()
	if scenarioFilter != "" {
		wanted = []string{scenarioFilter}
	}

	out := make([]model.MacroScenario, 0, len(wanted))
	for _, name := range wanted {
		m, ok := present[name]
		if !ok {
			return nil, NewMissingScenarioError(name)
		}
		if calcDate.Sub(m.ForecastDate) > s.maxForecastAge {
			return nil, NewStaleScenarioError(name, m.ForecastDate, s.maxForecastAge)
		}
		out = append(out, m)
	}
	return out, nil
}

// loadPortfolio derives feature snapshots, assigns stages and builds the
// per-loan work items. The returned tracker is pre-seeded with each loan's
// previous stage so the run records migrations.
func (s *Service) loadPortfolio(ctx context.Context, calcDate time.Time) ([]model.LoanWorkItem, *staging.Tracker, error) {
	loans, err := s.store.Loans(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
	}
	if len(loans) == 0 {
		return nil, nil, ErrNoLoans
	}

	payments, err := s.store.PaymentsThrough(ctx, calcDate)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
	}
	byLoan := make(map[string][]model.PaymentObservation, len(loans))
	for _, p := range payments {
		byLoan[p.LoanID] = append(byLoan[p.LoanID], p)
	}

	inputs, err := s.store.ModelInputs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
	}

	prevStages, err := s.store.PreviousStages(ctx, calcDate)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
	}

	tracker := staging.NewTracker()
	items := make([]model.LoanWorkItem, 0, len(loans))
	for _, loan := range loans {
		if prev, ok := prevStages[loan.LoanID]; ok {
			tracker.Observe(loan.LoanID, prev, calcDate.AddDate(0, -1, 0))
		}

		in, ok := inputs[loan.LoanID]
		if !ok {
			// Segment-default fallback: the loan is computed but flagged.
			in = model.ModelInput{
				LoanID:          loan.LoanID,
				PD12M:           s.fallback.PD12M,
				PDAtOrigination: s.fallback.PDAtOrigination,
				LGDBase:         s.fallback.LGDBase,
			}
			metrics.RecordMissingInputFallback()
			s.logger.Warn(ctx, "model input missing, using segment default",
				logger.String("loanID", loan.LoanID),
			)
		}

		snap := s.buildSnapshot(loan, byLoan[loan.LoanID], calcDate)
		snap.Stage = s.staging.engine.Assign(staging.Input{
			CurrentDPD:    snap.CurrentDPD,
			MaxDPD12M:     snap.MaxDPD12M,
			PDCurrent:     in.PD12M,
			PDOrigination: in.PDAtOrigination,
			DefaultFlag:   loan.DefaultFlag,
		})
		tracker.Observe(loan.LoanID, snap.Stage, calcDate)

		items = append(items, model.LoanWorkItem{
			Loan:           loan,
			Snapshot:       snap,
			Inputs:         in,
			FallbackInputs: !ok,
		})
	}
	return items, tracker, nil
}

// buildSnapshot derives the point-in-time features from the loan's payment
// history through the calculation date.
func (s *Service) buildSnapshot(loan model.Loan, payments []model.PaymentObservation, calcDate time.Time) model.LoanFeatureSnapshot {
	snap := model.LoanFeatureSnapshot{
		LoanID:          loan.LoanID,
		ObservationDate: calcDate,
		MonthsOnBook:    monthsBetween(loan.OriginationDate, calcDate),
		ProductType:     loan.ProductType,
		RiskSegment:     riskSegment(loan.CreditScore),
	}

	if len(payments) > 0 {
		// Payments arrive sorted by date; the last one carries today's DPD.
		snap.CurrentDPD = payments[len(payments)-1].DaysPastDue
		snap.MaxDPD3M = maxDPDSince(payments, calcDate.AddDate(0, -3, 0))
		snap.MaxDPD6M = maxDPDSince(payments, calcDate.AddDate(0, -6, 0))
		snap.MaxDPD12M = maxDPDSince(payments, calcDate.AddDate(0, -12, 0))
	}

	// Scheduled balance; revolving exposure uses Stage 1 utilization here
	// and is re-derived per stage during the EAD projection.
	snap.CurrentBalance = s.projector.Project(
		loan.ProductType, loan.OriginalAmount, loan.InterestRate,
		snap.MonthsOnBook, model.Stage1,
	).Current

	return snap
}

func maxDPDSince(payments []model.PaymentObservation, since time.Time) int {
	maxDPD := 0
	for _, p := range payments {
		if p.PaymentDate.Before(since) {
			continue
		}
		if p.DaysPastDue > maxDPD {
			maxDPD = p.DaysPastDue
		}
	}
	return maxDPD
}

func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func riskSegment(creditScore int) string {
	switch {
	case creditScore >= primeScore:
		return "prime"
	case creditScore >= nearPrimeScore:
		return "near_prime"
	default:
		return "subprime"
	}
}

// loanCalculator implements worker.Calculator for one run.
type loanCalculator struct {
	svc      *Service
	macros   []model.MacroScenario
	calcDate time.Time
}

// Compute builds the loan's term structures under every scenario and
// blends them into the provisioned ECL.
func (c *loanCalculator) Compute(ctx context.Context, item model.LoanWorkItem) (model.LoanResult, error) {
	s := c.svc

	if err := validateWorkItem(item); err != nil {
		return model.LoanResult{}, err
	}

	inputs := make([]ecl.ScenarioInput, 0, len(c.macros))
	estimates := make([]model.RiskEstimate, 0, len(c.macros))

	for _, scn := range c.macros {
		pdAdjusted := s.pdBuilder.ScenarioAdjust(ctx, item.Inputs.PD12M, scn)
		curve := s.pdBuilder.Build(ctx, pdAdjusted, item.Loan.ProductType, item.Snapshot.MonthsOnBook)

		lgdSet := s.lgdEst.Estimate(ctx, lgd.Input{
			Product:        item.Loan.ProductType,
			Stage:          item.Snapshot.Stage,
			LoanToValue:    item.Loan.LoanToValue,
			CreditScore:    item.Loan.CreditScore,
			OriginalAmount: item.Loan.OriginalAmount,
		})
		lgdSet = s.lgdEst.ScenarioAdjust(ctx, lgdSet, scn)

		profile := s.projector.Project(
			item.Loan.ProductType, item.Loan.OriginalAmount, item.Loan.InterestRate,
			item.Snapshot.MonthsOnBook, item.Snapshot.Stage,
		)

		inputs = append(inputs, ecl.ScenarioInput{
			Scenario: scn,
			Curve:    curve,
			LGD:      lgdSet,
			EAD:      profile,
		})
		estimates = append(estimates, model.RiskEstimate{
			LoanID:          item.Loan.LoanID,
			ScenarioName:    scn.ScenarioName,
			CalculationDate: c.calcDate,
			PD12M:           curve.PD12M,
			PDLifetime:      curve.Lifetime,
			PDByYear:        curve.Marginal,
			LGDPit:          lgdSet.Pit,
			LGDTtc:          lgdSet.Ttc,
			LGDExpected:     lgdSet.Expected,
			LGDDownturn:     lgdSet.Downturn,
			EADCurrent:      profile.Current,
			EADByYear:       profile.ByYear,
		})
	}

	out, err := s.calc.Compute(item.Loan, item.Snapshot, c.calcDate, inputs)
	if err != nil {
		return model.LoanResult{}, err
	}

	rows := append(out.PerScenario, out.Weighted)
	if item.FallbackInputs {
		for i := range rows {
			rows[i].Flagged = true
		}
		out.Weighted.Flagged = true
	}

	return model.LoanResult{
		LoanID:    item.Loan.LoanID,
		Estimates: estimates,
		Results:   rows,
		Weighted:  out.Weighted,
	}, nil
}

// validateWorkItem rejects loans whose record or derived features are
// malformed. A negative DPD means the payment history is corrupt; such a
// loan is excluded and counted rather than silently computed.
func validateWorkItem(item model.LoanWorkItem) error {
	if item.Loan.OriginalAmount <= 0 {
		return fmt.Errorf("%w: %s original amount %.2f must be positive",
			ErrMalformedLoan, item.Loan.LoanID, item.Loan.OriginalAmount)
	}
	if item.Loan.InterestRate < 0 {
		return fmt.Errorf("%w: %s interest rate %.4f is negative",
			ErrMalformedLoan, item.Loan.LoanID, item.Loan.InterestRate)
	}
	if item.Snapshot.CurrentDPD < 0 ||
		item.Snapshot.MaxDPD3M < 0 || item.Snapshot.MaxDPD6M < 0 || item.Snapshot.MaxDPD12M < 0 {
		return fmt.Errorf("%w: %s payment history yields negative days past due",
			ErrMalformedLoan, item.Loan.LoanID)
	}
	return nil
}

// runCollector gathers worker output for one run.
type runCollector struct {
	mu       sync.Mutex
	results  []model.LoanResult
	excluded map[string]string
}

func newRunCollector() *runCollector {
	return &runCollector{excluded: make(map[string]string)}
}

func (c *runCollector) Collect(_ context.Context, result model.LoanResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	return nil
}

func (c *runCollector) Exclude(_ context.Context, loanID string, reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.excluded[loanID] = reason.Error()
}

// take returns the collected output sorted by loan for deterministic
// aggregation and persistence.
func (c *runCollector) take() ([]model.LoanResult, map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.Slice(c.results, func(i, j int) bool { return c.results[i].LoanID < c.results[j].LoanID })
	return c.results, c.excluded
}

// aggregate folds per-loan results into the portfolio report and publishes
// the run-level gauges.
func (s *Service) aggregate(results []model.LoanResult, excluded map[string]string, calcDate time.Time, tracker *staging.Tracker) *RunReport {
	report := &RunReport{
		RunID:           uuid.NewString(),
		CalculationDate: calcDate,
		LoansProcessed:  len(results),
		LoansExcluded:   len(excluded),
		Excluded:        excluded,
		PortfolioECL:    make(map[string]float64, 4),
		StageCounts:     make(map[model.Stage]int, 3),
		MigrationMatrix: tracker.Matrix(),
	}

	var totalEAD float64
	for _, r := range results {
		for _, row := range r.Results {
			report.PortfolioECL[row.ScenarioName] += row.ECLFinal
		}
		report.StageCounts[r.Weighted.Stage]++
		totalEAD += r.Weighted.EAD
	}
	if totalEAD > 0 {
		report.CoverageRatio = report.PortfolioECL[model.ScenarioWeighted] / totalEAD
	}

	for scenario, amount := range report.PortfolioECL {
		metrics.UpdatePortfolioECL(scenario, amount)
	}
	metrics.UpdateCoverageRatio(report.CoverageRatio)

	return report
}

// commit writes the whole run in one transaction.
func (s *Service) commit(ctx context.Context, report *RunReport, items []model.LoanWorkItem, results []model.LoanResult, tracker *staging.Tracker, started time.Time) error {
	snapshots := make([]model.LoanFeatureSnapshot, 0, len(items))
	for _, item := range items {
		snapshots = append(snapshots, item.Snapshot)
	}

	var estimates []model.RiskEstimate
	var rows []model.EclResult
	for _, r := range results {
		estimates = append(estimates, r.Estimates...)
		rows = append(rows, r.Results...)
	}

	run := model.RunLog{
		RunID:           report.RunID,
		CalculationDate: report.CalculationDate,
		Status:          "completed",
		LoansProcessed:  report.LoansProcessed,
		LoansExcluded:   report.LoansExcluded,
		StartedAt:       started,
		FinishedAt:      time.Now(),
	}
	return s.store.WriteRun(ctx, run, snapshots, tracker.Transitions(), estimates, rows)
}
