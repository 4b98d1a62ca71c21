// Package stress re-runs PD/LGD/ECL under shocked macro scenarios and
// derives capital impact, sensitivity curves and reverse-stress breakeven
// points.
package stress

import (
	"context"
	"math"

	"github.com/okian/ifrs9/internal/domain/ead"
	"github.com/okian/ifrs9/internal/domain/ecl"
	"github.com/okian/ifrs9/internal/domain/lgd"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/pd"
	"github.com/okian/ifrs9/pkg/logger"
)

// Shock calibration defaults. The severely adverse shock is 1.5x the
// adverse one; the reverse-stress step is an empirical constant from the
// source model, kept configurable.
const (
	defaultUnemploymentShock = 3.0
	defaultGDPShock          = -5.0
	defaultHPIShock          = -15.0
	defaultRateShock         = 2.0
	defaultSevereMultiplier  = 1.5
	defaultTimeDecay         = 0.3
	defaultCapitalRatio      = 0.08
	defaultReverseStep       = 0.1
	defaultReverseMaxLevel   = 10.0
	defaultReverseTarget     = 2.0
	defaultSensitivitySteps  = 10

	// A unified stress level of reverseLevelAdverse reproduces the adverse
	// shock; higher levels scale linearly past it.
	reverseLevelAdverse = 3.0

	horizonYears = 5
)

// Shock is an additive displacement of the baseline macro values.
type Shock struct {
	Unemployment float64
	GDP          float64
	HPI          float64
	Rate         float64
}

// Scale returns the shock multiplied by f.
func (s Shock) Scale(f float64) Shock {
	return Shock{
		Unemployment: s.Unemployment * f,
		GDP:          s.GDP * f,
		HPI:          s.HPI * f,
		Rate:         s.Rate * f,
	}
}

// ApplyTo returns the macro scenario displaced by the shock.
func (s Shock) ApplyTo(base model.MacroScenario) model.MacroScenario {
	out := base
	out.UnemploymentRate += s.Unemployment
	out.GDPGrowthYoY += s.GDP
	out.HPIChangeYoY += s.HPI
	out.PolicyRate += s.Rate
	return out
}

// Factor names a single macro dimension for sensitivity sweeps.
type Factor string

const (
	FactorUnemployment Factor = "unemployment"
	FactorGDP          Factor = "gdp"
	FactorHPI          Factor = "hpi"
	FactorRate         Factor = "rate"
)

// shockFor builds a single-factor shock of the given magnitude.
func shockFor(f Factor, magnitude float64) Shock {
	switch f {
	case FactorGDP:
		return Shock{GDP: magnitude}
	case FactorHPI:
		return Shock{HPI: magnitude}
	case FactorRate:
		return Shock{Rate: magnitude}
	default:
		return Shock{Unemployment: magnitude}
	}
}

// ScenarioImpact is the portfolio outcome under one stress scenario.
type ScenarioImpact struct {
	TotalECL float64
	// ByProductStage buckets ECL for reporting: product -> stage -> amount.
	ByProductStage map[model.ProductType]map[model.Stage]float64
	// CapitalImpact is the Tier-1 proxy on the incremental ECL.
	CapitalImpact float64
}

// Result is the full stress-test outcome.
type Result struct {
	BaselineECL float64
	ByScenario  map[string]ScenarioImpact
}

// Point is one step of a sensitivity sweep.
type Point struct {
	Magnitude float64
	ECL       float64
}

// Breakeven is the reverse-stress search outcome.
type Breakeven struct {
	Found        bool
	Level        float64
	ECL          float64
	TargetECL    float64
	ImpliedMacro model.MacroScenario
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithShocks overrides the adverse shock magnitudes.
func WithShocks(s Shock) Option {
	return func(e *Engine) { e.adverse = s }
}

// WithSevereMultiplier overrides the severely adverse scaling.
func WithSevereMultiplier(m float64) Option {
	return func(e *Engine) {
		if m >= 1 {
			e.severeMult = m
		}
	}
}

// WithTimeDecay overrides the outer-year dampening exponent.
func WithTimeDecay(d float64) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.timeDecay = d
		}
	}
}

// WithCapitalRatio overrides the Tier-1 proxy ratio.
func WithCapitalRatio(r float64) Option {
	return func(e *Engine) {
		if r > 0 && r < 1 {
			e.capitalRatio = r
		}
	}
}

// WithReverseSearch overrides the reverse-stress parameters.
func WithReverseSearch(step, maxLevel, targetMultiplier float64) Option {
	return func(e *Engine) {
		if step > 0 && maxLevel > 0 && targetMultiplier > 1 {
			e.reverseStep, e.reverseMax, e.targetMult = step, maxLevel, targetMultiplier
		}
	}
}

// WithSensitivitySteps overrides the sweep resolution.
func WithSensitivitySteps(n int) Option {
	return func(e *Engine) {
		if n > 1 {
			e.sensitivitySteps = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine recomputes portfolio ECL under shocked macro conditions using the
// same builders the base run uses, with stress layered on top of scenario
// multipliers.
type Engine struct {
	pdBuilder *pd.Builder
	lgdEst    *lgd.Estimator
	projector *ead.Projector
	calc      *ecl.Calculator

	adverse          Shock
	severeMult       float64
	timeDecay        float64
	capitalRatio     float64
	reverseStep      float64
	reverseMax       float64
	targetMult       float64
	sensitivitySteps int

	logger logger.Logger
}

// New creates a stress engine sharing the run's calculators.
func New(pdBuilder *pd.Builder, lgdEst *lgd.Estimator, projector *ead.Projector, calc *ecl.Calculator, opts ...Option) *Engine {
	e := &Engine{
		pdBuilder: pdBuilder,
		lgdEst:    lgdEst,
		projector: projector,
		calc:      calc,
		adverse: Shock{
			Unemployment: defaultUnemploymentShock,
			GDP:          defaultGDPShock,
			HPI:          defaultHPIShock,
			Rate:         defaultRateShock,
		},
		severeMult:       defaultSevereMultiplier,
		timeDecay:        defaultTimeDecay,
		capitalRatio:     defaultCapitalRatio,
		reverseStep:      defaultReverseStep,
		reverseMax:       defaultReverseMaxLevel,
		targetMult:       defaultReverseTarget,
		sensitivitySteps: defaultSensitivitySteps,
		logger:           logger.Get().Named("stress"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run stresses the portfolio under the adverse and severely adverse shocks
// and reports ECL by scenario, product and stage plus the capital impact.
func (e *Engine) Run(ctx context.Context, items []model.LoanWorkItem, baseMacro model.MacroScenario) (Result, error) {
	baseline, _, err := e.PortfolioECL(ctx, items, baseMacro, Shock{})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		BaselineECL: baseline,
		ByScenario:  make(map[string]ScenarioImpact, 2),
	}
	shocks := map[string]Shock{
		model.ScenarioAdverse: e.adverse,
		model.ScenarioSevere:  e.adverse.Scale(e.severeMult),
	}
	for name, shock := range shocks {
		total, buckets, err := e.PortfolioECL(ctx, items, baseMacro, shock)
		if err != nil {
			return Result{}, err
		}
		res.ByScenario[name] = ScenarioImpact{
			TotalECL:       total,
			ByProductStage: buckets,
			CapitalImpact:  e.capitalRatio * math.Max(0, total-baseline),
		}
	}

	e.logger.Info(ctx, "stress run complete",
		logger.Float64("baselineECL", baseline),
		logger.Float64("adverseECL", res.ByScenario[model.ScenarioAdverse].TotalECL),
		logger.Float64("severeECL", res.ByScenario[model.ScenarioSevere].TotalECL),
	)
	return res, nil
}

// Sensitivity sweeps one macro factor from lo to hi in the configured
// number of steps, holding the others at baseline.
func (e *Engine) Sensitivity(ctx context.Context, items []model.LoanWorkItem, baseMacro model.MacroScenario, factor Factor, lo, hi float64) ([]Point, error) {
	points := make([]Point, 0, e.sensitivitySteps)
	stepSize := (hi - lo) / float64(e.sensitivitySteps-1)
	for i := 0; i < e.sensitivitySteps; i++ {
		magnitude := lo + stepSize*float64(i)
		total, _, err := e.PortfolioECL(ctx, items, baseMacro, shockFor(factor, magnitude))
		if err != nil {
			return nil, err
		}
		points = append(points, Point{Magnitude: magnitude, ECL: total})
	}
	return points, nil
}

// ReverseStress searches for the unified stress level at which portfolio
// ECL first reaches the target multiple of baseline. Level L scales the
// adverse shock by L/3, so level 3 reproduces the adverse scenario.
func (e *Engine) ReverseStress(ctx context.Context, items []model.LoanWorkItem, baseMacro model.MacroScenario) (Breakeven, error) {
	baseline, _, err := e.PortfolioECL(ctx, items, baseMacro, Shock{})
	if err != nil {
		return Breakeven{}, err
	}
	target := e.targetMult * baseline

	for level := e.reverseStep; level <= e.reverseMax+1e-9; level += e.reverseStep {
		shock := e.adverse.Scale(level / reverseLevelAdverse)
		total, _, err := e.PortfolioECL(ctx, items, baseMacro, shock)
		if err != nil {
			return Breakeven{}, err
		}
		if total >= target {
			return Breakeven{
				Found:        true,
				Level:        level,
				ECL:          total,
				TargetECL:    target,
				ImpliedMacro: shock.ApplyTo(baseMacro),
			}, nil
		}
	}

	e.logger.Warn(ctx, "reverse stress found no breakeven within search range",
		logger.Float64("maxLevel", e.reverseMax),
		logger.Float64("target", target),
	)
	return Breakeven{Found: false, TargetECL: target}, nil
}

// PortfolioECL computes total portfolio ECL with the shock applied to the
// baseline macro. Stress impact on outer years is dampened by
// exp(-decay*(year-1)).
func (e *Engine) PortfolioECL(ctx context.Context, items []model.LoanWorkItem, baseMacro model.MacroScenario, shock Shock) (float64, map[model.ProductType]map[model.Stage]float64, error) {
	shocked := shock.ApplyTo(baseMacro)
	buckets := make(map[model.ProductType]map[model.Stage]float64)

	var total float64
	for _, item := range items {
		amount, err := e.loanECL(ctx, item, baseMacro, shocked)
		if err != nil {
			return 0, nil, err
		}
		total += amount

		byStage, ok := buckets[item.Loan.ProductType]
		if !ok {
			byStage = make(map[model.Stage]float64, 3)
			buckets[item.Loan.ProductType] = byStage
		}
		byStage[item.Snapshot.Stage] += amount
	}
	return total, buckets, nil
}

// loanECL computes one loan's ECL under the shocked macro, blending the
// stressed PD curve toward the base curve on outer years.
func (e *Engine) loanECL(ctx context.Context, item model.LoanWorkItem, baseMacro, shocked model.MacroScenario) (float64, error) {
	basePD := e.pdBuilder.ScenarioAdjust(ctx, item.Inputs.PD12M, baseMacro)
	stressPD := e.pdBuilder.ScenarioAdjust(ctx, item.Inputs.PD12M, shocked)

	baseCurve := e.pdBuilder.Build(ctx, basePD, item.Loan.ProductType, item.Snapshot.MonthsOnBook)
	rawCurve := e.pdBuilder.Build(ctx, stressPD, item.Loan.ProductType, item.Snapshot.MonthsOnBook)

	curve := rawCurve
	for year := 1; year <= horizonYears; year++ {
		damp := math.Exp(-e.timeDecay * float64(year-1))
		curve.Marginal[year-1] = baseCurve.Marginal[year-1] +
			(rawCurve.Marginal[year-1]-baseCurve.Marginal[year-1])*damp
	}
	curve.Lifetime = e.pdBuilder.LifetimeFrom(ctx, curve.Marginal, item.Loan.ProductType, item.Snapshot.MonthsOnBook)

	lgdSet := e.lgdEst.Estimate(ctx, lgd.Input{
		Product:        item.Loan.ProductType,
		Stage:          item.Snapshot.Stage,
		LoanToValue:    item.Loan.LoanToValue,
		CreditScore:    item.Loan.CreditScore,
		OriginalAmount: item.Loan.OriginalAmount,
	})
	lgdSet = e.lgdEst.ScenarioAdjust(ctx, lgdSet, shocked)

	profile := e.projector.Project(item.Loan.ProductType, item.Loan.OriginalAmount,
		item.Loan.InterestRate, item.Snapshot.MonthsOnBook, item.Snapshot.Stage)

	out, err := e.calc.Compute(item.Loan, item.Snapshot, item.Snapshot.ObservationDate, []ecl.ScenarioInput{{
		Scenario: shocked,
		Curve:    curve,
		LGD:      lgdSet,
		EAD:      profile,
	}})
	if err != nil {
		return 0, err
	}
	return out.Weighted.ECLFinal, nil
}
