// Package ecl combines staging, EAD, PD and LGD into 12-month and lifetime
// expected credit loss, applies scenario probability-weighting, management
// overlays and regulatory floors.
package ecl

import (
	"math"
	"time"

	"github.com/okian/ifrs9/internal/domain/ead"
	"github.com/okian/ifrs9/internal/domain/lgd"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/pd"
)

// Calculation defaults.
const (
	defaultDiscountRate   = 0.05
	defaultMaxExtrapYears = 30

	horizonYears = 5

	weightSumTolerance = 1e-9
)

// ScenarioInput bundles the per-scenario term structures a loan's ECL is
// computed from.
type ScenarioInput struct {
	Scenario model.MacroScenario
	Curve    pd.Curve
	LGD      lgd.Set
	EAD      ead.Profile
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithWeights sets the scenario probability weights.
func WithWeights(w map[string]float64) Option {
	return func(c *Calculator) {
		if w != nil {
			c.weights = w
		}
	}
}

// WithDefaultDiscountRate sets the rate used when a loan carries none.
func WithDefaultDiscountRate(r float64) Option {
	return func(c *Calculator) {
		if r > 0 && r < 1 {
			c.defaultDiscount = r
		}
	}
}

// WithOverlays sets the ordered management-overlay stack.
func WithOverlays(rules []OverlayRule) Option {
	return func(c *Calculator) {
		c.overlays = rules
	}
}

// WithMaxExtrapolationYears caps the lifetime extension beyond year 5.
func WithMaxExtrapolationYears(y int) Option {
	return func(c *Calculator) {
		if y >= horizonYears {
			c.maxExtrap = y
		}
	}
}

// Calculator computes scenario-weighted ECL. Pure; safe for concurrent use.
type Calculator struct {
	weights         map[string]float64
	defaultDiscount float64
	overlays        []OverlayRule
	maxExtrap       int
}

// New creates a calculator with configuration options.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		weights: map[string]float64{
			model.ScenarioBaseline: 0.60,
			model.ScenarioAdverse:  0.30,
			model.ScenarioSevere:   0.10,
		},
		defaultDiscount: defaultDiscountRate,
		maxExtrap:       defaultMaxExtrapYears,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Outcome is the full per-loan result: one EclResult per scenario plus the
// blended Weighted row carrying overlays, caps and floors.
type Outcome struct {
	PerScenario []model.EclResult
	Weighted    model.EclResult
	Overlays    []AppliedOverlay
}

// Compute produces the loan's ECL under every supplied scenario and blends
// them by the scenario weights.
//
// Stage 1 provisions the 12-month loss; Stages 2 and 3 the lifetime loss.
// The final amount is overlay-adjusted and floored at the product's
// regulatory floor rate; the per-scenario 12-month ECL is capped at the
// product cap before weighting. Deterministic for identical inputs.
func (c *Calculator) Compute(loan model.Loan, snap model.LoanFeatureSnapshot, calcDate time.Time, inputs []ScenarioInput) (Outcome, error) {
	if len(inputs) == 0 {
		return Outcome{}, ErrNoScenarios
	}
	weights, err := c.scenarioWeights(inputs)
	if err != nil {
		return Outcome{}, err
	}

	params := loan.ProductType.Params()
	rate := loan.InterestRate
	if rate <= 0 {
		rate = c.defaultDiscount
	}
	remaining := pd.RemainingTermYears(loan.ProductType, snap.MonthsOnBook)

	out := Outcome{PerScenario: make([]model.EclResult, 0, len(inputs))}

	var ecl12Weighted, lifeWeighted float64
	var pd12Weighted, pdLifeWeighted, lgdWeighted float64
	eadCurrent := inputs[0].EAD.Current

	for _, in := range inputs {
		w := weights[in.Scenario.ScenarioName]

		ecl12 := in.Curve.PD12M * in.LGD.Expected * in.EAD.Current
		if cap := params.ECLCap12m * in.EAD.Current; ecl12 > cap {
			ecl12 = cap
		}
		life := c.lifetimeECL(in, rate, remaining)

		row := model.EclResult{
			LoanID:          loan.LoanID,
			ScenarioName:    in.Scenario.ScenarioName,
			CalculationDate: calcDate,
			EAD:             in.EAD.Current,
			PD12M:           in.Curve.PD12M,
			PDLifetime:      in.Curve.Lifetime,
			LGD:             in.LGD.Expected,
			ECL12M:          ecl12,
			ECLLifetime:     life,
			Stage:           snap.Stage,
			ProductType:     loan.ProductType,
			OverlayFactor:   1.0,
		}
		if snap.Stage == model.Stage1 {
			row.ECLFinal = ecl12
		} else {
			row.ECLFinal = life
		}
		row.CoverageRatio = coverage(row.ECLFinal, in.EAD.Current)
		out.PerScenario = append(out.PerScenario, row)

		ecl12Weighted += w * ecl12
		lifeWeighted += w * life
		pd12Weighted += w * in.Curve.PD12M
		pdLifeWeighted += w * in.Curve.Lifetime
		lgdWeighted += w * in.LGD.Expected
	}

	final := lifeWeighted
	if snap.Stage == model.Stage1 {
		final = ecl12Weighted
	}

	overlayFactor, applied := applyOverlays(c.overlays, loan, snap)
	afterOverlay := final * overlayFactor

	floor := params.FloorRate * eadCurrent
	finalAmount := math.Max(afterOverlay, floor)

	out.Overlays = applied
	out.Weighted = model.EclResult{
		LoanID:          loan.LoanID,
		ScenarioName:    model.ScenarioWeighted,
		CalculationDate: calcDate,
		EAD:             eadCurrent,
		PD12M:           pd12Weighted,
		PDLifetime:      pdLifeWeighted,
		LGD:             lgdWeighted,
		ECL12M:          ecl12Weighted,
		ECLLifetime:     lifeWeighted,
		ECLFinal:        finalAmount,
		Stage:           snap.Stage,
		ProductType:     loan.ProductType,
		OverlayFactor:   overlayFactor,
		CoverageRatio:   coverage(finalAmount, eadCurrent),
	}
	return out, nil
}

// lifetimeECL discounts each year's marginal loss by the loan's own rate
// and the cumulative survival probability entering the year, extending past
// year 5 at the steady-state year-5 marginal while term remains.
func (c *Calculator) lifetimeECL(in ScenarioInput, rate float64, remainingYears int) float64 {
	var total float64
	survival := 1.0

	last := remainingYears
	if last > horizonYears {
		last = horizonYears
	}
	for year := 1; year <= last; year++ {
		marginal := in.Curve.Marginal[year-1]
		total += marginal * in.LGD.Expected * in.EAD.ByYear[year-1] * survival / math.Pow(1+rate, float64(year))
		survival *= 1 - marginal
	}

	if remainingYears > horizonYears {
		steady := in.Curve.Marginal[horizonYears-1]
		eadSteady := in.EAD.ByYear[horizonYears-1]
		end := remainingYears
		if end > c.maxExtrap {
			end = c.maxExtrap
		}
		for year := horizonYears + 1; year <= end; year++ {
			total += steady * in.LGD.Expected * eadSteady * survival / math.Pow(1+rate, float64(year))
			survival *= 1 - steady
		}
	}
	return total
}

// scenarioWeights resolves the blending weights for the supplied inputs.
// A single-scenario run gets weight 1; otherwise the configured weights
// must cover every scenario and sum to 1.
func (c *Calculator) scenarioWeights(inputs []ScenarioInput) (map[string]float64, error) {
	if len(inputs) == 1 {
		return map[string]float64{inputs[0].Scenario.ScenarioName: 1.0}, nil
	}
	weights := make(map[string]float64, len(inputs))
	sum := 0.0
	for _, in := range inputs {
		w, ok := c.weights[in.Scenario.ScenarioName]
		if !ok {
			return nil, NewWeightsError(in.Scenario.ScenarioName)
		}
		weights[in.Scenario.ScenarioName] = w
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return nil, NewWeightSumError(sum)
	}
	return weights, nil
}

func coverage(eclFinal, ead float64) float64 {
	if ead <= 0 {
		return 0
	}
	return eclFinal / ead
}
