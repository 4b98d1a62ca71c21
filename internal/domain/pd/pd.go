// Package pd builds multi-year probability-of-default term structures from
// a calibrated 12-month PD, with macro-scenario adjustment.
package pd

import (
	"context"
	"math"

	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/pkg/logger"
	"github.com/okian/ifrs9/pkg/metrics"
)

// Term-structure defaults. All overridable via options; the extrapolation
// horizon is an empirical constant from the source model.
const (
	defaultLongRunAverage = 0.05
	defaultMaxExtrapYears = 30
	defaultFloor          = 0.0001
	defaultCap            = 0.9999

	ttcPitWeight     = 0.8
	ttcLongRunWeight = 0.2

	horizonYears = 5
)

// defaultDecayFactors assume a 5% survival-curve improvement per year.
var defaultDecayFactors = [horizonYears]float64{1.0, 0.95, 0.90, 0.85, 0.80}

// Curve is a five-year marginal PD term structure plus the lifetime PD over
// the loan's remaining term.
type Curve struct {
	PD12M    float64 // scenario-adjusted point-in-time 12-month PD
	Marginal [horizonYears]float64
	Lifetime float64
}

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithLongRunAverage overrides the TTC anchor.
func WithLongRunAverage(avg float64) Option {
	return func(b *Builder) {
		if avg > 0 && avg < 1 {
			b.longRun = avg
		}
	}
}

// WithDecayFactors overrides the five marginal decay factors.
func WithDecayFactors(f []float64) Option {
	return func(b *Builder) {
		if len(f) == horizonYears {
			copy(b.decay[:], f)
		}
	}
}

// WithMaxExtrapolationYears caps the constant-hazard extension.
func WithMaxExtrapolationYears(y int) Option {
	return func(b *Builder) {
		if y >= horizonYears {
			b.maxExtrap = y
		}
	}
}

// WithBounds overrides the PD floor and cap.
func WithBounds(floor, cap float64) Option {
	return func(b *Builder) {
		if floor > 0 && cap < 1 && floor < cap {
			b.floor, b.cap = floor, cap
		}
	}
}

// WithLogger sets a custom logger for clamp alerts.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder constructs PD term structures. Stateless after construction; safe
// for concurrent use.
type Builder struct {
	longRun   float64
	decay     [horizonYears]float64
	maxExtrap int
	floor     float64
	cap       float64
	logger    logger.Logger
}

// New creates a term-structure builder with configuration options.
func New(opts ...Option) *Builder {
	b := &Builder{
		longRun:   defaultLongRunAverage,
		decay:     defaultDecayFactors,
		maxExtrap: defaultMaxExtrapYears,
		floor:     defaultFloor,
		cap:       defaultCap,
		logger:    logger.Get().Named("pd"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build turns a (scenario-adjusted) 12-month PD into a marginal curve and
// lifetime PD over the loan's remaining term.
//
// Year-1 marginal equals the TTC blend; later marginals decay geometrically
// on the surviving population. Beyond year 5 the curve extends at the
// steady-state year-5 marginal (constant hazard) until the remaining term
// or the extrapolation cap, whichever comes first.
func (b *Builder) Build(ctx context.Context, pd12m float64, product model.ProductType, monthsOnBook int) Curve {
	pit := b.Clamp(ctx, "pd_12m", pd12m)
	ttc := ttcPitWeight*pit + ttcLongRunWeight*b.longRun

	var c Curve
	c.PD12M = pit

	cumulative := 0.0
	for year := 0; year < horizonYears; year++ {
		marginal := (1 - cumulative) * ttc * b.decay[year]
		c.Marginal[year] = marginal
		cumulative += marginal
	}

	c.Lifetime = b.LifetimeFrom(ctx, c.Marginal, product, monthsOnBook)
	return c
}

// LifetimeFrom computes the lifetime PD implied by a marginal curve over
// the loan's remaining term, extending past year 5 at the steady-state
// year-5 marginal.
func (b *Builder) LifetimeFrom(ctx context.Context, marginal [horizonYears]float64, product model.ProductType, monthsOnBook int) float64 {
	remaining := RemainingTermYears(product, monthsOnBook)

	if remaining <= horizonYears {
		lifetime := 0.0
		for year := 0; year < remaining; year++ {
			lifetime += marginal[year]
		}
		return b.Clamp(ctx, "pd_lifetime", lifetime)
	}

	cumulative := 0.0
	for _, m := range marginal {
		cumulative += m
	}
	lifetime := cumulative
	steady := marginal[horizonYears-1]
	survival := 1 - cumulative
	last := remaining
	if last > b.maxExtrap {
		last = b.maxExtrap
	}
	for year := horizonYears + 1; year <= last; year++ {
		lifetime += survival * steady
		survival *= 1 - steady
	}
	return b.Clamp(ctx, "pd_lifetime", lifetime)
}

// ScenarioAdjust applies the macro-scenario multipliers to a calibrated
// base PD: scenario base x GDP x unemployment x policy-rate step factors,
// clamped to the configured bounds.
func (b *Builder) ScenarioAdjust(ctx context.Context, pdBase float64, scn model.MacroScenario) float64 {
	adjusted := pdBase *
		ScenarioBaseMultiplier(scn.ScenarioName) *
		gdpAdjustment(scn.GDPGrowthYoY) *
		unemploymentAdjustment(scn.UnemploymentRate) *
		rateAdjustment(scn.PolicyRate)
	return b.Clamp(ctx, "pd_scenario", adjusted)
}

// Clamp bounds a PD into [floor, cap]. A breach is a calibration or formula
// bug: the value is clamped defensively and surfaced as a monitoring alert.
func (b *Builder) Clamp(ctx context.Context, measure string, pd float64) float64 {
	if pd >= b.floor && pd <= b.cap {
		return pd
	}
	metrics.RecordOutOfRangeClamp(measure)
	b.logger.Warn(ctx, "pd outside valid range, clamping",
		logger.String("measure", measure),
		logger.Float64("value", pd),
	)
	return math.Min(b.cap, math.Max(b.floor, pd))
}

// RemainingTermYears is the lifetime horizon in whole years: contractual
// maturity minus years on book for amortizing products, a fixed behavioral
// maturity for revolving ones. Never below one year.
func RemainingTermYears(product model.ProductType, monthsOnBook int) int {
	params := product.Params()
	if params.Amortization == model.AmortRevolving {
		return params.BehavioralMaturityYears
	}
	remaining := params.BehavioralMaturityYears - monthsOnBook/12
	if remaining < 1 {
		return 1
	}
	return remaining
}

// ScenarioBaseMultiplier is the severity uplift attached to each named
// scenario before any macro-value adjustment.
func ScenarioBaseMultiplier(name string) float64 {
	switch name {
	case model.ScenarioAdverse:
		return 1.3
	case model.ScenarioSevere:
		return 1.8
	default:
		return 1.0
	}
}

// Step functions of the scenario's macro values.

func gdpAdjustment(gdpGrowth float64) float64 {
	switch {
	case gdpGrowth < -2:
		return 1.4
	case gdpGrowth < 0:
		return 1.2
	case gdpGrowth < 1.5:
		return 1.1
	default:
		return 1.0
	}
}

func unemploymentAdjustment(rate float64) float64 {
	switch {
	case rate > 9:
		return 1.5
	case rate > 7.5:
		return 1.25
	case rate > 6.5:
		return 1.1
	default:
		return 1.0
	}
}

func rateAdjustment(policyRate float64) float64 {
	switch {
	case policyRate > 6:
		return 1.2
	case policyRate > 4.5:
		return 1.1
	default:
		return 1.0
	}
}
