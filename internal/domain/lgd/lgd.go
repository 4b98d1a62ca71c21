// Package lgd estimates loss-given-default per loan from collateral
// coverage or calibrated segment parameters, with macro-scenario
// adjustment.
package lgd

import (
	"context"
	"math"

	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/pkg/logger"
	"github.com/okian/ifrs9/pkg/metrics"
)

// Estimation defaults. Segment parameters are externally calibrated and
// injected via options; these cover construction without any.
const (
	defaultForcedSaleDiscount       = 0.05
	defaultForcedSaleDiscountStage3 = 0.15
	defaultTTCWeight                = 0.7
	defaultSigmaMultiple            = 1.5
	defaultSecuredDownturnCap       = 0.95
	defaultUnsecuredDownturnCap     = 1.00
	defaultScenarioCap              = 0.99
)

// ScoreBand maps a minimum credit score to a segment LGD mean.
type ScoreBand struct {
	MinScore int
	LGD      float64
}

// Segment carries the calibrated parameters for one product segment.
type Segment struct {
	Bands          []ScoreBand // unsecured products only, descending MinScore
	Sigma          float64
	LongRunAverage float64
}

// Set is the family of LGD measures produced per loan.
type Set struct {
	Pit      float64
	Ttc      float64
	Expected float64
	Downturn float64
}

// Input carries the loan attributes the estimator consumes.
type Input struct {
	Product        model.ProductType
	Stage          model.Stage
	LoanToValue    float64
	CreditScore    int
	OriginalAmount float64

	// CollateralValue, when zero, is derived from the loan-to-value ratio.
	CollateralValue float64
}

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithSegments injects the calibrated segment table.
func WithSegments(segments map[model.ProductType]Segment) Option {
	return func(e *Estimator) {
		if segments != nil {
			e.segments = segments
		}
	}
}

// WithForcedSaleDiscounts overrides the collateral sale discounts.
func WithForcedSaleDiscounts(normal, stage3 float64) Option {
	return func(e *Estimator) {
		if normal >= 0 && normal < 1 && stage3 >= 0 && stage3 < 1 {
			e.forcedSale, e.forcedSaleStage3 = normal, stage3
		}
	}
}

// WithTTCWeight overrides the point-in-time share of the TTC blend.
func WithTTCWeight(w float64) Option {
	return func(e *Estimator) {
		if w > 0 && w <= 1 {
			e.ttcWeight = w
		}
	}
}

// WithSigmaMultiple overrides the downturn add-on scale.
func WithSigmaMultiple(m float64) Option {
	return func(e *Estimator) {
		if m >= 0 {
			e.sigmaMultiple = m
		}
	}
}

// WithDownturnCaps overrides the downturn caps by collateralization.
func WithDownturnCaps(secured, unsecured float64) Option {
	return func(e *Estimator) {
		if secured > 0 && secured <= 1 && unsecured > 0 && unsecured <= 1 {
			e.securedCap, e.unsecuredCap = secured, unsecured
		}
	}
}

// WithScenarioCap overrides the scenario-adjusted LGD cap.
func WithScenarioCap(cap float64) Option {
	return func(e *Estimator) {
		if cap > 0 && cap <= 1 {
			e.scenarioCap = cap
		}
	}
}

// WithLogger sets a custom logger for clamp alerts.
func WithLogger(l logger.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// Estimator produces LGD sets. Stateless after construction; safe for
// concurrent use.
type Estimator struct {
	segments         map[model.ProductType]Segment
	forcedSale       float64
	forcedSaleStage3 float64
	ttcWeight        float64
	sigmaMultiple    float64
	securedCap       float64
	unsecuredCap     float64
	scenarioCap      float64
	logger           logger.Logger
}

// New creates an estimator with configuration options.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		segments:         map[model.ProductType]Segment{},
		forcedSale:       defaultForcedSaleDiscount,
		forcedSaleStage3: defaultForcedSaleDiscountStage3,
		ttcWeight:        defaultTTCWeight,
		sigmaMultiple:    defaultSigmaMultiple,
		securedCap:       defaultSecuredDownturnCap,
		unsecuredCap:     defaultUnsecuredDownturnCap,
		scenarioCap:      defaultScenarioCap,
		logger:           logger.Get().Named("lgd"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate produces the point-in-time, through-the-cycle, expected and
// downturn LGD for a loan.
//
// Secured products derive LGD from collateral coverage after a forced-sale
// discount and a recovery-cost haircut; unsecured products read the segment
// table by credit-score band. Product regulatory floors always apply.
func (e *Estimator) Estimate(ctx context.Context, in Input) Set {
	params := in.Product.Params()
	seg := e.segments[in.Product]

	var pit float64
	if params.Secured {
		pit = e.securedPit(in, params)
	} else {
		pit = bandLGD(seg.Bands, in.CreditScore)
	}
	pit = math.Max(pit, params.LGDFloor)
	pit = e.clamp(ctx, "lgd_pit", pit)

	ttc := e.ttcWeight*pit + (1-e.ttcWeight)*seg.LongRunAverage
	ttc = e.clamp(ctx, "lgd_ttc", ttc)

	expected := math.Max(ttc, params.LGDFloor)

	cap := e.unsecuredCap
	if params.Secured {
		cap = e.securedCap
	}
	downturn := math.Min(expected+e.sigmaMultiple*seg.Sigma, cap)

	return Set{Pit: pit, Ttc: ttc, Expected: expected, Downturn: downturn}
}

// ScenarioAdjust scales the expected and downturn LGD by the scenario's
// housing, unemployment, rate and severity factors. Expected is capped at
// the scenario cap; downturn never exceeds 1.
func (e *Estimator) ScenarioAdjust(ctx context.Context, s Set, scn model.MacroScenario) Set {
	factor := scenarioBaseMultiplier(scn.ScenarioName) *
		housingAdjustment(scn.HPIChangeYoY) *
		unemploymentAdjustment(scn.UnemploymentRate) *
		rateAdjustment(scn.PolicyRate)

	out := s
	out.Expected = math.Min(s.Expected*factor, e.scenarioCap)
	out.Downturn = math.Min(s.Downturn*factor, 1.0)
	out.Expected = e.clamp(ctx, "lgd_expected", out.Expected)
	out.Downturn = e.clamp(ctx, "lgd_downturn", out.Downturn)
	return out
}

// securedPit computes the collateral-implied LGD. When no collateral value
// is supplied it is backed out of the loan-to-value ratio.
func (e *Estimator) securedPit(in Input, params model.ProductParams) float64 {
	if in.OriginalAmount <= 0 {
		return params.LGDFloor
	}
	collateral := in.CollateralValue
	if collateral <= 0 {
		if in.LoanToValue <= 0 {
			return params.LGDFloor
		}
		collateral = in.OriginalAmount / in.LoanToValue
	}

	discount := e.forcedSale
	if in.Stage == model.Stage3 {
		discount = e.forcedSaleStage3
	}
	recovery := collateral * (1 - discount) * (1 - params.RecoveryCostHaircut)
	return math.Max(0, 1-recovery/in.OriginalAmount)
}

// bandLGD returns the first band the score qualifies for. Bands are ordered
// by descending MinScore; an empty table yields zero and the product floor
// takes over.
func bandLGD(bands []ScoreBand, score int) float64 {
	for _, b := range bands {
		if score >= b.MinScore {
			return b.LGD
		}
	}
	return 0
}

// clamp bounds an LGD into [0, 1], surfacing a breach as a monitoring alert
// rather than passing it silently.
func (e *Estimator) clamp(ctx context.Context, measure string, v float64) float64 {
	if v >= 0 && v <= 1 {
		return v
	}
	metrics.RecordOutOfRangeClamp(measure)
	e.logger.Warn(ctx, "lgd outside valid range, clamping",
		logger.String("measure", measure),
		logger.Float64("value", v),
	)
	return math.Min(1, math.Max(0, v))
}

func scenarioBaseMultiplier(name string) float64 {
	switch name {
	case model.ScenarioAdverse:
		return 1.15
	case model.ScenarioSevere:
		return 1.35
	default:
		return 1.0
	}
}

func housingAdjustment(hpiChange float64) float64 {
	switch {
	case hpiChange < -10:
		return 1.3
	case hpiChange < -5:
		return 1.15
	case hpiChange < 0:
		return 1.05
	default:
		return 1.0
	}
}

func unemploymentAdjustment(rate float64) float64 {
	switch {
	case rate > 8:
		return 1.15
	case rate > 6.5:
		return 1.05
	default:
		return 1.0
	}
}

func rateAdjustment(policyRate float64) float64 {
	if policyRate > 5 {
		return 1.1
	}
	return 1.0
}
