// Package config defines the engine configuration and loading hooks.
//
// Every tunable the calculators consume lives here: scenario weights,
// staging thresholds, term-structure constants, overlay factors, stress
// shocks and monitoring cutoffs. Values are layered defaults -> YAML file
// -> environment, then validated before a run can start.
package config

import (
	"math"
	"runtime"

	"github.com/go-playground/validator/v10"
)

// Config is the versioned configuration object handed to the engine.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address in serve mode, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// DBPath is the sqlite database holding the portfolio and results.
	DBPath string `koanf:"db_path" validate:"required"`

	// WorkerCount sets the number of calculation workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`

	// QueueSize bounds the in-memory loan work queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// ScenarioWeights blends per-scenario ECL. Must sum to exactly 1.0;
	// Validate treats any drift as a data-integrity failure.
	ScenarioWeights map[string]float64 `koanf:"scenario_weights" validate:"required,dive,gte=0,lte=1"`

	Staging  StagingConfig  `koanf:"staging"`
	PD       PDConfig       `koanf:"pd"`
	LGD      LGDConfig      `koanf:"lgd"`
	ECL      ECLConfig      `koanf:"ecl"`
	Fallback FallbackConfig `koanf:"fallback"`
	Stress   StressConfig   `koanf:"stress"`
	Monitor  MonitorConfig  `koanf:"monitor"`
}

// StagingConfig holds the SICR trigger constants.
type StagingConfig struct {
	// SICRThreshold is the relative PD deterioration multiple that trips
	// Stage 2 when pd_current > pd_origination * threshold.
	SICRThreshold float64 `koanf:"sicr_threshold" validate:"gt=1"`
}

// PDConfig holds the term-structure constants.
type PDConfig struct {
	// LongRunAverage anchors the through-the-cycle blend.
	LongRunAverage float64 `koanf:"long_run_average" validate:"gt=0,lt=1"`

	// DecayFactors shape marginal PDs for years 1..5.
	DecayFactors []float64 `koanf:"decay_factors" validate:"len=5,dive,gt=0,lte=1"`

	// MaxExtrapolationYears caps the constant-hazard extension beyond
	// year 5. Empirical constant from the source model, not mandated.
	MaxExtrapolationYears int `koanf:"max_extrapolation_years" validate:"gte=5,lte=50"`

	// Floor and Cap bound every produced PD.
	Floor float64 `koanf:"floor" validate:"gt=0,lt=1"`
	Cap   float64 `koanf:"cap" validate:"gt=0,lt=1"`
}

// ScoreBand maps a minimum credit score to a segment LGD mean.
type ScoreBand struct {
	MinScore int     `koanf:"min_score"`
	LGD      float64 `koanf:"lgd" validate:"gte=0,lte=1"`
}

// LGDSegment carries the calibrated parameters for one product segment.
// These arrive from the external modeling component; the engine only
// combines and adjusts them.
type LGDSegment struct {
	// Bands is ordered by descending MinScore; the first band whose
	// MinScore the borrower meets supplies the LGD mean. Only consulted
	// for unsecured products.
	Bands []ScoreBand `koanf:"bands"`

	// Sigma is the segment LGD standard deviation driving the downturn
	// add-on (expected + 1.5 sigma).
	Sigma float64 `koanf:"sigma" validate:"gte=0,lte=1"`

	// LongRunAverage anchors the TTC blend.
	LongRunAverage float64 `koanf:"long_run_average" validate:"gte=0,lte=1"`
}

// LGDConfig holds the loss-given-default constants.
type LGDConfig struct {
	Segments map[string]LGDSegment `koanf:"segments" validate:"required"`

	// Forced-sale discounts on collateral by stage.
	ForcedSaleDiscountStage3 float64 `koanf:"forced_sale_discount_stage3" validate:"gte=0,lt=1"`
	ForcedSaleDiscount       float64 `koanf:"forced_sale_discount" validate:"gte=0,lt=1"`

	// TTCWeight is the point-in-time share of the TTC blend.
	TTCWeight float64 `koanf:"ttc_weight" validate:"gt=0,lte=1"`

	// SigmaMultiple scales the downturn add-on.
	SigmaMultiple float64 `koanf:"sigma_multiple" validate:"gte=0"`

	// Downturn caps by collateralization.
	SecuredDownturnCap   float64 `koanf:"secured_downturn_cap" validate:"gte=0.95,lte=1"`
	UnsecuredDownturnCap float64 `koanf:"unsecured_downturn_cap" validate:"gte=0.95,lte=1"`

	// ScenarioCap bounds the scenario-adjusted 12m/lifetime LGD.
	ScenarioCap float64 `koanf:"scenario_cap" validate:"gt=0,lte=1"`
}

// OverlayConfig parameterizes the ordered management-overlay rules.
type OverlayConfig struct {
	OilProvinces         []string `koanf:"oil_provinces"`
	OilMortgageFactor    float64  `koanf:"oil_mortgage_factor" validate:"gte=1"`
	UnsecuredStage2      float64  `koanf:"unsecured_stage2_factor" validate:"gte=1"`
	NewOriginationFactor float64  `koanf:"new_origination_factor" validate:"gte=1"`
	NewOriginationMonths int      `koanf:"new_origination_months" validate:"gt=0"`
	HighDPDStage2Factor  float64  `koanf:"high_dpd_stage2_factor" validate:"gte=1"`
	HighDPDThreshold     int      `koanf:"high_dpd_threshold" validate:"gt=0"`
}

// ECLConfig holds the provisioning constants.
type ECLConfig struct {
	// DefaultDiscountRate applies when a loan carries no interest rate.
	DefaultDiscountRate float64 `koanf:"default_discount_rate" validate:"gt=0,lt=1"`

	Overlays OverlayConfig `koanf:"overlays"`
}

// FallbackConfig supplies segment-default model inputs for loans missing a
// calibrated estimate. Such loans are always flagged, never silent.
type FallbackConfig struct {
	PD12M           float64 `koanf:"pd_12m" validate:"gt=0,lt=1"`
	PDAtOrigination float64 `koanf:"pd_at_origination" validate:"gt=0,lt=1"`
	LGDBase         float64 `koanf:"lgd_base" validate:"gt=0,lte=1"`
}

// StressConfig holds the shock magnitudes and search parameters.
type StressConfig struct {
	// Adverse shock magnitudes; SeverelyAdverse applies SevereMultiplier.
	UnemploymentShock float64 `koanf:"unemployment_shock"`
	GDPShock          float64 `koanf:"gdp_shock"`
	HPIShock          float64 `koanf:"hpi_shock"`
	RateShock         float64 `koanf:"rate_shock"`
	SevereMultiplier  float64 `koanf:"severe_multiplier" validate:"gte=1"`

	// TimeDecay dampens stress impact on outer years: exp(-decay*(year-1)).
	TimeDecay float64 `koanf:"time_decay" validate:"gte=0"`

	// CapitalRatio converts incremental ECL into a Tier-1 proxy.
	CapitalRatio float64 `koanf:"capital_ratio" validate:"gt=0,lt=1"`

	// Reverse-stress search parameters. Step is an empirical constant from
	// the source model, kept configurable.
	ReverseStep       float64 `koanf:"reverse_step" validate:"gt=0"`
	ReverseMaxLevel   float64 `koanf:"reverse_max_level" validate:"gt=0"`
	ReverseTargetMult float64 `koanf:"reverse_target_multiplier" validate:"gt=1"`

	// SensitivitySteps is the number of points in a one-factor sweep.
	SensitivitySteps int `koanf:"sensitivity_steps" validate:"gt=1"`
}

// MonitorConfig holds stability and backtesting cutoffs.
type MonitorConfig struct {
	PSIMinorShift      float64 `koanf:"psi_minor_shift" validate:"gt=0"`
	PSIMajorShift      float64 `koanf:"psi_major_shift" validate:"gt=0"`
	PDCutoff           float64 `koanf:"pd_cutoff" validate:"gt=0,lt=1"`
	ChallengerFraction float64 `koanf:"challenger_fraction" validate:"gte=0,lte=1"`
	MaturityMonths     int     `koanf:"maturity_months" validate:"gt=0"`
	SignificanceT      float64 `koanf:"significance_t" validate:"gt=0"`
}

// New creates a Config populated with the model defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		Addr:        ":9080",
		DBPath:      "ifrs9.db",
		WorkerCount: runtime.NumCPU() * 2,
		QueueSize:   100_000,
		ScenarioWeights: map[string]float64{
			"Baseline":        0.60,
			"Adverse":         0.30,
			"SeverelyAdverse": 0.10,
		},
		Staging: StagingConfig{
			SICRThreshold: 2.0,
		},
		PD: PDConfig{
			LongRunAverage:        0.05,
			DecayFactors:          []float64{1.0, 0.95, 0.90, 0.85, 0.80},
			MaxExtrapolationYears: 30,
			Floor:                 0.0001,
			Cap:                   0.9999,
		},
		LGD: LGDConfig{
			Segments:                 defaultLGDSegments(),
			ForcedSaleDiscountStage3: 0.15,
			ForcedSaleDiscount:       0.05,
			TTCWeight:                0.7,
			SigmaMultiple:            1.5,
			SecuredDownturnCap:       0.95,
			UnsecuredDownturnCap:     1.00,
			ScenarioCap:              0.99,
		},
		ECL: ECLConfig{
			DefaultDiscountRate: 0.05,
			Overlays: OverlayConfig{
				OilProvinces:         []string{"AB", "SK"},
				OilMortgageFactor:    1.10,
				UnsecuredStage2:      1.05,
				NewOriginationFactor: 1.15,
				NewOriginationMonths: 6,
				HighDPDStage2Factor:  1.20,
				HighDPDThreshold:     60,
			},
		},
		Fallback: FallbackConfig{
			PD12M:           0.03,
			PDAtOrigination: 0.02,
			LGDBase:         0.45,
		},
		Stress: StressConfig{
			UnemploymentShock: 3.0,
			GDPShock:          -5.0,
			HPIShock:          -15.0,
			RateShock:         2.0,
			SevereMultiplier:  1.5,
			TimeDecay:         0.3,
			CapitalRatio:      0.08,
			ReverseStep:       0.1,
			ReverseMaxLevel:   10.0,
			ReverseTargetMult: 2.0,
			SensitivitySteps:  10,
		},
		Monitor: MonitorConfig{
			PSIMinorShift:      0.10,
			PSIMajorShift:      0.25,
			PDCutoff:           0.05,
			ChallengerFraction: 0.10,
			MaturityMonths:     12,
			SignificanceT:      1.96,
		},
	}
}

// defaultLGDSegments carries the externally calibrated segment parameters.
// Secured products only consume Sigma and LongRunAverage; the unsecured
// bands come from the segment lookup keyed by credit-score band.
func defaultLGDSegments() map[string]LGDSegment {
	return map[string]LGDSegment{
		"Mortgage":     {Sigma: 0.08, LongRunAverage: 0.12},
		"HELOC":        {Sigma: 0.10, LongRunAverage: 0.18},
		"AutoLoan":     {Sigma: 0.12, LongRunAverage: 0.35},
		"PersonalLoan": {Sigma: 0.10, LongRunAverage: 0.68, Bands: []ScoreBand{
			{MinScore: 780, LGD: 0.55},
			{MinScore: 720, LGD: 0.60},
			{MinScore: 660, LGD: 0.65},
			{MinScore: 600, LGD: 0.72},
			{MinScore: 0, LGD: 0.80},
		}},
		"CreditCard": {Sigma: 0.08, LongRunAverage: 0.78, Bands: []ScoreBand{
			{MinScore: 780, LGD: 0.70},
			{MinScore: 720, LGD: 0.75},
			{MinScore: 660, LGD: 0.78},
			{MinScore: 600, LGD: 0.82},
			{MinScore: 0, LGD: 0.88},
		}},
		"Other": {Sigma: 0.10, LongRunAverage: 0.50, Bands: []ScoreBand{
			{MinScore: 700, LGD: 0.45},
			{MinScore: 0, LGD: 0.55},
		}},
	}
}

// weightSumTolerance guards the float comparison on scenario weights.
const weightSumTolerance = 1e-9

// Validate checks structural constraints and the scenario-weight invariant.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return WrapInvalid(err)
	}
	var sum float64
	for _, w := range c.ScenarioWeights {
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return NewInvalidf("scenario weights sum to %v, want 1.0", sum)
	}
	if c.PD.Floor >= c.PD.Cap {
		return NewInvalidf("pd floor %v must be below cap %v", c.PD.Floor, c.PD.Cap)
	}
	return nil
}
