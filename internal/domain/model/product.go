// Package model contains the portfolio domain records shared between the
// calculation components and the persistence layer.
package model

// ProductType tags a loan with its product family. All product-specific
// constants hang off the params table below so staging, EAD, LGD and ECL
// share one source of truth instead of re-branching on product strings.
type ProductType string

const (
	ProductMortgage     ProductType = "Mortgage"
	ProductHELOC        ProductType = "HELOC"
	ProductAutoLoan     ProductType = "AutoLoan"
	ProductPersonalLoan ProductType = "PersonalLoan"
	ProductCreditCard   ProductType = "CreditCard"
	ProductOther        ProductType = "Other"
)

// AllProducts lists every known product type in a stable order.
func AllProducts() []ProductType {
	return []ProductType{
		ProductMortgage, ProductHELOC, ProductAutoLoan,
		ProductPersonalLoan, ProductCreditCard, ProductOther,
	}
}

// AmortizationKind selects the balance projection formula.
type AmortizationKind int

const (
	// AmortAnnuity is a standard declining-balance annuity schedule.
	AmortAnnuity AmortizationKind = iota
	// AmortLinear is a straight-line decline to zero at term.
	AmortLinear
	// AmortRevolving has no schedule; exposure is drawn + CCF x undrawn.
	AmortRevolving
)

// StageParams holds the utilization and credit-conversion factors a
// revolving product uses for a given stage.
type StageParams struct {
	Utilization float64
	CCF         float64
}

// ProductParams is the per-product constant block consolidating every rule
// that used to be duplicated across staging, EAD, LGD and ECL logic.
type ProductParams struct {
	Amortization AmortizationKind
	TermMonths   int // scheduled term for amortizing products

	// BehavioralMaturityYears is the lifetime horizon used when the product
	// has no contractual schedule (revolving) or as the contractual life in
	// years for amortizing products.
	BehavioralMaturityYears int

	// Revolving stage schedule, indexed by stage (1..3).
	ByStage map[Stage]StageParams

	Secured             bool
	RecoveryCostHaircut float64 // share of collateral recovery lost to costs

	LGDFloor  float64 // regulatory LGD floor
	FloorRate float64 // regulatory ECL floor as a share of EAD
	ECLCap12m float64 // 12-month ECL cap as a share of EAD
}

var productParams = map[ProductType]ProductParams{
	ProductMortgage: {
		Amortization:            AmortAnnuity,
		TermMonths:              300,
		BehavioralMaturityYears: 25,
		Secured:                 true,
		RecoveryCostHaircut:     0.05,
		LGDFloor:                0.10,
		FloorRate:               0.0005,
		ECLCap12m:               0.05,
	},
	ProductHELOC: {
		Amortization:            AmortRevolving,
		BehavioralMaturityYears: 10,
		ByStage:                 revolvingStageParams,
		Secured:                 true,
		RecoveryCostHaircut:     0.05,
		LGDFloor:                0.15,
		FloorRate:               0.0010,
		ECLCap12m:               0.10,
	},
	ProductAutoLoan: {
		Amortization:            AmortLinear,
		TermMonths:              84,
		BehavioralMaturityYears: 7,
		Secured:                 true,
		RecoveryCostHaircut:     0.30,
		LGDFloor:                0.30,
		FloorRate:               0.0020,
		ECLCap12m:               0.20,
	},
	ProductPersonalLoan: {
		Amortization:            AmortLinear,
		TermMonths:              60,
		BehavioralMaturityYears: 5,
		LGDFloor:                0.65,
		FloorRate:               0.0100,
		ECLCap12m:               0.25,
	},
	ProductCreditCard: {
		Amortization:            AmortRevolving,
		BehavioralMaturityYears: 10,
		ByStage:                 revolvingStageParams,
		LGDFloor:                0.75,
		FloorRate:               0.0200,
		ECLCap12m:               0.30,
	},
	ProductOther: {
		Amortization:            AmortLinear,
		TermMonths:              120,
		BehavioralMaturityYears: 10,
		LGDFloor:                0.50,
		FloorRate:               0.0050,
		ECLCap12m:               0.15,
	},
}

// revolvingStageParams is the stage-scaled utilization/CCF schedule shared
// by CreditCard and HELOC.
var revolvingStageParams = map[Stage]StageParams{
	Stage1: {Utilization: 0.30, CCF: 0.50},
	Stage2: {Utilization: 0.50, CCF: 0.75},
	Stage3: {Utilization: 0.80, CCF: 1.00},
}

// Params returns the constant block for the product, falling back to Other
// for unknown product strings.
func (p ProductType) Params() ProductParams {
	if params, ok := productParams[p]; ok {
		return params
	}
	return productParams[ProductOther]
}

// Unsecured reports whether LGD comes from the segment table rather than
// collateral coverage.
func (p ProductType) Unsecured() bool { return !p.Params().Secured }
