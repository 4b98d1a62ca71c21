// Package ead projects current and forward exposure-at-default profiles
// per product amortization schedule.
package ead

import (
	"math"

	"github.com/okian/ifrs9/internal/domain/model"
)

// Horizon is the number of forward years in a profile.
const Horizon = 5

const monthsPerYear = 12

// Profile is the exposure profile for one loan: the exposure today and at
// the end of each of the next five years.
type Profile struct {
	Current float64
	ByYear  [Horizon]float64
}

// Projector computes EAD profiles. Stateless; safe for concurrent use.
type Projector struct{}

// New creates an EAD projector.
func New() *Projector { return &Projector{} }

// Project returns the exposure profile for a loan.
//
// Amortizing products follow their schedule (annuity for mortgages,
// straight-line for auto/personal) evaluated at months_on_book + 12*year;
// revolving products hold drawn + CCF x undrawn constant across the
// horizon. Exposure never goes below zero.
func (p *Projector) Project(product model.ProductType, originalAmount, interestRate float64, monthsOnBook int, stage model.Stage) Profile {
	params := product.Params()

	if params.Amortization == AmortKindRevolving() {
		ead := revolvingEAD(params, originalAmount, stage)
		var prof Profile
		prof.Current = ead
		for i := range prof.ByYear {
			prof.ByYear[i] = ead
		}
		return prof
	}

	var prof Profile
	prof.Current = amortizedBalance(params, originalAmount, interestRate, monthsOnBook)
	for year := 1; year <= Horizon; year++ {
		prof.ByYear[year-1] = amortizedBalance(params, originalAmount, interestRate, monthsOnBook+monthsPerYear*year)
	}
	return prof
}

// AmortKindRevolving re-exports the revolving kind so callers can branch
// without importing the params table shape.
func AmortKindRevolving() model.AmortizationKind { return model.AmortRevolving }

// revolvingEAD treats the original amount as the committed limit. Drawn
// share and CCF scale with the stage.
func revolvingEAD(params model.ProductParams, limit float64, stage model.Stage) float64 {
	sp, ok := params.ByStage[stage]
	if !ok {
		sp = params.ByStage[model.Stage1]
	}
	drawn := sp.Utilization * limit
	undrawn := limit - drawn
	return math.Max(0, drawn+sp.CCF*undrawn)
}

// amortizedBalance returns the scheduled balance after monthsElapsed
// payments, floored at zero once the term is exceeded.
func amortizedBalance(params model.ProductParams, principal, annualRate float64, monthsElapsed int) float64 {
	term := params.TermMonths
	if monthsElapsed >= term || term <= 0 {
		return 0
	}
	if monthsElapsed < 0 {
		monthsElapsed = 0
	}

	switch params.Amortization {
	case model.AmortAnnuity:
		m := annualRate / monthsPerYear
		if m <= 0 {
			return linearBalance(principal, monthsElapsed, term)
		}
		// Remaining balance of a level-payment annuity after k of T payments.
		growthT := math.Pow(1+m, float64(term))
		growthK := math.Pow(1+m, float64(monthsElapsed))
		return math.Max(0, principal*(growthT-growthK)/(growthT-1))
	case model.AmortLinear:
		return linearBalance(principal, monthsElapsed, term)
	default:
		return linearBalance(principal, monthsElapsed, term)
	}
}

func linearBalance(principal float64, monthsElapsed, term int) float64 {
	remaining := 1 - float64(monthsElapsed)/float64(term)
	return math.Max(0, principal*remaining)
}
