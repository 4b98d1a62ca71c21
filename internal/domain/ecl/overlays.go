package ecl

import (
	"github.com/okian/ifrs9/internal/domain/model"
)

// OverlayRule is one post-model management overlay. Rules are applied in
// order; factors stack multiplicatively and each application is recorded so
// the overlay stack stays auditable.
type OverlayRule struct {
	Name    string
	Factor  float64
	Applies func(loan model.Loan, snap model.LoanFeatureSnapshot) bool
}

// OverlayParams parameterizes the standard overlay stack.
type OverlayParams struct {
	OilProvinces          []string
	OilMortgageFactor     float64
	UnsecuredStage2Factor float64
	NewOriginationFactor  float64
	NewOriginationMonths  int
	HighDPDStage2Factor   float64
	HighDPDThreshold      int
}

// StandardOverlays builds the ordered management-overlay stack:
// oil-region mortgages, emerging-risk unsecured Stage 2 accounts, new
// originations, and high-DPD Stage 2 accounts. Each condition is evaluated
// independently.
func StandardOverlays(p OverlayParams) []OverlayRule {
	oil := make(map[string]bool, len(p.OilProvinces))
	for _, prov := range p.OilProvinces {
		oil[prov] = true
	}

	return []OverlayRule{
		{
			Name:   "oil_region_mortgage",
			Factor: p.OilMortgageFactor,
			Applies: func(loan model.Loan, _ model.LoanFeatureSnapshot) bool {
				return loan.ProductType == model.ProductMortgage && oil[loan.Province]
			},
		},
		{
			Name:   "emerging_risk_unsecured_stage2",
			Factor: p.UnsecuredStage2Factor,
			Applies: func(loan model.Loan, snap model.LoanFeatureSnapshot) bool {
				return loan.ProductType.Unsecured() && snap.Stage == model.Stage2
			},
		},
		{
			Name:   "new_origination",
			Factor: p.NewOriginationFactor,
			Applies: func(_ model.Loan, snap model.LoanFeatureSnapshot) bool {
				return snap.MonthsOnBook < p.NewOriginationMonths
			},
		},
		{
			Name:   "high_dpd_stage2",
			Factor: p.HighDPDStage2Factor,
			Applies: func(_ model.Loan, snap model.LoanFeatureSnapshot) bool {
				return snap.Stage == model.Stage2 && snap.CurrentDPD > p.HighDPDThreshold
			},
		},
	}
}

// AppliedOverlay records one overlay hit for the audit trail.
type AppliedOverlay struct {
	Name   string
	Factor float64
}

// applyOverlays walks the rule list in order and returns the combined
// factor with the individual hits.
func applyOverlays(rules []OverlayRule, loan model.Loan, snap model.LoanFeatureSnapshot) (float64, []AppliedOverlay) {
	factor := 1.0
	var applied []AppliedOverlay
	for _, r := range rules {
		if r.Factor > 0 && r.Applies != nil && r.Applies(loan, snap) {
			factor *= r.Factor
			applied = append(applied, AppliedOverlay{Name: r.Name, Factor: r.Factor})
		}
	}
	return factor, applied
}
