package model

// LoanWorkItem is the unit of work fanned out to the calculation pool:
// one loan, its current feature snapshot and its calibrated model inputs.
type LoanWorkItem struct {
	Loan     Loan
	Snapshot LoanFeatureSnapshot
	Inputs   ModelInput

	// FallbackInputs marks that Inputs were substituted from segment
	// defaults because no calibrated estimate existed for the loan.
	FallbackInputs bool
}

// LoanResult bundles everything one worker computes for a loan: the risk
// estimates and ECL rows per scenario plus the blended Weighted row.
type LoanResult struct {
	LoanID    string
	Estimates []RiskEstimate
	Results   []EclResult

	// Weighted is the final blended result, also present in Results under
	// the Weighted pseudo-scenario.
	Weighted EclResult
}
