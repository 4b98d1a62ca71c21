package ecl

import (
	"errors"
	"fmt"
)

// Sentinel kinds for ECL calculation errors. Weight problems are
// data-integrity failures and abort the whole run.
var (
	ErrNoScenarios = errors.New("no scenario inputs")
	ErrWeights     = errors.New("invalid scenario weights")
)

// NewWeightsError reports a scenario with no configured weight.
func NewWeightsError(scenario string) error {
	return fmt.Errorf("%w: no weight for scenario %q", ErrWeights, scenario)
}

// NewWeightSumError reports weights that do not sum to 1.0.
func NewWeightSumError(sum float64) error {
	return fmt.Errorf("%w: weights sum to %v, want 1.0", ErrWeights, sum)
}
