package service

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds for run-level failures. Any of these aborts the run before
// a single row is committed.
var (
	ErrDataIntegrity   = errors.New("data integrity")
	ErrMissingScenario = errors.New("missing macro scenario")
	ErrStaleScenario   = errors.New("stale macro scenario")
	ErrNoLoans         = errors.New("no loans in portfolio")
	ErrNoResults       = errors.New("no results for calculation date")
)

// ErrMalformedLoan marks a loan whose record or payment history fails
// validation. Unlike the run-level sentinels above it is per-loan: the loan
// is excluded from the run and counted, the run itself continues.
var ErrMalformedLoan = errors.New("malformed loan data")

// NewMissingScenarioError reports a scenario with no forecast row.
func NewMissingScenarioError(name string) error {
	return fmt.Errorf("%w: %s has no forecast on or before the calculation date", ErrMissingScenario, name)
}

// NewStaleScenarioError reports a forecast too old to provision against.
func NewStaleScenarioError(name string, forecast time.Time, maxAge time.Duration) error {
	return fmt.Errorf("%w: %s forecast dated %s exceeds the %s freshness window",
		ErrStaleScenario, name, forecast.Format("2006-01-02"), maxAge)
}
