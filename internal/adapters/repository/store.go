// Package repository defines the portfolio store interface and its
// SQLite-backed implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/ifrs9/internal/domain/model"
)

// Store provides read access to the portfolio inputs and transactional
// write access to run outputs.
type Store interface {
	// Loans returns every active loan in the portfolio.
	Loans(ctx context.Context) ([]model.Loan, error)

	// PaymentsThrough returns all payment observations dated on or before
	// the cutoff, ordered by loan and payment date.
	PaymentsThrough(ctx context.Context, cutoff time.Time) ([]model.PaymentObservation, error)

	// MacroForDate returns, per scenario, the forecast row with the latest
	// forecast date on or before the calculation date.
	MacroForDate(ctx context.Context, date time.Time) ([]model.MacroScenario, error)

	// ModelInputs returns the calibrated PD/LGD estimates keyed by loan ID.
	ModelInputs(ctx context.Context) (map[string]model.ModelInput, error)

	// PreviousStages returns each loan's stage from the most recent feature
	// snapshot strictly before the calculation date, for migration tracking.
	PreviousStages(ctx context.Context, before time.Time) (map[string]model.Stage, error)

	// SnapshotsAsOf returns each loan's most recent feature snapshot
	// strictly before the date, keyed by loan ID. Used as the baseline
	// population for characteristic-stability monitoring.
	SnapshotsAsOf(ctx context.Context, before time.Time) (map[string]model.LoanFeatureSnapshot, error)

	// WriteRun atomically replaces the calculation-date partition of the
	// snapshots, stage transitions, risk estimates and ECL results, and
	// records the run log. Either everything commits or nothing does.
	WriteRun(ctx context.Context, run model.RunLog,
		snapshots []model.LoanFeatureSnapshot,
		transitions []model.StageTransition,
		estimates []model.RiskEstimate,
		results []model.EclResult) error

	// ResultsForDate returns the ECL rows committed for a calculation date.
	ResultsForDate(ctx context.Context, date time.Time) ([]model.EclResult, error)

	// EstimatesForDate returns the risk-estimate rows committed for a
	// calculation date.
	EstimatesForDate(ctx context.Context, date time.Time) ([]model.RiskEstimate, error)

	// TransitionsForDate returns the stage transitions observed at a
	// calculation date.
	TransitionsForDate(ctx context.Context, date time.Time) ([]model.StageTransition, error)

	// Runs returns the most recent run logs, newest first.
	Runs(ctx context.Context, limit int) ([]model.RunLog, error)

	// LatestRun returns the newest run log. ErrNotFound when none exists.
	LatestRun(ctx context.Context) (model.RunLog, error)

	// SaveLoans, SavePayments, SaveMacros and SaveModelInputs load a
	// portfolio into the store. Used by the synthetic data generator and
	// by ingestion jobs.
	SaveLoans(ctx context.Context, loans []model.Loan) error
	SavePayments(ctx context.Context, payments []model.PaymentObservation) error
	SaveMacros(ctx context.Context, macros []model.MacroScenario) error
	SaveModelInputs(ctx context.Context, inputs []model.ModelInput) error

	// Close releases the underlying database handle.
	Close() error
}
