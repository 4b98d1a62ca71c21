package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/pkg/logger"
)

const insertBatchSize = 500

// SQLStore implements Store on SQLite via gorm.
type SQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema.
func Open(path string, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{
		logger: logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenStore, err)
	}

	if err := db.AutoMigrate(
		&model.Loan{},
		&model.PaymentObservation{},
		&model.LoanFeatureSnapshot{},
		&model.MacroScenario{},
		&model.ModelInput{},
		&model.RiskEstimate{},
		&model.EclResult{},
		&model.StageTransition{},
		&model.RunLog{},
	); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrOpenStore, err)
	}

	s.db = db
	return s, nil
}

// Loans returns every active loan in the portfolio.
func (s *SQLStore) Loans(ctx context.Context) ([]model.Loan, error) {
	var loans []model.Loan
	if err := s.db.WithContext(ctx).Order("loan_id").Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	return loans, nil
}

// PaymentsThrough returns payment observations dated on or before cutoff.
func (s *SQLStore) PaymentsThrough(ctx context.Context, cutoff time.Time) ([]model.PaymentObservation, error) {
	var payments []model.PaymentObservation
	err := s.db.WithContext(ctx).
		Where("payment_date <= ?", cutoff).
		Order("loan_id, payment_date").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return payments, nil
}

// MacroForDate returns the freshest forecast row per scenario as of date.
func (s *SQLStore) MacroForDate(ctx context.Context, date time.Time) ([]model.MacroScenario, error) {
	var rows []model.MacroScenario
	err := s.db.WithContext(ctx).
		Where("forecast_date <= ?", date).
		Order("forecast_date").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load macro scenarios: %w", err)
	}

	// Rows arrive in ascending forecast order, so the last row per
	// scenario wins.
	latest := make(map[string]model.MacroScenario, 3)
	for _, row := range rows {
		latest[row.ScenarioName] = row
	}

	out := make([]model.MacroScenario, 0, len(latest))
	for _, name := range model.AllScenarios() {
		if row, ok := latest[name]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// ModelInputs returns the calibrated estimates keyed by loan ID.
func (s *SQLStore) ModelInputs(ctx context.Context) (map[string]model.ModelInput, error) {
	var rows []model.ModelInput
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load model inputs: %w", err)
	}
	out := make(map[string]model.ModelInput, len(rows))
	for _, row := range rows {
		out[row.LoanID] = row
	}
	return out, nil
}

// PreviousStages returns each loan's latest pre-run stage.
func (s *SQLStore) PreviousStages(ctx context.Context, before time.Time) (map[string]model.Stage, error) {
	var rows []model.LoanFeatureSnapshot
	err := s.db.WithContext(ctx).
		Select("loan_id, observation_date, stage").
		Where("observation_date < ?", before).
		Order("observation_date").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load previous stages: %w", err)
	}

	out := make(map[string]model.Stage, len(rows))
	for _, row := range rows {
		out[row.LoanID] = row.Stage
	}
	return out, nil
}

// SnapshotsAsOf returns each loan's latest snapshot strictly before the
// date.
func (s *SQLStore) SnapshotsAsOf(ctx context.Context, before time.Time) (map[string]model.LoanFeatureSnapshot, error) {
	var rows []model.LoanFeatureSnapshot
	err := s.db.WithContext(ctx).
		Where("observation_date < ?", before).
		Order("observation_date").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	out := make(map[string]model.LoanFeatureSnapshot, len(rows))
	for _, row := range rows {
		out[row.LoanID] = row
	}
	return out, nil
}

// WriteRun atomically replaces the run partition and records the run log.
func (s *SQLStore) WriteRun(ctx context.Context, run model.RunLog,
	snapshots []model.LoanFeatureSnapshot,
	transitions []model.StageTransition,
	estimates []model.RiskEstimate,
	results []model.EclResult,
) error {
	for i := range estimates {
		estimates[i].SyncColumns()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		date := run.CalculationDate

		if err := tx.Where("observation_date = ?", date).
			Delete(&model.LoanFeatureSnapshot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("calculation_date = ?", date).
			Delete(&model.RiskEstimate{}).Error; err != nil {
			return err
		}
		if err := tx.Where("calculation_date = ?", date).
			Delete(&model.EclResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("observed_at = ?", date).
			Delete(&model.StageTransition{}).Error; err != nil {
			return err
		}

		if len(snapshots) > 0 {
			if err := tx.CreateInBatches(snapshots, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(transitions) > 0 {
			if err := tx.CreateInBatches(transitions, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(estimates) > 0 {
			if err := tx.CreateInBatches(estimates, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(results) > 0 {
			if err := tx.CreateInBatches(results, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return tx.Create(&run).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteRun, err)
	}

	s.logger.Info(ctx, "run committed",
		logger.String("runID", run.RunID),
		logger.Int("results", len(results)),
	)
	return nil
}

// ResultsForDate returns the ECL rows committed for a calculation date.
func (s *SQLStore) ResultsForDate(ctx context.Context, date time.Time) ([]model.EclResult, error) {
	var rows []model.EclResult
	err := s.db.WithContext(ctx).
		Where("calculation_date = ?", date).
		Order("loan_id, scenario_name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	return rows, nil
}

// EstimatesForDate returns the risk-estimate rows for a calculation date.
func (s *SQLStore) EstimatesForDate(ctx context.Context, date time.Time) ([]model.RiskEstimate, error) {
	var rows []model.RiskEstimate
	err := s.db.WithContext(ctx).
		Where("calculation_date = ?", date).
		Order("loan_id, scenario_name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load estimates: %w", err)
	}
	for i := range rows {
		rows[i].LoadColumns()
	}
	return rows, nil
}

// TransitionsForDate returns the stage transitions observed at a
// calculation date.
func (s *SQLStore) TransitionsForDate(ctx context.Context, date time.Time) ([]model.StageTransition, error) {
	var rows []model.StageTransition
	err := s.db.WithContext(ctx).
		Where("observed_at = ?", date).
		Order("loan_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load transitions: %w", err)
	}
	return rows, nil
}

// Runs returns the most recent run logs, newest first.
func (s *SQLStore) Runs(ctx context.Context, limit int) ([]model.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.RunLog
	err := s.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	return rows, nil
}

// LatestRun returns the newest run log.
func (s *SQLStore) LatestRun(ctx context.Context) (model.RunLog, error) {
	var run model.RunLog
	err := s.db.WithContext(ctx).Order("started_at desc").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.RunLog{}, ErrNotFound
	}
	if err != nil {
		return model.RunLog{}, fmt.Errorf("load latest run: %w", err)
	}
	return run, nil
}

// SaveLoans loads loans into the store.
func (s *SQLStore) SaveLoans(ctx context.Context, loans []model.Loan) error {
	if len(loans) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(loans, insertBatchSize).Error
}

// SavePayments loads payment observations into the store.
func (s *SQLStore) SavePayments(ctx context.Context, payments []model.PaymentObservation) error {
	if len(payments) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(payments, insertBatchSize).Error
}

// SaveMacros loads macro forecast rows into the store.
func (s *SQLStore) SaveMacros(ctx context.Context, macros []model.MacroScenario) error {
	if len(macros) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(macros, insertBatchSize).Error
}

// SaveModelInputs loads calibrated model estimates into the store.
func (s *SQLStore) SaveModelInputs(ctx context.Context, inputs []model.ModelInput) error {
	if len(inputs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(inputs, insertBatchSize).Error
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
