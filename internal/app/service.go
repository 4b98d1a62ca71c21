// Package service wires the domain calculators, the work queue and the
// store into the calculation engine behind the CLI and the HTTP API.
package service

import (
	"context"
	"time"

	"github.com/okian/ifrs9/internal/adapters/export"
	"github.com/okian/ifrs9/internal/adapters/repository"
	"github.com/okian/ifrs9/internal/config"
	"github.com/okian/ifrs9/internal/domain/ead"
	"github.com/okian/ifrs9/internal/domain/ecl"
	"github.com/okian/ifrs9/internal/domain/lgd"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/monitor"
	"github.com/okian/ifrs9/internal/domain/pd"
	"github.com/okian/ifrs9/internal/domain/stress"
	"github.com/okian/ifrs9/pkg/logger"
)

// Default engine configuration constants.
const (
	defaultQueueSize = 100000

	// defaultMaxForecastAge bounds how old a macro forecast may be before
	// provisioning against it becomes a run-level failure.
	defaultMaxForecastAge = 366 * 24 * time.Hour
)

// Service implements the calculation engine and the API dependencies.
type Service struct {
	store repository.Store

	staging   *stagingComponents
	pdBuilder *pd.Builder
	lgdEst    *lgd.Estimator
	projector *ead.Projector
	calc      *ecl.Calculator
	stressEng *stress.Engine
	monitor   *monitor.Monitor
	exporter  *export.Writer

	workerCount    int
	queueSize      int
	maxForecastAge time.Duration
	fallback       config.FallbackConfig

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of calculation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the in-memory work queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxForecastAge overrides the macro freshness window.
func WithMaxForecastAge(age time.Duration) Option {
	return func(s *Service) {
		if age > 0 {
			s.maxForecastAge = age
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs the engine from validated configuration. The calculators
// are built once and shared across runs; they are stateless.
func New(store repository.Store, cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		store:          store,
		staging:        newStagingComponents(cfg),
		pdBuilder:      pdBuilderFromConfig(cfg),
		lgdEst:         lgdEstimatorFromConfig(cfg),
		projector:      ead.New(),
		calc:           calculatorFromConfig(cfg),
		monitor:        monitorFromConfig(cfg),
		exporter:       export.NewWriter(),
		workerCount:    cfg.WorkerCount,
		queueSize:      cfg.QueueSize,
		maxForecastAge: defaultMaxForecastAge,
		fallback:       cfg.Fallback,
		logger:         logger.Get().Named("engine"),
	}
	if s.queueSize <= 0 {
		s.queueSize = defaultQueueSize
	}
	s.stressEng = stressEngineFromConfig(cfg, s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func pdBuilderFromConfig(cfg *config.Config) *pd.Builder {
	return pd.New(
		pd.WithLongRunAverage(cfg.PD.LongRunAverage),
		pd.WithDecayFactors(cfg.PD.DecayFactors),
		pd.WithMaxExtrapolationYears(cfg.PD.MaxExtrapolationYears),
		pd.WithBounds(cfg.PD.Floor, cfg.PD.Cap),
	)
}

func lgdEstimatorFromConfig(cfg *config.Config) *lgd.Estimator {
	segments := make(map[model.ProductType]lgd.Segment, len(cfg.LGD.Segments))
	for name, seg := range cfg.LGD.Segments {
		bands := make([]lgd.ScoreBand, len(seg.Bands))
		for i, b := range seg.Bands {
			bands[i] = lgd.ScoreBand{MinScore: b.MinScore, LGD: b.LGD}
		}
		segments[model.ProductType(name)] = lgd.Segment{
			Bands:          bands,
			Sigma:          seg.Sigma,
			LongRunAverage: seg.LongRunAverage,
		}
	}
	return lgd.New(
		lgd.WithSegments(segments),
		lgd.WithForcedSaleDiscounts(cfg.LGD.ForcedSaleDiscount, cfg.LGD.ForcedSaleDiscountStage3),
		lgd.WithTTCWeight(cfg.LGD.TTCWeight),
		lgd.WithSigmaMultiple(cfg.LGD.SigmaMultiple),
		lgd.WithDownturnCaps(cfg.LGD.SecuredDownturnCap, cfg.LGD.UnsecuredDownturnCap),
		lgd.WithScenarioCap(cfg.LGD.ScenarioCap),
	)
}

func calculatorFromConfig(cfg *config.Config) *ecl.Calculator {
	overlays := ecl.StandardOverlays(ecl.OverlayParams{
		OilProvinces:          cfg.ECL.Overlays.OilProvinces,
		OilMortgageFactor:     cfg.ECL.Overlays.OilMortgageFactor,
		UnsecuredStage2Factor: cfg.ECL.Overlays.UnsecuredStage2,
		NewOriginationFactor:  cfg.ECL.Overlays.NewOriginationFactor,
		NewOriginationMonths:  cfg.ECL.Overlays.NewOriginationMonths,
		HighDPDStage2Factor:   cfg.ECL.Overlays.HighDPDStage2Factor,
		HighDPDThreshold:      cfg.ECL.Overlays.HighDPDThreshold,
	})
	return ecl.New(
		ecl.WithWeights(cfg.ScenarioWeights),
		ecl.WithDefaultDiscountRate(cfg.ECL.DefaultDiscountRate),
		ecl.WithOverlays(overlays),
		ecl.WithMaxExtrapolationYears(cfg.PD.MaxExtrapolationYears),
	)
}

func monitorFromConfig(cfg *config.Config) *monitor.Monitor {
	return monitor.New(
		monitor.WithPSIThresholds(cfg.Monitor.PSIMinorShift, cfg.Monitor.PSIMajorShift),
		monitor.WithPDCutoff(cfg.Monitor.PDCutoff),
		monitor.WithChallengerFraction(cfg.Monitor.ChallengerFraction),
		monitor.WithMaturityMonths(cfg.Monitor.MaturityMonths),
		monitor.WithSignificanceT(cfg.Monitor.SignificanceT),
	)
}

func stressEngineFromConfig(cfg *config.Config, s *Service) *stress.Engine {
	return stress.New(
		s.pdBuilder, s.lgdEst, s.projector, s.calc,
		stress.WithShocks(stress.Shock{
			Unemployment: cfg.Stress.UnemploymentShock,
			GDP:          cfg.Stress.GDPShock,
			HPI:          cfg.Stress.HPIShock,
			Rate:         cfg.Stress.RateShock,
		}),
		stress.WithSevereMultiplier(cfg.Stress.SevereMultiplier),
		stress.WithTimeDecay(cfg.Stress.TimeDecay),
		stress.WithCapitalRatio(cfg.Stress.CapitalRatio),
		stress.WithReverseSearch(cfg.Stress.ReverseStep, cfg.Stress.ReverseMaxLevel, cfg.Stress.ReverseTargetMult),
		stress.WithSensitivitySteps(cfg.Stress.SensitivitySteps),
	)
}

// ResultsForDate returns the committed ECL rows for a calculation date.
func (s *Service) ResultsForDate(ctx context.Context, date time.Time) ([]model.EclResult, error) {
	return s.store.ResultsForDate(ctx, date)
}

// Runs returns the most recent run logs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]model.RunLog, error) {
	return s.store.Runs(ctx, limit)
}

// GetStats returns engine statistics for the ops endpoint.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	stats := map[string]any{
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if run, err := s.store.LatestRun(ctx); err == nil {
		stats["lastRunID"] = run.RunID
		stats["lastRunStatus"] = run.Status
		stats["lastRunDate"] = run.CalculationDate.Format("2006-01-02")
		stats["lastRunLoans"] = run.LoansProcessed
		stats["lastRunExcluded"] = run.LoansExcluded
	}
	return stats
}
