// Package monitor tracks model health in production: population and
// characteristic stability, backtesting against realized defaults, and
// champion-challenger comparison.
package monitor

import (
	"context"
	"hash/fnv"
	"math"
	"sort"

	"github.com/okian/ifrs9/pkg/logger"
)

// Monitoring defaults. Thresholds follow common industry PSI conventions.
const (
	defaultPSIMinorShift      = 0.1
	defaultPSIMajorShift      = 0.25
	defaultPDCutoff           = 0.05
	defaultChallengerFraction = 0.10
	defaultMaturityMonths     = 12
	defaultSignificanceT      = 1.96

	decileBins = 10

	// epsilon guards the log-ratio when a bin is empty on one side.
	epsilon = 1e-6
)

// StabilityStatus grades a PSI/CSI value against the shift thresholds.
type StabilityStatus string

const (
	StatusStable     StabilityStatus = "stable"
	StatusMinorShift StabilityStatus = "minor_shift"
	StatusMajorShift StabilityStatus = "major_shift"
)

// StabilityReport is the outcome of one PSI or CSI comparison.
type StabilityReport struct {
	Metric   string
	Index    float64
	Status   StabilityStatus
	Baseline []float64 // per-bin baseline proportions
	Current  []float64 // per-bin current proportions
}

// BacktestReport compares predicted 12-month PD against realized defaults
// for a matured cohort.
type BacktestReport struct {
	CohortSize           int
	PredictedDefaultRate float64
	ObservedDefaultRate  float64
	MAE                  float64
	RMSE                 float64
	Precision            float64
	Recall               float64
	F1                   float64
}

// Observation pairs a matured loan's predicted PD with its realized
// default outcome.
type Observation struct {
	LoanID       string
	PredictedPD  float64
	Defaulted    bool
	MonthsOnBook int
}

// ChallengerReport compares champion and challenger predictions on the
// routed population split.
type ChallengerReport struct {
	ChampionCount   int
	ChallengerCount int
	ChampionMean    float64
	ChallengerMean  float64
	TStatistic      float64
	Significant     bool
}

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithPSIThresholds overrides the minor and major shift cutoffs.
func WithPSIThresholds(minor, major float64) Option {
	return func(m *Monitor) {
		if minor > 0 && major > minor {
			m.psiMinor, m.psiMajor = minor, major
		}
	}
}

// WithPDCutoff overrides the default-classification cutoff for backtests.
func WithPDCutoff(c float64) Option {
	return func(m *Monitor) {
		if c > 0 && c < 1 {
			m.pdCutoff = c
		}
	}
}

// WithChallengerFraction overrides the share of loans routed to the
// challenger model.
func WithChallengerFraction(f float64) Option {
	return func(m *Monitor) {
		if f > 0 && f < 1 {
			m.challengerFraction = f
		}
	}
}

// WithMaturityMonths overrides the minimum seasoning for backtest cohorts.
func WithMaturityMonths(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.maturityMonths = n
		}
	}
}

// WithSignificanceT overrides the two-sided t-statistic cutoff.
func WithSignificanceT(t float64) Option {
	return func(m *Monitor) {
		if t > 0 {
			m.significanceT = t
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// Monitor runs the model-health checks. Stateless after construction; safe
// for concurrent use.
type Monitor struct {
	psiMinor           float64
	psiMajor           float64
	pdCutoff           float64
	challengerFraction float64
	maturityMonths     int
	significanceT      float64
	logger             logger.Logger
}

// New creates a monitor with configuration options.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		psiMinor:           defaultPSIMinorShift,
		psiMajor:           defaultPSIMajorShift,
		pdCutoff:           defaultPDCutoff,
		challengerFraction: defaultChallengerFraction,
		maturityMonths:     defaultMaturityMonths,
		significanceT:      defaultSignificanceT,
		logger:             logger.Get().Named("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PSI computes the population stability index of current against baseline
// over baseline deciles. Empty inputs yield a stable zero report.
func (m *Monitor) PSI(ctx context.Context, metric string, baseline, current []float64) StabilityReport {
	if len(baseline) == 0 || len(current) == 0 {
		return StabilityReport{Metric: metric, Status: StatusStable}
	}

	edges := decileEdges(baseline)
	baseProps := binProportions(baseline, edges)
	currProps := binProportions(current, edges)

	index := 0.0
	for i := range baseProps {
		b := math.Max(baseProps[i], epsilon)
		c := math.Max(currProps[i], epsilon)
		index += (c - b) * math.Log(c/b)
	}

	report := StabilityReport{
		Metric:   metric,
		Index:    index,
		Status:   m.grade(index),
		Baseline: baseProps,
		Current:  currProps,
	}
	if report.Status != StatusStable {
		m.logger.Warn(ctx, "population shift detected",
			logger.String("metric", metric),
			logger.Float64("psi", index),
			logger.String("status", string(report.Status)),
		)
	}
	return report
}

// CSI computes characteristic stability for each named feature. The math is
// the PSI applied per characteristic.
func (m *Monitor) CSI(ctx context.Context, baseline, current map[string][]float64) []StabilityReport {
	names := make([]string, 0, len(baseline))
	for name := range baseline {
		names = append(names, name)
	}
	sort.Strings(names)

	reports := make([]StabilityReport, 0, len(names))
	for _, name := range names {
		reports = append(reports, m.PSI(ctx, name, baseline[name], current[name]))
	}
	return reports
}

// Backtest compares predicted PD against realized defaults on the matured
// slice of the observations. Loans younger than the maturity cutoff are
// dropped: their outcome window has not closed.
func (m *Monitor) Backtest(ctx context.Context, obs []Observation) BacktestReport {
	var cohort []Observation
	for _, o := range obs {
		if o.MonthsOnBook >= m.maturityMonths {
			cohort = append(cohort, o)
		}
	}
	if len(cohort) == 0 {
		return BacktestReport{}
	}

	var sumPred, sumAbs, sumSq float64
	var defaults, tp, fp, fn int
	for _, o := range cohort {
		outcome := 0.0
		if o.Defaulted {
			outcome = 1.0
			defaults++
		}
		diff := o.PredictedPD - outcome
		sumPred += o.PredictedPD
		sumAbs += math.Abs(diff)
		sumSq += diff * diff

		predicted := o.PredictedPD >= m.pdCutoff
		switch {
		case predicted && o.Defaulted:
			tp++
		case predicted && !o.Defaulted:
			fp++
		case !predicted && o.Defaulted:
			fn++
		}
	}

	n := float64(len(cohort))
	report := BacktestReport{
		CohortSize:           len(cohort),
		PredictedDefaultRate: sumPred / n,
		ObservedDefaultRate:  float64(defaults) / n,
		MAE:                  sumAbs / n,
		RMSE:                 math.Sqrt(sumSq / n),
		Precision:            ratio(tp, tp+fp),
		Recall:               ratio(tp, tp+fn),
	}
	if report.Precision+report.Recall > 0 {
		report.F1 = 2 * report.Precision * report.Recall / (report.Precision + report.Recall)
	}

	m.logger.Info(ctx, "backtest complete",
		logger.Int("cohort", report.CohortSize),
		logger.Float64("observedRate", report.ObservedDefaultRate),
		logger.Float64("predictedRate", report.PredictedDefaultRate),
	)
	return report
}

// RouteToChallenger reports whether a loan belongs to the challenger slice.
// Routing hashes the loan ID, so a loan stays with the same model across
// runs and the split needs no stored assignment table.
func (m *Monitor) RouteToChallenger(loanID string) bool {
	h := fnv.New32a()
	h.Write([]byte(loanID))
	return float64(h.Sum32()%1000) < m.challengerFraction*1000
}

// CompareChallenger runs a Welch two-sample t-test on the champion and
// challenger prediction means. A significant difference flags the
// challenger for review before any promotion decision.
func (m *Monitor) CompareChallenger(ctx context.Context, champion, challenger []float64) ChallengerReport {
	report := ChallengerReport{
		ChampionCount:   len(champion),
		ChallengerCount: len(challenger),
	}
	if len(champion) < 2 || len(challenger) < 2 {
		return report
	}

	report.ChampionMean = mean(champion)
	report.ChallengerMean = mean(challenger)

	varA := variance(champion, report.ChampionMean)
	varB := variance(challenger, report.ChallengerMean)
	se := math.Sqrt(varA/float64(len(champion)) + varB/float64(len(challenger)))
	if se > 0 {
		report.TStatistic = (report.ChallengerMean - report.ChampionMean) / se
	}
	report.Significant = math.Abs(report.TStatistic) > m.significanceT

	if report.Significant {
		m.logger.Warn(ctx, "challenger diverges significantly from champion",
			logger.Float64("championMean", report.ChampionMean),
			logger.Float64("challengerMean", report.ChallengerMean),
			logger.Float64("t", report.TStatistic),
		)
	}
	return report
}

// grade maps an index value onto the stability scale.
func (m *Monitor) grade(index float64) StabilityStatus {
	switch {
	case index >= m.psiMajor:
		return StatusMajorShift
	case index >= m.psiMinor:
		return StatusMinorShift
	default:
		return StatusStable
	}
}

// decileEdges returns the nine interior decile breakpoints of the baseline
// distribution.
func decileEdges(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	edges := make([]float64, decileBins-1)
	n := len(sorted)
	for i := 1; i < decileBins; i++ {
		pos := float64(i) / decileBins * float64(n-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		frac := pos - float64(lo)
		edges[i-1] = sorted[lo]*(1-frac) + sorted[hi]*frac
	}
	return edges
}

// binProportions buckets values by the edges and normalizes the counts.
func binProportions(values []float64, edges []float64) []float64 {
	counts := make([]float64, len(edges)+1)
	for _, v := range values {
		counts[bucket(v, edges)]++
	}
	n := float64(len(values))
	for i := range counts {
		counts[i] /= n
	}
	return counts
}

func bucket(v float64, edges []float64) int {
	for i, e := range edges {
		if v <= e {
			return i
		}
	}
	return len(edges)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance is the unbiased sample variance.
func variance(values []float64, mu float64) float64 {
	sum := 0.0
	for _, v := range values {
		d := v - mu
		sum += d * d
	}
	return sum / float64(len(values)-1)
}
