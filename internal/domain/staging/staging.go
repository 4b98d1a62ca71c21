// Package staging assigns IFRS 9 stages from delinquency and relative PD
// deterioration signals, and tracks stage migrations between observation
// dates.
package staging

import (
	"sync"
	"time"

	"github.com/okian/ifrs9/internal/domain/model"
)

// DPD thresholds for the staging rules. The rules are evaluated in priority
// order; first match wins.
const (
	defaultThreshold int = 90 // current or 12m-max DPD at or above this is non-performing
	sicrCurrentDPD   int = 30
	sicrMaxDPD12M    int = 60

	defaultSICRThreshold = 2.0
)

// Input carries the signals the staging rules consume. A zero PD means the
// estimate is unknown and the relative-deterioration rule is skipped.
type Input struct {
	CurrentDPD    int
	MaxDPD12M     int
	PDCurrent     float64
	PDOrigination float64
	DefaultFlag   bool
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithSICRThreshold overrides the relative PD deterioration multiple.
func WithSICRThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 1 {
			e.sicrThreshold = t
		}
	}
}

// Engine evaluates the staging rules. Stateless; safe for concurrent use.
type Engine struct {
	sicrThreshold float64
}

// New creates a staging engine with configuration options.
func New(opts ...Option) *Engine {
	e := &Engine{sicrThreshold: defaultSICRThreshold}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assign returns the stage for the given signals.
//
// Priority order:
//  1. Stage 3 when current_dpd >= 90, max_dpd_12m >= 90, or the default
//     flag is set.
//  2. Stage 2 when current_dpd >= 30, max_dpd_12m >= 60, or both PD
//     estimates are known and pd_current > pd_origination * threshold.
//  3. Stage 1 otherwise.
//
// A loan with no payment history arrives with zero DPD and lands in Stage 1.
func (e *Engine) Assign(in Input) model.Stage {
	if in.DefaultFlag || in.CurrentDPD >= defaultThreshold || in.MaxDPD12M >= defaultThreshold {
		return model.Stage3
	}
	if in.CurrentDPD >= sicrCurrentDPD || in.MaxDPD12M >= sicrMaxDPD12M {
		return model.Stage2
	}
	if in.PDCurrent > 0 && in.PDOrigination > 0 && in.PDCurrent > in.PDOrigination*e.sicrThreshold {
		return model.Stage2
	}
	return model.Stage1
}

// Tracker records stage transitions between consecutive observation dates
// and accumulates the 3x3 migration matrix used for reporting.
type Tracker struct {
	mu     sync.Mutex
	prev   map[string]model.Stage
	matrix [3][3]int
	moves  []model.StageTransition
}

// NewTracker creates an empty migration tracker.
func NewTracker() *Tracker {
	return &Tracker{prev: make(map[string]model.Stage)}
}

// Observe records the stage of loanID at observedAt. When the stage moved
// since the previous observation it returns the transition record.
func (t *Tracker) Observe(loanID string, stage model.Stage, observedAt time.Time) (model.StageTransition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.prev[loanID]
	t.prev[loanID] = stage
	if !seen || prev == stage {
		return model.StageTransition{}, false
	}

	t.matrix[prev-1][stage-1]++
	tr := model.StageTransition{
		LoanID:     loanID,
		StageFrom:  prev,
		StageTo:    stage,
		ObservedAt: observedAt,
	}
	t.moves = append(t.moves, tr)
	return tr, true
}

// Matrix returns a copy of the migration matrix, indexed [from-1][to-1].
func (t *Tracker) Matrix() [3][3]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.matrix
}

// Transitions returns the recorded transitions in observation order.
func (t *Tracker) Transitions() []model.StageTransition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.StageTransition, len(t.moves))
	copy(out, t.moves)
	return out
}
