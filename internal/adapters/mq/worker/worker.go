// Package worker runs the calculation pool: each worker drains loan work
// items off the queue, computes the loan's risk estimates and ECL rows, and
// hands the result to a collector.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/pkg/logger"
	"github.com/okian/ifrs9/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Item abstracts what workers read off the queue.
type Item = model.LoanWorkItem

// Calculator computes the full per-loan result: risk estimates and ECL rows
// under every scenario plus the blended weighted row.
type Calculator interface {
	Compute(ctx context.Context, item Item) (model.LoanResult, error)
}

// Collector receives finished loan results. Implementations must be safe
// for concurrent use; every worker calls into the same collector.
type Collector interface {
	Collect(ctx context.Context, result model.LoanResult) error

	// Exclude records a loan the run could not compute. The run continues;
	// the exclusion count is part of the run report.
	Exclude(ctx context.Context, loanID string, reason error)
}

// Queue defines how workers receive items.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Item
}

// Worker processes loan work items until its queue drains.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// CalcWorker implements Worker.
type CalcWorker struct {
	queue     Queue
	calc      Calculator
	collector Collector
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewCalcWorker creates a new worker with configuration options.
func NewCalcWorker(queue Queue, calc Calculator, collector Collector, opts ...Option) *CalcWorker {
	w := &CalcWorker{
		queue:     queue,
		calc:      calc,
		collector: collector,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *CalcWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				// queue drained and closed
				return
			}
			if err := w.process(ctx, item); err != nil {
				w.logger.Error(ctx, "loan computation failed",
					logger.String("loanID", item.Loan.LoanID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *CalcWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process computes one loan and hands the result to the collector. A
// compute failure excludes the loan rather than aborting the run.
func (w *CalcWorker) process(ctx context.Context, item Item) error {
	start := time.Now()
	defer func() {
		metrics.RecordLoanLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	result, err := w.calc.Compute(ctx, item)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordLoanExcluded()
		w.collector.Exclude(ctx, item.Loan.LoanID, err)
		return fmt.Errorf("compute loan %s: %w", item.Loan.LoanID, err)
	}

	if err := w.collector.Collect(ctx, result); err != nil {
		metrics.RecordWorkerError()
		return fmt.Errorf("collect loan %s: %w", item.Loan.LoanID, err)
	}

	metrics.RecordLoanProcessed()
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*CalcWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a worker pool. A non-positive count sizes the pool from
// the CPU count.
func NewPool(workerCount int, queue Queue, calc Calculator, collector Collector) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*CalcWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewCalcWorker(
			queue,
			calc,
			collector,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has drained and stopped, or ctx expires.
// Call after the queue is closed to wait out the tail of a run.
func (p *Pool) Wait(ctx context.Context) error {
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for workers: %w", ctx.Err())
		}
	}
	return nil
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// Close the queue first so workers stop after draining what is left.
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
