package worker_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/ifrs9/internal/adapters/mq/queue"
	"github.com/okian/ifrs9/internal/adapters/mq/worker"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var errBadLoan = errors.New("bad loan")

// stubCalculator fails loans whose ID carries the "BAD" prefix.
type stubCalculator struct{}

func (stubCalculator) Compute(_ context.Context, item worker.Item) (model.LoanResult, error) {
	if len(item.Loan.LoanID) >= 3 && item.Loan.LoanID[:3] == "BAD" {
		return model.LoanResult{}, errBadLoan
	}
	return model.LoanResult{
		LoanID:   item.Loan.LoanID,
		Weighted: model.EclResult{LoanID: item.Loan.LoanID, ECLFinal: 100},
	}, nil
}

// memCollector gathers results and exclusions behind a mutex.
type memCollector struct {
	mu       sync.Mutex
	results  []model.LoanResult
	excluded map[string]error
}

func newMemCollector() *memCollector {
	return &memCollector{excluded: make(map[string]error)}
}

func (c *memCollector) Collect(_ context.Context, result model.LoanResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	return nil
}

func (c *memCollector) Exclude(_ context.Context, loanID string, reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.excluded[loanID] = reason
}

func (c *memCollector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results), len(c.excluded)
}

func enqueueAll(ctx context.Context, q *queue.InMemoryQueue, ids ...string) {
	for _, id := range ids {
		q.Enqueue(ctx, model.LoanWorkItem{Loan: model.Loan{LoanID: id}})
	}
}

func TestPoolDrainsQueue(t *testing.T) {
	Convey("Given a pool of four workers over a populated queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		collector := newMemCollector()
		pool := worker.NewPool(4, q, stubCalculator{}, collector)

		ids := make([]string, 0, 20)
		for i := 0; i < 20; i++ {
			ids = append(ids, fmt.Sprintf("L%04d", i))
		}
		enqueueAll(ctx, q, ids...)
		So(q.Close(), ShouldBeNil)

		Convey("When the pool runs until the queue drains", func() {
			pool.Start(ctx)

			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(pool.Wait(waitCtx), ShouldBeNil)

			Convey("Then every loan is collected exactly once", func() {
				done, excluded := collector.counts()
				So(done, ShouldEqual, 20)
				So(excluded, ShouldEqual, 0)
			})
		})
	})
}

func TestFailedLoanIsExcludedNotFatal(t *testing.T) {
	Convey("Given a queue with one poisoned loan among good ones", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		collector := newMemCollector()
		pool := worker.NewPool(2, q, stubCalculator{}, collector)

		enqueueAll(ctx, q, "L0001", "BAD001", "L0002")
		So(q.Close(), ShouldBeNil)

		Convey("When the pool processes the batch", func() {
			pool.Start(ctx)

			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(pool.Wait(waitCtx), ShouldBeNil)

			Convey("Then the good loans complete and the bad one is excluded", func() {
				done, excluded := collector.counts()
				So(done, ShouldEqual, 2)
				So(excluded, ShouldEqual, 1)

				collector.mu.Lock()
				reason := collector.excluded["BAD001"]
				collector.mu.Unlock()
				So(errors.Is(reason, errBadLoan), ShouldBeTrue)
			})
		})
	})
}

func TestPoolShutdownClosesQueue(t *testing.T) {
	Convey("Given a running pool over an open queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		collector := newMemCollector()
		pool := worker.NewPool(2, q, stubCalculator{}, collector)
		pool.Start(ctx)

		enqueueAll(ctx, q, "L0001", "L0002")

		Convey("When the pool shuts down", func() {
			So(pool.Shutdown(ctx), ShouldBeNil)

			Convey("Then the queue is closed and pending work was drained", func() {
				So(q.IsClosed(), ShouldBeTrue)
				done, _ := collector.counts()
				So(done, ShouldEqual, 2)
			})
		})
	})
}
