// Command genportfolio seeds a database with a synthetic loan book so the
// engine can be exercised end to end without real customer data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/ifrs9/internal/adapters/repository"
	"github.com/okian/ifrs9/internal/genportfolio"
	"github.com/okian/ifrs9/pkg/logger"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		dbPath = flag.String("db", "ifrs9.db", "sqlite database to seed")
		count  = flag.Int("loans", 10000, "number of loans to generate")
		seed   = flag.Int64("seed", 42, "random seed")
		asOf   = flag.String("asof", time.Now().Format(dateLayout), "as-of date (YYYY-MM-DD)")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	asOfDate, err := time.Parse(dateLayout, *asOf)
	if err != nil {
		os.Stderr.WriteString("invalid -asof: " + err.Error() + "\n")
		os.Exit(1)
	}

	store, err := repository.Open(*dbPath, repository.WithLogger(log))
	if err != nil {
		os.Stderr.WriteString("failed to open store: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "closing store", logger.Error(err))
		}
	}()

	book := genportfolio.New(
		genportfolio.WithSeed(*seed),
		genportfolio.WithLoanCount(*count),
		genportfolio.WithAsOf(asOfDate),
	).Generate()

	steps := []struct {
		name string
		save func() error
	}{
		{"loans", func() error { return store.SaveLoans(ctx, book.Loans) }},
		{"payments", func() error { return store.SavePayments(ctx, book.Payments) }},
		{"macros", func() error { return store.SaveMacros(ctx, book.Macros) }},
		{"model inputs", func() error { return store.SaveModelInputs(ctx, book.Inputs) }},
	}
	for _, step := range steps {
		if err := step.save(); err != nil {
			log.Error(ctx, "seeding failed",
				logger.String("step", step.name), logger.Error(err))
			os.Exit(1)
		}
	}

	fmt.Printf("seeded %s: %d loans, %d payments, %d scenarios, %d model inputs\n",
		*dbPath, len(book.Loans), len(book.Payments), len(book.Macros), len(book.Inputs))
}
