package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/ifrs9/internal/adapters/http/api"
	"github.com/okian/ifrs9/internal/adapters/repository"
	service "github.com/okian/ifrs9/internal/app"
	"github.com/okian/ifrs9/internal/config"
	"github.com/okian/ifrs9/internal/domain/stress"
	"github.com/okian/ifrs9/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second

	dateLayout = "2006-01-02"
)

func main() {
	var (
		dateStr  = flag.String("date", time.Now().Format(dateLayout), "calculation date (YYYY-MM-DD)")
		scenario = flag.String("scenario", "", "restrict the run to a single scenario")
		outPath  = flag.String("out", "ecl_report.xlsx", "output path for the export command")
		factor   = flag.String("factor", string(stress.FactorUnemployment), "macro factor for sensitivity analysis")
	)
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input).
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	calcDate, err := time.Parse(dateLayout, *dateStr)
	if err != nil {
		os.Stderr.WriteString("invalid -date: " + err.Error() + "\n")
		os.Exit(1)
	}

	store, err := repository.Open(cfg.DBPath, repository.WithLogger(log))
	if err != nil {
		os.Stderr.WriteString("failed to open store: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "closing store", logger.Error(err))
		}
	}()

	svc := service.New(store, cfg,
		service.WithLogger(log),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
	)

	switch command {
	case "run":
		err = runCalculation(ctx, svc, calcDate, *scenario)
	case "serve":
		err = serve(ctx, svc, cfg.Addr, log)
	case "stress":
		err = runStress(ctx, svc, calcDate, *factor)
	case "monitor":
		err = runMonitoring(ctx, svc, calcDate)
	case "export":
		err = svc.Export(ctx, calcDate, *outPath)
		if err == nil {
			log.Info(ctx, "report written", logger.String("path", *outPath))
		}
	default:
		os.Stderr.WriteString("unknown command: " + command +
			" (expected run, serve, stress, monitor or export)\n")
		os.Exit(2)
	}
	if err != nil {
		log.Error(ctx, "command failed",
			logger.String("command", command), logger.Error(err))
		os.Exit(1)
	}
}

// runCalculation executes a full ECL run and prints a short summary.
func runCalculation(ctx context.Context, svc *service.Service, calcDate time.Time, scenario string) error {
	report, err := svc.Run(ctx, calcDate, scenario)
	if err != nil {
		return err
	}

	fmt.Printf("run %s completed in %s\n", report.RunID, report.Duration.Round(time.Millisecond))
	fmt.Printf("  loans processed: %d (excluded %d)\n", report.LoansProcessed, report.LoansExcluded)
	for scen, ecl := range report.PortfolioECL {
		fmt.Printf("  %-16s ECL %.2f\n", scen, ecl)
	}
	fmt.Printf("  coverage ratio:  %.4f\n", report.CoverageRatio)
	return nil
}

// serve runs the reporting HTTP API until the context is cancelled.
func serve(ctx context.Context, svc *service.Service, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	api.NewServer(svc).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}

// runStress executes the shock scenarios, a sensitivity sweep on one
// factor and the reverse stress search, printing the results.
func runStress(ctx context.Context, svc *service.Service, calcDate time.Time, factorName string) error {
	result, err := svc.StressTest(ctx, calcDate)
	if err != nil {
		return err
	}
	fmt.Printf("baseline ECL: %.2f\n", result.BaselineECL)
	for name, impact := range result.ByScenario {
		fmt.Printf("  %-10s ECL %.2f  capital impact %.2f\n",
			name, impact.TotalECL, impact.CapitalImpact)
	}

	points, err := svc.Sensitivity(ctx, calcDate, stress.Factor(factorName), 0, 5)
	if err != nil {
		return err
	}
	fmt.Printf("sensitivity to %s:\n", factorName)
	for _, p := range points {
		fmt.Printf("  +%.2f -> ECL %.2f\n", p.Magnitude, p.ECL)
	}

	breakeven, err := svc.ReverseStress(ctx, calcDate)
	if err != nil {
		return err
	}
	if breakeven.Found {
		fmt.Printf("reverse stress: level %.1f reaches ECL %.2f (target %.2f)\n",
			breakeven.Level, breakeven.ECL, breakeven.TargetECL)
	} else {
		fmt.Printf("reverse stress: target %.2f not reached within search range\n",
			breakeven.TargetECL)
	}
	return nil
}

// runMonitoring produces the stability and backtesting report.
func runMonitoring(ctx context.Context, svc *service.Service, calcDate time.Time) error {
	report, err := svc.Monitoring(ctx, calcDate)
	if err != nil {
		return err
	}

	fmt.Printf("PD stability: %s (PSI %.4f)\n",
		report.PDStability.Status, report.PDStability.Index)
	for _, c := range report.Characteristics {
		fmt.Printf("  %-16s %s (CSI %.4f)\n", c.Metric, c.Status, c.Index)
	}
	fmt.Printf("backtest: cohort %d  MAE %.4f  RMSE %.4f  precision %.4f  recall %.4f\n",
		report.Backtest.CohortSize, report.Backtest.MAE, report.Backtest.RMSE,
		report.Backtest.Precision, report.Backtest.Recall)
	if report.Challenger.ChampionCount > 0 && report.Challenger.ChallengerCount > 0 {
		fmt.Printf("champion/challenger: significant=%t  t=%.4f\n",
			report.Challenger.Significant, report.Challenger.TStatistic)
	}
	return nil
}
