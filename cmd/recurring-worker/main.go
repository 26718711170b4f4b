package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"tally/internal/backend"
	"tally/internal/config"
	applog "tally/internal/log"
	"tally/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentRecurring,
	})
	applog.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Build the backend from config
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	ledger := services.NewLedgerService(result.Backend, result.Backend)
	transactions := services.NewTransactionService(result.Backend, ledger, result.Publisher)
	processor := services.NewRecurringProcessor(result.Backend, transactions)

	runBatch := func(now time.Time) {
		batch, err := processor.ProcessAllTenants(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", "error", err)
			return
		}
		logger.Info("Recurring processing complete",
			"processed", batch.ProcessedCount,
			"succeeded", batch.SuccessCount,
			"failed", batch.FailureCount)
	}

	// Run initial processing on startup
	logger.Info("Running initial recurring processing...")
	runBatch(time.Now())

	// Schedule periodic processing
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RecurringCronSpec, func() { runBatch(time.Now()) }); err != nil {
		logger.Error("Failed to schedule recurring processing", "error", err, "spec", cfg.RecurringCronSpec)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Recurring processor scheduled", "spec", cfg.RecurringCronSpec)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down recurring-worker...")
	cancel()

	// Let an in-flight batch finish before exiting
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		logger.Info("Recurring-worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}
