package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/config"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/services"
	"tally/internal/storage"
	"tally/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting budget-worker")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// The worker reads and writes budget state directly, so it runs against
	// SQLite regardless of the configured backend.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Initialize AMQP client for consuming messages
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	overviews := cache.NewLRUCache[core.BudgetOverview](100, 5*time.Minute)
	budgets := services.NewBudgetService(repo, repo, overviews)
	tracker := worker.NewBudgetTracker(repo, budgets, cfg.TrackerBatchSize)

	// On startup, sweep any transactions whose messages were missed
	logger.Info("Performing startup check...")
	if err := tracker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup check", "error", err)
		// Don't exit - continue with normal operation
	}

	g, gctx := errgroup.WithContext(ctx)

	// Consume tracking messages
	g.Go(func() error {
		err := amqpClient.ConsumeTransactionRecorded(gctx, func(msg *amqp.TransactionRecordedMessage) error {
			return tracker.HandleTrackingMessage(gctx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			return err
		}
		return nil
	})

	// Periodic sweep for any missed messages
	g.Go(func() error {
		ticker := time.NewTicker(cfg.TrackerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := tracker.ProcessUntracked(gctx); err != nil {
					logger.Error("Periodic sweep failed", "error", err)
				}
				if removed := overviews.CleanExpired(); removed > 0 {
					logger.Info("Evicted expired overview cache entries", "count", removed)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Budget-worker exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Budget-worker shutdown complete")
}
