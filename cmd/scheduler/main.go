/**
 * @description
 * Entry point for the settlement scheduler.
 * This is a non-HTTP, long-running process that runs the daily settlement
 * reconciliation on the configured cron schedule.
 */
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/however6234/trading-system/internal/app"
	"github.com/however6234/trading-system/internal/bootstrap"
	"github.com/however6234/trading-system/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.StorageDriver != config.StorageDriverPostgres {
		logger.Error("scheduler requires shared storage", "storage_driver", cfg.StorageDriver)
		os.Exit(1)
	}
	// The scheduler never purchases, so it does not need the rate limiter's Redis.
	cfg.PurchaseRateLimit = 0

	resources, err := bootstrap.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer resources.Close()

	service := app.NewService(resources.Repository, resources.IDs, logger, app.Options{
		EventsExchange:  cfg.EventsExchange,
		DefaultCurrency: cfg.DefaultCurrency,
	})
	jobs := app.NewJobs(service, logger, cfg)
	scheduler := app.NewScheduler(jobs, logger, cfg)

	if err := scheduler.Start(); err != nil {
		os.Exit(1)
	}
	logger.Info("scheduler started")

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	<-scheduler.Stop().Done()
	logger.Info("scheduler stopped gracefully")
}
