/**
 * @description
 * Entry point for the trading API. It loads configuration, opens storage, Redis
 * and the id provider, starts the event outbox dispatcher and serves HTTP until
 * a termination signal arrives.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/however6234/trading-system/internal/api"
	"github.com/however6234/trading-system/internal/app"
	"github.com/however6234/trading-system/internal/bootstrap"
	"github.com/however6234/trading-system/internal/config"
	"github.com/however6234/trading-system/pkg/rabbitmq"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resources, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer resources.Close()

	opts := app.Options{
		EventsExchange:     cfg.EventsExchange,
		DefaultCurrency:    cfg.DefaultCurrency,
		PurchaseRateLimit:  cfg.PurchaseRateLimit,
		PurchaseRateWindow: cfg.PurchaseRateWindow,
	}
	if resources.Redis != nil && cfg.PurchaseRateLimit > 0 {
		opts.RateLimiter = app.NewRedisPurchaseRateLimiter(resources.Redis, cfg.RedisKeyPrefix)
	}
	service := app.NewService(resources.Repository, resources.IDs, logger, opts)

	var newPublisher app.PublisherFactory
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Warn("RABBITMQ_URL not set; events will be logged instead of published")
		newPublisher = func() (rabbitmq.Publisher, error) {
			return &rabbitmq.EventProducerFallback{Logger: logger}, nil
		}
	} else {
		newPublisher = app.NewRabbitMQPublisherFactory(cfg.RabbitMQURL)
	}
	dispatcher := app.NewOutboxDispatcher(resources.Repository, newPublisher, logger, cfg.OutboxPollInterval)
	go dispatcher.Run(ctx)

	// In-memory storage lives in this process, so the settlement job has to as well.
	if cfg.StorageDriver == config.StorageDriverMemory {
		scheduler := app.NewScheduler(app.NewJobs(service, logger, cfg), logger, cfg)
		if err := scheduler.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler, cfg.JWTSecret, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("trading service starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}
