/**
 * @description
 * Scheduled job implementations for the settlement scheduler.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/however6234/trading-system/internal/config"
)

const settlementJobTimeout = 30 * time.Minute

// SettlementRunner runs one reconciliation pass over all merchants.
type SettlementRunner interface {
	RunDailySettlement(ctx context.Context) (SettlementResult, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	settlement SettlementRunner
	logger     *slog.Logger
	config     config.Config
}

// NewJobs creates a new Jobs runner.
func NewJobs(settlement SettlementRunner, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		settlement: settlement,
		logger:     logger,
		config:     cfg,
	}
}

// RunDailySettlement is the cron entry point for merchant reconciliation.
func (j *Jobs) RunDailySettlement() {
	j.logger.Info("starting daily settlement job")
	ctx, cancel := context.WithTimeout(context.Background(), settlementJobTimeout)
	defer cancel()

	result, err := j.settlement.RunDailySettlement(ctx)
	if err != nil {
		j.logger.Error("daily settlement job failed", "error", err)
		return
	}
	if result.Failures > 0 {
		j.logger.Warn("daily settlement job finished with failures", "failures", result.Failures, "merchants", result.Merchants)
		return
	}

	j.logger.Info("daily settlement job finished", "merchants", result.Merchants, "mismatches", result.Mismatches)
}
