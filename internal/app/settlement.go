package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/however6234/trading-system/internal/domain"
	"github.com/however6234/trading-system/internal/idgen"
	"github.com/however6234/trading-system/internal/store"
)

// SettlementResult summarises one reconciliation pass.
type SettlementResult struct {
	Merchants  int `json:"merchants"`
	Mismatches int `json:"mismatches"`
	Failures   int `json:"failures"`
}

// RunDailySettlement reconciles every merchant in its own unit of work. A
// merchant whose balance differs from its snapshot plus daily sales gets a
// SettlementWarn; daily sales are cleared and the snapshot moved forward either
// way. A failing merchant is logged and skipped.
func (s *Service) RunDailySettlement(ctx context.Context) (SettlementResult, error) {
	var result SettlementResult

	merchantIDs, err := s.repo.ListMerchantIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list merchants for settlement: %w", err)
	}

	for _, merchantID := range merchantIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		mismatch, err := s.settleMerchant(ctx, merchantID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		result.Merchants++
		if err != nil {
			result.Failures++
			s.logger.Error("failed to settle merchant", "merchant_id", merchantID, "error", err)
			continue
		}
		if mismatch {
			result.Mismatches++
		}
	}

	s.logger.Info("daily settlement finished",
		"merchants", result.Merchants,
		"mismatches", result.Mismatches,
		"failures", result.Failures,
	)
	return result, nil
}

func (s *Service) settleMerchant(ctx context.Context, merchantID int64) (bool, error) {
	var mismatch bool
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		mismatch = false

		merchant, err := tx.LockMerchant(ctx, merchantID)
		if err != nil {
			return err
		}
		if merchant.Account == nil {
			return domain.ErrAccountNotFound
		}

		snapshot, err := tx.GetSettlementSnapshot(ctx, merchantID)
		if err != nil {
			return err
		}

		now := s.now()
		check := domain.CheckSettlement(snapshot, merchant.Account)
		if check.Mismatch() {
			mismatch = true
			if err := s.recordMismatch(ctx, tx, merchantID, check); err != nil {
				return err
			}
		}

		next := domain.Settle(merchantID, merchant.Account, now)
		if err := tx.SaveAccount(ctx, merchant.Account); err != nil {
			return err
		}
		return tx.SaveSettlementSnapshot(ctx, next)
	})
	return mismatch, err
}

func (s *Service) recordMismatch(ctx context.Context, tx store.Tx, merchantID int64, check domain.SettlementCheck) error {
	warnID, err := s.nextID(ctx, idgen.ScopeSettlementWarn)
	if err != nil {
		return err
	}

	warn := &domain.SettlementWarn{
		ID:         warnID,
		MerchantID: merchantID,
		PreBalance: check.PreBalance,
		Balance:    check.Balance,
		DailySales: check.DailySales,
		CreatedAt:  s.now(),
	}
	if err := tx.CreateSettlementWarn(ctx, warn); err != nil {
		return err
	}

	s.logger.Warn("settlement balance mismatch",
		"merchant_id", merchantID,
		"pre_balance", check.PreBalance.String(),
		"daily_sales", check.DailySales.String(),
		"expected", check.Expected.String(),
		"balance", check.Balance.String(),
	)

	return tx.EnqueueEvent(ctx, s.exchange, domain.RoutingKeySettlementMismatch, domain.SettlementMismatchEvent{
		EventID:    uuid.NewString(),
		WarnID:     warn.ID,
		MerchantID: merchantID,
		PreBalance: warn.PreBalance,
		Balance:    warn.Balance,
		DailySales: warn.DailySales,
		DetectedAt: warn.CreatedAt,
	})
}

// ListSettlementWarns returns the newest mismatch records of a merchant.
func (s *Service) ListSettlementWarns(ctx context.Context, merchantID int64, limit int) ([]domain.SettlementWarn, error) {
	if _, err := s.repo.GetMerchant(ctx, merchantID); err != nil {
		return nil, mapNotFound(err, domain.ErrMerchantNotFound)
	}
	return s.repo.ListSettlementWarns(ctx, merchantID, limit)
}
