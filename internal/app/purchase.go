package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/however6234/trading-system/internal/domain"
	"github.com/however6234/trading-system/internal/store"
)

const purchaseRateLimitScope = "purchase"

// RetryAfterError carries the number of seconds a throttled caller should wait.
type RetryAfterError struct {
	Seconds int
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %d seconds", e.Seconds)
}

// PurchaseRequest identifies what a user buys and from whom.
type PurchaseRequest struct {
	UserID     int64
	MerchantID int64
	SKU        string
	Quantity   int
}

// Purchase moves totalCost from the user to the merchant and takes quantity
// units out of stock as one unit of work. The user row is locked before the
// merchant row; any failure leaves every balance and stock count untouched.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (*domain.Receipt, error) {
	if err := s.checkPurchaseRate(ctx, req.UserID); err != nil {
		return nil, err
	}

	var receipt *domain.Receipt
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		user, err := tx.LockUser(ctx, req.UserID)
		if err != nil {
			return mapNotFound(err, domain.ErrUserNotFound)
		}
		if !user.Active {
			return domain.ErrUserNotFound
		}
		if user.Account == nil || !user.Account.Active {
			return domain.ErrAccountNotFound
		}

		merchant, err := tx.LockMerchant(ctx, req.MerchantID)
		if err != nil {
			return mapNotFound(err, domain.ErrMerchantNotFound)
		}
		if merchant.Account == nil {
			return domain.ErrAccountNotFound
		}

		product := merchant.FindProductBySku(req.SKU)
		if product == nil {
			return domain.ErrProductNotFound
		}
		if !product.IsAvailable(req.Quantity) {
			return domain.ErrInsufficientStock
		}

		totalCost := product.CalculateTotalPrice(req.Quantity)

		deducted, err := user.Deduct(totalCost)
		if err != nil {
			return err
		}
		if !deducted {
			return domain.ErrInsufficientBalance
		}
		if !product.ReduceStock(req.Quantity) {
			return domain.ErrFailedToReduceStock
		}
		if err := merchant.CreditBalance(totalCost); err != nil {
			return err
		}

		if err := tx.SaveAccount(ctx, user.Account); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, merchant.Account); err != nil {
			return err
		}
		if err := tx.SaveProduct(ctx, product); err != nil {
			return err
		}

		receipt = &domain.Receipt{
			TotalCost: totalCost,
			Quantity:  req.Quantity,
			Product:   *product,
		}

		return tx.EnqueueEvent(ctx, s.exchange, domain.RoutingKeyPurchaseCompleted, domain.PurchaseCompletedEvent{
			EventID:    uuid.NewString(),
			UserID:     user.ID,
			MerchantID: merchant.ID,
			ProductID:  product.ID,
			SKU:        product.SKU,
			Quantity:   req.Quantity,
			TotalCost:  totalCost,
			Currency:   user.Account.Currency,
			OccurredAt: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase completed",
		"user_id", req.UserID,
		"merchant_id", req.MerchantID,
		"sku", req.SKU,
		"quantity", req.Quantity,
		"total_cost", receipt.TotalCost.String(),
	)
	return receipt, nil
}

// checkPurchaseRate fails open when the limiter itself is unavailable.
func (s *Service) checkPurchaseRate(ctx context.Context, userID int64) error {
	if s.limiter == nil || s.purchaseLimit <= 0 {
		return nil
	}

	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, purchaseRateLimitScope, strconv.FormatInt(userID, 10), s.purchaseLimit, s.purchaseWindow)
	if err != nil {
		s.logger.Warn("purchase rate limiter unavailable", "user_id", userID, "error", err)
		return nil
	}
	if count > s.purchaseLimit {
		return domain.ErrPurchaseRateLimited.Wrap(&RetryAfterError{Seconds: retryAfter})
	}
	return nil
}
