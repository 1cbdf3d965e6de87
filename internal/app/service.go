/**
 * @description
 * This file contains the core business logic for the trading service. The `Service`
 * struct orchestrates user and merchant onboarding, recharges, catalog changes and
 * purchases, running every multi-entity mutation inside one storage unit of work.
 *
 * Key features:
 * - Uniqueness checks for usernames, emails, merchant codes and names.
 * - Outbox events written in the same unit of work as the state change.
 * - Optional per-user purchase rate limiting backed by Redis.
 *
 * @dependencies
 * - github.com/google/uuid: event identifiers.
 * - internal/domain, internal/store, internal/idgen: models, storage and identifiers.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/however6234/trading-system/internal/domain"
	"github.com/however6234/trading-system/internal/idgen"
	"github.com/however6234/trading-system/internal/store"
)

const defaultEventsExchange = "trading.events"

// RateLimiter consumes one unit of a fixed-window budget for subject.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Options carries the tunables of the trading service.
type Options struct {
	EventsExchange     string
	DefaultCurrency    string
	RateLimiter        RateLimiter
	PurchaseRateLimit  int
	PurchaseRateWindow time.Duration
}

// Service provides the trading core operations.
type Service struct {
	repo     store.Repository
	ids      idgen.Provider
	logger   *slog.Logger
	exchange string
	currency string

	limiter        RateLimiter
	purchaseLimit  int
	purchaseWindow time.Duration

	now func() time.Time
}

// NewService creates a new trading service instance.
func NewService(repo store.Repository, ids idgen.Provider, logger *slog.Logger, opts Options) *Service {
	exchange := strings.TrimSpace(opts.EventsExchange)
	if exchange == "" {
		exchange = defaultEventsExchange
	}
	currency := strings.ToUpper(strings.TrimSpace(opts.DefaultCurrency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &Service{
		repo:           repo,
		ids:            ids,
		logger:         logger,
		exchange:       exchange,
		currency:       currency,
		limiter:        opts.RateLimiter,
		purchaseLimit:  opts.PurchaseRateLimit,
		purchaseWindow: opts.PurchaseRateWindow,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ProductInput is the catalog entry submitted by a merchant.
type ProductInput struct {
	SKU           string
	Name          string
	Description   string
	Price         domain.Money
	StockQuantity int
}

// CreateUser registers a user with a fresh zero-balance account.
// A taken username is reported before a taken email.
func (s *Service) CreateUser(ctx context.Context, userName, email string) (*domain.User, error) {
	userName = strings.TrimSpace(userName)
	email = strings.TrimSpace(email)
	if userName == "" || email == "" {
		return nil, domain.ErrParamValidation
	}

	accountID, err := s.nextID(ctx, idgen.ScopeAccount)
	if err != nil {
		return nil, err
	}
	userID, err := s.nextID(ctx, idgen.ScopeUser)
	if err != nil {
		return nil, err
	}

	var user *domain.User
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		taken, err := tx.UserNameExists(ctx, userName)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrUserAlreadyExists
		}
		if taken, err = tx.EmailExists(ctx, email); err != nil {
			return err
		} else if taken {
			return domain.ErrEmailExists
		}

		account := domain.NewAccount(accountID, domain.AccountTypeUser, s.currency)
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		user = &domain.User{
			ID:        userID,
			UserName:  userName,
			Email:     email,
			AccountID: account.ID,
			Account:   account,
			Active:    true,
			CreatedAt: s.now(),
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}

		return tx.EnqueueEvent(ctx, s.exchange, domain.RoutingKeyUserCreated, domain.UserCreatedEvent{
			EventID:   uuid.NewString(),
			UserID:    user.ID,
			UserName:  user.UserName,
			Email:     user.Email,
			AccountID: account.ID,
			CreatedAt: user.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "account_id", user.AccountID)
	return user, nil
}

// Recharge tops up an active user's account. An empty currency means the
// account currency.
func (s *Service) Recharge(ctx context.Context, userID int64, amount domain.Money, currency string) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency != "" && currency != s.currency {
		return nil, domain.ErrCurrencyNotSupported
	}

	var account *domain.Account
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return mapNotFound(err, domain.ErrUserNotFound)
		}
		if !user.Active {
			return domain.ErrUserNotFound
		}
		if user.Account == nil || !user.Account.Active {
			return domain.ErrAccountNotFound
		}
		if currency != "" && user.Account.Currency != currency {
			return domain.ErrCurrencyNotSupported
		}

		if err := user.Recharge(amount); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, user.Account); err != nil {
			return err
		}
		account = user.Account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account recharged", "user_id", userID, "account_id", account.ID, "amount", amount.String())
	return account, nil
}

// GetUser returns a user with its account.
func (s *Service) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrUserNotFound)
	}
	return user, nil
}

// DeleteUser removes a user together with its account.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		return mapNotFound(tx.DeleteUser(ctx, userID), domain.ErrUserNotFound)
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", userID)
	return nil
}

// CreateMerchant registers a merchant with a zero-balance settlement account and
// an initial zero settlement snapshot. A taken code is reported before a taken name.
func (s *Service) CreateMerchant(ctx context.Context, name, code string) (*domain.Merchant, error) {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(code)
	if name == "" || code == "" {
		return nil, domain.ErrParamValidation
	}

	accountID, err := s.nextID(ctx, idgen.ScopeAccount)
	if err != nil {
		return nil, err
	}
	merchantID, err := s.nextID(ctx, idgen.ScopeMerchant)
	if err != nil {
		return nil, err
	}

	var merchant *domain.Merchant
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		taken, err := tx.MerchantCodeExists(ctx, code)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrMerchantCodeExists
		}
		if taken, err = tx.MerchantNameExists(ctx, name); err != nil {
			return err
		} else if taken {
			return domain.ErrMerchantNameExists
		}

		account := domain.NewAccount(accountID, domain.AccountTypeMerchant, s.currency)
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		merchant = &domain.Merchant{
			ID:        merchantID,
			Name:      name,
			Code:      code,
			AccountID: account.ID,
			Account:   account,
			Products:  []domain.Product{},
			CreatedAt: s.now(),
		}
		if err := tx.CreateMerchant(ctx, merchant); err != nil {
			return err
		}
		if err := tx.SaveSettlementSnapshot(ctx, domain.SettlementSnapshot{
			MerchantID: merchant.ID,
			AccountID:  account.ID,
			Balance:    domain.Zero,
			Currency:   account.Currency,
			UpdatedAt:  merchant.CreatedAt,
		}); err != nil {
			return err
		}

		return tx.EnqueueEvent(ctx, s.exchange, domain.RoutingKeyMerchantCreated, domain.MerchantCreatedEvent{
			EventID:    uuid.NewString(),
			MerchantID: merchant.ID,
			Name:       merchant.Name,
			Code:       merchant.Code,
			AccountID:  account.ID,
			CreatedAt:  merchant.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("merchant created", "merchant_id", merchant.ID, "code", merchant.Code)
	return merchant, nil
}

// DeleteMerchant removes a merchant with its catalog, snapshot and account.
func (s *Service) DeleteMerchant(ctx context.Context, merchantID int64) error {
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		return mapNotFound(tx.DeleteMerchant(ctx, merchantID), domain.ErrMerchantNotFound)
	})
	if err != nil {
		return err
	}
	s.logger.Info("merchant deleted", "merchant_id", merchantID)
	return nil
}

// AddProduct lists a new product in the merchant catalog. An unknown merchant
// is reported before any problem with the product itself.
func (s *Service) AddProduct(ctx context.Context, merchantID int64, input ProductInput) (*domain.Product, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)

	var product *domain.Product
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		merchant, err := tx.LockMerchant(ctx, merchantID)
		if err != nil {
			return mapNotFound(err, domain.ErrMerchantNotFound)
		}
		if input.SKU == "" || input.Name == "" {
			return domain.ErrParamValidation
		}
		if !input.Price.IsPositive() || input.StockQuantity < 0 {
			return domain.ErrInvalidAmount
		}

		productID, err := s.nextID(ctx, idgen.ScopeProduct)
		if err != nil {
			return err
		}

		now := s.now()
		if err := merchant.AddProduct(domain.Product{
			ID:            productID,
			SKU:           input.SKU,
			Name:          input.Name,
			Description:   input.Description,
			Price:         input.Price,
			StockQuantity: input.StockQuantity,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}

		product = merchant.FindProductBySku(input.SKU)
		return tx.CreateProduct(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product added", "merchant_id", merchantID, "product_id", product.ID, "sku", product.SKU)
	return product, nil
}

// IncreaseStock restocks a catalog entry. Non-positive quantities are rejected
// so a restock can never reduce stock.
func (s *Service) IncreaseStock(ctx context.Context, merchantID int64, sku string, quantity int) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var product *domain.Product
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		merchant, err := tx.LockMerchant(ctx, merchantID)
		if err != nil {
			return mapNotFound(err, domain.ErrMerchantNotFound)
		}
		product = merchant.FindProductBySku(sku)
		if product == nil {
			return domain.ErrProductNotFound
		}
		product.IncreaseStock(quantity)
		return tx.SaveProduct(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock increased", "merchant_id", merchantID, "sku", sku, "quantity", quantity, "stock", product.StockQuantity)
	return product, nil
}

// FindAllProducts returns the merchant catalog ordered by product id.
func (s *Service) FindAllProducts(ctx context.Context, merchantID int64) ([]domain.Product, error) {
	merchant, err := s.repo.GetMerchant(ctx, merchantID)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrMerchantNotFound)
	}
	if merchant.Products == nil {
		return []domain.Product{}, nil
	}
	return merchant.Products, nil
}

// GetProductBySku looks a product up within one merchant catalog.
func (s *Service) GetProductBySku(ctx context.Context, sku string, merchantID int64) (*domain.Product, error) {
	merchant, err := s.repo.GetMerchant(ctx, merchantID)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrMerchantNotFound)
	}
	product := merchant.FindProductBySku(sku)
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

func (s *Service) nextID(ctx context.Context, scope string) (int64, error) {
	id, err := s.ids.NextID(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", scope, err)
	}
	return id, nil
}

// mapNotFound swaps a storage miss for the matching trading error.
func mapNotFound(err error, notFound *domain.Error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return err
}
