package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/however6234/trading-system/internal/domain"
)

// postgresTx implements Tx on top of a pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

var _ Tx = (*postgresTx)(nil)

func (t *postgresTx) LockUser(ctx context.Context, userID int64) (*domain.User, error) {
	return loadUser(ctx, t.tx, userID, true)
}

func (t *postgresTx) LockMerchant(ctx context.Context, merchantID int64) (*domain.Merchant, error) {
	return loadMerchant(ctx, t.tx, merchantID, true)
}

func (t *postgresTx) UserNameExists(ctx context.Context, userName string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_name = $1)`, userName)
}

func (t *postgresTx) EmailExists(ctx context.Context, email string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`, email)
}

func (t *postgresTx) MerchantCodeExists(ctx context.Context, code string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM merchants WHERE code = $1)`, code)
}

func (t *postgresTx) MerchantNameExists(ctx context.Context, name string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM merchants WHERE name = $1)`, name)
}

func (t *postgresTx) exists(ctx context.Context, query string, arg string) (bool, error) {
	var found bool
	if err := t.tx.QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to run uniqueness check: %w", err)
	}
	return found, nil
}

func (t *postgresTx) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, balance, currency, account_type, daily_sales, is_active, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $4, $5::numeric, $6, $7, $8)
	`
	_, err := t.tx.Exec(ctx, query,
		account.ID,
		account.Balance.Decimal().String(),
		account.Currency,
		string(account.Type),
		account.DailySales.Decimal().String(),
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", mapConstraintError(err))
	}
	return nil
}

func (t *postgresTx) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, user_name, email, account_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.Exec(ctx, query, user.ID, user.UserName, user.Email, user.AccountID, user.Active, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapConstraintError(err))
	}
	return nil
}

func (t *postgresTx) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	query := `
		INSERT INTO merchants (id, name, code, account_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(ctx, query, merchant.ID, merchant.Name, merchant.Code, merchant.AccountID, merchant.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create merchant: %w", mapConstraintError(err))
	}
	return nil
}

func (t *postgresTx) CreateProduct(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, merchant_id, sku, name, description, price, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
	`
	_, err := t.tx.Exec(ctx, query,
		product.ID,
		product.MerchantID,
		product.SKU,
		product.Name,
		product.Description,
		product.Price.Decimal().String(),
		product.StockQuantity,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", mapConstraintError(err))
	}
	return nil
}

func (t *postgresTx) SaveAccount(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $2::numeric,
			daily_sales = $3::numeric,
			is_active = $4,
			updated_at = $5
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		account.ID,
		account.Balance.Decimal().String(),
		account.DailySales.Decimal().String(),
		account.Active,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save account %d: %w", account.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", account.ID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) SaveProduct(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET stock_quantity = $2,
			updated_at = $3
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query, product.ID, product.StockQuantity, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save product %d: %w", product.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", product.ID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) DeleteUser(ctx context.Context, userID int64) error {
	var accountID int64
	err := t.tx.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING account_id`, userID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete user %d: %w", userID, err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete account %d: %w", accountID, err)
	}
	return nil
}

func (t *postgresTx) DeleteMerchant(ctx context.Context, merchantID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM products WHERE merchant_id = $1`, merchantID); err != nil {
		return fmt.Errorf("failed to delete products of merchant %d: %w", merchantID, err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM merchant_settlement_snapshots WHERE merchant_id = $1`, merchantID); err != nil {
		return fmt.Errorf("failed to delete settlement snapshot of merchant %d: %w", merchantID, err)
	}

	var accountID int64
	err := t.tx.QueryRow(ctx, `DELETE FROM merchants WHERE id = $1 RETURNING account_id`, merchantID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete merchant %d: %w", merchantID, err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete account %d: %w", accountID, err)
	}
	return nil
}

func (t *postgresTx) GetSettlementSnapshot(ctx context.Context, merchantID int64) (*domain.SettlementSnapshot, error) {
	query := `
		SELECT merchant_id, account_id, balance::text, currency, updated_at
		FROM merchant_settlement_snapshots
		WHERE merchant_id = $1
		FOR UPDATE
	`
	var (
		snapshot domain.SettlementSnapshot
		balance  string
	)
	err := t.tx.QueryRow(ctx, query, merchantID).Scan(
		&snapshot.MerchantID, &snapshot.AccountID, &balance, &snapshot.Currency, &snapshot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load settlement snapshot for merchant %d: %w", merchantID, err)
	}
	if err := parseMoney(&snapshot.Balance, balance); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (t *postgresTx) SaveSettlementSnapshot(ctx context.Context, snapshot domain.SettlementSnapshot) error {
	query := `
		INSERT INTO merchant_settlement_snapshots (merchant_id, account_id, balance, currency, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5)
		ON CONFLICT (merchant_id)
		DO UPDATE SET
			account_id = EXCLUDED.account_id,
			balance = EXCLUDED.balance,
			currency = EXCLUDED.currency,
			updated_at = EXCLUDED.updated_at
	`
	_, err := t.tx.Exec(ctx, query,
		snapshot.MerchantID,
		snapshot.AccountID,
		snapshot.Balance.Decimal().String(),
		snapshot.Currency,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement snapshot for merchant %d: %w", snapshot.MerchantID, err)
	}
	return nil
}

func (t *postgresTx) CreateSettlementWarn(ctx context.Context, warn *domain.SettlementWarn) error {
	query := `
		INSERT INTO settlement_warns (id, merchant_id, pre_balance, balance, daily_sales, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)
	`
	_, err := t.tx.Exec(ctx, query,
		warn.ID,
		warn.MerchantID,
		warn.PreBalance.Decimal().String(),
		warn.Balance.Decimal().String(),
		warn.DailySales.Decimal().String(),
		warn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record settlement warn for merchant %d: %w", warn.MerchantID, err)
	}
	return nil
}

func (t *postgresTx) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}
