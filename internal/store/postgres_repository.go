/**
 * @description
 * PostgreSQL implementation of Repository using pgx. Units of work run at
 * READ COMMITTED and take row locks with SELECT ... FOR UPDATE.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: driver, pool and error types.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/however6234/trading-system/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is the pgx-backed storage collaborator.
type PostgresRepository struct {
	db *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return loadUser(ctx, r.db, userID, false)
}

func (r *PostgresRepository) GetMerchant(ctx context.Context, merchantID int64) (*domain.Merchant, error) {
	return loadMerchant(ctx, r.db, merchantID, false)
}

func (r *PostgresRepository) ListMerchantIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM merchants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) ListSettlementWarns(ctx context.Context, merchantID int64, limit int) ([]domain.SettlementWarn, error) {
	if limit <= 0 {
		limit = defaultWarnListLimit
	}

	query := `
		SELECT id, merchant_id, pre_balance::text, balance::text, daily_sales::text, created_at
		FROM settlement_warns
		WHERE ($1 = 0 OR merchant_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement warns: %w", err)
	}
	defer rows.Close()

	warns := make([]domain.SettlementWarn, 0)
	for rows.Next() {
		var (
			warn                        domain.SettlementWarn
			preBalance, balance, dsales string
		)
		if err := rows.Scan(&warn.ID, &warn.MerchantID, &preBalance, &balance, &dsales, &warn.CreatedAt); err != nil {
			return nil, err
		}
		if err := parseMoney(&warn.PreBalance, preBalance, &warn.Balance, balance, &warn.DailySales, dsales); err != nil {
			return nil, err
		}
		warns = append(warns, warn)
	}
	return warns, rows.Err()
}

const userSelect = `
	SELECT u.id, u.user_name, u.email, u.account_id, u.is_active, u.created_at,
	       a.id, a.balance::text, a.currency, a.account_type, a.daily_sales::text, a.is_active, a.created_at, a.updated_at
	FROM users u
	JOIN accounts a ON a.id = u.account_id
	WHERE u.id = $1
`

func loadUser(ctx context.Context, q querier, userID int64, lock bool) (*domain.User, error) {
	query := userSelect
	if lock {
		query += " FOR UPDATE"
	}

	var (
		user    domain.User
		account domain.Account
		balance string
		dsales  string
		accType string
	)
	err := q.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.UserName, &user.Email, &user.AccountID, &user.Active, &user.CreatedAt,
		&account.ID, &balance, &account.Currency, &accType, &dsales, &account.Active, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	account.Type = domain.AccountType(accType)
	if err := parseMoney(&account.Balance, balance, &account.DailySales, dsales); err != nil {
		return nil, err
	}
	user.Account = &account
	return &user, nil
}

const merchantSelect = `
	SELECT m.id, m.name, m.code, m.account_id, m.created_at,
	       a.id, a.balance::text, a.currency, a.account_type, a.daily_sales::text, a.is_active, a.created_at, a.updated_at
	FROM merchants m
	JOIN accounts a ON a.id = m.account_id
	WHERE m.id = $1
`

func loadMerchant(ctx context.Context, q querier, merchantID int64, lock bool) (*domain.Merchant, error) {
	query := merchantSelect
	if lock {
		query += " FOR UPDATE"
	}

	var (
		merchant domain.Merchant
		account  domain.Account
		balance  string
		dsales   string
		accType  string
	)
	err := q.QueryRow(ctx, query, merchantID).Scan(
		&merchant.ID, &merchant.Name, &merchant.Code, &merchant.AccountID, &merchant.CreatedAt,
		&account.ID, &balance, &account.Currency, &accType, &dsales, &account.Active, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load merchant %d: %w", merchantID, err)
	}
	account.Type = domain.AccountType(accType)
	if err := parseMoney(&account.Balance, balance, &account.DailySales, dsales); err != nil {
		return nil, err
	}
	merchant.Account = &account

	products, err := loadProducts(ctx, q, merchantID)
	if err != nil {
		return nil, err
	}
	merchant.Products = products
	return &merchant, nil
}

func loadProducts(ctx context.Context, q querier, merchantID int64) ([]domain.Product, error) {
	query := `
		SELECT id, merchant_id, sku, name, description, price::text, stock_quantity, created_at, updated_at
		FROM products
		WHERE merchant_id = $1
		ORDER BY id
	`
	rows, err := q.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products for merchant %d: %w", merchantID, err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var (
			product domain.Product
			price   string
		)
		if err := rows.Scan(
			&product.ID, &product.MerchantID, &product.SKU, &product.Name, &product.Description,
			&price, &product.StockQuantity, &product.CreatedAt, &product.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := parseMoney(&product.Price, price); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// parseMoney takes (destination, text) pairs and parses each NUMERIC text value.
func parseMoney(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		dst := pairs[i].(*domain.Money)
		raw := pairs[i+1].(string)
		m, err := domain.NewMoney(raw)
		if err != nil {
			return err
		}
		*dst = m
	}
	return nil
}

// mapConstraintError turns unique violations into the matching trading conflict.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "users_user_name_key":
		return domain.ErrUserAlreadyExists.Wrap(err)
	case "users_email_key":
		return domain.ErrEmailExists.Wrap(err)
	case "merchants_code_key":
		return domain.ErrMerchantCodeExists.Wrap(err)
	case "merchants_name_key":
		return domain.ErrMerchantNameExists.Wrap(err)
	case "products_merchant_sku_key":
		return domain.ErrProductSkuExists.Wrap(err)
	case "accounts_pkey":
		return domain.ErrAccountAlreadyExists.Wrap(err)
	}
	return err
}
