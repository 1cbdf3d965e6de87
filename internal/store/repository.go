/**
 * @description
 * Storage contracts for the trading core. Every multi-entity mutation runs
 * inside Repository.InTx; the Tx handed to the callback is the only way to
 * lock and write rows.
 *
 * Lock order is user account, then merchant (with its account), so concurrent
 * purchases and settlement cannot deadlock. Product rows are only written
 * while their merchant row is locked.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/however6234/trading-system/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
)

// Tx is a unit of work. All writes become visible together when the callback
// passed to InTx returns nil, and are discarded otherwise.
type Tx interface {
	// LockUser loads a user and its account and holds both until the unit of work ends.
	LockUser(ctx context.Context, userID int64) (*domain.User, error)
	// LockMerchant loads a merchant with its account and catalog and holds the
	// merchant and account rows until the unit of work ends.
	LockMerchant(ctx context.Context, merchantID int64) (*domain.Merchant, error)

	UserNameExists(ctx context.Context, userName string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	MerchantCodeExists(ctx context.Context, code string) (bool, error)
	MerchantNameExists(ctx context.Context, name string) (bool, error)

	CreateAccount(ctx context.Context, account *domain.Account) error
	CreateUser(ctx context.Context, user *domain.User) error
	CreateMerchant(ctx context.Context, merchant *domain.Merchant) error
	CreateProduct(ctx context.Context, product *domain.Product) error

	SaveAccount(ctx context.Context, account *domain.Account) error
	SaveProduct(ctx context.Context, product *domain.Product) error

	// DeleteUser removes the user and then its account.
	DeleteUser(ctx context.Context, userID int64) error
	// DeleteMerchant removes the catalog, the settlement snapshot, the merchant and then its account.
	DeleteMerchant(ctx context.Context, merchantID int64) error

	// GetSettlementSnapshot returns nil, nil when the merchant has no snapshot yet.
	GetSettlementSnapshot(ctx context.Context, merchantID int64) (*domain.SettlementSnapshot, error)
	SaveSettlementSnapshot(ctx context.Context, snapshot domain.SettlementSnapshot) error
	CreateSettlementWarn(ctx context.Context, warn *domain.SettlementWarn) error

	// EnqueueEvent stores an event that is published after the unit of work commits.
	EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

// Repository is the storage collaborator used by the trading service.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	// GetMerchant loads a merchant with its account and catalog.
	GetMerchant(ctx context.Context, merchantID int64) (*domain.Merchant, error)
	ListMerchantIDs(ctx context.Context) ([]int64, error)
	ListSettlementWarns(ctx context.Context, merchantID int64, limit int) ([]domain.SettlementWarn, error)

	OutboxStore
}

// OutboxMessage is an event waiting to be published.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// OutboxStore is the claim/ack side of the event outbox.
type OutboxStore interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

const (
	outboxPending    = "pending"
	outboxProcessing = "processing"
	outboxPublished  = "published"

	defaultClaimLimit     = 50
	defaultStaleAfter     = 120
	maxOutboxReasonLength = 2000
	defaultWarnListLimit  = 100
)

func normalizeClaim(limit, staleAfterSeconds int) (int, time.Duration) {
	if limit <= 0 {
		limit = defaultClaimLimit
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = defaultStaleAfter
	}
	return limit, time.Duration(staleAfterSeconds) * time.Second
}

func truncateReason(reason string) string {
	if len(reason) > maxOutboxReasonLength {
		return reason[:maxOutboxReasonLength]
	}
	return reason
}
