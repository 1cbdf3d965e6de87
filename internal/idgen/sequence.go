package idgen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// rowQuerier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sequences maps scopes to the Postgres sequences created by the schema migration.
var sequences = map[string]string{
	ScopeAccount:        "account_id_seq",
	ScopeUser:           "user_id_seq",
	ScopeMerchant:       "merchant_id_seq",
	ScopeProduct:        "product_id_seq",
	ScopeSettlementWarn: "settlement_warn_id_seq",
}

// SequenceProvider allocates ids from durable Postgres sequences.
type SequenceProvider struct {
	db rowQuerier
}

func NewSequenceProvider(db rowQuerier) *SequenceProvider {
	return &SequenceProvider{db: db}
}

func (p *SequenceProvider) NextID(ctx context.Context, scope string) (int64, error) {
	key, err := normalizeScope(scope)
	if err != nil {
		return 0, err
	}
	seq, ok := sequences[key]
	if !ok {
		return 0, fmt.Errorf("no sequence configured for id scope %q", key)
	}

	var id int64
	if err := p.db.QueryRow(ctx, "SELECT nextval($1::regclass)", seq).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", key, err)
	}
	return id, nil
}
