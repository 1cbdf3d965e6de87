/**
 * @description
 * Identifier allocation. Every entity id comes from a per-scope counter that
 * only moves forward, so an id is never handed out twice within a scope.
 */
package idgen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Scopes used by the trading core.
const (
	ScopeAccount        = "account"
	ScopeUser           = "user"
	ScopeMerchant       = "merchant"
	ScopeProduct        = "product"
	ScopeSettlementWarn = "settlement_warn"
)

// DefaultStartID keeps generated ids clear of small hand-entered values.
const DefaultStartID int64 = 10000

// Provider hands out monotonically increasing ids per scope.
type Provider interface {
	NextID(ctx context.Context, scope string) (int64, error)
}

// LocalProvider keeps one atomic counter per scope in process memory.
type LocalProvider struct {
	startID   int64
	sequences sync.Map
}

// NewLocalProvider returns a provider whose first id in every scope is startID+1.
func NewLocalProvider(startID int64) *LocalProvider {
	if startID < 0 {
		startID = DefaultStartID
	}
	return &LocalProvider{startID: startID}
}

func (p *LocalProvider) NextID(_ context.Context, scope string) (int64, error) {
	key, err := normalizeScope(scope)
	if err != nil {
		return 0, err
	}
	seq, _ := p.sequences.LoadOrStore(key, newCounter(p.startID))
	return seq.(*atomic.Int64).Add(1), nil
}

// Current returns the last id handed out for scope, or the start id when none were.
func (p *LocalProvider) Current(scope string) int64 {
	seq, ok := p.sequences.Load(strings.TrimSpace(scope))
	if !ok {
		return p.startID
	}
	return seq.(*atomic.Int64).Load()
}

func newCounter(start int64) *atomic.Int64 {
	c := new(atomic.Int64)
	c.Store(start)
	return c
}

func normalizeScope(scope string) (string, error) {
	key := strings.TrimSpace(scope)
	if key == "" {
		return "", fmt.Errorf("id scope is required")
	}
	return key, nil
}
