/**
 * @description
 * In-process implementation of Repository. A unit of work holds the store
 * mutex for its whole duration and stages writes in overlays that are merged
 * only on success, so a failed or cancelled unit of work leaves nothing behind.
 * Used when STORAGE_DRIVER=memory and as the fake in service tests.
 */
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/however6234/trading-system/internal/domain"
)

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Tx         = (*memoryTx)(nil)
)

type memoryOutboxRecord struct {
	message             OutboxMessage
	status              string
	nextAttemptAt       time.Time
	processingStartedAt time.Time
	lastError           string
}

// MemoryRepository keeps all trading state in maps.
type MemoryRepository struct {
	mu  sync.Mutex
	now func() time.Time

	accounts  map[int64]domain.Account
	users     map[int64]domain.User
	merchants map[int64]domain.Merchant
	products  map[int64]domain.Product
	snapshots map[int64]domain.SettlementSnapshot
	warns     []domain.SettlementWarn

	outbox       []*memoryOutboxRecord
	nextOutboxID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:       func() time.Time { return time.Now().UTC() },
		accounts:  make(map[int64]domain.Account),
		users:     make(map[int64]domain.User),
		merchants: make(map[int64]domain.Merchant),
		products:  make(map[int64]domain.Product),
		snapshots: make(map[int64]domain.SettlementSnapshot),
	}
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := r.begin()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commit()
	return nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begin().loadUser(userID)
}

func (r *MemoryRepository) GetMerchant(ctx context.Context, merchantID int64) (*domain.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begin().loadMerchant(merchantID)
}

func (r *MemoryRepository) ListMerchantIDs(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.merchants))
	for id := range r.merchants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryRepository) ListSettlementWarns(ctx context.Context, merchantID int64, limit int) ([]domain.SettlementWarn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = defaultWarnListLimit
	}
	warns := make([]domain.SettlementWarn, 0)
	for i := len(r.warns) - 1; i >= 0 && len(warns) < limit; i-- {
		if merchantID == 0 || r.warns[i].MerchantID == merchantID {
			warns = append(warns, r.warns[i])
		}
	}
	return warns, nil
}

func (r *MemoryRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit, staleAfter := normalizeClaim(limit, staleAfterSeconds)
	now := r.now()

	messages := make([]OutboxMessage, 0, limit)
	for _, record := range r.outbox {
		if len(messages) >= limit {
			break
		}
		ready := record.status == outboxPending && !record.nextAttemptAt.After(now)
		stale := record.status == outboxProcessing && record.processingStartedAt.Before(now.Add(-staleAfter))
		if !ready && !stale {
			continue
		}
		record.status = outboxProcessing
		record.processingStartedAt = now
		record.message.Attempts++
		messages = append(messages, record.message)
	}
	return messages, nil
}

func (r *MemoryRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := r.outboxRecord(id)
	if record == nil {
		return ErrNotFound
	}
	record.status = outboxPublished
	record.lastError = ""
	return nil
}

func (r *MemoryRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := r.outboxRecord(id)
	if record == nil {
		return ErrNotFound
	}
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	record.status = outboxPending
	record.nextAttemptAt = r.now().Add(time.Duration(retryAfterSeconds) * time.Second)
	record.processingStartedAt = time.Time{}
	record.lastError = truncateReason(reason)
	return nil
}

func (r *MemoryRepository) outboxRecord(id int64) *memoryOutboxRecord {
	for _, record := range r.outbox {
		if record.message.ID == id {
			return record
		}
	}
	return nil
}

func (r *MemoryRepository) begin() *memoryTx {
	return &memoryTx{
		repo:      r,
		accounts:  newOverlay(r.accounts),
		users:     newOverlay(r.users),
		merchants: newOverlay(r.merchants),
		products:  newOverlay(r.products),
		snapshots: newOverlay(r.snapshots),
	}
}

// overlay stages writes and deletes over a committed map.
type overlay[T any] struct {
	base    map[int64]T
	writes  map[int64]T
	deletes map[int64]struct{}
}

func newOverlay[T any](base map[int64]T) *overlay[T] {
	return &overlay[T]{
		base:    base,
		writes:  make(map[int64]T),
		deletes: make(map[int64]struct{}),
	}
}

func (o *overlay[T]) get(id int64) (T, bool) {
	if _, gone := o.deletes[id]; gone {
		var zero T
		return zero, false
	}
	if v, ok := o.writes[id]; ok {
		return v, true
	}
	v, ok := o.base[id]
	return v, ok
}

func (o *overlay[T]) put(id int64, v T) {
	delete(o.deletes, id)
	o.writes[id] = v
}

func (o *overlay[T]) remove(id int64) {
	delete(o.writes, id)
	o.deletes[id] = struct{}{}
}

// values returns the merged view ordered by id.
func (o *overlay[T]) values() []T {
	ids := make([]int64, 0, len(o.base)+len(o.writes))
	for id := range o.base {
		if _, staged := o.writes[id]; !staged {
			ids = append(ids, id)
		}
	}
	for id := range o.writes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v, ok := o.get(id); ok {
			out = append(out, v)
		}
	}
	return out
}

func (o *overlay[T]) commit() {
	for id := range o.deletes {
		delete(o.base, id)
	}
	for id, v := range o.writes {
		o.base[id] = v
	}
}

type memoryTx struct {
	repo *MemoryRepository

	accounts  *overlay[domain.Account]
	users     *overlay[domain.User]
	merchants *overlay[domain.Merchant]
	products  *overlay[domain.Product]
	snapshots *overlay[domain.SettlementSnapshot]
	warns     []domain.SettlementWarn
	events    []OutboxMessage
}

func (t *memoryTx) commit() {
	t.accounts.commit()
	t.users.commit()
	t.merchants.commit()
	t.products.commit()
	t.snapshots.commit()
	t.repo.warns = append(t.repo.warns, t.warns...)

	now := t.repo.now()
	for _, event := range t.events {
		t.repo.nextOutboxID++
		event.ID = t.repo.nextOutboxID
		t.repo.outbox = append(t.repo.outbox, &memoryOutboxRecord{
			message:       event,
			status:        outboxPending,
			nextAttemptAt: now,
		})
	}
}

func (t *memoryTx) loadUser(userID int64) (*domain.User, error) {
	user, ok := t.users.get(userID)
	if !ok {
		return nil, ErrNotFound
	}
	if account, ok := t.accounts.get(user.AccountID); ok {
		user.Account = &account
	}
	return &user, nil
}

func (t *memoryTx) loadMerchant(merchantID int64) (*domain.Merchant, error) {
	merchant, ok := t.merchants.get(merchantID)
	if !ok {
		return nil, ErrNotFound
	}
	if account, ok := t.accounts.get(merchant.AccountID); ok {
		merchant.Account = &account
	}
	merchant.Products = t.productsOf(merchantID)
	return &merchant, nil
}

func (t *memoryTx) productsOf(merchantID int64) []domain.Product {
	products := make([]domain.Product, 0)
	for _, product := range t.products.values() {
		if product.MerchantID == merchantID {
			products = append(products, product)
		}
	}
	return products
}

func (t *memoryTx) LockUser(ctx context.Context, userID int64) (*domain.User, error) {
	return t.loadUser(userID)
}

func (t *memoryTx) LockMerchant(ctx context.Context, merchantID int64) (*domain.Merchant, error) {
	return t.loadMerchant(merchantID)
}

func (t *memoryTx) UserNameExists(ctx context.Context, userName string) (bool, error) {
	for _, user := range t.users.values() {
		if user.UserName == userName {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) EmailExists(ctx context.Context, email string) (bool, error) {
	for _, user := range t.users.values() {
		if strings.EqualFold(user.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) MerchantCodeExists(ctx context.Context, code string) (bool, error) {
	for _, merchant := range t.merchants.values() {
		if merchant.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) MerchantNameExists(ctx context.Context, name string) (bool, error) {
	for _, merchant := range t.merchants.values() {
		if merchant.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) CreateAccount(ctx context.Context, account *domain.Account) error {
	if _, exists := t.accounts.get(account.ID); exists {
		return domain.ErrAccountAlreadyExists
	}
	t.accounts.put(account.ID, *account)
	return nil
}

func (t *memoryTx) CreateUser(ctx context.Context, user *domain.User) error {
	if _, exists := t.users.get(user.ID); exists {
		return fmt.Errorf("user %d already stored", user.ID)
	}
	if taken, _ := t.UserNameExists(ctx, user.UserName); taken {
		return domain.ErrUserAlreadyExists
	}
	if taken, _ := t.EmailExists(ctx, user.Email); taken {
		return domain.ErrEmailExists
	}
	if _, ok := t.accounts.get(user.AccountID); !ok {
		return fmt.Errorf("account %d for user %d: %w", user.AccountID, user.ID, ErrNotFound)
	}

	stored := *user
	stored.Account = nil
	t.users.put(user.ID, stored)
	return nil
}

func (t *memoryTx) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	if _, exists := t.merchants.get(merchant.ID); exists {
		return fmt.Errorf("merchant %d already stored", merchant.ID)
	}
	if taken, _ := t.MerchantCodeExists(ctx, merchant.Code); taken {
		return domain.ErrMerchantCodeExists
	}
	if taken, _ := t.MerchantNameExists(ctx, merchant.Name); taken {
		return domain.ErrMerchantNameExists
	}
	if _, ok := t.accounts.get(merchant.AccountID); !ok {
		return fmt.Errorf("account %d for merchant %d: %w", merchant.AccountID, merchant.ID, ErrNotFound)
	}

	stored := *merchant
	stored.Account = nil
	stored.Products = nil
	t.merchants.put(merchant.ID, stored)
	return nil
}

func (t *memoryTx) CreateProduct(ctx context.Context, product *domain.Product) error {
	if _, ok := t.merchants.get(product.MerchantID); !ok {
		return fmt.Errorf("merchant %d for product: %w", product.MerchantID, ErrNotFound)
	}
	if _, exists := t.products.get(product.ID); exists {
		return fmt.Errorf("product %d already stored", product.ID)
	}
	for _, existing := range t.productsOf(product.MerchantID) {
		if existing.SKU == product.SKU {
			return domain.ErrProductSkuExists
		}
	}
	t.products.put(product.ID, *product)
	return nil
}

func (t *memoryTx) SaveAccount(ctx context.Context, account *domain.Account) error {
	if _, ok := t.accounts.get(account.ID); !ok {
		return fmt.Errorf("account %d: %w", account.ID, ErrNotFound)
	}
	if account.Balance.IsNegative() {
		return fmt.Errorf("account %d balance would be negative", account.ID)
	}
	t.accounts.put(account.ID, *account)
	return nil
}

func (t *memoryTx) SaveProduct(ctx context.Context, product *domain.Product) error {
	if _, ok := t.products.get(product.ID); !ok {
		return fmt.Errorf("product %d: %w", product.ID, ErrNotFound)
	}
	if product.StockQuantity < 0 {
		return fmt.Errorf("product %d stock would be negative", product.ID)
	}
	t.products.put(product.ID, *product)
	return nil
}

func (t *memoryTx) DeleteUser(ctx context.Context, userID int64) error {
	user, ok := t.users.get(userID)
	if !ok {
		return ErrNotFound
	}
	t.users.remove(userID)
	t.accounts.remove(user.AccountID)
	return nil
}

func (t *memoryTx) DeleteMerchant(ctx context.Context, merchantID int64) error {
	merchant, ok := t.merchants.get(merchantID)
	if !ok {
		return ErrNotFound
	}
	for _, product := range t.productsOf(merchantID) {
		t.products.remove(product.ID)
	}
	t.snapshots.remove(merchantID)
	t.merchants.remove(merchantID)
	t.accounts.remove(merchant.AccountID)
	return nil
}

func (t *memoryTx) GetSettlementSnapshot(ctx context.Context, merchantID int64) (*domain.SettlementSnapshot, error) {
	snapshot, ok := t.snapshots.get(merchantID)
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func (t *memoryTx) SaveSettlementSnapshot(ctx context.Context, snapshot domain.SettlementSnapshot) error {
	t.snapshots.put(snapshot.MerchantID, snapshot)
	return nil
}

func (t *memoryTx) CreateSettlementWarn(ctx context.Context, warn *domain.SettlementWarn) error {
	t.warns = append(t.warns, *warn)
	return nil
}

func (t *memoryTx) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	t.events = append(t.events, OutboxMessage{
		Exchange:   strings.TrimSpace(exchange),
		RoutingKey: strings.TrimSpace(routingKey),
		Payload:    blob,
	})
	return nil
}
