package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/however6234/trading-system/internal/domain"
	"github.com/however6234/trading-system/internal/idgen"
	"github.com/however6234/trading-system/internal/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, opts Options) (*Service, *store.MemoryRepository) {
	t.Helper()
	repo := store.NewMemoryRepository()
	return NewService(repo, idgen.NewLocalProvider(idgen.DefaultStartID), newTestLogger(), opts), repo
}

func mustCreateUser(t *testing.T, svc *Service, name, balance string) *domain.User {
	t.Helper()
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, name, name+"@example.com")
	if err != nil {
		t.Fatalf("CreateUser(%s) returned error: %v", name, err)
	}
	if balance != "" {
		if _, err := svc.Recharge(ctx, user.ID, domain.MustMoney(balance), ""); err != nil {
			t.Fatalf("Recharge(%s) returned error: %v", name, err)
		}
	}
	return user
}

func mustCreateMerchant(t *testing.T, svc *Service, code string, products ...ProductInput) *domain.Merchant {
	t.Helper()
	ctx := context.Background()
	merchant, err := svc.CreateMerchant(ctx, "Merchant "+code, code)
	if err != nil {
		t.Fatalf("CreateMerchant(%s) returned error: %v", code, err)
	}
	for _, input := range products {
		if _, err := svc.AddProduct(ctx, merchant.ID, input); err != nil {
			t.Fatalf("AddProduct(%s) returned error: %v", input.SKU, err)
		}
	}
	return merchant
}

func widget(stock int) ProductInput {
	return ProductInput{SKU: "WIDGET-1", Name: "Widget", Price: domain.MustMoney("100.00"), StockQuantity: stock}
}

func expectCode(t *testing.T, err error, want *domain.Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected error %s (%s), got %v", want.Code, want.Message, err)
	}
}

func TestCreateUser_OpensZeroBalanceAccount(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	user, err := svc.CreateUser(context.Background(), " alice ", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.UserName != "alice" || !user.Active {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Account == nil || !user.Account.Balance.IsZero() || user.Account.Currency != "CNY" || user.Account.Type != domain.AccountTypeUser {
		t.Fatalf("unexpected account %+v", user.Account)
	}

	stored, err := svc.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if stored.AccountID != user.AccountID || stored.Account == nil {
		t.Fatalf("expected stored user bound to account %d, got %+v", user.AccountID, stored)
	}
}

func TestCreateUser_Conflicts(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	if _, err := svc.CreateUser(ctx, "alice", "alice@example.com"); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	tests := []struct {
		name     string
		userName string
		email    string
		want     *domain.Error
	}{
		{name: "duplicate username", userName: "alice", email: "new@example.com", want: domain.ErrUserAlreadyExists},
		{name: "duplicate email", userName: "bob", email: "alice@example.com", want: domain.ErrEmailExists},
		{name: "username checked first", userName: "alice", email: "alice@example.com", want: domain.ErrUserAlreadyExists},
		{name: "missing email", userName: "carol", email: " ", want: domain.ErrParamValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tt.userName, tt.email)
			expectCode(t, err, tt.want)
			if tt.want.Kind == domain.KindConflict && !domain.IsKind(err, domain.KindConflict) {
				t.Fatalf("expected conflict kind, got %v", err)
			}
		})
	}
}

func TestCreateMerchant_Conflicts(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	ctx := context.Background()
	first, err := svc.CreateMerchant(ctx, "Acme", "ACME")
	if err != nil {
		t.Fatalf("CreateMerchant returned error: %v", err)
	}

	if _, err := svc.CreateMerchant(ctx, "Other", "ACME"); !errors.Is(err, domain.ErrMerchantCodeExists) {
		t.Fatalf("expected merchant code conflict, got %v", err)
	}
	if _, err := svc.CreateMerchant(ctx, "Acme", "OTHER"); !errors.Is(err, domain.ErrMerchantNameExists) {
		t.Fatalf("expected merchant name conflict, got %v", err)
	}
	if _, err := svc.CreateMerchant(ctx, "Acme", "ACME"); !errors.Is(err, domain.ErrMerchantCodeExists) {
		t.Fatalf("expected code to be checked before name, got %v", err)
	}

	ids, _ := repo.ListMerchantIDs(ctx)
	if len(ids) != 1 || ids[0] != first.ID {
		t.Fatalf("expected only the first merchant stored, got %v", ids)
	}
}

func TestCreateMerchant_StartsSettlementBaseline(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	merchant := mustCreateMerchant(t, svc, "ACME")

	err := repo.InTx(context.Background(), func(tx store.Tx) error {
		snapshot, err := tx.GetSettlementSnapshot(context.Background(), merchant.ID)
		if err != nil {
			return err
		}
		if snapshot == nil || !snapshot.Balance.IsZero() || snapshot.AccountID != merchant.AccountID {
			t.Fatalf("expected zero snapshot for merchant account, got %+v", snapshot)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx returned error: %v", err)
	}
}

func TestRecharge(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	user := mustCreateUser(t, svc, "alice", "")
	ctx := context.Background()

	tests := []struct {
		name     string
		userID   int64
		amount   string
		currency string
		want     *domain.Error
	}{
		{name: "zero amount", userID: user.ID, amount: "0", want: domain.ErrInvalidAmount},
		{name: "negative amount", userID: user.ID, amount: "-5.00", want: domain.ErrInvalidAmount},
		{name: "unknown user", userID: 999, amount: "10", want: domain.ErrUserNotFound},
		{name: "foreign currency", userID: user.ID, amount: "10", currency: "USD", want: domain.ErrCurrencyNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Recharge(ctx, tt.userID, domain.MustMoney(tt.amount), tt.currency)
			expectCode(t, err, tt.want)
		})
	}

	account, err := svc.Recharge(ctx, user.ID, domain.MustMoney("250.50"), "cny")
	if err != nil {
		t.Fatalf("Recharge returned error: %v", err)
	}
	if account.Balance.String() != "250.50" || !account.DailySales.IsZero() {
		t.Fatalf("expected balance 250.50 and no daily sales, got %s/%s", account.Balance, account.DailySales)
	}

	stored, _ := svc.GetUser(ctx, user.ID)
	if stored.Account.Balance.String() != "250.50" {
		t.Fatalf("expected stored balance 250.50, got %s", stored.Account.Balance)
	}
}

func TestAddProduct(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	merchant := mustCreateMerchant(t, svc, "ACME", widget(50))
	ctx := context.Background()

	tests := []struct {
		name       string
		merchantID int64
		input      ProductInput
		want       *domain.Error
	}{
		{name: "unknown merchant", merchantID: 999, input: ProductInput{SKU: "X", Name: "X", Price: domain.MustMoney("1")}, want: domain.ErrMerchantNotFound},
		{name: "unknown merchant before bad price", merchantID: 999, input: ProductInput{SKU: "X", Name: "X", Price: domain.Zero}, want: domain.ErrMerchantNotFound},
		{name: "unknown merchant before missing sku", merchantID: 999, input: ProductInput{Price: domain.MustMoney("1")}, want: domain.ErrMerchantNotFound},
		{name: "duplicate sku", merchantID: merchant.ID, input: widget(1), want: domain.ErrProductSkuExists},
		{name: "zero price", merchantID: merchant.ID, input: ProductInput{SKU: "Y", Name: "Y", Price: domain.Zero}, want: domain.ErrInvalidAmount},
		{name: "negative stock", merchantID: merchant.ID, input: ProductInput{SKU: "Z", Name: "Z", Price: domain.MustMoney("1"), StockQuantity: -1}, want: domain.ErrInvalidAmount},
		{name: "missing sku", merchantID: merchant.ID, input: ProductInput{Name: "W", Price: domain.MustMoney("1")}, want: domain.ErrParamValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddProduct(ctx, tt.merchantID, tt.input)
			expectCode(t, err, tt.want)
		})
	}

	product, err := svc.AddProduct(ctx, merchant.ID, ProductInput{SKU: "GADGET-1", Name: "Gadget", Price: domain.MustMoney("9.99")})
	if err != nil {
		t.Fatalf("AddProduct returned error: %v", err)
	}
	if product.MerchantID != merchant.ID || product.ID == 0 {
		t.Fatalf("expected product bound to merchant with id, got %+v", product)
	}

	products, err := svc.FindAllProducts(ctx, merchant.ID)
	if err != nil {
		t.Fatalf("FindAllProducts returned error: %v", err)
	}
	if len(products) != 2 || products[0].SKU != "WIDGET-1" || products[1].SKU != "GADGET-1" {
		t.Fatalf("unexpected catalog %+v", products)
	}
}

func TestIncreaseStock(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	merchant := mustCreateMerchant(t, svc, "ACME", widget(5))
	ctx := context.Background()

	for _, quantity := range []int{0, -3} {
		if _, err := svc.IncreaseStock(ctx, merchant.ID, "WIDGET-1", quantity); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("expected invalid amount for quantity %d, got %v", quantity, err)
		}
	}
	if _, err := svc.IncreaseStock(ctx, merchant.ID, "MISSING", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if _, err := svc.IncreaseStock(ctx, 999, "WIDGET-1", 1); !errors.Is(err, domain.ErrMerchantNotFound) {
		t.Fatalf("expected merchant not found, got %v", err)
	}

	product, err := svc.IncreaseStock(ctx, merchant.ID, "WIDGET-1", 7)
	if err != nil {
		t.Fatalf("IncreaseStock returned error: %v", err)
	}
	if product.StockQuantity != 12 {
		t.Fatalf("expected stock 12, got %d", product.StockQuantity)
	}

	stored, _ := svc.GetProductBySku(ctx, "WIDGET-1", merchant.ID)
	if stored.StockQuantity != 12 {
		t.Fatalf("expected stored stock 12, got %d", stored.StockQuantity)
	}
}

func TestGetProductBySku(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	merchant := mustCreateMerchant(t, svc, "ACME", widget(5))
	ctx := context.Background()

	if _, err := svc.GetProductBySku(ctx, "", merchant.ID); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found for empty sku, got %v", err)
	}
	if _, err := svc.GetProductBySku(ctx, "WIDGET-1", 999); !errors.Is(err, domain.ErrMerchantNotFound) {
		t.Fatalf("expected merchant not found, got %v", err)
	}
	product, err := svc.GetProductBySku(ctx, "WIDGET-1", merchant.ID)
	if err != nil {
		t.Fatalf("GetProductBySku returned error: %v", err)
	}
	if product.Price.String() != "100.00" {
		t.Fatalf("expected price 100.00, got %s", product.Price)
	}
}

func TestDeleteMerchantAndUser(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	merchant := mustCreateMerchant(t, svc, "ACME", widget(5))
	user := mustCreateUser(t, svc, "alice", "10")
	ctx := context.Background()

	if err := svc.DeleteMerchant(ctx, merchant.ID); err != nil {
		t.Fatalf("DeleteMerchant returned error: %v", err)
	}
	if _, err := svc.FindAllProducts(ctx, merchant.ID); !errors.Is(err, domain.ErrMerchantNotFound) {
		t.Fatalf("expected merchant gone, got %v", err)
	}
	if err := svc.DeleteMerchant(ctx, merchant.ID); !errors.Is(err, domain.ErrMerchantNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}

	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	if _, err := svc.GetUser(ctx, user.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}

	// The name and code are free again once the merchant is gone.
	if _, err := svc.CreateMerchant(ctx, merchant.Name, merchant.Code); err != nil {
		t.Fatalf("expected re-create to succeed, got %v", err)
	}
}

func TestServiceWritesCreationEvents(t *testing.T) {
	svc, repo := newTestService(t, Options{EventsExchange: "trading.test"})
	mustCreateUser(t, svc, "alice", "")
	mustCreateMerchant(t, svc, "ACME")

	messages, err := repo.ClaimOutboxMessages(context.Background(), 10, 60)
	if err != nil {
		t.Fatalf("ClaimOutboxMessages returned error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 events, got %d", len(messages))
	}
	if messages[0].RoutingKey != domain.RoutingKeyUserCreated || messages[1].RoutingKey != domain.RoutingKeyMerchantCreated {
		t.Fatalf("unexpected routing keys %q %q", messages[0].RoutingKey, messages[1].RoutingKey)
	}
	if messages[0].Exchange != "trading.test" {
		t.Fatalf("expected configured exchange, got %q", messages[0].Exchange)
	}
}

type failingIDs struct{}

func (failingIDs) NextID(ctx context.Context, scope string) (int64, error) {
	return 0, errors.New("sequence unavailable")
}

func TestCreateUser_IDFailureIsSystemError(t *testing.T) {
	svc := NewService(store.NewMemoryRepository(), failingIDs{}, newTestLogger(), Options{})

	_, err := svc.CreateUser(context.Background(), "alice", "alice@example.com")
	if err == nil {
		t.Fatal("expected id allocation failure")
	}
	if got := domain.AsError(err); got.Code != domain.ErrSystem.Code {
		t.Fatalf("expected system error code, got %s", got.Code)
	}
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}
