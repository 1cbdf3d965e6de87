package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/however6234/trading-system/internal/domain"
)

type ledger struct {
	userBalance      string
	stock            int
	merchantBalance  string
	merchantDailySum string
}

func readLedger(t *testing.T, svc *Service, userID, merchantID int64) ledger {
	t.Helper()
	ctx := context.Background()
	user, err := svc.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	merchant, err := svc.repo.GetMerchant(ctx, merchantID)
	if err != nil {
		t.Fatalf("GetMerchant returned error: %v", err)
	}
	product := merchant.FindProductBySku("WIDGET-1")
	return ledger{
		userBalance:      user.Account.Balance.String(),
		stock:            product.StockQuantity,
		merchantBalance:  merchant.Account.Balance.String(),
		merchantDailySum: merchant.Account.DailySales.String(),
	}
}

func TestPurchase_MovesMoneyAndStockTogether(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	user := mustCreateUser(t, svc, "alice", "1000.00")
	merchant := mustCreateMerchant(t, svc, "ACME", widget(50))

	receipt, err := svc.Purchase(context.Background(), PurchaseRequest{
		UserID:     user.ID,
		MerchantID: merchant.ID,
		SKU:        "WIDGET-1",
		Quantity:   2,
	})
	if err != nil {
		t.Fatalf("Purchase returned error: %v", err)
	}
	if receipt.TotalCost.String() != "200.00" || receipt.Quantity != 2 {
		t.Fatalf("expected receipt 200.00 x2, got %s x%d", receipt.TotalCost, receipt.Quantity)
	}
	if receipt.Product.StockQuantity != 48 {
		t.Fatalf("expected receipt product stock 48, got %d", receipt.Product.StockQuantity)
	}

	got := readLedger(t, svc, user.ID, merchant.ID)
	want := ledger{userBalance: "800.00", stock: 48, merchantBalance: "200.00", merchantDailySum: "200.00"}
	if got != want {
		t.Fatalf("expected ledger %+v, got %+v", want, got)
	}

	messages, _ := repo.ClaimOutboxMessages(context.Background(), 10, 60)
	var purchase *domain.PurchaseCompletedEvent
	for _, message := range messages {
		if message.RoutingKey == domain.RoutingKeyPurchaseCompleted {
			purchase = &domain.PurchaseCompletedEvent{}
			if err := json.Unmarshal(message.Payload, purchase); err != nil {
				t.Fatalf("failed to decode purchase event: %v", err)
			}
		}
	}
	if purchase == nil {
		t.Fatal("expected purchase completed event in outbox")
	}
	if purchase.TotalCost.String() != "200.00" || purchase.Currency != "CNY" || purchase.EventID == "" {
		t.Fatalf("unexpected purchase event %+v", purchase)
	}
}

func TestPurchase_FailuresLeaveNoTrace(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		stock   int
		request func(userID, merchantID int64) PurchaseRequest
		want    *domain.Error
	}{
		{
			name:    "zero quantity",
			balance: "1000.00",
			stock:   50,
			request: func(u, m int64) PurchaseRequest { return PurchaseRequest{UserID: u, MerchantID: m, SKU: "WIDGET-1", Quantity: 0} },
			want:    domain.ErrInsufficientStock,
		},
		{
			name:    "negative quantity",
			balance: "1000.00",
			stock:   50,
			request: func(u, m int64) PurchaseRequest { return PurchaseRequest{UserID: u, MerchantID: m, SKU: "WIDGET-1", Quantity: -2} },
			want:    domain.ErrInsufficientStock,
		},
		{
			name:    "stock shortfall",
			balance: "1000.00",
			stock:   1,
			request: func(u, m int64) PurchaseRequest { return PurchaseRequest{UserID: u, MerchantID: m, SKU: "WIDGET-1", Quantity: 2} },
			want:    domain.ErrInsufficientStock,
		},
		{
			name:    "cost above balance",
			balance: "150.00",
			stock:   50,
			request: func(u, m int64) PurchaseRequest { return PurchaseRequest{UserID: u, MerchantID: m, SKU: "WIDGET-1", Quantity: 2} },
			want:    domain.ErrInsufficientBalance,
		},
		{
			name:    "unknown user",
			balance: "1000.00",
			stock:   50,
			request: func(u, m int64) PurchaseRequest { return PurchaseRequest{UserID: 999, MerchantID: m, SKU: "WIDGET-1", Quantity: 1} },
			want:    domain.ErrUserNotFound,
		},
		{
			name:    "unknown merchant",
			balance: "1000.00",
			stock:   50,
			request: func(u, m int64) PurchaseRequest { return PurchaseRequest{UserID: u, MerchantID: 999, SKU: "WIDGET-1", Quantity: 1} },
			want:    domain.ErrMerchantNotFound,
		},
		{
			name:    "unknown sku",
			balance: "1000.00",
			stock:   50,
			request: func(u, m int64) PurchaseRequest { return PurchaseRequest{UserID: u, MerchantID: m, SKU: "NOPE", Quantity: 1} },
			want:    domain.ErrProductNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, Options{})
			user := mustCreateUser(t, svc, "alice", tt.balance)
			merchant := mustCreateMerchant(t, svc, "ACME", widget(tt.stock))
			before := readLedger(t, svc, user.ID, merchant.ID)

			_, err := svc.Purchase(context.Background(), tt.request(user.ID, merchant.ID))
			expectCode(t, err, tt.want)

			if after := readLedger(t, svc, user.ID, merchant.ID); after != before {
				t.Fatalf("expected ledger unchanged %+v, got %+v", before, after)
			}
		})
	}
}

func TestPurchase_ConcurrentBuyersNeverOversell(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	merchant := mustCreateMerchant(t, svc, "ACME", ProductInput{SKU: "WIDGET-1", Name: "Widget", Price: domain.MustMoney("10.00"), StockQuantity: 10})

	const buyers = 25
	users := make([]*domain.User, buyers)
	for i := range users {
		users[i] = mustCreateUser(t, svc, fmt.Sprintf("buyer%d", i), "100.00")
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for _, user := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), PurchaseRequest{UserID: userID, MerchantID: merchant.ID, SKU: "WIDGET-1", Quantity: 1})
			switch {
			case err == nil:
				succeeded.Add(1)
			case !errors.Is(err, domain.ErrInsufficientStock):
				t.Errorf("unexpected purchase error: %v", err)
			}
		}(user.ID)
	}
	wg.Wait()

	if succeeded.Load() != 10 {
		t.Fatalf("expected exactly 10 successful purchases, got %d", succeeded.Load())
	}
	stored, _ := svc.repo.GetMerchant(context.Background(), merchant.ID)
	if stock := stored.FindProductBySku("WIDGET-1").StockQuantity; stock != 0 {
		t.Fatalf("expected stock 0, got %d", stock)
	}
	if stored.Account.Balance.String() != "100.00" || stored.Account.DailySales.String() != "100.00" {
		t.Fatalf("expected merchant 100.00/100.00, got %s/%s", stored.Account.Balance, stored.Account.DailySales)
	}
}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
	calls      int
	subject    string
}

func (s *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	s.calls++
	s.subject = subject
	return s.count, s.retryAfter, s.err
}

func TestPurchase_RateLimit(t *testing.T) {
	limiter := &limiterStub{count: 4, retryAfter: 17}
	svc, _ := newTestService(t, Options{RateLimiter: limiter, PurchaseRateLimit: 3, PurchaseRateWindow: time.Minute})
	user := mustCreateUser(t, svc, "alice", "1000.00")
	merchant := mustCreateMerchant(t, svc, "ACME", widget(50))
	req := PurchaseRequest{UserID: user.ID, MerchantID: merchant.ID, SKU: "WIDGET-1", Quantity: 1}

	_, err := svc.Purchase(context.Background(), req)
	expectCode(t, err, domain.ErrPurchaseRateLimited)
	var retry *RetryAfterError
	if !errors.As(err, &retry) || retry.Seconds != 17 {
		t.Fatalf("expected retry after 17s, got %v", err)
	}
	if limiter.subject != fmt.Sprint(user.ID) {
		t.Fatalf("expected limiter keyed by user id, got %q", limiter.subject)
	}

	limiter.count = 3
	if _, err := svc.Purchase(context.Background(), req); err != nil {
		t.Fatalf("expected purchase within limit to succeed, got %v", err)
	}

	limiter.err = errors.New("redis down")
	limiter.count = 0
	if _, err := svc.Purchase(context.Background(), req); err != nil {
		t.Fatalf("expected limiter outage to fail open, got %v", err)
	}
}
