/**
 * @description
 * Receipt and the event payloads written to the outbox.
 */
package domain

import "time"

// Receipt is returned by a successful purchase.
type Receipt struct {
	TotalCost Money   `json:"total_cost"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

// Routing keys published on the events exchange.
const (
	RoutingKeyUserCreated        = "trading.user.created"
	RoutingKeyMerchantCreated    = "trading.merchant.created"
	RoutingKeyPurchaseCompleted  = "trading.purchase.completed"
	RoutingKeySettlementMismatch = "trading.settlement.mismatch"
)

type UserCreatedEvent struct {
	EventID   string    `json:"event_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"username"`
	Email     string    `json:"email"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

type MerchantCreatedEvent struct {
	EventID    string    `json:"event_id"`
	MerchantID int64     `json:"merchant_id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	AccountID  int64     `json:"account_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type PurchaseCompletedEvent struct {
	EventID    string    `json:"event_id"`
	UserID     int64     `json:"user_id"`
	MerchantID int64     `json:"merchant_id"`
	ProductID  int64     `json:"product_id"`
	SKU        string    `json:"sku"`
	Quantity   int       `json:"quantity"`
	TotalCost  Money     `json:"total_cost"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

type SettlementMismatchEvent struct {
	EventID    string    `json:"event_id"`
	WarnID     int64     `json:"warn_id"`
	MerchantID int64     `json:"merchant_id"`
	PreBalance Money     `json:"pre_balance"`
	Balance    Money     `json:"balance"`
	DailySales Money     `json:"daily_sales"`
	DetectedAt time.Time `json:"detected_at"`
}
