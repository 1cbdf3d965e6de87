/**
 * @description
 * Account is the balance ledger owned one-to-one by a user or a merchant.
 */
package domain

import "time"

// AccountType identifies the owner of an account.
type AccountType string

const (
	AccountTypeUser     AccountType = "User"
	AccountTypeMerchant AccountType = "Merchant"
)

// DefaultCurrency is the only settlement currency accounts are opened in.
const DefaultCurrency = "CNY"

// Account holds a non-negative balance. DailySales only grows through Credit
// and is cleared by settlement.
type Account struct {
	ID         int64       `json:"id"`
	Balance    Money       `json:"balance"`
	Currency   string      `json:"currency"`
	Type       AccountType `json:"account_type"`
	DailySales Money       `json:"daily_sales"`
	Active     bool        `json:"active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewAccount opens an active zero-balance account.
func NewAccount(id int64, accountType AccountType, currency string) *Account {
	if currency == "" {
		currency = DefaultCurrency
	}
	now := time.Now().UTC()
	return &Account{
		ID:         id,
		Balance:    Zero,
		Currency:   currency,
		Type:       accountType,
		DailySales: Zero,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Recharge adds amount to the balance. DailySales is not touched.
func (a *Account) Recharge(amount Money) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	a.touch()
	return nil
}

// Deduct removes amount from the balance when it is covered. An uncovered
// deduction leaves the balance unchanged and returns false.
func (a *Account) Deduct(amount Money) (bool, error) {
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}
	if a.Balance.Cmp(amount) < 0 {
		return false, nil
	}
	a.Balance = a.Balance.Sub(amount)
	a.touch()
	return true, nil
}

// Credit records merchant revenue: balance and daily sales grow together.
func (a *Account) Credit(amount Money) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	a.DailySales = a.DailySales.Add(amount)
	a.touch()
	return nil
}

// ResetDailySales clears the daily sales accumulator.
func (a *Account) ResetDailySales() {
	a.DailySales = Zero
	a.touch()
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now().UTC()
}
