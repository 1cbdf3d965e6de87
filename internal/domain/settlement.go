/**
 * @description
 * Settlement reconciliation records: the per-merchant balance snapshot taken at
 * the end of each pass and the warning written when a pass finds drift.
 */
package domain

import "time"

// SettlementSnapshot is the merchant balance recorded by the last settlement pass.
type SettlementSnapshot struct {
	MerchantID int64     `json:"merchant_id"`
	AccountID  int64     `json:"account_id"`
	Balance    Money     `json:"balance"`
	Currency   string    `json:"currency"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SettlementWarn is an append-only record of a balance mismatch.
type SettlementWarn struct {
	ID         int64     `json:"id"`
	MerchantID int64     `json:"merchant_id"`
	PreBalance Money     `json:"pre_balance"`
	Balance    Money     `json:"balance"`
	DailySales Money     `json:"daily_sales"`
	CreatedAt  time.Time `json:"created_at"`
}

// SettlementCheck is the outcome of comparing an account against its snapshot.
type SettlementCheck struct {
	PreBalance Money
	Balance    Money
	DailySales Money
	Expected   Money
}

// Mismatch reports whether the live balance differs from preBalance + dailySales.
func (c SettlementCheck) Mismatch() bool {
	return !c.Balance.Equal(c.Expected)
}

// CheckSettlement compares account against snapshot. A nil snapshot counts as a
// zero baseline.
func CheckSettlement(snapshot *SettlementSnapshot, account *Account) SettlementCheck {
	pre := Zero
	if snapshot != nil {
		pre = snapshot.Balance
	}
	return SettlementCheck{
		PreBalance: pre,
		Balance:    account.Balance,
		DailySales: account.DailySales,
		Expected:   pre.Add(account.DailySales),
	}
}

// Settle closes the period for account: daily sales are cleared and the
// returned snapshot carries the current balance as the next baseline.
func Settle(merchantID int64, account *Account, now time.Time) SettlementSnapshot {
	account.ResetDailySales()
	return SettlementSnapshot{
		MerchantID: merchantID,
		AccountID:  account.ID,
		Balance:    account.Balance,
		Currency:   account.Currency,
		UpdatedAt:  now,
	}
}
