package domain

import (
	"errors"
	"testing"
)

func TestAccountRejectsNonPositiveAmounts(t *testing.T) {
	amounts := []string{"0", "0.00", "-1", "-0.01"}

	for _, raw := range amounts {
		t.Run(raw, func(t *testing.T) {
			account := NewAccount(1, AccountTypeUser, "")
			account.Balance = MustMoney("50.00")
			amount := MustMoney(raw)

			if err := account.Recharge(amount); !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected recharge to fail with invalid amount, got %v", err)
			}
			if ok, err := account.Deduct(amount); ok || !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected deduct to fail with invalid amount, got ok=%v err=%v", ok, err)
			}
			if err := account.Credit(amount); !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected credit to fail with invalid amount, got %v", err)
			}
			if !account.Balance.Equal(MustMoney("50.00")) || !account.DailySales.IsZero() {
				t.Fatalf("expected state unchanged, got balance=%s daily_sales=%s", account.Balance, account.DailySales)
			}
		})
	}
}

func TestAccountRechargeLeavesDailySalesAlone(t *testing.T) {
	account := NewAccount(1, AccountTypeUser, "")

	if err := account.Recharge(MustMoney("1000.00")); err != nil {
		t.Fatalf("recharge returned error: %v", err)
	}
	if account.Balance.String() != "1000.00" {
		t.Fatalf("expected balance 1000.00, got %s", account.Balance)
	}
	if !account.DailySales.IsZero() {
		t.Fatalf("expected daily sales 0, got %s", account.DailySales)
	}
}

func TestAccountDeductNeverGoesNegative(t *testing.T) {
	tests := []struct {
		name        string
		balance     string
		amount      string
		wantOK      bool
		wantBalance string
	}{
		{name: "covered", balance: "100.00", amount: "40.50", wantOK: true, wantBalance: "59.50"},
		{name: "exact", balance: "100.00", amount: "100.00", wantOK: true, wantBalance: "0.00"},
		{name: "short by a cent", balance: "100.00", amount: "100.01", wantOK: false, wantBalance: "100.00"},
		{name: "empty account", balance: "0", amount: "0.01", wantOK: false, wantBalance: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := NewAccount(1, AccountTypeUser, "")
			account.Balance = MustMoney(tt.balance)

			ok, err := account.Deduct(MustMoney(tt.amount))
			if err != nil {
				t.Fatalf("deduct returned error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if account.Balance.String() != tt.wantBalance {
				t.Fatalf("expected balance %s, got %s", tt.wantBalance, account.Balance)
			}
		})
	}
}

func TestAccountCreditGrowsBalanceAndDailySales(t *testing.T) {
	account := NewAccount(7, AccountTypeMerchant, "")
	account.Balance = MustMoney("800.00")

	if err := account.Credit(MustMoney("200.00")); err != nil {
		t.Fatalf("credit returned error: %v", err)
	}
	if err := account.Credit(MustMoney("0.10")); err != nil {
		t.Fatalf("credit returned error: %v", err)
	}

	if account.Balance.String() != "1000.10" {
		t.Fatalf("expected balance 1000.10, got %s", account.Balance)
	}
	if account.DailySales.String() != "200.10" {
		t.Fatalf("expected daily sales 200.10, got %s", account.DailySales)
	}

	account.ResetDailySales()
	if !account.DailySales.IsZero() {
		t.Fatalf("expected daily sales reset, got %s", account.DailySales)
	}
	if account.Balance.String() != "1000.10" {
		t.Fatalf("expected reset to keep balance, got %s", account.Balance)
	}
}

func TestNewAccountDefaults(t *testing.T) {
	account := NewAccount(10001, AccountTypeMerchant, "")

	if account.Currency != DefaultCurrency {
		t.Fatalf("expected currency %s, got %s", DefaultCurrency, account.Currency)
	}
	if !account.Active {
		t.Fatal("expected new account to be active")
	}
	if !account.Balance.IsZero() || !account.DailySales.IsZero() {
		t.Fatalf("expected zero balances, got balance=%s daily_sales=%s", account.Balance, account.DailySales)
	}
}
