/**
 * @description
 * Merchant aggregates a settlement account and a product catalog.
 */
package domain

import (
	"strings"
	"time"
)

// Merchant names and codes are globally unique.
type Merchant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	AccountID int64     `json:"account_id"`
	Account   *Account  `json:"account,omitempty"`
	Products  []Product `json:"products,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AddProduct appends product to the catalog unless its SKU is already listed.
func (m *Merchant) AddProduct(product Product) error {
	if m.FindProductBySku(product.SKU) != nil {
		return ErrProductSkuExists
	}
	product.MerchantID = m.ID
	m.Products = append(m.Products, product)
	return nil
}

// FindProductBySku returns the first catalog entry with sku, or nil.
func (m *Merchant) FindProductBySku(sku string) *Product {
	if strings.TrimSpace(sku) == "" {
		return nil
	}
	for i := range m.Products {
		if m.Products[i].SKU == sku {
			return &m.Products[i]
		}
	}
	return nil
}

// CreditBalance books revenue on the merchant account.
func (m *Merchant) CreditBalance(amount Money) error {
	if m.Account == nil {
		return ErrAccountNotFound
	}
	return m.Account.Credit(amount)
}

// ResetDailySales clears the merchant's daily sales.
func (m *Merchant) ResetDailySales() error {
	if m.Account == nil {
		return ErrAccountNotFound
	}
	m.Account.ResetDailySales()
	return nil
}
