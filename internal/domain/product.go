/**
 * @description
 * Product is one inventory line in a merchant catalog.
 */
package domain

import "time"

// Product is identified by SKU within its merchant. StockQuantity never goes below zero.
type Product struct {
	ID            int64     `json:"id"`
	MerchantID    int64     `json:"merchant_id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         Money     `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ReduceStock removes quantity from stock when enough is on hand. Callers must
// pass a positive quantity.
func (p *Product) ReduceStock(quantity int) bool {
	if p.StockQuantity < quantity {
		return false
	}
	p.StockQuantity -= quantity
	p.UpdatedAt = time.Now().UTC()
	return true
}

// IncreaseStock restocks the line. Callers must pass a positive quantity.
func (p *Product) IncreaseStock(quantity int) {
	p.StockQuantity += quantity
	p.UpdatedAt = time.Now().UTC()
}

// CalculateTotalPrice returns price multiplied by quantity.
func (p *Product) CalculateTotalPrice(quantity int) Money {
	return p.Price.MulInt(quantity)
}

// IsAvailable reports whether a purchase of quantity can be served.
func (p *Product) IsAvailable(quantity int) bool {
	return quantity > 0 && p.StockQuantity >= quantity
}
