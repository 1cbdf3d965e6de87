package domain

import "testing"

func TestProductIsAvailable(t *testing.T) {
	product := Product{SKU: "SKU-1", Price: MustMoney("100.00"), StockQuantity: 5}

	tests := []struct {
		quantity int
		want     bool
	}{
		{quantity: -1, want: false},
		{quantity: 0, want: false},
		{quantity: 1, want: true},
		{quantity: 5, want: true},
		{quantity: 6, want: false},
	}

	for _, tt := range tests {
		if got := product.IsAvailable(tt.quantity); got != tt.want {
			t.Fatalf("IsAvailable(%d): expected %v, got %v", tt.quantity, tt.want, got)
		}
	}
}

func TestProductReduceStockRejectsShortfall(t *testing.T) {
	product := Product{SKU: "SKU-1", StockQuantity: 3}

	if product.ReduceStock(4) {
		t.Fatal("expected reduce beyond stock to fail")
	}
	if product.StockQuantity != 3 {
		t.Fatalf("expected stock unchanged at 3, got %d", product.StockQuantity)
	}

	if !product.ReduceStock(3) {
		t.Fatal("expected reduce of full stock to succeed")
	}
	if product.StockQuantity != 0 {
		t.Fatalf("expected stock 0, got %d", product.StockQuantity)
	}
}

func TestProductIncreaseStock(t *testing.T) {
	product := Product{SKU: "SKU-1", StockQuantity: 48}

	product.IncreaseStock(2)

	if product.StockQuantity != 50 {
		t.Fatalf("expected stock 50, got %d", product.StockQuantity)
	}
}

func TestProductCalculateTotalPriceIsExact(t *testing.T) {
	tests := []struct {
		price    string
		quantity int
		want     string
	}{
		{price: "100.00", quantity: 2, want: "200.00"},
		{price: "0.10", quantity: 3, want: "0.30"},
		{price: "19.99", quantity: 7, want: "139.93"},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			product := Product{Price: MustMoney(tt.price)}
			got := product.CalculateTotalPrice(tt.quantity)
			if !got.Equal(MustMoney(tt.want)) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
