package models

import (
	"github.com/shopspring/decimal"
)

// Product is the catalog view the pricing engine needs.
type Product struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	BrandID    string `json:"brand_id"`
	Active     bool   `json:"active"`
}

// Variant is a sellable product variant. OriginalPrice is set only while a
// direct price discount is applied and holds the price to restore.
type Variant struct {
	ID            string           `json:"id"`
	ProductID     string           `json:"product_id"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Active        bool             `json:"active"`
}

// ShippingArea is a delivery zone with a flat shipping cost.
type ShippingArea struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Cost *decimal.Decimal `json:"cost,omitempty"`
}

// CartItem is a persisted cart row.
type CartItem struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// CartLine is one priced line of a cart snapshot.
type CartLine struct {
	ProductID    string          `json:"product_id"`
	VariantID    string          `json:"variant_id"`
	CategoryID   string          `json:"category_id"`
	BrandID      string          `json:"brand_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
}

// CartSnapshot is a read-only aggregation of a cart, recomputed per request.
type CartSnapshot struct {
	UserID   string          `json:"user_id"`
	Lines    []CartLine      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// NewCartSnapshot computes line subtotals and the cart subtotal.
// Lines with a non-positive quantity are dropped.
func NewCartSnapshot(userID string, lines []CartLine) CartSnapshot {
	snapshot := CartSnapshot{UserID: userID, Subtotal: decimal.Zero}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		line.LineSubtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		snapshot.Subtotal = snapshot.Subtotal.Add(line.LineSubtotal)
		snapshot.Lines = append(snapshot.Lines, line)
	}
	return snapshot
}

// IsEmpty reports whether the snapshot has no lines.
func (c CartSnapshot) IsEmpty() bool {
	return len(c.Lines) == 0
}
