package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is one product line frozen at pending-order creation. Prices and
// names are copied out of the catalog so later product edits cannot change
// what the customer is paying for.
type CartLine struct {
	ProductID    uuid.UUID       `json:"product_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
	CategoryName string          `json:"category_name,omitempty"`
}

// CartSnapshot is the ordered, immutable set of lines a payment was taken
// against.
type CartSnapshot []CartLine

// Subtotal sums the line totals.
func (s CartSnapshot) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s {
		total = total.Add(line.LineTotal)
	}
	return total
}

// TotalQuantity sums the units across all lines.
func (s CartSnapshot) TotalQuantity() int {
	qty := 0
	for _, line := range s {
		qty += line.Quantity
	}
	return qty
}

// JSONMap is a loose jsonb payload for gateway metadata and audit notes.
type JSONMap map[string]any
