package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

// Actor identifies who is asking. Admins see and mutate any order, everyone
// else is scoped to their own.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

func (a Actor) role() enums.UserRole {
	if a.IsAdmin {
		return enums.UserRoleAdmin
	}
	return enums.UserRoleCustomer
}

// MaterializeResult is what a successful verification returns regardless of
// whether this call created the order or an earlier one already had.
type MaterializeResult struct {
	OrderID        uuid.UUID          `json:"order_id"`
	OrderNumber    string             `json:"order_number"`
	InvoiceNumber  string             `json:"invoice_number"`
	Status         enums.OrderStatus  `json:"status"`
	InvoiceURLs    *types.InvoiceURLs `json:"invoice_urls,omitempty"`
	AlreadyExisted bool               `json:"-"`
}

// OrderFilters narrows a list query. A nil field means no constraint.
type OrderFilters struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
}

type OrderSummary struct {
	ID            uuid.UUID         `json:"id"`
	OrderNumber   string            `json:"order_number"`
	InvoiceNumber string            `json:"invoice_number"`
	Status        enums.OrderStatus `json:"status"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Currency      enums.Currency    `json:"currency"`
	TotalItems    int               `json:"total_items"`
	CreatedAt     time.Time         `json:"created_at"`
}

type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
