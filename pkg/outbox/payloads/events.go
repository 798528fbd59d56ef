package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderPaidEvent is emitted inside the materialization transaction once a
// paid pending order becomes a real order. Consumers load the order by id
// for anything beyond these identifiers.
type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	InvoiceNumber    string          `json:"invoice_number"`
	PendingOrderID   uuid.UUID       `json:"pending_order_id"`
	UserID           uuid.UUID       `json:"user_id"`
	PaymentReference string          `json:"payment_reference"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         string          `json:"currency"`
	PaidAt           time.Time       `json:"paid_at"`
}

// OrderCancelledEvent is emitted when an order is cancelled before dispatch.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uuid.UUID       `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CancelledAt time.Time       `json:"cancelled_at"`
	Reason      string          `json:"reason,omitempty"`
}

// PaymentFailedEvent records a gateway-reported charge failure on a pending
// order. No order exists yet; the aggregate is the pending order.
type PaymentFailedEvent struct {
	PendingOrderID   uuid.UUID       `json:"pending_order_id"`
	UserID           uuid.UUID       `json:"user_id"`
	PaymentReference string          `json:"payment_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	GatewayResponse  string          `json:"gateway_response,omitempty"`
	FailedAt         time.Time       `json:"failed_at"`
}

// PendingOrderExpiredEvent reports that the expiry sweep cancelled a pending
// order that never saw a successful payment. Amount is the revenue that
// walked away, for funnel reporting.
type PendingOrderExpiredEvent struct {
	PendingOrderID   uuid.UUID       `json:"pending_order_id"`
	UserID           uuid.UUID       `json:"user_id"`
	PaymentReference string          `json:"payment_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	ExpiredAt        time.Time       `json:"expired_at"`
	TTLHours         int             `json:"ttl_hours,omitempty"`
}
