package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

// Order is the confirmed, paid order. The unique index on PendingOrderID is
// the single-writer constraint: two racing materializations of the same
// pending order cannot both insert, whatever their interleaving.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string                `gorm:"column:order_number;not null;uniqueIndex"`
	InvoiceNumber   string                `gorm:"column:invoice_number;not null;uniqueIndex"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	PendingOrderID  uuid.UUID             `gorm:"column:pending_order_id;type:uuid;not null;uniqueIndex:idx_orders_pending_order_id"`
	Status          enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'processing'"`
	PaymentStatus   string                `gorm:"column:payment_status;not null;default:'paid'"`
	Subtotal        decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Discount        decimal.Decimal       `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Credits         decimal.Decimal       `gorm:"column:credits;type:numeric(12,2);not null;default:0"`
	TotalAmount     decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency        enums.Currency        `gorm:"column:currency;type:text;not null;default:'NGN'"`
	DeliveryAddress types.DeliveryAddress `gorm:"column:delivery_address;type:jsonb;serializer:json;not null"`
	InvoiceURLs     *types.InvoiceURLs    `gorm:"column:invoice_urls;type:jsonb;serializer:json"`
	PaidAt          *time.Time            `gorm:"column:paid_at"`
	CancelledAt     *time.Time            `gorm:"column:cancelled_at"`
	Items           []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory   []OrderStatusHistory  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
