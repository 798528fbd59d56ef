package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

// PendingOrder holds the cart snapshot and payment linkage between checkout
// and materialization. Rows are never deleted; they are the audit trail for
// every payment attempt. ConvertedToOrderID is written exactly once and never
// cleared: it is the idempotency marker the verify and webhook paths both
// consult.
type PendingOrder struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	CartSnapshot     types.CartSnapshot    `gorm:"column:cart_snapshot;type:jsonb;serializer:json;not null"`
	Subtotal         decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Discount         decimal.Decimal       `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Credits          decimal.Decimal       `gorm:"column:credits;type:numeric(12,2);not null;default:0"`
	TotalAmount      decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency         enums.Currency        `gorm:"column:currency;type:text;not null;default:'NGN'"`
	DeliveryAddress  types.DeliveryAddress `gorm:"column:delivery_address;type:jsonb;serializer:json;not null"`
	Notes            *string               `gorm:"column:notes"`
	PaymentReference string                `gorm:"column:payment_reference;not null;uniqueIndex"`
	PaymentStatus    enums.PaymentStatus   `gorm:"column:payment_status;type:payment_status;not null;default:'initialized'"`
	AccessCode       *string               `gorm:"column:access_code"`
	AuthorizationURL *string               `gorm:"column:authorization_url"`
	ConvertedToOrder *uuid.UUID            `gorm:"column:converted_to_order_id;type:uuid"`
	Metadata         types.JSONMap         `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// IsConverted reports whether an order has already been materialized from
// this pending order.
func (p PendingOrder) IsConverted() bool {
	return p.ConvertedToOrder != nil
}
