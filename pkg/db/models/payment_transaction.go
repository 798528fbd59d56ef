package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

// PaymentTransaction mirrors the gateway-side state of one payment, keyed
// one-to-one with a pending order by reference. Both the verify path and the
// webhook path update it; the unique index keeps it single per reference.
type PaymentTransaction struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentReference      string              `gorm:"column:payment_reference;not null;uniqueIndex"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency              enums.Currency      `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Status                enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	ProviderTransactionID *string             `gorm:"column:provider_transaction_id"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	Channel               *string             `gorm:"column:channel"`
	FeesMinor             *int64              `gorm:"column:fees_minor"`
	GatewayResponse       types.JSONMap       `gorm:"column:gateway_response;type:jsonb;serializer:json"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
