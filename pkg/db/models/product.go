package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
)

// Product is the catalog listing. Catalog CRUD is owned by another service;
// the order engine reads price/availability at checkout and the stock ledger
// is the only writer of Quantity and InStock.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:name;not null"`
	Description  string          `gorm:"column:description;not null;default:''"`
	CategoryName string          `gorm:"column:category_name;not null;default:''"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Currency     enums.Currency  `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Quantity     int             `gorm:"column:quantity;not null;default:0"`
	InStock      bool            `gorm:"column:in_stock;not null;default:true"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
