package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is the denormalized purchase line. Name, price, and category are
// copied from the cart snapshot at materialization; deleting or editing the
// product later leaves order history untouched.
type OrderItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name         string          `gorm:"column:name;not null"`
	Description  string          `gorm:"column:description;not null;default:''"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	LineTotal    decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CategoryName string          `gorm:"column:category_name;not null;default:''"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
