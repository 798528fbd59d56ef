package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
)

// StockAdjustment journals every stock mutation an order causes. The
// composite unique index makes each (order, product, direction) pair
// apply at most once no matter how many times the caller retries.
type StockAdjustment struct {
	ID        uuid.UUID                       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID                       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_stock_adjustments_order_product_direction"`
	ProductID uuid.UUID                       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_stock_adjustments_order_product_direction"`
	Direction enums.StockAdjustmentDirection  `gorm:"column:direction;type:stock_adjustment_direction;not null;uniqueIndex:idx_stock_adjustments_order_product_direction"`
	Quantity  int                             `gorm:"column:quantity;not null"`
	Status    enums.StockAdjustmentStatus     `gorm:"column:status;type:stock_adjustment_status;not null;default:'applied'"`
	Attempts  int                             `gorm:"column:attempts;not null;default:0"`
	LastError *string                         `gorm:"column:last_error"`
	AppliedAt *time.Time                      `gorm:"column:applied_at"`
	CreatedAt time.Time                       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                       `gorm:"column:updated_at;autoUpdateTime"`
}

// IsApplied reports whether the journaled mutation has hit the products row.
func (s *StockAdjustment) IsApplied() bool {
	return s.Status == enums.StockAdjustmentApplied
}
