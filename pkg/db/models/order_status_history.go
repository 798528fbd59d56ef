package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
)

// OrderStatusHistory is the append-only transition log. The first row for
// every order is (null -> processing), written in the materialization
// transaction; every later transition appends exactly one row.
type OrderStatusHistory struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	OldStatus *enums.OrderStatus `gorm:"column:old_status;type:order_status"`
	NewStatus enums.OrderStatus  `gorm:"column:new_status;type:order_status;not null"`
	ChangedBy *uuid.UUID         `gorm:"column:changed_by;type:uuid"`
	Reason    string             `gorm:"column:reason;not null;default:''"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
