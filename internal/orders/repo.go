package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/pagination"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderByPendingOrderID(ctx context.Context, pendingOrderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("pending_order_id = ?", pendingOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListOrders(ctx context.Context, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Preload("Items")
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	summaries := make([]OrderSummary, 0, len(rows))
	for _, order := range rows {
		totalItems := 0
		for _, item := range order.Items {
			totalItems += item.Quantity
		}
		summaries = append(summaries, OrderSummary{
			ID:            order.ID,
			OrderNumber:   order.OrderNumber,
			InvoiceNumber: order.InvoiceNumber,
			Status:        order.Status,
			TotalAmount:   order.TotalAmount,
			Currency:      order.Currency,
			TotalItems:    totalItems,
			CreatedAt:     order.CreatedAt,
		})
	}
	return &OrderList{Orders: summaries, NextCursor: nextCursor}, nil
}

func (r *repository) UpdateOrderStatusIf(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) UpdateOrderInvoiceURLs(ctx context.Context, orderID uuid.UUID, urls types.InvoiceURLs) error {
	// Map updates bypass the model serializer, so the struct is marshalled by
	// hand before it goes into the jsonb column.
	raw, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("marshal invoice urls: %w", err)
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("invoice_urls", string(raw)).Error
}

func (r *repository) AppendStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindPendingOrderByReference(ctx context.Context, reference string) (*models.PendingOrder, error) {
	var pending models.PendingOrder
	err := r.db.WithContext(ctx).
		Where("payment_reference = ?", reference).
		First(&pending).Error
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

func (r *repository) MarkPendingOrderConverted(ctx context.Context, pendingOrderID, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PendingOrder{}).
		Where("id = ?", pendingOrderID).
		Updates(map[string]interface{}{
			"converted_to_order_id": orderID,
			"payment_status":        enums.PaymentStatusSuccess,
		}).Error
}

func (r *repository) MarkPendingOrderFailed(ctx context.Context, reference string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PendingOrder{}).
		Where("payment_reference = ? AND payment_status IN ?", reference, []enums.PaymentStatus{
			enums.PaymentStatusInitialized,
			enums.PaymentStatusPending,
		}).
		Update("payment_status", enums.PaymentStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) UpdatePaymentTransaction(ctx context.Context, reference string, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("payment_reference = ?", reference).
		Updates(updates).Error
}
