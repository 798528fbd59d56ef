package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/pagination"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByPendingOrderID(ctx context.Context, pendingOrderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params pagination.Params, filters OrderFilters) (*OrderList, error)

	// UpdateOrderStatusIf applies updates only while the order is still in one
	// of the from statuses. Returns false when another writer got there first.
	UpdateOrderStatusIf(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, updates map[string]interface{}) (bool, error)
	UpdateOrderInvoiceURLs(ctx context.Context, orderID uuid.UUID, urls types.InvoiceURLs) error
	AppendStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error

	FindPendingOrderByReference(ctx context.Context, reference string) (*models.PendingOrder, error)
	MarkPendingOrderConverted(ctx context.Context, pendingOrderID, orderID uuid.UUID) error
	// MarkPendingOrderFailed flips an initialized or pending row to failed.
	// Returns false when the row had already settled.
	MarkPendingOrderFailed(ctx context.Context, reference string) (bool, error)

	UpdatePaymentTransaction(ctx context.Context, reference string, updates map[string]interface{}) error
}
