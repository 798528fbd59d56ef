package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/api/middleware"
	"github.com/tobennaogbu/kobocart-backend/api/responses"
	"github.com/tobennaogbu/kobocart-backend/api/validators"
	internalorders "github.com/tobennaogbu/kobocart-backend/internal/orders"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/pagination"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

const maxReasonLength = 500

// Verify confirms payment with the gateway and materializes the order. The
// first successful call answers 201; replays answer 200 with the same order.
func Verify(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required"))
			return
		}

		result, err := svc.VerifyAndMaterialize(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.AlreadyExisted {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// List pages the caller's orders newest first. Admins see every account.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, parseErr := enums.ParseOrderStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter"))
				return
			}
			status = &parsed
		}

		list, err := svc.ListOrders(r.Context(), actor, params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// Detail returns the full order with items and the status transition log.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// Cancel cancels an order that has not shipped and restores its stock.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason := ""
		if r.Body != nil && r.ContentLength != 0 {
			var payload cancelOrderRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			reason = validators.SanitizeString(payload.Reason, maxReasonLength)
		}

		order, err := svc.CancelOrder(r.Context(), actor, orderID, reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// UpdateStatus moves an order through fulfilment. Admin only.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !actor.IsAdmin {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		reason := validators.SanitizeString(payload.Reason, maxReasonLength)

		order, err := svc.UpdateStatus(r.Context(), actor.UserID, orderID, target, reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type orderResponse struct {
	ID              uuid.UUID               `json:"id"`
	OrderNumber     string                  `json:"order_number"`
	InvoiceNumber   string                  `json:"invoice_number"`
	Status          string                  `json:"status"`
	PaymentStatus   string                  `json:"payment_status"`
	Subtotal        decimal.Decimal         `json:"subtotal"`
	Discount        decimal.Decimal         `json:"discount"`
	Credits         decimal.Decimal         `json:"credits"`
	TotalAmount     decimal.Decimal         `json:"total_amount"`
	Currency        string                  `json:"currency"`
	DeliveryAddress types.DeliveryAddress   `json:"delivery_address"`
	InvoiceURLs     *types.InvoiceURLs      `json:"invoice_urls,omitempty"`
	PaidAt          *time.Time              `json:"paid_at,omitempty"`
	CancelledAt     *time.Time              `json:"cancelled_at,omitempty"`
	Items           []orderItemResponse     `json:"items"`
	StatusHistory   []statusHistoryResponse `json:"status_history,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

type orderItemResponse struct {
	ProductID    uuid.UUID       `json:"product_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
	CategoryName string          `json:"category_name,omitempty"`
}

type statusHistoryResponse struct {
	OldStatus *string   `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status"`
	ChangedBy *string   `json:"changed_by,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}

	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:    item.ProductID,
			Name:         item.Name,
			Description:  item.Description,
			UnitPrice:    item.UnitPrice,
			Quantity:     item.Quantity,
			LineTotal:    item.LineTotal,
			CategoryName: item.CategoryName,
		})
	}

	history := make([]statusHistoryResponse, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		row := statusHistoryResponse{
			NewStatus: string(entry.NewStatus),
			Reason:    entry.Reason,
			CreatedAt: entry.CreatedAt,
		}
		if entry.OldStatus != nil {
			old := string(*entry.OldStatus)
			row.OldStatus = &old
		}
		if entry.ChangedBy != nil {
			changedBy := entry.ChangedBy.String()
			row.ChangedBy = &changedBy
		}
		history = append(history, row)
	}

	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		InvoiceNumber:   order.InvoiceNumber,
		Status:          string(order.Status),
		PaymentStatus:   order.PaymentStatus,
		Subtotal:        order.Subtotal,
		Discount:        order.Discount,
		Credits:         order.Credits,
		TotalAmount:     order.TotalAmount,
		Currency:        string(order.Currency),
		DeliveryAddress: order.DeliveryAddress,
		InvoiceURLs:     order.InvoiceURLs,
		PaidAt:          order.PaidAt,
		CancelledAt:     order.CancelledAt,
		Items:           items,
		StatusHistory:   history,
		CreatedAt:       order.CreatedAt,
	}
}

func actorFromContext(r *http.Request) (internalorders.Actor, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return internalorders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id claim")
	}
	return internalorders.Actor{
		UserID:  userID,
		IsAdmin: middleware.RoleFromContext(r.Context()) == string(enums.UserRoleAdmin),
	}, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
