package controllers

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
	checkoutsvc "github.com/tobennaogbu/kobocart-backend/internal/checkout"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

// CreatePendingOrder snapshots the submitted cart and initializes payment
// with the gateway. The client is sent to authorization_url to pay.
func CreatePendingOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createPendingOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]checkoutsvc.CartItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, checkoutsvc.CartItemInput{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}

		result, err := svc.CreatePendingOrder(r.Context(), checkoutsvc.CreatePendingOrderInput{
			UserID:          userID,
			Items:           items,
			DeliveryAddress: payload.DeliveryAddress,
			Discount:        decimalOrZero(payload.Discount),
			Credits:         decimalOrZero(payload.Credits),
			Notes:           payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCreatePendingOrderResponse(result))
	}
}

// GetPendingOrder returns one of the caller's pending orders, including the
// payment handle for resuming an interrupted checkout.
func GetPendingOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pendingOrderID, err := parseUUIDParam(r, "pendingOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pending, err := svc.GetPendingOrder(r.Context(), userID, pendingOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPendingOrderResponse(pending))
	}
}

// CancelPendingOrder abandons an unpaid checkout. Paid and converted pending
// orders cannot be cancelled here.
func CancelPendingOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pendingOrderID, err := parseUUIDParam(r, "pendingOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pending, err := svc.CancelPendingOrder(r.Context(), userID, pendingOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"id":             pending.ID,
			"payment_status": pending.PaymentStatus,
		})
	}
}

type createPendingOrderRequest struct {
	Items           []pendingOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress types.DeliveryAddress     `json:"delivery_address" validate:"required"`
	Discount        *decimal.Decimal          `json:"discount,omitempty"`
	Credits         *decimal.Decimal          `json:"credits,omitempty"`
	Notes           *string                   `json:"notes,omitempty"`
}

type pendingOrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required,uuid4"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type createPendingOrderResponse struct {
	PendingOrderID   uuid.UUID       `json:"pending_order_id"`
	PaymentReference string          `json:"payment_reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

type pendingOrderResponse struct {
	ID               uuid.UUID             `json:"id"`
	Items            types.CartSnapshot    `json:"items"`
	Subtotal         decimal.Decimal       `json:"subtotal"`
	Discount         decimal.Decimal       `json:"discount"`
	Credits          decimal.Decimal       `json:"credits"`
	TotalAmount      decimal.Decimal       `json:"total_amount"`
	Currency         string                `json:"currency"`
	DeliveryAddress  types.DeliveryAddress `json:"delivery_address"`
	Notes            *string               `json:"notes,omitempty"`
	PaymentReference string                `json:"payment_reference"`
	PaymentStatus    string                `json:"payment_status"`
	AuthorizationURL *string               `json:"authorization_url,omitempty"`
	ConvertedToOrder *uuid.UUID            `json:"converted_to_order_id,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

func newCreatePendingOrderResponse(result *checkoutsvc.CreatePendingOrderResult) createPendingOrderResponse {
	if result == nil {
		return createPendingOrderResponse{}
	}
	return createPendingOrderResponse{
		PendingOrderID:   result.PendingOrderID,
		PaymentReference: result.PaymentReference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Amount:           result.Amount,
		Currency:         string(result.Currency),
	}
}

func newPendingOrderResponse(pending *models.PendingOrder) pendingOrderResponse {
	if pending == nil {
		return pendingOrderResponse{}
	}
	return pendingOrderResponse{
		ID:               pending.ID,
		Items:            pending.CartSnapshot,
		Subtotal:         pending.Subtotal,
		Discount:         pending.Discount,
		Credits:          pending.Credits,
		TotalAmount:      pending.TotalAmount,
		Currency:         string(pending.Currency),
		DeliveryAddress:  pending.DeliveryAddress,
		Notes:            pending.Notes,
		PaymentReference: pending.PaymentReference,
		PaymentStatus:    string(pending.PaymentStatus),
		AuthorizationURL: pending.AuthorizationURL,
		ConvertedToOrder: pending.ConvertedToOrder,
		CreatedAt:        pending.CreatedAt,
	}
}

func authenticatedUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id claim")
	}
	return userID, nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	value, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return value, nil
}

func decimalOrZero(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}
