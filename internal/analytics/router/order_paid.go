package router

import (
	"context"
	"fmt"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
)

type orderPaidHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newOrderPaidHandler(writer Writer, logg *logger.Logger) Handler {
	return &orderPaidHandler{writer: writer, logg: logg}
}

func (h *orderPaidHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderPaidEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_paid")
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_id":     event.OrderID,
		"order_number": event.OrderNumber,
		"paid_at":      event.PaidAt,
	})

	row, err := buildRevenueRow(
		envelope,
		rowIdentity{
			orderID:          event.OrderID,
			pendingOrderID:   event.PendingOrderID,
			orderNumber:      event.OrderNumber,
			userID:           event.UserID,
			paymentReference: event.PaymentReference,
		},
		amountMinor(event.TotalAmount),
		event.Currency,
		event.PaidAt,
		event,
	)
	if err != nil {
		h.logg.Error(logCtx, "failed to build revenue row", err)
		return err
	}

	if err := h.writer.InsertRevenue(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert revenue row", err)
		return err
	}

	h.logg.Info(logCtx, "order_paid revenue row inserted")
	return nil
}
