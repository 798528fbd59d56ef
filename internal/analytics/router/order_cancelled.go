package router

import (
	"context"
	"fmt"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
)

type orderCancelledHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newOrderCancelledHandler(writer Writer, logg *logger.Logger) Handler {
	return &orderCancelledHandler{writer: writer, logg: logg}
}

// A cancellation books the reversal of the paid amount, so summing
// amount_minor over a period nets out cancelled revenue.
func (h *orderCancelledHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderCancelledEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_cancelled")
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_id":     event.OrderID,
		"order_number": event.OrderNumber,
		"cancelled_at": event.CancelledAt,
	})

	row, err := buildRevenueRow(
		envelope,
		rowIdentity{
			orderID:     event.OrderID,
			orderNumber: event.OrderNumber,
			userID:      event.UserID,
		},
		-amountMinor(event.TotalAmount),
		event.Currency,
		event.CancelledAt,
		event,
	)
	if err != nil {
		h.logg.Error(logCtx, "failed to build reversal row", err)
		return err
	}

	if err := h.writer.InsertRevenue(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert reversal row", err)
		return err
	}

	h.logg.Info(logCtx, "order_cancelled reversal row inserted")
	return nil
}
