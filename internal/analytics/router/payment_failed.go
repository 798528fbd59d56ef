package router

import (
	"context"
	"fmt"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
)

type paymentFailedHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newPaymentFailedHandler(writer Writer, logg *logger.Logger) Handler {
	return &paymentFailedHandler{writer: writer, logg: logg}
}

// Failed payments never moved money, so the row carries a zero amount; the
// payload keeps the attempted charge for funnel analysis.
func (h *paymentFailedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.PaymentFailedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for payment_failed")
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":        envelope.EventType,
		"pending_order_id":  event.PendingOrderID,
		"payment_reference": event.PaymentReference,
	})

	row, err := buildRevenueRow(
		envelope,
		rowIdentity{
			pendingOrderID:   event.PendingOrderID,
			userID:           event.UserID,
			paymentReference: event.PaymentReference,
		},
		0,
		event.Currency,
		event.FailedAt,
		event,
	)
	if err != nil {
		h.logg.Error(logCtx, "failed to build payment_failed row", err)
		return err
	}

	if err := h.writer.InsertRevenue(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert payment_failed row", err)
		return err
	}

	h.logg.Info(logCtx, "payment_failed fact row inserted")
	return nil
}
