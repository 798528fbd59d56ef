package router

import (
	"context"
	"fmt"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
)

type pendingOrderExpiredHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newPendingOrderExpiredHandler(writer Writer, logg *logger.Logger) Handler {
	return &pendingOrderExpiredHandler{writer: writer, logg: logg}
}

func (h *pendingOrderExpiredHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.PendingOrderExpiredEvent)
	if !ok {
		return fmt.Errorf("invalid payload for pending_order_expired")
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
		event.ExpiredAt,
		event,
	)
	if err != nil {
		h.logg.Error(logCtx, "failed to build expiry row", err)
		return err
	}

	if err := h.writer.InsertRevenue(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert expiry row", err)
		return err
	}

	h.logg.Info(logCtx, "pending_order_expired fact row inserted")
	return nil
}
