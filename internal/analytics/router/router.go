package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertRevenue(ctx context.Context, row types.RevenueRow) error
}

// Handler receives an envelope plus a decoded event payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// route pairs an event's payload schema with its handler.
type route struct {
	newPayload func() any
	handler    Handler
}

func (r route) decode(envelope types.Envelope) (any, error) {
	if len(envelope.Payload) == 0 {
		return nil, fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload := r.newPayload()
	if err := json.Unmarshal(envelope.Payload, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return payload, nil
}

// Router dispatches analytics envelopes to the configured handler per event type.
type Router struct {
	routes map[enums.OutboxEventType]route
	logg   *logger.Logger
}

// NewRouter wires the default handlers and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	routes := map[enums.OutboxEventType]route{
		enums.EventOrderPaid: {
			newPayload: func() any { return &payloads.OrderPaidEvent{} },
			handler:    newOrderPaidHandler(writer, logg),
		},
		enums.EventOrderCancelled: {
			newPayload: func() any { return &payloads.OrderCancelledEvent{} },
			handler:    newOrderCancelledHandler(writer, logg),
		},
		enums.EventPaymentFailed: {
			newPayload: func() any { return &payloads.PaymentFailedEvent{} },
			handler:    newPaymentFailedHandler(writer, logg),
		},
		enums.EventPendingOrderExpired: {
			newPayload: func() any { return &payloads.PendingOrderExpiredEvent{} },
			handler:    newPendingOrderExpiredHandler(writer, logg),
		},
	}

	for event, custom := range overrides {
		if custom == nil {
			continue
		}
		if entry, ok := routes[event]; ok {
			entry.handler = custom
			routes[event] = entry
		}
	}

	return &Router{routes: routes, logg: logg}, nil
}

// Handle dispatches the incoming envelope to the configured handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	entry, ok := r.routes[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload, err := entry.decode(envelope)
	if err != nil {
		return err
	}
	return entry.handler.Handle(ctx, envelope, payload)
}
