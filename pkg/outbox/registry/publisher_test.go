package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
)

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrderEventsTopic: "order-events-topic"})
	require.NoError(t, err)
	return reg
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	})
	require.NoError(t, err)
	return data
}

func requireNonRetryable(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var nonRetry NonRetryableError
	require.ErrorAs(t, err, &nonRetry)
}

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	orderID := uuid.New()
	payloadBytes, err := json.Marshal(payloads.OrderPaidEvent{
		OrderID:          orderID,
		OrderNumber:      "KC-20260314-0A1B2C",
		InvoiceNumber:    "INV-20260314-0A1B2C",
		PendingOrderID:   uuid.New(),
		UserID:           uuid.New(),
		PaymentReference: "kc_7f3d2a",
		TotalAmount:      decimal.RequireFromString("5250.00"),
		Currency:         "NGN",
		PaidAt:           time.Now().UTC(),
	})
	require.NoError(t, err)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       mustEnvelope(t, payloadBytes),
	})
	require.NoError(t, err)

	assert.Equal(t, "order-events-topic", resolved.Descriptor.Topic)
	assert.Equal(t, enums.EventOrderPaid, resolved.Descriptor.EventType)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())

	payload, ok := resolved.Payload.(*payloads.OrderPaidEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.Equal(t, "kc_7f3d2a", payload.PaymentReference)
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	_, err := newTestEventRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.OutboxEventType("order_refunded"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	})
	requireNonRetryable(t, err)
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	_, err := newTestEventRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregatePendingOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"order_id":"00000000-0000-0000-0000-000000000000"}`)),
	})
	requireNonRetryable(t, err)
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	_, err := newTestEventRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	})
	requireNonRetryable(t, err)
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	_, err := newTestEventRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePendingOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	})
	requireNonRetryable(t, err)
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	require.Error(t, err)
}
