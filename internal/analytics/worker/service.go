package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/router"
	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
)

const analyticsConsumerName = "analytics"

// Handler processes one decoded analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service consumes order events off the analytics subscription. Every
// message is claimed in Redis before handling, so a Pub/Sub redelivery of
// an already-handled event acks without touching the warehouse again.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("worker: subscription is required")
	case handler == nil:
		return nil, errors.New("worker: handler is required")
	case manager == nil:
		return nil, errors.New("worker: idempotency manager is required")
	case logg == nil:
		return nil, errors.New("worker: logger is required")
	}
	return &Service{subscription: subscription, handler: handler, manager: manager, logg: logg}, nil
}

// Run blocks on the subscription until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func envelopeLogFields(msg *gcppubsub.Message, envelope *types.Envelope) map[string]any {
	fields := map[string]any{"message_id": msg.ID}
	if envelope == nil {
		return fields
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = envelope.EventType
	fields["aggregate_type"] = envelope.AggregateType
	fields["aggregate_id"] = envelope.AggregateID
	fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	return fields
}

// process reports whether the message should be acked. Malformed messages
// ack (redelivery cannot fix them); idempotency and handler failures nack
// for another attempt.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) bool {
	envelope, err := s.decodeMessage(msg)
	if err != nil {
		dropCtx := s.logg.WithFields(ctx, map[string]any{"message_id": msg.ID, "error": err.Error()})
		s.logg.Warn(dropCtx, "dropping undecodable message")
		return true
	}

	logCtx := s.logg.WithFields(ctx, envelopeLogFields(msg, envelope))

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "dropping message with malformed event id")
		return true
	}

	already, err := s.manager.CheckAndMarkProcessed(logCtx, analyticsConsumerName, eventID)
	switch {
	case err != nil:
		s.logg.Error(logCtx, "idempotency claim failed", err)
		return false
	case already:
		s.logg.Info(logCtx, "duplicate delivery acked")
		return true
	}

	if err := s.handler.Handle(logCtx, *envelope); err != nil {
		// An event nobody routes will never route on redelivery either, so the
		// idempotency claim stays and the message is dropped.
		if errors.Is(err, router.ErrUnsupportedEventType) {
			s.logg.Warn(logCtx, "unsupported event type skipped")
			return true
		}
		s.logg.Error(logCtx, "handler failed, releasing claim", err)
		_ = s.manager.Delete(logCtx, analyticsConsumerName, eventID)
		return false
	}

	s.logg.Info(logCtx, "analytics event handled")
	return true
}

// parseRouting reads the routing attributes the publisher stamps on every
// message.
func parseRouting(attrs map[string]string) (enums.OutboxEventType, enums.OutboxAggregateType, string, error) {
	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(attrs["event_type"]))
	if err != nil {
		return "", "", "", fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(attrs["aggregate_type"]))
	if err != nil {
		return "", "", "", fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := strings.TrimSpace(attrs["aggregate_id"])
	if aggregateID == "" {
		return "", "", "", errors.New("aggregate_id missing")
	}
	return eventType, aggregateType, aggregateID, nil
}

func resolveEventID(stored outbox.PayloadEnvelope, attrs map[string]string) (string, error) {
	if id := strings.TrimSpace(stored.EventID); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(attrs["event_id"]); id != "" {
		return id, nil
	}
	return "", errors.New("event_id missing")
}

func resolveOccurredAt(stored outbox.PayloadEnvelope, attrs map[string]string) time.Time {
	if !stored.OccurredAt.IsZero() {
		return stored.OccurredAt
	}
	if created := strings.TrimSpace(attrs["created_at"]); created != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// decodeMessage merges the stored payload envelope with the publisher's
// message attributes into the envelope the router consumes.
func (s *Service) decodeMessage(msg *gcppubsub.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, aggregateType, aggregateID, err := parseRouting(msg.Attributes)
	if err != nil {
		return nil, err
	}
	eventID, err := resolveEventID(stored, msg.Attributes)
	if err != nil {
		return nil, err
	}

	return &types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    resolveOccurredAt(stored, msg.Attributes).UTC(),
		Payload:       stored.Data,
	}, nil
}
