package paystackwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tobennaogbu/kobocart-backend/pkg/redis"
)

// IdempotencyGuard fences duplicate webhook deliveries with a Redis SETNX
// claim. Paystack sends no event id, so callers key deliveries by event type
// plus reference; the claim is released on handler failure so a redelivery
// can retry.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark claims the delivery. Returns true when another delivery
// already holds the claim.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	key := g.store.IdempotencyKey(g.scope, deliveryID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Release drops the claim so the gateway's redelivery gets processed.
func (g *IdempotencyGuard) Release(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	key := g.store.IdempotencyKey(g.scope, deliveryID)
	return g.store.Del(ctx, key)
}

// DeliveryID builds the dedupe key for one delivery.
func DeliveryID(eventType, reference string) string {
	return eventType + ":" + reference
}
