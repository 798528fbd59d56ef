package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	client := &Client{cmd: store}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)
	require.EqualValues(t, 1, count)
	require.Len(t, store.expires, 1, "first increment should stamp the window TTL")

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)
	require.EqualValues(t, 2, count)
	require.Len(t, store.expires, 1, "TTL is stamped once per window")

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	require.NoError(t, err)
	require.False(t, allowed, "third hit should exceed limit of 2")
}

func TestMarkProcessedClaimsOncePerSubscription(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMemStore()}

	first, err := client.MarkProcessed(ctx, "kc-order-events-worker", "event-1", time.Hour)
	require.NoError(t, err)
	require.True(t, first, "first delivery claims the event")

	second, err := client.MarkProcessed(ctx, "kc-order-events-worker", "event-1", time.Hour)
	require.NoError(t, err)
	require.False(t, second, "redelivery inside the TTL window is rejected")

	// each subscription keeps its own window
	other, err := client.MarkProcessed(ctx, "kc-order-events-analytics", "event-1", time.Hour)
	require.NoError(t, err)
	require.True(t, other)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}

	require.Equal(t, "kc:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "kc:rate_limit:scope", client.RateLimitKey("scope"))
	require.Equal(t, "kc:counter:hits", client.CounterKey("hits"))
	require.Equal(t, "kc:dedup:sub:event", client.DedupKey("sub", "event"))
	require.Equal(t, "kc:dedup:sub", client.DedupKey("sub", ""), "empty parts are skipped")
}

// memStore is an in-process stand-in for the handful of commands Client uses.
type memStore struct {
	values   map[string]string
	counters map[string]int64
	expires  []string
}

func newMemStore() *memStore {
	return &memStore{
		values:   make(map[string]string),
		counters: make(map[string]int64),
	}
}

func (m *memStore) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.values[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memStore) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, taken := m.values[key]; taken {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memStore) Incr(_ context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *memStore) Expire(_ context.Context, key string, _ time.Duration) *redis.BoolCmd {
	m.expires = append(m.expires, key)
	return redis.NewBoolResult(true, nil)
}

func (m *memStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.values, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
