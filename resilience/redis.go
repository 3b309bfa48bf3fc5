package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore is a CounterStore backed by Redis. INCR resolves the
// check-then-act race across processes; counters expire with their window.
type RedisCounterStore struct {
	client redis.UniversalClient
}

// NewRedisCounterStore creates a counter store over the given client.
func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr atomically increments the counter for key and pins its expiry to the
// window end. Both commands run in one pipeline round trip.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, windowEnd time.Time) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpireAt(ctx, key, windowEnd)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("resilience: redis counter incr: %w", err)
	}
	return incr.Val(), nil
}

var _ CounterStore = (*RedisCounterStore)(nil)
