package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, for deduplication shared across
// processes. SET NX provides the atomic insert-if-absent; record TTLs map to
// key expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithPrefix namespaces the store's keys. Default: "idem:".
func WithPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a store over the given client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "idem:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the record for key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (Key, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Key{}, ErrNotFound
	}
	if err != nil {
		return Key{}, fmt.Errorf("idempotency: redis get: %w", err)
	}

	var record Key
	if err := json.Unmarshal(data, &record); err != nil {
		return Key{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, nil
}

// PutIfAbsent inserts the record with SET NX so exactly one concurrent first
// attempt wins, even across processes.
func (s *RedisStore) PutIfAbsent(ctx context.Context, record Key) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("idempotency: encode record: %w", err)
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return false, fmt.Errorf("idempotency: record for %q already expired", record.Key)
	}

	ok, err := s.client.SetNX(ctx, s.prefix+record.Key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: redis setnx: %w", err)
	}
	return ok, nil
}

// Update overwrites the record, preserving the key's remaining TTL.
func (s *RedisStore) Update(ctx context.Context, record Key) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+record.Key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("idempotency: redis set: %w", err)
	}
	return nil
}

// Delete removes the record for key. Idempotent.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: redis del: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
