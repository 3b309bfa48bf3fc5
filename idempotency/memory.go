package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. Records expire lazily on read; callers
// reclaim memory by running PurgeExpired on their own schedule.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Key
	now     func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithNow overrides the store's time source. For tests.
func WithNow(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]Key),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live record for key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) (Key, error) {
	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()

	if !ok {
		return Key{}, ErrNotFound
	}
	if record.Expired(s.now()) {
		s.mu.Lock()
		delete(s.records, key)
		s.mu.Unlock()
		return Key{}, ErrNotFound
	}
	return record, nil
}

// PutIfAbsent inserts the record unless a live one exists. The check and the
// insert run under one lock, so exactly one concurrent first attempt wins.
func (s *MemoryStore) PutIfAbsent(_ context.Context, record Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[record.Key]; ok && !existing.Expired(s.now()) {
		return false, nil
	}
	s.records[record.Key] = record
	return true, nil
}

// Update overwrites the record for record.Key.
func (s *MemoryStore) Update(_ context.Context, record Key) error {
	s.mu.Lock()
	s.records[record.Key] = record
	s.mu.Unlock()
	return nil
}

// Delete removes the record for key. Idempotent.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// PurgeExpired sweeps records whose TTL passed before now and reports how
// many were removed.
func (s *MemoryStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.records {
		if record.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of records currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
