package idempotency

import (
	"context"
	"errors"
)

// Errors surfaced by the idempotency layer. A conflict is distinct from a
// replay and must never be collapsed into one.
var (
	// ErrConflict means the key exists with a different request hash.
	ErrConflict = errors.New("idempotency: conflicting request payload for key")

	// ErrInFlight means another attempt currently holds the key.
	ErrInFlight = errors.New("idempotency: request already in flight")

	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("idempotency: key not found")
)

// Store persists idempotency records. Implementations must make PutIfAbsent
// atomic on Key so two concurrent first attempts cannot both win.
type Store interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (Key, error)

	// PutIfAbsent inserts the record unless a live one already exists.
	// Returns false without error when the key was already held.
	PutIfAbsent(ctx context.Context, record Key) (bool, error)

	// Update overwrites the record for record.Key.
	Update(ctx context.Context, record Key) error

	// Delete removes the record for key. Idempotent.
	Delete(ctx context.Context, key string) error
}
