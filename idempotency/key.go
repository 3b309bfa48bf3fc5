package idempotency

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an idempotency record.
type Status string

const (
	// StatusPending means an attempt holding the key is in flight.
	StatusPending Status = "pending"
	// StatusCompleted means the operation finished and its response is
	// stored for replay.
	StatusCompleted Status = "completed"
	// StatusFailed means the last attempt failed; a retry may take the key.
	StatusFailed Status = "failed"
)

// Key is an immutable idempotency record snapshot. Two records sharing Key
// must share RequestHash; a mismatch is a conflict and is never merged.
type Key struct {
	ID          string
	Key         string
	Operation   string
	RequestHash string
	Status      Status
	Response    []byte
	StatusCode  int
	ExpiresAt   time.Time
	CreatedAt   time.Time
	CompletedAt time.Time
}

// NewKey creates a pending record for a first attempt.
func NewKey(key, operation, requestHash string, ttl time.Duration, now time.Time) Key {
	return Key{
		ID:          uuid.NewString(),
		Key:         key,
		Operation:   operation,
		RequestHash: requestHash,
		Status:      StatusPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
}

// Expired reports whether the record's TTL has passed at now.
func (k Key) Expired(now time.Time) bool {
	return !k.ExpiresAt.After(now)
}

// Complete returns the record with the stored response for replay.
func (k Key) Complete(response []byte, statusCode int, now time.Time) Key {
	k.Status = StatusCompleted
	k.Response = response
	k.StatusCode = statusCode
	k.CompletedAt = now
	return k
}

// Fail returns the record marked failed so a later retry may run.
func (k Key) Fail(now time.Time) Key {
	k.Status = StatusFailed
	k.CompletedAt = now
	return k
}

// Decision is the outcome of checking a request against an existing record.
type Decision struct {
	// IsNew reports that no live record exists for the key.
	IsNew bool
	// ShouldProcess reports that the caller should execute the operation.
	ShouldProcess bool
	// Conflict reports a request hash mismatch against the existing record.
	Conflict bool
	// Existing is the live record, when there is one.
	Existing *Key
}

// Decide classifies a request against the existing record for its key:
//
//   - no record, or record expired: new, process.
//   - different request hash: conflict, never merged with the cached result.
//   - same hash, completed: replay Existing's response, do not process.
//   - same hash, pending: another attempt is in flight, do not process.
//   - same hash, failed: retry permitted, process.
func Decide(existing *Key, requestHash string, now time.Time) Decision {
	if existing == nil || existing.Expired(now) {
		return Decision{IsNew: true, ShouldProcess: true}
	}

	if existing.RequestHash != requestHash {
		return Decision{Conflict: true, Existing: existing}
	}

	switch existing.Status {
	case StatusFailed:
		return Decision{ShouldProcess: true, Existing: existing}
	default:
		// Completed replays; pending waits.
		return Decision{Existing: existing}
	}
}
