package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qazuor/qzpay-resilience/resilience"
)

// Manager drives the idempotency protocol against a Store and plugs into the
// resilience executor as its Admitter.
type Manager struct {
	store     Store
	operation string
	ttl       time.Duration
	clock     resilience.Clock
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithOperation labels records created by this manager.
func WithOperation(op string) ManagerOption {
	return func(m *Manager) { m.operation = op }
}

// WithTTL sets how long records live. Default: 24 hours.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithClock sets the manager's time source.
func WithClock(c resilience.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a manager over the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		ttl:   24 * time.Hour,
		clock: resilience.SystemClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Admit classifies the request against the key's record. A new or
// previously-failed key is claimed as pending; a completed key replays its
// response; a pending key returns ErrInFlight; a payload mismatch returns
// ErrConflict.
func (m *Manager) Admit(ctx context.Context, key string, payload any) (resilience.AdmitDecision, error) {
	hash, err := RequestHash(payload)
	if err != nil {
		return resilience.AdmitDecision{}, err
	}

	now := m.clock.Now()

	var existing *Key
	record, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return resilience.AdmitDecision{}, err
	default:
		existing = &record
	}

	decision := Decide(existing, hash, now)

	switch {
	case decision.Conflict:
		return resilience.AdmitDecision{}, fmt.Errorf("%w: %s", ErrConflict, key)

	case decision.IsNew:
		fresh := NewKey(key, m.operation, hash, m.ttl, now)
		ok, err := m.store.PutIfAbsent(ctx, fresh)
		if err != nil {
			return resilience.AdmitDecision{}, err
		}
		if !ok {
			// Lost the race to a concurrent first attempt.
			return resilience.AdmitDecision{}, fmt.Errorf("%w: %s", ErrInFlight, key)
		}
		return resilience.AdmitDecision{Proceed: true}, nil

	case decision.ShouldProcess:
		// Failed record: reclaim the key as pending for this retry.
		reclaimed := *decision.Existing
		reclaimed.Status = StatusPending
		reclaimed.RequestHash = hash
		if err := m.store.Update(ctx, reclaimed); err != nil {
			return resilience.AdmitDecision{}, err
		}
		return resilience.AdmitDecision{Proceed: true}, nil

	case decision.Existing.Status == StatusCompleted:
		return resilience.AdmitDecision{
			Replay:     decision.Existing.Response,
			StatusCode: decision.Existing.StatusCode,
		}, nil

	default:
		return resilience.AdmitDecision{}, fmt.Errorf("%w: %s", ErrInFlight, key)
	}
}

// Complete stores the successful response for replay.
func (m *Manager) Complete(ctx context.Context, key string, response []byte, statusCode int) error {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return m.store.Update(ctx, record.Complete(response, statusCode, m.clock.Now()))
}

// Fail marks the record failed so a later retry may run.
func (m *Manager) Fail(ctx context.Context, key string) error {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return m.store.Update(ctx, record.Fail(m.clock.Now()))
}

var _ resilience.Admitter = (*Manager)(nil)
