package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qazuor/qzpay-resilience/resilience"
)

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *resilience.ManualClock) {
	t.Helper()
	clock := resilience.NewManualClock(t0)
	store := NewMemoryStore(WithNow(clock.Now))
	m := NewManager(store,
		WithOperation("create-charge"),
		WithTTL(time.Hour),
		WithClock(clock))
	return m, store, clock
}

func TestManager_AdmitNewKey(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	decision, err := m.Admit(ctx, "idem-1", map[string]any{"amount": 500})
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if !decision.Proceed {
		t.Fatal("new key must proceed")
	}

	record, err := store.Get(ctx, "idem-1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != StatusPending {
		t.Errorf("Status = %q, want pending", record.Status)
	}
	if record.Operation != "create-charge" {
		t.Errorf("Operation = %q", record.Operation)
	}
	if !record.ExpiresAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want t0+1h", record.ExpiresAt)
	}
}

func TestManager_PendingKeyIsInFlight(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	payload := map[string]any{"amount": 500}

	if _, err := m.Admit(ctx, "idem-1", payload); err != nil {
		t.Fatal(err)
	}

	_, err := m.Admit(ctx, "idem-1", payload)
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("second Admit() = %v, want ErrInFlight", err)
	}
}

func TestManager_CompletedKeyReplays(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	payload := map[string]any{"amount": 500}

	if _, err := m.Admit(ctx, "idem-1", payload); err != nil {
		t.Fatal(err)
	}
	if err := m.Complete(ctx, "idem-1", []byte(`{"id":"ch_1"}`), 201); err != nil {
		t.Fatal(err)
	}

	decision, err := m.Admit(ctx, "idem-1", payload)
	if err != nil {
		t.Fatalf("Admit() after completion error = %v", err)
	}
	if decision.Proceed {
		t.Error("completed key must not re-process")
	}
	if string(decision.Replay) != `{"id":"ch_1"}` || decision.StatusCode != 201 {
		t.Errorf("replay = %q/%d", decision.Replay, decision.StatusCode)
	}
}

func TestManager_ConflictingPayloadRejected(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Admit(ctx, "idem-1", map[string]any{"amount": 500}); err != nil {
		t.Fatal(err)
	}
	if err := m.Complete(ctx, "idem-1", []byte("ok"), 200); err != nil {
		t.Fatal(err)
	}

	_, err := m.Admit(ctx, "idem-1", map[string]any{"amount": 999})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Admit() with different payload = %v, want ErrConflict", err)
	}
}

func TestManager_FailedKeyMayRetry(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	payload := map[string]any{"amount": 500}

	if _, err := m.Admit(ctx, "idem-1", payload); err != nil {
		t.Fatal(err)
	}
	if err := m.Fail(ctx, "idem-1"); err != nil {
		t.Fatal(err)
	}

	decision, err := m.Admit(ctx, "idem-1", payload)
	if err != nil {
		t.Fatalf("Admit() after failure error = %v", err)
	}
	if !decision.Proceed {
		t.Fatal("failed key must allow a retry")
	}

	// The retry reclaims the key as pending.
	record, err := store.Get(ctx, "idem-1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != StatusPending {
		t.Errorf("Status = %q, want pending", record.Status)
	}
}

func TestManager_ExpiredKeyIsNew(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()
	payload := map[string]any{"amount": 500}

	if _, err := m.Admit(ctx, "idem-1", payload); err != nil {
		t.Fatal(err)
	}
	if err := m.Complete(ctx, "idem-1", []byte("ok"), 200); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Hour)

	decision, err := m.Admit(ctx, "idem-1", map[string]any{"amount": 999})
	if err != nil {
		t.Fatalf("Admit() after expiry error = %v", err)
	}
	if !decision.Proceed {
		t.Error("expired key must admit a fresh attempt, even with a new payload")
	}
}

func TestManager_CompleteMissingKey(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.Complete(context.Background(), "never-admitted", []byte("ok"), 200)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Complete() = %v, want ErrNotFound", err)
	}
}

func TestManager_WithExecutor(t *testing.T) {
	m, _, _ := newTestManager(t)
	e := resilience.NewExecutor("charges", resilience.WithAdmitter(m))
	ctx := context.Background()
	payload := map[string]any{"amount": 500, "currency": "usd"}

	calls := 0
	op := func(ctx context.Context) (resilience.Response, error) {
		calls++
		return resilience.Response{Body: []byte(`{"id":"ch_1"}`), StatusCode: 201}, nil
	}

	first, err := e.ExecuteIdempotent(ctx, "idem-1", payload, op)
	if err != nil {
		t.Fatalf("first ExecuteIdempotent() error = %v", err)
	}
	second, err := e.ExecuteIdempotent(ctx, "idem-1", payload, op)
	if err != nil {
		t.Fatalf("second ExecuteIdempotent() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("operation ran %d times, want 1", calls)
	}
	if string(first.Body) != string(second.Body) || first.StatusCode != second.StatusCode {
		t.Errorf("replay differs: %+v vs %+v", first, second)
	}
}
