package idempotency_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/qazuor/qzpay-resilience/idempotency"
)

func ExampleManager() {
	store := idempotency.NewMemoryStore()
	manager := idempotency.NewManager(store, idempotency.WithOperation("create-charge"))

	ctx := context.Background()
	payload := map[string]any{"amount": 500, "currency": "usd"}

	// First attempt claims the key.
	decision, err := manager.Admit(ctx, "idem-1", payload)
	if err != nil {
		panic(err)
	}
	fmt.Println("First attempt proceeds:", decision.Proceed)

	// The operation runs and its response is stored.
	if err := manager.Complete(ctx, "idem-1", []byte(`{"id":"ch_1"}`), 201); err != nil {
		panic(err)
	}

	// A duplicate request replays the stored response.
	decision, err = manager.Admit(ctx, "idem-1", payload)
	if err != nil {
		panic(err)
	}
	fmt.Println("Duplicate proceeds:", decision.Proceed)
	fmt.Printf("Replay: %s (%d)\n", decision.Replay, decision.StatusCode)
	// Output:
	// First attempt proceeds: true
	// Duplicate proceeds: false
	// Replay: {"id":"ch_1"} (201)
}

func ExampleManager_conflict() {
	store := idempotency.NewMemoryStore()
	manager := idempotency.NewManager(store)

	ctx := context.Background()

	_, err := manager.Admit(ctx, "idem-1", map[string]any{"amount": 500})
	if err != nil {
		panic(err)
	}
	if err := manager.Complete(ctx, "idem-1", []byte("ok"), 200); err != nil {
		panic(err)
	}

	// Reusing the key with a different payload is an error, never a replay.
	_, err = manager.Admit(ctx, "idem-1", map[string]any{"amount": 999})
	fmt.Println("Conflict:", errors.Is(err, idempotency.ErrConflict))
	// Output:
	// Conflict: true
}

func ExampleRequestHash() {
	a, _ := idempotency.RequestHash(map[string]any{"amount": 500, "currency": "usd"})
	b, _ := idempotency.RequestHash(map[string]any{"currency": "usd", "amount": 500})

	fmt.Println("Field order independent:", a == b)
	// Output:
	// Field order independent: true
}
