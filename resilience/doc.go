// Package resilience provides the fault-tolerance primitives the platform
// wraps around unreliable payment dependencies: circuit breaker, retry with
// backoff, bulkhead, fixed-window rate limiter, timeout, and fallback.
//
// # Design
//
// Each primitive is split in two layers. The inner layer is a pure,
// synchronous state-transition function over an immutable snapshot (Circuit,
// RetryState, BulkheadState, RateLimitEntry): no I/O, no clocks of its own,
// no locking. The outer layer is a runtime wrapper (CircuitBreaker, Retry,
// Bulkhead, Limiter) that owns a single mutable cell holding the latest
// snapshot and serializes transitions under a mutex. Callers that need
// cross-process coordination skip the wrappers and drive the pure functions
// against their own store, using an atomic increment or insert-if-absent to
// resolve check-then-act races.
//
// The fixed-window rate limiter admits bursts of up to twice the nominal
// rate across a window boundary; that is the accepted cost of O(1) memory per
// key. Half-open circuits admit unlimited concurrent probes rather than
// capping at one in flight.
//
// # Usage
//
// Primitives compose through an Executor wrapping one dependency:
//
//	cb, _ := resilience.NewCircuitBreaker(resilience.CircuitConfig{
//	    FailureThreshold: 5,
//	    ResetTimeout:     30 * time.Second,
//	})
//	retry, _ := resilience.NewRetry(resilience.RetryConfig{
//	    MaxRetries:   3,
//	    InitialDelay: 500 * time.Millisecond,
//	    JitterFactor: 0.2,
//	})
//
//	exec := resilience.NewExecutor("card-network",
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRetry(retry),
//	    resilience.WithTimeout(resilience.NewTimeout(resilience.TimeoutConfig{Timeout: 15 * time.Second})),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return chargeCard(ctx, req)
//	})
//
// Named presets bundle settings for common call sites:
//
//	preset, _ := resilience.LookupPreset("payment-call")
//	exec, _ := preset.Executor("card-network")
package resilience
