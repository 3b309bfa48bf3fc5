package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations. Admission rejections are returned
// as values, never panics, so callers can translate them into their own
// transport-level responses (429/503 equivalents).
var (
	// ErrCircuitOpen is returned when the circuit breaker declines admission.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBulkheadFull is returned when both the execution pool and the wait
	// queue are at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrRateLimitExceeded is returned when the fixed-window counter is full.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrRetriesExhausted is returned when the retry policy permits no
	// further attempts.
	ErrRetriesExhausted = errors.New("resilience: retry attempts exhausted")

	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// ConfigError reports an invalid configuration value. It is returned by
// constructors and Validate methods; a ConfigError is never recoverable at
// runtime.
type ConfigError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("resilience: invalid %s config: %s %s", e.Component, e.Field, e.Reason)
}

func configErr(component, field, reason string) error {
	return &ConfigError{Component: component, Field: field, Reason: reason}
}
