package resilience

import (
	"context"
	"time"
)

// Deadline returns the absolute deadline for an operation started at start.
func Deadline(start time.Time, timeout time.Duration) time.Time {
	return start.Add(timeout)
}

// DeadlinePassed reports whether the deadline has been reached at now.
func DeadlinePassed(start time.Time, timeout time.Duration, now time.Time) bool {
	return now.Sub(start) >= timeout
}

// RemainingTime returns the time budget left at now, never negative.
func RemainingTime(start time.Time, timeout time.Duration, now time.Time) time.Duration {
	remaining := timeout - now.Sub(start)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the operation.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout wraps operations with a deadline.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{config: config}
}

// Execute runs the operation with a timeout. A deadline hit is reported as
// ErrTimeout; the abandoned operation keeps running until it observes its
// context.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// ExecuteWithTimeout runs a single operation under a one-off timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	return NewTimeout(TimeoutConfig{Timeout: timeout}).Execute(ctx, op)
}
