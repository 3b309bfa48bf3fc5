package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig configures the retry policy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// BackoffMultiplier grows the delay each attempt.
	// Default: 2.0
	BackoffMultiplier float64

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// JitterFactor in [0,1] scales the delay by a uniform factor in
	// [1-JitterFactor, 1+JitterFactor]. Zero keeps delays exact.
	// Default: 0
	JitterFactor float64

	// RetryableErrors is a case-sensitive substring allowlist. Empty means
	// every error is retryable.
	RetryableErrors []string

	// Clock is the time source. Default: SystemClock.
	Clock Clock

	// Rand returns a uniform sample in [0,1). Injectable for tests.
	// Default: math/rand/v2 Float64.
	Rand func() float64

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	return c
}

// Validate reports the first invalid field, if any.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return configErr("retry", "MaxRetries", "must be >= 0")
	}
	if c.InitialDelay < 0 {
		return configErr("retry", "InitialDelay", "must be > 0")
	}
	if c.BackoffMultiplier != 0 && c.BackoffMultiplier < 1 {
		return configErr("retry", "BackoffMultiplier", "must be >= 1")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return configErr("retry", "JitterFactor", "must be in [0,1]")
	}
	return nil
}

// RetryState is an immutable retry progress snapshot. Attempt 0 is the
// initial try; MaxAttempts is MaxRetries+1.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	Exhausted   bool
	LastError   string
}

// NewRetryState creates the pre-attempt snapshot for the config.
func NewRetryState(cfg RetryConfig) RetryState {
	cfg = cfg.withDefaults()
	return RetryState{MaxAttempts: cfg.MaxRetries + 1}
}

// Advance consumes one attempt and records the error. Exhausted becomes true
// exactly when the new attempt count reaches MaxAttempts.
func (s RetryState) Advance(cfg RetryConfig, errMessage string) RetryState {
	s.Attempt++
	s.Exhausted = s.Attempt >= s.MaxAttempts
	s.LastError = errMessage
	return s
}

// NextDelay computes the backoff delay for the given zero-based attempt
// index: min(MaxDelay, InitialDelay*BackoffMultiplier^attempt), scaled by
// jitter. With JitterFactor=0 the result is exact and deterministic.
func NextDelay(attempt int, cfg RetryConfig) time.Duration {
	cfg = cfg.withDefaults()
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
	if capped := float64(cfg.MaxDelay); delay > capped {
		delay = capped
	}

	if cfg.JitterFactor > 0 {
		// Uniform factor in [1-j, 1+j]. Non-cryptographic variance to avoid
		// synchronized retry storms.
		factor := 1 + cfg.JitterFactor*(2*cfg.Rand()-1)
		delay *= factor
	}

	return time.Duration(delay)
}

// IsRetryable classifies an error against the substring allowlist. Every
// error is retryable when the allowlist is empty; matching is plain
// case-sensitive substring containment, not a pattern language.
func IsRetryable(err error, cfg RetryConfig) bool {
	if err == nil {
		return false
	}
	if len(cfg.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, sub := range cfg.RetryableErrors {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether another attempt is permitted, evaluated before
// consuming the next attempt.
func (s RetryState) ShouldRetry(err error, cfg RetryConfig) bool {
	return !s.Exhausted && IsRetryable(err, cfg)
}

// RetryAt returns the earliest time the next attempt may run, using the delay
// for the most recently consumed attempt.
func (s RetryState) RetryAt(cfg RetryConfig, now time.Time) time.Time {
	return now.Add(NextDelay(s.Attempt-1, cfg))
}

// Retry is the runtime retry executor.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry executor, applying defaults and failing fast on
// invalid configuration.
func NewRetry(config RetryConfig) (*Retry, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Retry{config: config.withDefaults()}, nil
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Execute runs the operation, retrying per the policy. Context cancellation
// is terminal and non-retryable; the full jittered delay is honored before
// each retry.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	state := NewRetryState(r.config)

	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !state.ShouldRetry(err, r.config) {
			return err
		}
		state = state.Advance(r.config, err.Error())
		if state.Exhausted {
			return errors.Join(ErrRetriesExhausted, err)
		}

		delay := NextDelay(state.Attempt-1, r.config)
		if r.config.OnRetry != nil {
			r.config.OnRetry(state.Attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
