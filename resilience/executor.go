package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/qazuor/qzpay-resilience/observe"
)

// Admitter decides whether a keyed operation should run, replay a cached
// response, or be rejected. It is implemented by the idempotency package;
// defining it here keeps the executor free of storage concerns.
type Admitter interface {
	// Admit inspects the key's record against the payload.
	Admit(ctx context.Context, key string, payload any) (AdmitDecision, error)

	// Complete stores the successful response for replay.
	Complete(ctx context.Context, key string, response []byte, statusCode int) error

	// Fail marks the record failed so a later retry may run.
	Fail(ctx context.Context, key string) error
}

// AdmitDecision is the outcome of an idempotency admission check.
type AdmitDecision struct {
	// Proceed reports that the operation should execute.
	Proceed bool
	// Replay holds the cached response when the key already completed.
	Replay []byte
	// StatusCode accompanies Replay.
	StatusCode int
}

// Executor composes the resilience primitives around a wrapped operation in
// admission order: circuit breaker, bulkhead, rate limit, idempotency,
// execute, report, retry.
type Executor struct {
	dependency string

	breaker  *CircuitBreaker
	bulkhead *Bulkhead
	limiter  *Limiter
	limitKey string
	retry    *Retry
	timeout  *Timeout
	admitter Admitter

	logger  observe.Logger
	metrics observe.Metrics
	clock   Clock

	// flight serializes in-process attempts per idempotency key.
	flight singleflight.Group
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor for one named dependency. Every primitive
// is optional; an empty executor just runs the operation.
func NewExecutor(dependency string, opts ...ExecutorOption) *Executor {
	e := &Executor{
		dependency: dependency,
		logger:     observe.NewNopLogger(),
		metrics:    observe.NewNopMetrics(),
		clock:      SystemClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry != nil {
		e.retry = e.instrumentedRetry(e.retry)
	}
	if e.breaker != nil {
		e.instrumentBreaker(e.breaker)
	}
	return e
}

// instrumentBreaker chains transition instrumentation onto the breaker's
// OnStateChange hook. Runs at construction, before the breaker sees traffic.
func (e *Executor) instrumentBreaker(cb *CircuitBreaker) {
	prev := cb.config.OnStateChange
	cb.config.OnStateChange = func(name string, from, to CircuitState) {
		e.metrics.RecordBreakerTransition(context.Background(), e.dependency, from.String(), to.String())
		e.logger.Info(context.Background(), "circuit state changed",
			observe.String("dependency", e.dependency),
			observe.String("from", from.String()),
			observe.String("to", to.String()))
		if prev != nil {
			prev(name, from, to)
		}
	}
}

// instrumentedRetry chains retry instrumentation onto the policy's OnRetry
// hook without disturbing the caller's own callback.
func (e *Executor) instrumentedRetry(r *Retry) *Retry {
	cfg := r.Config()
	prev := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.metrics.RecordRetry(context.Background(), e.dependency, attempt, delay)
		e.logger.Debug(context.Background(), "retrying",
			observe.String("dependency", e.dependency),
			observe.Int("attempt", attempt),
			observe.Duration("delay_ms", delay),
			observe.Err(err))
		if prev != nil {
			prev(attempt, err, delay)
		}
	}
	return &Retry{config: cfg}
}

// WithCircuitBreaker gates execution on the dependency's circuit.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

// WithBulkhead bounds concurrent work against the dependency.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithRateLimit counts executions against the limiter under the given key.
func WithRateLimit(l *Limiter, key string) ExecutorOption {
	return func(e *Executor) {
		e.limiter = l
		e.limitKey = key
	}
}

// WithRetry re-runs failed operations per the policy.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithTimeout bounds each attempt.
func WithTimeout(t *Timeout) ExecutorOption {
	return func(e *Executor) { e.timeout = t }
}

// WithAdmitter deduplicates keyed operations.
func WithAdmitter(a Admitter) ExecutorOption {
	return func(e *Executor) { e.admitter = a }
}

// WithLogger attaches a structured logger for state changes and rejections.
func WithLogger(l observe.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics attaches instrumentation.
func WithMetrics(m observe.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithClock sets the executor's time source.
func WithClock(c Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// Execute runs the operation through every configured primitive.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	start := e.clock.Now()
	err := e.executeOnce(ctx, op)
	e.metrics.RecordExecution(ctx, e.dependency, e.clock.Now().Sub(start), err)
	return err
}

// executeOnce builds the admission chain inside out: timeout closest to the
// operation, then rate limit, bulkhead, circuit breaker, with the retry loop
// outermost so each attempt re-enters admission.
func (e *Executor) executeOnce(ctx context.Context, op func(context.Context) error) error {
	return e.chain(op, nil)(ctx)
}

// chain assembles the closures. admit, when non-nil, wraps the timed
// operation so idempotency sits between rate-limit admission and execution:
// a request the gates decline is never admitted, and an admitted replay still
// consumes gate budget.
func (e *Executor) chain(op func(context.Context) error, admit func(next func(context.Context) error) func(context.Context) error) func(context.Context) error {
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}

	if admit != nil {
		execute = admit(execute)
	}

	if e.limiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			err := e.limiter.Execute(ctx, e.limitKey, inner)
			if errors.Is(err, ErrRateLimitExceeded) {
				e.rejected(ctx, "rate_limited")
			}
			return err
		}
	}

	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			err := e.bulkhead.Execute(ctx, inner)
			if errors.Is(err, ErrBulkheadFull) {
				e.rejected(ctx, "bulkhead_full")
			}
			return err
		}
	}

	if e.breaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			err := e.breaker.Execute(ctx, inner)
			if errors.Is(err, ErrCircuitOpen) {
				e.rejected(ctx, "circuit_open")
			}
			return err
		}
	}

	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.retry.Execute(ctx, inner)
		}
	}

	return execute
}

// Response is a wrapped operation's payload-bearing result.
type Response struct {
	Body       []byte
	StatusCode int
}

// ExecuteIdempotent runs a keyed, payload-bearing operation at most once per
// idempotency key. A completed key replays its stored response; a pending key
// or a payload mismatch is rejected by the admitter. The admit step runs
// inside the chain, after circuit-breaker, bulkhead, and rate-limit
// admission, so a gated-out request never claims or replays a key.
// In-process attempts on the same key are serialized so retries never
// execute concurrently.
func (e *Executor) ExecuteIdempotent(ctx context.Context, key string, payload any, op func(context.Context) (Response, error)) (Response, error) {
	if e.admitter == nil {
		return e.executeResponse(ctx, op)
	}

	v, err, _ := e.flight.Do(key, func() (any, error) {
		var resp Response

		inner := func(ctx context.Context) error {
			r, opErr := op(ctx)
			if opErr != nil {
				return opErr
			}
			resp = r
			return nil
		}

		admit := func(next func(context.Context) error) func(context.Context) error {
			return func(ctx context.Context) error {
				decision, err := e.admitter.Admit(ctx, key, payload)
				if err != nil {
					return err
				}
				if !decision.Proceed {
					e.logger.Debug(ctx, "idempotent replay",
						observe.String("dependency", e.dependency),
						observe.String("key", key))
					resp = Response{Body: decision.Replay, StatusCode: decision.StatusCode}
					return nil
				}

				if err := next(ctx); err != nil {
					if failErr := e.admitter.Fail(ctx, key); failErr != nil {
						e.logger.Error(ctx, "idempotency fail-mark failed",
							observe.String("key", key), observe.Err(failErr))
					}
					return err
				}

				if completeErr := e.admitter.Complete(ctx, key, resp.Body, resp.StatusCode); completeErr != nil {
					e.logger.Error(ctx, "idempotency completion failed",
						observe.String("key", key), observe.Err(completeErr))
				}
				return nil
			}
		}

		start := e.clock.Now()
		execErr := e.chain(inner, admit)(ctx)
		e.metrics.RecordExecution(ctx, e.dependency, e.clock.Now().Sub(start), execErr)
		if execErr != nil {
			return Response{}, execErr
		}
		return resp, nil
	})

	resp, _ := v.(Response)
	return resp, err
}

func (e *Executor) executeResponse(ctx context.Context, op func(context.Context) (Response, error)) (Response, error) {
	var resp Response
	err := e.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		resp, opErr = op(ctx)
		return opErr
	})
	return resp, err
}

func (e *Executor) rejected(ctx context.Context, reason string) {
	e.metrics.RecordRejection(ctx, e.dependency, reason)
	e.logger.Warn(ctx, "admission rejected",
		observe.String("dependency", e.dependency),
		observe.String("reason", reason))
}
