package resilience

import (
	"context"
	"sync"
	"time"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of concurrent operations.
	// Default: 10
	MaxConcurrent int

	// MaxQueueSize is the maximum number of callers waiting for a slot.
	// Default: 0 (no queue, reject immediately when full)
	MaxQueueSize int

	// MaxWait bounds how long a queued caller waits for a slot.
	// Default: 0 (wait until the context is done)
	MaxWait time.Duration

	// Name identifies the protected pool in logs and metrics.
	Name string
}

func (c BulkheadConfig) withDefaults() BulkheadConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	return c
}

// Validate reports the first invalid field, if any.
func (c BulkheadConfig) Validate() error {
	if c.MaxConcurrent < 0 {
		return configErr("bulkhead", "MaxConcurrent", "must be >= 1")
	}
	if c.MaxQueueSize < 0 {
		return configErr("bulkhead", "MaxQueueSize", "must be >= 0")
	}
	return nil
}

// BulkheadState is an immutable admission counter snapshot.
// Invariant: Executing <= MaxConcurrent and Queued <= MaxQueueSize.
type BulkheadState struct {
	Executing int
	Queued    int
	Completed int64
	Rejected  int64
}

// Admission is the outcome of a bulkhead admission check.
type Admission struct {
	// Accept reports whether the caller may proceed at all.
	Accept bool
	// Queue reports that the caller must wait for an execution slot.
	Queue bool
	// Reason explains a rejection.
	Reason string
}

// CanAccept decides admission for one caller: an execution slot if available,
// then a queue slot, otherwise rejection. The decision is advisory; the
// caller must serialize it with the matching transition (check-then-act).
func (s BulkheadState) CanAccept(cfg BulkheadConfig) Admission {
	cfg = cfg.withDefaults()
	if s.Executing < cfg.MaxConcurrent {
		return Admission{Accept: true}
	}
	if s.Queued < cfg.MaxQueueSize {
		return Admission{Accept: true, Queue: true}
	}
	return Admission{Reason: "bulkhead full: max concurrent and queue capacity reached"}
}

// StartExecution consumes an execution slot, releasing a queue slot when the
// caller was queued.
func (s BulkheadState) StartExecution(fromQueue bool) BulkheadState {
	s.Executing++
	if fromQueue && s.Queued > 0 {
		s.Queued--
	}
	return s
}

// CompleteExecution releases an execution slot.
func (s BulkheadState) CompleteExecution() BulkheadState {
	if s.Executing > 0 {
		s.Executing--
	}
	s.Completed++
	return s
}

// AddToQueue consumes a queue slot.
func (s BulkheadState) AddToQueue() BulkheadState {
	s.Queued++
	return s
}

// Reject counts a declined admission.
func (s BulkheadState) Reject() BulkheadState {
	s.Rejected++
	return s
}

// Bulkhead is the runtime admission controller owning one mutable
// BulkheadState cell. The check-then-act sequence runs under its mutex;
// queued callers block on the semaphore channel.
type Bulkhead struct {
	config BulkheadConfig
	sem    chan struct{}

	mu    sync.Mutex
	state BulkheadState
}

// NewBulkhead creates a bulkhead, applying defaults and failing fast on
// invalid configuration.
func NewBulkhead(config BulkheadConfig) (*Bulkhead, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	return &Bulkhead{
		config: config,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Acquire claims an execution slot, queueing when the pool is full and the
// queue has room. Returns ErrBulkheadFull when both are at capacity.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	// Fast path: free execution slot.
	select {
	case b.sem <- struct{}{}:
		b.transition(func(s BulkheadState) BulkheadState { return s.StartExecution(false) })
		return nil
	default:
	}

	b.mu.Lock()
	adm := b.state.CanAccept(b.config)
	if adm.Accept && !adm.Queue {
		// A slot freed between the fast path and the lock; take it without
		// touching the queue counters.
		select {
		case b.sem <- struct{}{}:
			b.state = b.state.StartExecution(false)
			b.mu.Unlock()
			return nil
		default:
			// A concurrent fast-path acquirer claimed the slot first.
			adm = Admission{Accept: b.state.Queued < b.config.MaxQueueSize, Queue: true}
		}
	}
	if !adm.Accept {
		b.state = b.state.Reject()
		b.mu.Unlock()
		return ErrBulkheadFull
	}
	b.state = b.state.AddToQueue()
	b.mu.Unlock()

	var timeout <-chan time.Time
	if b.config.MaxWait > 0 {
		timer := time.NewTimer(b.config.MaxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b.sem <- struct{}{}:
		b.transition(func(s BulkheadState) BulkheadState { return s.StartExecution(true) })
		return nil
	case <-timeout:
		b.transition(func(s BulkheadState) BulkheadState {
			if s.Queued > 0 {
				s.Queued--
			}
			return s.Reject()
		})
		return ErrBulkheadFull
	case <-ctx.Done():
		b.transition(func(s BulkheadState) BulkheadState {
			if s.Queued > 0 {
				s.Queued--
			}
			return s
		})
		return ctx.Err()
	}
}

// Release returns an execution slot to the pool.
func (b *Bulkhead) Release() {
	select {
	case <-b.sem:
		b.transition(func(s BulkheadState) BulkheadState { return s.CompleteExecution() })
	default:
		// Release without Acquire; nothing to do.
	}
}

// Execute runs the operation within the bulkhead.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()

	return op(ctx)
}

// Snapshot returns a copy of the current admission counters.
func (b *Bulkhead) Snapshot() BulkheadState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bulkhead) transition(fn func(BulkheadState) BulkheadState) {
	b.mu.Lock()
	b.state = fn(b.state)
	b.mu.Unlock()
}
