package resilience

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed CircuitState = iota
	// StateOpen means the circuit is failing fast.
	StateOpen
	// StateHalfOpen means the circuit is probing for recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitConfig configures a circuit breaker.
type CircuitConfig struct {
	// FailureThreshold is the number of consecutive closed-state failures
	// before the circuit opens.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the circuit again.
	// Default: 1
	SuccessThreshold int

	// ResetTimeout is how long the circuit stays open before probes are
	// admitted.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// Name identifies the protected dependency in logs and metrics.
	Name string

	// Clock is the time source. Default: SystemClock.
	Clock Clock

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(name string, from, to CircuitState)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool
}

func (c CircuitConfig) withDefaults() CircuitConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	return c
}

// Validate reports the first invalid field, if any.
func (c CircuitConfig) Validate() error {
	if c.FailureThreshold < 0 {
		return configErr("circuit", "FailureThreshold", "must be >= 1")
	}
	if c.SuccessThreshold < 0 {
		return configErr("circuit", "SuccessThreshold", "must be >= 1")
	}
	if c.ResetTimeout < 0 {
		return configErr("circuit", "ResetTimeout", "must be > 0")
	}
	return nil
}

// Circuit is an immutable circuit breaker snapshot. Transitions return a new
// snapshot; the caller owns the single mutable cell holding the latest one.
type Circuit struct {
	State CircuitState

	// Counters since the last state transition.
	Failures  int
	Successes int

	// Lifetime counters.
	TotalRequests  int64
	TotalFailures  int64
	TotalSuccesses int64

	LastFailureTime time.Time
	LastStateChange time.Time
}

// NewCircuit creates a closed circuit snapshot.
func NewCircuit(now time.Time) Circuit {
	return Circuit{State: StateClosed, LastStateChange: now}
}

// Allows reports whether a request may proceed. An open circuit admits a
// probe once ResetTimeout has elapsed since the last failure; this is a
// logical probe window, not an automatic transition. Half-open admits
// unlimited concurrent probes.
func (s Circuit) Allows(cfg CircuitConfig, now time.Time) bool {
	switch s.State {
	case StateOpen:
		return now.Sub(s.LastFailureTime) >= cfg.ResetTimeout
	default:
		return true
	}
}

// RecordSuccess returns the snapshot after a successful call. A closed
// circuit resets its failure streak; a half-open circuit closes once the
// success streak reaches SuccessThreshold.
func (s Circuit) RecordSuccess(cfg CircuitConfig, now time.Time) Circuit {
	s.TotalRequests++
	s.TotalSuccesses++

	switch s.State {
	case StateHalfOpen:
		s.Successes++
		if s.Successes >= cfg.SuccessThreshold {
			s = s.transition(StateClosed, now)
		}
	default:
		s.Failures = 0
		s.Successes++
	}
	return s
}

// RecordFailure returns the snapshot after a failed call. A closed circuit
// opens once the failure streak reaches FailureThreshold; any half-open
// failure reopens immediately.
func (s Circuit) RecordFailure(cfg CircuitConfig, now time.Time) Circuit {
	s.TotalRequests++
	s.TotalFailures++
	s.LastFailureTime = now

	switch s.State {
	case StateClosed:
		s.Failures++
		if s.Failures >= cfg.FailureThreshold {
			s = s.transition(StateOpen, now)
		}
	case StateHalfOpen:
		s = s.transition(StateOpen, now)
	}
	return s
}

// ToHalfOpen moves an open circuit into the probing state. It is a no-op for
// any other state.
func (s Circuit) ToHalfOpen(now time.Time) Circuit {
	if s.State != StateOpen {
		return s
	}
	return s.transition(StateHalfOpen, now)
}

// transition moves to a new state. Streak counters reset on every transition.
func (s Circuit) transition(to CircuitState, now time.Time) Circuit {
	s.State = to
	s.Failures = 0
	s.Successes = 0
	s.LastStateChange = now
	return s
}

// CircuitStats summarizes a circuit snapshot.
type CircuitStats struct {
	// FailureRate is the lifetime failure percentage (0 if no requests).
	FailureRate float64
	// Uptime is the time since the last state change.
	Uptime time.Duration
	// RequestCount is the lifetime request total.
	RequestCount int64
}

// Stats computes summary statistics for the snapshot.
func (s Circuit) Stats(now time.Time) CircuitStats {
	var rate float64
	if s.TotalRequests > 0 {
		rate = float64(s.TotalFailures) / float64(s.TotalRequests) * 100
	}
	return CircuitStats{
		FailureRate:  rate,
		Uptime:       now.Sub(s.LastStateChange),
		RequestCount: s.TotalRequests,
	}
}

// CircuitBreaker is the runtime wrapper owning one mutable Circuit cell for a
// single protected dependency. All transitions are serialized under its mutex.
type CircuitBreaker struct {
	config CircuitConfig

	mu    sync.Mutex
	state Circuit
}

// NewCircuitBreaker creates a circuit breaker, applying defaults and failing
// fast on invalid configuration.
func NewCircuitBreaker(config CircuitConfig) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	return &CircuitBreaker{
		config: config,
		state:  NewCircuit(config.Clock.Now()),
	}, nil
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Clock.Now()
	if !cb.state.Allows(cb.config, now) {
		return ErrCircuitOpen
	}
	// An admitted probe moves the open circuit into half-open.
	if cb.state.State == StateOpen {
		cb.applyLocked(cb.state.ToHalfOpen(now))
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Clock.Now()
	if cb.config.IsFailure(err) {
		cb.applyLocked(cb.state.RecordFailure(cb.config, now))
	} else {
		cb.applyLocked(cb.state.RecordSuccess(cb.config, now))
	}
}

func (cb *CircuitBreaker) applyLocked(next Circuit) {
	from := cb.state.State
	cb.state = next
	if from != next.State && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, next.State)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.State
}

// Snapshot returns a copy of the current circuit snapshot.
func (cb *CircuitBreaker) Snapshot() Circuit {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns summary statistics for the breaker.
func (cb *CircuitBreaker) Stats() CircuitStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.Stats(cb.config.Clock.Now())
}

// Reset forces the breaker back to a fresh closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.applyLocked(NewCircuit(cb.config.Clock.Now()))
}

// BreakerGroup keeps one circuit breaker per named dependency, evicting the
// least recently used breaker once the cap is reached.
type BreakerGroup struct {
	config CircuitConfig
	max    int

	mu       sync.Mutex
	breakers map[string]*list.Element
	order    *list.List
}

type groupEntry struct {
	name    string
	breaker *CircuitBreaker
}

// NewBreakerGroup creates a group sharing one config across dependencies.
// maxEntries <= 0 means unbounded.
func NewBreakerGroup(config CircuitConfig, maxEntries int) (*BreakerGroup, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &BreakerGroup{
		config:   config.withDefaults(),
		max:      maxEntries,
		breakers: make(map[string]*list.Element),
		order:    list.New(),
	}, nil
}

// Get returns the breaker for the named dependency, creating it on first use.
func (g *BreakerGroup) Get(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if el, ok := g.breakers[name]; ok {
		g.order.MoveToFront(el)
		return el.Value.(*groupEntry).breaker
	}

	cfg := g.config
	cfg.Name = name
	cb := &CircuitBreaker{
		config: cfg,
		state:  NewCircuit(cfg.Clock.Now()),
	}

	g.breakers[name] = g.order.PushFront(&groupEntry{name: name, breaker: cb})
	if g.max > 0 && g.order.Len() > g.max {
		oldest := g.order.Back()
		g.order.Remove(oldest)
		delete(g.breakers, oldest.Value.(*groupEntry).name)
	}
	return cb
}

// Execute runs the operation through the named dependency's breaker.
func (g *BreakerGroup) Execute(ctx context.Context, name string, op func(context.Context) error) error {
	return g.Get(name).Execute(ctx, op)
}

// Names returns the currently tracked dependency names, most recently used
// first.
func (g *BreakerGroup) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, g.order.Len())
	for el := g.order.Front(); el != nil; el = el.Next() {
		names = append(names, el.Value.(*groupEntry).name)
	}
	return names
}

// Len returns the number of tracked breakers.
func (g *BreakerGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order.Len()
}
