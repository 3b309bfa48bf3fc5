package resilience

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig configures the fixed-window rate limiter.
type RateLimitConfig struct {
	// MaxRequests is the number of requests allowed per window.
	// Default: 100
	MaxRequests int

	// Window is the fixed window length. Windows are aligned to multiples of
	// Window from the Unix epoch.
	// Default: 1 minute
	Window time.Duration

	// KeyPrefix namespaces stored counter keys.
	// Default: "ratelimit"
	KeyPrefix string

	// Clock is the time source. Default: SystemClock.
	Clock Clock
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 100
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "ratelimit"
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	return c
}

// Validate reports the first invalid field, if any.
func (c RateLimitConfig) Validate() error {
	if c.MaxRequests < 0 {
		return configErr("ratelimit", "MaxRequests", "must be >= 1")
	}
	if c.Window < 0 {
		return configErr("ratelimit", "Window", "must be > 0")
	}
	return nil
}

// RateLimitEntry is an immutable per-key window counter snapshot.
type RateLimitEntry struct {
	Key         string
	Count       int
	WindowStart time.Time
	WindowEnd   time.Time
}

// RateLimitResult is the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// WindowFor computes the fixed window covering now, aligned to multiples of
// the window length from the Unix epoch.
func WindowFor(cfg RateLimitConfig, now time.Time) (start, end time.Time) {
	cfg = cfg.withDefaults()
	w := cfg.Window.Milliseconds()
	ms := now.UnixMilli()
	startMs := ms - ms%w
	return time.UnixMilli(startMs), time.UnixMilli(startMs + w)
}

// Check decides admission against an existing entry without modifying it.
// A nil entry or an expired window always admits. Callers must persist the
// decision with UpdateEntry only when allowed; concurrent callers on the same
// key need an atomic increment at the storage layer.
func Check(entry *RateLimitEntry, cfg RateLimitConfig, now time.Time) RateLimitResult {
	cfg = cfg.withDefaults()
	_, end := WindowFor(cfg, now)

	if entry == nil || !entry.WindowEnd.After(now) {
		return RateLimitResult{
			Allowed:   true,
			Remaining: cfg.MaxRequests - 1,
			ResetAt:   end,
		}
	}

	if entry.Count < cfg.MaxRequests {
		return RateLimitResult{
			Allowed:   true,
			Remaining: cfg.MaxRequests - entry.Count - 1,
			ResetAt:   entry.WindowEnd,
		}
	}

	return RateLimitResult{
		ResetAt:    entry.WindowEnd,
		RetryAfter: entry.WindowEnd.Sub(now),
	}
}

// UpdateEntry returns the entry after counting one admitted request:
// incremented in place while the existing window still covers now, otherwise
// restarted with count 1 in the freshly computed window.
func UpdateEntry(key string, existing *RateLimitEntry, cfg RateLimitConfig, now time.Time) RateLimitEntry {
	if existing != nil && existing.WindowEnd.After(now) && !existing.WindowStart.After(now) {
		next := *existing
		next.Count++
		return next
	}

	start, end := WindowFor(cfg, now)
	return RateLimitEntry{Key: key, Count: 1, WindowStart: start, WindowEnd: end}
}

// Headers renders the standard rate limit response headers. Retry-After is
// present only when the request was denied.
func (r RateLimitResult) Headers() map[string]string {
	h := map[string]string{
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
	if !r.Allowed {
		secs := int64(r.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		h["Retry-After"] = strconv.FormatInt(secs, 10)
	}
	return h
}

// CounterStore atomically increments a windowed counter. The count after the
// increment resolves the check-then-act race between concurrent callers on
// one key.
type CounterStore interface {
	// Incr increments the counter for key, arranging for it to expire at
	// windowEnd, and returns the count after the increment.
	Incr(ctx context.Context, key string, windowEnd time.Time) (int64, error)
}

// Limiter is the keyed runtime rate limiter.
type Limiter struct {
	config RateLimitConfig
	store  CounterStore
}

// NewLimiter creates a keyed limiter over the given counter store, applying
// defaults and failing fast on invalid configuration.
func NewLimiter(config RateLimitConfig, store CounterStore) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryCounterStore()
	}
	return &Limiter{config: config.withDefaults(), store: store}, nil
}

// Allow counts one request against the key's current window and reports the
// decision. The increment happens even when the request is denied; denied
// requests still consume nothing from later windows since the counter expires
// with its window.
func (l *Limiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	now := l.config.Clock.Now()
	start, end := WindowFor(l.config, now)

	storeKey := l.config.KeyPrefix + ":" + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
	count, err := l.store.Incr(ctx, storeKey, end)
	if err != nil {
		return RateLimitResult{}, err
	}

	if count > int64(l.config.MaxRequests) {
		return RateLimitResult{
			ResetAt:    end,
			RetryAfter: end.Sub(now),
		}, nil
	}

	return RateLimitResult{
		Allowed:   true,
		Remaining: l.config.MaxRequests - int(count),
		ResetAt:   end,
	}, nil
}

// Execute runs the operation if the key's window still has capacity.
func (l *Limiter) Execute(ctx context.Context, key string, op func(context.Context) error) error {
	res, err := l.Allow(ctx, key)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

// MemoryCounterStore is an in-process CounterStore. Counters expire lazily
// when read past their window end.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*memoryCounter)}
}

// Incr increments the counter for key. Store keys embed the window start, so
// a new window always lands on a fresh counter; expiry only reclaims memory.
func (s *MemoryCounterStore) Incr(_ context.Context, key string, windowEnd time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &memoryCounter{expiresAt: windowEnd}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

// PurgeExpired drops counters whose windows ended before now.
func (s *MemoryCounterStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, c := range s.counters {
		if !c.expiresAt.After(now) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}
