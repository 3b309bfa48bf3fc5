package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Aggregate is the composite status folded from subsystem results.
type Aggregate struct {
	// Healthy is true only when every subsystem is healthy.
	Healthy bool

	// Status is "up" when all subsystems are healthy, "down" when none are,
	// otherwise "degraded".
	Status string

	// ResponseTime is the arithmetic mean of the subsystem response times.
	ResponseTime time.Duration

	// Message summarizes the verdict.
	Message string
}

// Fold computes the composite status from subsystem results. An empty input
// aggregates to up: nothing registered means nothing failing.
func Fold(results []Result) Aggregate {
	if len(results) == 0 {
		return Aggregate{Healthy: true, Status: StatusUp, Message: "no subsystems registered"}
	}

	healthy := 0
	var total time.Duration
	for _, r := range results {
		if r.Healthy {
			healthy++
		}
		total += r.ResponseTime
	}

	agg := Aggregate{
		ResponseTime: total / time.Duration(len(results)),
	}

	switch healthy {
	case len(results):
		agg.Healthy = true
		agg.Status = StatusUp
		agg.Message = "all subsystems up"
	case 0:
		agg.Status = StatusDown
		agg.Message = "all subsystems down"
	default:
		agg.Status = StatusDegraded
		agg.Message = fmt.Sprintf("%d of %d subsystems down", len(results)-healthy, len(results))
	}
	return agg
}

// RegistryConfig configures the checker registry.
type RegistryConfig struct {
	// Timeout is the maximum time to wait for all checks.
	// Default: 10 seconds
	Timeout time.Duration
}

// Registry runs registered subsystem checkers and folds their results.
type Registry struct {
	config RegistryConfig

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry(config ...RegistryConfig) *Registry {
	cfg := RegistryConfig{Timeout: 10 * time.Second}
	if len(config) > 0 {
		cfg = config[0]
		if cfg.Timeout <= 0 {
			cfg.Timeout = 10 * time.Second
		}
	}

	return &Registry{
		config:   cfg,
		checkers: make(map[string]Checker),
	}
}

// Register adds a checker under its name, replacing any previous one.
func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.checkers[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.checkers[c.Name()] = c
}

// Unregister removes a checker by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.checkers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Names returns the registered subsystem names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// CheckAll runs every registered checker concurrently and returns the
// results in registration order. A check that outlives the registry timeout
// reports down.
func (r *Registry) CheckAll(ctx context.Context) []Result {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = r.checkers[name]
	}
	r.mu.RUnlock()

	if len(checkers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	g, ctx := errgroup.WithContext(ctx)

	for i, checker := range checkers {
		g.Go(func() error {
			results[i] = runCheck(ctx, checker)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Check runs one named checker.
func (r *Registry) Check(ctx context.Context, name string) (Result, error) {
	r.mu.RLock()
	checker, ok := r.checkers[name]
	r.mu.RUnlock()

	if !ok {
		return Result{}, ErrCheckerNotFound
	}
	return runCheck(ctx, checker), nil
}

// Aggregate runs all checks and folds them into the composite status.
func (r *Registry) Aggregate(ctx context.Context) Aggregate {
	return Fold(r.CheckAll(ctx))
}

func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		result := checker.Check(ctx)
		if result.Name == "" {
			result.Name = checker.Name()
		}
		if result.ResponseTime == 0 {
			result.ResponseTime = time.Since(start)
		}
		if result.Status == "" {
			if result.Healthy {
				result.Status = StatusUp
			} else {
				result.Status = StatusDown
			}
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return Down(checker.Name(), ErrCheckTimeout.Error()).WithResponseTime(time.Since(start))
	}
}
