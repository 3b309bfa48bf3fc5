package health

import (
	"context"
	"time"
)

// Composite status values.
const (
	StatusUp       = "up"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Result is the outcome of one subsystem health check.
type Result struct {
	// Name identifies the subsystem.
	Name string

	// Healthy is the binary verdict.
	Healthy bool

	// Status is free-form; defaults to "up"/"down" from the verdict.
	Status string

	// ResponseTime is how long the check took.
	ResponseTime time.Duration

	// Message provides additional context.
	Message string
}

// Up creates a healthy result for the subsystem.
func Up(name, message string) Result {
	return Result{Name: name, Healthy: true, Status: StatusUp, Message: message}
}

// Down creates an unhealthy result for the subsystem.
func Down(name, message string) Result {
	return Result{Name: name, Healthy: false, Status: StatusDown, Message: message}
}

// WithResponseTime sets the measured duration on a result.
func (r Result) WithResponseTime(d time.Duration) Result {
	r.ResponseTime = d
	return r
}

// Checker is the interface for subsystem health checks.
type Checker interface {
	// Name returns the subsystem name.
	Name() string

	// Check performs the health check and returns the result.
	Check(ctx context.Context) Result
}

// CheckerFunc adapts an ordinary function to a Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name returns the subsystem name.
func (f *CheckerFunc) Name() string { return f.name }

// Check performs the health check.
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// PingChecker wraps a reachability probe as a Checker.
type PingChecker struct {
	name string
	ping func(context.Context) error
}

// NewPingChecker creates a checker from a ping function.
func NewPingChecker(name string, ping func(context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Name returns the subsystem name.
func (p *PingChecker) Name() string { return p.name }

// Check pings the subsystem and reports the verdict.
func (p *PingChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := p.ping(ctx); err != nil {
		return Down(p.name, err.Error()).WithResponseTime(time.Since(start))
	}
	return Up(p.name, "").WithResponseTime(time.Since(start))
}
