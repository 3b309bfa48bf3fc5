package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records resilience events for a payment call site.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordExecution records one wrapped operation with duration and error
	// status.
	RecordExecution(ctx context.Context, dependency string, duration time.Duration, err error)

	// RecordBreakerTransition records a circuit state change.
	RecordBreakerTransition(ctx context.Context, dependency, from, to string)

	// RecordRejection records a declined admission (circuit open, bulkhead
	// full, rate limited).
	RecordRejection(ctx context.Context, dependency, reason string)

	// RecordRetry records one retry attempt and the delay before it.
	RecordRetry(ctx context.Context, dependency string, attempt int, delay time.Duration)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	execTotal      metric.Int64Counter
	execErrors     metric.Int64Counter
	execDuration   metric.Float64Histogram
	transitions    metric.Int64Counter
	rejections     metric.Int64Counter
	retries        metric.Int64Counter
	retryDelayHist metric.Float64Histogram
}

// NewMetrics creates a Metrics instance on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	execTotal, err := meter.Int64Counter(
		"payment.call.total",
		metric.WithDescription("Total number of wrapped payment calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	execErrors, err := meter.Int64Counter(
		"payment.call.errors",
		metric.WithDescription("Total number of failed payment calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	execDuration, err := meter.Float64Histogram(
		"payment.call.duration_ms",
		metric.WithDescription("Wrapped payment call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"resilience.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter(
		"resilience.admission.rejected",
		metric.WithDescription("Declined admissions by reason"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"resilience.retry.attempts",
		metric.WithDescription("Retry attempts after the initial try"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	retryDelayHist, err := meter.Float64Histogram(
		"resilience.retry.delay_ms",
		metric.WithDescription("Backoff delay before each retry in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		execTotal:      execTotal,
		execErrors:     execErrors,
		execDuration:   execDuration,
		transitions:    transitions,
		rejections:     rejections,
		retries:        retries,
		retryDelayHist: retryDelayHist,
	}, nil
}

func (m *metricsImpl) RecordExecution(ctx context.Context, dependency string, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("dependency", dependency))

	m.execTotal.Add(ctx, 1, opt)
	if err != nil {
		m.execErrors.Add(ctx, 1, opt)
	}
	m.execDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, dependency, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dependency", dependency),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *metricsImpl) RecordRejection(ctx context.Context, dependency, reason string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dependency", dependency),
		attribute.String("reason", reason),
	))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, dependency string, attempt int, delay time.Duration) {
	opt := metric.WithAttributes(attribute.String("dependency", dependency))
	m.retries.Add(ctx, 1, opt)
	m.retryDelayHist.Record(ctx, float64(delay.Milliseconds()), opt)
}

// nopMetrics does nothing.
type nopMetrics struct{}

func (nopMetrics) RecordExecution(context.Context, string, time.Duration, error)  {}
func (nopMetrics) RecordBreakerTransition(context.Context, string, string, string) {}
func (nopMetrics) RecordRejection(context.Context, string, string)                {}
func (nopMetrics) RecordRetry(context.Context, string, int, time.Duration)        {}

// NewNopMetrics returns a Metrics that records nothing.
func NewNopMetrics() Metrics { return nopMetrics{} }
