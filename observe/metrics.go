package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records outcomes for outbound service calls, including the
// resilience decisions made along the way.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; recording never blocks the call path.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one completed call with its duration and error
	// status.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)

	// RecordCacheHit records a call served from the cache.
	RecordCacheHit(ctx context.Context, service string)

	// RecordCacheMiss records a call that had to go upstream.
	RecordCacheMiss(ctx context.Context, service string)

	// RecordRateLimitRejected records a call shed by the rate limiter.
	RecordRateLimitRejected(ctx context.Context, service string)

	// RecordBreakerRejected records a call shed by an open circuit.
	RecordBreakerRejected(ctx context.Context, service string)

	// RecordRetry records one retry of a failed attempt.
	RecordRetry(ctx context.Context, service string)
}

type metricsImpl struct {
	meter             metric.Meter
	totalCount        metric.Int64Counter
	errorCount        metric.Int64Counter
	durationHist      metric.Float64Histogram
	cacheHits         metric.Int64Counter
	cacheMisses       metric.Int64Counter
	rateLimitRejected metric.Int64Counter
	breakerRejected   metric.Int64Counter
	retryAttempts     metric.Int64Counter
}

// newMetrics creates a Metrics instance with the given meter.
func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		"call.exec.total",
		metric.WithDescription("Total number of outbound call executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"call.exec.errors",
		metric.WithDescription("Total number of failed outbound calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"call.exec.duration_ms",
		metric.WithDescription("Outbound call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"call.cache.hits",
		metric.WithDescription("Calls served from the result cache"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"call.cache.misses",
		metric.WithDescription("Calls that missed the result cache"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitRejected, err := meter.Int64Counter(
		"call.ratelimit.rejected",
		metric.WithDescription("Calls shed by the rate limiter"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	breakerRejected, err := meter.Int64Counter(
		"call.breaker.rejected",
		metric.WithDescription("Calls shed by an open circuit breaker"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	retryAttempts, err := meter.Int64Counter(
		"call.retry.attempts",
		metric.WithDescription("Retries of failed call attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:             meter,
		totalCount:        totalCount,
		errorCount:        errorCount,
		durationHist:      durationHist,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		rateLimitRejected: rateLimitRejected,
		breakerRejected:   breakerRejected,
		retryAttempts:     retryAttempts,
	}, nil
}

// NewMetrics creates a Metrics backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("call.service", meta.Service),
	}
	if meta.Operation != "" {
		attrs = append(attrs, attribute.String("call.operation", meta.Operation))
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCacheHit(ctx context.Context, service string) {
	m.cacheHits.Add(ctx, 1, serviceAttr(service))
}

func (m *metricsImpl) RecordCacheMiss(ctx context.Context, service string) {
	m.cacheMisses.Add(ctx, 1, serviceAttr(service))
}

func (m *metricsImpl) RecordRateLimitRejected(ctx context.Context, service string) {
	m.rateLimitRejected.Add(ctx, 1, serviceAttr(service))
}

func (m *metricsImpl) RecordBreakerRejected(ctx context.Context, service string) {
	m.breakerRejected.Add(ctx, 1, serviceAttr(service))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, service string) {
	m.retryAttempts.Add(ctx, 1, serviceAttr(service))
}

func serviceAttr(service string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("call.service", service))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (noopMetrics) RecordCall(context.Context, CallMeta, time.Duration, error) {}
func (noopMetrics) RecordCacheHit(context.Context, string)                     {}
func (noopMetrics) RecordCacheMiss(context.Context, string)                    {}
func (noopMetrics) RecordRateLimitRejected(context.Context, string)            {}
func (noopMetrics) RecordBreakerRejected(context.Context, string)              {}
func (noopMetrics) RecordRetry(context.Context, string)                        {}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics { return noopMetrics{} }
