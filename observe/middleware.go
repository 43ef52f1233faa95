package observe

import (
	"context"
	"time"
)

// CallFunc is the unit of work the middleware instruments: one outbound
// service call producing a value.
type CallFunc func(ctx context.Context) (any, error)

// Middleware wraps outbound calls with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Do is safe for concurrent use.
//   - Context: the span context is propagated into the wrapped call.
//   - Errors: errors from the wrapped call are recorded and propagated
//     unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware from the given components. Nil
// components are replaced with no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(newTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Metrics returns the middleware's metrics sink, so the owning layer can
// record cache and resilience outcomes against the same instruments.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Do runs fn inside a span, records its duration and outcome, and logs
// the result. The returned value and error are fn's own.
func (m *Middleware) Do(ctx context.Context, meta CallMeta, fn CallFunc) (any, error) {
	if meta.Service == "" {
		return nil, ErrMissingService
	}

	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	result, err := fn(ctx)

	duration := time.Since(start)
	m.tracer.EndSpan(span, err)
	m.metrics.RecordCall(ctx, meta, duration, err)

	callLogger := m.logger.WithCall(meta)
	fields := []Field{
		{Key: "duration_ms", Value: float64(duration.Milliseconds())},
	}
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		callLogger.Error(ctx, "call failed", fields...)
	} else {
		callLogger.Debug(ctx, "call completed", fields...)
	}

	return result, err
}
