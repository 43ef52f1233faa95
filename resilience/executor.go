package resilience

import "context"

// Executor composes resilience stages around an operation. Stages are
// optional and run in a fixed order:
//
//	rate limit acquire -> gate -> breaker -> retry -> deadline -> op
//
// The limiter and gate sit outside the breaker so rejected or queued
// calls never count against it, and the breaker sits outside the retry
// loop so one executor call records one outcome no matter how many
// attempts it took. The deadline is innermost: it bounds each attempt,
// not the whole call.
type Executor struct {
	limiter  *Limiter
	service  string
	cost     int
	gate     *Gate
	breaker  *CircuitBreaker
	retry    *Retry
	deadline *Deadline
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLimiter routes calls through l under the given service key.
func WithLimiter(l *Limiter, service string) ExecutorOption {
	return func(e *Executor) {
		e.limiter = l
		e.service = service
	}
}

// WithAcquireCost sets the token cost per call. Defaults to 1.
func WithAcquireCost(n int) ExecutorOption {
	return func(e *Executor) { e.cost = n }
}

// WithGate bounds concurrent calls with g.
func WithGate(g *Gate) ExecutorOption {
	return func(e *Executor) { e.gate = g }
}

// WithBreaker routes calls through cb.
func WithBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

// WithRetry re-runs failed attempts with r.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithDeadline bounds each attempt with d.
func WithDeadline(d *Deadline) ExecutorOption {
	return func(e *Executor) { e.deadline = d }
}

// NewExecutor creates an executor from the given stages. An executor
// with no stages runs operations directly. Executors are safe for
// concurrent use and meant to be built once per upstream service.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{cost: 1}
	for _, opt := range opts {
		opt(e)
	}
	if e.cost < 1 {
		e.cost = 1
	}
	return e
}

// Execute runs op through the configured stages. Stage rejections
// (*RateLimitError, ErrGateFull, *CircuitOpenError, ErrDeadline) and the
// operation's own errors are returned unchanged.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	wrapped := op

	if e.deadline != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return e.deadline.Execute(ctx, inner)
		}
	}
	if e.retry != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return e.retry.Execute(ctx, inner)
		}
	}
	if e.breaker != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return e.breaker.Execute(ctx, inner)
		}
	}
	if e.gate != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return e.gate.Execute(ctx, inner)
		}
	}

	if e.limiter != nil {
		if err := e.limiter.AcquireN(ctx, e.service, e.cost); err != nil {
			return err
		}
	}
	return wrapped(ctx)
}

// Run executes fn through exec and returns its value alongside the
// pipeline's error.
func Run[T any](ctx context.Context, exec *Executor, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := exec.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
