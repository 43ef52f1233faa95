// Package resilience provides the guard rails for calling external
// services: rate limiting, circuit breaking, retries, concurrency
// bounds, and per-attempt deadlines.
//
// # Patterns
//
//   - Limiter: per-service rate limiting with a token bucket and a
//     sliding-window grant log, plus optional minimum spacing between
//     calls. Local state can be reconciled from rate-limit response
//     headers.
//
//   - CircuitBreaker: sheds calls to a failing service and probes it
//     carefully before trusting it again. BreakerGroup keys breakers by
//     service name.
//
//   - Retry: re-runs transient failures with exponential backoff and
//     jitter. ExponentialBackoff is the stateful sequence for
//     hand-rolled loops.
//
//   - Gate: bounds concurrent operations so one slow dependency cannot
//     absorb every goroutine.
//
//   - Deadline: bounds each attempt with a timeout applied through the
//     operation's context.
//
// # Composition
//
// Executor wires the patterns together in a fixed order, from rate limit
// acquisition on the outside to the per-attempt deadline on the inside:
//
//	limiter := resilience.NewLimiter()
//	limiter.Configure("search", resilience.LimitConfig{
//	    Window:      time.Minute,
//	    MaxRequests: 50,
//	    MinDelay:    100 * time.Millisecond,
//	})
//
//	exec := resilience.NewExecutor(
//	    resilience.WithLimiter(limiter, "search"),
//	    resilience.WithBreaker(resilience.NewCircuitBreaker("search", resilience.BreakerConfig{})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{})),
//	    resilience.WithDeadline(resilience.NewDeadline(10*time.Second)),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return callSearchService(ctx)
//	})
//
// Rejections carry typed errors: errors.Is(err, resilience.ErrRateLimited)
// and errors.Is(err, resilience.ErrCircuitOpen) distinguish shed load
// from real failures, and both error types report how long to back off.
package resilience
