// Package health reports the condition of the call pipeline's
// components: circuit breaker states, rate limiter saturation, cache
// pressure.
//
// A Checker wraps one component; the Aggregator runs every registered
// checker against a shared deadline and reduces the results to a single
// status. HTTP handlers expose the standard /healthz, /readyz, and
// /health endpoints.
//
//	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 5 * time.Second})
//	agg.Register("breaker:images", health.NewChecker("breaker:images", func(ctx context.Context) health.Result {
//	    if breaker.State() == resilience.StateOpen {
//	        return health.Unhealthy("circuit open", nil)
//	    }
//	    return health.Healthy("circuit closed")
//	}))
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//
// Degraded is a first-class status: a component that still works but is
// close to a limit (a nearly drained token bucket, a half-open breaker)
// reports degraded, and readiness remains positive.
package health
