package client

import (
	"context"
	"fmt"

	"github.com/vocablens/callops/cache"
	"github.com/vocablens/callops/health"
	"github.com/vocablens/callops/resilience"
)

// Status is a point-in-time view of the client's pipeline state. Fields
// for stages the client was built without are nil.
type Status struct {
	Service string
	Limit   *resilience.LimitStatus
	Breaker *BreakerStatus
	Cache   *cache.Stats
}

// BreakerStatus reports a circuit breaker's state and counters.
type BreakerStatus struct {
	State  resilience.State
	Counts resilience.BreakerCounts
}

// Status returns the current pipeline state.
func (c *Client) Status() Status {
	st := Status{Service: c.service}
	if c.limiter != nil {
		ls := c.limiter.Status(c.service)
		st.Limit = &ls
	}
	if c.breaker != nil {
		st.Breaker = &BreakerStatus{
			State:  c.breaker.State(),
			Counts: c.breaker.Counts(),
		}
	}
	if c.cache != nil {
		cs := c.cache.Stats()
		st.Cache = &cs
	}
	return st
}

// Checkers derives health checkers from the client's pipeline stages,
// one per configured stage, named <service>.<stage>. An open breaker is
// unhealthy, a probing one degraded; a saturated rate limiter is
// degraded. The cache checker is informational and always healthy.
func (c *Client) Checkers() []health.Checker {
	var checkers []health.Checker

	if c.breaker != nil {
		cb := c.breaker
		checkers = append(checkers, health.NewChecker(c.service+".breaker", func(context.Context) health.Result {
			counts := cb.Counts()
			details := map[string]any{
				"state":    cb.State().String(),
				"failures": counts.Failures,
				"calls":    counts.TotalCalls,
				"rejected": counts.Rejected,
			}
			switch cb.State() {
			case resilience.StateOpen:
				return health.Unhealthy("circuit open", nil).WithDetails(details)
			case resilience.StateHalfOpen:
				return health.Degraded("circuit probing").WithDetails(details)
			default:
				return health.Healthy("circuit closed").WithDetails(details)
			}
		}))
	}

	if c.limiter != nil {
		lim, service := c.limiter, c.service
		checkers = append(checkers, health.NewChecker(c.service+".ratelimit", func(context.Context) health.Result {
			st := lim.Status(service)
			details := map[string]any{
				"tokens":       st.Tokens,
				"capacity":     st.Capacity,
				"window_used":  st.WindowUsed,
				"window_limit": st.WindowLimit,
			}
			if st.RetryAfter > 0 {
				msg := fmt.Sprintf("saturated, next grant in %s", st.RetryAfter)
				return health.Degraded(msg).WithDetails(details)
			}
			return health.Healthy("capacity available").WithDetails(details)
		}))
	}

	if c.cache != nil {
		store := c.cache
		checkers = append(checkers, health.NewChecker(c.service+".cache", func(context.Context) health.Result {
			stats := store.Stats()
			return health.Healthy("cache operational").WithDetails(map[string]any{
				"entries":      stats.Entries,
				"memory_bytes": stats.MemoryBytes,
				"hits":         stats.Hits,
				"misses":       stats.Misses,
				"evictions":    stats.Evictions,
			})
		}))
	}

	return checkers
}
