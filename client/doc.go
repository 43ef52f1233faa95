// Package client ties the call pipeline together for one upstream
// service: deterministic cache keys in front of a resilience executor
// (rate limit, concurrency gate, circuit breaker, retry, per-attempt
// deadline), with tracing, metrics, and logging around every call.
//
// Service-specific API clients hold one Client per upstream service and
// route every outbound call through Call or Do.
package client
