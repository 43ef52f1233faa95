package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vocablens/callops/cache"
	"github.com/vocablens/callops/config"
	"github.com/vocablens/callops/observe"
	"github.com/vocablens/callops/resilience"
)

// Config configures a Client for one upstream service.
type Config struct {
	// Service names the upstream service. Required; it keys the rate
	// limiter, names the breaker, and prefixes spans and cache keys.
	Service string

	// Key is the service API key, inspected by KeyInfo. The client never
	// sends it anywhere itself.
	Key string

	// RateLimit, Breaker, and Retry enable the corresponding pipeline
	// stage when non-nil.
	RateLimit *resilience.LimitConfig
	Breaker   *resilience.BreakerConfig
	Retry     *resilience.RetryConfig

	// MaxConcurrent bounds in-flight calls. Zero means unbounded.
	MaxConcurrent int64

	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration

	// Cache, when set, serves repeated calls without going upstream. It
	// may be shared between clients; keys embed the service name.
	Cache *cache.Cache

	// Keyer derives cache keys. Defaults to cache.DefaultKeyer.
	Keyer cache.Keyer

	// Middleware instruments calls. Nil means no instrumentation.
	Middleware *observe.Middleware
}

// FromSection builds a Config from a loaded configuration section.
func FromSection(service string, sec config.ServiceSection) Config {
	cfg := Config{
		Service:       service,
		Key:           sec.Key,
		MaxConcurrent: sec.MaxConcurrent,
		Timeout:       time.Duration(sec.TimeoutMs) * time.Millisecond,
	}
	if sec.RateLimit != nil {
		lc := sec.RateLimit.LimitConfig()
		cfg.RateLimit = &lc
	}
	if sec.Breaker != nil {
		bc := sec.Breaker.BreakerConfig()
		cfg.Breaker = &bc
	}
	if sec.Retry != nil {
		rc := sec.Retry.RetryConfig()
		cfg.Retry = &rc
	}
	return cfg
}

// Client executes calls against one upstream service through the full
// pipeline: cache lookup, rate limit, concurrency gate, circuit breaker,
// retry, per-attempt deadline. Safe for concurrent use.
type Client struct {
	service string
	key     string

	exec    *resilience.Executor
	limiter *resilience.Limiter
	breaker *resilience.CircuitBreaker

	cache *cache.Cache
	keyer cache.Keyer
	mw    *observe.Middleware
}

// New builds a Client from cfg. Stages the config leaves nil are
// omitted from the pipeline entirely.
func New(cfg Config) (*Client, error) {
	if cfg.Service == "" {
		return nil, ErrNoService
	}

	mw := cfg.Middleware
	if mw == nil {
		mw = observe.NewMiddleware(nil, nil, nil)
	}

	c := &Client{
		service: cfg.Service,
		key:     cfg.Key,
		cache:   cfg.Cache,
		keyer:   cfg.Keyer,
		mw:      mw,
	}
	if c.keyer == nil {
		c.keyer = &cache.DefaultKeyer{}
	}

	var opts []resilience.ExecutorOption
	if cfg.RateLimit != nil {
		c.limiter = resilience.NewLimiter()
		if err := c.limiter.Configure(cfg.Service, *cfg.RateLimit); err != nil {
			return nil, err
		}
		opts = append(opts, resilience.WithLimiter(c.limiter, cfg.Service))
	}
	if cfg.MaxConcurrent > 0 {
		opts = append(opts, resilience.WithGate(resilience.NewGate(resilience.GateConfig{
			MaxConcurrent: cfg.MaxConcurrent,
		})))
	}
	if cfg.Breaker != nil {
		c.breaker = resilience.NewCircuitBreaker(cfg.Service, *cfg.Breaker)
		opts = append(opts, resilience.WithBreaker(c.breaker))
	}
	if cfg.Retry != nil {
		rc := *cfg.Retry
		userOnRetry := rc.OnRetry
		metrics, service := mw.Metrics(), cfg.Service
		rc.OnRetry = func(attempt int, delay time.Duration, err error) {
			metrics.RecordRetry(context.Background(), service)
			if userOnRetry != nil {
				userOnRetry(attempt, delay, err)
			}
		}
		opts = append(opts, resilience.WithRetry(resilience.NewRetry(rc)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, resilience.WithDeadline(resilience.NewDeadline(cfg.Timeout)))
	}
	c.exec = resilience.NewExecutor(opts...)

	return c, nil
}

// Service returns the upstream service name.
func (c *Client) Service() string { return c.service }

// Call runs one cacheable operation. The cache key is derived from the
// operation and params; on a hit the value is returned without touching
// the pipeline, and concurrent misses for the same key share a single
// upstream call. With no cache configured, Call behaves like Do.
func (c *Client) Call(ctx context.Context, operation string, params any, fn func(context.Context) (any, error), opts ...CallOption) (any, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	meta := observe.CallMeta{Service: c.service, Operation: operation}
	if c.cache == nil || o.noCache {
		return c.execute(ctx, meta, fn)
	}

	key, err := c.keyer.Key(c.service, operation, params)
	if err != nil {
		// Unkeyable params disable caching for this call, not the call
		// itself.
		c.mw.Logger().WithCall(meta).Warn(ctx, "cache key derivation failed",
			observe.Field{Key: "error", Value: err.Error()})
		return c.execute(ctx, meta, fn)
	}

	computed := false
	v, err := c.cache.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
		computed = true
		return c.execute(ctx, meta, fn)
	}, o.entryOpts...)

	metrics := c.mw.Metrics()
	if computed {
		metrics.RecordCacheMiss(ctx, c.service)
	} else if err == nil {
		metrics.RecordCacheHit(ctx, c.service)
	}
	return v, err
}

// Do runs one operation through the pipeline without the cache.
func (c *Client) Do(ctx context.Context, operation string, fn func(context.Context) (any, error)) (any, error) {
	return c.execute(ctx, observe.CallMeta{Service: c.service, Operation: operation}, fn)
}

func (c *Client) execute(ctx context.Context, meta observe.CallMeta, fn func(context.Context) (any, error)) (any, error) {
	v, err := c.mw.Do(ctx, meta, func(ctx context.Context) (any, error) {
		return resilience.Run(ctx, c.exec, fn)
	})
	if err != nil {
		metrics := c.mw.Metrics()
		switch {
		case errors.Is(err, resilience.ErrRateLimited):
			metrics.RecordRateLimitRejected(ctx, c.service)
		case errors.Is(err, resilience.ErrCircuitOpen):
			metrics.RecordBreakerRejected(ctx, c.service)
		}
	}
	return v, err
}

// InvalidateTag removes every cached entry carrying tag and returns
// how many were removed. Without a cache it returns 0.
func (c *Client) InvalidateTag(tag string) int {
	if c.cache == nil {
		return 0
	}
	return c.cache.InvalidateTag(tag)
}

// ApplyResponseHeaders adjusts the rate limiter from standard
// X-RateLimit-* and Retry-After response headers, so the limiter tracks
// what the remote end actually granted. Reports whether anything was
// applied.
func (c *Client) ApplyResponseHeaders(h http.Header) bool {
	if c.limiter == nil {
		return false
	}
	return c.limiter.UpdateFromHeaders(c.service, h)
}
