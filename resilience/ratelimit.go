package resilience

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// LimitConfig configures the rate limit for one service.
type LimitConfig struct {
	// Window is the sliding-window duration. Must be > 0.
	Window time.Duration

	// MaxRequests is the number of grants allowed per Window. Must be >= 1.
	MaxRequests int

	// MinDelay is the minimum spacing between consecutive grants.
	// Zero disables the spacing gate.
	MinDelay time.Duration

	// Burst overrides the token bucket capacity. Zero means MaxRequests.
	Burst int

	// MaxWait bounds the total time Acquire will spend waiting for a
	// grant. Zero or negative means the wait is bounded only by the
	// caller's context.
	MaxWait time.Duration
}

func (c LimitConfig) validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("resilience: limit window must be positive, got %v", c.Window)
	}
	if c.MaxRequests < 1 {
		return fmt.Errorf("resilience: limit max requests must be >= 1, got %d", c.MaxRequests)
	}
	return nil
}

// Quota carries rate-limit state observed from a remote response, used to
// reconcile the local bucket with what the service actually reports.
type Quota struct {
	// Limit is the remote capacity. Zero or negative leaves the local
	// capacity unchanged.
	Limit int

	// Remaining is the remote token balance. Negative leaves the local
	// balance unchanged.
	Remaining int

	// Reset is when the remote window replenishes. When set, the local
	// refill rate is adjusted so the bucket refills by that time.
	Reset time.Time
}

// LimitStatus reports limiter state for one service.
type LimitStatus struct {
	Configured  bool
	Tokens      float64
	Capacity    float64
	WindowUsed  int
	WindowLimit int

	// RetryAfter estimates the wait before the next grant. Zero when a
	// call would be granted immediately.
	RetryAfter time.Duration
}

// Limiter enforces per-service rate limits. Each configured service is
// gated by a token bucket and, independently, by a sliding-window log of
// recent grants; both must pass. An optional minimum delay spaces out
// consecutive grants.
//
// Services are independent: each holds its own lock, so a saturated
// service never stalls acquires against another. Unconfigured services
// are unthrottled.
type Limiter struct {
	mu       sync.RWMutex
	services map[string]*serviceLimiter
}

// serviceLimiter holds the bucket and grant log for one service. All
// fields are guarded by mu; the lock is never held across a sleep.
type serviceLimiter struct {
	mu         sync.Mutex
	cfg        LimitConfig
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	grants     []time.Time
	lastGrant  time.Time
}

// NewLimiter creates an empty rate limiter. Services are added with
// Configure.
func NewLimiter() *Limiter {
	return &Limiter{services: make(map[string]*serviceLimiter)}
}

// Configure installs or replaces the limit for a service. New services
// start with a full bucket; reconfiguring an existing service adjusts
// capacity and refill rate but keeps the current balance (clamped) and
// the grant log, so a live window is not forgiven by a config reload.
func (l *Limiter) Configure(service string, cfg LimitConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	capacity := float64(cfg.MaxRequests)
	if cfg.Burst > 0 {
		capacity = float64(cfg.Burst)
	}
	rate := capacity / cfg.Window.Seconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	if sl, ok := l.services[service]; ok {
		sl.mu.Lock()
		sl.cfg = cfg
		sl.capacity = capacity
		sl.refillRate = rate
		if sl.tokens > capacity {
			sl.tokens = capacity
		}
		sl.mu.Unlock()
		return nil
	}

	l.services[service] = &serviceLimiter{
		cfg:        cfg,
		capacity:   capacity,
		tokens:     capacity,
		refillRate: rate,
		lastRefill: time.Now(),
	}
	return nil
}

// Acquire obtains a grant for one call against service, waiting out rate
// limit delays as needed. It returns nil once granted, ctx.Err() if the
// context ends first, or *RateLimitError when the configured MaxWait
// would be exceeded.
func (l *Limiter) Acquire(ctx context.Context, service string) error {
	return l.AcquireN(ctx, service, 1)
}

// AcquireN is Acquire with a call cost of n tokens.
func (l *Limiter) AcquireN(ctx context.Context, service string, n int) error {
	return l.acquire(ctx, service, n, true)
}

// TryAcquire obtains a grant without waiting for bucket or window
// capacity. It still honors the MinDelay spacing gate (a spacing wait is
// a grant, not a rejection). On rejection it returns *RateLimitError
// carrying the estimated wait.
func (l *Limiter) TryAcquire(ctx context.Context, service string) error {
	return l.acquire(ctx, service, 1, false)
}

// TryAcquireN is TryAcquire with a call cost of n tokens.
func (l *Limiter) TryAcquireN(ctx context.Context, service string, n int) error {
	return l.acquire(ctx, service, n, false)
}

func (l *Limiter) acquire(ctx context.Context, service string, n int, wait bool) error {
	if n < 1 {
		return fmt.Errorf("resilience: acquire cost must be >= 1, got %d", n)
	}
	sl := l.lookup(service)
	if sl == nil {
		// Unconfigured services are unthrottled.
		return nil
	}

	cost := float64(n)
	var deadline time.Time
	if max := sl.maxWait(); max > 0 {
		deadline = time.Now().Add(max)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pause, retryAfter, err := sl.reserve(cost)
		if err != nil {
			return err
		}
		if pause == 0 && retryAfter == 0 {
			// Granted; the reservation was recorded under the lock as
			// the final step, so an abandoned caller leaves no state.
			return nil
		}

		if retryAfter > 0 {
			if !wait {
				return &RateLimitError{Service: service, RetryAfter: retryAfter}
			}
			pause = retryAfter
		}

		if !deadline.IsZero() && time.Now().Add(pause).After(deadline) {
			return &RateLimitError{Service: service, RetryAfter: retryAfter}
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve evaluates all gates and commits the grant when they pass.
// Returns (0, 0, nil) on a committed grant, (pause, 0, nil) when only the
// MinDelay gate requires spacing, and (0, retryAfter, nil) when the
// bucket or window rejects; retryAfter is the binding gate's wait, i.e.
// the larger of the token shortfall and the window drain.
func (s *serviceLimiter) reserve(cost float64) (pause, retryAfter time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cost > s.capacity {
		return 0, 0, fmt.Errorf("resilience: acquire cost %.0f exceeds bucket capacity %.0f", cost, s.capacity)
	}

	now := time.Now()
	s.refill(now)
	s.prune(now)

	var need time.Duration
	if s.tokens < cost {
		need = durationForTokens(cost-s.tokens, s.refillRate)
	}
	if len(s.grants) >= s.cfg.MaxRequests {
		// Independent gate: even with tokens available the window can
		// reject; wait until the oldest grant slides out.
		drain := s.grants[0].Add(s.cfg.Window).Sub(now)
		if drain > need {
			need = drain
		}
	}
	if need > 0 {
		if need < time.Millisecond {
			need = time.Millisecond
		}
		return 0, need, nil
	}

	if s.cfg.MinDelay > 0 && !s.lastGrant.IsZero() {
		if since := now.Sub(s.lastGrant); since < s.cfg.MinDelay {
			return s.cfg.MinDelay - since, 0, nil
		}
	}

	s.tokens -= cost
	s.grants = append(s.grants, now)
	s.lastGrant = now
	return 0, 0, nil
}

// refill tops up the bucket from elapsed wall-clock time. Negative
// elapsed time (clock adjustment) is treated as zero so the balance
// never regresses.
func (s *serviceLimiter) refill(now time.Time) {
	elapsed := now.Sub(s.lastRefill)
	if elapsed > 0 {
		s.tokens += elapsed.Seconds() * s.refillRate
		if s.tokens > s.capacity {
			s.tokens = s.capacity
		}
	}
	s.lastRefill = now
}

// prune drops grant timestamps that have left the trailing window.
func (s *serviceLimiter) prune(now time.Time) {
	cutoff := now.Add(-s.cfg.Window)
	i := 0
	for i < len(s.grants) && !s.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.grants = append(s.grants[:0], s.grants[i:]...)
	}
}

func (s *serviceLimiter) maxWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MaxWait
}

func durationForTokens(tokens, rate float64) time.Duration {
	if rate <= 0 {
		return time.Duration(1<<62 - 1)
	}
	return time.Duration(tokens / rate * float64(time.Second))
}

// Reset restores a service to a full bucket and an empty grant log.
// Unknown services are ignored.
func (l *Limiter) Reset(service string) {
	sl := l.lookup(service)
	if sl == nil {
		return
	}
	sl.mu.Lock()
	sl.tokens = sl.capacity
	sl.lastRefill = time.Now()
	sl.grants = sl.grants[:0]
	sl.lastGrant = time.Time{}
	sl.mu.Unlock()
}

// UpdateQuota reconciles the local bucket with quota state reported by
// the remote service. It overwrites capacity and balance but never
// touches the sliding-window log: observed remote state says nothing
// about how many calls this process made recently. Returns false for
// unconfigured services.
func (l *Limiter) UpdateQuota(service string, q Quota) bool {
	sl := l.lookup(service)
	if sl == nil {
		return false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := time.Now()
	sl.refill(now)

	if q.Limit > 0 {
		sl.capacity = float64(q.Limit)
		sl.refillRate = sl.capacity / sl.cfg.Window.Seconds()
	}
	if q.Remaining >= 0 {
		sl.tokens = float64(q.Remaining)
		if sl.tokens > sl.capacity {
			sl.tokens = sl.capacity
		}
	}
	if until := q.Reset.Sub(now); until > 0 && sl.capacity > sl.tokens {
		// Stretch or shrink the refill so the bucket is full again when
		// the remote window resets.
		sl.refillRate = (sl.capacity - sl.tokens) / until.Seconds()
	}
	return true
}

// UpdateFromHeaders parses standard rate-limit response headers
// (X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset,
// Retry-After) and applies them via UpdateQuota. Reset values above 10^9
// are treated as unix seconds, smaller ones as a delta in seconds.
// Returns false when no usable header is present or the service is
// unconfigured.
func (l *Limiter) UpdateFromHeaders(service string, h http.Header) bool {
	q := Quota{Limit: -1, Remaining: -1}
	found := false

	if v, err := strconv.Atoi(h.Get("X-RateLimit-Limit")); err == nil && v > 0 {
		q.Limit = v
		found = true
	}
	if v, err := strconv.Atoi(h.Get("X-RateLimit-Remaining")); err == nil && v >= 0 {
		q.Remaining = v
		found = true
	}
	if v, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil && v > 0 {
		if v > 1_000_000_000 {
			q.Reset = time.Unix(v, 0)
		} else {
			q.Reset = time.Now().Add(time.Duration(v) * time.Second)
		}
		found = true
	} else if v, err := strconv.Atoi(h.Get("Retry-After")); err == nil && v > 0 {
		q.Reset = time.Now().Add(time.Duration(v) * time.Second)
		found = true
	}

	if !found {
		return false
	}
	return l.UpdateQuota(service, q)
}

// Status reports the current limiter state for a service. Unconfigured
// services report Configured=false with zero gates.
func (l *Limiter) Status(service string) LimitStatus {
	sl := l.lookup(service)
	if sl == nil {
		return LimitStatus{}
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := time.Now()
	sl.refill(now)
	sl.prune(now)

	st := LimitStatus{
		Configured:  true,
		Tokens:      sl.tokens,
		Capacity:    sl.capacity,
		WindowUsed:  len(sl.grants),
		WindowLimit: sl.cfg.MaxRequests,
	}
	if sl.tokens < 1 {
		st.RetryAfter = durationForTokens(1-sl.tokens, sl.refillRate)
	}
	if len(sl.grants) >= sl.cfg.MaxRequests {
		if drain := sl.grants[0].Add(sl.cfg.Window).Sub(now); drain > st.RetryAfter {
			st.RetryAfter = drain
		}
	}
	return st
}

// Services returns the configured service keys.
func (l *Limiter) Services() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.services))
	for name := range l.services {
		names = append(names, name)
	}
	return names
}

func (l *Limiter) lookup(service string) *serviceLimiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.services[service]
}
