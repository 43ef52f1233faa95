package resilience

import (
	"context"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets calls through and counts failures.
	StateClosed State = iota
	// StateOpen rejects calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the failure count that opens the circuit.
	// Defaults to 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before probing.
	// Defaults to 30 seconds.
	RecoveryTimeout time.Duration

	// SuccessesToClose is the number of consecutive probe successes that
	// close a half-open circuit. Defaults to 3.
	SuccessesToClose int

	// MonitoringPeriod bounds the age of a failure streak: a failure
	// arriving more than this long after the previous one restarts the
	// count at one. Defaults to 60 seconds.
	MonitoringPeriod time.Duration

	// MaxProbes caps the calls admitted per half-open episode. It is
	// raised to SuccessesToClose when smaller, since closing needs that
	// many probes to complete.
	MaxProbes int

	// IsFailure decides whether an operation error counts against the
	// breaker. Defaults to any non-nil error.
	IsFailure func(error) bool

	// OnStateChange is invoked after every transition. It is called
	// outside the breaker lock; implementations may call back into the
	// breaker.
	OnStateChange func(name string, from, to State)
}

// BreakerCounts is a point-in-time snapshot of breaker state.
type BreakerCounts struct {
	State          State
	Failures       int
	ProbeSuccesses int
	TotalCalls     uint64
	TotalSuccesses uint64
	TotalFailures  uint64
	Rejected       uint64
	OpenedAt       time.Time
	LastTransition time.Time
}

// CircuitBreaker sheds calls to a failing service. Failures while closed
// accumulate in a streak counter that successes erode one by one; hitting
// the threshold opens the circuit, which rejects everything until the
// recovery timeout, then admits a few probes, and closes again only after
// enough of them succeed. A single probe failure reopens it.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu             sync.Mutex
	state          State
	failures       int
	lastFailure    time.Time
	openedAt       time.Time
	probes         int
	probeSuccesses int
	lastTransition time.Time

	totalCalls     uint64
	totalSuccesses uint64
	totalFailures  uint64
	rejected       uint64
}

// NewCircuitBreaker creates a breaker named name, applying defaults for
// any zero config field.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.SuccessesToClose <= 0 {
		cfg.SuccessesToClose = 3
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = 60 * time.Second
	}
	if cfg.MaxProbes < cfg.SuccessesToClose {
		cfg.MaxProbes = cfg.SuccessesToClose
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		name:           name,
		cfg:            cfg,
		state:          StateClosed,
		lastTransition: time.Now(),
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs op through the breaker. When the circuit is open it
// returns *CircuitOpenError without invoking op; otherwise op's own error
// is returned unchanged after being recorded.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	notify, err := cb.beforeCall()
	cb.fire(notify)
	if err != nil {
		return err
	}

	opErr := op(ctx)
	cb.fire(cb.afterCall(opErr))
	return opErr
}

// transition is a pending OnStateChange notification, captured under the
// lock and fired after it is released.
type transition struct {
	from, to State
}

func (cb *CircuitBreaker) fire(t *transition) {
	if t != nil && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, t.from, t.to)
	}
}

func (cb *CircuitBreaker) beforeCall() (*transition, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	notify := cb.advanceLocked(now)

	switch cb.state {
	case StateClosed:
		cb.totalCalls++
		return notify, nil
	case StateHalfOpen:
		if cb.probes >= cb.cfg.MaxProbes {
			cb.rejected++
			return notify, &CircuitOpenError{Name: cb.name}
		}
		cb.probes++
		cb.totalCalls++
		return notify, nil
	default: // StateOpen
		cb.rejected++
		retry := cb.openedAt.Add(cb.cfg.RecoveryTimeout).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return notify, &CircuitOpenError{Name: cb.name, RetryAfter: retry}
	}
}

func (cb *CircuitBreaker) afterCall(err error) *transition {
	failed := err != nil && cb.cfg.IsFailure(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.totalSuccesses++
			// Successes erode the streak instead of erasing it, so a
			// service failing every other call still trips eventually.
			if cb.failures > 0 {
				cb.failures--
			}
			return nil
		}
		cb.totalFailures++
		if !cb.lastFailure.IsZero() && now.Sub(cb.lastFailure) > cb.cfg.MonitoringPeriod {
			cb.failures = 1
		} else {
			cb.failures++
		}
		cb.lastFailure = now
		if cb.failures >= cb.cfg.FailureThreshold {
			return cb.setStateLocked(StateOpen, now)
		}
		return nil

	case StateHalfOpen:
		if failed {
			cb.totalFailures++
			return cb.setStateLocked(StateOpen, now)
		}
		cb.totalSuccesses++
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.cfg.SuccessesToClose {
			cb.failures = 0
			cb.lastFailure = time.Time{}
			return cb.setStateLocked(StateClosed, now)
		}
		return nil

	default:
		// The circuit opened while this call was in flight. Record the
		// outcome but leave transitions to the probe cycle.
		if failed {
			cb.totalFailures++
		} else {
			cb.totalSuccesses++
		}
		return nil
	}
}

// advanceLocked moves an open circuit to half-open once the recovery
// timeout has elapsed. Transitions happen lazily on the next call rather
// than on a timer.
func (cb *CircuitBreaker) advanceLocked(now time.Time) *transition {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		return cb.setStateLocked(StateHalfOpen, now)
	}
	return nil
}

func (cb *CircuitBreaker) setStateLocked(to State, now time.Time) *transition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.lastTransition = now
	switch to {
	case StateOpen:
		cb.openedAt = now
	case StateHalfOpen:
		cb.probes = 0
		cb.probeSuccesses = 0
	}
	return &transition{from: from, to: to}
}

// State returns the current state, applying any pending open-to-half-open
// transition first.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	notify := cb.advanceLocked(time.Now())
	s := cb.state
	cb.mu.Unlock()
	cb.fire(notify)
	return s
}

// Counts returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Counts() BreakerCounts {
	cb.mu.Lock()
	notify := cb.advanceLocked(time.Now())
	c := BreakerCounts{
		State:          cb.state,
		Failures:       cb.failures,
		ProbeSuccesses: cb.probeSuccesses,
		TotalCalls:     cb.totalCalls,
		TotalSuccesses: cb.totalSuccesses,
		TotalFailures:  cb.totalFailures,
		Rejected:       cb.rejected,
		OpenedAt:       cb.openedAt,
		LastTransition: cb.lastTransition,
	}
	cb.mu.Unlock()
	cb.fire(notify)
	return c
}

// Reset returns the breaker to closed and clears every counter.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.setStateLocked(StateClosed, time.Now())
	cb.failures = 0
	cb.lastFailure = time.Time{}
	cb.openedAt = time.Time{}
	cb.probes = 0
	cb.probeSuccesses = 0
	cb.totalCalls = 0
	cb.totalSuccesses = 0
	cb.totalFailures = 0
	cb.rejected = 0
	cb.mu.Unlock()
	cb.fire(notify)
}

// BreakerGroup manages one breaker per service name, creating them on
// first use from a shared default config.
type BreakerGroup struct {
	mu       sync.RWMutex
	defaults BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakerGroup creates a group whose breakers inherit defaults.
func NewBreakerGroup(defaults BreakerConfig) *BreakerGroup {
	return &BreakerGroup{
		defaults: defaults,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it with the group defaults
// if it does not exist yet.
func (g *BreakerGroup) Get(name string) *CircuitBreaker {
	g.mu.RLock()
	cb := g.breakers[name]
	g.mu.RUnlock()
	if cb != nil {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cb = g.breakers[name]; cb == nil {
		cb = NewCircuitBreaker(name, g.defaults)
		g.breakers[name] = cb
	}
	return cb
}

// Configure installs a breaker for name with its own config, replacing
// any existing breaker and its accumulated state.
func (g *BreakerGroup) Configure(name string, cfg BreakerConfig) *CircuitBreaker {
	cb := NewCircuitBreaker(name, cfg)
	g.mu.Lock()
	g.breakers[name] = cb
	g.mu.Unlock()
	return cb
}

// Execute runs op through the breaker for name.
func (g *BreakerGroup) Execute(ctx context.Context, name string, op func(context.Context) error) error {
	return g.Get(name).Execute(ctx, op)
}

// States reports the current state of every breaker in the group.
func (g *BreakerGroup) States() map[string]State {
	g.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.RUnlock()

	states := make(map[string]State, len(breakers))
	for _, cb := range breakers {
		states[cb.Name()] = cb.State()
	}
	return states
}

// Reset resets the breaker for name if it exists.
func (g *BreakerGroup) Reset(name string) {
	g.mu.RLock()
	cb := g.breakers[name]
	g.mu.RUnlock()
	if cb != nil {
		cb.Reset()
	}
}

// ResetAll resets every breaker in the group.
func (g *BreakerGroup) ResetAll() {
	g.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}
