package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// GateConfig configures a concurrency gate.
type GateConfig struct {
	// MaxConcurrent is the number of operations allowed in flight at
	// once. Defaults to 10.
	MaxConcurrent int64

	// MaxWait is how long Execute waits for a slot when the gate is
	// full. Zero or negative fails immediately with ErrGateFull.
	MaxWait time.Duration
}

// Gate bounds the number of concurrent operations so a slow dependency
// cannot absorb every goroutine in the process.
type Gate struct {
	cfg      GateConfig
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

// NewGate creates a gate, applying defaults for any zero config field.
func NewGate(cfg GateConfig) *Gate {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &Gate{
		cfg: cfg,
		sem: semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Execute runs op inside the gate. A full gate fails with ErrGateFull
// after MaxWait (or immediately when MaxWait is zero); if the caller's
// context ends while waiting, its error is returned instead.
func (g *Gate) Execute(ctx context.Context, op func(context.Context) error) error {
	if !g.sem.TryAcquire(1) {
		if g.cfg.MaxWait <= 0 {
			return ErrGateFull
		}
		waitCtx, cancel := context.WithTimeout(ctx, g.cfg.MaxWait)
		err := g.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrGateFull
		}
	}
	g.inFlight.Add(1)
	defer func() {
		g.inFlight.Add(-1)
		g.sem.Release(1)
	}()

	return op(ctx)
}

// InFlight returns the number of operations currently inside the gate.
func (g *Gate) InFlight() int64 { return g.inFlight.Load() }

// Capacity returns the configured concurrency bound.
func (g *Gate) Capacity() int64 { return g.cfg.MaxConcurrent }
