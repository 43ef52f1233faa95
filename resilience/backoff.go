package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff is a stateful delay sequence for hand-rolled retry
// loops: polling, reconnects, queue drains. Each Wait sleeps a little
// longer than the last until Reset is called.
//
// It is not safe for concurrent use; give each loop its own instance.
type ExponentialBackoff struct {
	// Base is the first delay. Defaults to 500ms.
	Base time.Duration

	// Max caps the delay. Defaults to 30 seconds.
	Max time.Duration

	// Multiplier grows the delay each step. Defaults to 2.
	Multiplier float64

	// DisableJitter turns off the uniform [0.5, 1.0] scaling.
	DisableJitter bool

	attempt int
}

// Attempt returns how many delays have been taken since the last Reset.
func (b *ExponentialBackoff) Attempt() int { return b.attempt }

// Reset restarts the sequence at Base.
func (b *ExponentialBackoff) Reset() { b.attempt = 0 }

// NextDelay returns the next delay in the sequence and advances it.
func (b *ExponentialBackoff) NextDelay() time.Duration {
	base := b.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	mult := b.Multiplier
	if mult <= 1 {
		mult = 2
	}

	d := float64(base) * math.Pow(mult, float64(b.attempt))
	if d > float64(max) {
		d = float64(max)
	}
	if !b.DisableJitter {
		d = d/2 + rand.Float64()*d/2
	}
	b.attempt++
	return time.Duration(d)
}

// Wait sleeps for the next delay in the sequence, returning early with
// ctx.Err() if the context ends first.
func (b *ExponentialBackoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.NextDelay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
