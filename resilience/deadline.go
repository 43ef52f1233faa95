package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Deadline bounds each operation with a per-attempt timeout. The timeout
// is applied through the context passed to the operation, so the
// operation runs on the caller's goroutine and must honor cancellation;
// nothing is left running detached after Execute returns.
type Deadline struct {
	timeout time.Duration
}

// NewDeadline creates a deadline stage. Timeouts <= 0 default to 30
// seconds.
func NewDeadline(timeout time.Duration) *Deadline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Deadline{timeout: timeout}
}

// Timeout returns the configured per-attempt timeout.
func (d *Deadline) Timeout() time.Duration { return d.timeout }

// Execute runs op with the deadline applied. When the attempt deadline
// fires (and not the caller's own context), the result is ErrDeadline so
// callers can tell a slow attempt from a cancelled one.
func (d *Deadline) Execute(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := op(attemptCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("resilience: attempt exceeded %v: %w", d.timeout, ErrDeadline)
	}
	return err
}
