package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryConfig configures the retry executor.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt, so
	// the operation runs at most MaxRetries+1 times. Zero means the
	// default of 3; negative disables retries entirely.
	MaxRetries int

	// BaseDelay is the backoff before the first retry. Defaults to 1
	// second.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff. Defaults to 30 seconds.
	MaxDelay time.Duration

	// Multiplier grows the delay between consecutive retries. Defaults
	// to 2.
	Multiplier float64

	// DisableJitter turns off delay randomization. With jitter on, each
	// delay is scaled by a uniform factor in [0.5, 1.0].
	DisableJitter bool

	// RetryIf decides whether an error is worth retrying. Defaults to
	// DefaultRetryIf.
	RetryIf func(error) bool

	// OnRetry is invoked before each backoff sleep with the upcoming
	// attempt number (1-based retry index), the chosen delay, and the
	// error being retried.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Retry re-runs failed operations with exponential backoff.
type Retry struct {
	cfg RetryConfig
}

// NewRetry creates a retry executor, applying defaults for any zero
// config field.
func NewRetry(cfg RetryConfig) *Retry {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}
	return &Retry{cfg: cfg}
}

// Execute runs op, retrying per the config. The error from the final
// attempt is returned unchanged; a non-retryable error short-circuits
// and is returned unchanged as well. If the context ends during a
// backoff sleep, the context error is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt - 1)
			if r.cfg.OnRetry != nil {
				r.cfg.OnRetry(attempt, delay, err)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if !r.cfg.RetryIf(err) {
			return err
		}
	}
	return err
}

// delay computes the backoff before retry number n (0-based):
// BaseDelay * Multiplier^n, capped at MaxDelay, then jittered.
func (r *Retry) delay(n int) time.Duration {
	d := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Multiplier, float64(n))
	if max := float64(r.cfg.MaxDelay); d > max {
		d = max
	}
	if !r.cfg.DisableJitter {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}

// DefaultRetryIf reports whether an error is worth retrying. Permanent
// errors, open-circuit rejections, and deliberate cancellation are not;
// errors carrying an HTTP status retry only on RetryableStatus codes;
// everything else (timeouts, connection resets, unclassified failures)
// is considered transient.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return RetryableStatus(sc.StatusCode())
	}
	return true
}

// RetryOnStatus returns a classifier that retries only errors carrying
// one of the given status codes. Errors without a status code are
// treated as transient, and the non-retryable classes from
// DefaultRetryIf still short-circuit.
func RetryOnStatus(codes ...int) func(error) bool {
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return func(err error) bool {
		if err == nil {
			return false
		}
		if errors.Is(err, ErrPermanent) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
			return false
		}
		var sc StatusCoder
		if errors.As(err, &sc) {
			return set[sc.StatusCode()]
		}
		return true
	}
}

// RetryableStatus reports whether an HTTP status code indicates a
// transient failure: request timeout, rate limiting, and server errors.
func RetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
