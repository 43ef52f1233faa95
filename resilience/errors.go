package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations. The typed errors below match
// these through errors.Is, so callers can branch on the class without
// caring about the concrete type.
var (
	// ErrRateLimited is returned when a rate limit rejects a call.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")

	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrGateFull is returned when the concurrency gate is at capacity.
	ErrGateFull = errors.New("resilience: concurrency gate at capacity")

	// ErrDeadline is returned when an operation exceeds its time budget.
	ErrDeadline = errors.New("resilience: operation timed out")

	// ErrPermanent matches errors marked non-retryable via Permanent.
	ErrPermanent = errors.New("resilience: permanent error")
)

// RateLimitError reports a rejected acquire along with how long the caller
// should wait before trying again.
type RateLimitError struct {
	// Service is the rate-limit key that rejected the call.
	Service string

	// RetryAfter is the estimated wait until the call could succeed.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded for %q, retry after %s", e.Service, e.RetryAfter)
}

// Is reports a match for ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// CircuitOpenError reports a call rejected by an open circuit. The wrapped
// operation was never invoked.
type CircuitOpenError struct {
	// Name identifies the breaker that rejected the call.
	Name string

	// RetryAfter is the time remaining until the breaker allows a probe.
	// Zero when the breaker is half-open but out of probe slots.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.Name == "" {
		return "resilience: circuit breaker is open"
	}
	return fmt.Sprintf("resilience: circuit breaker %q is open", e.Name)
}

// Is reports a match for ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// Permanent marks err as non-retryable. Retry.Execute propagates a
// permanent error immediately without consuming retry budget. A nil err
// returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Is reports a match for ErrPermanent.
func (e *permanentError) Is(target error) bool {
	return target == ErrPermanent
}

// StatusCoder is implemented by errors that carry an HTTP-style status
// code. Retry policies with a retryable-code set classify errors through
// this interface.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is a ready-made error carrying a remote status code.
// Service clients can return it from operations so retry policies can
// classify the failure.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resilience: remote returned status %d", e.Code)
	}
	return fmt.Sprintf("resilience: remote returned status %d: %s", e.Code, e.Message)
}

// StatusCode returns the remote status code.
func (e *StatusError) StatusCode() int { return e.Code }
