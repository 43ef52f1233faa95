package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{Service: "search", RetryAfter: 250 * time.Millisecond}

	if !errors.Is(err, ErrRateLimited) {
		t.Error("RateLimitError should match ErrRateLimited")
	}
	if errors.Is(err, ErrCircuitOpen) {
		t.Error("RateLimitError should not match ErrCircuitOpen")
	}
	if msg := err.Error(); !strings.Contains(msg, "search") || !strings.Contains(msg, "250ms") {
		t.Errorf("Error() = %q, want service and wait in the message", msg)
	}

	// Matching survives wrapping.
	wrapped := fmt.Errorf("calling upstream: %w", err)
	if !errors.Is(wrapped, ErrRateLimited) {
		t.Error("wrapped RateLimitError should still match ErrRateLimited")
	}
	var rle *RateLimitError
	if !errors.As(wrapped, &rle) || rle.RetryAfter != 250*time.Millisecond {
		t.Errorf("errors.As failed to recover RetryAfter from %v", wrapped)
	}
}

func TestCircuitOpenError(t *testing.T) {
	err := &CircuitOpenError{Name: "payments", RetryAfter: time.Second}

	if !errors.Is(err, ErrCircuitOpen) {
		t.Error("CircuitOpenError should match ErrCircuitOpen")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("CircuitOpenError should not match ErrRateLimited")
	}
	if msg := err.Error(); !strings.Contains(msg, "payments") {
		t.Errorf("Error() = %q, want breaker name in the message", msg)
	}

	anon := &CircuitOpenError{}
	if msg := anon.Error(); msg == "" {
		t.Error("Error() for unnamed breaker should not be empty")
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}

	inner := errors.New("schema mismatch")
	err := Permanent(inner)

	if !errors.Is(err, ErrPermanent) {
		t.Error("Permanent error should match ErrPermanent")
	}
	if !errors.Is(err, inner) {
		t.Error("Permanent error should unwrap to the original")
	}
	if err.Error() != inner.Error() {
		t.Errorf("Error() = %q, want the original message %q", err.Error(), inner.Error())
	}

	// Context errors stay distinguishable.
	if errors.Is(Permanent(context.Canceled), ErrRateLimited) {
		t.Error("Permanent should not leak unrelated matches")
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Code: 503, Message: "try later"}

	var sc StatusCoder
	if !errors.As(err, &sc) {
		t.Fatal("StatusError should satisfy StatusCoder")
	}
	if sc.StatusCode() != 503 {
		t.Errorf("StatusCode() = %d, want 503", sc.StatusCode())
	}
	if msg := err.Error(); !strings.Contains(msg, "503") || !strings.Contains(msg, "try later") {
		t.Errorf("Error() = %q, want code and message", msg)
	}

	bare := &StatusError{Code: 404}
	if msg := bare.Error(); !strings.Contains(msg, "404") {
		t.Errorf("Error() = %q, want code", msg)
	}
}
