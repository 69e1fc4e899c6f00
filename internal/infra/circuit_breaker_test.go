package infra

import (
	"testing"
	"time"
)

func TestCircuitBreaker_AllowInClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"), nil)

	if !cb.Allow() {
		t.Error("Expected Allow() to return true in CLOSED state")
	}
	if cb.State() != BreakerClosed {
		t.Errorf("Expected state CLOSED, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          100 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Error("Should still be CLOSED after 2 failures")
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Errorf("Expected OPEN after 3 failures, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow() to return false in OPEN state")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("Expected OPEN, got %s", cb.State())
	}

	time.Sleep(60 * time.Millisecond)

	if !cb.Allow() {
		t.Error("Expected Allow() to return true after timeout (half-open probe)")
	}
	if cb.State() != BreakerHalfOpen {
		t.Errorf("Expected HALF_OPEN, got %s", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Errorf("Expected CLOSED after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	}
	cb := NewCircuitBreaker(cfg, nil)

	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	cb.Allow() // transitions to half-open

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Errorf("Expected OPEN after half-open failure, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cfg := CircuitBreakerConfig{Name: "test", FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour}
	cb := NewCircuitBreaker(cfg, nil)

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("Expected OPEN, got %s", cb.State())
	}

	cb.Reset()
	if cb.State() != BreakerClosed {
		t.Errorf("Expected CLOSED after reset, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Error("Expected Allow() after reset")
	}
}
