package resilience

import (
	"testing"
	"time"
)

func TestNormalizeFillsZeroFields(t *testing.T) {
	got := Config{RetryInitialBackoff: time.Second}.normalize()
	def := DefaultConfig()

	if got.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("expected default attempts, got %d", got.RetryMaxAttempts)
	}
	if got.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff must not be below the initial backoff, got %v", got.RetryMaxBackoff)
	}
	if got.BreakerFailureRatio != def.BreakerFailureRatio || got.BreakerHalfOpenMaxCalls != def.BreakerHalfOpenMaxCalls {
		t.Fatalf("unexpected breaker settings %+v", got)
	}
}

func TestReadPathCapsRetries(t *testing.T) {
	base := Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: 50 * time.Millisecond,
		RetryMaxBackoff:     time.Second,
		BreakerEnabled:      true,
	}
	got := base.ReadPath()

	if got.RetryMaxAttempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", got.RetryMaxAttempts)
	}
	if got.RetryMaxBackoff != 50*time.Millisecond || got.RetryMultiplier != 1 {
		t.Fatalf("expected flat backoff, got %+v", got)
	}
	if !got.BreakerEnabled {
		t.Fatal("breaker setting must carry over")
	}
	if one := (Config{RetryMaxAttempts: 1}).ReadPath(); one.RetryMaxAttempts != 1 {
		t.Fatalf("read path must not raise attempts, got %d", one.RetryMaxAttempts)
	}
}
