package resilience

import "time"

// Config tunes retries and the per-operation circuit breakers of an Executor.
// Zero fields fall back to DefaultConfig.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig is the publish-side policy: ingestion events may wait for a
// few retries before the upload is reported as temporarily failed.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// ReadPath derives the policy for rule and directory lookups made while a
// caller waits on a classification or suggestion: one retry at most, with no
// backoff growth.
func (c Config) ReadPath() Config {
	out := c.normalize()
	out.RetryMaxAttempts = min(out.RetryMaxAttempts, 2)
	out.RetryMaxBackoff = out.RetryInitialBackoff
	out.RetryMultiplier = 1
	return out
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c

	out.RetryMaxAttempts = positiveOr(out.RetryMaxAttempts, def.RetryMaxAttempts)
	out.RetryInitialBackoff = positiveOr(out.RetryInitialBackoff, def.RetryInitialBackoff)
	out.RetryMaxBackoff = max(positiveOr(out.RetryMaxBackoff, def.RetryMaxBackoff), out.RetryInitialBackoff)
	if out.RetryMultiplier < 1 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	out.BreakerMinRequests = positiveOr(out.BreakerMinRequests, def.BreakerMinRequests)
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	out.BreakerOpenTimeout = positiveOr(out.BreakerOpenTimeout, def.BreakerOpenTimeout)
	out.BreakerHalfOpenMaxCalls = positiveOr(out.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return out
}

func positiveOr[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
