package reconcile

import (
	"errors"
	"math"
	"time"
)

// ErrRetryExhausted is returned when a version still fails after MaxAttempts.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryPolicy bounds the per-version retry loop.
// The field names mirror temporal.RetryPolicy so the same flags drive both paths.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt. Zero retries until success.
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
}

// DefaultRetryPolicy returns the policy used when no flags override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        10,
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
	}
}

// Exhausted reports whether no attempt may follow the given number of attempts.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// Backoff returns the delay before the attempt that follows attempt n (n >= 1).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if p.InitialInterval <= 0 {
		return 0
	}
	coef := p.BackoffCoefficient
	if coef < 1 {
		coef = 1
	}

	delay := float64(p.InitialInterval)
	for i := 1; i < n; i++ {
		delay *= coef
		if p.MaximumInterval > 0 && delay >= float64(p.MaximumInterval) {
			return p.MaximumInterval
		}
		if delay >= math.MaxInt64 {
			return time.Duration(math.MaxInt64)
		}
	}
	if p.MaximumInterval > 0 && delay > float64(p.MaximumInterval) {
		return p.MaximumInterval
	}
	return time.Duration(delay)
}
