package engine

import "time"

// RetryPolicy is the bounded exponential backoff applied to transient
// per-file failures: sharing violations and transient network errors
// are worth waiting out; everything else fails the file immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is the policy RunCopy applies when a job doesn't
// set one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// backoff returns the wait before attempt's retry (attempt is 0-based:
// backoff(0) is the wait after the first failure).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}
