package importer

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds how often a failed remote operation is repeated.
// Only errors importerror.IsRetryable accepts are retried.
type RetryPolicy struct {
	MaxAttempts    int           // total attempts, including the first
	InitialBackoff time.Duration // delay before the second attempt
	MaxBackoff     time.Duration // cap for any single delay, Retry-After included
	BackoffFactor  float64       // multiplier per attempt
	Jitter         float64       // random spread, 0-1
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultRetryPolicy().MaxBackoff
	}
	return p
}

// Backoff returns the delay before retry number attempt (0-based).
// A server supplied Retry-After wins over the computed delay.
func (p RetryPolicy) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	p = p.normalized()
	if retryAfter > 0 {
		return min(retryAfter, p.MaxBackoff)
	}

	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt))
	if p.Jitter > 0 {
		backoff += backoff * p.Jitter * (rand.Float64()*2 - 1)
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
