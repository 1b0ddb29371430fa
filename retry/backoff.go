// Package retry provides the exponential backoff used to recover broker
// consumers after their stream is lost.
package retry

import (
	"context"
	"math"
	"time"
)

// Strategy defines how often and how long to wait between recovery attempts.
//
// The schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with defaults (500ms base, 2.0 exponential, 30s max):
//
//	Attempt 0: 500ms
//	Attempt 1: 1s
//	Attempt 2: 2s
//	...
//	Attempt 6: 30s (capped)
type Strategy struct {
	MaxAttempts     int           // Give up after this many attempts (0 = never)
	BaseDelay       time.Duration // Delay before the first attempt
	MaxDelay        time.Duration // Maximum delay cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the strategy consumer relays use: 500ms doubling
// up to 30s, retrying until the relay is stopped.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     0,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
	}
}

// CalculateRetryDelay calculates the delay before attempt (0-based).
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// IsRetryable checks if another attempt is allowed.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return s.MaxAttempts <= 0 || attemptCount < s.MaxAttempts
}

// Wait sleeps for the delay of attemptNumber, returning early with ctx.Err()
// when ctx is done.
func (s Strategy) Wait(ctx context.Context, attemptNumber int) error {
	timer := time.NewTimer(s.CalculateRetryDelay(attemptNumber))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
