// Package base provides shared building blocks for sources.
package base

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// Sleep waits between attempts. Nil uses a timer.
	Sleep SleepFunc
	// OnRetry is called before each backoff with the failed attempt number
	// (starting at 1), the error and the chosen delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ExecuteWithCondition runs fn, retrying only errors for which shouldRetry
// returns true. Other errors are returned unchanged. When every attempt
// fails the last error is wrapped.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == attempts-1 {
			break
		}

		delay := rp.calculateDelay(attempt)
		if rp.OnRetry != nil {
			rp.OnRetry(attempt+1, err, delay)
		}

		if err := rp.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

func (rp *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if rp.Sleep != nil {
		return rp.Sleep(ctx, d)
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

// calculateDelay calculates the delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	multiplier := rp.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := float64(rp.InitialDelay) * math.Pow(multiplier, float64(attempt))

	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	// Jitter
	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay)) //nolint:gosec
	}

	return time.Duration(delay)
}

// RateLimitRetryPolicy returns the backoff used around metric job creation:
// five attempts with exponential backoff starting at one second.
func RateLimitRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     5,
		InitialDelay:    1 * time.Second,
		MaxDelay:        5 * time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}
