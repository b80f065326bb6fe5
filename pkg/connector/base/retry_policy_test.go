package base

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

func noWait(sleeps *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return ctx.Err()
	}
}

func TestExecuteWithCondition(t *testing.T) {
	t.Run("succeeds after retries", func(t *testing.T) {
		var sleeps []time.Duration
		rp := RateLimitRetryPolicy()
		rp.RandomizeFactor = 0
		rp.Sleep = noWait(&sleeps)

		calls := 0
		err := rp.ExecuteWithCondition(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New(errors.ErrorTypeRateLimit, "slow down")
			}
			return nil
		}, errors.IsRateLimit)

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var sleeps []time.Duration
		rp := RateLimitRetryPolicy()
		rp.Sleep = noWait(&sleeps)

		var retried []int
		rp.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

		calls := 0
		err := rp.ExecuteWithCondition(context.Background(), func() error {
			calls++
			return errors.New(errors.ErrorTypeRateLimit, "slow down")
		}, errors.IsRateLimit)

		require.Error(t, err)
		assert.Equal(t, 5, calls)
		assert.Len(t, sleeps, 4)
		assert.Equal(t, []int{1, 2, 3, 4}, retried)
		assert.True(t, errors.IsRateLimit(err))
		assert.Contains(t, err.Error(), "all 5 attempts failed")
	})

	t.Run("non retryable error returns immediately", func(t *testing.T) {
		var sleeps []time.Duration
		rp := RateLimitRetryPolicy()
		rp.Sleep = noWait(&sleeps)

		cause := errors.New(errors.ErrorTypeAuthentication, "bad secret")
		calls := 0
		err := rp.ExecuteWithCondition(context.Background(), func() error {
			calls++
			return cause
		}, errors.IsRateLimit)

		assert.Same(t, cause, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, sleeps)
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		rp := RateLimitRetryPolicy()
		rp.Sleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}

		err := rp.ExecuteWithCondition(ctx, func() error {
			return errors.New(errors.ErrorTypeRateLimit, "slow down")
		}, errors.IsRateLimit)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCalculateDelay(t *testing.T) {
	rp := RateLimitRetryPolicy()
	rp.RandomizeFactor = 0
	rp.MaxDelay = 10 * time.Second

	assert.Equal(t, time.Second, rp.calculateDelay(0))
	assert.Equal(t, 4*time.Second, rp.calculateDelay(2))
	assert.Equal(t, 10*time.Second, rp.calculateDelay(6))

	rp.RandomizeFactor = 0.25
	for i := 0; i < 20; i++ {
		d := rp.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 1500*time.Millisecond)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}
