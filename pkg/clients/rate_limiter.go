package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WindowLimiter admits at most one call per window across the whole
// process. Calls that arrive early block until the window has passed
// rather than failing.
type WindowLimiter struct {
	limiter *rate.Limiter
	clock   Clock
	window  time.Duration

	// Stats
	admitted  int64
	totalWait time.Duration

	mu sync.Mutex
}

// WindowLimiterStats describes limiter activity for logging
type WindowLimiterStats struct {
	Window    time.Duration `json:"window"`
	Admitted  int64         `json:"admitted"`
	TotalWait time.Duration `json:"total_wait"`
}

// NewWindowLimiter creates a limiter allowing one call per window.
// A nil clock uses the system clock.
func NewWindowLimiter(window time.Duration, clock Clock) *WindowLimiter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &WindowLimiter{
		limiter: rate.NewLimiter(rate.Every(window), 1),
		clock:   clock,
		window:  window,
	}
}

// Wait blocks until the next call is admitted and returns how long it waited.
func (w *WindowLimiter) Wait(ctx context.Context) (time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	r := w.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0, fmt.Errorf("rate limiter cannot admit a call with window %s", w.window)
	}

	delay := ceilMillisecond(r.DelayFrom(now))
	if delay > 0 {
		if err := w.clock.Sleep(ctx, delay); err != nil {
			r.CancelAt(w.clock.Now())
			return 0, err
		}
	}

	w.admitted++
	w.totalWait += delay
	return delay, nil
}

// Stats returns limiter statistics
func (w *WindowLimiter) Stats() WindowLimiterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WindowLimiterStats{
		Window:    w.window,
		Admitted:  w.admitted,
		TotalWait: w.totalWait,
	}
}

// ceilMillisecond rounds d up to whole milliseconds. The token bucket works in
// float seconds and can come back a few nanoseconds short of the window.
func ceilMillisecond(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d + time.Millisecond - 1).Truncate(time.Millisecond)
}
