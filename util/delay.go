package util

import (
	"context"
	"time"
)

// Below spinThreshold the scheduler cannot be trusted to wake us in time, so
// Delay polls the monotonic clock instead of sleeping.
const spinThreshold = 200 * time.Microsecond

// Delay blocks for at least d, measured on the monotonic clock.
func Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	if d >= spinThreshold {
		time.Sleep(d - spinThreshold/2)
	}
	for time.Since(start) < d {
	}
}

// SleepCtx sleeps for d or until ctx is done. It reports false when ctx ended
// the wait.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
