package stream

import (
	"context"
	"time"
)

// Clock supplies time to the scheduler
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock with Go's monotonic readings
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
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

// SleepBudget returns how long to sleep after a cycle that took elapsed,
// never less than zero
func SleepBudget(nominal, elapsed time.Duration) time.Duration {
	if elapsed >= nominal {
		return 0
	}
	return nominal - elapsed
}
