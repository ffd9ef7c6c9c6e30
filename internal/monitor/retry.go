package monitor

import (
	"context"
	"time"
)

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return err
		}

		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
}

// reconnectDelay returns base * 2^attempt, capped at maxDelay.
func reconnectDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return base
	}
	if attempt > 30 {
		return maxDelay
	}
	delay := base * time.Duration(1<<attempt)
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
