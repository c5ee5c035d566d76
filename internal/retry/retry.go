// Package retry provides the one retry-with-backoff loop shared by every
// outbound client that needs it.
package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Policy controls a bounded retry loop with exponential backoff. Retryable
// decides which errors earn another attempt; everything else aborts the loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Retryable   func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Do runs fn up to MaxAttempts times, doubling the delay between attempts.
// It returns nil on the first success and the last error otherwise.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", maxAttempts, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
