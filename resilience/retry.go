package resilience

import (
	"context"
	"fmt"
	"time"
)

// Retry invokes fn, retrying on recoverable classifications with
// per-reason backoff, up to MaxRetries() additional attempts. It respects
// ctx cancellation during the backoff sleep. A non-recoverable error is
// rethrown immediately (spec §4.F), unwrapped. Only the error from a
// genuinely exhausted recoverable run carries the attempt history.
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	var history []string

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		reason := Classify(err)

		if !reason.Recoverable() {
			return err
		}

		history = append(history, fmt.Sprintf("attempt %d: %s (%v)", attempt+1, reason, err))

		if attempt == maxRetries {
			break
		}

		delay := Backoff(reason, attempt+1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("exhausted retries: %w (history: %v)", lastErr, history)
}
