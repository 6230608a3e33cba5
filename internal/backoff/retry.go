package backoff

import (
	"context"
)

// #region retry

// Retry runs fn, re-running it up to maxRetries more times while retryable(err)
// holds, waiting Delay(attempt) between tries. The last error is returned once
// retries are exhausted. sleep may be nil to use SleepContext.
func Retry(ctx context.Context, b *Backoff, maxRetries int, retryable func(error) bool, sleep Sleeper, fn func(context.Context) error) error {
	if sleep == nil {
		sleep = SleepContext
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == maxRetries || retryable == nil || !retryable(err) {
			return lastErr
		}
		d, derr := b.Delay(attempt)
		if derr != nil {
			return derr
		}
		if serr := sleep(ctx, d); serr != nil {
			return serr
		}
	}
	return lastErr
}

// #endregion retry
