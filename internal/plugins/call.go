package plugins

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Netflix/dispatch-sub003/internal/errs"
)

// DefaultCallTimeout bounds one plugin call.
const DefaultCallTimeout = 15 * time.Second

const maxAttempts = 3

// Call runs fn under a bounded deadline and retries transient failures
// with exponential backoff, up to three attempts. Non-retryable errors
// return immediately; a deadline expiry surfaces as a TimeoutError.
func Call(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(250*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return retry.RetryableError(&errs.TimeoutError{Op: op})
		}
		if errs.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	return err
}
