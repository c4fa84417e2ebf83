package gateway

import (
	"context"
	"time"
)

const (
	// DefaultAttempts bounds the engine-side retry before a gateway failure
	// surfaces to the caller.
	DefaultAttempts = 3
	// DefaultBackoff is the initial delay between attempts; it doubles each
	// retry.
	DefaultBackoff = 200 * time.Millisecond
)

// Retry runs op up to attempts times with doubling backoff, stopping early on
// success or context cancellation. The last error is returned.
func Retry(ctx context.Context, attempts int, backoff time.Duration, op func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
