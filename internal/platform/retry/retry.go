// Package retry implements the exponential-backoff retry loop used by the
// Store Pair's atomic user-create writes, grounded on the connection-retry shape in
// the surrounding database-module idiom (fixed attempt cap, doubling
// backoff from a base delay).
package retry

import (
	"context"
	"time"
)

// Config bounds a retry loop.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultConfig is the §4.A "exponential backoff, max 5 attempts, base 1s"
// policy.
var DefaultConfig = Config{MaxAttempts: 5, BaseDelay: time.Second}

// WithBackoff calls fn until it succeeds, ctx is cancelled, or attempts are
// exhausted, sleeping BaseDelay before the first retry and doubling the
// wait before each later one (BaseDelay*2^(n-1) before retry n). It
// returns the last error on exhaustion.
func WithBackoff(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
