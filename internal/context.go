package internal

import (
	"context"
	"time"
)

// DefaultCommandTimeout bounds a single backing-store round trip when the
// caller did not configure one.
const DefaultCommandTimeout = 5 * time.Second

// WithTimeout returns a context with timeout, defaulting to DefaultCommandTimeout if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = DefaultCommandTimeout
	}
	return context.WithTimeout(ctx, duration)
}
