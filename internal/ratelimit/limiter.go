package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key may proceed. When it
// may not, retryAfter says how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration)
}

// Key scopes subject to an action so one limiter can guard several endpoints.
func Key(action, subject string) string {
	if subject == "" {
		subject = "unknown"
	}
	return action + ":" + subject
}
