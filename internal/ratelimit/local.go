package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const localIdleTTL = 10 * time.Minute

// LocalLimiter is an in-process token bucket per key. It is used when no
// Redis is configured; counters are not shared between replicas.
type LocalLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows burst requests per key, refilled evenly over window.
func NewLocalLimiter(burst int, window time.Duration) (*LocalLimiter, error) {
	if burst <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &LocalLimiter{
		limit:   rate.Every(window / time.Duration(burst)),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*localBucket),
	}, nil
}

// Allow reports whether key is within quota.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	if key == "" {
		key = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *LocalLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < localIdleTTL {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > localIdleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
