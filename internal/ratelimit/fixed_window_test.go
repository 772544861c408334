package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sony/gobreaker"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	limiter.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC) }
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("second request should pass")
	}
	ok, retry := limiter.Allow(ctx, "ip-1")
	if ok {
		t.Fatalf("third request should be blocked")
	}
	if retry != 50*time.Second {
		t.Fatalf("expected retry after rest of window, got %s", retry)
	}
	if ok, _ := limiter.Allow(ctx, "ip-2"); !ok {
		t.Fatalf("other keys should not be affected")
	}
}

func TestFixedWindowLimiterRedisNextWindow(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "ip-1"); ok {
		t.Fatalf("second request should be blocked")
	}
	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("request in next window should pass")
	}
	if len(redis.Keys()) == 0 || redis.Keys()[0][:len(defaultRedisPrefix)] != defaultRedisPrefix {
		t.Fatalf("expected default key prefix, got %v", redis.Keys())
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if ok, _ := limiter.Allow(context.Background(), "ip-1"); ok {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterBreakerOpensOnRepeatedFailures(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 10, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	redis.Close()

	for i := 0; i < 5; i++ {
		if ok, _ := limiter.Allow(context.Background(), "ip-1"); ok {
			t.Fatalf("attempt %d: limiter should fail closed", i)
		}
	}
	if got := limiter.breaker.State(); got != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", got)
	}
	if ok, retry := limiter.Allow(context.Background(), "ip-1"); ok || retry <= 0 {
		t.Fatalf("open breaker should refuse with retry hint, got ok=%v retry=%s", ok, retry)
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}
