package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiterBurstAndRefill(t *testing.T) {
	limiter, err := NewLocalLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	ok, retry := limiter.Allow(ctx, "ip-1")
	if ok {
		t.Fatalf("third request should be blocked")
	}
	if retry <= 0 || retry > 30*time.Second {
		t.Fatalf("unexpected retry after %s", retry)
	}
	if ok, _ := limiter.Allow(ctx, "ip-2"); !ok {
		t.Fatalf("other keys should not be affected")
	}

	now = now.Add(30 * time.Second)
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("token should have refilled")
	}
}

func TestLocalLimiterEvictsIdleKeys(t *testing.T) {
	limiter, err := NewLocalLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	limiter.Allow(context.Background(), "ip-1")

	now = now.Add(2 * localIdleTTL)
	limiter.Allow(context.Background(), "ip-2")
	if _, ok := limiter.buckets["ip-1"]; ok {
		t.Fatalf("expected idle bucket to be evicted")
	}
}

func TestLocalLimiterRejectsInvalidConfig(t *testing.T) {
	if _, err := NewLocalLimiter(0, time.Minute); err == nil {
		t.Fatalf("expected zero burst to fail")
	}
	if _, err := NewLocalLimiter(1, 0); err == nil {
		t.Fatalf("expected zero window to fail")
	}
}

func TestKey(t *testing.T) {
	if got := Key("login", "10.0.0.1"); got != "login:10.0.0.1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := Key("login", ""); got != "login:unknown" {
		t.Fatalf("unexpected key %q", got)
	}
}
