package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxFailedLogins: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i, err)
		}
		if err := l.RecordFailure(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	if err := l.CheckLogin(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other ip should not be limited: %v", err)
	}
	if n, _ := l.Attempts(ctx, "10.0.0.1"); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}

	mr.FastForward(time.Minute)
	if err := l.CheckLogin(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("expected window to reset after cooldown: %v", err)
	}
}

func TestLimiterResetAndEmptyIP(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxFailedLogins: 1, Cooldown: time.Minute})
	ctx := context.Background()

	if err := l.RecordFailure(ctx, ""); err != nil {
		t.Fatalf("empty ip record: %v", err)
	}
	if err := l.CheckLogin(ctx, ""); err != nil {
		t.Fatalf("empty ip must never be limited: %v", err)
	}

	_ = l.RecordFailure(ctx, "10.0.0.1")
	if err := l.CheckLogin(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.ResetLogin(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckLogin(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("expected reset to clear limit: %v", err)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxFailedLogins: 1, Cooldown: time.Minute})
	mr.Close()
	if err := l.CheckLogin(context.Background(), "10.0.0.1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestLimiterWindowStartsAtFirstFailure(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxFailedLogins: 5, Cooldown: time.Minute, Prefix: "sl"})
	ctx := context.Background()

	if err := l.RecordFailure(ctx, "10.0.0.9"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	mr.FastForward(40 * time.Second)
	if err := l.RecordFailure(ctx, "10.0.0.9"); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	if ttl := mr.TTL("sl:10.0.0.9"); ttl <= 0 || ttl > 20*time.Second {
		t.Fatalf("later failures must not extend the window, ttl=%v", ttl)
	}
}
