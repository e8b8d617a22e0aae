package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAllowFixedWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	l := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Config{
		Enabled:     true,
		MaxRequests: 3,
		Window:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "signin", "10.0.0.1"); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "signin", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(ctx, "signup", "10.0.0.1"); err != nil {
		t.Fatalf("scopes must be independent: %v", err)
	}
	if err := l.Allow(ctx, "signin", "10.0.0.2"); err != nil {
		t.Fatalf("clients must be independent: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "signin", "10.0.0.1"); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestAllowDisabledOrNoIP(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	disabled := New(rdb, Config{Enabled: false, MaxRequests: 1, Window: time.Minute})
	enabled := New(rdb, Config{Enabled: true, MaxRequests: 1, Window: time.Minute})
	for i := 0; i < 5; i++ {
		if err := disabled.Allow(context.Background(), "signin", "10.0.0.1"); err != nil {
			t.Fatalf("disabled limiter must allow: %v", err)
		}
		if err := enabled.Allow(context.Background(), "signin", ""); err != nil {
			t.Fatalf("unknown ip must not be throttled: %v", err)
		}
	}
}
