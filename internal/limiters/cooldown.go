package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCooldownActive is returned when a key was acquired less than one window ago.
	ErrCooldownActive = errors.New("cooldown active")
	// ErrCooldownUnavailable indicates the cooldown backend is unreachable.
	ErrCooldownUnavailable = errors.New("cooldown backend unavailable")
)

// Cooldown allows at most one acquisition per key per window.
type Cooldown struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
}

// NewCooldown creates a cooldown limiter. A zero window disables it.
func NewCooldown(redisClient redis.UniversalClient, prefix string, window time.Duration) *Cooldown {
	return &Cooldown{redis: redisClient, prefix: prefix, window: window}
}

func (c *Cooldown) key(subject string) string {
	return c.prefix + ":" + subject
}

// Acquire claims the window for subject. When the window is already held it
// returns ErrCooldownActive together with the time left on it.
func (c *Cooldown) Acquire(ctx context.Context, subject string) (time.Duration, error) {
	if c == nil || c.window <= 0 || subject == "" {
		return 0, nil
	}

	key := c.key(subject)
	ok, err := c.redis.SetNX(ctx, key, 1, c.window).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	if ok {
		return 0, nil
	}

	remaining, err := c.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	if remaining < 0 {
		remaining = c.window
	}
	return remaining, ErrCooldownActive
}

// Release drops the window for subject so the next Acquire succeeds.
func (c *Cooldown) Release(ctx context.Context, subject string) error {
	if c == nil || c.window <= 0 || subject == "" {
		return nil
	}
	if err := c.redis.Del(ctx, c.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	return nil
}
