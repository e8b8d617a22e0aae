package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited means the (scope, IP) pair spent its budget for the window.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps every backend failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config holds throttle tuning parameters.
type Config struct {
	Enabled     bool
	Prefix      string
	MaxRequests int
	Window      time.Duration
}

// Limiter enforces a fixed-window request budget per (scope, client IP).
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "otp"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow counts one request for scope from ip. Requests without a known client
// IP are not throttled.
func (l *Limiter) Allow(ctx context.Context, scope, ip string) error {
	if l == nil || !l.config.Enabled || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(scope, ip), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRequests) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) key(scope, ip string) string {
	return l.config.Prefix + ":rl:" + scope + ":" + ip
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
