package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the session backend cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned for missing, expired or undecodable sessions.
var ErrSessionNotFound = errors.New("session not found")

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store with a per-account index.
//
//	Docs: session/doc.go
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store]. prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "otp"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + ":sa:" + accountID
}

func (s *Store) watermarkKey(accountID string) string {
	return s.prefix + ":sw:" + accountID
}

// Save persists sess and indexes it under its account.
//
//	Performance: 1 MULTI with SET + SADD + EXPIRE.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session ttl must be > 0")
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	accountKey := s.accountKey(sess.AccountID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, accountKey, sess.SessionID)
		pipe.Expire(ctx, accountKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get loads a session by ID. Sessions past ExpiresAt are removed and reported
// as [ErrSessionNotFound] regardless of the Redis TTL.
//
//	Performance: 1 Redis GET on the hot path.
func (s *Store) Get(ctx context.Context, sessionID string, now time.Time) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil, ErrSessionNotFound
	}
	sess.SessionID = sessionID

	if sess.Expired(now) {
		if err := s.deleteSessionAndIndex(ctx, sess.AccountID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Delete removes a session and its index entry. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil, nil
	}
	sess.SessionID = sessionID

	if err := s.deleteSessionAndIndex(ctx, sess.AccountID, sessionID); err != nil {
		return nil, err
	}
	return sess, nil
}

// DeleteAllForAccount removes every indexed session of an account and returns
// how many records existed.
//
// A session saved between the SMEMBERS read and the delete survives this call;
// callers that need a hard cut set a watermark with InvalidateBefore first.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	accountKey := s.accountKey(accountID)

	sessionIDs, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	sessionKeys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionKeys = append(sessionKeys, s.key(sessionID))
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, sessionKeys...)
		pipe.SRem(ctx, accountKey, toAny(sessionIDs)...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return int(deleted.Val()), nil
}

// InvalidateBefore records a watermark: sessions of accountID issued before at
// are no longer valid. The marker lives for ttl, which should be at least the
// session lifetime.
func (s *Store) InvalidateBefore(ctx context.Context, accountID string, at time.Time, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.watermarkKey(accountID), at.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// InvalidBefore returns the account's watermark, if any.
func (s *Store) InvalidBefore(ctx context.Context, accountID string) (time.Time, bool, error) {
	raw, err := s.redis.Get(ctx, s.watermarkKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: invalid watermark", ErrRedisUnavailable)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// Ping checks Redis connectivity and returns the round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, accountID, sessionID string) error {
	keys := []string{s.key(sessionID), s.accountKey(accountID)}
	if _, err := deleteSessionLua.Run(ctx, s.redis, keys, sessionID).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
