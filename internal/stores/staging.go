package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const stagingRecordVersionV1 = 1

var (
	ErrStagingNotFound         = errors.New("signup staging record not found")
	ErrStagingRedisUnavailable = errors.New("signup staging redis unavailable")
)

// SignupStaging holds the validated signup payload between the signup request
// and its code confirmation. The password is already hashed.
type SignupStaging struct {
	FullName     string
	Phone        string
	PasswordHash string
}

type StagingStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStagingStore(redisClient redis.UniversalClient, prefix string) *StagingStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &StagingStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *StagingStore) key(email string) string {
	return s.prefix + ":stg:" + email
}

// Save writes (or replaces) the staging record for email.
func (s *StagingStore) Save(ctx context.Context, email string, record *SignupStaging, ttl time.Duration) error {
	encoded, err := encodeSignupStaging(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStagingRedisUnavailable, err)
	}
	return nil
}

func (s *StagingStore) Get(ctx context.Context, email string) (*SignupStaging, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStagingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStagingRedisUnavailable, err)
	}
	return decodeSignupStaging(data)
}

// Take atomically reads and deletes the staging record.
func (s *StagingStore) Take(ctx context.Context, email string) (*SignupStaging, error) {
	data, err := s.redis.GetDel(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStagingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStagingRedisUnavailable, err)
	}
	return decodeSignupStaging(data)
}

// Extend pushes the staging record's expiry out to ttl from now. It reports
// ErrStagingNotFound when the record is already gone.
func (s *StagingStore) Extend(ctx context.Context, email string, ttl time.Duration) error {
	ok, err := s.redis.Expire(ctx, s.key(email), ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStagingRedisUnavailable, err)
	}
	if !ok {
		return ErrStagingNotFound
	}
	return nil
}

func (s *StagingStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStagingRedisUnavailable, err)
	}
	return nil
}

func encodeSignupStaging(record *SignupStaging) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(stagingRecordVersionV1)

	for _, field := range []string{record.FullName, record.Phone, record.PasswordHash} {
		if len(field) > 65535 {
			return nil, errors.New("signup staging field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeSignupStaging(data []byte) (*SignupStaging, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != stagingRecordVersionV1 {
		return nil, errors.New("invalid signup staging version")
	}

	fields := make([]string, 3)
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		fields[i] = string(raw)
	}

	return &SignupStaging{
		FullName:     fields[0],
		Phone:        fields[1],
		PasswordHash: fields[2],
	}, nil
}
