package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetRecordVersionV1 = 1

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetExpired          = errors.New("reset record expired")
	ErrResetConsumed         = errors.New("reset record already consumed")
	ErrResetSecretMismatch   = errors.New("reset secret mismatch")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// ResetRecord is a stored password reset grant. The consumed marker stays in
// place until the record's own expiry so replays are recognised.
type ResetRecord struct {
	AccountID  string
	Salt       [16]byte
	SecretHash [32]byte
	ExpiresAt  time.Time
	Consumed   bool
}

type ResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewResetStore(redisClient redis.UniversalClient, prefix string) *ResetStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &ResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ResetStore) key(resetID string) string {
	return s.prefix + ":rst:" + resetID
}

func (s *ResetStore) Save(ctx context.Context, resetID string, record *ResetRecord, now time.Time) error {
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return errors.New("reset record already expired")
	}

	encoded, err := encodeResetRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(resetID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Delete withdraws a grant. A missing record is not an error.
func (s *ResetStore) Delete(ctx context.Context, resetID string) error {
	if err := s.redis.Del(ctx, s.key(resetID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Check validates a presented secret without consuming the grant.
func (s *ResetStore) Check(ctx context.Context, resetID string, digest DigestFunc, now time.Time) (*ResetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(resetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	record, err := decodeResetRecord(data)
	if err != nil {
		return nil, ErrResetNotFound
	}
	if err := checkResetRecord(record, digest, now); err != nil {
		return nil, err
	}
	return record, nil
}

// Consume re-validates the grant and marks it consumed in one WATCH/MULTI
// transaction, so at most one caller ever succeeds for a given reset id.
func (s *ResetStore) Consume(ctx context.Context, resetID string, digest DigestFunc, now time.Time) (*ResetRecord, error) {
	key := s.key(resetID)

	for i := 0; i < maxTxRetries; i++ {
		var matched *ResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrResetNotFound
				}
				return err
			}

			record, err := decodeResetRecord(data)
			if err != nil {
				return ErrResetNotFound
			}

			if err := checkResetRecord(record, digest, now); err != nil {
				if errors.Is(err, ErrResetExpired) {
					if _, delErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					}); delErr != nil {
						return delErr
					}
				}
				return err
			}

			record.Consumed = true
			updated, err := encodeResetRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, record.ExpiresAt.Sub(now))
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrResetNotFound),
				errors.Is(err, ErrResetExpired),
				errors.Is(err, ErrResetConsumed),
				errors.Is(err, ErrResetSecretMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, fmt.Errorf("%w: consume contention", ErrResetRedisUnavailable)
}

func checkResetRecord(record *ResetRecord, digest DigestFunc, now time.Time) error {
	if !now.Before(record.ExpiresAt) {
		return ErrResetExpired
	}
	if record.Consumed {
		return ErrResetConsumed
	}
	provided := digest(record.Salt)
	if subtle.ConstantTimeCompare(record.SecretHash[:], provided[:]) != 1 {
		return ErrResetSecretMismatch
	}
	return nil
}

func encodeResetRecord(record *ResetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)
	if record.Consumed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("reset record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.Salt[:])
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeResetRecord(data []byte) (*ResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	consumed, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &ResetRecord{Consumed: consumed == 1}

	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	record.ExpiresAt = time.UnixMilli(expiresAt).UTC()

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	accountID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.Salt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
