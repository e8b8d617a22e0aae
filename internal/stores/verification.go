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

const (
	verificationRecordVersionV1 = 1
	maxTxRetries                = 4
)

var (
	ErrVerificationNotFound          = errors.New("verification record not found")
	ErrVerificationExpired           = errors.New("verification record expired")
	ErrVerificationMismatch          = errors.New("verification code mismatch")
	ErrVerificationAttemptsExhausted = errors.New("verification attempts exhausted")
	ErrVerificationCooldown          = errors.New("verification resend cooldown active")
	ErrVerificationRedisUnavailable  = errors.New("verification redis unavailable")
)

// Purpose separates signup and signin challenges for the same email.
type Purpose uint8

const (
	PurposeSignup Purpose = 1
	PurposeSignin Purpose = 2
)

func (p Purpose) String() string {
	switch p {
	case PurposeSignup:
		return "signup"
	case PurposeSignin:
		return "signin"
	default:
		return "unknown"
	}
}

// CooldownError reports how long a caller must wait before a new code is issued.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrVerificationCooldown, e.RetryAfter)
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrVerificationCooldown
}

// PendingVerification is an outstanding one-time code challenge. Only the salted
// digest of the code is stored.
type PendingVerification struct {
	Purpose           Purpose
	Salt              [16]byte
	CodeHash          [32]byte
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptsRemaining uint16
}

// DigestFunc recomputes a submitted code's digest with the record's salt.
type DigestFunc func(salt [16]byte) [32]byte

// VerificationStore keeps at most one pending verification per (purpose, email).
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationStore(redisClient redis.UniversalClient, prefix string) *VerificationStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &VerificationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *VerificationStore) key(purpose Purpose, email string) string {
	return s.prefix + ":v:" + purpose.String() + ":" + email
}

// Issue replaces any prior record for (record.Purpose, email). When the prior
// record is still live and was issued less than cooldown ago, Issue returns a
// *CooldownError and leaves the prior record untouched. Expired records never
// block a new issue.
func (s *VerificationStore) Issue(
	ctx context.Context,
	email string,
	record *PendingVerification,
	cooldown time.Duration,
	now time.Time,
) error {
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return errors.New("verification record already expired")
	}

	encoded, err := encodePendingVerification(record)
	if err != nil {
		return err
	}

	key := s.key(record.Purpose, email)

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				prior, decErr := decodePendingVerification(data)
				if decErr == nil && now.Before(prior.ExpiresAt) {
					if elapsed := now.Sub(prior.IssuedAt); elapsed < cooldown {
						return &CooldownError{RetryAfter: cooldown - elapsed}
					}
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrVerificationCooldown) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: issue contention", ErrVerificationRedisUnavailable)
}

// Verify checks a submitted code against the pending record in one WATCH/MULTI
// transaction. A match deletes the record, a mismatch spends one attempt and the
// last failed attempt deletes it. Expired records are deleted on sight.
func (s *VerificationStore) Verify(
	ctx context.Context,
	purpose Purpose,
	email string,
	digest DigestFunc,
	now time.Time,
) error {
	key := s.key(purpose, email)

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrVerificationNotFound
				}
				return err
			}

			record, err := decodePendingVerification(data)
			if err != nil {
				if _, delErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); delErr != nil {
					return delErr
				}
				return ErrVerificationNotFound
			}

			if !now.Before(record.ExpiresAt) {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return ErrVerificationExpired
			}

			provided := digest(record.Salt)
			if subtle.ConstantTimeCompare(record.CodeHash[:], provided[:]) != 1 {
				if record.AttemptsRemaining > 0 {
					record.AttemptsRemaining--
				}
				if record.AttemptsRemaining == 0 {
					if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					}); err != nil {
						return err
					}
					return ErrVerificationAttemptsExhausted
				}

				updated, err := encodePendingVerification(record)
				if err != nil {
					return err
				}
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, record.ExpiresAt.Sub(now))
					return nil
				}); err != nil {
					return err
				}
				return ErrVerificationMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrVerificationNotFound),
				errors.Is(err, ErrVerificationExpired),
				errors.Is(err, ErrVerificationMismatch),
				errors.Is(err, ErrVerificationAttemptsExhausted):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: verify contention", ErrVerificationRedisUnavailable)
}

// Get returns the pending record without consuming it. Expired records are
// reported as ErrVerificationExpired.
func (s *VerificationStore) Get(ctx context.Context, purpose Purpose, email string, now time.Time) (*PendingVerification, error) {
	data, err := s.redis.Get(ctx, s.key(purpose, email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVerificationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}

	record, err := decodePendingVerification(data)
	if err != nil {
		return nil, ErrVerificationNotFound
	}
	if !now.Before(record.ExpiresAt) {
		return nil, ErrVerificationExpired
	}
	return record, nil
}

// Delete removes the pending record. Missing records are not an error.
func (s *VerificationStore) Delete(ctx context.Context, purpose Purpose, email string) error {
	if err := s.redis.Del(ctx, s.key(purpose, email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}
	return nil
}

func encodePendingVerification(record *PendingVerification) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(verificationRecordVersionV1)
	buf.WriteByte(byte(record.Purpose))

	if err := binary.Write(&buf, binary.BigEndian, record.AttemptsRemaining); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	buf.Write(record.Salt[:])
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodePendingVerification(data []byte) (*PendingVerification, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != verificationRecordVersionV1 {
		return nil, errors.New("invalid verification record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &PendingVerification{Purpose: Purpose(purpose)}

	if err := binary.Read(reader, binary.BigEndian, &record.AttemptsRemaining); err != nil {
		return nil, err
	}

	var issuedAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	record.IssuedAt = time.UnixMilli(issuedAt).UTC()
	record.ExpiresAt = time.UnixMilli(expiresAt).UTC()

	if _, err := io.ReadFull(reader, record.Salt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
