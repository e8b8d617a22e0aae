package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// SaltSize is the length of the per-record salt mixed into every stored digest.
const SaltSize = 16

const (
	resetIDSize       = 16
	resetSecretSize   = 32
	resetTokenRawSize = resetIDSize + resetSecretSize
)

// ErrMalformedResetToken is returned when a reset token cannot be decoded.
var ErrMalformedResetToken = errors.New("malformed reset token")

// ResetID identifies a stored reset record. Its string form is the Redis key suffix.
type ResetID [resetIDSize]byte

func (r ResetID) String() string {
	return base64.RawURLEncoding.EncodeToString(r[:])
}

// NewOTP returns a numeric one-time code of the given length drawn from crypto/rand.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

func NewSalt() ([SaltSize]byte, error) {
	var salt [SaltSize]byte
	_, err := rand.Read(salt[:])
	return salt, err
}

// HashSecret computes HMAC-SHA256(pepper, salt || secret). The same function
// digests OTP codes and reset secrets; only the digest is ever persisted.
func HashSecret(pepper []byte, salt [SaltSize]byte, secret []byte) [32]byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write(salt[:])
	mac.Write(secret)

	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// NewResetToken generates a reset id and secret and returns them together
// with the encoded token handed to the account holder.
func NewResetToken() (ResetID, [resetSecretSize]byte, string, error) {
	var rid ResetID
	var secret [resetSecretSize]byte

	if _, err := rand.Read(rid[:]); err != nil {
		return rid, secret, "", err
	}
	if _, err := rand.Read(secret[:]); err != nil {
		return rid, secret, "", err
	}

	var raw [resetTokenRawSize]byte
	copy(raw[:resetIDSize], rid[:])
	copy(raw[resetIDSize:], secret[:])

	return rid, secret, base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeResetToken splits a token produced by NewResetToken.
func DecodeResetToken(token string) (ResetID, [resetSecretSize]byte, error) {
	var rid ResetID
	var secret [resetSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return rid, secret, ErrMalformedResetToken
	}
	if len(raw) != resetTokenRawSize {
		return rid, secret, ErrMalformedResetToken
	}

	copy(rid[:], raw[:resetIDSize])
	copy(secret[:], raw[resetIDSize:])
	return rid, secret, nil
}
