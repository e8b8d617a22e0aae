package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

const tokenSize = 32

// ErrMalformedToken is returned for tokens that cannot have been issued by NewToken.
var ErrMalformedToken = errors.New("malformed session token")

// NewToken returns a fresh opaque token and the session ID derived from it.
func NewToken() (token string, sessionID string, err error) {
	var raw [tokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), idFromRaw(raw[:]), nil
}

// IDFromToken derives the session ID for a presented token.
func IDFromToken(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil || len(raw) != tokenSize {
		return "", ErrMalformedToken
	}
	return idFromRaw(raw), nil
}

func idFromRaw(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
