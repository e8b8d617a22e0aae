package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// recordV1 layout:
//
//	version(1) | len(1) accountID | len(1) role | issuedAt ms(8) | expiresAt ms(8)
const recordV1 = 1

// ErrMalformedRecord is returned by Decode for any record it cannot parse.
var ErrMalformedRecord = errors.New("session: malformed record")

// Encode serializes s into the compact record stored in Redis. The session ID
// is the key and is not part of the record.
func Encode(s *Session) ([]byte, error) {
	for name, v := range map[string]string{"account id": s.AccountID, "role": s.Role} {
		if len(v) > 255 {
			return nil, fmt.Errorf("session: %s longer than 255 bytes", name)
		}
	}

	out := make([]byte, 0, 3+len(s.AccountID)+len(s.Role)+16)
	out = append(out, recordV1)
	out = appendShort(out, s.AccountID)
	out = appendShort(out, s.Role)
	out = binary.BigEndian.AppendUint64(out, uint64(s.IssuedAt.UnixMilli()))
	out = binary.BigEndian.AppendUint64(out, uint64(s.ExpiresAt.UnixMilli()))
	return out, nil
}

func appendShort(out []byte, v string) []byte {
	out = append(out, byte(len(v)))
	return append(out, v...)
}

// Decode parses a record produced by Encode.
func Decode(data []byte) (*Session, error) {
	if len(data) == 0 || data[0] != recordV1 {
		return nil, fmt.Errorf("%w: unknown version", ErrMalformedRecord)
	}
	rest := data[1:]

	accountID, rest, ok := readShort(rest)
	if !ok {
		return nil, fmt.Errorf("%w: account id", ErrMalformedRecord)
	}
	role, rest, ok := readShort(rest)
	if !ok {
		return nil, fmt.Errorf("%w: role", ErrMalformedRecord)
	}
	if len(rest) != 16 {
		return nil, fmt.Errorf("%w: want 16 timestamp bytes, got %d", ErrMalformedRecord, len(rest))
	}

	return &Session{
		AccountID: accountID,
		Role:      role,
		IssuedAt:  time.UnixMilli(int64(binary.BigEndian.Uint64(rest[:8]))).UTC(),
		ExpiresAt: time.UnixMilli(int64(binary.BigEndian.Uint64(rest[8:]))).UTC(),
	}, nil
}

func readShort(b []byte) (string, []byte, bool) {
	if len(b) == 0 || len(b) < 1+int(b[0]) {
		return "", nil, false
	}
	n := int(b[0])
	return string(b[1 : 1+n]), b[1+n:], true
}
