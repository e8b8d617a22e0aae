package session

import "time"

// Session is a live authenticated session. Role is a snapshot taken at issuance.
type Session struct {
	SessionID string
	AccountID string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
