package otpgate

import (
	"time"

	"github.com/MrEthical07/otpgate/identity"
)

// SignupRequest is the payload of RequestSignup.
type SignupRequest struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// ProvisionRequest creates an already-verified account without an OTP round
// trip. It is meant for operator bootstrap (the first admin), not for end users.
type ProvisionRequest struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Role     identity.Role
}

// Challenge is returned whenever a code has been issued and delivered. It never
// contains the code.
type Challenge struct {
	Email       string
	Purpose     string
	ExpiresAt   time.Time
	ResendAfter time.Time
}

// Principal is the identity an authorized session speaks for.
type Principal struct {
	AccountID string
	Role      identity.Role
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsAdmin reports whether the session was issued to an admin account.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == identity.RoleAdmin
}

// AccountView is the caller-safe projection of an account: no hash, no counters.
type AccountView struct {
	ID            string
	Email         string
	Phone         string
	FullName      string
	Role          identity.Role
	EmailVerified bool
	CreatedAt     time.Time
}

// AuthResult is returned once a code is confirmed. Token is the opaque bearer
// credential; it is shown once and never stored.
type AuthResult struct {
	Token     string
	Principal Principal
	Account   AccountView
}

func viewOf(account identity.Account) AccountView {
	return AccountView{
		ID:            account.ID,
		Email:         account.Email,
		Phone:         account.Phone,
		FullName:      account.FullName,
		Role:          account.Role,
		EmailVerified: account.EmailVerified,
		CreatedAt:     account.CreatedAt,
	}
}
