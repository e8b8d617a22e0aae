package identity

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicatePhone indicates the phone number is already registered.
	ErrDuplicatePhone = errors.New("phone already registered")
)

// Role is the coarse authorization level stored on an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account is a registered principal.
type Account struct {
	ID             string
	Email          string
	Phone          string
	FullName       string
	PasswordHash   string
	Role           Role
	EmailVerified  bool
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
}

// LockedAt reports whether the account is locked at now and for how long.
// A lock whose time has passed counts as cleared.
func (a Account) LockedAt(now time.Time) (time.Duration, bool) {
	if a.LockedUntil == nil || !now.Before(*a.LockedUntil) {
		return 0, false
	}
	return a.LockedUntil.Sub(now), true
}

// LockoutPolicy drives RecordFailedAttempt. Reaching Threshold consecutive
// failures locks the account for Duration and resets the counter.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// Store persists accounts. Implementations enforce email and phone uniqueness
// and make RecordFailedAttempt a single atomic step.
type Store interface {
	// Create inserts a new account. It returns ErrDuplicateEmail or
	// ErrDuplicatePhone when a unique key is taken.
	Create(ctx context.Context, account Account) error
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	// CheckAvailable reports ErrDuplicateEmail or ErrDuplicatePhone (email first)
	// without reserving anything.
	CheckAvailable(ctx context.Context, email, phone string) error
	// RecordFailedAttempt increments the failure counter and, when the policy
	// threshold is reached, sets LockedUntil = now + policy.Duration and zeroes
	// the counter. It returns the account as stored after the update.
	RecordFailedAttempt(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (Account, error)
	// ResetFailedAttempts zeroes the counter and clears LockedUntil.
	ResetFailedAttempts(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// NewAccountID returns a random UUIDv4 string.
func NewAccountID() string {
	return uuid.NewString()
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips spaces, dashes, dots and parentheses, keeping a leading '+'.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	b.Grow(len(phone))
	for i, r := range phone {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ApplyFailedAttempt is the in-memory form of RecordFailedAttempt, shared by
// stores that cannot express it in SQL.
func ApplyFailedAttempt(account *Account, policy LockoutPolicy, now time.Time) {
	account.FailedAttempts++
	if policy.Threshold > 0 && account.FailedAttempts >= policy.Threshold {
		until := now.Add(policy.Duration).UTC()
		account.LockedUntil = &until
		account.FailedAttempts = 0
	}
}
