package otpgate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks malformed caller input. The concrete error is a *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateEmail is returned when the email already belongs to an account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicatePhone is returned when the phone already belongs to an account.
	ErrDuplicatePhone = errors.New("phone already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while LockedUntil is in the future. The
	// concrete error is a *LockedError carrying the remaining time.
	ErrAccountLocked = errors.New("account locked")
	// ErrCodeMismatch is returned for a wrong code while attempts remain.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrCodeExpired is returned when no live code exists: never issued,
	// expired, or already used.
	ErrCodeExpired = errors.New("verification code expired or not found")
	// ErrCodeAttemptsExhausted is returned when the last attempt was spent.
	// The code is gone; a new one must be requested.
	ErrCodeAttemptsExhausted = errors.New("verification attempts exhausted")
	// ErrTooManyRequests is returned by the resend governor and the request
	// throttle. Cooldown rejections carry a *CooldownError.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrInvalidOrExpiredToken is returned for any unusable reset token.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrDeliveryFailed means the secret was generated but the Deliverer
	// failed. The pending record has been withdrawn.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrSessionInvalidation means a password was changed but existing
	// sessions could not all be revoked.
	ErrSessionInvalidation = errors.New("session invalidation failed")
	// ErrUnauthorized is returned by Authorize and assertion checks.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInternal wraps store and transport failures.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrAssertionsDisabled is returned by IssueAssertion when no signing key is configured.
	ErrAssertionsDisabled = errors.New("session assertions disabled")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LockedError reports how long an account stays locked.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %s", e.Remaining.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// CooldownError reports how long the caller must wait before retrying.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrTooManyRequests
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func internalError(err error) error {
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func sessionInvalidationError(err error) error {
	return fmt.Errorf("%w: %v", ErrSessionInvalidation, err)
}
