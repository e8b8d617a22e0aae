package otpgate

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/internal/stores"
)

// RequestSignup validates a signup payload, stages it and sends a signup code
// to the email address. No account exists until ConfirmSignup succeeds.
//
// Errors: ErrValidation, ErrDuplicateEmail, ErrDuplicatePhone,
// ErrTooManyRequests, ErrDeliveryFailed, ErrInternal.
func (e *Engine) RequestSignup(ctx context.Context, req SignupRequest) (*Challenge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := identity.NormalizeEmail(req.Email)
	phone := identity.NormalizePhone(req.Phone)
	fullName := strings.TrimSpace(req.FullName)

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}
	if err := e.validatePassword(req.Password); err != nil {
		return nil, err
	}

	if err := e.checkThrottle(ctx, "signup", email); err != nil {
		return nil, err
	}

	if err := e.identities.CheckAvailable(ctx, email, phone); err != nil {
		err = mapIdentityError(err)
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicatePhone) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupRequest, false, "", email, "", err, nil)
		}
		return nil, err
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, internalError(err)
	}

	staging := &stores.SignupStaging{
		FullName:     fullName,
		Phone:        phone,
		PasswordHash: hash,
	}
	// The payload belongs to the code that is delivered with it; a request the
	// resend cooldown refuses must not touch it.
	stage := func(ctx context.Context) error {
		return e.staging.Save(ctx, email, staging, e.config.Verification.CodeTTL)
	}
	challenge, err := e.issueCode(ctx, stores.PurposeSignup, email, DeliverySignupCode, stage)
	if err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			if delErr := e.staging.Delete(ctx, email); delErr != nil {
				e.logger.Printf("otpgate: drop signup staging after delivery failure: %v", delErr)
			}
		}
		e.emitAudit(ctx, auditEventSignupRequest, false, "", email, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricSignupRequested)
	e.emitAudit(ctx, auditEventSignupRequest, true, "", email, "", nil, nil)

	return challenge, nil
}

// ResendSignupCode issues a new signup code for a pending signup, subject to
// the resend cooldown, and extends the staged payload to match.
func (e *Engine) ResendSignupCode(ctx context.Context, email string) (*Challenge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = identity.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	if err := e.checkThrottle(ctx, "signup", email); err != nil {
		return nil, err
	}

	if _, err := e.staging.Get(ctx, email); err != nil {
		if errors.Is(err, stores.ErrStagingNotFound) {
			return nil, ErrCodeExpired
		}
		return nil, internalError(err)
	}

	challenge, err := e.issueCode(ctx, stores.PurposeSignup, email, DeliverySignupCode, nil)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupResend, false, "", email, "", err, nil)
		return nil, err
	}

	if err := e.staging.Extend(ctx, email, e.config.Verification.CodeTTL); err != nil {
		if errors.Is(err, stores.ErrStagingNotFound) {
			return nil, ErrCodeExpired
		}
		return nil, internalError(err)
	}

	e.emitAudit(ctx, auditEventSignupResend, true, "", email, "", nil, nil)

	return challenge, nil
}

// ConfirmSignup checks the signup code, creates the verified account and signs
// it in.
//
// Errors: ErrValidation, ErrCodeMismatch, ErrCodeExpired,
// ErrCodeAttemptsExhausted, ErrDuplicateEmail, ErrDuplicatePhone, ErrInternal.
func (e *Engine) ConfirmSignup(ctx context.Context, email, code string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = identity.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	if err := e.verifyCode(ctx, stores.PurposeSignup, email, code); err != nil {
		e.emitAudit(ctx, auditEventSignupConfirm, false, "", email, "", err, nil)
		return nil, err
	}

	staged, err := e.staging.Take(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrStagingNotFound) {
			e.emitAudit(ctx, auditEventSignupConfirm, false, "", email, "", ErrCodeExpired, nil)
			return nil, ErrCodeExpired
		}
		return nil, internalError(err)
	}

	account := identity.Account{
		ID:            identity.NewAccountID(),
		Email:         email,
		Phone:         staged.Phone,
		FullName:      staged.FullName,
		PasswordHash:  staged.PasswordHash,
		Role:          identity.RoleUser,
		EmailVerified: true,
		CreatedAt:     e.now().UTC(),
	}
	if err := e.identities.Create(ctx, account); err != nil {
		err = mapIdentityError(err)
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicatePhone) {
			e.metricInc(MetricSignupDuplicate)
		}
		e.emitAudit(ctx, auditEventSignupConfirm, false, "", email, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricSignupConfirmed)
	e.emitAudit(ctx, auditEventSignupConfirm, true, account.ID, email, "", nil, nil)

	return e.issueSession(ctx, account)
}

func mapIdentityError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrDuplicateEmail):
		return ErrDuplicateEmail
	case errors.Is(err, identity.ErrDuplicatePhone):
		return ErrDuplicatePhone
	default:
		return internalError(err)
	}
}
