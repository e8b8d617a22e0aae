package otpgate

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/internal/stores"
)

// Authenticate checks email and password and, on success, sends a signin code.
// The same path serves every role; there is no password-only login.
//
// Errors: ErrValidation, ErrInvalidCredentials, ErrAccountLocked (as
// *LockedError), ErrTooManyRequests, ErrDeliveryFailed, ErrInternal.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (*Challenge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil, invalidField("email", "required")
	}
	if password == "" {
		return nil, invalidField("password", "required")
	}

	if err := e.checkThrottle(ctx, "signin", email); err != nil {
		return nil, err
	}

	account, err := e.validateCredentials(ctx, email, password)
	if err != nil {
		e.emitAudit(ctx, auditEventSigninRequest, false, "", email, "", err, nil)
		return nil, err
	}

	challenge, err := e.issueCode(ctx, stores.PurposeSignin, account.Email, DeliverySigninCode, nil)
	if err != nil {
		e.emitAudit(ctx, auditEventSigninRequest, false, account.ID, account.Email, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricSigninChallenged)
	e.emitAudit(ctx, auditEventSigninRequest, true, account.ID, account.Email, "", nil, nil)

	return challenge, nil
}

// ConfirmAuthentication checks the signin code and issues a session carrying
// the account's current role. An account that became locked after the code
// was sent is refused.
func (e *Engine) ConfirmAuthentication(ctx context.Context, email, code string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil, invalidField("email", "required")
	}

	if err := e.verifyCode(ctx, stores.PurposeSignin, email, code); err != nil {
		e.emitAudit(ctx, auditEventSigninConfirm, false, "", email, "", err, nil)
		return nil, err
	}

	account, err := e.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, internalError(err)
	}
	if remaining, locked := account.LockedAt(e.now()); locked {
		e.metricInc(MetricSigninLocked)
		lockErr := &LockedError{Remaining: remaining}
		e.emitAudit(ctx, auditEventSigninConfirm, false, account.ID, email, "", lockErr, nil)
		return nil, lockErr
	}

	result, err := e.issueSession(ctx, account)
	if err != nil {
		e.emitAudit(ctx, auditEventSigninConfirm, false, account.ID, email, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricSigninSuccess)
	e.emitAudit(ctx, auditEventSigninConfirm, true, account.ID, email, result.Principal.SessionID, nil, nil)

	return result, nil
}
