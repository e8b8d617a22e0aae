package otpgate

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/internal"
	"github.com/MrEthical07/otpgate/internal/limiters"
	"github.com/MrEthical07/otpgate/internal/stores"
)

// RequestPasswordReset sends a reset token to email if an account owns it.
//
// The result does not depend on whether the account exists: unknown emails,
// malformed emails, throttled callers and cooldown hits all return nil. Only a
// failure to look the account up is returned, since it happens before the
// existence branch. Later failures are logged; a token that was not delivered
// is withdrawn and the cooldown released, so an immediate retry can send one.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)

	email = identity.NormalizeEmail(email)
	if validateEmail(email) != nil {
		return nil
	}

	if err := e.checkThrottle(ctx, "reset", email); err != nil {
		if errors.Is(err, ErrTooManyRequests) {
			return nil
		}
		return err
	}

	account, err := e.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", email, "", nil, func() map[string]string {
				return map[string]string{"outcome": "unknown_email"}
			})
			return nil
		}
		return internalError(err)
	}

	if _, err := e.resetCooldown.Acquire(ctx, account.Email); err != nil {
		if !errors.Is(err, limiters.ErrCooldownActive) {
			e.logger.Printf("otpgate: reset cooldown: %v", err)
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, email, "", ErrTooManyRequests, nil)
		return nil
	}

	if err := e.sendResetToken(ctx, account); err != nil {
		e.logger.Printf("otpgate: reset token for account %s: %v", account.ID, err)
		if relErr := e.resetCooldown.Release(ctx, account.Email); relErr != nil {
			e.logger.Printf("otpgate: release reset cooldown: %v", relErr)
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, email, "", err, nil)
		return nil
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, email, "", nil, nil)
	return nil
}

func (e *Engine) sendResetToken(ctx context.Context, account identity.Account) error {
	resetID, secret, token, err := internal.NewResetToken()
	if err != nil {
		return internalError(err)
	}
	salt, err := internal.NewSalt()
	if err != nil {
		return internalError(err)
	}

	now := e.now()
	record := &stores.ResetRecord{
		AccountID:  account.ID,
		Salt:       salt,
		SecretHash: internal.HashSecret(e.config.Secrets.Pepper, salt, secret[:]),
		ExpiresAt:  now.Add(e.config.PasswordReset.TokenTTL),
	}
	if err := e.resets.Save(ctx, resetID.String(), record, now); err != nil {
		return internalError(err)
	}

	err = e.deliverer.Deliver(ctx, Delivery{
		Kind:        DeliveryResetToken,
		Destination: account.Email,
		Secret:      token,
		ExpiresAt:   record.ExpiresAt,
	})
	if err != nil {
		if delErr := e.resets.Delete(ctx, resetID.String()); delErr != nil {
			e.logger.Printf("otpgate: withdraw reset token after delivery failure: %v", delErr)
		}
		e.metricInc(MetricDeliveryFailure)
		e.emitAudit(ctx, auditEventDeliveryFailed, false, account.ID, account.Email, "", ErrDeliveryFailed, func() map[string]string {
			return map[string]string{"kind": string(DeliveryResetToken)}
		})
		return errors.Join(ErrDeliveryFailed, err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password using a reset token, then revokes
// every session of the account. A token works once.
//
// A token is only spent once the new password passes the policy, so a rejected
// password can be retried with the same token.
//
// Errors: ErrInvalidOrExpiredToken, ErrValidation, ErrSessionInvalidation
// (the password has changed but some sessions may survive), ErrInternal.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	err := e.confirmPasswordReset(ctx, token, newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", "", err, nil)
		return err
	}
	return nil
}

func (e *Engine) confirmPasswordReset(ctx context.Context, token, newPassword string) error {
	resetID, secret, err := internal.DecodeResetToken(token)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	pepper := e.config.Secrets.Pepper
	digest := func(salt [16]byte) [32]byte {
		return internal.HashSecret(pepper, salt, secret[:])
	}

	if _, err := e.resets.Check(ctx, resetID.String(), digest, e.now()); err != nil {
		return mapResetError(err)
	}

	if err := e.validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return internalError(err)
	}

	record, err := e.resets.Consume(ctx, resetID.String(), digest, e.now())
	if err != nil {
		return mapResetError(err)
	}

	if err := e.identities.UpdatePasswordHash(ctx, record.AccountID, hash); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return internalError(err)
	}

	if _, err := e.invalidateSessions(ctx, record.AccountID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, record.AccountID, "", "", nil, nil)
	return nil
}

func mapResetError(err error) error {
	switch {
	case errors.Is(err, stores.ErrResetNotFound),
		errors.Is(err, stores.ErrResetExpired),
		errors.Is(err, stores.ErrResetConsumed),
		errors.Is(err, stores.ErrResetSecretMismatch):
		return ErrInvalidOrExpiredToken
	default:
		return internalError(err)
	}
}
