package otpgate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/otpgate/identity"
)

func (e *Engine) lockoutPolicy() identity.LockoutPolicy {
	return identity.LockoutPolicy{
		Threshold: e.config.Lockout.Threshold,
		Duration:  e.config.Lockout.Duration,
	}
}

// validateCredentials checks email and password and returns the matching
// account. A correct password clears the failure counter; it never yields a
// session by itself.
func (e *Engine) validateCredentials(ctx context.Context, email, password string) (identity.Account, error) {
	account, err := e.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			_, _ = e.passwordHash.Verify(password, e.dummyHash)
			return identity.Account{}, ErrInvalidCredentials
		}
		return identity.Account{}, internalError(err)
	}

	now := e.now()
	if remaining, locked := account.LockedAt(now); locked {
		e.metricInc(MetricSigninLocked)
		return identity.Account{}, &LockedError{Remaining: remaining}
	}

	ok, err := e.passwordHash.Verify(password, account.PasswordHash)
	if err != nil {
		return identity.Account{}, internalError(err)
	}
	if !ok {
		e.metricInc(MetricSigninInvalidCredentials)

		updated, err := e.identities.RecordFailedAttempt(ctx, account.ID, e.lockoutPolicy(), now)
		if err != nil {
			return identity.Account{}, internalError(err)
		}
		if _, locked := updated.LockedAt(now); locked {
			e.metricInc(MetricAccountLocked)
			e.emitAudit(ctx, auditEventAccountLocked, true, account.ID, account.Email, "", nil, func() map[string]string {
				return map[string]string{
					"locked_until": updated.LockedUntil.UTC().Format(time.RFC3339),
					"threshold":    strconv.Itoa(e.config.Lockout.Threshold),
				}
			})
		}
		return identity.Account{}, ErrInvalidCredentials
	}

	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		if err := e.identities.ResetFailedAttempts(ctx, account.ID); err != nil {
			return identity.Account{}, internalError(err)
		}
		account.FailedAttempts = 0
		account.LockedUntil = nil
	}

	e.upgradePasswordHash(ctx, &account, password)

	return account, nil
}

// upgradePasswordHash rehashes legacy bcrypt or weaker Argon2 hashes after a
// successful password check. Failures are logged and otherwise ignored.
func (e *Engine) upgradePasswordHash(ctx context.Context, account *identity.Account, password string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}

	needsUpgrade, err := e.passwordHash.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}

	newHash, err := e.passwordHash.Hash(password)
	if err != nil {
		e.logger.Printf("otpgate: password upgrade hash failed for account %s: %v", account.ID, err)
		return
	}
	if err := e.identities.UpdatePasswordHash(ctx, account.ID, newHash); err != nil {
		e.logger.Printf("otpgate: password upgrade store failed for account %s: %v", account.ID, err)
		return
	}

	account.PasswordHash = newHash
	e.metricInc(MetricPasswordHashUpgraded)
	e.emitAudit(ctx, auditEventPasswordUpgraded, true, account.ID, account.Email, "", nil, nil)
}
