package otpgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/otpgate/internal"
	"github.com/MrEthical07/otpgate/internal/stores"
)

// issueCode generates a fresh code for (purpose, email), stores its digest and
// hands the plaintext to the Deliverer. A delivery error withdraws the record.
//
// bind, when set, runs once the record is stored and before delivery; state
// tied to the code is written there so a cooldown rejection leaves it alone.
// A bind error withdraws the record.
func (e *Engine) issueCode(ctx context.Context, purpose stores.Purpose, email string, kind DeliveryKind, bind func(context.Context) error) (*Challenge, error) {
	cfg := e.config.Verification

	code, err := e.codeSource(cfg.CodeDigits)
	if err != nil {
		return nil, internalError(err)
	}
	salt, err := internal.NewSalt()
	if err != nil {
		return nil, internalError(err)
	}

	now := e.now()
	record := &stores.PendingVerification{
		Purpose:           purpose,
		Salt:              salt,
		CodeHash:          internal.HashSecret(e.config.Secrets.Pepper, salt, []byte(code)),
		IssuedAt:          now,
		ExpiresAt:         now.Add(cfg.CodeTTL),
		AttemptsRemaining: uint16(cfg.MaxAttempts),
	}

	if err := e.verifications.Issue(ctx, email, record, cfg.ResendCooldown, now); err != nil {
		var cooldown *stores.CooldownError
		if errors.As(err, &cooldown) {
			e.metricInc(MetricCodeResendBlocked)
			return nil, &CooldownError{RetryAfter: cooldown.RetryAfter}
		}
		return nil, internalError(err)
	}

	if bind != nil {
		if err := bind(ctx); err != nil {
			e.withdrawCode(ctx, purpose, email, "bind failure")
			return nil, internalError(err)
		}
	}

	err = e.deliverer.Deliver(ctx, Delivery{
		Kind:        kind,
		Destination: email,
		Secret:      code,
		ExpiresAt:   record.ExpiresAt,
	})
	if err != nil {
		e.withdrawCode(ctx, purpose, email, "delivery failure")
		e.metricInc(MetricDeliveryFailure)
		e.emitAudit(ctx, auditEventDeliveryFailed, false, "", email, "", ErrDeliveryFailed, func() map[string]string {
			return map[string]string{"kind": string(kind)}
		})
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metricInc(MetricCodeIssued)

	return &Challenge{
		Email:       email,
		Purpose:     purpose.String(),
		ExpiresAt:   record.ExpiresAt,
		ResendAfter: now.Add(cfg.ResendCooldown),
	}, nil
}

func (e *Engine) withdrawCode(ctx context.Context, purpose stores.Purpose, email, reason string) {
	if err := e.verifications.Delete(ctx, purpose, email); err != nil {
		e.logger.Printf("otpgate: withdraw %s code after %s: %v", purpose, reason, err)
	}
}

// verifyCode consumes the pending code for (purpose, email) if code matches.
func (e *Engine) verifyCode(ctx context.Context, purpose stores.Purpose, email, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return invalidField("code", "required")
	}

	pepper := e.config.Secrets.Pepper
	digest := func(salt [16]byte) [32]byte {
		return internal.HashSecret(pepper, salt, []byte(code))
	}

	err := e.verifications.Verify(ctx, purpose, email, digest, e.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrVerificationMismatch):
		e.metricInc(MetricCodeMismatch)
		return ErrCodeMismatch
	case errors.Is(err, stores.ErrVerificationAttemptsExhausted):
		e.metricInc(MetricCodeAttemptsExhausted)
		return ErrCodeAttemptsExhausted
	case errors.Is(err, stores.ErrVerificationExpired),
		errors.Is(err, stores.ErrVerificationNotFound):
		e.metricInc(MetricCodeExpired)
		return ErrCodeExpired
	default:
		return internalError(err)
	}
}
