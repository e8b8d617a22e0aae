package otpgate

import (
	"context"
	"errors"
)

const (
	auditEventSignupRequest        = "signup_request"
	auditEventSignupResend         = "signup_resend"
	auditEventSignupConfirm        = "signup_confirm"
	auditEventSigninRequest        = "signin_request"
	auditEventSigninConfirm        = "signin_confirm"
	auditEventAccountLocked        = "account_locked"
	auditEventPasswordUpgraded     = "password_hash_upgraded"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventSessionCreated       = "session_created"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventAccountProvisioned   = "account_provisioned"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventDeliveryFailed       = "delivery_failed"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrValidation          AuditErrorCode = "validation"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrCodeMismatch        AuditErrorCode = "code_mismatch"
	auditErrCodeExpired         AuditErrorCode = "code_expired"
	auditErrAttemptsExhausted   AuditErrorCode = "attempts_exhausted"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrDeliveryFailed      AuditErrorCode = "delivery_failed"
	auditErrSessionInvalidation AuditErrorCode = "session_invalidation_failed"
	auditErrUnauthorized        AuditErrorCode = "unauthorized"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	email string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		Email:     email,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, email string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", email, "", ErrTooManyRequests, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrDuplicatePhone):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrCodeAttemptsExhausted):
		return auditErrAttemptsExhausted
	case errors.Is(err, ErrTooManyRequests):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrSessionInvalidation):
		return auditErrSessionInvalidation
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}
