package otpgate

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/session"
)

// issueSession creates a session for account and returns the bearer token.
// The role is copied from the account at this moment.
func (e *Engine) issueSession(ctx context.Context, account identity.Account) (*AuthResult, error) {
	token, sessionID, err := session.NewToken()
	if err != nil {
		return nil, internalError(err)
	}

	now := e.now()
	ttl := e.config.Session.TTL
	sess := &session.Session{
		SessionID: sessionID,
		AccountID: account.ID,
		Role:      string(account.Role),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := e.sessions.Save(ctx, sess, ttl); err != nil {
		return nil, internalError(err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, account.ID, account.Email, sessionID, nil, nil)

	return &AuthResult{
		Token:     token,
		Principal: principalOf(sess),
		Account:   viewOf(account),
	}, nil
}

// Authorize resolves a bearer token to the principal it speaks for. Unknown,
// expired and revoked sessions all yield ErrUnauthorized.
func (e *Engine) Authorize(ctx context.Context, token string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
		}()
	}

	sessionID, err := session.IDFromToken(token)
	if err != nil {
		e.metricInc(MetricAuthorizeFailure)
		return nil, ErrUnauthorized
	}

	sess, err := e.sessions.Get(ctx, sessionID, e.now())
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			e.metricInc(MetricAuthorizeFailure)
			return nil, ErrUnauthorized
		}
		return nil, internalError(err)
	}

	watermark, ok, err := e.sessions.InvalidBefore(ctx, sess.AccountID)
	if err != nil {
		return nil, internalError(err)
	}
	if ok && sess.IssuedAt.Before(watermark) {
		e.metricInc(MetricAuthorizeFailure)
		return nil, ErrUnauthorized
	}

	p := principalOf(sess)
	return &p, nil
}

// SignOut ends the session behind token. Unknown or malformed tokens are a no-op.
func (e *Engine) SignOut(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	sessionID, err := session.IDFromToken(token)
	if err != nil {
		return nil
	}

	sess, err := e.sessions.Delete(ctx, sessionID)
	if err != nil {
		return internalError(err)
	}
	if sess == nil {
		return nil
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, sess.AccountID, "", sessionID, nil, nil)
	return nil
}

// SignOutAll ends every session of accountID, including any created while the
// call is in flight.
func (e *Engine) SignOutAll(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return invalidField("account_id", "required")
	}

	n, err := e.invalidateSessions(ctx, accountID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, accountID, "", "", err, nil)
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, accountID, "", "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return nil
}

// invalidateSessions writes the account watermark and then deletes every
// indexed session. Errors are reported as ErrSessionInvalidation.
func (e *Engine) invalidateSessions(ctx context.Context, accountID string) (int, error) {
	if err := e.sessions.InvalidateBefore(ctx, accountID, e.now(), e.config.Session.TTL); err != nil {
		return 0, sessionInvalidationError(err)
	}
	n, err := e.sessions.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return 0, sessionInvalidationError(err)
	}
	e.metrics.Add(MetricSessionInvalidated, uint64(n))
	return n, nil
}

// IssueAssertion signs a short-lived JWT for the session behind token so that
// other services can check it without calling back. The assertion never
// outlives the session.
func (e *Engine) IssueAssertion(ctx context.Context, token string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if e.assertions == nil {
		return "", ErrAssertionsDisabled
	}

	p, err := e.Authorize(ctx, token)
	if err != nil {
		return "", err
	}

	signed, _, err := e.assertions.Issue(p.AccountID, p.SessionID, string(p.Role), p.ExpiresAt)
	if err != nil {
		return "", internalError(err)
	}
	return signed, nil
}

// VerifyAssertion checks an assertion's signature and claims. It does not
// consult Redis, so a revoked session stays asserted until the assertion expires.
func (e *Engine) VerifyAssertion(_ context.Context, assertion string) (*Principal, error) {
	if e == nil || e.assertions == nil {
		return nil, ErrAssertionsDisabled
	}

	claims, err := e.assertions.Parse(assertion)
	if err != nil {
		return nil, ErrUnauthorized
	}

	p := &Principal{
		AccountID: claims.Subject,
		Role:      identity.Role(claims.Role),
		SessionID: claims.SID,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

func principalOf(sess *session.Session) Principal {
	return Principal{
		AccountID: sess.AccountID,
		Role:      identity.Role(sess.Role),
		SessionID: sess.SessionID,
		IssuedAt:  sess.IssuedAt,
		ExpiresAt: sess.ExpiresAt,
	}
}
