package otpgate

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/internal/audit"
	"github.com/MrEthical07/otpgate/internal/limiters"
	"github.com/MrEthical07/otpgate/internal/rate"
	"github.com/MrEthical07/otpgate/internal/stores"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/password"
	"github.com/MrEthical07/otpgate/session"
)

// Engine runs signup, two-factor signin, password reset and session checks.
// It is safe for concurrent use once built.
type Engine struct {
	config        Config
	identities    identity.Store
	deliverer     Deliverer
	passwordHash  *password.Argon2
	dummyHash     string
	sessions      *session.Store
	verifications *stores.VerificationStore
	staging       *stores.StagingStore
	resets        *stores.ResetStore
	resetCooldown *limiters.Cooldown
	throttle      *rate.Limiter
	assertions    *jwt.Manager
	audit         *audit.Dispatcher
	metrics       *Metrics
	now           func() time.Time
	codeSource    func(digits int) (string, error)
	logger        *log.Logger
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters. It is empty when metrics are
// disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks that Redis is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.sessions.Ping(ctx); err != nil {
		return internalError(err)
	}
	return nil
}

func (e *Engine) ready() error {
	if e == nil || e.passwordHash == nil || e.identities == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// checkThrottle applies the per-IP request budget for scope.
func (e *Engine) checkThrottle(ctx context.Context, scope, email string) error {
	err := e.throttle.Allow(ctx, scope, clientIPFromContext(ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrRateLimited) {
		e.emitRateLimit(ctx, scope, email)
		return ErrTooManyRequests
	}
	return internalError(err)
}
