package otpgate

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/internal"
	"github.com/MrEthical07/otpgate/internal/audit"
	"github.com/MrEthical07/otpgate/internal/limiters"
	"github.com/MrEthical07/otpgate/internal/rate"
	"github.com/MrEthical07/otpgate/internal/stores"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/password"
	"github.com/MrEthical07/otpgate/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be used for exactly one Build.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	identities identity.Store
	deliverer  Deliverer
	auditSink  AuditSink
	now        func() time.Time
	codeSource func(digits int) (string, error)
	logger     *log.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing codes, staging records, reset tokens,
// sessions and throttles. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the durable account store. Required.
func (b *Builder) WithIdentityStore(store identity.Store) *Builder {
	b.identities = store
	return b
}

// WithDeliverer sets how codes and reset tokens reach their owner. Required.
func (b *Builder) WithDeliverer(d Deliverer) *Builder {
	b.deliverer = d
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for every expiry, lockout and cooldown decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithCodeSource replaces the crypto/rand code generator. Only tests should need it.
func (b *Builder) WithCodeSource(source func(digits int) (string, error)) *Builder {
	b.codeSource = source
	return b
}

// WithLogger sets the logger for operational messages. Defaults to log.Default().
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}
	if b.deliverer == nil {
		return nil, errors.New("deliverer required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(cfg.Secrets.Pepper) == 0 {
		pepper := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, pepper); err != nil {
			return nil, fmt.Errorf("generate pepper: %w", err)
		}
		cfg.Secrets.Pepper = pepper
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		identities: b.identities,
		deliverer:  b.deliverer,
		now:        b.now,
		codeSource: b.codeSource,
		logger:     b.logger,
	}
	if engine.now == nil {
		engine.now = time.Now
	}
	if engine.codeSource == nil {
		engine.codeSource = internal.NewOTP
	}
	if engine.logger == nil {
		engine.logger = log.Default()
	}

	prefix := cfg.KeyPrefix
	engine.sessions = session.NewStore(b.redis, prefix)
	engine.verifications = stores.NewVerificationStore(b.redis, prefix)
	engine.staging = stores.NewStagingStore(b.redis, prefix)
	engine.resets = stores.NewResetStore(b.redis, prefix)
	engine.resetCooldown = limiters.NewCooldown(b.redis, prefix+":rcd", cfg.PasswordReset.RequestCooldown)
	engine.throttle = rate.New(b.redis, rate.Config{
		Enabled:     cfg.Throttle.Enabled,
		Prefix:      prefix,
		MaxRequests: cfg.Throttle.MaxRequests,
		Window:      cfg.Throttle.Window,
	})
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.passwordHash = ph

	// Unknown emails are verified against this hash so a miss costs the same
	// as a wrong password.
	dummy, err := ph.Hash("otpgate-dummy-credential")
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.dummyHash = dummy

	if cfg.Assertion.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Assertion.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Assertion.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Assertion.PrivateKey),
			PublicKey:     cloneBytes(cfg.Assertion.PublicKey),
			Issuer:        cfg.Assertion.Issuer,
			Audience:      cfg.Assertion.Audience,
			KeyID:         cfg.Assertion.KeyID,
			Now:           engine.now,
		})
		if err != nil {
			engine.Close()
			return nil, err
		}
		engine.assertions = jm
	}

	b.built = true

	return engine, nil
}
