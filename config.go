package otpgate

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate/password"
)

// Config holds every tunable of the engine. Start from DefaultConfig and
// override what you need; Build validates the result.
type Config struct {
	// KeyPrefix namespaces every Redis key the engine writes.
	KeyPrefix     string
	Password      PasswordConfig
	Verification  VerificationConfig
	Lockout       LockoutConfig
	Session       SessionConfig
	PasswordReset PasswordResetConfig
	Throttle      ThrottleConfig
	Assertion     AssertionConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Secrets       SecretsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets Argon2id cost and the acceptance policy for new passwords.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// UpgradeOnLogin rehashes legacy or under-cost hashes after a successful
	// password check.
	UpgradeOnLogin bool
	Policy         password.Policy
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig drives the one-time codes used by signup and signin.
type VerificationConfig struct {
	CodeDigits     int
	CodeTTL        time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
}

// LockoutConfig drives the credential validator.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// SessionConfig controls issued sessions.
type SessionConfig struct {
	TTL time.Duration
}

// PasswordResetConfig controls reset tokens. RequestCooldown limits how often
// a reset can be sent to one address; throttled requests still look accepted.
type PasswordResetConfig struct {
	TokenTTL        time.Duration
	RequestCooldown time.Duration
}

// ThrottleConfig is a fixed-window budget per client IP for the request
// endpoints (signup, signin, reset). Requests without a client IP on the
// context are not counted.
type ThrottleConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

// AssertionConfig enables signed session assertions for downstream services.
type AssertionConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
}

// AuditConfig controls the asynchronous audit pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecretsConfig holds the server-side key mixed into code and reset-token
// digests. When Pepper is empty Build generates a random one, which means
// outstanding codes do not survive a restart.
type SecretsConfig struct {
	Pepper []byte
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: 6-digit codes valid for 10
// minutes with 5 attempts and a 60s resend cooldown, lockout after 5 failures
// for 2h, 7-day sessions and 1h reset tokens.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "otp",
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		Verification: VerificationConfig{
			CodeDigits:     6,
			CodeTTL:        10 * time.Minute,
			MaxAttempts:    5,
			ResendCooldown: 60 * time.Second,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  2 * time.Hour,
		},
		Session: SessionConfig{
			TTL: 7 * 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:        time.Hour,
			RequestCooldown: 60 * time.Second,
		},
		Throttle: ThrottleConfig{
			Enabled:     false,
			MaxRequests: 20,
			Window:      time.Minute,
		},
		Assertion: AssertionConfig{
			Enabled:       false,
			TTL:           5 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "otpgate",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Assertion.PrivateKey = cloneBytes(cfg.Assertion.PrivateKey)
	out.Assertion.PublicKey = cloneBytes(cfg.Assertion.PublicKey)
	out.Secrets.Pepper = cloneBytes(cfg.Secrets.Pepper)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.KeyPrefix) == "" {
		return errors.New("KeyPrefix must not be empty")
	}
	if strings.ContainsAny(c.KeyPrefix, " :") {
		return errors.New("KeyPrefix must not contain spaces or ':'")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Policy.MinLength < 1 {
		return errors.New("Password Policy MinLength must be >= 1")
	}
	if c.Password.Policy.MaxLength < c.Password.Policy.MinLength {
		return errors.New("Password Policy MaxLength must be >= MinLength")
	}

	// Verification
	if c.Verification.CodeDigits < 6 || c.Verification.CodeDigits > 10 {
		return errors.New("Verification CodeDigits must be between 6 and 10")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}
	if c.Verification.MaxAttempts <= 0 || c.Verification.MaxAttempts > 10 {
		return errors.New("Verification MaxAttempts must be between 1 and 10")
	}
	if c.Verification.ResendCooldown < 0 {
		return errors.New("Verification ResendCooldown must be >= 0")
	}
	if c.Verification.ResendCooldown >= c.Verification.CodeTTL {
		return errors.New("Verification ResendCooldown must be shorter than CodeTTL")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.RequestCooldown < 0 {
		return errors.New("PasswordReset RequestCooldown must be >= 0")
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxRequests <= 0 {
			return errors.New("Throttle MaxRequests must be > 0 when enabled")
		}
		if c.Throttle.Window <= 0 {
			return errors.New("Throttle Window must be > 0 when enabled")
		}
	}

	// Assertion
	if c.Assertion.Enabled {
		if c.Assertion.TTL <= 0 {
			return errors.New("Assertion TTL must be > 0")
		}
		if c.Assertion.TTL > c.Session.TTL {
			return errors.New("Assertion TTL must not exceed Session TTL")
		}
		switch c.Assertion.SigningMethod {
		case "ed25519", "hs256":
		default:
			return errors.New("Assertion SigningMethod must be 'ed25519' or 'hs256'")
		}
		if len(c.Assertion.PrivateKey) == 0 {
			return errors.New("Assertion PrivateKey is required when enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Secrets
	if len(c.Secrets.Pepper) > 0 && len(c.Secrets.Pepper) < 32 {
		return errors.New("Secrets Pepper must be at least 32 bytes")
	}

	return nil
}
