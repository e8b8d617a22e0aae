// Package serverconfig reads the otpgate-server process settings from the
// environment.
package serverconfig

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration. Engine tunables not listed here
// keep their otpgate.DefaultConfig values.
type Config struct {
	HTTPAddr        string        `env:"OTPGATE_HTTP_ADDR"        envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"OTPGATE_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustedProxies  []string      `env:"OTPGATE_TRUSTED_PROXIES"  envSeparator:","`

	RedisAddr     string `env:"OTPGATE_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"OTPGATE_REDIS_PASSWORD"`
	RedisDB       int    `env:"OTPGATE_REDIS_DB"       envDefault:"0"`
	// RedisEmbedded runs an in-process miniredis instead of dialing RedisAddr.
	// State is lost on exit.
	RedisEmbedded bool `env:"OTPGATE_REDIS_EMBEDDED" envDefault:"false"`

	// DatabaseURL selects the identity store: postgres:// or postgresql://
	// URLs use pgx, anything else is a SQLite file path.
	DatabaseURL string `env:"OTPGATE_DATABASE_URL" envDefault:"otpgate.db"`

	KeyPrefix string `env:"OTPGATE_KEY_PREFIX" envDefault:"otp"`
	Pepper    string `env:"OTPGATE_PEPPER"`

	DevLogCodes bool `env:"OTPGATE_DEV_LOG_CODES" envDefault:"false"`
	AuditLog    bool `env:"OTPGATE_AUDIT_LOG"     envDefault:"true"`
	Metrics     bool `env:"OTPGATE_METRICS"       envDefault:"true"`

	ThrottleEnabled bool          `env:"OTPGATE_THROTTLE_ENABLED" envDefault:"true"`
	ThrottleMax     int           `env:"OTPGATE_THROTTLE_MAX"     envDefault:"20"`
	ThrottleWindow  time.Duration `env:"OTPGATE_THROTTLE_WINDOW"  envDefault:"1m"`

	AssertionMethod   string        `env:"OTPGATE_ASSERTION_METHOD"   envDefault:"ed25519"`
	AssertionKey      string        `env:"OTPGATE_ASSERTION_KEY"`
	AssertionTTL      time.Duration `env:"OTPGATE_ASSERTION_TTL"      envDefault:"5m"`
	AssertionAudience string        `env:"OTPGATE_ASSERTION_AUDIENCE"`

	Admin AdminConfig `envPrefix:"OTPGATE_ADMIN_"`
}

// AdminConfig provisions one admin account at startup when Email is set.
type AdminConfig struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
	Phone    string `env:"PHONE"`
	FullName string `env:"FULL_NAME" envDefault:"Administrator"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("OTPGATE_HTTP_ADDR must not be empty")
	}
	if !c.RedisEmbedded && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("OTPGATE_REDIS_ADDR is required unless OTPGATE_REDIS_EMBEDDED is set")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("OTPGATE_DATABASE_URL must not be empty")
	}
	if c.Pepper != "" && len(c.Pepper) < 32 {
		return errors.New("OTPGATE_PEPPER must be at least 32 bytes")
	}
	if c.Admin.Email != "" && (c.Admin.Password == "" || c.Admin.Phone == "") {
		return errors.New("OTPGATE_ADMIN_PASSWORD and OTPGATE_ADMIN_PHONE are required with OTPGATE_ADMIN_EMAIL")
	}
	if c.AssertionKey != "" {
		if _, err := base64.StdEncoding.DecodeString(c.AssertionKey); err != nil {
			return fmt.Errorf("OTPGATE_ASSERTION_KEY must be base64: %w", err)
		}
	}
	return nil
}

// UsesPostgres reports whether DatabaseURL names a Postgres server.
func (c Config) UsesPostgres() bool {
	u := strings.ToLower(c.DatabaseURL)
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

// Engine maps the process settings onto the engine configuration. Assertions
// are enabled only when a key is configured.
func (c Config) Engine() otpgate.Config {
	cfg := otpgate.DefaultConfig()
	cfg.KeyPrefix = c.KeyPrefix
	if c.Pepper != "" {
		cfg.Secrets.Pepper = []byte(c.Pepper)
	}

	cfg.Throttle.Enabled = c.ThrottleEnabled
	cfg.Throttle.MaxRequests = c.ThrottleMax
	cfg.Throttle.Window = c.ThrottleWindow

	cfg.Audit.Enabled = c.AuditLog
	cfg.Metrics.Enabled = c.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Metrics

	if c.AssertionKey != "" {
		key, _ := base64.StdEncoding.DecodeString(c.AssertionKey)
		cfg.Assertion.Enabled = true
		cfg.Assertion.SigningMethod = c.AssertionMethod
		cfg.Assertion.PrivateKey = key
		cfg.Assertion.TTL = c.AssertionTTL
		cfg.Assertion.Audience = c.AssertionAudience
	}
	return cfg
}
