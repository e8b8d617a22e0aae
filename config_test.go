package otpgate

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	if cfg.Verification.CodeDigits != 6 || cfg.Verification.CodeTTL != 10*time.Minute ||
		cfg.Verification.MaxAttempts != 5 || cfg.Verification.ResendCooldown != time.Minute {
		t.Fatalf("unexpected verification defaults: %+v", cfg.Verification)
	}
	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Duration != 2*time.Hour {
		t.Fatalf("unexpected lockout defaults: %+v", cfg.Lockout)
	}
	if cfg.Session.TTL != 7*24*time.Hour || cfg.PasswordReset.TokenTTL != time.Hour {
		t.Fatalf("unexpected lifetime defaults")
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty prefix", func(c *Config) { c.KeyPrefix = " " }, "KeyPrefix"},
		{"prefix with colon", func(c *Config) { c.KeyPrefix = "a:b" }, "KeyPrefix"},
		{"low argon memory", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"zero argon time", func(c *Config) { c.Password.Time = 0 }, "Time"},
		{"short salt", func(c *Config) { c.Password.SaltLength = 8 }, "SaltLength"},
		{"policy max below min", func(c *Config) { c.Password.Policy.MaxLength = 4 }, "MaxLength"},
		{"five digit codes", func(c *Config) { c.Verification.CodeDigits = 5 }, "CodeDigits"},
		{"zero code ttl", func(c *Config) { c.Verification.CodeTTL = 0 }, "CodeTTL"},
		{"zero attempts", func(c *Config) { c.Verification.MaxAttempts = 0 }, "MaxAttempts"},
		{"cooldown longer than ttl", func(c *Config) { c.Verification.ResendCooldown = time.Hour }, "ResendCooldown"},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }, "Threshold"},
		{"zero lockout duration", func(c *Config) { c.Lockout.Duration = 0 }, "Lockout Duration"},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }, "Session TTL"},
		{"zero reset ttl", func(c *Config) { c.PasswordReset.TokenTTL = 0 }, "TokenTTL"},
		{"throttle without budget", func(c *Config) {
			c.Throttle.Enabled = true
			c.Throttle.MaxRequests = 0
		}, "MaxRequests"},
		{"assertion without key", func(c *Config) { c.Assertion.Enabled = true }, "PrivateKey"},
		{"assertion outlives session", func(c *Config) {
			c.Assertion.Enabled = true
			c.Assertion.PrivateKey = bytes.Repeat([]byte("x"), 32)
			c.Assertion.TTL = 8 * 24 * time.Hour
		}, "exceed"},
		{"assertion unknown method", func(c *Config) {
			c.Assertion.Enabled = true
			c.Assertion.PrivateKey = bytes.Repeat([]byte("x"), 32)
			c.Assertion.SigningMethod = "rs256"
		}, "SigningMethod"},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, "BufferSize"},
		{"short pepper", func(c *Config) { c.Secrets.Pepper = []byte("short") }, "Pepper"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCloneConfigCopiesByteSlices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secrets.Pepper = bytes.Repeat([]byte("p"), 32)
	cfg.Assertion.PrivateKey = []byte("private")

	out := cloneConfig(cfg)
	cfg.Secrets.Pepper[0] = 'X'
	cfg.Assertion.PrivateKey[0] = 'X'

	if out.Secrets.Pepper[0] != 'p' || out.Assertion.PrivateKey[0] != 'p' {
		t.Fatalf("clone shares backing arrays with the source")
	}
}
