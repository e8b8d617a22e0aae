package otpgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate/identity"
	"golang.org/x/crypto/bcrypt"
)

func TestSigninRequiresCode(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	account := h.provision(t, "user@x.com", "01710000000", identity.RoleUser)

	h.codes.push("975310")
	challenge, err := h.engine.Authenticate(ctx, "user@x.com", testPassword)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if challenge.Purpose != "signin" {
		t.Fatalf("expected signin challenge, got %+v", challenge)
	}
	if d := h.deliverer.last(t, DeliverySigninCode); d.Secret != "975310" || d.Destination != "user@x.com" {
		t.Fatalf("unexpected delivery: %+v", d)
	}

	if _, err := h.engine.ConfirmAuthentication(ctx, "user@x.com", "000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	res, err := h.engine.ConfirmAuthentication(ctx, "user@x.com", "975310")
	if err != nil {
		t.Fatalf("confirm authentication: %v", err)
	}
	if res.Principal.AccountID != account.ID || res.Account.Email != "user@x.com" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := h.engine.ConfirmAuthentication(ctx, "user@x.com", "975310"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected single use, got %v", err)
	}
}

func TestSigninUnknownEmailLooksLikeWrongPassword(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	h.provision(t, "known@x.com", "01710000001", identity.RoleUser)

	_, unknownErr := h.engine.Authenticate(ctx, "ghost@x.com", testPassword)
	_, wrongErr := h.engine.Authenticate(ctx, "known@x.com", "Wrong1234")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error text must not reveal which case happened")
	}
	if n := h.deliverer.count(DeliverySigninCode); n != 0 {
		t.Fatalf("no code expected, got %d", n)
	}
}

func TestLockoutScenario(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	h.provision(t, "b@x.com", "01710000002", identity.RoleUser)

	for i := 0; i < 5; i++ {
		if _, err := h.engine.Authenticate(ctx, "b@x.com", "Wrong1234"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := h.engine.Authenticate(ctx, "b@x.com", testPassword)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	var locked *LockedError
	if !errors.As(err, &locked) || locked.Remaining != 2*time.Hour {
		t.Fatalf("expected 2h remaining, got %v", err)
	}
	if n := h.deliverer.count(DeliverySigninCode); n != 0 {
		t.Fatalf("locked account must not receive a code")
	}

	stored, err := h.store.GetByEmail(ctx, "b@x.com")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if stored.FailedAttempts != 0 || stored.LockedUntil == nil {
		t.Fatalf("expected counter reset and lock set, got %d / %v", stored.FailedAttempts, stored.LockedUntil)
	}

	h.clock.Advance(time.Hour)
	_, err = h.engine.Authenticate(ctx, "b@x.com", testPassword)
	if !errors.As(err, &locked) || locked.Remaining != time.Hour {
		t.Fatalf("expected 1h remaining, got %v", err)
	}

	h.clock.Advance(time.Hour)
	res := h.signin(t, "b@x.com", testPassword)
	if res.Token == "" {
		t.Fatalf("expected session after lock expiry")
	}

	stored, err = h.store.GetByEmail(ctx, "b@x.com")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if stored.LockedUntil != nil || stored.FailedAttempts != 0 {
		t.Fatalf("expected lock cleared after success, got %+v", stored)
	}
}

func TestCorrectPasswordResetsFailureCounter(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	h.provision(t, "reset@x.com", "01710000003", identity.RoleUser)

	for i := 0; i < 4; i++ {
		_, _ = h.engine.Authenticate(ctx, "reset@x.com", "Wrong1234")
	}

	h.codes.push("111111")
	if _, err := h.engine.Authenticate(ctx, "reset@x.com", testPassword); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := h.engine.Authenticate(ctx, "reset@x.com", "Wrong1234"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	stored, _ := h.store.GetByEmail(ctx, "reset@x.com")
	if stored.FailedAttempts != 4 || stored.LockedUntil != nil {
		t.Fatalf("expected 4 failures and no lock, got %+v", stored)
	}
}

func TestConfirmAuthenticationRefusesNewlyLockedAccount(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	h.provision(t, "race@x.com", "01710000004", identity.RoleUser)

	h.codes.push("864200")
	if _, err := h.engine.Authenticate(ctx, "race@x.com", testPassword); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, _ = h.engine.Authenticate(ctx, "race@x.com", "Wrong1234")
	}

	if _, err := h.engine.ConfirmAuthentication(ctx, "race@x.com", "864200"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestAdminUsesSameTwoStepSignin(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	h.provision(t, "admin@x.com", "01710000005", identity.RoleAdmin)

	h.codes.push("192837")
	challenge, err := h.engine.Authenticate(ctx, "admin@x.com", testPassword)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if challenge == nil {
		t.Fatalf("expected a challenge, not a session")
	}

	res, err := h.engine.ConfirmAuthentication(ctx, "admin@x.com", "192837")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Principal.IsAdmin() {
		t.Fatalf("expected admin principal, got %+v", res.Principal)
	}

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Authenticate(ctx, "admin@x.com", "Wrong1234")
	}
	if _, err := h.engine.Authenticate(ctx, "admin@x.com", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("admins lock out like everyone else, got %v", err)
	}
}

func TestSigninResendCooldown(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	h.provision(t, "again@x.com", "01710000006", identity.RoleUser)

	h.codes.push("111111", "222222", "333333")
	if _, err := h.engine.Authenticate(ctx, "again@x.com", testPassword); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	_, err := h.engine.Authenticate(ctx, "again@x.com", testPassword)
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) || cooldown.RetryAfter != time.Minute {
		t.Fatalf("expected 60s cooldown, got %v", err)
	}

	h.clock.Advance(time.Minute)
	if _, err := h.engine.Authenticate(ctx, "again@x.com", testPassword); err != nil {
		t.Fatalf("authenticate after cooldown: %v", err)
	}
	if _, err := h.engine.ConfirmAuthentication(ctx, "again@x.com", "333333"); err != nil {
		t.Fatalf("confirm latest code: %v", err)
	}
}

func TestSigninCodeExpiresLazily(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	h.provision(t, "slow@x.com", "01710000007", identity.RoleUser)

	h.codes.push("555555")
	if _, err := h.engine.Authenticate(ctx, "slow@x.com", testPassword); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	h.clock.Advance(9*time.Minute + 59*time.Second)
	if _, err := h.engine.ConfirmAuthentication(ctx, "slow@x.com", "000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected live code, got %v", err)
	}
	h.clock.Advance(time.Second)
	if _, err := h.engine.ConfirmAuthentication(ctx, "slow@x.com", "555555"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestSigninUpgradesLegacyBcryptHash(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	err = h.store.Create(ctx, identity.Account{
		ID:            identity.NewAccountID(),
		Email:         "legacy@x.com",
		Phone:         "01710000008",
		FullName:      "Legacy",
		PasswordHash:  string(legacy),
		Role:          identity.RoleUser,
		EmailVerified: true,
		CreatedAt:     h.clock.Now(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h.signin(t, "legacy@x.com", testPassword)

	stored, err := h.store.GetByEmail(ctx, "legacy@x.com")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id upgrade, got %q", stored.PasswordHash)
	}

	h.clock.Advance(time.Minute)
	h.signin(t, "legacy@x.com", testPassword)
}

func TestAuthenticateRejectsEmptyInput(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	if _, err := h.engine.Authenticate(ctx, "", testPassword); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty email, got %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "a@x.com", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty password, got %v", err)
	}
}
