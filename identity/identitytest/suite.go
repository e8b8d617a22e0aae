// Package identitytest holds the conformance suite every identity.Store
// implementation runs from its own tests.
package identitytest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate/identity"
)

// NewStoreFunc returns an empty store. Cleanup is the caller's business (t.Cleanup).
type NewStoreFunc func(t *testing.T) identity.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore NewStoreFunc) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("Uniqueness", func(t *testing.T) { testUniqueness(t, newStore(t)) })
	t.Run("CheckAvailable", func(t *testing.T) { testCheckAvailable(t, newStore(t)) })
	t.Run("LockoutThreshold", func(t *testing.T) { testLockoutThreshold(t, newStore(t)) })
	t.Run("ResetFailedAttempts", func(t *testing.T) { testResetFailedAttempts(t, newStore(t)) })
	t.Run("UpdatePasswordHash", func(t *testing.T) { testUpdatePasswordHash(t, newStore(t)) })
	t.Run("ConcurrentFailures", func(t *testing.T) { testConcurrentFailures(t, newStore(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, newStore(t)) })
}

// Account returns a valid account fixture with a fresh id.
func Account(email, phone string) identity.Account {
	return identity.Account{
		ID:            identity.NewAccountID(),
		Email:         email,
		Phone:         phone,
		FullName:      "Test Account",
		PasswordHash:  "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		Role:          identity.RoleUser,
		EmailVerified: true,
		CreatedAt:     time.UnixMilli(time.Now().UnixMilli()).UTC(),
	}
}

func mustCreate(t *testing.T, store identity.Store, account identity.Account) {
	t.Helper()
	if err := store.Create(context.Background(), account); err != nil {
		t.Fatalf("Create(%s): %v", account.Email, err)
	}
}

func testCreateAndGet(t *testing.T, store identity.Store) {
	ctx := context.Background()
	in := Account("a@x.com", "01712345678")
	in.Role = identity.RoleAdmin
	mustCreate(t, store, in)

	byEmail, err := store.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	byID, err := store.GetByID(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	for _, got := range []identity.Account{byEmail, byID} {
		if got.ID != in.ID || got.Email != in.Email || got.Phone != in.Phone ||
			got.FullName != in.FullName || got.PasswordHash != in.PasswordHash ||
			got.Role != identity.RoleAdmin || !got.EmailVerified {
			t.Fatalf("stored account mismatch: %+v", got)
		}
		if got.FailedAttempts != 0 || got.LockedUntil != nil {
			t.Fatalf("new account must be unlocked: %+v", got)
		}
		if !got.CreatedAt.Equal(in.CreatedAt) {
			t.Fatalf("CreatedAt mismatch: %s vs %s", got.CreatedAt, in.CreatedAt)
		}
	}
}

func testUniqueness(t *testing.T, store identity.Store) {
	ctx := context.Background()
	mustCreate(t, store, Account("a@x.com", "01711111111"))

	err := store.Create(ctx, Account("a@x.com", "01722222222"))
	if !errors.Is(err, identity.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	err = store.Create(ctx, Account("b@x.com", "01711111111"))
	if !errors.Is(err, identity.ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}

	if _, err := store.GetByEmail(ctx, "b@x.com"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("rejected create must not persist, got %v", err)
	}
}

func testCheckAvailable(t *testing.T, store identity.Store) {
	ctx := context.Background()
	mustCreate(t, store, Account("a@x.com", "01711111111"))

	if err := store.CheckAvailable(ctx, "b@x.com", "01722222222"); err != nil {
		t.Fatalf("expected available, got %v", err)
	}
	if err := store.CheckAvailable(ctx, "a@x.com", "01722222222"); !errors.Is(err, identity.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if err := store.CheckAvailable(ctx, "b@x.com", "01711111111"); !errors.Is(err, identity.ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
	if err := store.CheckAvailable(ctx, "a@x.com", "01711111111"); !errors.Is(err, identity.ErrDuplicateEmail) {
		t.Fatalf("email conflict must be reported first, got %v", err)
	}
}

func testLockoutThreshold(t *testing.T, store identity.Store) {
	ctx := context.Background()
	acct := Account("b@x.com", "01733333333")
	mustCreate(t, store, acct)

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	policy := identity.LockoutPolicy{Threshold: 5, Duration: 2 * time.Hour}

	for i := 1; i <= 4; i++ {
		got, err := store.RecordFailedAttempt(ctx, acct.ID, policy, now)
		if err != nil {
			t.Fatalf("RecordFailedAttempt %d: %v", i, err)
		}
		if got.FailedAttempts != i || got.LockedUntil != nil {
			t.Fatalf("attempt %d: unexpected state %+v", i, got)
		}
	}

	got, err := store.RecordFailedAttempt(ctx, acct.ID, policy, now)
	if err != nil {
		t.Fatalf("RecordFailedAttempt 5: %v", err)
	}
	if got.FailedAttempts != 0 {
		t.Fatalf("counter must reset when the lock trips, got %d", got.FailedAttempts)
	}
	if got.LockedUntil == nil || !got.LockedUntil.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("expected LockedUntil = now+2h, got %v", got.LockedUntil)
	}

	reloaded, err := store.GetByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.LockedUntil == nil || !reloaded.LockedUntil.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("lock not persisted: %+v", reloaded)
	}
}

func testResetFailedAttempts(t *testing.T, store identity.Store) {
	ctx := context.Background()
	acct := Account("c@x.com", "01744444444")
	mustCreate(t, store, acct)

	policy := identity.LockoutPolicy{Threshold: 2, Duration: time.Hour}
	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		if _, err := store.RecordFailedAttempt(ctx, acct.ID, policy, now); err != nil {
			t.Fatalf("RecordFailedAttempt: %v", err)
		}
	}
	if _, err := store.RecordFailedAttempt(ctx, acct.ID, policy, now); err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}

	if err := store.ResetFailedAttempts(ctx, acct.ID); err != nil {
		t.Fatalf("ResetFailedAttempts: %v", err)
	}
	got, err := store.GetByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FailedAttempts != 0 || got.LockedUntil != nil {
		t.Fatalf("expected cleared counters, got %+v", got)
	}
}

func testUpdatePasswordHash(t *testing.T, store identity.Store) {
	ctx := context.Background()
	acct := Account("d@x.com", "01755555555")
	mustCreate(t, store, acct)

	if err := store.UpdatePasswordHash(ctx, acct.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	got, err := store.GetByEmail(ctx, "d@x.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got.PasswordHash != "new-hash" {
		t.Fatalf("expected updated hash, got %q", got.PasswordHash)
	}
}

func testConcurrentFailures(t *testing.T, store identity.Store) {
	ctx := context.Background()
	acct := Account("e@x.com", "01766666666")
	mustCreate(t, store, acct)

	policy := identity.LockoutPolicy{Threshold: 5, Duration: 2 * time.Hour}
	now := time.Now().UTC()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RecordFailedAttempt(ctx, acct.ID, policy, now); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}

	got, err := store.GetByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FailedAttempts != 4 {
		t.Fatalf("expected 4 counted failures, got %d", got.FailedAttempts)
	}
}

func testMissing(t *testing.T, store identity.Store) {
	ctx := context.Background()
	policy := identity.LockoutPolicy{Threshold: 5, Duration: time.Hour}

	if _, err := store.GetByEmail(ctx, "nobody@x.com"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("GetByEmail: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByID(ctx, identity.NewAccountID()); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("GetByID: expected ErrNotFound, got %v", err)
	}
	if _, err := store.RecordFailedAttempt(ctx, identity.NewAccountID(), policy, time.Now()); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("RecordFailedAttempt: expected ErrNotFound, got %v", err)
	}
	if err := store.ResetFailedAttempts(ctx, identity.NewAccountID()); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("ResetFailedAttempts: expected ErrNotFound, got %v", err)
	}
	if err := store.UpdatePasswordHash(ctx, identity.NewAccountID(), "x"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("UpdatePasswordHash: expected ErrNotFound, got %v", err)
	}
}
