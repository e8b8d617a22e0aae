// Package memory is an in-process identity.Store guarded by a single mutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/otpgate/identity"
)

var _ identity.Store = (*Store)(nil)

// Store keeps accounts in maps. Every method takes the same lock, so the
// uniqueness checks and the failed-attempt update are atomic.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*identity.Account
	byEmail map[string]string
	byPhone map[string]string
}

func New() *Store {
	return &Store{
		byID:    make(map[string]*identity.Account),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
	}
}

func (s *Store) Create(_ context.Context, account identity.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return identity.ErrDuplicateEmail
	}
	if _, ok := s.byPhone[account.Phone]; ok {
		return identity.ErrDuplicatePhone
	}

	stored := cloneAccount(account)
	s.byID[account.ID] = &stored
	s.byEmail[account.Email] = account.ID
	s.byPhone[account.Phone] = account.ID
	return nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return identity.Account{}, identity.ErrNotFound
	}
	return cloneAccount(*s.byID[id]), nil
}

func (s *Store) GetByID(_ context.Context, id string) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return identity.Account{}, identity.ErrNotFound
	}
	return cloneAccount(*account), nil
}

func (s *Store) CheckAvailable(_ context.Context, email, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return identity.ErrDuplicateEmail
	}
	if _, ok := s.byPhone[phone]; ok {
		return identity.ErrDuplicatePhone
	}
	return nil
}

func (s *Store) RecordFailedAttempt(_ context.Context, id string, policy identity.LockoutPolicy, now time.Time) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return identity.Account{}, identity.ErrNotFound
	}
	identity.ApplyFailedAttempt(account, policy, now)
	return cloneAccount(*account), nil
}

func (s *Store) ResetFailedAttempts(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return identity.ErrNotFound
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return identity.ErrNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func cloneAccount(a identity.Account) identity.Account {
	if a.LockedUntil != nil {
		until := *a.LockedUntil
		a.LockedUntil = &until
	}
	return a
}
