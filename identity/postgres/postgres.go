// Package postgres provides a Postgres-backed identity.Store on a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpgate/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ensure Store satisfies identity.Store at compile time.
var _ identity.Store = (*Store)(nil)

const (
	uniqueViolation     = "23505"
	emailConstraintName = "accounts_email_key"
	phoneConstraintName = "accounts_phone_key"
)

const accountColumns = `id, email, phone, full_name, password_hash, role, email_verified, failed_attempts, locked_until, created_at`

// Store persists accounts in the accounts table.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and runs migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			full_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT ` + emailConstraintName + ` UNIQUE (email),
			CONSTRAINT ` + phoneConstraintName + ` UNIQUE (phone)
		);`,
		`CREATE INDEX IF NOT EXISTS accounts_locked_until_idx ON accounts (locked_until) WHERE locked_until IS NOT NULL;`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, account identity.Account) error {
	const query = `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		account.ID,
		account.Email,
		account.Phone,
		account.FullName,
		account.PasswordHash,
		string(account.Role),
		account.EmailVerified,
		account.FailedAttempts,
		account.LockedUntil,
		account.CreatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == phoneConstraintName {
				return identity.ErrDuplicatePhone
			}
			return identity.ErrDuplicateEmail
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (identity.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *Store) GetByID(ctx context.Context, id string) (identity.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *Store) CheckAvailable(ctx context.Context, email, phone string) error {
	const query = `
	SELECT
		EXISTS(SELECT 1 FROM accounts WHERE email = $1),
		EXISTS(SELECT 1 FROM accounts WHERE phone = $2);
	`
	var emailTaken, phoneTaken bool
	if err := s.pool.QueryRow(ctx, query, email, phone).Scan(&emailTaken, &phoneTaken); err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if emailTaken {
		return identity.ErrDuplicateEmail
	}
	if phoneTaken {
		return identity.ErrDuplicatePhone
	}
	return nil
}

func (s *Store) RecordFailedAttempt(ctx context.Context, id string, policy identity.LockoutPolicy, now time.Time) (identity.Account, error) {
	const query = `
	UPDATE accounts SET
		failed_attempts = CASE WHEN $1 > 0 AND failed_attempts + 1 >= $1 THEN 0 ELSE failed_attempts + 1 END,
		locked_until    = CASE WHEN $1 > 0 AND failed_attempts + 1 >= $1 THEN $2 ELSE locked_until END
	WHERE id = $3
	RETURNING ` + accountColumns
	row := s.pool.QueryRow(ctx, query, policy.Threshold, now.Add(policy.Duration).UTC(), id)
	return scanAccount(row)
}

func (s *Store) ResetFailedAttempts(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE accounts SET failed_attempts = 0, locked_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE accounts SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (identity.Account, error) {
	var (
		account     identity.Account
		role        string
		lockedUntil *time.Time
	)
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Phone,
		&account.FullName,
		&account.PasswordHash,
		&role,
		&account.EmailVerified,
		&account.FailedAttempts,
		&lockedUntil,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Account{}, identity.ErrNotFound
		}
		return identity.Account{}, err
	}
	account.Role = identity.Role(role)
	account.CreatedAt = account.CreatedAt.UTC()
	if lockedUntil != nil {
		until := lockedUntil.UTC()
		account.LockedUntil = &until
	}
	return account, nil
}
