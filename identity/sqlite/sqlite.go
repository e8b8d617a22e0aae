// Package sqlite provides a SQLite-backed identity.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate/identity"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var _ identity.Store = (*Store)(nil)

// Store persists accounts in a single SQLite file.
type Store struct {
	sqlDB *sql.DB
}

const accountColumns = `id, email, phone, full_name, password_hash, role, email_verified, failed_attempts, locked_until, created_at`

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id              TEXT PRIMARY KEY,
		email           TEXT NOT NULL UNIQUE,
		phone           TEXT NOT NULL UNIQUE,
		full_name       TEXT NOT NULL,
		password_hash   TEXT NOT NULL,
		role            TEXT NOT NULL DEFAULT 'user',
		email_verified  INTEGER NOT NULL DEFAULT 0,
		failed_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until    INTEGER,
		created_at      INTEGER NOT NULL
	)`,
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite would serialize anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range migrations {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, account identity.Account) error {
	var lockedUntil sql.NullInt64
	if account.LockedUntil != nil {
		lockedUntil = sql.NullInt64{Int64: toMillis(*account.LockedUntil), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.Phone,
		account.FullName,
		account.PasswordHash,
		string(account.Role),
		boolToInt(account.EmailVerified),
		account.FailedAttempts,
		lockedUntil,
		toMillis(account.CreatedAt),
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (identity.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

func (s *Store) GetByID(ctx context.Context, id string) (identity.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (s *Store) CheckAvailable(ctx context.Context, email, phone string) error {
	var emailTaken, phoneTaken int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT
			EXISTS(SELECT 1 FROM accounts WHERE email = ?),
			EXISTS(SELECT 1 FROM accounts WHERE phone = ?)`,
		email, phone,
	).Scan(&emailTaken, &phoneTaken)
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if emailTaken != 0 {
		return identity.ErrDuplicateEmail
	}
	if phoneTaken != 0 {
		return identity.ErrDuplicatePhone
	}
	return nil
}

// RecordFailedAttempt runs as a single UPDATE ... RETURNING. SET expressions
// see the pre-update row, so both CASE arms test the same incremented value.
func (s *Store) RecordFailedAttempt(ctx context.Context, id string, policy identity.LockoutPolicy, now time.Time) (identity.Account, error) {
	threshold := policy.Threshold
	if threshold <= 0 {
		threshold = int(^uint32(0) >> 1)
	}
	until := toMillis(now.Add(policy.Duration))

	row := s.sqlDB.QueryRowContext(ctx,
		`UPDATE accounts SET
			failed_attempts = CASE WHEN failed_attempts + 1 >= ? THEN 0 ELSE failed_attempts + 1 END,
			locked_until    = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END
		WHERE id = ?
		RETURNING `+accountColumns,
		threshold, threshold, until, id,
	)
	return scanAccount(row)
}

func (s *Store) ResetFailedAttempts(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET failed_attempts = 0, locked_until = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (identity.Account, error) {
	var (
		account       identity.Account
		role          string
		emailVerified int
		lockedUntil   sql.NullInt64
		createdAt     int64
	)
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Phone,
		&account.FullName,
		&account.PasswordHash,
		&role,
		&emailVerified,
		&account.FailedAttempts,
		&lockedUntil,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Account{}, identity.ErrNotFound
		}
		return identity.Account{}, fmt.Errorf("scan account: %w", err)
	}
	account.Role = identity.Role(role)
	account.EmailVerified = emailVerified != 0
	account.CreatedAt = fromMillis(createdAt)
	if lockedUntil.Valid {
		until := fromMillis(lockedUntil.Int64)
		account.LockedUntil = &until
	}
	return account, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// duplicateError maps a unique violation to the matching identity error, or
// returns nil when err is something else.
func duplicateError(err error) error {
	if !isUniqueViolation(err) {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "accounts.phone") {
		return identity.ErrDuplicatePhone
	}
	return identity.ErrDuplicateEmail
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
