// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

// Package sqlite implements auth.IdentityRepository on an embedded SQLite
// database. It backs single-binary deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/authcore/authcore/internal/auth"
)

//go:embed schema.sql
var schemaSQL string

const userColumns = `id, first_name, last_name, username, email, password_hash,
	is_active, is_verified, failed_attempts, locked_until, created_at, updated_at`

// Open opens the database at dsn and applies the schema. A dsn of
// ":memory:" gives a private in-memory database.
//
// The pool is limited to one connection: SQLite serializes writers, and an
// in-memory database lives only as long as its connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("operation", "open database").Wrap(err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("operation", "set busy timeout").Wrap(err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("operation", "apply schema").Wrap(err)
	}
	return db, nil
}

// IdentityRepository implements auth.IdentityRepository using SQLite.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create stores a new identity.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.UserIdentity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		identity.ID.String(),
		identity.FirstName,
		identity.LastName,
		identity.Username,
		identity.Email,
		identity.PasswordHash,
		identity.IsActive,
		identity.IsVerified,
		identity.FailedAttempts,
		toNullMicros(identity.LockedUntil),
		identity.CreatedAt.UnixMicro(),
		identity.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", identity.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an identity by ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.UserIdentity, error) {
	return r.getBy(ctx, "id", id.String())
}

// GetByUsername retrieves an identity by username.
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*auth.UserIdentity, error) {
	return r.getBy(ctx, "username", username)
}

// GetByEmail retrieves an identity by email.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*auth.UserIdentity, error) {
	return r.getBy(ctx, "email", email)
}

// getBy selects one user by a unique column. column is never user input.
func (r *IdentityRepository) getBy(ctx context.Context, column, value string) (*auth.UserIdentity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)

	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.NotFoundError(column, value)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by "+column).
			With(column, value).
			Wrap(err)
	}
	return identity, nil
}

// Update writes the profile columns of an existing identity.
func (r *IdentityRepository) Update(ctx context.Context, identity *auth.UserIdentity) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			first_name = ?,
			last_name = ?,
			username = ?,
			email = ?,
			password_hash = ?,
			is_verified = ?,
			updated_at = ?
		WHERE id = ?
	`,
		identity.FirstName,
		identity.LastName,
		identity.Username,
		identity.Email,
		identity.PasswordHash,
		identity.IsVerified,
		identity.UpdatedAt.UnixMicro(),
		identity.ID.String(),
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", identity.ID.String()).
			Wrap(err)
	}
	return expectOne(result, identity.ID, "update user")
}

// UpdatePassword updates only the password hash.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.exec(ctx, id, "update password",
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UnixMicro(), id.String())
}

// RecordLoginFailure increments failed_attempts in one statement. SQLite
// evaluates every SET expression against the pre-update row.
func (r *IdentityRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	nowMicros := now.UnixMicro()
	var (
		attempts    int
		lockedUntil sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		UPDATE users SET
			failed_attempts = CASE WHEN locked_until <= ? THEN 1 ELSE failed_attempts + 1 END,
			locked_until = CASE
				WHEN ? > 0
					AND (CASE WHEN locked_until <= ? THEN 1 ELSE failed_attempts + 1 END) >= ?
					THEN ?
				WHEN locked_until <= ? THEN NULL
				ELSE locked_until
			END
		WHERE id = ?
		RETURNING failed_attempts, locked_until
	`,
		nowMicros,
		threshold, nowMicros, threshold, lockUntil.UnixMicro(),
		nowMicros,
		id.String(),
	).Scan(&attempts, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, auth.NotFoundError("id", id.String())
	}
	if err != nil {
		return 0, nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "record login failure").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, fromNullMicros(lockedUntil), nil
}

// ResetLoginFailures clears failed_attempts and locked_until.
func (r *IdentityRepository) ResetLoginFailures(ctx context.Context, id ulid.ULID) error {
	return r.exec(ctx, id, "reset login failures",
		`UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE id = ?`,
		id.String())
}

// SetVerified sets the email verification flag.
func (r *IdentityRepository) SetVerified(ctx context.Context, id ulid.ULID, verified bool) error {
	return r.exec(ctx, id, "set verified",
		`UPDATE users SET is_verified = ?, updated_at = ? WHERE id = ?`,
		verified, time.Now().UnixMicro(), id.String())
}

// SetActive sets the account active flag.
func (r *IdentityRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return r.exec(ctx, id, "set active",
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UnixMicro(), id.String())
}

// Delete removes an identity.
func (r *IdentityRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return r.exec(ctx, id, "delete user", `DELETE FROM users WHERE id = ?`, id.String())
}

func (r *IdentityRepository) exec(ctx context.Context, id ulid.ULID, operation, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	return expectOne(result, id, operation)
}

func expectOne(result sql.Result, id ulid.ULID, operation string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if n == 0 {
		return auth.NotFoundError("id", id.String())
	}
	return nil
}

// duplicateError maps a unique constraint failure to auth.DuplicateError.
// It returns nil for any other error.
func duplicateError(err error) error {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}
	code := sqliteErr.Code()
	if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return nil
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "users.username"):
		return auth.DuplicateError("username")
	case strings.Contains(msg, "users.email"):
		return auth.DuplicateError("email")
	default:
		return nil
	}
}

// scanIdentity scans a single row into a UserIdentity.
// Callers are responsible for handling sql.ErrNoRows.
func scanIdentity(row *sql.Row) (*auth.UserIdentity, error) {
	var (
		idStr       string
		identity    auth.UserIdentity
		lockedUntil sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(
		&idStr,
		&identity.FirstName,
		&identity.LastName,
		&identity.Username,
		&identity.Email,
		&identity.PasswordHash,
		&identity.IsActive,
		&identity.IsVerified,
		&identity.FailedAttempts,
		&lockedUntil,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	identity.ID = id
	identity.CreatedAt = time.UnixMicro(createdAt).UTC()
	identity.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	identity.LockedUntil = fromNullMicros(lockedUntil)
	return &identity, nil
}

func fromNullMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMicro(v.Int64).UTC()
	return &t
}

func toNullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

// Compile-time interface check.
var _ auth.IdentityRepository = (*IdentityRepository)(nil)
