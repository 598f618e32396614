// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

// Package postgres implements auth.IdentityRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authcore/authcore/internal/auth"
)

// poolIface is the subset of pgxpool.Pool used by the repository.
// pgxmock.PgxPoolIface satisfies it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Unique constraint names from the users migration.
const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

const selectUser = `
	SELECT id, first_name, last_name, username, email, password_hash,
	       is_active, is_verified, failed_attempts, locked_until,
	       created_at, updated_at
	FROM users
`

// IdentityRepository implements auth.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool poolIface
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(pool poolIface) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Create stores a new identity.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.UserIdentity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, first_name, last_name, username, email, password_hash,
			is_active, is_verified, failed_attempts, locked_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
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
		identity.LockedUntil,
		identity.CreatedAt,
		identity.UpdatedAt,
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
	row := r.pool.QueryRow(ctx, selectUser+`WHERE id = $1`, id.String())
	return r.get(row, "id", id.String())
}

// GetByUsername retrieves an identity by username. Matching is exact.
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*auth.UserIdentity, error) {
	row := r.pool.QueryRow(ctx, selectUser+`WHERE username = $1`, username)
	return r.get(row, "username", username)
}

// GetByEmail retrieves an identity by email. Matching is exact.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*auth.UserIdentity, error) {
	row := r.pool.QueryRow(ctx, selectUser+`WHERE email = $1`, email)
	return r.get(row, "email", email)
}

func (r *IdentityRepository) get(row pgx.Row, key, value string) (*auth.UserIdentity, error) {
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.NotFoundError(key, value)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by "+key).
			With(key, value).
			Wrap(err)
	}
	return identity, nil
}

// Update writes the profile columns of an existing identity.
func (r *IdentityRepository) Update(ctx context.Context, identity *auth.UserIdentity) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			first_name = $2,
			last_name = $3,
			username = $4,
			email = $5,
			password_hash = $6,
			is_verified = $7,
			updated_at = $8
		WHERE id = $1
	`,
		identity.ID.String(),
		identity.FirstName,
		identity.LastName,
		identity.Username,
		identity.Email,
		identity.PasswordHash,
		identity.IsVerified,
		identity.UpdatedAt,
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
	if result.RowsAffected() == 0 {
		return auth.NotFoundError("id", identity.ID.String())
	}
	return nil
}

// UpdatePassword updates only the password hash.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.exec(ctx, id, "update password", `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
}

// RecordLoginFailure increments failed_attempts in place. Column references
// on the right-hand side read the pre-update row, so the lapse check and the
// threshold check see the same state.
func (r *IdentityRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET
			failed_attempts = CASE WHEN locked_until <= $2 THEN 1 ELSE failed_attempts + 1 END,
			locked_until = CASE
				WHEN $3::int > 0
					AND (CASE WHEN locked_until <= $2 THEN 1 ELSE failed_attempts + 1 END) >= $3::int
					THEN $4::timestamptz
				WHEN locked_until <= $2 THEN NULL
				ELSE locked_until
			END
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`, id.String(), now, threshold, lockUntil).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, auth.NotFoundError("id", id.String())
	}
	if err != nil {
		return 0, nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "record login failure").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, lockedUntil, nil
}

// ResetLoginFailures clears failed_attempts and locked_until.
func (r *IdentityRepository) ResetLoginFailures(ctx context.Context, id ulid.ULID) error {
	return r.exec(ctx, id, "reset login failures", `
		UPDATE users SET failed_attempts = 0, locked_until = NULL
		WHERE id = $1
	`, id.String())
}

// SetVerified sets the email verification flag.
func (r *IdentityRepository) SetVerified(ctx context.Context, id ulid.ULID, verified bool) error {
	return r.exec(ctx, id, "set verified", `
		UPDATE users SET is_verified = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), verified, time.Now())
}

// SetActive sets the account active flag.
func (r *IdentityRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return r.exec(ctx, id, "set active", `
		UPDATE users SET is_active = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), active, time.Now())
}

// Delete removes an identity.
func (r *IdentityRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return auth.NotFoundError("id", id.String())
	}
	return nil
}

func (r *IdentityRepository) exec(ctx context.Context, id ulid.ULID, operation, sql string, args ...any) error {
	result, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return auth.NotFoundError("id", id.String())
	}
	return nil
}

// duplicateError maps a unique violation on the username or email
// constraint to auth.DuplicateError. It returns nil for any other error.
func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case usernameConstraint:
		return auth.DuplicateError("username")
	case emailConstraint:
		return auth.DuplicateError("email")
	default:
		return nil
	}
}

// scanIdentity scans a single row into a UserIdentity.
// Callers are responsible for handling pgx.ErrNoRows.
func scanIdentity(row pgx.Row) (*auth.UserIdentity, error) {
	var (
		idStr    string
		identity auth.UserIdentity
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
		&identity.LockedUntil,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	identity.ID = id
	identity.CreatedAt = identity.CreatedAt.UTC()
	identity.UpdatedAt = identity.UpdatedAt.UTC()
	if identity.LockedUntil != nil {
		t := identity.LockedUntil.UTC()
		identity.LockedUntil = &t
	}
	return &identity, nil
}

// Compile-time interface check.
var _ auth.IdentityRepository = (*IdentityRepository)(nil)
