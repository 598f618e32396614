// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// UserIdentity represents a registered user account.
type UserIdentity struct {
	ID             ulid.ULID
	FirstName      string
	LastName       string
	Username       string
	Email          string
	PasswordHash   string
	IsActive       bool
	IsVerified     bool
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RegistrationFields carries the input of a registration request.
type RegistrationFields struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
}

// normalized returns the fields with surrounding whitespace removed from
// everything but the password.
func (f RegistrationFields) normalized() RegistrationFields {
	return RegistrationFields{
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Username:  strings.TrimSpace(f.Username),
		Email:     strings.TrimSpace(f.Email),
		Password:  f.Password,
	}
}

// Validate checks presence of every field first, then the email format,
// the username rules and finally password strength.
func (f RegistrationFields) Validate() error {
	required := []struct{ name, value string }{
		{"first_name", f.FirstName},
		{"last_name", f.LastName},
		{"username", f.Username},
		{"email", f.Email},
		{"password", f.Password},
	}
	for _, field := range required {
		if err := requireField(field.name, field.value); err != nil {
			return err
		}
	}
	if err := validateEmail(strings.TrimSpace(f.Email)); err != nil {
		return err
	}
	if err := ValidateUsername(strings.TrimSpace(f.Username)); err != nil {
		return err
	}
	return validatePassword(f.Password)
}

// ProfilePatch lists the profile fields to change. Nil fields are left untouched.
type ProfilePatch struct {
	FirstName *string
	LastName  *string
	Username  *string
	Email     *string
	Password  *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Username == nil &&
		p.Email == nil && p.Password == nil
}

// Validate checks every provided field with the registration rules.
func (p ProfilePatch) Validate() error {
	if p.IsEmpty() {
		return validationError(CodeEmptyPatch, "patch", "no fields to update")
	}
	if p.FirstName != nil {
		if err := requireField("first_name", *p.FirstName); err != nil {
			return err
		}
	}
	if p.LastName != nil {
		if err := requireField("last_name", *p.LastName); err != nil {
			return err
		}
	}
	if p.Username != nil {
		if err := requireField("username", *p.Username); err != nil {
			return err
		}
		if err := ValidateUsername(strings.TrimSpace(*p.Username)); err != nil {
			return err
		}
	}
	if p.Email != nil {
		if err := requireField("email", *p.Email); err != nil {
			return err
		}
		if err := validateEmail(strings.TrimSpace(*p.Email)); err != nil {
			return err
		}
	}
	if p.Password != nil {
		if err := requireField("password", *p.Password); err != nil {
			return err
		}
		if err := validatePassword(*p.Password); err != nil {
			return err
		}
	}
	return nil
}

// IdentityRepository manages UserIdentity persistence.
//
// Implementations must enforce username and email uniqueness with a storage
// constraint and report violations from Create and Update as DuplicateError.
// Lookups are exact and case-sensitive. Missing records are reported as
// errors wrapping ErrNotFound.
type IdentityRepository interface {
	// Create stores a new identity.
	Create(ctx context.Context, identity *UserIdentity) error

	// GetByID retrieves an identity by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*UserIdentity, error)

	// GetByUsername retrieves an identity by username.
	GetByUsername(ctx context.Context, username string) (*UserIdentity, error)

	// GetByEmail retrieves an identity by email.
	GetByEmail(ctx context.Context, email string) (*UserIdentity, error)

	// Update writes the profile columns: names, username, email, password
	// hash, verification flag and updated_at.
	Update(ctx context.Context, identity *UserIdentity) error

	// UpdatePassword updates only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// RecordLoginFailure counts one failed login in a single atomic update
	// and returns the stored count and lock. A lock that has lapsed by now
	// restarts the count at one. When threshold is positive and the count
	// reaches it, the identity is locked until lockUntil.
	RecordLoginFailure(ctx context.Context, id ulid.ULID, now time.Time, threshold int, lockUntil time.Time) (failedAttempts int, lockedUntil *time.Time, err error)

	// ResetLoginFailures clears the failure count and any lock.
	ResetLoginFailures(ctx context.Context, id ulid.ULID) error

	// SetVerified sets the email verification flag.
	SetVerified(ctx context.Context, id ulid.ULID, verified bool) error

	// SetActive sets the account active flag.
	SetActive(ctx context.Context, id ulid.ULID, active bool) error

	// Delete removes an identity.
	Delete(ctx context.Context, id ulid.ULID) error
}
