// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// IdentityStore owns user records. It validates input, hashes passwords and
// delegates persistence and uniqueness to an IdentityRepository.
type IdentityStore struct {
	repo   IdentityRepository
	hasher PasswordHasher

	// dummyHash is verified against when an identity is unknown. It is made
	// by hasher itself, so it carries the same cost as every stored hash.
	dummyHash string
}

// NewIdentityStore creates a new IdentityStore. It hashes one random
// password up front to obtain the unknown-user hash.
func NewIdentityStore(repo IdentityRepository, hasher PasswordHasher) (*IdentityStore, error) {
	if repo == nil {
		return nil, oops.Errorf("identity repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	dummyHash, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.With("operation", "hash unknown-user password").Wrap(err)
	}
	return &IdentityStore{repo: repo, hasher: hasher, dummyHash: dummyHash}, nil
}

// Register validates fields and stores a new active, unverified identity.
// Uniqueness is decided by the repository's constraint, so concurrent
// registrations of the same username or email cannot both succeed.
func (s *IdentityStore) Register(ctx context.Context, fields RegistrationFields) (*UserIdentity, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	fields = fields.normalized()

	hash, err := s.hasher.Hash(fields.Password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	now := time.Now().UTC()
	identity := &UserIdentity{
		ID:           ulid.Make(),
		FirstName:    fields.FirstName,
		LastName:     fields.LastName,
		Username:     fields.Username,
		Email:        fields.Email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// FindByIdentifier looks up an identity by username or email. Identifiers
// containing "@" are matched against emails, everything else against
// usernames. Matching is exact.
func (s *IdentityStore) FindByIdentifier(ctx context.Context, identifier string) (*UserIdentity, error) {
	if identifier == "" {
		return nil, NotFoundError("identifier", identifier)
	}
	if strings.Contains(identifier, "@") {
		return s.repo.GetByEmail(ctx, identifier)
	}
	return s.repo.GetByUsername(ctx, identifier)
}

// FindByID looks up an identity by ID.
func (s *IdentityStore) FindByID(ctx context.Context, id ulid.ULID) (*UserIdentity, error) {
	return s.repo.GetByID(ctx, id)
}

// VerifyCredential reports whether password matches the identity's stored
// hash. A nil identity is verified against a dummy hash so the unknown-user
// path costs the same as a wrong password.
func (s *IdentityStore) VerifyCredential(identity *UserIdentity, password string) (bool, error) {
	if identity == nil {
		_, _ = s.hasher.Verify(password, s.dummyHash) //nolint:errcheck // timing equalisation only
		return false, nil
	}
	ok, err := s.hasher.Verify(password, identity.PasswordHash)
	if err != nil {
		return false, oops.With("operation", "verify password").
			With("user_id", identity.ID.String()).
			Wrap(err)
	}
	return ok, nil
}

// NeedsRehash reports whether the identity's hash should be upgraded.
func (s *IdentityStore) NeedsRehash(identity *UserIdentity) bool {
	return s.hasher.NeedsUpgrade(identity.PasswordHash)
}

// Rehash replaces the stored hash with one computed from the current parameters.
func (s *IdentityStore) Rehash(ctx context.Context, identity *UserIdentity, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.With("operation", "rehash password").Wrap(err)
	}
	if err := s.repo.UpdatePassword(ctx, identity.ID, hash); err != nil {
		return err
	}
	identity.PasswordHash = hash
	return nil
}

// RecordLoginFailure counts a failed login against policy and copies the
// stored count and lock back onto identity.
func (s *IdentityStore) RecordLoginFailure(ctx context.Context, identity *UserIdentity, now time.Time, policy LockoutPolicy) error {
	threshold, lockUntil := policy.Failure(now)
	attempts, lockedUntil, err := s.repo.RecordLoginFailure(ctx, identity.ID, now, threshold, lockUntil)
	if err != nil {
		return err
	}
	identity.FailedAttempts = attempts
	identity.LockedUntil = lockedUntil
	return nil
}

// ResetLoginFailures clears the stored failure count and lock.
func (s *IdentityStore) ResetLoginFailures(ctx context.Context, identity *UserIdentity) error {
	return s.repo.ResetLoginFailures(ctx, identity.ID)
}

// UpdateFields applies patch to the identity with the given ID. The ID is
// always the acting identity's own, so a record can only be changed by its
// owner. Password changes are re-hashed; email changes clear verification.
func (s *IdentityStore) UpdateFields(ctx context.Context, id ulid.ULID, patch ProfilePatch) (*UserIdentity, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.FirstName != nil {
		identity.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		identity.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Username != nil {
		identity.Username = strings.TrimSpace(*patch.Username)
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email != identity.Email {
			identity.Email = email
			identity.IsVerified = false
		}
	}
	if patch.Password != nil {
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, oops.With("operation", "hash password").Wrap(err)
		}
		identity.PasswordHash = hash
	}
	identity.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// MarkVerified sets the verification flag of the identity.
func (s *IdentityStore) MarkVerified(ctx context.Context, identity *UserIdentity) error {
	if err := s.repo.SetVerified(ctx, identity.ID, true); err != nil {
		return err
	}
	identity.IsVerified = true
	return nil
}

// SetActive sets the active flag of the identity with the given ID.
func (s *IdentityStore) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// Delete removes the identity. Callers revoke its credentials first.
func (s *IdentityStore) Delete(ctx context.Context, id ulid.ULID) error {
	return s.repo.Delete(ctx, id)
}
