// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/authcore/authcore/internal/auth"
)

// MockIdentityRepository is a mock auth.IdentityRepository.
type MockIdentityRepository struct {
	mock.Mock
}

// NewMockIdentityRepository creates a mock that asserts its expectations on cleanup.
func NewMockIdentityRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockIdentityRepository {
	m := &MockIdentityRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func identityResult(args mock.Arguments) (*auth.UserIdentity, error) {
	var identity *auth.UserIdentity
	if v := args.Get(0); v != nil {
		identity = v.(*auth.UserIdentity)
	}
	return identity, args.Error(1)
}

// Create implements auth.IdentityRepository.
func (m *MockIdentityRepository) Create(ctx context.Context, identity *auth.UserIdentity) error {
	return m.Called(ctx, identity).Error(0)
}

// GetByID implements auth.IdentityRepository.
func (m *MockIdentityRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.UserIdentity, error) {
	return identityResult(m.Called(ctx, id))
}

// GetByUsername implements auth.IdentityRepository.
func (m *MockIdentityRepository) GetByUsername(ctx context.Context, username string) (*auth.UserIdentity, error) {
	return identityResult(m.Called(ctx, username))
}

// GetByEmail implements auth.IdentityRepository.
func (m *MockIdentityRepository) GetByEmail(ctx context.Context, email string) (*auth.UserIdentity, error) {
	return identityResult(m.Called(ctx, email))
}

// Update implements auth.IdentityRepository.
func (m *MockIdentityRepository) Update(ctx context.Context, identity *auth.UserIdentity) error {
	return m.Called(ctx, identity).Error(0)
}

// UpdatePassword implements auth.IdentityRepository.
func (m *MockIdentityRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

// RecordLoginFailure implements auth.IdentityRepository.
func (m *MockIdentityRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	args := m.Called(ctx, id, now, threshold, lockUntil)
	var lockedUntil *time.Time
	if v := args.Get(1); v != nil {
		lockedUntil = v.(*time.Time)
	}
	return args.Int(0), lockedUntil, args.Error(2)
}

// ResetLoginFailures implements auth.IdentityRepository.
func (m *MockIdentityRepository) ResetLoginFailures(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// SetVerified implements auth.IdentityRepository.
func (m *MockIdentityRepository) SetVerified(ctx context.Context, id ulid.ULID, verified bool) error {
	return m.Called(ctx, id, verified).Error(0)
}

// SetActive implements auth.IdentityRepository.
func (m *MockIdentityRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

// Delete implements auth.IdentityRepository.
func (m *MockIdentityRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade implements auth.PasswordHasher.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockSessionStore is a mock auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a mock that asserts its expectations on cleanup.
func NewMockSessionStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSessionStore {
	m := &MockSessionStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Save implements auth.SessionStore.
func (m *MockSessionStore) Save(ctx context.Context, rec *auth.SessionRecord, ttl time.Duration) error {
	return m.Called(ctx, rec, ttl).Error(0)
}

// Refresh implements auth.SessionStore.
func (m *MockSessionStore) Refresh(ctx context.Context, rec *auth.SessionRecord, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, rec, ttl)
	return args.Bool(0), args.Error(1)
}

// Get implements auth.SessionStore.
func (m *MockSessionStore) Get(ctx context.Context, id string) (*auth.SessionRecord, error) {
	args := m.Called(ctx, id)
	var rec *auth.SessionRecord
	if v := args.Get(0); v != nil {
		rec = v.(*auth.SessionRecord)
	}
	return rec, args.Error(1)
}

// Delete implements auth.SessionStore.
func (m *MockSessionStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// DeleteByUser implements auth.SessionStore.
func (m *MockSessionStore) DeleteByUser(ctx context.Context, userID ulid.ULID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// MockRevocationRegistry is a mock auth.RevocationRegistry.
type MockRevocationRegistry struct {
	mock.Mock
}

// NewMockRevocationRegistry creates a mock that asserts its expectations on cleanup.
func NewMockRevocationRegistry(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRevocationRegistry {
	m := &MockRevocationRegistry{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Add implements auth.RevocationRegistry.
func (m *MockRevocationRegistry) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	return m.Called(ctx, tokenID, ttl).Error(0)
}

// Contains implements auth.RevocationRegistry.
func (m *MockRevocationRegistry) Contains(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

// MockRecorder is a mock auth.Recorder.
type MockRecorder struct {
	mock.Mock
}

// NewMockRecorder creates a mock that asserts its expectations on cleanup.
func NewMockRecorder(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRecorder {
	m := &MockRecorder{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Observe implements auth.Recorder.
func (m *MockRecorder) Observe(operation, outcome string, elapsed time.Duration) {
	m.Called(operation, outcome, elapsed)
}

// Compile-time interface checks.
var (
	_ auth.IdentityRepository = (*MockIdentityRepository)(nil)
	_ auth.PasswordHasher     = (*MockPasswordHasher)(nil)
	_ auth.SessionStore       = (*MockSessionStore)(nil)
	_ auth.RevocationRegistry = (*MockRevocationRegistry)(nil)
	_ auth.Recorder           = (*MockRecorder)(nil)
)
