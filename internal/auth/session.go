// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionHandleBytes is the entropy of a session handle (64 hex chars).
const SessionHandleBytes = 32

// Session policy defaults.
const (
	DefaultSessionIdleTimeout     = 30 * time.Minute
	DefaultSessionAbsoluteTimeout = 24 * time.Hour
)

// SessionRecord is the server-held state of an active session. ID is the
// SHA-256 digest of the handle given to the client; the handle itself is
// never stored.
type SessionRecord struct {
	ID         string
	UserID     ulid.ULID
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// SessionHandle is returned to the client after session login.
type SessionHandle struct {
	Value     string
	UserID    ulid.ULID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore is a key-value store for session records with per-key expiry.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Save stores rec under rec.ID, replacing any previous value, and
	// expires it after ttl.
	Save(ctx context.Context, rec *SessionRecord, ttl time.Duration) error

	// Refresh replaces rec under rec.ID and resets its expiry to ttl only if
	// a live record is still stored there. It reports whether it wrote.
	// A record removed by Delete or DeleteByUser stays removed.
	Refresh(ctx context.Context, rec *SessionRecord, ttl time.Duration) (bool, error)

	// Get returns the record for id or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// Delete removes the record for id. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteByUser removes every record of userID and returns how many were removed.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int, error)
}

// SessionPolicy holds the session timeouts. An IdleTimeout of zero disables
// the idle check; AbsoluteTimeout must be positive.
type SessionPolicy struct {
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
}

// DefaultSessionPolicy returns the default session timeouts.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		IdleTimeout:     DefaultSessionIdleTimeout,
		AbsoluteTimeout: DefaultSessionAbsoluteTimeout,
	}
}

// expired reports whether rec is past either timeout at now.
func (p SessionPolicy) expired(rec *SessionRecord, now time.Time) bool {
	if !now.Before(rec.CreatedAt.Add(p.AbsoluteTimeout)) {
		return true
	}
	return p.IdleTimeout > 0 && !now.Before(rec.LastSeenAt.Add(p.IdleTimeout))
}

// ttl returns how long rec may stay in the store from now.
func (p SessionPolicy) ttl(rec *SessionRecord, now time.Time) time.Duration {
	ttl := rec.CreatedAt.Add(p.AbsoluteTimeout).Sub(now)
	if p.IdleTimeout > 0 {
		if idle := rec.LastSeenAt.Add(p.IdleTimeout).Sub(now); idle < ttl {
			ttl = idle
		}
	}
	return ttl
}

// SessionAuthenticator maps opaque session handles to identities.
// A session is Active until logout, idle timeout or absolute timeout, after
// which it is gone for good.
type SessionAuthenticator struct {
	store  SessionStore
	policy SessionPolicy
	now    Clock
}

// NewSessionAuthenticator creates a SessionAuthenticator. A nil clock uses
// the system time.
func NewSessionAuthenticator(store SessionStore, policy SessionPolicy, now Clock) (*SessionAuthenticator, error) {
	if store == nil {
		return nil, oops.Errorf("session store is required")
	}
	if policy.AbsoluteTimeout <= 0 {
		return nil, oops.Code("SESSION_INVALID_POLICY").
			With("absolute_timeout", policy.AbsoluteTimeout).
			Errorf("absolute timeout must be positive")
	}
	if policy.IdleTimeout < 0 {
		return nil, oops.Code("SESSION_INVALID_POLICY").
			With("idle_timeout", policy.IdleTimeout).
			Errorf("idle timeout cannot be negative")
	}
	if now == nil {
		now = systemClock
	}
	return &SessionAuthenticator{store: store, policy: policy, now: now}, nil
}

// Policy returns the session timeouts.
func (a *SessionAuthenticator) Policy() SessionPolicy {
	return a.policy
}

// CreateSession starts an Active session for userID.
func (a *SessionAuthenticator) CreateSession(ctx context.Context, userID ulid.ULID) (*SessionHandle, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}

	handle, digest, err := GenerateSessionHandle()
	if err != nil {
		return nil, err
	}

	now := a.now()
	rec := &SessionRecord{
		ID:         digest,
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := a.store.Save(ctx, rec, a.policy.ttl(rec, now)); err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "save session").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return &SessionHandle{
		Value:     handle,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.policy.AbsoluteTimeout),
	}, nil
}

// Resolve returns the identity bound to handle.
func (a *SessionAuthenticator) Resolve(ctx context.Context, handle string) (ulid.ULID, error) {
	rec, err := a.load(ctx, handle)
	if err != nil {
		return ulid.ULID{}, err
	}
	return rec.UserID, nil
}

// Touch refreshes the session's last-seen time. Concurrent touches race
// last-write-wins, which only affects the idle deadline. A session destroyed
// after the lookup is not brought back.
func (a *SessionAuthenticator) Touch(ctx context.Context, handle string) error {
	rec, err := a.load(ctx, handle)
	if err != nil {
		return err
	}

	now := a.now()
	rec.LastSeenAt = now
	refreshed, err := a.store.Refresh(ctx, rec, a.policy.ttl(rec, now))
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "refresh session").
			Wrap(err)
	}
	if !refreshed {
		return authenticationError(CodeSessionNotFound, "session not found")
	}
	return nil
}

// Destroy ends the session. Unknown or already destroyed handles are ignored.
func (a *SessionAuthenticator) Destroy(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := a.store.Delete(ctx, HashSessionHandle(handle)); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// DestroyAll ends every session of userID.
func (a *SessionAuthenticator) DestroyAll(ctx context.Context, userID ulid.ULID) (int, error) {
	n, err := a.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// load fetches the record behind handle and enforces the timeouts. Expired
// records are removed on sight.
func (a *SessionAuthenticator) load(ctx context.Context, handle string) (*SessionRecord, error) {
	if handle == "" {
		return nil, authenticationError(CodeSessionNotFound, "session not found")
	}

	rec, err := a.store.Get(ctx, HashSessionHandle(handle))
	if errors.Is(err, ErrNotFound) {
		return nil, authenticationError(CodeSessionNotFound, "session not found")
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get session").
			Wrap(err)
	}

	if a.policy.expired(rec, a.now()) {
		_ = a.store.Delete(ctx, rec.ID) //nolint:errcheck // the store expires it anyway
		return nil, authenticationError(CodeSessionExpired, "session has expired")
	}
	return rec, nil
}

// GenerateSessionHandle creates a random handle and the digest it is stored under.
func GenerateSessionHandle() (handle, digest string, err error) {
	b := make([]byte, SessionHandleBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", oops.Code("SESSION_HANDLE_FAILED").
			With("operation", "generate random bytes").
			Wrap(err)
	}
	handle = hex.EncodeToString(b)
	return handle, HashSessionHandle(handle), nil
}

// HashSessionHandle returns the SHA-256 hex digest of a session handle.
func HashSessionHandle(handle string) string {
	sum := sha256.Sum256([]byte(handle))
	return hex.EncodeToString(sum[:])
}
