// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authcore/authcore/internal/auth"
	"github.com/authcore/authcore/internal/auth/memstore"
	"github.com/authcore/authcore/internal/auth/mocks"
	"github.com/authcore/authcore/pkg/errutil"
)

// testClock is a controllable auth.Clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSessionAuthenticator(t *testing.T, clock *testClock, policy auth.SessionPolicy) *auth.SessionAuthenticator {
	t.Helper()
	store := memstore.NewSessionStore(memstore.Config{ReapInterval: time.Hour, Now: clock.Now})
	t.Cleanup(store.Close)
	a, err := auth.NewSessionAuthenticator(store, policy, clock.Now)
	require.NoError(t, err)
	return a
}

func TestNewSessionAuthenticator_Validation(t *testing.T) {
	store := mocks.NewMockSessionStore(t)

	_, err := auth.NewSessionAuthenticator(nil, auth.DefaultSessionPolicy(), nil)
	require.Error(t, err)

	_, err = auth.NewSessionAuthenticator(store, auth.SessionPolicy{IdleTimeout: time.Minute}, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_POLICY")

	_, err = auth.NewSessionAuthenticator(store, auth.SessionPolicy{IdleTimeout: -1, AbsoluteTimeout: time.Hour}, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_POLICY")
}

func TestGenerateSessionHandle(t *testing.T) {
	handle, digest, err := auth.GenerateSessionHandle()
	require.NoError(t, err)
	assert.Len(t, handle, 2*auth.SessionHandleBytes)
	assert.Equal(t, auth.HashSessionHandle(handle), digest)
	assert.NotEqual(t, handle, digest)

	other, _, err := auth.GenerateSessionHandle()
	require.NoError(t, err)
	assert.NotEqual(t, handle, other)
}

func TestSessionAuthenticator_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	a := newSessionAuthenticator(t, clock, auth.DefaultSessionPolicy())
	user := ulid.Make()

	handle, err := a.CreateSession(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, user, handle.UserID)
	assert.Equal(t, clock.Now().Add(auth.DefaultSessionAbsoluteTimeout), handle.ExpiresAt)

	got, err := a.Resolve(ctx, handle.Value)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	require.NoError(t, a.Destroy(ctx, handle.Value))

	_, err = a.Resolve(ctx, handle.Value)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeSessionNotFound)
	assert.Equal(t, auth.KindAuthentication, auth.KindOf(err))

	require.NoError(t, a.Destroy(ctx, handle.Value), "destroy is idempotent")
	require.NoError(t, a.Destroy(ctx, "unknown"))
	require.NoError(t, a.Destroy(ctx, ""))
}

func TestSessionAuthenticator_CreateSessionRejectsZeroUser(t *testing.T) {
	a := newSessionAuthenticator(t, newTestClock(), auth.DefaultSessionPolicy())
	_, err := a.CreateSession(context.Background(), ulid.ULID{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_USER")
}

func TestSessionAuthenticator_IdleTimeout(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	a := newSessionAuthenticator(t, clock, auth.SessionPolicy{IdleTimeout: 10 * time.Minute, AbsoluteTimeout: time.Hour})

	handle, err := a.CreateSession(ctx, ulid.Make())
	require.NoError(t, err)

	t.Run("touch extends idle deadline", func(t *testing.T) {
		clock.Advance(9 * time.Minute)
		require.NoError(t, a.Touch(ctx, handle.Value))
		clock.Advance(9 * time.Minute)
		_, err := a.Resolve(ctx, handle.Value)
		require.NoError(t, err)
	})

	t.Run("idle session expires", func(t *testing.T) {
		clock.Advance(10 * time.Minute)
		err := a.Touch(ctx, handle.Value)
		require.Error(t, err)
		// The store dropped it when its ttl ran out.
		assert.Equal(t, auth.KindAuthentication, auth.KindOf(err))
	})
}

func TestSessionAuthenticator_AbsoluteTimeout(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	a := newSessionAuthenticator(t, clock, auth.SessionPolicy{IdleTimeout: 10 * time.Minute, AbsoluteTimeout: 25 * time.Minute})

	handle, err := a.CreateSession(ctx, ulid.Make())
	require.NoError(t, err)

	for range 2 {
		clock.Advance(9 * time.Minute)
		require.NoError(t, a.Touch(ctx, handle.Value))
	}

	clock.Advance(7 * time.Minute)
	_, err = a.Resolve(ctx, handle.Value)
	require.Error(t, err)
	assert.Equal(t, auth.KindAuthentication, auth.KindOf(err))
}

func TestSessionAuthenticator_ExpiredRecordIsRemoved(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := mocks.NewMockSessionStore(t)
	policy := auth.SessionPolicy{IdleTimeout: time.Minute, AbsoluteTimeout: time.Hour}
	a, err := auth.NewSessionAuthenticator(store, policy, clock.Now)
	require.NoError(t, err)

	handle := "handle"
	digest := auth.HashSessionHandle(handle)
	rec := &auth.SessionRecord{
		ID:         digest,
		UserID:     ulid.Make(),
		CreatedAt:  clock.Now().Add(-2 * time.Minute),
		LastSeenAt: clock.Now().Add(-time.Minute),
	}
	store.On("Get", ctx, digest).Return(rec, nil)
	store.On("Delete", ctx, digest).Return(nil)

	_, err = a.Resolve(ctx, handle)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeSessionExpired)
}

func TestSessionAuthenticator_StoreErrors(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()

	t.Run("lookup failure is a storage error", func(t *testing.T) {
		store := mocks.NewMockSessionStore(t)
		a, err := auth.NewSessionAuthenticator(store, auth.DefaultSessionPolicy(), clock.Now)
		require.NoError(t, err)

		store.On("Get", ctx, mock.Anything).Return(nil, errors.New("connection reset"))
		_, err = a.Resolve(ctx, "handle")
		require.Error(t, err)
		assert.Equal(t, auth.KindStorage, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, "SESSION_LOOKUP_FAILED")
	})

	t.Run("save failure on create", func(t *testing.T) {
		store := mocks.NewMockSessionStore(t)
		a, err := auth.NewSessionAuthenticator(store, auth.DefaultSessionPolicy(), clock.Now)
		require.NoError(t, err)

		store.On("Save", ctx, mock.Anything, auth.DefaultSessionIdleTimeout).Return(errors.New("oom"))
		_, err = a.CreateSession(ctx, ulid.Make())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")
	})
}

// destroyingStore deletes each record right after handing it out, as a
// logout landing between the lookup and the refresh in Touch would.
type destroyingStore struct {
	*memstore.SessionStore
}

func (s destroyingStore) Get(ctx context.Context, id string) (*auth.SessionRecord, error) {
	rec, err := s.SessionStore.Get(ctx, id)
	if err == nil {
		_ = s.SessionStore.Delete(ctx, id)
	}
	return rec, err
}

func TestSessionAuthenticator_TouchDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	inner := memstore.NewSessionStore(memstore.Config{ReapInterval: time.Hour, Now: clock.Now})
	t.Cleanup(inner.Close)

	creator, err := auth.NewSessionAuthenticator(inner, auth.DefaultSessionPolicy(), clock.Now)
	require.NoError(t, err)
	racing, err := auth.NewSessionAuthenticator(destroyingStore{inner}, auth.DefaultSessionPolicy(), clock.Now)
	require.NoError(t, err)

	handle, err := creator.CreateSession(ctx, ulid.Make())
	require.NoError(t, err)

	err = racing.Touch(ctx, handle.Value)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeSessionNotFound)

	_, err = creator.Resolve(ctx, handle.Value)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeSessionNotFound)
	assert.Zero(t, inner.Len())
}

func TestSessionAuthenticator_TouchRefreshOutcomes(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	handle := "handle"
	digest := auth.HashSessionHandle(handle)

	tests := []struct {
		name     string
		written  bool
		err      error
		wantCode string
	}{
		{name: "refreshed", written: true},
		{name: "removed concurrently", written: false, wantCode: auth.CodeSessionNotFound},
		{name: "store failure", err: errors.New("connection reset"), wantCode: "SESSION_TOUCH_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMockSessionStore(t)
			a, err := auth.NewSessionAuthenticator(store, auth.DefaultSessionPolicy(), clock.Now)
			require.NoError(t, err)

			rec := &auth.SessionRecord{
				ID:         digest,
				UserID:     ulid.Make(),
				CreatedAt:  clock.Now().Add(-time.Minute),
				LastSeenAt: clock.Now().Add(-time.Minute),
			}
			store.On("Get", ctx, digest).Return(rec, nil)
			store.On("Refresh", ctx, mock.MatchedBy(func(r *auth.SessionRecord) bool {
				return r.ID == digest && r.LastSeenAt.Equal(clock.Now())
			}), auth.DefaultSessionIdleTimeout).Return(tt.written, tt.err)

			err = a.Touch(ctx, handle)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestSessionAuthenticator_DestroyAll(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	a := newSessionAuthenticator(t, clock, auth.DefaultSessionPolicy())
	user, other := ulid.Make(), ulid.Make()

	h1, err := a.CreateSession(ctx, user)
	require.NoError(t, err)
	h2, err := a.CreateSession(ctx, user)
	require.NoError(t, err)
	h3, err := a.CreateSession(ctx, other)
	require.NoError(t, err)

	n, err := a.DestroyAll(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, h := range []*auth.SessionHandle{h1, h2} {
		_, err := a.Resolve(ctx, h.Value)
		assert.Error(t, err)
	}
	_, err = a.Resolve(ctx, h3.Value)
	assert.NoError(t, err)
}

func TestSessionAuthenticator_ConcurrentTouch(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	a := newSessionAuthenticator(t, clock, auth.DefaultSessionPolicy())
	user := ulid.Make()

	handle, err := a.CreateSession(ctx, user)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Touch(ctx, handle.Value)
			got, err := a.Resolve(ctx, handle.Value)
			assert.NoError(t, err)
			assert.Equal(t, user, got)
		}()
	}
	wg.Wait()
}
