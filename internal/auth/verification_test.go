// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authcore/authcore/internal/auth"
	"github.com/authcore/authcore/pkg/errutil"
)

func newVerificationTokens(t *testing.T, clock *testClock) *auth.VerificationTokens {
	t.Helper()
	v, err := auth.NewVerificationTokens(auth.VerificationConfig{
		Token:                auth.TokenConfig{SigningKey: testSigningKey},
		EmailVerificationTTL: 2 * time.Hour,
		PasswordResetTTL:     30 * time.Minute,
	}, clock.Now)
	require.NoError(t, err)
	return v
}

func TestVerificationTokens_RoundTrip(t *testing.T) {
	clock := newTestClock()
	v := newVerificationTokens(t, clock)
	user := ulid.Make()

	for _, purpose := range []auth.Purpose{auth.PurposeEmailVerification, auth.PurposePasswordReset} {
		t.Run(string(purpose), func(t *testing.T) {
			token, err := v.Issue(user, purpose)
			require.NoError(t, err)

			got, err := v.Verify(token, purpose)
			require.NoError(t, err)
			assert.Equal(t, user, got)
		})
	}
}

func TestVerificationTokens_PurposeIsolation(t *testing.T) {
	v := newVerificationTokens(t, newTestClock())

	token, err := v.Issue(ulid.Make(), auth.PurposePasswordReset)
	require.NoError(t, err)

	_, err = v.Verify(token, auth.PurposeEmailVerification)
	require.ErrorIs(t, err, auth.ErrAuthentication)
	errutil.AssertErrorCode(t, err, auth.CodeVerificationInvalid)
}

func TestVerificationTokens_PerPurposeLifetime(t *testing.T) {
	clock := newTestClock()
	v := newVerificationTokens(t, clock)
	user := ulid.Make()

	reset, err := v.Issue(user, auth.PurposePasswordReset)
	require.NoError(t, err)
	verify, err := v.Issue(user, auth.PurposeEmailVerification)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)

	_, err = v.Verify(reset, auth.PurposePasswordReset)
	errutil.AssertErrorCode(t, err, auth.CodeVerificationExpired)

	_, err = v.Verify(verify, auth.PurposeEmailVerification)
	require.NoError(t, err)
}

func TestVerificationTokens_Rejects(t *testing.T) {
	v := newVerificationTokens(t, newTestClock())

	t.Run("unknown purpose", func(t *testing.T) {
		_, err := v.Issue(ulid.Make(), auth.Purpose("invite"))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "VERIFICATION_UNKNOWN_PURPOSE")
	})

	t.Run("bearer token", func(t *testing.T) {
		tokens, _ := newTokenAuthenticator(t, newTestClock())
		bearer, err := tokens.Issue(ulid.Make(), time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(bearer.Value, auth.PurposePasswordReset)
		errutil.AssertErrorCode(t, err, auth.CodeVerificationInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("garbage", auth.PurposeEmailVerification)
		errutil.AssertErrorCode(t, err, auth.CodeVerificationInvalid)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := auth.NewVerificationTokens(auth.VerificationConfig{
			Token:            auth.TokenConfig{SigningKey: testSigningKey},
			PasswordResetTTL: time.Millisecond,
		}, nil)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidTTL)
	})
}
