// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authcore/authcore/internal/auth"
	"github.com/authcore/authcore/pkg/errutil"
)

func TestValidateEmailFormat(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"a@x.com", true},
		{"first.last+tag@sub.example.org", true},
		{"under_score%@example.co", true},
		{"", false},
		{"plainaddress", false},
		{"@example.com", false},
		{"user@", false},
		{"user@example", false},
		{"user@example.c", false},
		{"user@@example.com", false},
		{"user name@example.com", false},
		{"user@example.com ", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ValidateEmailFormat(tt.email))
		})
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantOK   bool
		reason   string
	}{
		{"valid", "Passw0rd", true, ""},
		{"too short", "Pa0", false, auth.ReasonPasswordTooShort},
		{"too short reported before missing classes", "abc", false, auth.ReasonPasswordTooShort},
		{"no uppercase", "passw0rd", false, auth.ReasonPasswordNoUpper},
		{"no lowercase", "PASSW0RD", false, auth.ReasonPasswordNoLower},
		{"no digit", "Password", false, auth.ReasonPasswordNoDigit},
		{"uppercase reported before digit", "password", false, auth.ReasonPasswordNoUpper},
		{"length counts characters not bytes", "Ünï0ödé", false, auth.ReasonPasswordTooShort},
		{"non-ASCII letters are not uppercase", "ÄÖÜßäöü1x", false, auth.ReasonPasswordNoUpper},
		{"non-ASCII letters are not lowercase", "ÄÖÜßäöü1X", false, auth.ReasonPasswordNoLower},
		{"accented letters alongside ASCII classes", "Pässwörd1", true, ""},
		{"any decimal digit counts", "Password٣", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := auth.ValidatePasswordStrength(tt.password)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestValidateUsername(t *testing.T) {
	valid := []string{"u1", "alice", "a.b-c_d", "9lives"}
	for _, name := range valid {
		t.Run("accepts "+name, func(t *testing.T) {
			assert.NoError(t, auth.ValidateUsername(name))
		})
	}

	invalid := []string{"", "_lead", "has space", "a@b.com", strings.Repeat("a", auth.MaxUsernameLength+1)}
	for _, name := range invalid {
		t.Run("rejects "+name, func(t *testing.T) {
			err := auth.ValidateUsername(name)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidUsername)
			assert.Equal(t, auth.KindValidation, auth.KindOf(err))
		})
	}
}

func TestRegistrationFields_Validate(t *testing.T) {
	valid := auth.RegistrationFields{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  "u1",
		Email:     "a@x.com",
		Password:  "Passw0rd",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(f *auth.RegistrationFields)
		code   string
		field  string
	}{
		{"blank first name", func(f *auth.RegistrationFields) { f.FirstName = "  " }, auth.CodeRequiredField, "first_name"},
		{"missing last name", func(f *auth.RegistrationFields) { f.LastName = "" }, auth.CodeRequiredField, "last_name"},
		{"blank username", func(f *auth.RegistrationFields) { f.Username = "\t" }, auth.CodeRequiredField, "username"},
		{"missing email", func(f *auth.RegistrationFields) { f.Email = "" }, auth.CodeRequiredField, "email"},
		{"blank password", func(f *auth.RegistrationFields) { f.Password = "   " }, auth.CodeRequiredField, "password"},
		{"bad email", func(f *auth.RegistrationFields) { f.Email = "nope" }, auth.CodeInvalidEmail, "email"},
		{"bad username", func(f *auth.RegistrationFields) { f.Username = "a b" }, auth.CodeInvalidUsername, "username"},
		{"weak password", func(f *auth.RegistrationFields) { f.Password = "password1" }, auth.CodeWeakPassword, "password"},
		{
			"presence checked before format",
			func(f *auth.RegistrationFields) { f.Email = "nope"; f.Password = "" },
			auth.CodeRequiredField, "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)
			err := f.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
			errutil.AssertErrorContext(t, err, "field", tt.field)
			assert.Equal(t, auth.KindValidation, auth.KindOf(err))
		})
	}

	t.Run("weak password reports first failing rule", func(t *testing.T) {
		f := valid
		f.Password = "password1"
		err := f.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), auth.ReasonPasswordNoUpper)
	})
}

func TestProfilePatch_Validate(t *testing.T) {
	str := func(s string) *string { return &s }

	t.Run("empty patch is rejected", func(t *testing.T) {
		err := auth.ProfilePatch{}.Validate()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeEmptyPatch)
	})

	t.Run("valid partial patch", func(t *testing.T) {
		assert.NoError(t, auth.ProfilePatch{FirstName: str("Grace")}.Validate())
	})

	t.Run("blank field is rejected", func(t *testing.T) {
		err := auth.ProfilePatch{LastName: str(" ")}.Validate()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeRequiredField)
	})

	t.Run("bad email is rejected", func(t *testing.T) {
		err := auth.ProfilePatch{Email: str("x@y")}.Validate()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidEmail)
	})

	t.Run("weak password is rejected", func(t *testing.T) {
		err := auth.ProfilePatch{Password: str("short")}.Validate()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)
	})
}
