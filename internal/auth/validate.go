// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"regexp"
	"strings"
	"unicode"
)

// MinPasswordLength is the minimum accepted password length in characters.
const MinPasswordLength = 8

// MaxUsernameLength bounds usernames.
const MaxUsernameLength = 64

// Password strength failure reasons, in evaluation order.
const (
	ReasonPasswordTooShort = "password must be at least 8 characters"
	ReasonPasswordNoUpper  = "password must contain at least one uppercase letter"
	ReasonPasswordNoLower  = "password must contain at least one lowercase letter"
	ReasonPasswordNoDigit  = "password must contain at least one number"
)

// emailRegex checks local-part "@" domain "." tld with a tld of at least two letters.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// usernameRegex matches usernames that:
// - Start with a letter or digit
// - Contain only letters, digits, underscores, dots and hyphens
//
// Usernames never contain "@", so an identifier is unambiguously either a
// username or an email.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateEmailFormat reports whether s is syntactically an email address.
// Deliverability is not checked.
func ValidateEmailFormat(s string) bool {
	return emailRegex.MatchString(s)
}

// ValidatePasswordStrength checks s against the password rules and returns
// the first failing rule as reason. reason is empty when ok is true.
func ValidatePasswordStrength(s string) (ok bool, reason string) {
	if len([]rune(s)) < MinPasswordLength {
		return false, ReasonPasswordTooShort
	}

	// Letters must be ASCII; digits may be any Unicode decimal digit.
	var hasUpper, hasLower, hasDigit bool
	for _, r := range s {
		switch {
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case 'a' <= r && r <= 'z':
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	switch {
	case !hasUpper:
		return false, ReasonPasswordNoUpper
	case !hasLower:
		return false, ReasonPasswordNoLower
	case !hasDigit:
		return false, ReasonPasswordNoDigit
	}
	return true, ""
}

// ValidateUsername validates a username against the naming rules.
func ValidateUsername(username string) error {
	if len(username) > MaxUsernameLength {
		return validationError(CodeInvalidUsername, "username",
			"username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return validationError(CodeInvalidUsername, "username",
			"username must start with a letter or digit and contain only letters, digits, '_', '.' and '-'")
	}
	return nil
}

// validateEmail returns a coded validation error for a malformed email.
func validateEmail(email string) error {
	if !ValidateEmailFormat(email) {
		return validationError(CodeInvalidEmail, "email", "email format is invalid")
	}
	return nil
}

// validatePassword returns a coded validation error carrying the first failing rule.
func validatePassword(password string) error {
	if ok, reason := ValidatePasswordStrength(password); !ok {
		return validationError(CodeWeakPassword, "password", "%s", reason)
	}
	return nil
}

// requireField rejects values that are blank after trimming.
func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return validationError(CodeRequiredField, field, "%s is required", field)
	}
	return nil
}
