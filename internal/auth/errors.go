// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Sentinel errors identifying the kind of a failure. Coded oops errors wrap
// exactly one of these so callers can classify with errors.Is or KindOf.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrAuthentication marks any failed proof of identity.
	ErrAuthentication = errors.New("authentication failed")
)

// ErrorKind classifies errors returned by this package.
type ErrorKind string

// Error kinds.
const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindAuthentication ErrorKind = "authentication"
	KindNotFound       ErrorKind = "not_found"
	KindStorage        ErrorKind = "storage"
)

// Retryable reports whether a request failing with this kind may succeed
// unchanged on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindStorage
}

// KindOf classifies err. Errors that match no sentinel are treated as
// storage failures. Returns "" for a nil error.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindStorage
	}
}

// Error codes attached to returned errors.
const (
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked       = "AUTH_ACCOUNT_LOCKED"
	CodeAccountInactive     = "AUTH_ACCOUNT_INACTIVE"
	CodeUnauthenticated     = "AUTH_UNAUTHENTICATED"
	CodeRequiredField       = "AUTH_REQUIRED_FIELD"
	CodeInvalidEmail        = "AUTH_INVALID_EMAIL"
	CodeInvalidUsername     = "AUTH_INVALID_USERNAME"
	CodeWeakPassword        = "AUTH_WEAK_PASSWORD"
	CodeEmptyPatch          = "AUTH_EMPTY_PATCH"
	CodeDuplicateUsername   = "AUTH_DUPLICATE_USERNAME"
	CodeDuplicateEmail      = "AUTH_DUPLICATE_EMAIL"
	CodeAlreadyVerified     = "AUTH_EMAIL_ALREADY_VERIFIED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenRevoked        = "TOKEN_REVOKED"
	CodeInvalidTTL          = "TOKEN_INVALID_TTL"
	CodeVerificationInvalid = "VERIFICATION_TOKEN_INVALID"
	CodeVerificationExpired = "VERIFICATION_TOKEN_EXPIRED"
)

// ErrorCode returns the oops code carried by err, or "" if it has none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if code := oopsErr.Code(); code != nil {
		return fmt.Sprint(code)
	}
	return ""
}

// DuplicateError reports a uniqueness violation on field ("username" or
// "email"). Repositories call it when the storage constraint fires.
func DuplicateError(field string) error {
	code := CodeDuplicateUsername
	if field == "email" {
		code = CodeDuplicateEmail
	}
	return oops.Code(code).
		With("field", field).
		Wrapf(ErrConflict, "%s already exists", field)
}

// NotFoundError reports a missing identity keyed by key=value.
func NotFoundError(key string, value any) error {
	return oops.Code(CodeUserNotFound).
		With(key, value).
		Wrap(ErrNotFound)
}

func validationError(code, field, format string, args ...any) error {
	return oops.Code(code).
		With("field", field).
		Wrapf(ErrValidation, format, args...)
}

func authenticationError(code, msg string) error {
	return oops.Code(code).Wrapf(ErrAuthentication, "%s", msg)
}

// invalidCredentials is the single error returned for unknown identifiers and
// wrong passwords alike.
func invalidCredentials() error {
	return authenticationError(CodeInvalidCredentials, "invalid credentials")
}
