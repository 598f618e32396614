// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Purpose scopes a verification token to a single use case. It is carried
// as the token audience, so a token never validates for another purpose or
// as a bearer token.
type Purpose string

// Verification purposes.
const (
	PurposeEmailVerification Purpose = "email-verification"
	PurposePasswordReset     Purpose = "password-reset"
)

// Default verification token lifetimes.
const (
	DefaultVerificationTTL = time.Hour
	DefaultResetTTL        = time.Hour
)

// VerificationTokens issues and checks purpose-scoped signed tokens.
type VerificationTokens struct {
	signer *signer
	ttls   map[Purpose]time.Duration
}

// VerificationConfig configures VerificationTokens.
type VerificationConfig struct {
	// Token carries the signing key and issuer.
	Token TokenConfig

	// EmailVerificationTTL defaults to DefaultVerificationTTL.
	EmailVerificationTTL time.Duration

	// PasswordResetTTL defaults to DefaultResetTTL.
	PasswordResetTTL time.Duration
}

// NewVerificationTokens creates VerificationTokens. A nil clock uses the
// system time.
func NewVerificationTokens(cfg VerificationConfig, now Clock) (*VerificationTokens, error) {
	s, err := newSigner(cfg.Token, now)
	if err != nil {
		return nil, err
	}

	ttls := map[Purpose]time.Duration{
		PurposeEmailVerification: cfg.EmailVerificationTTL,
		PurposePasswordReset:     cfg.PasswordResetTTL,
	}
	if ttls[PurposeEmailVerification] == 0 {
		ttls[PurposeEmailVerification] = DefaultVerificationTTL
	}
	if ttls[PurposePasswordReset] == 0 {
		ttls[PurposePasswordReset] = DefaultResetTTL
	}
	for purpose, ttl := range ttls {
		if ttl < MinTokenTTL {
			return nil, oops.Code(CodeInvalidTTL).
				With("purpose", string(purpose)).
				With("ttl", ttl).
				Errorf("verification ttl must be at least %s", MinTokenTTL)
		}
	}

	return &VerificationTokens{signer: s, ttls: ttls}, nil
}

// Issue returns a token proving control of userID's account for purpose.
func (v *VerificationTokens) Issue(userID ulid.ULID, purpose Purpose) (string, error) {
	ttl, ok := v.ttls[purpose]
	if !ok {
		return "", oops.Code("VERIFICATION_UNKNOWN_PURPOSE").
			With("purpose", string(purpose)).
			Errorf("unknown verification purpose")
	}
	tok, err := v.signer.sign(userID, string(purpose), ttl)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Verify returns the user a token was issued to. Signature and purpose are
// checked before expiry.
func (v *VerificationTokens) Verify(value string, purpose Purpose) (ulid.ULID, error) {
	tok, err := v.signer.verify(value, string(purpose))
	if err != nil {
		return ulid.ULID{}, authenticationError(CodeVerificationInvalid, "verification token is invalid")
	}
	if v.signer.expired(tok) {
		return ulid.ULID{}, authenticationError(CodeVerificationExpired, "verification token has expired")
	}
	return tok.Subject, nil
}
