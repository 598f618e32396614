// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultIssuer   = "authcore"

	// MinSigningKeyLength is the minimum HS256 key size in bytes.
	MinSigningKeyLength = 32

	// MinTokenTTL is the shortest lifetime a token can be issued with.
	MinTokenTTL = time.Second
)

// AudienceAccess is the audience of bearer tokens.
const AudienceAccess = "access"

// subjectRevocationPrefix prefixes registry keys that revoke every token of a subject.
const subjectRevocationPrefix = "sub:"

// TokenConfig configures the signing of tokens.
type TokenConfig struct {
	// SigningKey is the HS256 secret, at least MinSigningKeyLength bytes.
	SigningKey []byte

	// Issuer is written to and required in the iss claim. Defaults to DefaultIssuer.
	Issuer string

	// TTL is the lifetime of tokens issued at login. Defaults to DefaultTokenTTL.
	TTL time.Duration

	// MaxTTL caps the ttl accepted by Issue. Defaults to TTL.
	MaxTTL time.Duration
}

// BearerToken is a signed, self-contained credential.
type BearerToken struct {
	Value     string
	TokenID   string
	Subject   ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// signer signs and verifies HS256 tokens for one issuer.
type signer struct {
	key    []byte
	issuer string
	now    Clock
}

func newSigner(cfg TokenConfig, now Clock) (*signer, error) {
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, oops.Code("TOKEN_INVALID_KEY").
			With("min_length", MinSigningKeyLength).
			Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if now == nil {
		now = systemClock
	}
	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)
	return &signer{key: key, issuer: issuer, now: now}, nil
}

// sign issues a token for subject with the given audience and lifetime.
// Times have one-second resolution.
func (s *signer) sign(subject ulid.ULID, audience string, ttl time.Duration) (*BearerToken, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)
	tokenID := uuid.NewString()

	claims := jwt.RegisteredClaims{
		ID:        tokenID,
		Issuer:    s.issuer,
		Subject:   subject.String(),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, oops.Code("TOKEN_SIGN_FAILED").
			With("operation", "sign token").
			Wrap(err)
	}

	return &BearerToken{
		Value:     value,
		TokenID:   tokenID,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// verify checks the signature, issuer, audience and claim shape of value
// without looking at expiry. Claims of a token that fails here are never
// trusted.
func (s *signer) verify(value, audience string) (*BearerToken, error) {
	if value == "" {
		return nil, errMalformedToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, errMalformedToken
	}

	if claims.Issuer != s.issuer || !slices.Contains(claims.Audience, audience) {
		return nil, errMalformedToken
	}
	if claims.ID == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, errMalformedToken
	}
	subject, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, errMalformedToken
	}

	return &BearerToken{
		Value:     value,
		TokenID:   claims.ID,
		Subject:   subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// expired reports whether tok is past its expiry. A token is valid only
// while expires_at > now.
func (s *signer) expired(tok *BearerToken) bool {
	return !tok.ExpiresAt.After(s.now())
}

// errMalformedToken is an internal marker for tokens failing verification.
var errMalformedToken = errors.New("malformed token")

// TokenAuthenticator issues and validates bearer tokens.
type TokenAuthenticator struct {
	signer   *signer
	registry RevocationRegistry
	ttl      time.Duration
	maxTTL   time.Duration
}

// NewTokenAuthenticator creates a TokenAuthenticator. A nil clock uses the
// system time.
func NewTokenAuthenticator(cfg TokenConfig, registry RevocationRegistry, now Clock) (*TokenAuthenticator, error) {
	if registry == nil {
		return nil, oops.Errorf("revocation registry is required")
	}
	s, err := newSigner(cfg, now)
	if err != nil {
		return nil, err
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	maxTTL := cfg.MaxTTL
	if maxTTL == 0 {
		maxTTL = ttl
	}
	if ttl < MinTokenTTL || maxTTL < ttl {
		return nil, oops.Code(CodeInvalidTTL).
			With("ttl", ttl).
			With("max_ttl", maxTTL).
			Errorf("token ttl must be at least %s and not exceed max ttl", MinTokenTTL)
	}

	return &TokenAuthenticator{signer: s, registry: registry, ttl: ttl, maxTTL: maxTTL}, nil
}

// Lifetime returns the ttl of tokens issued at login.
func (a *TokenAuthenticator) Lifetime() time.Duration {
	return a.ttl
}

// Issue signs a new token for userID valid for ttl. Every call yields a
// fresh token id.
func (a *TokenAuthenticator) Issue(userID ulid.ULID, ttl time.Duration) (*BearerToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_SUBJECT").Errorf("user ID cannot be zero")
	}
	if ttl < MinTokenTTL || ttl > a.maxTTL {
		return nil, oops.Code(CodeInvalidTTL).
			With("ttl", ttl).
			With("max_ttl", a.maxTTL).
			Errorf("token ttl must be between %s and %s", MinTokenTTL, a.maxTTL)
	}
	return a.signer.sign(userID, AudienceAccess, ttl)
}

// Validate returns the subject of value. Checks run in a fixed order:
// signature, then expiry, then revocation of the token id and of the subject.
func (a *TokenAuthenticator) Validate(ctx context.Context, value string) (ulid.ULID, error) {
	tok, err := a.signer.verify(value, AudienceAccess)
	if err != nil {
		return ulid.ULID{}, authenticationError(CodeTokenInvalid, "token is invalid")
	}

	if a.signer.expired(tok) {
		return ulid.ULID{}, authenticationError(CodeTokenExpired, "token has expired")
	}

	for _, key := range []string{tok.TokenID, subjectRevocationPrefix + tok.Subject.String()} {
		revoked, err := a.registry.Contains(ctx, key)
		if err != nil {
			return ulid.ULID{}, oops.Code("TOKEN_REVOCATION_LOOKUP_FAILED").
				With("operation", "check revocation").
				With("token_id", tok.TokenID).
				Wrap(err)
		}
		if revoked {
			return ulid.ULID{}, authenticationError(CodeTokenRevoked, "token has been revoked")
		}
	}

	return tok.Subject, nil
}

// Inspect verifies the signature of value and returns its claims without
// checking expiry or revocation.
func (a *TokenAuthenticator) Inspect(value string) (*BearerToken, error) {
	tok, err := a.signer.verify(value, AudienceAccess)
	if err != nil {
		return nil, authenticationError(CodeTokenInvalid, "token is invalid")
	}
	return tok, nil
}

// Revoke adds the token id to the registry for the token's remaining
// lifetime. Revoking an expired or already revoked token is a no-op. Tokens
// with a bad signature are rejected.
func (a *TokenAuthenticator) Revoke(ctx context.Context, value string) error {
	tok, err := a.signer.verify(value, AudienceAccess)
	if err != nil {
		return authenticationError(CodeTokenInvalid, "token is invalid")
	}

	remaining := tok.ExpiresAt.Sub(a.signer.now())
	if remaining <= 0 {
		return nil
	}

	if err := a.registry.Add(ctx, tok.TokenID, remaining); err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "add revocation").
			With("token_id", tok.TokenID).
			Wrap(err)
	}
	return nil
}

// RevokeSubject revokes every outstanding token of userID. The entry lives
// for the longest lifetime a token can be issued with.
func (a *TokenAuthenticator) RevokeSubject(ctx context.Context, userID ulid.ULID) error {
	if err := a.registry.Add(ctx, subjectRevocationPrefix+userID.String(), a.maxTTL); err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "add subject revocation").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}
