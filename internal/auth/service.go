// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/authcore/authcore/pkg/errutil"
)

const tracerName = "github.com/authcore/authcore/internal/auth"

// Mode selects the credential kind a login produces.
type Mode int

// Credential modes.
const (
	ModeSession Mode = iota + 1
	ModeToken
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSession:
		return "session"
	case ModeToken:
		return "token"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "session" or "token".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "session":
		return ModeSession, nil
	case "token":
		return ModeToken, nil
	default:
		return 0, validationError("AUTH_INVALID_MODE", "mode", "unknown credential mode %q", s)
	}
}

// Credential is the material presented on an authenticated request.
type Credential struct {
	Mode  Mode
	Value string
}

// LoginResult is the outcome of a successful login. Exactly one of Session
// and Token is set, matching Mode.
type LoginResult struct {
	UserID  ulid.ULID
	Mode    Mode
	Session *SessionHandle
	Token   *BearerToken
}

// Credential returns the credential to present on later requests.
func (r *LoginResult) Credential() Credential {
	if r.Session != nil {
		return Credential{Mode: ModeSession, Value: r.Session.Value}
	}
	return Credential{Mode: ModeToken, Value: r.Token.Value}
}

// Recorder observes the outcome and latency of facade operations.
type Recorder interface {
	Observe(operation, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Observe(string, string, time.Duration) {}

// ServiceConfig holds the dependencies of Service.
type ServiceConfig struct {
	Identities   *IdentityStore
	Sessions     *SessionAuthenticator
	Tokens       *TokenAuthenticator
	Verification *VerificationTokens

	// Lockout defaults to DefaultLockoutPolicy when zero.
	Lockout LockoutPolicy

	// Logger receives best-effort failures. Defaults to slog.Default().
	Logger *slog.Logger

	// Recorder defaults to a no-op.
	Recorder Recorder

	// Now defaults to the system clock.
	Now Clock
}

// Service is the authentication facade used by transports.
type Service struct {
	identities   *IdentityStore
	sessions     *SessionAuthenticator
	tokens       *TokenAuthenticator
	verification *VerificationTokens
	lockout      LockoutPolicy
	logger       *slog.Logger
	recorder     Recorder
	tracer       trace.Tracer
	now          Clock
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Identities == nil {
		return nil, oops.Errorf("identity store is required")
	}
	if cfg.Sessions == nil {
		return nil, oops.Errorf("session authenticator is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Errorf("token authenticator is required")
	}
	if cfg.Verification == nil {
		return nil, oops.Errorf("verification tokens are required")
	}

	s := &Service{
		identities:   cfg.Identities,
		sessions:     cfg.Sessions,
		tokens:       cfg.Tokens,
		verification: cfg.Verification,
		lockout:      cfg.Lockout,
		logger:       cfg.Logger,
		recorder:     cfg.Recorder,
		tracer:       otel.Tracer(tracerName),
		now:          cfg.Now,
	}
	if s.lockout == (LockoutPolicy{}) {
		s.lockout = DefaultLockoutPolicy()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.now == nil {
		s.now = systemClock
	}
	return s, nil
}

// begin starts a span for operation and returns a func recording its outcome.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "auth."+operation)
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			kind := KindOf(err)
			outcome = string(kind)
			if kind == KindStorage {
				errutil.LogErrorContext(ctx, s.logger.With("operation", operation), slog.LevelError, "auth operation failed", err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, ErrorCode(err))
		}
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		span.End()
		s.recorder.Observe(operation, outcome, time.Since(start))
	}
}

// Register creates a new identity.
func (s *Service) Register(ctx context.Context, fields RegistrationFields) (identity *UserIdentity, err error) {
	ctx, done := s.begin(ctx, "register")
	defer func() { done(err) }()

	return s.identities.Register(ctx, fields)
}

// Login verifies identifier and password and issues a credential of the
// requested mode. Unknown identifiers and wrong passwords yield the same
// error after the same amount of hashing work.
func (s *Service) Login(ctx context.Context, identifier, password string, mode Mode) (result *LoginResult, err error) {
	ctx, done := s.begin(ctx, "login")
	defer func() { done(err) }()

	if mode != ModeSession && mode != ModeToken {
		return nil, validationError("AUTH_INVALID_MODE", "mode", "unknown credential mode %s", mode)
	}

	identity, lookupErr := s.identities.FindByIdentifier(ctx, identifier)
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.With("operation", "find identity").Wrap(lookupErr)
		}
	}

	// Always verify, against a dummy hash when the identity is unknown.
	valid, verifyErr := s.identities.VerifyCredential(identity, password)
	if verifyErr != nil {
		return nil, oops.With("operation", "verify password").Wrap(verifyErr)
	}

	now := s.now()
	if identity == nil || !valid {
		if identity != nil {
			if err := s.identities.RecordLoginFailure(ctx, identity, now, s.lockout); err != nil {
				s.logger.WarnContext(ctx, "failed to record login failure",
					"user_id", identity.ID.String(), "error", err)
			}
		}
		return nil, invalidCredentials()
	}

	// Lockout and status are checked after verification to keep timing constant.
	if s.lockout.IsLocked(identity, now) {
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", identity.LockedUntil).
			Wrapf(ErrAuthentication, "account is temporarily locked")
	}
	if !identity.IsActive {
		return nil, authenticationError(CodeAccountInactive, "account is deactivated")
	}

	if s.lockout.RecordSuccess(identity) {
		if err := s.identities.ResetLoginFailures(ctx, identity); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures",
				"user_id", identity.ID.String(), "error", err)
		}
	}
	if s.identities.NeedsRehash(identity) {
		if err := s.identities.Rehash(ctx, identity, password); err != nil {
			s.logger.WarnContext(ctx, "password hash upgrade failed",
				"user_id", identity.ID.String(), "error", err)
		}
	}

	result = &LoginResult{UserID: identity.ID, Mode: mode}
	switch mode {
	case ModeSession:
		result.Session, err = s.sessions.CreateSession(ctx, identity.ID)
	case ModeToken:
		result.Token, err = s.tokens.Issue(identity.ID, s.tokens.Lifetime())
	}
	if err != nil {
		return nil, oops.With("operation", "issue credential").With("mode", mode.String()).Wrap(err)
	}
	return result, nil
}

// Authenticate resolves a credential to the identity it proves. Every
// credential failure is reported as one generic authentication error; the
// specific reason is kept in the error context.
func (s *Service) Authenticate(ctx context.Context, cred Credential) (userID ulid.ULID, err error) {
	ctx, done := s.begin(ctx, "authenticate")
	defer func() { done(err) }()

	switch cred.Mode {
	case ModeSession:
		userID, err = s.sessions.Resolve(ctx, cred.Value)
		if err == nil {
			if touchErr := s.sessions.Touch(ctx, cred.Value); touchErr != nil {
				s.logger.DebugContext(ctx, "session touch failed", "error", touchErr)
			}
		}
	case ModeToken:
		userID, err = s.tokens.Validate(ctx, cred.Value)
	default:
		return ulid.ULID{}, unauthenticated("AUTH_INVALID_MODE")
	}
	if err != nil {
		return ulid.ULID{}, collapse(err)
	}
	return userID, nil
}

// Logout destroys the session or revokes the token. Logging out an unknown
// session or an expired token succeeds.
func (s *Service) Logout(ctx context.Context, cred Credential) (err error) {
	ctx, done := s.begin(ctx, "logout")
	defer func() { done(err) }()

	switch cred.Mode {
	case ModeSession:
		return s.sessions.Destroy(ctx, cred.Value)
	case ModeToken:
		return collapse(s.tokens.Revoke(ctx, cred.Value))
	default:
		return unauthenticated("AUTH_INVALID_MODE")
	}
}

// UpdateProfile patches the profile of userID, the authenticated caller.
func (s *Service) UpdateProfile(ctx context.Context, userID ulid.ULID, patch ProfilePatch) (identity *UserIdentity, err error) {
	ctx, done := s.begin(ctx, "update_profile")
	defer func() { done(err) }()

	return s.identities.UpdateFields(ctx, userID, patch)
}

// DeleteAccount revokes every credential of userID and then removes the
// identity. Nothing is deleted if revocation fails.
func (s *Service) DeleteAccount(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, done := s.begin(ctx, "delete_account")
	defer func() { done(err) }()

	if _, err := s.identities.FindByID(ctx, userID); err != nil {
		return err
	}
	if err := s.revokeAll(ctx, userID); err != nil {
		return err
	}
	return s.identities.Delete(ctx, userID)
}

// Deactivate soft-deletes userID: the account stays but can no longer log
// in, and every outstanding credential is revoked.
func (s *Service) Deactivate(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, done := s.begin(ctx, "deactivate")
	defer func() { done(err) }()

	if err := s.revokeAll(ctx, userID); err != nil {
		return err
	}
	return s.identities.SetActive(ctx, userID, false)
}

func (s *Service) revokeAll(ctx context.Context, userID ulid.ULID) error {
	if _, err := s.sessions.DestroyAll(ctx, userID); err != nil {
		return err
	}
	return s.tokens.RevokeSubject(ctx, userID)
}

// RequestEmailVerification returns a token that verifies userID's email
// when redeemed. Delivery is up to the caller.
func (s *Service) RequestEmailVerification(ctx context.Context, userID ulid.ULID) (token string, err error) {
	ctx, done := s.begin(ctx, "request_email_verification")
	defer func() { done(err) }()

	identity, err := s.identities.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if identity.IsVerified {
		return "", alreadyVerified(identity.ID)
	}
	return s.verification.Issue(identity.ID, PurposeEmailVerification)
}

// VerifyEmail redeems an email verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) (identity *UserIdentity, err error) {
	ctx, done := s.begin(ctx, "verify_email")
	defer func() { done(err) }()

	userID, err := s.verification.Verify(token, PurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	identity, err = s.identities.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if identity.IsVerified {
		return nil, alreadyVerified(identity.ID)
	}
	if err := s.identities.MarkVerified(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// IssuePasswordResetToken returns a reset token for the active account
// registered with email. Unknown or inactive accounts get an empty token and
// no error so callers cannot probe for registered addresses.
func (s *Service) IssuePasswordResetToken(ctx context.Context, email string) (token string, err error) {
	ctx, done := s.begin(ctx, "issue_reset_token")
	defer func() { done(err) }()

	if err := validateEmail(email); err != nil {
		return "", err
	}
	identity, err := s.identities.FindByIdentifier(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !identity.IsActive {
		return "", nil
	}
	return s.verification.Issue(identity.ID, PurposePasswordReset)
}

// VerifyPasswordResetToken returns the user a reset token was issued to.
func (s *Service) VerifyPasswordResetToken(ctx context.Context, token string) (userID ulid.ULID, err error) {
	ctx, done := s.begin(ctx, "verify_reset_token")
	defer func() { done(err) }()

	userID, err = s.verification.Verify(token, PurposePasswordReset)
	if err != nil {
		return ulid.ULID{}, err
	}
	if _, err := s.identities.FindByID(ctx, userID); err != nil {
		return ulid.ULID{}, err
	}
	return userID, nil
}

// collapse replaces credential failures with one generic error carrying the
// original code as reason. Other errors pass through.
func collapse(err error) error {
	if err == nil || KindOf(err) != KindAuthentication {
		return err
	}
	return unauthenticated(ErrorCode(err))
}

func unauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).
		With("reason", reason).
		Wrapf(ErrAuthentication, "invalid credentials")
}

func alreadyVerified(id ulid.ULID) error {
	return oops.Code(CodeAlreadyVerified).
		With("user_id", id.String()).
		Wrapf(ErrConflict, "email already verified")
}
