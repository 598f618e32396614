// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

// Package auth provides the authentication and credential-lifecycle engine.
//
// # Domain Types
//
// UserIdentity records are created through IdentityStore.Register, which
// validates every field and hashes the password before anything reaches an
// IdentityRepository. Repositories enforce username and email uniqueness with
// storage-level constraints and report violations as conflict errors.
//
// # Credentials
//
// Two credential kinds prove an identity after login:
//   - SessionHandle - an opaque random handle resolved by SessionAuthenticator
//     against a SessionStore; only its SHA-256 digest is stored
//   - BearerToken - an HS256-signed token validated by TokenAuthenticator
//     (signature, then expiry, then the RevocationRegistry)
//
// # Services
//
// Service is the facade used by transports: Register, Login, Authenticate,
// Logout, UpdateProfile and DeleteAccount, plus email verification and
// password-reset token primitives. Every error it returns carries an oops
// code and can be classified with KindOf.
package auth
