// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"context"
	"time"
)

// RevocationRegistry remembers token ids revoked before their natural expiry.
//
// Entries expire on their own after the ttl given to Add, which is always the
// remaining lifetime of the revoked token, so the registry only ever holds
// tokens that could still validate. Implementations must be safe for
// concurrent Add and Contains. A Contains racing an Add for the same id may
// still report false; the token then validates at most once more.
type RevocationRegistry interface {
	// Add records tokenID for ttl. A ttl of zero or less is a no-op.
	Add(ctx context.Context, tokenID string, ttl time.Duration) error

	// Contains reports whether tokenID is currently revoked.
	Contains(ctx context.Context, tokenID string) (bool, error)
}
