// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authcore/authcore/internal/auth"
)

// RevocationRegistry implements auth.RevocationRegistry with one key per
// revoked id under <prefix>revoked:<id>.
type RevocationRegistry struct {
	client redis.UniversalClient
	prefix string
}

// NewRevocationRegistry creates a RevocationRegistry. An empty prefix uses
// DefaultKeyPrefix.
func NewRevocationRegistry(client redis.UniversalClient, prefix string) *RevocationRegistry {
	return &RevocationRegistry{client: client, prefix: prefixOrDefault(prefix)}
}

func (r *RevocationRegistry) key(tokenID string) string {
	return r.prefix + "revoked:" + tokenID
}

// addScript sets the key with ttl unless it already lives longer. PTTL is -2
// for a missing key and -1 for one without expiry.
var addScript = redis.NewScript(`
local ttl = tonumber(ARGV[1])
if redis.call("PTTL", KEYS[1]) < ttl then
	redis.call("SET", KEYS[1], "1", "PX", ttl)
	return 1
end
return 0
`)

// Add implements auth.RevocationRegistry. Re-adding an id keeps the later
// expiry; the comparison and the write run as one script.
func (r *RevocationRegistry) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	if err := addScript.Run(ctx, r.client, []string{r.key(tokenID)}, ms).Err(); err != nil {
		return oops.Code("REVOCATION_STORE_FAILED").
			With("operation", "add revocation").
			With("token_id", tokenID).
			Wrap(err)
	}
	return nil
}

// Contains implements auth.RevocationRegistry.
func (r *RevocationRegistry) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, oops.Code("REVOCATION_STORE_FAILED").With("operation", "check revocation").Wrap(err)
	}
	return n > 0, nil
}

// Compile-time interface check.
var _ auth.RevocationRegistry = (*RevocationRegistry)(nil)
