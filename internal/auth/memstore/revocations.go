// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/authcore/authcore/internal/auth"
)

// RevocationRegistry implements auth.RevocationRegistry in memory.
// It is safe for concurrent use. Call Close to stop the reaper.
type RevocationRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
	reaper  *reaper
}

// NewRevocationRegistry creates a RevocationRegistry and starts its reaper.
func NewRevocationRegistry(cfg Config) *RevocationRegistry {
	cfg = cfg.withDefaults()
	r := &RevocationRegistry{
		entries: make(map[string]time.Time),
		now:     cfg.Now,
	}
	r.reaper = newReaper(cfg.ReapInterval, r.Reap)
	return r
}

// Add implements auth.RevocationRegistry. Re-adding an id keeps the later expiry.
func (r *RevocationRegistry) Add(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expiresAt := r.now().Add(ttl)
	if current, ok := r.entries[tokenID]; !ok || expiresAt.After(current) {
		r.entries[tokenID] = expiresAt
	}
	return nil
}

// Contains implements auth.RevocationRegistry.
func (r *RevocationRegistry) Contains(_ context.Context, tokenID string) (bool, error) {
	r.mu.RLock()
	expiresAt, ok := r.entries[tokenID]
	r.mu.RUnlock()
	return ok && expiresAt.After(r.now()), nil
}

// Len returns the number of entries, including expired ones not yet reaped.
func (r *RevocationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reap removes expired entries.
func (r *RevocationRegistry) Reap() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, expiresAt := range r.entries {
		if !expiresAt.After(now) {
			delete(r.entries, id)
		}
	}
}

// Close stops the reaper. It blocks until the goroutine has stopped.
func (r *RevocationRegistry) Close() {
	r.reaper.close()
}

// Compile-time interface check.
var _ auth.RevocationRegistry = (*RevocationRegistry)(nil)
