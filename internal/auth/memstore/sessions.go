// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authcore/authcore/internal/auth"
)

type sessionEntry struct {
	rec       auth.SessionRecord
	expiresAt time.Time
}

// SessionStore implements auth.SessionStore in memory.
// It is safe for concurrent use. Call Close to stop the reaper.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]sessionEntry
	byUser  map[ulid.ULID]map[string]struct{}
	now     func() time.Time
	reaper  *reaper
}

// NewSessionStore creates a SessionStore and starts its reaper.
func NewSessionStore(cfg Config) *SessionStore {
	cfg = cfg.withDefaults()
	s := &SessionStore{
		entries: make(map[string]sessionEntry),
		byUser:  make(map[ulid.ULID]map[string]struct{}),
		now:     cfg.Now,
	}
	s.reaper = newReaper(cfg.ReapInterval, s.Reap)
	return s
}

// Save implements auth.SessionStore.
func (s *SessionStore) Save(_ context.Context, rec *auth.SessionRecord, ttl time.Duration) error {
	if rec == nil || rec.ID == "" {
		return oops.Code("SESSION_STORE_INVALID").Errorf("session record must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		s.deleteLocked(rec.ID)
		return nil
	}

	s.entries[rec.ID] = sessionEntry{rec: *rec, expiresAt: s.now().Add(ttl)}
	ids, ok := s.byUser[rec.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[rec.UserID] = ids
	}
	ids[rec.ID] = struct{}{}
	return nil
}

// Refresh implements auth.SessionStore. The presence check and the write
// happen under one lock, so a concurrent Delete either wins outright or
// removes the refreshed record.
func (s *SessionStore) Refresh(_ context.Context, rec *auth.SessionRecord, ttl time.Duration) (bool, error) {
	if rec == nil || rec.ID == "" {
		return false, oops.Code("SESSION_STORE_INVALID").Errorf("session record must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[rec.ID]
	if !ok || !entry.expiresAt.After(s.now()) {
		return false, nil
	}
	if ttl <= 0 {
		s.deleteLocked(rec.ID)
		return false, nil
	}

	// The owner of a stored record never changes, so the user index is current.
	s.entries[rec.ID] = sessionEntry{
		rec:       auth.SessionRecord{ID: rec.ID, UserID: entry.rec.UserID, CreatedAt: rec.CreatedAt, LastSeenAt: rec.LastSeenAt},
		expiresAt: s.now().Add(ttl),
	}
	return true, nil
}

// Get implements auth.SessionStore.
func (s *SessionStore) Get(_ context.Context, id string) (*auth.SessionRecord, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || !entry.expiresAt.After(s.now()) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	rec := entry.rec
	return &rec, nil
}

// Delete implements auth.SessionStore.
func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
	return nil
}

// DeleteByUser implements auth.SessionStore.
func (s *SessionStore) DeleteByUser(_ context.Context, userID ulid.ULID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id := range s.byUser[userID] {
		if entry, ok := s.entries[id]; ok && entry.expiresAt.After(now) {
			removed++
		}
		delete(s.entries, id)
	}
	delete(s.byUser, userID)
	return removed, nil
}

// Len returns the number of stored records, including expired ones not yet reaped.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reap removes expired records. It is called by the background reaper but
// can also be called directly.
func (s *SessionStore) Reap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, entry := range s.entries {
		if !entry.expiresAt.After(now) {
			s.deleteLocked(id)
		}
	}
}

// Close stops the reaper. It blocks until the goroutine has stopped.
func (s *SessionStore) Close() {
	s.reaper.close()
}

func (s *SessionStore) deleteLocked(id string) {
	entry, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	if ids := s.byUser[entry.rec.UserID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, entry.rec.UserID)
		}
	}
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
