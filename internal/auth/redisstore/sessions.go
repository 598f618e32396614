// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authcore/authcore/internal/auth"
)

// sessionValue is the JSON form of a session record.
type sessionValue struct {
	UserID     ulid.ULID `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// SessionStore implements auth.SessionStore on Redis.
//
// Each record lives under <prefix>session:<id> with the record's ttl. A set
// under <prefix>user_sessions:<user id> indexes the ids of a user; it expires
// no earlier than the newest session it lists.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore creates a SessionStore. An empty prefix uses DefaultKeyPrefix.
func NewSessionStore(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefixOrDefault(prefix)}
}

func (s *SessionStore) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *SessionStore) userKey(userID ulid.ULID) string {
	return s.prefix + "user_sessions:" + userID.String()
}

// Save implements auth.SessionStore.
func (s *SessionStore) Save(ctx context.Context, rec *auth.SessionRecord, ttl time.Duration) error {
	if rec == nil || rec.ID == "" {
		return oops.Code("SESSION_STORE_INVALID").Errorf("session record must have an ID")
	}
	if ttl <= 0 {
		return s.Delete(ctx, rec.ID)
	}

	data, err := s.marshal(rec)
	if err != nil {
		return err
	}

	userKey := s.userKey(rec.UserID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(rec.ID), data, ttl)
		pipe.SAdd(ctx, userKey, rec.ID)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_STORE_FAILED").
			With("operation", "save session").
			With("user_id", rec.UserID.String()).
			Wrap(err)
	}

	return s.extendIndex(ctx, userKey, ttl)
}

// Refresh implements auth.SessionStore with SET XX, so a record deleted
// after the caller read it is not written again.
func (s *SessionStore) Refresh(ctx context.Context, rec *auth.SessionRecord, ttl time.Duration) (bool, error) {
	if rec == nil || rec.ID == "" {
		return false, oops.Code("SESSION_STORE_INVALID").Errorf("session record must have an ID")
	}
	if ttl <= 0 {
		return false, s.Delete(ctx, rec.ID)
	}

	data, err := s.marshal(rec)
	if err != nil {
		return false, err
	}

	err = s.client.SetArgs(ctx, s.sessionKey(rec.ID), data, redis.SetArgs{Mode: "XX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("SESSION_STORE_FAILED").
			With("operation", "refresh session").
			With("user_id", rec.UserID.String()).
			Wrap(err)
	}
	return true, s.extendIndex(ctx, s.userKey(rec.UserID), ttl)
}

func (s *SessionStore) marshal(rec *auth.SessionRecord) ([]byte, error) {
	data, err := json.Marshal(sessionValue{
		UserID:     rec.UserID,
		CreatedAt:  rec.CreatedAt,
		LastSeenAt: rec.LastSeenAt,
	})
	if err != nil {
		return nil, oops.Code("SESSION_STORE_FAILED").With("operation", "marshal session").Wrap(err)
	}
	return data, nil
}

// extendIndex makes the user index live at least as long as ttl.
func (s *SessionStore) extendIndex(ctx context.Context, userKey string, ttl time.Duration) error {
	// PTTL reports -1 for no expiry and -2 for a missing key; both are below ttl.
	current, err := s.client.PTTL(ctx, userKey).Result()
	if err != nil {
		return oops.Code("SESSION_STORE_FAILED").With("operation", "read index ttl").Wrap(err)
	}
	if current < ttl {
		if err := s.client.PExpire(ctx, userKey, ttl).Err(); err != nil {
			return oops.Code("SESSION_STORE_FAILED").With("operation", "extend index ttl").Wrap(err)
		}
	}
	return nil
}

// Get implements auth.SessionStore.
func (s *SessionStore) Get(ctx context.Context, id string) (*auth.SessionRecord, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_STORE_FAILED").With("operation", "get session").Wrap(err)
	}

	var v sessionValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, oops.Code("SESSION_STORE_FAILED").With("operation", "unmarshal session").Wrap(err)
	}
	return &auth.SessionRecord{
		ID:         id,
		UserID:     v.UserID,
		CreatedAt:  v.CreatedAt,
		LastSeenAt: v.LastSeenAt,
	}, nil
}

// Delete implements auth.SessionStore.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if errors.Is(err, auth.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(id))
		pipe.SRem(ctx, s.userKey(rec.UserID), id)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_STORE_FAILED").With("operation", "delete session").Wrap(err)
	}
	return nil
}

// DeleteByUser implements auth.SessionStore. It returns the number of live
// sessions removed.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID ulid.ULID) (int, error) {
	userKey := s.userKey(userID)
	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, oops.Code("SESSION_STORE_FAILED").
			With("operation", "list user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}

	var removed int64
	if len(keys) > 0 {
		removed, err = s.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, oops.Code("SESSION_STORE_FAILED").
				With("operation", "delete user sessions").
				With("user_id", userID.String()).
				Wrap(err)
		}
	}
	if err := s.client.Del(ctx, userKey).Err(); err != nil {
		return 0, oops.Code("SESSION_STORE_FAILED").
			With("operation", "delete session index").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return int(removed), nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
