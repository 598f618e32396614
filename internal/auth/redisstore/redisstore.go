// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

// Package redisstore implements auth.SessionStore and auth.RevocationRegistry
// on Redis. Expiry is delegated to Redis key TTLs, so several engine
// instances can share one Redis deployment.
package redisstore

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultKeyPrefix namespaces every key written by this package.
const DefaultKeyPrefix = "authcore:"

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string
}

// Connect creates a client for opts and verifies it with PING.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrap(err)
	}
	return client, nil
}

func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return DefaultKeyPrefix
	}
	return prefix
}
