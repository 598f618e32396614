// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package config

import (
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"database-driver": "database.driver",
	"database-url":    "database.url",
	"sqlite-path":     "database.sqlite_path",
	"kv-backend":      "kv.backend",
	"redis-addr":      "kv.redis_addr",
	"token-issuer":    "token.issuer",
	"token-ttl":       "token.ttl",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"metrics-addr":    "metrics.addr",
}

// RegisterFlags adds the configuration flags to fs. Only flags the user
// sets override the file; their defaults here are never applied.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("database-driver", "", "identity database driver (postgres or sqlite)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("sqlite-path", "", "SQLite database file")
	fs.String("kv-backend", "", "session and revocation store (memory or redis)")
	fs.String("redis-addr", "", "Redis address (host:port)")
	fs.String("token-issuer", "", "issuer written to bearer tokens")
	fs.Duration("token-ttl", 0, "lifetime of bearer tokens issued at login")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn or error)")
	fs.String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
}
