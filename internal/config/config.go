// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

// Package config loads the authcore configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, explicitly set command-line flags, then AUTHCORE_* environment
// variables. The merged result is validated before it is returned.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/authcore/authcore/internal/auth"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AUTHCORE_"

// Config is the complete process configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database" envPrefix:"DATABASE_"`
	KV       KVConfig       `koanf:"kv" envPrefix:"KV_"`
	Token    TokenConfig    `koanf:"token" envPrefix:"TOKEN_"`
	Session  SessionConfig  `koanf:"session" envPrefix:"SESSION_"`
	Hasher   HasherConfig   `koanf:"hasher" envPrefix:"HASHER_"`
	Lockout  LockoutConfig  `koanf:"lockout" envPrefix:"LOCKOUT_"`
	Log      LogConfig      `koanf:"log" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `koanf:"metrics" envPrefix:"METRICS_"`
}

// DatabaseConfig selects and locates the identity database.
type DatabaseConfig struct {
	Driver         string        `koanf:"driver" env:"DRIVER" validate:"oneof=postgres sqlite" jsonschema:"enum=postgres,enum=sqlite"`
	URL            string        `koanf:"url" env:"URL" validate:"required_if=Driver postgres"`
	SQLitePath     string        `koanf:"sqlite_path" env:"SQLITE_PATH" validate:"required_if=Driver sqlite"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" env:"CONNECT_TIMEOUT" validate:"gt=0"`
}

// KVConfig selects the session and revocation store.
type KVConfig struct {
	Backend       string        `koanf:"backend" env:"BACKEND" validate:"oneof=memory redis" jsonschema:"enum=memory,enum=redis"`
	RedisAddr     string        `koanf:"redis_addr" env:"REDIS_ADDR" validate:"required_if=Backend redis"`
	RedisPassword string        `koanf:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `koanf:"redis_db" env:"REDIS_DB" validate:"gte=0"`
	KeyPrefix     string        `koanf:"key_prefix" env:"KEY_PREFIX"`
	ReapInterval  time.Duration `koanf:"reap_interval" env:"REAP_INTERVAL" validate:"gt=0"`
}

// TokenConfig configures bearer and verification tokens.
type TokenConfig struct {
	SigningKey      string        `koanf:"signing_key" env:"SIGNING_KEY" validate:"omitempty,min=32"`
	SigningKeyFile  string        `koanf:"signing_key_file" env:"SIGNING_KEY_FILE"`
	Issuer          string        `koanf:"issuer" env:"ISSUER" validate:"required"`
	TTL             time.Duration `koanf:"ttl" env:"TTL" validate:"gte=1s"`
	MaxTTL          time.Duration `koanf:"max_ttl" env:"MAX_TTL" validate:"omitempty,gtefield=TTL"`
	VerificationTTL time.Duration `koanf:"verification_ttl" env:"VERIFICATION_TTL" validate:"gte=1s"`
	ResetTTL        time.Duration `koanf:"reset_ttl" env:"RESET_TTL" validate:"gte=1s"`
}

// SessionConfig holds the session timeouts.
type SessionConfig struct {
	IdleTimeout     time.Duration `koanf:"idle_timeout" env:"IDLE_TIMEOUT" validate:"gt=0"`
	AbsoluteTimeout time.Duration `koanf:"absolute_timeout" env:"ABSOLUTE_TIMEOUT" validate:"gtefield=IdleTimeout"`
}

// HasherConfig holds the argon2id cost parameters.
type HasherConfig struct {
	Time      uint32 `koanf:"time" env:"TIME" validate:"gte=1"`
	MemoryKiB uint32 `koanf:"memory_kib" env:"MEMORY_KIB" validate:"gte=8"`
	Threads   uint8  `koanf:"threads" env:"THREADS" validate:"gte=1"`
}

// LockoutConfig holds the failed-login lockout policy.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold" env:"THRESHOLD" validate:"gte=1"`
	Duration  time.Duration `koanf:"duration" env:"DURATION" validate:"gt=0"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" env:"FORMAT" validate:"oneof=json text" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" env:"LEVEL" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// MetricsConfig configures the observability server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" env:"ADDR" validate:"omitempty,hostname_port"`
}

// Defaults returns the built-in configuration values, keyed by their
// dotted config path.
func Defaults() map[string]any {
	return map[string]any{
		"database.driver":          "postgres",
		"database.url":             "",
		"database.sqlite_path":     "authcore.db",
		"database.connect_timeout": 30 * time.Second,
		"kv.backend":               "memory",
		"kv.redis_addr":            "",
		"kv.redis_password":        "",
		"kv.redis_db":              0,
		"kv.key_prefix":            "authcore:",
		"kv.reap_interval":         time.Minute,
		"token.signing_key":        "",
		"token.signing_key_file":   "",
		"token.issuer":             auth.DefaultIssuer,
		"token.ttl":                auth.DefaultTokenTTL,
		"token.max_ttl":            time.Duration(0),
		"token.verification_ttl":   auth.DefaultVerificationTTL,
		"token.reset_ttl":          auth.DefaultResetTTL,
		"session.idle_timeout":     auth.DefaultSessionIdleTimeout,
		"session.absolute_timeout": auth.DefaultSessionAbsoluteTimeout,
		"hasher.time":              auth.DefaultArgon2Params().Time,
		"hasher.memory_kib":        auth.DefaultArgon2Params().MemoryKiB,
		"hasher.threads":           auth.DefaultArgon2Params().Threads,
		"lockout.threshold":        auth.DefaultLockoutThreshold,
		"lockout.duration":         auth.DefaultLockoutDuration,
		"log.format":               "json",
		"log.level":                "info",
		"metrics.addr":             "127.0.0.1:9100",
	}
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// File is an optional YAML config file.
	File string

	// Flags contributes the flags registered by RegisterFlags that were
	// set explicitly.
	Flags *pflag.FlagSet

	// Environment replaces the process environment when non-nil.
	Environment map[string]string
}

// Load merges all configuration sources and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, val := range Defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("file", opts.File).Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	envOpts := env.Options{Prefix: EnvPrefix, Environment: opts.Environment}
	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if err := cfg.resolveSigningKey(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveSigningKey reads token.signing_key_file into token.signing_key.
// Setting both is ambiguous and rejected.
func (c *Config) resolveSigningKey() error {
	if c.Token.SigningKeyFile == "" {
		return nil
	}
	if c.Token.SigningKey != "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "token.signing_key").
			Errorf("token.signing_key and token.signing_key_file are mutually exclusive")
	}
	data, err := os.ReadFile(c.Token.SigningKeyFile)
	if err != nil {
		return oops.Code("CONFIG_SIGNING_KEY_UNREADABLE").
			With("file", c.Token.SigningKeyFile).
			Wrap(err)
	}
	c.Token.SigningKey = strings.TrimSpace(string(data))
	return nil
}

// RequireSigningKey reports a configuration error when no token signing key
// is configured. Commands that never sign tokens skip it.
func (c *Config) RequireSigningKey() error {
	if c.Token.SigningKey == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "token.signing_key").
			Errorf("token.signing_key or token.signing_key_file is required")
	}
	return nil
}

// SessionPolicy returns the session timeouts.
func (c *Config) SessionPolicy() auth.SessionPolicy {
	return auth.SessionPolicy{
		IdleTimeout:     c.Session.IdleTimeout,
		AbsoluteTimeout: c.Session.AbsoluteTimeout,
	}
}

// LockoutPolicy returns the lockout policy.
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{
		Threshold: c.Lockout.Threshold,
		Duration:  c.Lockout.Duration,
	}
}

// TokenConfig returns the signing configuration for bearer tokens.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		SigningKey: []byte(c.Token.SigningKey),
		Issuer:     c.Token.Issuer,
		TTL:        c.Token.TTL,
		MaxTTL:     c.Token.MaxTTL,
	}
}

// VerificationConfig returns the configuration for verification tokens.
func (c *Config) VerificationConfig() auth.VerificationConfig {
	return auth.VerificationConfig{
		Token:                c.TokenConfig(),
		EmailVerificationTTL: c.Token.VerificationTTL,
		PasswordResetTTL:     c.Token.ResetTTL,
	}
}

// Argon2Params returns the password hashing cost.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:      c.Hasher.Time,
		MemoryKiB: c.Hasher.MemoryKiB,
		Threads:   c.Hasher.Threads,
	}
}
