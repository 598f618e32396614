// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authcore/authcore/internal/auth"
	"github.com/authcore/authcore/internal/auth/memstore"
	"github.com/authcore/authcore/internal/auth/postgres"
	"github.com/authcore/authcore/internal/auth/redisstore"
	"github.com/authcore/authcore/internal/auth/sqlite"
	"github.com/authcore/authcore/internal/config"
	"github.com/authcore/authcore/internal/observability"
	"github.com/authcore/authcore/internal/store"
)

// EngineDeps contains injectable dependencies for building the engine.
// All fields with nil values will use their default implementations.
type EngineDeps struct {
	// PostgresConnector opens the PostgreSQL pool.
	// Default: store.Connect
	PostgresConnector func(ctx context.Context, url string, opts store.ConnectOptions) (*pgxpool.Pool, error)

	// RedisConnector opens the Redis client.
	// Default: redisstore.Connect
	RedisConnector func(ctx context.Context, opts redisstore.Options) (*redis.Client, error)

	// Recorder observes facade operations.
	// Default: no-op
	Recorder auth.Recorder

	// Logger receives best-effort failures.
	// Default: slog.Default()
	Logger *slog.Logger

	// Now is the clock used by every component.
	// Default: system time
	Now auth.Clock
}

// ServeDeps contains injectable dependencies for the serve command.
type ServeDeps struct {
	EngineDeps

	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// AutoMigrator wraps the methods serve uses from store.Migrator.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Engine is a wired auth service together with the resources it owns.
type Engine struct {
	Service  *auth.Service
	Tokens   *auth.TokenAuthenticator
	Sessions *auth.SessionAuthenticator

	closers []func()
}

// Close releases the engine's stores in reverse order of creation.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *Engine) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

// buildEngine wires the identity repository, the session and revocation
// stores and the auth components selected by cfg.
func buildEngine(ctx context.Context, cfg *config.Config, deps EngineDeps) (_ *Engine, err error) {
	if err := cfg.RequireSigningKey(); err != nil {
		return nil, err
	}
	if deps.PostgresConnector == nil {
		deps.PostgresConnector = store.Connect
	}
	if deps.RedisConnector == nil {
		deps.RedisConnector = redisstore.Connect
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	engine := &Engine{}
	defer func() {
		if err != nil {
			engine.Close()
		}
	}()

	repo, err := openIdentityRepository(ctx, cfg, deps, engine)
	if err != nil {
		return nil, err
	}
	sessionStore, registry, err := openKV(ctx, cfg, deps, engine)
	if err != nil {
		return nil, err
	}

	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	if err != nil {
		return nil, oops.With("operation", "create password hasher").Wrap(err)
	}
	identities, err := auth.NewIdentityStore(repo, hasher)
	if err != nil {
		return nil, oops.With("operation", "create identity store").Wrap(err)
	}
	engine.Sessions, err = auth.NewSessionAuthenticator(sessionStore, cfg.SessionPolicy(), deps.Now)
	if err != nil {
		return nil, oops.With("operation", "create session authenticator").Wrap(err)
	}
	engine.Tokens, err = auth.NewTokenAuthenticator(cfg.TokenConfig(), registry, deps.Now)
	if err != nil {
		return nil, oops.With("operation", "create token authenticator").Wrap(err)
	}
	verification, err := auth.NewVerificationTokens(cfg.VerificationConfig(), deps.Now)
	if err != nil {
		return nil, oops.With("operation", "create verification tokens").Wrap(err)
	}

	engine.Service, err = auth.NewService(auth.ServiceConfig{
		Identities:   identities,
		Sessions:     engine.Sessions,
		Tokens:       engine.Tokens,
		Verification: verification,
		Lockout:      cfg.LockoutPolicy(),
		Logger:       deps.Logger,
		Recorder:     deps.Recorder,
		Now:          deps.Now,
	})
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return engine, nil
}

func openIdentityRepository(ctx context.Context, cfg *config.Config, deps EngineDeps, engine *Engine) (auth.IdentityRepository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, oops.Code("CONFIG_INVALID").
				With("field", "database.url").
				Errorf("database.url is required for the postgres driver")
		}
		pool, err := deps.PostgresConnector(ctx, cfg.Database.URL, store.ConnectOptions{
			Timeout: cfg.Database.ConnectTimeout,
			Logger:  deps.Logger,
		})
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		engine.onClose(pool.Close)
		deps.Logger.Info("connected to database", "driver", "postgres")
		return postgres.NewIdentityRepository(pool), nil

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "open sqlite database").Wrap(err)
		}
		engine.onClose(func() {
			if closeErr := db.Close(); closeErr != nil {
				deps.Logger.Warn("failed to close sqlite database", "error", closeErr)
			}
		})
		deps.Logger.Info("opened database", "driver", "sqlite", "path", cfg.Database.SQLitePath)
		return sqlite.NewIdentityRepository(db), nil

	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("field", "database.driver").
			Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func openKV(ctx context.Context, cfg *config.Config, deps EngineDeps, engine *Engine) (auth.SessionStore, auth.RevocationRegistry, error) {
	switch cfg.KV.Backend {
	case "memory":
		memCfg := memstore.Config{ReapInterval: cfg.KV.ReapInterval, Now: deps.Now}
		sessions := memstore.NewSessionStore(memCfg)
		engine.onClose(sessions.Close)
		registry := memstore.NewRevocationRegistry(memCfg)
		engine.onClose(registry.Close)
		return sessions, registry, nil

	case "redis":
		client, err := deps.RedisConnector(ctx, redisstore.Options{
			Addr:      cfg.KV.RedisAddr,
			Password:  cfg.KV.RedisPassword,
			DB:        cfg.KV.RedisDB,
			KeyPrefix: cfg.KV.KeyPrefix,
		})
		if err != nil {
			return nil, nil, oops.Code("KV_CONNECT_FAILED").With("operation", "connect to redis").Wrap(err)
		}
		engine.onClose(func() {
			if closeErr := client.Close(); closeErr != nil {
				deps.Logger.Warn("failed to close redis client", "error", closeErr)
			}
		})
		deps.Logger.Info("connected to redis", "addr", cfg.KV.RedisAddr)
		return redisstore.NewSessionStore(client, cfg.KV.KeyPrefix),
			redisstore.NewRevocationRegistry(client, cfg.KV.KeyPrefix), nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("field", "kv.backend").
			Errorf("unknown kv backend %q", cfg.KV.Backend)
	}
}
