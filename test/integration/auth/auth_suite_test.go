// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

//go:build integration

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/authcore/authcore/internal/auth"
	authpg "github.com/authcore/authcore/internal/auth/postgres"
	"github.com/authcore/authcore/internal/auth/redisstore"
	"github.com/authcore/authcore/internal/store"
)

const signingKey = "integration-signing-key-0123456789abcdef"

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Facade Integration Suite")
}

// testEnv holds the shared PostgreSQL and Redis resources.
type testEnv struct {
	ctx       context.Context
	container testcontainers.Container
	pool      *pgxpool.Pool
	redis     *miniredis.Miniredis
	client    *redis.Client
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupAuthTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupAuthTestEnv() (*testEnv, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("authcore_test"),
		postgres.WithUsername("authcore"),
		postgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}
	e := &testEnv{ctx: ctx, container: container}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		e.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		e.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		e.cleanup()
		return nil, err
	}
	if err := migrator.Close(); err != nil {
		e.cleanup()
		return nil, err
	}

	e.pool, err = store.Connect(ctx, connStr, store.ConnectOptions{})
	if err != nil {
		e.cleanup()
		return nil, err
	}

	e.redis, err = miniredis.Run()
	if err != nil {
		e.cleanup()
		return nil, err
	}
	e.client, err = redisstore.Connect(ctx, redisstore.Options{Addr: e.redis.Addr()})
	if err != nil {
		e.cleanup()
		return nil, err
	}
	return e, nil
}

func (e *testEnv) cleanup() {
	if e.client != nil {
		_ = e.client.Close()
	}
	if e.redis != nil {
		e.redis.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}

// reset empties both stores between specs.
func (e *testEnv) reset() {
	_, err := e.pool.Exec(e.ctx, `TRUNCATE users`)
	Expect(err).NotTo(HaveOccurred())
	e.redis.FlushAll()
}

// testClock is a settable auth.Clock shared by every component of one
// service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newService wires a facade over the shared stores. Services built from
// the same env behave like separate engine instances.
func newService(clock *testClock) *auth.Service {
	hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time:      1,
		MemoryKiB: 64,
		Threads:   1,
		SaltLen:   16,
		KeyLen:    32,
	})
	Expect(err).NotTo(HaveOccurred())

	identities, err := auth.NewIdentityStore(authpg.NewIdentityRepository(env.pool), hasher)
	Expect(err).NotTo(HaveOccurred())

	sessions, err := auth.NewSessionAuthenticator(
		redisstore.NewSessionStore(env.client, ""),
		auth.SessionPolicy{IdleTimeout: 30 * time.Minute, AbsoluteTimeout: 24 * time.Hour},
		clock.Now,
	)
	Expect(err).NotTo(HaveOccurred())

	tokenCfg := auth.TokenConfig{SigningKey: []byte(signingKey), TTL: time.Hour}
	tokens, err := auth.NewTokenAuthenticator(tokenCfg, redisstore.NewRevocationRegistry(env.client, ""), clock.Now)
	Expect(err).NotTo(HaveOccurred())

	verification, err := auth.NewVerificationTokens(auth.VerificationConfig{Token: tokenCfg}, clock.Now)
	Expect(err).NotTo(HaveOccurred())

	svc, err := auth.NewService(auth.ServiceConfig{
		Identities:   identities,
		Sessions:     sessions,
		Tokens:       tokens,
		Verification: verification,
		Lockout:      auth.LockoutPolicy{Threshold: 3, Duration: 15 * time.Minute},
		Now:          clock.Now,
	})
	Expect(err).NotTo(HaveOccurred())
	return svc
}

func registration(username, email string) auth.RegistrationFields {
	return auth.RegistrationFields{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  username,
		Email:     email,
		Password:  "Passw0rd",
	}
}
