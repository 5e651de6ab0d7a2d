// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package main

import (
	"context"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/roito2356/giiku-23/internal/auth"
	"github.com/roito2356/giiku-23/internal/auth/memory"
	"github.com/roito2356/giiku-23/internal/auth/postgres"
	"github.com/roito2356/giiku-23/internal/auth/redisstore"
	"github.com/roito2356/giiku-23/internal/config"
	"github.com/roito2356/giiku-23/internal/observability"
	"github.com/roito2356/giiku-23/internal/store"
)

// Deps contains injectable dependencies for the serve, migrate and seed
// commands. Nil fields use their default implementations.
type Deps struct {
	// PoolFactory opens a PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, opts store.ConnectOptions) (*pgxpool.Pool, error)

	// RedisFactory creates a Redis client for the redis session backend.
	// Default: redis.NewClient
	RedisFactory func(opts *redis.Options) redis.UniversalClient

	// OpenBackends builds the repositories selected by cfg.
	// Default: openBackends using PoolFactory and RedisFactory
	OpenBackends func(ctx context.Context, cfg *config.Config) (*Runtime, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer with auth metrics registered
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// PasswordReader prompts for the seed administrator password.
	// Default: readPasswordFromTerminal
	PasswordReader func(prompt string) (string, error)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Runtime holds opened backends and their cleanup.
type Runtime struct {
	Backends auth.Backends
	Ready    observability.ReadinessChecker
	closers  []func()
}

// Close releases backends in reverse opening order.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// withDefaults returns a copy of d with nil fields filled in.
func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = store.Connect
	}
	if out.RedisFactory == nil {
		out.RedisFactory = func(opts *redis.Options) redis.UniversalClient {
			return redis.NewClient(opts)
		}
	}
	if out.OpenBackends == nil {
		poolFactory, redisFactory := out.PoolFactory, out.RedisFactory
		out.OpenBackends = func(ctx context.Context, cfg *config.Config) (*Runtime, error) {
			return openBackends(ctx, cfg, poolFactory, redisFactory)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready, auth.RegisterMetrics)
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	if out.PasswordReader == nil {
		out.PasswordReader = readPasswordFromTerminal
	}
	return out
}

// openBackends connects to the stores cfg selects. On error everything
// opened so far is closed.
func openBackends(
	ctx context.Context,
	cfg *config.Config,
	poolFactory func(context.Context, string, store.ConnectOptions) (*pgxpool.Pool, error),
	redisFactory func(*redis.Options) redis.UniversalClient,
) (_ *Runtime, err error) {
	rt := &Runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	var checks []observability.ReadinessChecker

	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		pool, err = poolFactory(ctx, cfg.Database.URL, store.ConnectOptions{MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		checks = append(checks, pool.Ping)
	}

	var mem *memory.Store
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		rt.Backends.Users = postgres.NewUserRepository(pool)
		rt.Backends.Completions = postgres.NewCompletionRepository(pool)
		rt.Backends.Transactor = postgres.NewTransactor(pool)
	default:
		mem = memory.NewStore()
		rt.Backends.Users = mem.Users()
		rt.Backends.Completions = mem.Completions()
		rt.Backends.Transactor = mem
	}

	switch cfg.Session.Backend {
	case config.BackendPostgres:
		rt.Backends.Sessions = postgres.NewSessionRepository(pool)
	case config.BackendRedis:
		client := redisFactory(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(pingErr)
		}
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		rt.Backends.Sessions = redisstore.NewSessionRepository(client)
	default:
		if mem == nil {
			mem = memory.NewStore()
		}
		rt.Backends.Sessions = mem.Sessions()
	}

	rt.Ready = func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	return rt, nil
}
