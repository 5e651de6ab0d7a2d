// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roito2356/giiku-23/internal/auth"
	"github.com/roito2356/giiku-23/internal/auth/memory"
	"github.com/roito2356/giiku-23/internal/auth/redisstore"
	"github.com/roito2356/giiku-23/internal/config"
	"github.com/roito2356/giiku-23/internal/observability"
	"github.com/roito2356/giiku-23/internal/store"
	"github.com/roito2356/giiku-23/pkg/errutil"
)

// mockMigrator implements Migrator for testing.
type mockMigrator struct {
	version     uint
	dirty       bool
	pending     []uint
	upCalled    bool
	upError     error
	downCalled  bool
	forced      int
	closeCalled bool
}

func (m *mockMigrator) Up() error {
	m.upCalled = true
	if m.upError != nil {
		return m.upError
	}
	m.version = 3
	m.pending = nil
	return nil
}

func (m *mockMigrator) Down() error {
	m.downCalled = true
	m.version = 0
	return nil
}

func (m *mockMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }

func (m *mockMigrator) Force(v int) error {
	m.forced = v
	return nil
}

func (m *mockMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }

func (m *mockMigrator) Close() error {
	m.closeCalled = true
	return nil
}

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	startErr    error
	started     bool
	stopped     bool
	readyCheck  observability.ReadinessChecker
	addrStarted string
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = true
	return make(chan error), nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.stopped = true
	return nil
}

func (m *mockObservabilityServer) Addr() string { return m.addrStarted }

func (m *mockObservabilityServer) Metrics() *observability.Metrics { return nil }

func memoryConfig() *config.Config {
	return &config.Config{
		HTTP:    config.HTTPConfig{Addr: "127.0.0.1:0"},
		Log:     config.LogConfig{Format: "text", Level: "error"},
		Store:   config.StoreConfig{Backend: config.BackendMemory},
		Session: config.SessionConfig{Backend: config.BackendMemory, TTL: time.Hour},
		Redis:   config.RedisConfig{Addr: "127.0.0.1:6379"},
		Hash:    config.HashConfig{Workers: 2},
	}
}

// sharedMemory returns an OpenBackends that hands out the same memory store
// on every call.
func sharedMemory(s *memory.Store) func(context.Context, *config.Config) (*Runtime, error) {
	return func(context.Context, *config.Config) (*Runtime, error) {
		return &Runtime{
			Backends: auth.Backends{
				Users:       s.Users(),
				Sessions:    s.Sessions(),
				Completions: s.Completions(),
				Transactor:  s,
			},
			Ready: func(context.Context) error { return nil },
		}, nil
	}
}

// testRoot mounts sub under a root carrying the configuration flags.
func testRoot(sub *cobra.Command, args ...string) (*cobra.Command, *bytes.Buffer) {
	root := &cobra.Command{Use: "giiku", SilenceUsage: true, SilenceErrors: true}
	config.RegisterFlags(root.PersistentFlags())
	root.AddCommand(sub)

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	return root, buf
}

func noPool(context.Context, string, store.ConnectOptions) (*pgxpool.Pool, error) {
	return nil, errors.New("no database in this test")
}

func defaultRedis(opts *redis.Options) redis.UniversalClient { return redis.NewClient(opts) }

func TestOpenBackends_Memory(t *testing.T) {
	rt, err := openBackends(context.Background(), memoryConfig(), noPool, defaultRedis)
	require.NoError(t, err)
	defer rt.Close()

	assert.IsType(t, &memory.Store{}, rt.Backends.Transactor)
	require.NotNil(t, rt.Backends.Sessions)
	assert.NoError(t, rt.Ready(context.Background()))
}

func TestOpenBackends_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Session.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()

	rt, err := openBackends(context.Background(), cfg, noPool, defaultRedis)
	require.NoError(t, err)
	defer rt.Close()

	assert.IsType(t, &redisstore.SessionRepository{}, rt.Backends.Sessions)
	assert.NoError(t, rt.Ready(context.Background()))

	mr.Close()
	assert.Error(t, rt.Ready(context.Background()), "readiness follows redis")
}

func TestOpenBackends_RedisUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.Session.Backend = config.BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"

	var client redis.UniversalClient
	factory := func(opts *redis.Options) redis.UniversalClient {
		opts.MaxRetries = -1
		client = redis.NewClient(opts)
		return client
	}

	_, err := openBackends(context.Background(), cfg, noPool, factory)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "addr", "127.0.0.1:1")

	// The client was closed on the failure path.
	assert.ErrorIs(t, client.Ping(context.Background()).Err(), redis.ErrClosed)
}

func TestOpenBackends_DatabaseError(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Backend = config.BackendPostgres
	cfg.Session.Backend = config.BackendPostgres
	cfg.Database.URL = "postgres://giiku@localhost/giiku"

	var gotURL string
	var gotOpts store.ConnectOptions
	factory := func(_ context.Context, url string, opts store.ConnectOptions) (*pgxpool.Pool, error) {
		gotURL, gotOpts = url, opts
		return nil, errors.New("connection refused")
	}
	cfg.Database.MaxConns = 7

	_, err := openBackends(context.Background(), cfg, factory, defaultRedis)
	require.Error(t, err)
	assert.Equal(t, cfg.Database.URL, gotURL)
	assert.Equal(t, int32(7), gotOpts.MaxConns)
}

func TestDeps_WithDefaults(t *testing.T) {
	var nilDeps *Deps
	d := nilDeps.withDefaults()

	assert.NotNil(t, d.PoolFactory)
	assert.NotNil(t, d.RedisFactory)
	assert.NotNil(t, d.OpenBackends)
	assert.NotNil(t, d.MigratorFactory)
	assert.NotNil(t, d.ObservabilityServerFactory)
	assert.NotNil(t, d.ListenerFactory)
	assert.NotNil(t, d.PasswordReader)

	custom := &mockObservabilityServer{}
	d = (&Deps{ObservabilityServerFactory: func(string, observability.ReadinessChecker) ObservabilityServer {
		return custom
	}}).withDefaults()
	assert.Same(t, custom, d.ObservabilityServerFactory("", nil))
}

func TestRuntime_CloseReverseOrder(t *testing.T) {
	var order []int
	rt := &Runtime{closers: []func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	}}
	rt.Close()
	rt.Close()
	assert.Equal(t, []int{2, 1}, order)

	var nilRuntime *Runtime
	assert.NotPanics(t, nilRuntime.Close)
}
