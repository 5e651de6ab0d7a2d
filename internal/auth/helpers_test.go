// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roito2356/giiku-23/internal/access"
	"github.com/roito2356/giiku-23/internal/auth"
	"github.com/roito2356/giiku-23/internal/auth/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture wires the auth components over the memory store.
type fixture struct {
	store    *memory.Store
	codec    *auth.HashPool
	dir      *auth.Directory
	sessions *auth.SessionManager
	guard    *auth.Guard
	svc      *auth.Service
	clock    *fakeClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock()
	opts := []auth.Option{
		auth.WithLogger(discardLogger()),
		auth.WithClock(clock.Now),
		auth.WithSessionTTL(time.Hour),
	}

	store := memory.NewStore()
	codec, err := auth.NewHashPool(auth.NewArgon2idHasherWithParams(fastParams), 4)
	require.NoError(t, err)

	c, err := auth.Assemble(auth.Backends{
		Users:       store.Users(),
		Sessions:    store.Sessions(),
		Completions: store.Completions(),
		Transactor:  store,
	}, codec, access.NewStaticAccessControl(), opts...)
	require.NoError(t, err)

	return &fixture{
		store:    store,
		codec:    codec,
		dir:      c.Directory,
		sessions: c.Sessions,
		guard:    c.Guard,
		svc:      c.Service,
		clock:    clock,
	}
}

func (f *fixture) register(t *testing.T, email, username, password string) *auth.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), auth.RegisterInput{
		Email:                email,
		Username:             username,
		Password:             password,
		PasswordConfirmation: password,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) registerAdmin(t *testing.T, email, username, password string) *auth.User {
	t.Helper()
	ctx := access.WithSystemSubject(context.Background())
	u, err := f.dir.Register(ctx, email, username, password, auth.RoleAdministrator)
	require.NoError(t, err)
	return u
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	res, err := f.svc.Login(context.Background(), email, password, auth.SessionMeta{})
	require.NoError(t, err)
	return res.Token
}

func ptr[T any](v T) *T { return &v }
