// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roito2356/giiku-23/internal/auth"
	"github.com/roito2356/giiku-23/internal/auth/mocks"
	"github.com/roito2356/giiku-23/pkg/errutil"
)

func TestNewSessionManager_NilDependencies(t *testing.T) {
	_, err := auth.NewSessionManager(nil, mocks.NewMockUserRepository(t))
	assert.ErrorContains(t, err, "sessions repository is required")
	_, err = auth.NewSessionManager(mocks.NewMockSessionRepository(t), nil)
	assert.ErrorContains(t, err, "users repository is required")
}

func TestSessionManager_LoginResolveLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice@example.com", "alice", "pw")

	token, session, err := f.sessions.Login(ctx, alice.ID, auth.SessionMeta{IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, auth.HashSessionToken(token), session.TokenHash)
	assert.Equal(t, f.clock.Now().Add(time.Hour), session.ExpiresAt)
	assert.Equal(t, time.Hour, f.sessions.TTL())

	f.clock.Advance(10 * time.Minute)
	user, resolved, err := f.sessions.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Equal(t, session.ID, resolved.ID)
	assert.Equal(t, session.CreatedAt, resolved.LastSeenAt, "resolve does not touch the session")

	f.sessions.Touch(ctx, resolved)
	assert.Equal(t, f.clock.Now(), resolved.LastSeenAt)
	_, resolved, err = f.sessions.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), resolved.LastSeenAt)

	require.NoError(t, f.sessions.Logout(ctx, token))
	_, _, err = f.sessions.Resolve(ctx, token)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidSession)
}

func TestSessionManager_LoginUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.sessions.Login(context.Background(), ulid.Make(), auth.SessionMeta{})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSessionManager_ResolveInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice@example.com", "alice", "pw")
	token, _, err := f.sessions.Login(ctx, alice.ID, auth.SessionMeta{})
	require.NoError(t, err)

	_, _, err = f.sessions.Resolve(ctx, "")
	assert.Equal(t, auth.KindInvalidSession, auth.KindOf(err))

	_, _, err = f.sessions.Resolve(ctx, "unknown")
	assert.Equal(t, auth.KindInvalidSession, auth.KindOf(err))

	// The user vanishes behind the session's back.
	require.NoError(t, f.store.Users().Delete(ctx, alice.ID))
	_, _, err = f.sessions.Resolve(ctx, token)
	assert.Equal(t, auth.KindInvalidSession, auth.KindOf(err))
}

func TestSessionManager_ResolveStorageError(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMockSessionRepository(t)
	users := mocks.NewMockUserRepository(t)
	m, err := auth.NewSessionManager(sessions, users, auth.WithLogger(discardLogger()))
	require.NoError(t, err)

	sessions.On("GetByTokenHash", ctx, auth.HashSessionToken("tok")).Return(nil, errors.New("db down"))

	_, _, err = m.Resolve(ctx, "tok")
	require.Error(t, err)
	assert.Equal(t, auth.KindInternal, auth.KindOf(err), "storage errors are not session errors")
}

func TestSessionManager_ResolveDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMockSessionRepository(t)
	users := mocks.NewMockUserRepository(t)
	m, err := auth.NewSessionManager(sessions, users, auth.WithLogger(discardLogger()))
	require.NoError(t, err)

	userID := ulid.Make()
	now := time.Now().UTC()
	s, err := auth.NewSession(userID, auth.HashSessionToken("tok"), auth.SessionMeta{}, now, now.Add(time.Hour))
	require.NoError(t, err)

	// Only reads are expected; an UpdateLastSeen call fails the mock.
	sessions.On("GetByTokenHash", ctx, s.TokenHash).Return(s, nil)
	users.On("GetByID", ctx, userID).Return(&auth.User{ID: userID}, nil)

	user, _, err := m.Resolve(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
}

func TestSessionManager_ResolveDuringOpenTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice@example.com", "alice", "pw")
	token := f.login(t, "alice@example.com", "pw")

	err := f.store.InTransaction(ctx, func(txCtx context.Context) error {
		if _, err := f.store.Users().GetForUpdate(txCtx, alice.ID); err != nil {
			return err
		}
		done := make(chan error, 1)
		go func() {
			_, _, err := f.sessions.Resolve(ctx, token)
			done <- err
		}()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			return errors.New("resolve waited for an unrelated transaction")
		}
	})
	require.NoError(t, err)
}

func TestSessionManager_TouchFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMockSessionRepository(t)
	m, err := auth.NewSessionManager(sessions, mocks.NewMockUserRepository(t), auth.WithLogger(discardLogger()))
	require.NoError(t, err)

	now := time.Now().UTC()
	s, err := auth.NewSession(ulid.Make(), auth.HashSessionToken("tok"), auth.SessionMeta{}, now, now.Add(time.Hour))
	require.NoError(t, err)

	sessions.On("UpdateLastSeen", ctx, s.ID, mock.AnythingOfType("time.Time")).Return(errors.New("timeout"))

	assert.NotPanics(t, func() { m.Touch(ctx, s) })
	assert.Equal(t, now, s.LastSeenAt)
	assert.NotPanics(t, func() { m.Touch(ctx, nil) })
}

func TestSessionManager_LogoutFailure(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMockSessionRepository(t)
	m, err := auth.NewSessionManager(sessions, mocks.NewMockUserRepository(t))
	require.NoError(t, err)

	sessions.On("DeleteByTokenHash", ctx, auth.HashSessionToken("tok")).Return(errors.New("db down"))
	errutil.AssertErrorCode(t, m.Logout(ctx, "tok"), "SESSION_DELETE_FAILED")
}

func TestSessionManager_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice@example.com", "alice", "pw")

	_, _, err := f.sessions.Login(ctx, alice.ID, auth.SessionMeta{})
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	live, _, err := f.sessions.Login(ctx, alice.ID, auth.SessionMeta{})
	require.NoError(t, err)
	f.clock.Advance(31 * time.Minute)

	n, err := f.sessions.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _, err = f.sessions.Resolve(ctx, live)
	assert.NoError(t, err)
}
