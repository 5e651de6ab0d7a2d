// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionManager issues, resolves and destroys sessions. Expiry is passive:
// expired sessions may linger in storage but never resolve.
type SessionManager struct {
	sessions SessionRepository
	users    UserRepository
	logger   *slog.Logger
	now      func() time.Time
	ttl      time.Duration
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(sessions SessionRepository, users UserRepository, opts ...Option) (*SessionManager, error) {
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	o := newOptions(opts)
	return &SessionManager{
		sessions: sessions,
		users:    users,
		logger:   o.logger,
		now:      o.now,
		ttl:      o.sessionTTL,
	}, nil
}

// TTL returns the lifetime given to new sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Login issues a new session for userID and returns its plaintext token.
// Existing sessions of the user are left intact.
func (m *SessionManager) Login(ctx context.Context, userID ulid.ULID, meta SessionMeta) (string, *Session, error) {
	if _, err := m.users.GetByID(ctx, userID); err != nil {
		return "", nil, oops.With("operation", "load session user").Wrap(err)
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", nil, err
	}

	now := m.now().UTC()
	session, err := NewSession(userID, tokenHash, meta, now, now.Add(m.ttl))
	if err != nil {
		return "", nil, oops.With("operation", "create session").Wrap(err)
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return token, session, nil
}

// Resolve returns the user bound to token. It fails with an invalid-session
// error when the token is empty, unknown or expired, or its user is gone.
// Resolve never writes.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*User, *Session, error) {
	if token == "" {
		return nil, nil, invalidSessionError()
	}

	session, err := m.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, nil, invalidSessionError()
	}
	if err != nil {
		return nil, nil, oops.With("operation", "get session by token hash").Wrap(err)
	}

	now := m.now().UTC()
	if session.IsExpiredAt(now) {
		return nil, nil, invalidSessionError()
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, invalidSessionError()
	}
	if err != nil {
		return nil, nil, oops.With("operation", "get session user").Wrap(err)
	}

	return user, session, nil
}

// Touch records activity on a resolved session. Failures are logged and
// otherwise ignored.
func (m *SessionManager) Touch(ctx context.Context, session *Session) {
	if session == nil {
		return
	}
	now := m.now().UTC()
	if err := m.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		m.logger.DebugContext(ctx, "failed to update session last seen",
			"session_id", session.ID.String(), "error", err)
		return
	}
	session.LastSeenAt = now
}

// Logout destroys the session for token. Unknown or empty tokens are a no-op.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.sessions.DeleteByTokenHash(ctx, HashSessionToken(token)); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(err)
	}
	return nil
}

// PurgeExpired removes sessions that can no longer resolve. Correctness
// never depends on it having run.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, oops.With("operation", "purge expired sessions").Wrap(err)
	}
	return n, nil
}
