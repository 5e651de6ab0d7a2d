// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/roito2356/giiku-23/internal/access"
)

// Guard checks names recorded in the guard denial metric.
const (
	CheckLogin       = "require_login"
	CheckAdmin       = "require_admin"
	CheckSelfOrAdmin = "require_self_or_admin"
)

// Guard makes allow/deny decisions for account operations. A denial is
// terminal: callers must not continue with the guarded mutation.
type Guard struct {
	sessions *SessionManager
	ac       access.AccessControl
}

// NewGuard creates a Guard.
func NewGuard(sessions *SessionManager, ac access.AccessControl) (*Guard, error) {
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if ac == nil {
		return nil, oops.Errorf("access control is required")
	}
	return &Guard{sessions: sessions, ac: ac}, nil
}

// RequireLogin resolves token to its user or fails with Unauthenticated.
// Storage failures stay internal errors.
func (g *Guard) RequireLogin(ctx context.Context, token string) (*User, *Session, error) {
	user, session, err := g.sessions.Resolve(ctx, token)
	if err == nil {
		return user, session, nil
	}
	if KindOf(err) == KindInvalidSession {
		RecordGuardDenial(CheckLogin)
		return nil, nil, unauthenticatedError()
	}
	return nil, nil, err
}

// RequireAdmin fails with Forbidden unless user is an administrator.
func (g *Guard) RequireAdmin(ctx context.Context, user *User) error {
	if user == nil {
		RecordGuardDenial(CheckAdmin)
		return unauthenticatedError()
	}
	if !user.IsAdmin() || !g.ac.Check(ctx, subjectOf(user), access.ActionList, access.ResourceUser+"*") {
		RecordGuardDenial(CheckAdmin)
		return forbiddenError(access.ActionList, access.ResourceUser+"*")
	}
	return nil
}

// RequireSelfOrAdmin fails with Forbidden unless actor is the target user or
// an administrator.
func (g *Guard) RequireSelfOrAdmin(ctx context.Context, actor *User, target ulid.ULID) error {
	return g.Authorize(ctx, actor, access.ActionWrite, access.UserResource(target.String()))
}

// Authorize checks an arbitrary action on a resource for actor.
func (g *Guard) Authorize(ctx context.Context, actor *User, action, resource string) error {
	if actor == nil {
		RecordGuardDenial(CheckSelfOrAdmin)
		return unauthenticatedError()
	}
	if !g.ac.Check(ctx, subjectOf(actor), action, resource) {
		RecordGuardDenial(CheckSelfOrAdmin)
		return forbiddenError(action, resource)
	}
	return nil
}

func subjectOf(user *User) access.Subject {
	return access.UserSubject(user.ID.String(), user.Role.String())
}
