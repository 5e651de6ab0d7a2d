// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roito2356/giiku-23/internal/access"
	"github.com/roito2356/giiku-23/internal/auth"
)

// denyAll refuses every check.
type denyAll struct{}

func (denyAll) Check(context.Context, access.Subject, string, string) bool { return false }

func TestNewGuard_NilDependencies(t *testing.T) {
	f := newFixture(t)
	_, err := auth.NewGuard(nil, access.NewStaticAccessControl())
	assert.ErrorContains(t, err, "session manager is required")
	_, err = auth.NewGuard(f.sessions, nil)
	assert.ErrorContains(t, err, "access control is required")
}

func TestGuard_RequireLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice@example.com", "alice", "pw")
	token := f.login(t, "alice@example.com", "pw")

	user, session, err := f.guard.RequireLogin(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Equal(t, alice.ID, session.UserID)

	_, _, err = f.guard.RequireLogin(ctx, "")
	assert.Equal(t, auth.KindUnauthenticated, auth.KindOf(err))
}

func TestGuard_RequireAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	admin := &auth.User{ID: ulid.Make(), Role: auth.RoleAdministrator}
	regular := &auth.User{ID: ulid.Make(), Role: auth.RoleRegular}

	assert.NoError(t, f.guard.RequireAdmin(ctx, admin))
	assert.Equal(t, auth.KindForbidden, auth.KindOf(f.guard.RequireAdmin(ctx, regular)))
	assert.Equal(t, auth.KindUnauthenticated, auth.KindOf(f.guard.RequireAdmin(ctx, nil)))

	strict, err := auth.NewGuard(f.sessions, denyAll{})
	require.NoError(t, err)
	assert.Equal(t, auth.KindForbidden, auth.KindOf(strict.RequireAdmin(ctx, admin)),
		"role flag alone is not enough when the policy denies")
}

func TestGuard_RequireSelfOrAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	admin := &auth.User{ID: ulid.Make(), Role: auth.RoleAdministrator}
	alice := &auth.User{ID: ulid.Make(), Role: auth.RoleRegular}
	bob := &auth.User{ID: ulid.Make(), Role: auth.RoleRegular}

	tests := []struct {
		name   string
		actor  *auth.User
		target ulid.ULID
		kind   auth.Kind
	}{
		{"self", alice, alice.ID, ""},
		{"administrator on other", admin, alice.ID, ""},
		{"administrator on self", admin, admin.ID, ""},
		{"regular on other", bob, alice.ID, auth.KindForbidden},
		{"no actor", nil, alice.ID, auth.KindUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.guard.RequireSelfOrAdmin(ctx, tt.actor, tt.target)
			assert.Equal(t, tt.kind, auth.KindOf(err))
		})
	}
}
