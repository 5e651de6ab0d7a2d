// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package access

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// StaticAccessControl implements AccessControl with static role definitions.
//
// Thread-safety: roles is immutable after construction and requires no synchronization.
type StaticAccessControl struct {
	roles map[string][]compiledPermission // roleName → compiled permission patterns
}

// compiledPermission holds a permission pattern and its compiled glob.
type compiledPermission struct {
	pattern string
	glob    glob.Glob
	hasSelf bool
}

// NewStaticAccessControl creates a new static access controller with default roles.
//
// Panics if default roles contain invalid permission patterns (configuration bug).
func NewStaticAccessControl() *StaticAccessControl {
	ac, err := NewStaticAccessControlWithRoles(DefaultRoles())
	if err != nil {
		panic("invalid permission pattern in DefaultRoles: " + err.Error())
	}
	return ac
}

// NewStaticAccessControlWithRoles creates a new static access controller with custom roles.
//
// Returns error if any permission pattern fails to compile (invalid glob syntax).
func NewStaticAccessControlWithRoles(roles map[string][]string) (*StaticAccessControl, error) {
	compiledRoles := make(map[string][]compiledPermission, len(roles))
	for role, perms := range roles {
		compiled := make([]compiledPermission, 0, len(perms))
		for _, p := range perms {
			// Use ':' as separator for permission patterns
			g, err := glob.Compile(p, ':')
			if err != nil {
				return nil, oops.In("access").
					Code("INVALID_PERMISSION_PATTERN").
					With("role", role).
					With("pattern", p).
					Wrap(err)
			}
			compiled = append(compiled, compiledPermission{
				pattern: p,
				glob:    g,
				hasSelf: strings.Contains(p, "$self"),
			})
		}
		compiledRoles[role] = compiled
	}

	return &StaticAccessControl{roles: compiledRoles}, nil
}

// Check implements AccessControl.
func (s *StaticAccessControl) Check(ctx context.Context, subject Subject, action, resource string) bool {
	// System always allowed
	if subject.System || IsSystemContext(ctx) {
		return true
	}

	if subject.ID == "" || action == "" || resource == "" {
		return false
	}

	// An ID containing glob syntax would widen a $self pattern.
	if strings.ContainsAny(subject.ID, "*?[]{}\\:!") {
		slog.WarnContext(ctx, "access check with malformed subject id",
			"subject", subject.String(),
			"action", action)
		return false
	}

	permissions := s.roles[subject.Role]
	if permissions == nil {
		return false
	}

	requested := action + ":" + resource

	for _, perm := range permissions {
		if !perm.hasSelf {
			if perm.glob.Match(requested) {
				return true
			}
			continue
		}

		resolved := strings.ReplaceAll(perm.pattern, "$self", subject.ID)
		g, err := glob.Compile(resolved, ':')
		if err != nil {
			slog.WarnContext(ctx, "failed to compile resolved permission pattern",
				"subject", subject.String(),
				"action", action,
				"pattern", perm.pattern,
				"resolved", resolved,
				"error", err)
			continue
		}
		if g.Match(requested) {
			return true
		}
	}

	return false
}

// HasRole reports whether role is defined.
func (s *StaticAccessControl) HasRole(role string) bool {
	_, ok := s.roles[role]
	return ok
}

// Permissions returns the uncompiled patterns granted to role.
func (s *StaticAccessControl) Permissions(role string) []string {
	perms := s.roles[role]
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.pattern)
	}
	return out
}

var _ AccessControl = (*StaticAccessControl)(nil)
