// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

// Package access provides role-based authorization for Giiku.
//
// Requests are phrased as action and resource strings:
//   - subject: a user ID with its role, or the system
//   - action: "read", "write", "delete", "list"
//   - resource: "user:01ABC", "completion:01ABC", "user:*"
//
// Roles map to glob permission patterns of the form "action:resource".
// The $self token in a pattern is replaced with the subject's ID.
package access

import (
	"context"
)

// Subject identifies who is asking.
type Subject struct {
	// ID is the user ID, empty for the system subject.
	ID string
	// Role is the role name whose permissions apply.
	Role string
	// System subjects bypass role checks.
	System bool
}

// System is the subject for seed and maintenance tasks.
var System = Subject{System: true}

// UserSubject returns the subject for a user with the given role.
func UserSubject(id, role string) Subject {
	return Subject{ID: id, Role: role}
}

// String returns "system" or "user:<id>".
func (s Subject) String() string {
	if s.System {
		return SubjectSystem
	}
	return SubjectUser + s.ID
}

// AccessControl checks permissions for a subject.
//
//nolint:revive // stutter kept for readability at call sites (access.AccessControl)
type AccessControl interface {
	// Check returns true if subject may perform action on resource.
	// Returns false for unknown roles or denied permissions (deny by default).
	Check(ctx context.Context, subject Subject, action, resource string) bool
}

type systemSubjectKey struct{}

// WithSystemSubject marks ctx as a system operation. Only the seed and
// maintenance commands establish it; request handlers never do.
func WithSystemSubject(ctx context.Context) context.Context {
	return context.WithValue(ctx, systemSubjectKey{}, true)
}

// IsSystemContext reports whether ctx was marked by WithSystemSubject.
func IsSystemContext(ctx context.Context) bool {
	v, ok := ctx.Value(systemSubjectKey{}).(bool)
	return ok && v
}
