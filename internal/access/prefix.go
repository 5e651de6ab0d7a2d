// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package access

import (
	"strings"

	"github.com/samber/oops"
)

// Subject prefixes.
const (
	SubjectUser   = "user:"
	SubjectSystem = "system"
)

// Resource prefixes.
const (
	ResourceUser       = "user:"
	ResourceCompletion = "completion:"
)

// Actions.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
	ActionList   = "list"
)

// UserResource returns the resource string for a user ID.
// Panics if id is empty, since "user:" would match nothing meaningful.
func UserResource(id string) string {
	if id == "" {
		panic("access.UserResource: empty id")
	}
	return ResourceUser + id
}

// CompletionResource returns the resource string for the completions of a user.
func CompletionResource(userID string) string {
	if userID == "" {
		panic("access.CompletionResource: empty user id")
	}
	return ResourceCompletion + userID
}

// ParseResource splits a resource string into prefix (with trailing colon)
// and ID.
func ParseResource(resource string) (prefix, id string, err error) {
	idx := strings.IndexByte(resource, ':')
	if idx <= 0 || idx == len(resource)-1 {
		return "", "", oops.In("access").
			Code("INVALID_RESOURCE").
			With("resource", resource).
			Errorf("resource must be prefix:id")
	}
	prefix = resource[:idx+1]
	switch prefix {
	case ResourceUser, ResourceCompletion:
		return prefix, resource[idx+1:], nil
	default:
		return "", "", oops.In("access").
			Code("UNKNOWN_RESOURCE_PREFIX").
			With("resource", resource).
			Errorf("unknown resource prefix %q", prefix)
	}
}
