// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import "github.com/samber/oops"

// Role is the closed set of account roles.
type Role string

// Account roles.
const (
	RoleRegular       Role = "regular"
	RoleAdministrator Role = "administrator"
)

// IsAdmin reports whether the role grants administrator rights.
func (r Role) IsAdmin() bool {
	return r == RoleAdministrator
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleRegular || r == RoleAdministrator
}

func (r Role) String() string {
	return string(r)
}

// ParseRole parses a stored role. The legacy "0"/"1" flag encoding is accepted.
func ParseRole(s string) (Role, error) {
	switch s {
	case string(RoleRegular), "0":
		return RoleRegular, nil
	case string(RoleAdministrator), "1":
		return RoleAdministrator, nil
	default:
		return "", oops.Code("ROLE_INVALID").With("role", s).Errorf("unknown role %q", s)
	}
}
