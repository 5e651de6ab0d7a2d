// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package access

// Role names. They match the stored account roles.
const (
	RoleRegular       = "regular"
	RoleAdministrator = "administrator"
)

// Permission groups define reusable sets of permissions.
// Roles compose these groups rather than inheriting.

var selfPowers = []string{
	"read:user:$self",
	"write:user:$self",
	"read:completion:$self",
	"write:completion:$self",
}

var adminPowers = []string{
	"read:**",
	"write:**",
	"delete:**",
	"list:**",
}

// DefaultRoles returns the default role definitions.
// Self-deletion is deliberately absent from regular users.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		RoleRegular:       selfPowers,
		RoleAdministrator: compose(selfPowers, adminPowers),
	}
}

// compose merges multiple permission slices into one.
func compose(groups ...[]string) []string {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	result := make([]string, 0, total)
	for _, g := range groups {
		result = append(result, g...)
	}
	return result
}
