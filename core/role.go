package core

import "strings"

// Role is a free-form role label carried in claims
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleModerator Role = "Moderator"
	RoleUser      Role = "User"
)

// DefaultRole is assigned when a principal registers without one.
const DefaultRole = RoleUser

// RoleSet is the whitelist of roles allowed to perform an operation.
// Roles carry no hierarchy: Admin is admitted only where it is listed.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Allows reports whether role is in the set
func (s RoleSet) Allows(role Role) bool {
	_, ok := s[role]
	return ok
}

// String lists the roles, for logs and error messages.
func (s RoleSet) String() string {
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, string(r))
	}
	return strings.Join(names, ",")
}
