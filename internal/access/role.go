package access

import (
	"fmt"
	"strings"
)

// Role is one of the closed set of role identifiers known to ConformaPro.
type Role uint8

// Known roles. The zero value is not a role.
const (
	RoleSuperAdmin Role = iota + 1
	RoleAdminGlobal
	RoleConsultant
	RoleClientAdmin
	RoleClientUser
)

var roleNames = map[Role]string{
	RoleSuperAdmin:  "Super Admin",
	RoleAdminGlobal: "Admin Global",
	RoleConsultant:  "Consultor",
	RoleClientAdmin: "Admin Cliente",
	RoleClientUser:  "Usuário Cliente",
}

// String returns the backend name of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// ParseRole maps a backend role name to a Role. Matching ignores case and
// surrounding whitespace.
func ParseRole(name string) (Role, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	for role, known := range roleNames {
		if strings.EqualFold(known, name) {
			return role, true
		}
	}
	return 0, false
}

// RoleSet is a set of roles encoded as a bitmask.
type RoleSet uint32

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// ParseRoleSet converts backend role names into a set. Unknown names are
// returned separately so callers can log them.
func ParseRoleSet(names []string) (RoleSet, []string) {
	var (
		set     RoleSet
		unknown []string
	)
	for _, name := range names {
		role, ok := ParseRole(name)
		if !ok {
			if strings.TrimSpace(name) != "" {
				unknown = append(unknown, name)
			}
			continue
		}
		set = set.With(role)
	}
	return set, unknown
}

// With returns a copy of the set including r.
func (s RoleSet) With(r Role) RoleSet {
	if r == 0 {
		return s
	}
	return s | 1<<r
}

// Has reports whether r is a member of the set.
func (s RoleSet) Has(r Role) bool {
	return r != 0 && s&(1<<r) != 0
}

// Intersects reports whether the two sets share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	return s&other != 0
}

// Union merges two sets.
func (s RoleSet) Union(other RoleSet) RoleSet {
	return s | other
}

// Empty reports whether the set has no members.
func (s RoleSet) Empty() bool {
	return s == 0
}

// Roles lists the members in declaration order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(roleNames))
	for r := RoleSuperAdmin; r <= RoleClientUser; r++ {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Names lists the backend names of the members.
func (s RoleSet) Names() []string {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return names
}

// Partition splits the role space into staff and client roles. It is built
// once from configuration and shared read-only.
type Partition struct {
	staff RoleSet
}

// DefaultStaffRoles are the roles that grant access to the staff section.
var DefaultStaffRoles = []string{"Super Admin", "Admin Global"}

// NewPartition builds a Partition from staff role names. Every name must be a
// known role.
func NewPartition(staffNames []string) (Partition, error) {
	staff, unknown := ParseRoleSet(staffNames)
	if len(unknown) > 0 {
		return Partition{}, fmt.Errorf("access: unknown staff roles %q", unknown)
	}
	if staff.Empty() {
		return Partition{}, fmt.Errorf("access: staff role set must not be empty")
	}
	return Partition{staff: staff}, nil
}

// DefaultPartition returns the partition built from DefaultStaffRoles.
func DefaultPartition() Partition {
	return Partition{staff: NewRoleSet(RoleSuperAdmin, RoleAdminGlobal)}
}

// IsStaff reports whether roles contain at least one staff role.
func (p Partition) IsStaff(roles RoleSet) bool {
	return roles.Intersects(p.staff)
}

// StaffRoles returns the configured staff roles.
func (p Partition) StaffRoles() RoleSet {
	return p.staff
}
