package session

// Role is an ordered privilege level in the portal. Roles form a total order
// and a higher-ranked role satisfies any check against a lower-ranked one.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleRanks = map[Role]int{
	RoleGuest:      0,
	RoleUser:       1,
	RoleModerator:  2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Rank returns the role's position in the hierarchy. Unknown roles rank below
// guest so they never satisfy an AtLeast check.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// AtLeast reports whether r is at least as privileged as other.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

// Permission is a flat capability tag. Unlike roles there is no ordering:
// permission checks are exact set membership.
type Permission string

const (
	PermissionRead       Permission = "read"
	PermissionWrite      Permission = "write"
	PermissionDelete     Permission = "delete"
	PermissionModerate   Permission = "moderate"
	PermissionAdmin      Permission = "admin"
	PermissionSuperAdmin Permission = "super_admin"
)

// DefaultPermissions returns the permission set a role carries when the
// profile payload does not list one explicitly. The sets grow with role rank.
func DefaultPermissions(r Role) []Permission {
	switch r {
	case RoleSuperAdmin:
		return []Permission{
			PermissionRead, PermissionWrite, PermissionDelete,
			PermissionModerate, PermissionAdmin, PermissionSuperAdmin,
		}
	case RoleAdmin:
		return []Permission{
			PermissionRead, PermissionWrite, PermissionDelete,
			PermissionModerate, PermissionAdmin,
		}
	case RoleModerator:
		return []Permission{PermissionRead, PermissionWrite, PermissionModerate}
	case RoleUser:
		return []Permission{PermissionRead}
	default:
		return []Permission{PermissionRead}
	}
}
