package rbac

// Role names. Keep these stable; they are part of the token and API contracts.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleUser    = "User"
)

// Elevated roles may list and remove users.
var Elevated = []string{RoleAdmin, RoleManager}

// KnownRoles is every role the directory will assign.
func KnownRoles() []string { return []string{RoleAdmin, RoleManager, RoleUser} }

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	default:
		return false
	}
}

// HasRole reports whether roles contains role. Matching is exact.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
