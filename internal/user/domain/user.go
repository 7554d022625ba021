package domain

import "slices"

// RoleManageTNSRobots gates the robot-configuration management endpoints.
const RoleManageTNSRobots = "manage_tns_robots"

// User is a broker account able to trigger TNS operations.
type User struct {
	ID       int64
	Username string
	Roles    []string
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}
