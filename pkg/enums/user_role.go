package enums

import "fmt"

// UserRole scopes what an authenticated caller may do.
type UserRole string

const (
	RoleCustomer    UserRole = "customer"
	RoleTenantAdmin UserRole = "tenant_admin"
	RolePlatformOps UserRole = "platform_ops"
)

var validUserRoles = []UserRole{
	RoleCustomer,
	RoleTenantAdmin,
	RolePlatformOps,
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
