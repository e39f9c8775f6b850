package enums

import "fmt"

// UserRole is the platform role carried in access tokens.
type UserRole string

const (
	UserRoleAppAdmin     UserRole = "app_admin"
	UserRoleCompanyAdmin UserRole = "company_admin"
	UserRoleTeacher      UserRole = "teacher"
)

var validUserRoles = []UserRole{
	UserRoleAppAdmin,
	UserRoleCompanyAdmin,
	UserRoleTeacher,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
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

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
