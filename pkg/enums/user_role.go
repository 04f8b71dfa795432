package enums

import "slices"

// UserRole represents the platform-level permissions role carried in access tokens.
type UserRole string

const (
	UserRoleAttendee  UserRole = "attendee"
	UserRoleOrganizer UserRole = "organizer"
	UserRoleAdmin     UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleAttendee,
	UserRoleOrganizer,
	UserRoleAdmin,
}

// String implements fmt.Stringer.
func (r UserRole) String() string { return string(r) }

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool { return slices.Contains(validUserRoles, r) }

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	return parse(validUserRoles, "user role", value)
}
