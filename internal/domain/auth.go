package domain

// Role distinguishes requesters from the staff who work tickets.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
	RoleIT    Role = "IT"
)

// IsStaff reports whether the role may see and work every ticket.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleIT
}
