package domain

import "strings"

// Role is the normalised role of the acting user.
type Role string

const (
	RoleSM    Role = "SM"
	RoleScrum Role = "SCRUM"
	RolePO    Role = "PO"
	RoleDev   Role = "DEV"
	RoleQA    Role = "QA"
	RoleAdmin Role = "ADMIN"
)

// NormalizeRole trims and uppercases a role. Unrecognised values pass through
// and carry no rights.
func NormalizeRole(role string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(role)))
}

// Known reports whether r is one of the roles the board understands.
func (r Role) Known() bool {
	switch r {
	case RoleSM, RoleScrum, RolePO, RoleDev, RoleQA, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }
