package domain

import "fmt"

var (
	devStatuses = []string{StatusPorHacer, StatusEnCurso, StatusTest}
	qaStatuses  = []string{StatusEnCurso, StatusTest, StatusValidacionPO}
)

// CanEditBoard reports whether the role may act on boards at all. ADMIN
// manages users, not boards.
func CanEditBoard(role string) bool {
	switch NormalizeRole(role) {
	case RoleSM, RoleScrum, RolePO, RoleDev, RoleQA:
		return true
	default:
		return false
	}
}

// CanEditProjectHuSection reports whether the role may edit the HU list of a project.
func CanEditProjectHuSection(role string) bool {
	switch NormalizeRole(role) {
	case RoleSM, RoleScrum, RolePO:
		return true
	default:
		return false
	}
}

// CanDragFromStatus reports whether the role may pick up a card sitting in status.
func CanDragFromStatus(role, status string, canEdit bool) bool {
	if !canEdit {
		return false
	}
	from := NormalizeStatus(status)
	switch NormalizeRole(role) {
	case RoleSM, RoleScrum:
		return true
	case RolePO:
		return from == StatusValidacionPO
	case RoleDev:
		return contains(devStatuses, from)
	case RoleQA:
		return contains(qaStatuses, from)
	default:
		return false
	}
}

// CanMoveBetweenStatuses reports whether the role may drop a card from one status into another.
func CanMoveBetweenStatuses(role, fromStatus, toStatus string, canEdit bool) bool {
	if !canEdit {
		return false
	}
	from := NormalizeStatus(fromStatus)
	to := NormalizeStatus(toStatus)
	switch NormalizeRole(role) {
	case RoleSM, RoleScrum:
		return true
	case RolePO:
		return from == StatusValidacionPO && to == StatusFinalizado
	case RoleDev:
		return contains(devStatuses, from) && contains(devStatuses, to)
	case RoleQA:
		return contains(qaStatuses, from) && contains(qaStatuses, to)
	default:
		return false
	}
}

// IsPo reports whether the role is the product owner.
func IsPo(role string) bool { return NormalizeRole(role) == RolePO }

// IsScrum reports whether the role is SM or SCRUM.
func IsScrum(role string) bool {
	r := NormalizeRole(role)
	return r == RoleSM || r == RoleScrum
}

// MoveDeniedMessage is the text returned to a user whose move was refused.
func MoveDeniedMessage(role, fromStatus, toStatus string) string {
	return fmt.Sprintf("you cannot move an HU from %s to %s with role %s",
		StatusLabel(fromStatus), StatusLabel(toStatus), NormalizeRole(role))
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
