package permissions

import "github.com/koinonia/backend/internal/models"

// CanModifyRole reports whether an actor may change a target member's role.
// The actor must outrank the target, and when a new role is given the actor
// must outrank that too: nobody can hand out a role at or above their own.
func CanModifyRole(actor, target models.Role, newRole *models.Role) bool {
	if !Outranks(actor, target) {
		return false
	}
	if newRole != nil && !Outranks(actor, *newRole) {
		return false
	}
	return true
}

// CanRemoveMember requires the manage-members capability on top of rank.
func CanRemoveMember(actor, target models.Role) bool {
	return Has(actor, PermManageMembers, nil) && Outranks(actor, target)
}

// AssignableRoles lists every role strictly below the actor's rank, most
// senior first. A visitor gets an empty list.
func AssignableRoles(actor models.Role) []models.Role {
	rank := Rank(actor)
	roles := make([]models.Role, 0, len(hierarchy))
	for i, role := range hierarchy {
		if i > rank {
			roles = append(roles, role)
		}
	}
	return roles
}
