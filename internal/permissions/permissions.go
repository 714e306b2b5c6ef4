// Package permissions maps group roles to capability sets and compares
// positions in the role hierarchy. Everything here is a pure function over
// the closed role enumeration; raw strings from legacy data must pass
// through Normalize before reaching any other function in this package.
package permissions

import (
	"strings"

	"github.com/koinonia/backend/internal/models"
)

type Permission string

const (
	PermManageGroup       Permission = "manage_group"
	PermManageMembers     Permission = "manage_members"
	PermManageRoles       Permission = "manage_roles"
	PermPinMessages       Permission = "pin_messages"
	PermDeleteMessages    Permission = "delete_messages"
	PermCreateEvents      Permission = "create_events"
	PermPostAnnouncements Permission = "post_announcements"
	PermModerateContent   Permission = "moderate_content"
	PermMuteMembers       Permission = "mute_members"
	PermSendMessages      Permission = "send_messages"
	PermReact             Permission = "react"
	PermViewMembers       Permission = "view_members"
)

var defaults = map[models.Role]models.RolePermissions{
	models.RolePastor: {
		ManageGroup: true, ManageMembers: true, ManageRoles: true,
		PinMessages: true, DeleteMessages: true, CreateEvents: true,
		PostAnnouncements: true, ModerateContent: true, MuteMembers: true,
		SendMessages: true, React: true, ViewMembers: true,
	},
	models.RoleAdmin: {
		ManageGroup: true, ManageMembers: true, ManageRoles: true,
		PinMessages: true, DeleteMessages: true, CreateEvents: true,
		PostAnnouncements: true, ModerateContent: true, MuteMembers: true,
		SendMessages: true, React: true, ViewMembers: true,
	},
	models.RoleModerator: {
		PinMessages: true, DeleteMessages: true, ModerateContent: true,
		MuteMembers: true, SendMessages: true, React: true, ViewMembers: true,
	},
	models.RoleMember: {
		SendMessages: true, React: true, ViewMembers: true,
	},
	models.RoleVisitor: {
		ViewMembers: true,
	},
}

var hierarchy = []models.Role{
	models.RolePastor,
	models.RoleAdmin,
	models.RoleModerator,
	models.RoleMember,
	models.RoleVisitor,
}

// Default returns the base permission set for a role. Unknown roles get
// visitor permissions so the function stays total.
func Default(role models.Role) models.RolePermissions {
	if perms, ok := defaults[role]; ok {
		return perms
	}
	return defaults[models.RoleVisitor]
}

// Effective resolves the permission set that actually applies to a member.
// A custom role replaces the base set outright; it is never merged with the
// role's defaults, so a custom role that grants nothing grants nothing.
func Effective(role models.Role, custom *models.CustomRole) models.RolePermissions {
	if custom != nil {
		return custom.Permissions
	}
	return Default(role)
}

func Has(role models.Role, perm Permission, custom *models.CustomRole) bool {
	return Allowed(Effective(role, custom), perm)
}

// Allowed reads a single capability out of a permission set.
func Allowed(perms models.RolePermissions, perm Permission) bool {
	switch perm {
	case PermManageGroup:
		return perms.ManageGroup
	case PermManageMembers:
		return perms.ManageMembers
	case PermManageRoles:
		return perms.ManageRoles
	case PermPinMessages:
		return perms.PinMessages
	case PermDeleteMessages:
		return perms.DeleteMessages
	case PermCreateEvents:
		return perms.CreateEvents
	case PermPostAnnouncements:
		return perms.PostAnnouncements
	case PermModerateContent:
		return perms.ModerateContent
	case PermMuteMembers:
		return perms.MuteMembers
	case PermSendMessages:
		return perms.SendMessages
	case PermReact:
		return perms.React
	case PermViewMembers:
		return perms.ViewMembers
	default:
		return false
	}
}

// Rank returns a role's position in the hierarchy, 0 being the most senior.
// Unknown roles rank below visitor.
func Rank(role models.Role) int {
	for i, r := range hierarchy {
		if r == role {
			return i
		}
	}
	return len(hierarchy)
}

// Outranks reports whether a holds strictly more authority than b. A role
// never outranks itself, which is what makes "cannot modify equal or higher
// rank" fall out of a single comparison.
func Outranks(a, b models.Role) bool {
	return Rank(a) < Rank(b)
}

// Normalize maps a raw role string from legacy data into the closed role
// enumeration. Anything unrecognized becomes member; empty becomes visitor.
func Normalize(raw string) models.Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pastor", "leader", "owner":
		return models.RolePastor
	case "admin", "administrator":
		return models.RoleAdmin
	case "moderator", "mod":
		return models.RoleModerator
	case "member":
		return models.RoleMember
	case "visitor", "guest":
		return models.RoleVisitor
	case "":
		return models.RoleVisitor
	default:
		return models.RoleMember
	}
}
