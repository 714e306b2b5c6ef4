package models

import "github.com/google/uuid"

// Role is the group-scoped authority level, ordered from pastor (highest)
// down to visitor.
type Role string

const (
	RolePastor    Role = "pastor"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
	RoleVisitor   Role = "visitor"
)

// RolePermissions is the full set of capabilities a role grants inside a
// group. A CustomRole carries its own complete set which replaces the base
// role's set outright; the two are never merged field by field.
type RolePermissions struct {
	ManageGroup       bool `json:"manageGroup" gorm:"not null;default:false"`
	ManageMembers     bool `json:"manageMembers" gorm:"not null;default:false"`
	ManageRoles       bool `json:"manageRoles" gorm:"not null;default:false"`
	PinMessages       bool `json:"pinMessages" gorm:"not null;default:false"`
	DeleteMessages    bool `json:"deleteMessages" gorm:"not null;default:false"`
	CreateEvents      bool `json:"createEvents" gorm:"not null;default:false"`
	PostAnnouncements bool `json:"postAnnouncements" gorm:"not null;default:false"`
	ModerateContent   bool `json:"moderateContent" gorm:"not null;default:false"`
	MuteMembers       bool `json:"muteMembers" gorm:"not null;default:false"`
	SendMessages      bool `json:"sendMessages" gorm:"not null;default:false"`
	React             bool `json:"react" gorm:"not null;default:false"`
	ViewMembers       bool `json:"viewMembers" gorm:"not null;default:false"`
}

type CustomRole struct {
	BaseModel
	GroupID     uuid.UUID       `json:"groupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_custom_role_group_name"`
	Name        string          `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_custom_role_group_name"`
	Color       string          `json:"color" gorm:"type:varchar(20);not null;default:'#888888'"`
	Position    int             `json:"position" gorm:"not null;default:0"`
	Permissions RolePermissions `json:"permissions" gorm:"embedded;embeddedPrefix:perm_"`
}

type Membership struct {
	BaseModel
	GroupID      uuid.UUID   `json:"groupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_membership_group_user"`
	UserID       uuid.UUID   `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_membership_group_user"`
	Role         Role        `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	CustomRoleID *uuid.UUID  `json:"customRoleID,omitempty" gorm:"type:uuid;index"`
	User         User        `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Group        Group       `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	CustomRole   *CustomRole `json:"customRole,omitempty" gorm:"foreignKey:CustomRoleID"`
}
