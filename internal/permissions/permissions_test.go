package permissions

import (
	"testing"

	"github.com/koinonia/backend/internal/models"
)

var allRoles = []models.Role{
	models.RolePastor,
	models.RoleAdmin,
	models.RoleModerator,
	models.RoleMember,
	models.RoleVisitor,
}

func TestOutranksIsStrictTotalOrder(t *testing.T) {
	for _, role := range allRoles {
		if Outranks(role, role) {
			t.Errorf("expected %s to not outrank itself", role)
		}
	}

	for i, higher := range allRoles {
		for _, lower := range allRoles[i+1:] {
			if !Outranks(higher, lower) {
				t.Errorf("expected %s to outrank %s", higher, lower)
			}
			if Outranks(lower, higher) {
				t.Errorf("expected %s to not outrank %s", lower, higher)
			}
		}
	}
}

func TestRankOrdering(t *testing.T) {
	for i := 1; i < len(allRoles); i++ {
		if Rank(allRoles[i-1]) >= Rank(allRoles[i]) {
			t.Fatalf("expected rank(%s) < rank(%s)", allRoles[i-1], allRoles[i])
		}
	}
	if Rank(models.Role("unknown")) <= Rank(models.RoleVisitor) {
		t.Fatal("expected unknown role to rank below visitor")
	}
}

func TestDefaultPermissions(t *testing.T) {
	tests := []struct {
		role models.Role
		perm Permission
		want bool
	}{
		{models.RolePastor, PermManageGroup, true},
		{models.RolePastor, PermPostAnnouncements, true},
		{models.RoleAdmin, PermManageRoles, true},
		{models.RoleModerator, PermPinMessages, true},
		{models.RoleModerator, PermPostAnnouncements, false},
		{models.RoleModerator, PermManageMembers, false},
		{models.RoleMember, PermSendMessages, true},
		{models.RoleMember, PermPostAnnouncements, false},
		{models.RoleMember, PermCreateEvents, false},
		{models.RoleVisitor, PermViewMembers, true},
		{models.RoleVisitor, PermSendMessages, false},
	}

	for _, tt := range tests {
		if got := Has(tt.role, tt.perm, nil); got != tt.want {
			t.Errorf("Has(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestDefaultIsTotalForUnknownRole(t *testing.T) {
	if got := Default(models.Role("deacon")); got != Default(models.RoleVisitor) {
		t.Fatalf("expected unknown role to fall back to visitor defaults, got %+v", got)
	}
}

func TestEffectiveOverridesInsteadOfMerging(t *testing.T) {
	// A custom role that only grants pin-messages must strip everything a
	// pastor would otherwise hold.
	custom := &models.CustomRole{
		Name:        "Usher",
		Permissions: models.RolePermissions{PinMessages: true},
	}

	for _, role := range allRoles {
		effective := Effective(role, custom)
		if effective != custom.Permissions {
			t.Fatalf("expected custom permissions to replace %s defaults verbatim", role)
		}
		if Has(role, PermSendMessages, custom) {
			t.Fatalf("expected custom role to strip send-messages from %s", role)
		}
		if !Has(role, PermPinMessages, custom) {
			t.Fatalf("expected custom role to grant pin-messages to %s", role)
		}
	}

	if Effective(models.RoleMember, nil) != Default(models.RoleMember) {
		t.Fatal("expected nil custom role to yield base defaults")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want models.Role
	}{
		{"pastor", models.RolePastor},
		{"Leader", models.RolePastor},
		{"OWNER", models.RolePastor},
		{"admin", models.RoleAdmin},
		{"administrator", models.RoleAdmin},
		{"mod", models.RoleModerator},
		{" member ", models.RoleMember},
		{"guest", models.RoleVisitor},
		{"", models.RoleVisitor},
		{"something-else", models.RoleMember},
	}

	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
