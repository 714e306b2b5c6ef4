package handlers

import (
	"net/http"
	"testing"

	"github.com/koinonia/backend/internal/models"
)

func TestGroupsEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	pastor, pastorToken := createTestUser(t, env.db, "groups-pastor@test.com")
	member, memberToken := createTestUser(t, env.db, "groups-member@test.com")
	outsider, outsiderToken := createTestUser(t, env.db, "groups-outsider@test.com")

	var groupID string

	t.Run("POST /api/groups/ creator becomes pastor", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/", map[string]any{
			"name": "Young Adults",
		}, authHeaders(pastorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		data := body["data"].(map[string]any)
		groupID = data["id"].(string)

		var membership models.Membership
		err := env.db.First(&membership, "group_id = ? AND user_id = ?", groupID, pastor.ID).Error
		if err != nil {
			t.Fatalf("expected pastor membership to exist: %v", err)
		}
		if membership.Role != models.RolePastor {
			t.Fatalf("expected pastor role, got %s", membership.Role)
		}
	})

	t.Run("GET /api/groups/:id non-member forbidden", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/"+groupID, nil, authHeaders(outsiderToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "group access denied")
	})

	t.Run("POST /api/groups/:id/members legacy role spelling normalized", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+groupID+"/members", map[string]any{
			"userID": member.ID,
			"role":   "mod",
		}, authHeaders(pastorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		data := body["data"].(map[string]any)
		if data["role"] != "moderator" {
			t.Fatalf("expected mod to normalize to moderator, got %v", data["role"])
		}
	})

	t.Run("POST /api/groups/:id/members cannot grant own rank", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+groupID+"/members", map[string]any{
			"userID": outsider.ID,
			"role":   "pastor",
		}, authHeaders(pastorToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("PUT /api/groups/:id/members/:userId moderator cannot manage roles", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+groupID+"/members/"+pastor.ID.String(), map[string]any{
			"role": "member",
		}, authHeaders(memberToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "permission denied")
	})

	t.Run("PUT /api/groups/:id/members/:userId promote moderator to admin", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+groupID+"/members/"+member.ID.String(), map[string]any{
			"role": "administrator",
		}, authHeaders(pastorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["role"] != "admin" {
			t.Fatalf("expected administrator to normalize to admin, got %v", data["role"])
		}
	})

	t.Run("GET /api/groups/:id/assignable-roles excludes own rank", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/"+groupID+"/assignable-roles", nil, authHeaders(memberToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		roles := body["data"].([]any)
		for _, role := range roles {
			if role == "admin" || role == "pastor" {
				t.Fatalf("admin should not be able to assign %v", role)
			}
		}
	})

	t.Run("DELETE /api/groups/:id/members/:userId admin cannot remove pastor", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+groupID+"/members/"+pastor.ID.String(), nil, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("DELETE /api/groups/:id/members/:userId leaving is allowed", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+groupID+"/members/"+member.ID.String(), nil, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusOK)

		var count int64
		env.db.Model(&models.Membership{}).Where("group_id = ? AND user_id = ?", groupID, member.ID).Count(&count)
		if count != 0 {
			t.Fatal("membership should be gone after leaving")
		}
	})

	t.Run("DELETE /api/groups/:id pastor cannot leave", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+groupID+"/members/"+pastor.ID.String(), nil, authHeaders(pastorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "the pastor cannot leave; transfer the role first")
	})

	t.Run("DELETE /api/groups/:id only pastor deletes group", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+groupID, nil, authHeaders(pastorToken))
		assertStatus(t, resp, http.StatusOK)

		var count int64
		env.db.Model(&models.Membership{}).Where("group_id = ?", groupID).Count(&count)
		if count != 0 {
			t.Fatal("memberships should cascade on group delete")
		}
	})
}

func TestCustomRoleEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	pastor, pastorToken := createTestUser(t, env.db, "roles-pastor@test.com")
	member, memberToken := createTestUser(t, env.db, "roles-member@test.com")
	admin, adminToken := createTestUser(t, env.db, "roles-admin@test.com")
	group := createTestGroup(t, env.db, pastor)
	addTestMember(t, env.db, group.ID, member.ID, models.RoleMember)
	addTestMember(t, env.db, group.ID, admin.ID, models.RoleAdmin)

	base := "/api/groups/" + group.ID.String()
	var roleID string

	t.Run("POST /roles member cannot create", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, base+"/roles", map[string]any{
			"name":        "Worship Team",
			"permissions": map[string]any{"sendMessages": true, "react": true},
		}, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("POST /roles pastor creates custom role", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, base+"/roles", map[string]any{
			"name":  "Worship Team",
			"color": "#7733aa",
			"permissions": map[string]any{
				"sendMessages": true,
				"react":        true,
				"pinMessages":  true,
			},
		}, authHeaders(pastorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		data := body["data"].(map[string]any)
		roleID = data["id"].(string)
	})

	t.Run("POST /roles duplicate name conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, base+"/roles", map[string]any{
			"name":        "Worship Team",
			"permissions": map[string]any{},
		}, authHeaders(pastorToken))
		assertStatus(t, resp, http.StatusConflict)
	})

	t.Run("PUT /members/:userId assign custom role", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, base+"/members/"+member.ID.String(), map[string]any{
			"customRoleID": roleID,
		}, authHeaders(pastorToken))
		assertStatus(t, resp, http.StatusOK)

		var membership models.Membership
		if err := env.db.First(&membership, "group_id = ? AND user_id = ?", group.ID, member.ID).Error; err != nil {
			t.Fatalf("loading membership: %v", err)
		}
		if membership.CustomRoleID == nil || membership.CustomRoleID.String() != roleID {
			t.Fatal("custom role should be assigned")
		}
	})

	t.Run("PUT /members/:userId admin cannot attach custom role to pastor", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, base+"/members/"+pastor.ID.String(), map[string]any{
			"customRoleID": roleID,
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "cannot modify a member at or above your own rank")

		var membership models.Membership
		if err := env.db.First(&membership, "group_id = ? AND user_id = ?", group.ID, pastor.ID).Error; err != nil {
			t.Fatalf("loading membership: %v", err)
		}
		if membership.CustomRoleID != nil {
			t.Fatal("pastor's permissions should be untouched")
		}
	})

	t.Run("PUT /members/:userId admin cannot clear pastor custom role", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, base+"/members/"+pastor.ID.String(), map[string]any{
			"clearCustom": true,
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("DELETE /roles/:roleId holders fall back to base role", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, base+"/roles/"+roleID, nil, authHeaders(pastorToken))
		assertStatus(t, resp, http.StatusOK)

		var membership models.Membership
		if err := env.db.First(&membership, "group_id = ? AND user_id = ?", group.ID, member.ID).Error; err != nil {
			t.Fatalf("loading membership: %v", err)
		}
		if membership.CustomRoleID != nil {
			t.Fatal("custom role reference should be cleared")
		}
	})
}
