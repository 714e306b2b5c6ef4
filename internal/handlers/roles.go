package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/koinonia/backend/internal/middleware"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/permissions"
	"github.com/koinonia/backend/pkg/utils"
	"gorm.io/gorm"
)

// RolesHandler manages a group's custom roles. A custom role carries a
// complete permission set that replaces the member's base-role set.
type RolesHandler struct {
	DB *gorm.DB
}

func NewRolesHandler(db *gorm.DB) *RolesHandler {
	return &RolesHandler{DB: db}
}

type customRoleRequest struct {
	Name        string                  `json:"name"`
	Color       *string                 `json:"color"`
	Position    *int                    `json:"position"`
	Permissions *models.RolePermissions `json:"permissions"`
}

func (h *RolesHandler) requireManageRoles(c *fiber.Ctx) (*models.Membership, error) {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return nil, utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var membership models.Membership
	if err := h.DB.Preload("CustomRole").First(&membership, "group_id = ? AND user_id = ?", groupID, currentUser.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.Error(c, fiber.StatusForbidden, "group access denied")
		}
		return nil, utils.Error(c, fiber.StatusInternalServerError, "failed validating membership")
	}
	if !permissions.Has(membership.Role, permissions.PermManageRoles, membership.CustomRole) {
		return nil, utils.Error(c, fiber.StatusForbidden, "permission denied")
	}
	return &membership, nil
}

func (h *RolesHandler) Create(c *fiber.Ctx) error {
	membership, failed := h.requireManageRoles(c)
	if membership == nil {
		return failed
	}

	var req customRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}
	if req.Permissions == nil {
		return utils.Error(c, fiber.StatusBadRequest, "permissions are required")
	}

	role := models.CustomRole{
		GroupID:     membership.GroupID,
		Name:        req.Name,
		Permissions: *req.Permissions,
	}
	if req.Color != nil {
		role.Color = strings.TrimSpace(*req.Color)
	}
	if req.Position != nil {
		role.Position = *req.Position
	}

	if err := h.DB.Create(&role).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "a role with that name already exists")
	}

	return utils.Success(c, fiber.StatusCreated, role)
}

func (h *RolesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var membership models.Membership
	if err := h.DB.First(&membership, "group_id = ? AND user_id = ?", groupID, currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	var roles []models.CustomRole
	if err := h.DB.Where("group_id = ?", groupID).Order("position ASC, name ASC").Find(&roles).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing roles")
	}

	return utils.Success(c, fiber.StatusOK, roles)
}

func (h *RolesHandler) Update(c *fiber.Ctx) error {
	membership, failed := h.requireManageRoles(c)
	if membership == nil {
		return failed
	}

	roleID, err := parseUUID(c.Params("roleId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role id")
	}

	var role models.CustomRole
	if err := h.DB.First(&role, "id = ? AND group_id = ?", roleID, membership.GroupID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "custom role not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading custom role")
	}

	var req customRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		role.Name = name
	}
	if req.Color != nil {
		role.Color = strings.TrimSpace(*req.Color)
	}
	if req.Position != nil {
		role.Position = *req.Position
	}
	if req.Permissions != nil {
		role.Permissions = *req.Permissions
	}

	if err := h.DB.Save(&role).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "a role with that name already exists")
	}

	return utils.Success(c, fiber.StatusOK, role)
}

// Delete removes a custom role; members holding it fall back to their
// base role's defaults.
func (h *RolesHandler) Delete(c *fiber.Ctx) error {
	membership, failed := h.requireManageRoles(c)
	if membership == nil {
		return failed
	}

	roleID, err := parseUUID(c.Params("roleId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role id")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.CustomRole{}, "id = ? AND group_id = ?", roleID, membership.GroupID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Membership{}).
			Where("group_id = ? AND custom_role_id = ?", membership.GroupID, roleID).
			Update("custom_role_id", nil).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "custom role not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting custom role")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "custom role deleted"})
}
